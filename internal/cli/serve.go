package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/soyeahso/vox/internal/capability"
	"github.com/soyeahso/vox/internal/config"
	"github.com/soyeahso/vox/internal/funcs"
	"github.com/soyeahso/vox/internal/gateway"
	"github.com/soyeahso/vox/internal/hooks"
	"github.com/soyeahso/vox/internal/logging"
	"github.com/soyeahso/vox/internal/metrics"
	"github.com/soyeahso/vox/internal/report"
	"github.com/soyeahso/vox/internal/session"
	"github.com/soyeahso/vox/internal/store"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the vox server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}

			if port != 0 {
				cfg.Server.Port = port
			}
			if bind != "" {
				cfg.Server.Bind = bind
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			if logLevel == "" {
				log = logging.New(nil, cfg.Logging.Level)
			}

			if err := paths.EnsureDirs(); err != nil {
				return fmt.Errorf("creating data directories: %w", err)
			}

			return runServer(cfg)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override server port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (loopback, lan, custom)")

	return cmd
}

// runServer assembles the engine and blocks until SIGINT/SIGTERM.
func runServer(cfg config.Config) error {
	m := metrics.New()
	hookMgr := hooks.NewManager(log)

	dbPath := paths.DatabasePath(cfg.Store)
	db, err := store.Open(dbPath, log)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()
	history := store.NewHistoryStore(db)
	log.Info().Str("path", dbPath).Msg("conversation store ready")

	funcReg := funcs.NewRegistry(log)
	if err := funcs.RegisterBuiltins(funcReg); err != nil {
		return fmt.Errorf("registering builtin functions: %w", err)
	}
	log.Info().Int("functions", funcReg.Count()).Msg("function registry ready")

	// Telemetry: Kafka when brokers are configured, log-only otherwise.
	var sink report.Sink
	if cfg.Report.Enabled && len(cfg.Report.Kafka.Brokers) > 0 {
		ks := report.NewKafkaSink(report.KafkaConfig{
			Brokers: cfg.Report.Kafka.Brokers,
			Topic:   cfg.Report.Kafka.Topic,
		}, log)
		defer ks.Close()
		sink = ks
		log.Info().
			Strs("brokers", cfg.Report.Kafka.Brokers).
			Str("topic", cfg.Report.Kafka.Topic).
			Msg("kafka telemetry sink ready")
	} else {
		sink = report.NewLogSink(log)
	}
	batcher := report.NewBatcher(report.BatcherConfig{
		BatchSize:    cfg.Report.BatchSize,
		BatchTimeout: time.Duration(cfg.Report.BatchTimeoutMs) * time.Millisecond,
		QueueCap:     cfg.Report.QueueCap,
	}, sink, m, log)
	defer batcher.Stop()

	log.Warn().Msg("no ASR backend configured; running with development capabilities")

	sessions := session.NewRegistry(log)
	factory := func(deviceID string, out session.Sender) (*session.Session, error) {
		recent, err := history.Recent(deviceID, cfg.Session.HistoryLimit)
		if err != nil {
			log.Warn().Err(err).Str("deviceId", deviceID).Msg("failed to load recent history")
		}
		return sessions.Create(session.Config{
			DeviceID:       deviceID,
			Greeting:       cfg.Session.Greeting,
			Farewell:       cfg.Session.Farewell,
			Fallback:       cfg.Session.Fallback,
			IdleTimeout:    time.Duration(cfg.Session.IdleSeconds) * time.Second,
			MaxUtterance:   time.Duration(cfg.Pipeline.MaxUtteranceSeconds) * time.Second,
			AudioQueueSize: cfg.Pipeline.AudioQueueSize,
			QueueSize:      cfg.Pipeline.QueueSize,
			Workers:        cfg.Pipeline.Workers,
			StageTimeout:   time.Duration(cfg.Pipeline.StageTimeoutSeconds) * time.Second,
			InitialHistory: recent,
		}, session.Deps{
			// One capability set per session; the VAD carries per-stream
			// hysteresis state.
			Caps:    capability.NewDevSet(funcReg),
			Out:     out,
			Reports: batcher,
			History: history,
			Hooks:   hookMgr,
			Metrics: m,
			Log:     log,
		})
	}

	srv := gateway.New(cfg, factory, log,
		gateway.WithMetrics(m),
		gateway.WithHooks(hookMgr),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = srv.Start(ctx)

	// Tear down every live session before the batcher and store go away
	// so final history writes and session_end events land.
	sessions.ShutdownAll()
	return err
}
