package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/soyeahso/vox/internal/config"
	"github.com/soyeahso/vox/internal/version"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show vox status and configuration summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("vox %s (commit %s)\n\n", version.Version, version.Commit)

			fmt.Printf("Config:  %s\n", paths.Config)
			fmt.Printf("Data:    %s\n", paths.Data)
			fmt.Printf("Logs:    %s\n", paths.Logs)
			fmt.Println()

			cfg, err := config.Load(paths.Config)
			if err != nil {
				if os.IsNotExist(err) {
					fmt.Println("Config:  not found (using defaults)")
				} else {
					fmt.Printf("Config:  error loading: %v\n", err)
				}
				return nil
			}

			fmt.Printf("Server:   port=%d bind=%s auth=%s\n",
				cfg.Server.Port, cfg.Server.Bind, cfg.Server.Auth.Mode)
			fmt.Printf("Pipeline: workers=%d queue=%d maxUtterance=%ds\n",
				cfg.Pipeline.Workers, cfg.Pipeline.QueueSize, cfg.Pipeline.MaxUtteranceSeconds)
			fmt.Printf("Session:  idle=%ds historyLimit=%d\n",
				cfg.Session.IdleSeconds, cfg.Session.HistoryLimit)
			fmt.Printf("VAD:      mode=%s\n", cfg.VAD.Mode)
			fmt.Printf("Store:    %s\n", paths.DatabasePath(cfg.Store))

			if cfg.Report.Enabled && len(cfg.Report.Kafka.Brokers) > 0 {
				fmt.Printf("Report:   kafka topic=%s brokers=%s batch=%d/%dms\n",
					cfg.Report.Kafka.Topic, strings.Join(cfg.Report.Kafka.Brokers, ","),
					cfg.Report.BatchSize, cfg.Report.BatchTimeoutMs)
			} else {
				fmt.Println("Report:   log-only (no kafka brokers configured)")
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				fmt.Printf("\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Printf("  - %s: %s\n", issue.Path, issue.Message)
				}
			}

			return nil
		},
	}

	return cmd
}
