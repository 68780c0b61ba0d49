// Package session owns one device's staged processing pipeline: the state
// machine, conversation history, inter-stage buffers, and worker pool. A
// session is the unit of concurrency and cleanup; nothing outside it
// mutates its queues.
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/soyeahso/vox/internal/capability"
	"github.com/soyeahso/vox/internal/domain"
	"github.com/soyeahso/vox/internal/hooks"
	"github.com/soyeahso/vox/internal/logging"
	"github.com/soyeahso/vox/internal/metrics"
	"github.com/soyeahso/vox/internal/pipeline"
	"github.com/soyeahso/vox/internal/report"
)

// ErrSessionClosed is returned when input is submitted to a session that
// is shutting down. The caller sees a clean "unavailable", never a crash.
var ErrSessionClosed = errors.New("session: closed")

// Default texts spoken by control messages and stage failures.
const (
	DefaultGreeting = "Hello! I'm listening, how can I help?"
	DefaultFarewell = "Goodbye! Talk to you next time."
	DefaultFallback = "Sorry, I ran into a problem. Please try again."
)

// Sender delivers synthesized output to the device transport.
// Implementations must be safe for concurrent use.
type Sender interface {
	// SendAudio sends synthesized speech bytes to the device.
	SendAudio(data []byte) error

	// SendEvent sends a JSON control event (e.g. the recognized-text echo).
	SendEvent(eventType, text string) error
}

// HistorySaver persists a session's conversation at teardown.
type HistorySaver interface {
	SaveHistory(deviceID, sessionID string, history []domain.Message) error
}

// Config tunes one session's pipeline.
type Config struct {
	DeviceID string

	Greeting string
	Farewell string
	Fallback string

	// IdleTimeout closes a session with no inbound activity. Default: 2m.
	IdleTimeout time.Duration

	// MaxUtterance force-seals a stuck-open utterance. Default: gate's.
	MaxUtterance time.Duration

	// AudioQueueSize bounds the inbound frame buffer; overflow drops the
	// oldest frame. Default: 64.
	AudioQueueSize int

	// QueueSize bounds each inter-stage buffer. Default: 16.
	QueueSize int

	// Workers sizes the capability worker pool. Default: 4.
	Workers int

	// StageTimeout bounds one capability call. Default: pipeline's.
	StageTimeout time.Duration

	// CloseGrace bounds the teardown join on workers. Default: 5s.
	CloseGrace time.Duration

	// InitialHistory primes the conversation context, e.g. with the
	// device's persisted recent turns.
	InitialHistory []domain.Message
}

func (c *Config) applyDefaults() {
	if c.Greeting == "" {
		c.Greeting = DefaultGreeting
	}
	if c.Farewell == "" {
		c.Farewell = DefaultFarewell
	}
	if c.Fallback == "" {
		c.Fallback = DefaultFallback
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 2 * time.Minute
	}
	if c.AudioQueueSize <= 0 {
		c.AudioQueueSize = 64
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 16
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.CloseGrace <= 0 {
		c.CloseGrace = 5 * time.Second
	}
}

// Deps are the collaborators injected into a session. Reports, History,
// Hooks, Metrics, and OnClose are optional.
type Deps struct {
	Caps    capability.Set
	Out     Sender
	Reports *report.Batcher
	History HistorySaver
	Hooks   *hooks.Manager
	Metrics *metrics.Metrics
	Log     *logging.Logger

	// OnClose runs once after teardown completes, outside the session's
	// locks. The registry uses it to drop its map entry.
	OnClose func(deviceID string)
}

// turnItem stamps a pipeline item with the sequence number of its turn so
// an abort can discard everything in flight for that turn.
type turnUtterance struct {
	seq uint64
	utt domain.Utterance
}

type turnText struct {
	seq  uint64
	text string
}

type turnIntent struct {
	seq    uint64
	intent domain.IntentResult
}

// Session is one device's live connection to the engine.
type Session struct {
	ID       string
	DeviceID string

	cfg  Config
	caps capability.Set
	out  Sender

	reports *report.Batcher
	history HistorySaver
	hooks   *hooks.Manager
	metrics *metrics.Metrics
	log     *logging.Logger
	onClose func(string)

	frames      *pipeline.Buffer[domain.AudioFrame]
	utterances  *pipeline.Buffer[turnUtterance]
	transcripts *pipeline.Buffer[turnText]
	chatQ       *pipeline.Buffer[turnIntent]
	funcQ       *pipeline.Buffer[turnIntent]
	replies     *pipeline.Buffer[turnText]
	pool        *pipeline.Pool

	gateMu sync.Mutex
	gate   *pipeline.Gate

	mu           sync.Mutex
	state        domain.SessionState
	hist         []domain.Message
	histBase     int
	lastActivity time.Time

	// turnSeq numbers turns; discardThrough marks the newest aborted
	// turn. A stage drops any item with seq <= discardThrough.
	turnSeq        atomic.Uint64
	discardThrough atomic.Uint64

	ctx     context.Context
	cancel  context.CancelFunc
	loops   sync.WaitGroup
	closing atomic.Bool
	once    sync.Once
	closed  chan struct{}
}

// New creates a session and starts its pipeline loops.
func New(cfg Config, deps Deps) *Session {
	cfg.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		ID:       uuid.New().String(),
		DeviceID: cfg.DeviceID,
		cfg:      cfg,
		caps:     deps.Caps,
		out:      deps.Out,
		reports:  deps.Reports,
		history:  deps.History,
		hooks:    deps.Hooks,
		metrics:  deps.Metrics,
		onClose:  deps.OnClose,
		log:      deps.Log.Sub("session").With("deviceId", cfg.DeviceID),

		frames:      pipeline.NewBuffer[domain.AudioFrame](cfg.AudioQueueSize),
		utterances:  pipeline.NewBuffer[turnUtterance](cfg.QueueSize),
		transcripts: pipeline.NewBuffer[turnText](cfg.QueueSize),
		chatQ:       pipeline.NewBuffer[turnIntent](cfg.QueueSize),
		funcQ:       pipeline.NewBuffer[turnIntent](cfg.QueueSize),
		replies:     pipeline.NewBuffer[turnText](cfg.QueueSize),

		state:        domain.StateIdle,
		hist:         append([]domain.Message(nil), cfg.InitialHistory...),
		histBase:     len(cfg.InitialHistory),
		lastActivity: time.Now(),
		ctx:          ctx,
		cancel:       cancel,
		closed:       make(chan struct{}),
	}
	s.pool = pipeline.NewPool(cfg.Workers, cfg.Workers*4, s.log)
	s.gate = pipeline.NewGate(pipeline.GateConfig{MaxUtterance: cfg.MaxUtterance}, s.log)

	s.start()

	s.metrics.RecordSessionStart()
	s.report(domain.ReportSessionStart, nil)
	if s.hooks != nil {
		s.hooks.EmitAsync(ctx, hooks.EventSessionStart, map[string]any{
			"deviceId":  s.DeviceID,
			"sessionId": s.ID,
		})
	}
	s.log.Info().Str("sessionId", s.ID).Msg("session created")
	return s
}

// start launches the gate loop, the four capability stages, the function
// path, and the idle watchdog.
func (s *Session) start() {
	stageCfg := pipeline.StageConfig{CallTimeout: s.cfg.StageTimeout}

	asr := &pipeline.Stage[turnUtterance, string]{
		Name: "asr",
		In:   s.utterances,
		Call: func(ctx context.Context, item turnUtterance) (string, error) {
			s.setState(domain.StateProcessingASR)
			return s.caps.ASR.Transcribe(ctx, item.utt.Data)
		},
		Emit:    s.onTranscript,
		Fail:    func(item turnUtterance, err error) { s.fallback(item.seq, err) },
		Discard: func(item turnUtterance) bool { return s.discarded(item.seq) },
		Observe: func(d time.Duration, err error) { s.metrics.ObserveStage("asr", d, err) },
		Pool:    s.pool,
		Config:  stageCfg,
		Log:     s.log,
	}

	intent := &pipeline.Stage[turnText, domain.IntentResult]{
		Name: "intent",
		In:   s.transcripts,
		Call: func(ctx context.Context, item turnText) (domain.IntentResult, error) {
			s.setState(domain.StateProcessingIntent)
			return s.caps.Intent.DetectIntent(ctx, item.text, s.History())
		},
		Emit:    s.onIntent,
		Fail:    func(item turnText, err error) { s.fallback(item.seq, err) },
		Discard: func(item turnText) bool { return s.discarded(item.seq) },
		Observe: func(d time.Duration, err error) { s.metrics.ObserveStage("intent", d, err) },
		Pool:    s.pool,
		Config:  stageCfg,
		Log:     s.log,
	}

	llm := &pipeline.Stage[turnIntent, string]{
		Name: "llm",
		In:   s.chatQ,
		Call: func(ctx context.Context, item turnIntent) (string, error) {
			s.setState(domain.StateProcessingLLM)
			return s.caps.LLM.GenerateResponse(ctx, item.intent, s.History())
		},
		Emit:    s.onReply,
		Fail:    func(item turnIntent, err error) { s.fallback(item.seq, err) },
		Discard: func(item turnIntent) bool { return s.discarded(item.seq) },
		Observe: func(d time.Duration, err error) { s.metrics.ObserveStage("llm", d, err) },
		Pool:    s.pool,
		Config:  stageCfg,
		Log:     s.log,
	}

	function := &pipeline.Stage[turnIntent, string]{
		Name: "function",
		In:   s.funcQ,
		Call: func(ctx context.Context, item turnIntent) (string, error) {
			s.setState(domain.StateExecutingFunction)
			return s.caps.Functions.ExecuteFunction(ctx, item.intent.FunctionName, item.intent.Arguments)
		},
		Emit:    s.onReply,
		Fail:    func(item turnIntent, err error) { s.fallback(item.seq, err) },
		Discard: func(item turnIntent) bool { return s.discarded(item.seq) },
		Observe: func(d time.Duration, err error) { s.metrics.ObserveStage("function", d, err) },
		Pool:    s.pool,
		Config:  stageCfg,
		Log:     s.log,
	}

	synth := &pipeline.Stage[turnText, []byte]{
		Name: "synthesis",
		In:   s.replies,
		Call: func(ctx context.Context, item turnText) ([]byte, error) {
			s.setState(domain.StateProcessingSynth)
			return s.caps.TTS.Synthesize(ctx, item.text)
		},
		Emit:    s.onSynthesized,
		Fail:    s.onSynthFailure,
		Discard: func(item turnText) bool { return s.discarded(item.seq) },
		Observe: func(d time.Duration, err error) { s.metrics.ObserveStage("synthesis", d, err) },
		Pool:    s.pool,
		Config:  stageCfg,
		Log:     s.log,
	}

	s.loops.Add(6)
	go func() { defer s.loops.Done(); s.gateLoop() }()
	go func() { defer s.loops.Done(); asr.Run(s.ctx) }()
	go func() { defer s.loops.Done(); intent.Run(s.ctx) }()
	go func() { defer s.loops.Done(); llm.Run(s.ctx) }()
	go func() { defer s.loops.Done(); function.Run(s.ctx) }()
	go func() { defer s.loops.Done(); synth.Run(s.ctx) }()

	go s.idleWatchdog()
}

// --- inbound entry points (called from the transport read loop) ---

// HandleAudio queues one raw audio frame. Overflow drops the oldest frame.
func (s *Session) HandleAudio(data []byte) error {
	if s.closing.Load() {
		return ErrSessionClosed
	}
	s.touch()

	frame := domain.AudioFrame{Data: data, ReceivedAt: time.Now()}
	dropped, err := s.frames.PutDropOldest(frame)
	s.metrics.RecordFrame(len(data), dropped)
	if dropped > 0 {
		s.log.Debug().Int("dropped", dropped).Msg("audio buffer full, dropped oldest frames")
	}
	if errors.Is(err, pipeline.ErrBufferClosed) {
		return ErrSessionClosed
	}
	return err
}

// HandleText feeds typed input straight into intent resolution, skipping
// ASR entirely.
func (s *Session) HandleText(text string) error {
	if s.closing.Load() {
		return ErrSessionClosed
	}
	s.touch()

	seq := s.newTurn(map[string]any{"input": "text"})
	s.appendHistory(domain.RoleUser, text)
	s.setState(domain.StateProcessingIntent)
	if err := s.transcripts.Put(turnText{seq: seq, text: text}); err != nil {
		return ErrSessionClosed
	}
	return nil
}

// --- control messages (handled directly, never queued behind audio) ---

// Hello speaks the greeting, bypassing ASR and intent resolution.
func (s *Session) Hello() error {
	if s.closing.Load() {
		return ErrSessionClosed
	}
	s.touch()
	s.log.Debug().Msg("hello received")

	seq := s.newTurn(map[string]any{"input": "hello"})
	s.appendHistory(domain.RoleAssistant, s.cfg.Greeting)
	if err := s.replies.Put(turnText{seq: seq, text: s.cfg.Greeting}); err != nil {
		return ErrSessionClosed
	}
	return nil
}

// Abort is the barge-in: every in-flight turn's output is discarded, the
// open utterance buffer is cleared, and the session returns to idle
// without waiting for stage completion.
func (s *Session) Abort() {
	if s.closing.Load() {
		return
	}
	s.touch()

	s.discardThrough.Store(s.turnSeq.Load())

	s.gateMu.Lock()
	s.gate.Reset()
	s.gateMu.Unlock()

	s.metrics.RecordTurnAborted()
	s.report(domain.ReportTurnAborted, nil)
	s.setState(domain.StateIdle)
	s.log.Info().Msg("turn aborted")
}

// Goodbye speaks the farewell and then shuts the session down gracefully
// once the farewell has drained (or a short deadline passes).
func (s *Session) Goodbye() {
	if s.closing.Load() {
		return
	}
	s.touch()
	s.log.Info().Msg("goodbye received")

	seq := s.newTurn(map[string]any{"input": "goodbye"})
	s.appendHistory(domain.RoleAssistant, s.cfg.Farewell)
	_ = s.replies.Put(turnText{seq: seq, text: s.cfg.Farewell})

	go func() {
		deadline := time.Now().Add(s.cfg.CloseGrace)
		for time.Now().Before(deadline) {
			if s.replies.Len() == 0 && s.State() == domain.StateIdle {
				break
			}
			time.Sleep(20 * time.Millisecond)
		}
		s.Close()
	}()
}

// --- pipeline hooks ---

// gateLoop classifies inbound frames and feeds the voice-activity gate.
// VAD is fast (sub-50ms budget); it runs inline here, off the control
// path, rather than round-tripping through the worker pool per frame.
func (s *Session) gateLoop() {
	for {
		frame, err := s.frames.Get(pipeline.DefaultPollInterval)
		if errors.Is(err, pipeline.ErrBufferClosed) {
			return
		}
		if errors.Is(err, pipeline.ErrBufferTimeout) {
			select {
			case <-s.ctx.Done():
				return
			default:
				continue
			}
		}

		vctx, cancel := context.WithTimeout(s.ctx, time.Second)
		voiced, verr := s.caps.VAD.DetectVoiceActivity(vctx, frame.Data)
		cancel()
		if verr != nil {
			// A broken VAD must not wedge the mic open; treat as silence.
			s.log.Warn().Err(verr).Msg("vad call failed, treating frame as silence")
			voiced = false
		}
		frame.HasVoice = voiced

		if voiced && s.State() == domain.StateIdle {
			s.setState(domain.StateReceivingAudio)
		}

		s.gateMu.Lock()
		utt, sealed := s.gate.Feed(frame)
		s.gateMu.Unlock()
		if !sealed {
			continue
		}

		s.metrics.RecordUtterance(utt.Forced)
		seq := s.newTurn(map[string]any{
			"input":  "audio",
			"frames": utt.Frames,
			"bytes":  len(utt.Data),
			"forced": utt.Forced,
		})
		s.setState(domain.StateProcessingASR)
		if err := s.utterances.Put(turnUtterance{seq: seq, utt: utt}); err != nil {
			return
		}
	}
}

// onTranscript handles ASR output: echo to the device, record history,
// pass to intent resolution.
func (s *Session) onTranscript(item turnUtterance, text string) {
	s.report(domain.ReportASRCompleted, map[string]any{"chars": len(text)})
	if err := s.out.SendEvent("stt", text); err != nil {
		s.log.Warn().Err(err).Msg("failed to send stt echo")
	}
	s.appendHistory(domain.RoleUser, text)
	s.setState(domain.StateProcessingIntent)
	_ = s.transcripts.Put(turnText{seq: item.seq, text: text})
}

// onIntent branches a resolved intent: chat goes to the language model,
// everything else to function execution.
func (s *Session) onIntent(item turnText, intent domain.IntentResult) {
	if intent.IsChat() {
		s.setState(domain.StateProcessingLLM)
		_ = s.chatQ.Put(turnIntent{seq: item.seq, intent: intent})
		return
	}
	s.log.Debug().
		Str("intent", intent.Type).
		Str("function", intent.FunctionName).
		Msg("routing to function execution")
	s.setState(domain.StateExecutingFunction)
	_ = s.funcQ.Put(turnIntent{seq: item.seq, intent: intent})
}

// onReply records the assistant turn and hands the text to synthesis.
func (s *Session) onReply(item turnIntent, text string) {
	s.appendHistory(domain.RoleAssistant, text)
	s.setState(domain.StateProcessingSynth)
	_ = s.replies.Put(turnText{seq: item.seq, text: text})
}

// onSynthesized ships the audio and completes the turn.
func (s *Session) onSynthesized(item turnText, audio []byte) {
	s.setState(domain.StateSendingResponse)
	if err := s.out.SendAudio(audio); err != nil {
		s.log.Warn().Err(err).Msg("failed to send synthesized audio")
	}

	s.metrics.RecordTurnCompleted()
	s.report(domain.ReportTurnCompleted, map[string]any{"bytes": len(audio)})
	if s.hooks != nil {
		s.hooks.EmitAsync(s.ctx, hooks.EventTurnComplete, map[string]any{
			"deviceId":  s.DeviceID,
			"sessionId": s.ID,
		})
	}
	s.setState(domain.StateIdle)
}

// fallback converts any upstream capability failure into a spoken
// fallback routed straight to synthesis. Never fatal to the session.
func (s *Session) fallback(seq uint64, err error) {
	s.report(domain.ReportTurnFailed, map[string]any{"error": err.Error()})
	s.appendHistory(domain.RoleAssistant, s.cfg.Fallback)
	s.setState(domain.StateProcessingSynth)
	_ = s.replies.Put(turnText{seq: seq, text: s.cfg.Fallback})
}

// onSynthFailure ends the turn: with synthesis itself down there is
// nothing left to speak.
func (s *Session) onSynthFailure(item turnText, err error) {
	s.report(domain.ReportTurnFailed, map[string]any{"error": err.Error(), "stage": "synthesis"})
	s.log.Error().Err(err).Msg("synthesis failed, dropping turn")
	s.setState(domain.StateIdle)
}

// --- state and bookkeeping ---

// State returns the current state machine position.
func (s *Session) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// History returns a copy of the conversation so far, primed context
// included.
func (s *Session) History() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Message(nil), s.hist...)
}

// newMessages returns only the messages appended during this session.
// The primed context was persisted by the session that produced it;
// saving it again would duplicate it on every reconnect.
func (s *Session) newMessages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Message(nil), s.hist[s.histBase:]...)
}

// LastActivity returns the time of the most recent inbound event.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Closed is closed once teardown has finished.
func (s *Session) Closed() <-chan struct{} { return s.closed }

func (s *Session) setState(next domain.SessionState) {
	s.mu.Lock()
	prev := s.state
	if prev.Terminal() {
		s.mu.Unlock()
		return
	}
	s.state = next
	s.mu.Unlock()

	if prev != next {
		s.log.Trace().
			Str("from", prev.String()).
			Str("to", next.String()).
			Msg("state transition")
		s.report(domain.ReportStateChange, map[string]any{
			"from": prev.String(),
			"to":   next.String(),
		})
	}
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) appendHistory(role, content string) {
	s.mu.Lock()
	s.hist = append(s.hist, domain.Message{Role: role, Content: content, Timestamp: time.Now()})
	s.mu.Unlock()
}

func (s *Session) newTurn(payload map[string]any) uint64 {
	seq := s.turnSeq.Add(1)
	s.report(domain.ReportTurnStarted, payload)
	return seq
}

func (s *Session) discarded(seq uint64) bool {
	return seq <= s.discardThrough.Load()
}

func (s *Session) report(eventType string, payload map[string]any) {
	if s.reports == nil {
		return
	}
	s.reports.Submit(domain.ReportEvent{
		DeviceID:  s.DeviceID,
		SessionID: s.ID,
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now(),
	})
}

// idleWatchdog closes the session after a quiet period.
func (s *Session) idleWatchdog() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if time.Since(s.LastActivity()) >= s.cfg.IdleTimeout {
				s.log.Info().Dur("idle", s.cfg.IdleTimeout).Msg("idle timeout, closing session")
				s.Close()
				return
			}
		}
	}
}

// Close tears the session down: poisons every queue, joins the stage
// loops and worker pool within the grace period, persists history, and
// reports the end. Idempotent; blocks until teardown is complete.
func (s *Session) Close() {
	s.once.Do(func() {
		s.closing.Store(true)
		s.setState(domain.StateDisconnecting)
		s.log.Info().Msg("session closing")

		s.frames.Close()
		s.utterances.Close()
		s.transcripts.Close()
		s.chatQ.Close()
		s.funcQ.Close()
		s.replies.Close()
		s.cancel()

		joined := make(chan struct{})
		go func() {
			s.loops.Wait()
			close(joined)
		}()
		select {
		case <-joined:
		case <-time.After(s.cfg.CloseGrace):
			s.log.Warn().Msg("stage loops did not stop within grace period")
		}
		s.pool.Stop(s.cfg.CloseGrace)

		if s.history != nil {
			if err := s.history.SaveHistory(s.DeviceID, s.ID, s.newMessages()); err != nil {
				// Persistence is fire-and-forget from the pipeline's view.
				s.log.Error().Err(err).Msg("failed to persist conversation history")
			}
		}

		s.report(domain.ReportSessionEnd, map[string]any{"turns": s.turnSeq.Load()})
		if s.hooks != nil {
			s.hooks.EmitAsync(context.Background(), hooks.EventSessionEnd, map[string]any{
				"deviceId":  s.DeviceID,
				"sessionId": s.ID,
			})
		}
		s.metrics.RecordSessionEnd()

		s.mu.Lock()
		s.state = domain.StateDisconnected
		s.mu.Unlock()
		close(s.closed)
		s.log.Info().Msg("session closed")

		if s.onClose != nil {
			s.onClose(s.DeviceID)
		}
	})
}
