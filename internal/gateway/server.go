// Package gateway is the HTTP/WebSocket front door devices connect to.
// It authenticates the hello handshake, hands each connection to a fresh
// session, and shuttles frames between the socket and the session's
// pipeline.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/soyeahso/vox/internal/config"
	"github.com/soyeahso/vox/internal/hooks"
	"github.com/soyeahso/vox/internal/logging"
	"github.com/soyeahso/vox/internal/metrics"
	"github.com/soyeahso/vox/internal/session"
	"github.com/soyeahso/vox/internal/version"
)

// handshakeTimeout bounds how long a fresh connection may take to send
// its hello.
const handshakeTimeout = 10 * time.Second

// maxMessageSize caps one WebSocket frame. Audio frames are tens of
// kilobytes at most.
const maxMessageSize = 1 << 20 // 1MB

// SessionFactory builds the session serving one authenticated device
// connection. Injected so the gateway stays ignorant of capability and
// storage wiring.
type SessionFactory func(deviceID string, out session.Sender) (*session.Session, error)

// Server is the vox device-facing HTTP + WebSocket server.
type Server struct {
	cfg     config.Config
	auth    ResolvedAuth
	factory SessionFactory
	log     *logging.Logger

	metrics *metrics.Metrics
	hooks   *hooks.Manager

	startedAt  time.Time
	httpServer *http.Server
	upgrader   websocket.Upgrader
	limiter    *authRateLimiter
}

// ServerOption configures the server.
type ServerOption func(*Server)

// WithMetrics enables the /metrics route and instrumentation.
func WithMetrics(m *metrics.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithHooks sets the hook manager for lifecycle events.
func WithHooks(hm *hooks.Manager) ServerOption {
	return func(s *Server) { s.hooks = hm }
}

// New creates a server. The factory is called once per authenticated
// device connection.
func New(cfg config.Config, factory SessionFactory, log *logging.Logger, opts ...ServerOption) *Server {
	s := &Server{
		cfg:     cfg,
		auth:    ResolveAuth(cfg.Server.Auth),
		factory: factory,
		log:     log.Sub("gateway"),
		limiter: newAuthRateLimiter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkWebSocketOrigin(cfg.Server.AllowedOrigins),
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// checkWebSocketOrigin validates the Origin header. Devices send no
// Origin and always pass; browser clients must match the allowlist.
func checkWebSocketOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// resolveBindAddr computes the listen address from config.
func resolveBindAddr(cfg config.ServerConfig) string {
	switch cfg.Bind {
	case "loopback":
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	case "lan":
		return fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	case "custom":
		host := cfg.CustomBindHost
		if host == "" {
			host = "0.0.0.0"
		}
		return fmt.Sprintf("%s:%d", host, cfg.Port)
	default:
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	}
}

// Start begins listening for HTTP and WebSocket connections. It blocks
// until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	addr := resolveBindAddr(s.cfg.Server)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     withMiddleware(mux, s.log),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
		BaseContext: func(l net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.startedAt = time.Now()
	s.log.Info().
		Str("addr", ln.Addr().String()).
		Str("bind", s.cfg.Server.Bind).
		Str("auth", s.auth.Mode).
		Msg("server listening")

	if s.hooks != nil {
		s.hooks.Emit(ctx, hooks.EventServerStart, map[string]any{
			"addr": ln.Addr().String(),
		})
	}

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("shutting down server")
		if s.hooks != nil {
			s.hooks.Emit(context.Background(), hooks.EventServerStop, nil)
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the server's listen address, or empty string if not started.
func (s *Server) Addr() string {
	if s.httpServer != nil {
		return s.httpServer.Addr
	}
	return ""
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  int64  `json:"uptimeSeconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(healthResponse{
		Status:  "ok",
		Version: version.Version,
		Uptime:  int64(time.Since(s.startedAt).Seconds()),
	})
}

// handleWebSocket upgrades the connection, runs the hello handshake, and
// then pumps frames into the device's session until either side goes away.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.allow(r.RemoteAddr) {
		s.log.Warn().Str("remote", r.RemoteAddr).Msg("rate limited, too many failed auth attempts")
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxMessageSize)

	s.log.Debug().Str("remote", r.RemoteAddr).Msg("new websocket connection")

	dc, sess, err := s.handshake(conn)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("handshake failed")
		s.limiter.recordFailure(r.RemoteAddr)
		conn.Close()
		return
	}

	// The session can close on its own (idle timeout, goodbye); drop the
	// socket when it does so the read loop unblocks.
	go func() {
		<-sess.Closed()
		dc.Close()
	}()

	s.readLoop(dc, sess)

	sess.Close()
	dc.Close()
}

// handshake reads the hello message, authenticates it, creates the
// session, and acknowledges.
func (s *Server) handshake(conn *websocket.Conn) (*DeviceConn, *session.Session, error) {
	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))

	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, nil, fmt.Errorf("reading hello: %w", err)
	}

	msg, err := ParseClientMessage(data)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing hello: %w", err)
	}
	if msg.Type != TypeHello {
		sendErrorAndClose(conn, "expected hello")
		return nil, nil, fmt.Errorf("expected hello, got %q", msg.Type)
	}
	if msg.DeviceID == "" {
		sendErrorAndClose(conn, "device_id is required")
		return nil, nil, errors.New("hello without device_id")
	}

	if result := Authorize(s.auth, msg.Token); !result.OK {
		sendErrorAndClose(conn, "unauthorized")
		return nil, nil, fmt.Errorf("auth failed: %s", result.Reason)
	}

	conn.SetReadDeadline(time.Time{})

	dc := NewDeviceConn(conn, msg.DeviceID, s.log.Sub("ws"))
	sess, err := s.factory(msg.DeviceID, dc)
	if err != nil {
		sendErrorAndClose(conn, "unavailable")
		return nil, nil, fmt.Errorf("creating session: %w", err)
	}

	if err := dc.SendMessage(HelloAck(sess.ID)); err != nil {
		sess.Close()
		return nil, nil, fmt.Errorf("sending hello ack: %w", err)
	}

	if msg.AudioParams != nil {
		s.log.Debug().
			Str("deviceId", msg.DeviceID).
			Str("format", msg.AudioParams.Format).
			Int("sampleRate", msg.AudioParams.SampleRate).
			Msg("device audio params")
	}
	s.log.Info().
		Str("deviceId", msg.DeviceID).
		Str("sessionId", sess.ID).
		Msg("device authenticated")

	return dc, sess, nil
}

// readLoop pumps inbound frames into the session: binary frames are
// audio, text frames are control messages.
func (s *Server) readLoop(dc *DeviceConn, sess *session.Session) {
	for {
		data, isBinary, err := dc.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Str("deviceId", dc.DeviceID).Msg("device closed connection")
			} else {
				s.log.Debug().Err(err).Str("deviceId", dc.DeviceID).Msg("read loop ended")
			}
			return
		}

		if isBinary {
			if err := sess.HandleAudio(data); err != nil {
				if errors.Is(err, session.ErrSessionClosed) {
					return
				}
				s.log.Warn().Err(err).Str("deviceId", dc.DeviceID).Msg("audio frame rejected")
			}
			continue
		}

		msg, err := ParseClientMessage(data)
		if err != nil {
			s.log.Warn().Err(err).Str("deviceId", dc.DeviceID).Msg("malformed control message")
			dc.SendMessage(ErrorMessage("malformed message"))
			continue
		}

		if done := s.dispatch(dc, sess, msg); done {
			return
		}
	}
}

// dispatch routes one control message. Returns true when the connection
// should wind down.
func (s *Server) dispatch(dc *DeviceConn, sess *session.Session, msg ClientMessage) bool {
	switch msg.Type {
	case TypeHello:
		// Repeated hello on a live connection restarts the greeting.
		if err := sess.Hello(); err != nil {
			return true
		}

	case TypeListen:
		switch msg.State {
		case ListenDetect:
			if msg.Text == "" {
				dc.SendMessage(ErrorMessage("listen detect requires text"))
				return false
			}
			if err := sess.HandleText(msg.Text); err != nil {
				return true
			}
		case ListenStart, ListenStop:
			// Streaming boundaries are informational; the voice gate
			// decides utterance boundaries from the audio itself.
			s.log.Trace().Str("deviceId", dc.DeviceID).Str("state", msg.State).Msg("listen state")
		default:
			dc.SendMessage(ErrorMessage("unknown listen state: " + msg.State))
		}

	case TypeAbort:
		sess.Abort()

	case TypeGoodbye:
		// The session speaks its farewell and then closes itself, which
		// drops the socket and ends the read loop. Closing here instead
		// would cut the farewell short.
		sess.Goodbye()

	default:
		s.log.Debug().Str("type", msg.Type).Msg("ignoring unknown message type")
		dc.SendMessage(ErrorMessage("unknown message type: " + msg.Type))
	}
	return false
}

// sendErrorAndClose sends an error frame and closes the raw socket.
func sendErrorAndClose(conn *websocket.Conn, message string) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	conn.WriteJSON(ErrorMessage(message))
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message))
}

// authRateLimiter tracks failed auth attempts per IP to slow brute force.
type authRateLimiter struct {
	mu       sync.Mutex
	failures map[string][]time.Time
}

const (
	authRateWindow   = 5 * time.Minute
	authRateMaxFails = 10
	authRateMaxIPs   = 10000 // cap tracked IPs to bound memory
)

func newAuthRateLimiter() *authRateLimiter {
	rl := &authRateLimiter{failures: make(map[string][]time.Time)}
	go rl.periodicCleanup()
	return rl
}

// periodicCleanup removes stale entries every minute.
func (l *authRateLimiter) periodicCleanup() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		l.mu.Lock()
		cutoff := time.Now().Add(-authRateWindow)
		for ip, times := range l.failures {
			filtered := times[:0]
			for _, t := range times {
				if t.After(cutoff) {
					filtered = append(filtered, t)
				}
			}
			if len(filtered) == 0 {
				delete(l.failures, ip)
			} else {
				l.failures[ip] = filtered
			}
		}
		l.mu.Unlock()
	}
}

func (l *authRateLimiter) allow(remoteAddr string) bool {
	host, _, _ := net.SplitHostPort(remoteAddr)
	if host == "" {
		host = remoteAddr
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-authRateWindow)
	recent := l.failures[host]
	filtered := recent[:0]
	for _, t := range recent {
		if t.After(cutoff) {
			filtered = append(filtered, t)
		}
	}
	if len(filtered) == 0 {
		delete(l.failures, host)
		return true
	}
	l.failures[host] = filtered
	return len(filtered) < authRateMaxFails
}

func (l *authRateLimiter) recordFailure(remoteAddr string) {
	host, _, _ := net.SplitHostPort(remoteAddr)
	if host == "" {
		host = remoteAddr
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.failures[host]; !exists && len(l.failures) >= authRateMaxIPs {
		var oldestIP string
		var oldestTime time.Time
		for ip, times := range l.failures {
			if len(times) > 0 && (oldestIP == "" || times[0].Before(oldestTime)) {
				oldestIP = ip
				oldestTime = times[0]
			}
		}
		if oldestIP != "" {
			delete(l.failures, oldestIP)
		}
	}

	l.failures[host] = append(l.failures[host], time.Now())
}
