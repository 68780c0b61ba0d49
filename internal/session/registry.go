package session

import (
	"errors"
	"sync"

	"github.com/soyeahso/vox/internal/logging"
)

// ErrRegistryClosed is returned by Create after ShutdownAll has run.
var ErrRegistryClosed = errors.New("session: registry closed")

// Registry tracks live sessions and enforces at most one per device. A
// device reconnecting gets a fresh session; the stale one is torn down
// first so its resources never leak.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool

	log *logging.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		log:      log.Sub("registry"),
	}
}

// Create builds, registers, and returns a new session for the device. Any
// existing session for the same device is fully torn down first; Create
// does not return until the old session's cleanup has completed.
func (r *Registry) Create(cfg Config, deps Deps) (*Session, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRegistryClosed
	}
	old := r.sessions[cfg.DeviceID]
	delete(r.sessions, cfg.DeviceID)
	r.mu.Unlock()

	if old != nil {
		r.log.Info().Str("deviceId", cfg.DeviceID).Msg("device reconnected, evicting stale session")
		old.Close()
	}

	// The session removes itself when it closes on its own (idle timeout,
	// goodbye). The identity check keeps a slow self-removal from evicting
	// a successor session. New starts goroutines that can reach OnClose
	// before it returns, so the closure reads its own session under a
	// mutex held across construction.
	callerOnClose := deps.OnClose
	var (
		selfMu sync.Mutex
		self   *Session
	)
	deps.OnClose = func(deviceID string) {
		selfMu.Lock()
		s := self
		selfMu.Unlock()
		r.removeIf(deviceID, s)
		if callerOnClose != nil {
			callerOnClose(deviceID)
		}
	}
	selfMu.Lock()
	s := New(cfg, deps)
	self = s
	selfMu.Unlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		s.Close()
		return nil, ErrRegistryClosed
	}
	r.sessions[cfg.DeviceID] = s
	r.mu.Unlock()
	return s, nil
}

// Get returns the device's live session, if any.
func (r *Registry) Get(deviceID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[deviceID]
	return s, ok
}

// Remove tears down the device's session, if present. Safe to call for
// unknown devices.
func (r *Registry) Remove(deviceID string) {
	r.mu.Lock()
	s := r.sessions[deviceID]
	delete(r.sessions, deviceID)
	r.mu.Unlock()

	if s != nil {
		s.Close()
	}
}

// removeIf drops the map entry only when it still points at the given
// session.
func (r *Registry) removeIf(deviceID string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[deviceID] == s {
		delete(r.sessions, deviceID)
	}
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// ShutdownAll tears down every session concurrently and blocks until all
// cleanups finish. The registry accepts no new sessions afterward.
func (r *Registry) ShutdownAll() {
	r.mu.Lock()
	r.closed = true
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	r.log.Info().Int("sessions", len(all)).Msg("shutting down all sessions")

	var wg sync.WaitGroup
	for _, s := range all {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Close()
		}(s)
	}
	wg.Wait()
}
