package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/soyeahso/vox/internal/logging"
)

const (
	// DefaultPollInterval bounds each buffer receive so the stage loop can
	// re-check shutdown between items.
	DefaultPollInterval = 100 * time.Millisecond

	// DefaultCallTimeout is the budget for one external capability call.
	DefaultCallTimeout = 15 * time.Second
)

// StageConfig tunes a stage loop.
type StageConfig struct {
	PollInterval time.Duration
	CallTimeout  time.Duration
}

// Stage is one pipeline step: pull an item from the input buffer, invoke
// an external capability on the shared worker pool, and hand the result
// downstream. The capability may be slow; the stage loop waits for it, but
// the session's control path never runs through a stage.
//
// The Discard hook is consulted before the call starts and again after it
// returns. A turn aborted mid-call completes, but its output is dropped;
// that is the barge-in contract.
type Stage[In, Out any] struct {
	// Name tags log entries and latency observations.
	Name string

	// In is the buffer this stage consumes. Closing it stops the loop.
	In *Buffer[In]

	// Call invokes the external capability. Required.
	Call func(ctx context.Context, item In) (Out, error)

	// Emit delivers a successful result downstream. Required.
	Emit func(item In, out Out)

	// Fail handles a capability error or timeout. A stage failure is never
	// fatal to the session; the hook typically routes a spoken fallback.
	// Optional.
	Fail func(item In, err error)

	// Discard reports whether an item's turn has been aborted. Optional.
	Discard func(item In) bool

	// Observe records call latency and outcome. Optional.
	Observe func(d time.Duration, err error)

	// Pool runs the capability calls. Required.
	Pool *Pool

	Config StageConfig
	Log    *logging.Logger
}

// Run consumes the input buffer until it is closed or ctx is cancelled.
// Intended to be launched as a goroutine per stage.
func (s *Stage[In, Out]) Run(ctx context.Context) {
	poll := s.Config.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}

	for {
		item, err := s.In.Get(poll)
		switch {
		case errors.Is(err, ErrBufferClosed):
			s.Log.Debug().Str("stage", s.Name).Msg("input closed, stage stopping")
			return
		case errors.Is(err, ErrBufferTimeout):
			select {
			case <-ctx.Done():
				return
			default:
				continue
			}
		}

		s.process(ctx, item)
	}
}

type stageResult[Out any] struct {
	out Out
	err error
}

func (s *Stage[In, Out]) process(ctx context.Context, item In) {
	if s.Discard != nil && s.Discard(item) {
		s.Log.Debug().Str("stage", s.Name).Msg("discarding aborted item before call")
		return
	}

	timeout := s.Config.CallTimeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}

	start := time.Now()
	resCh := make(chan stageResult[Out], 1)
	err := s.Pool.Submit(func() {
		cctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		out, err := s.Call(cctx, item)
		resCh <- stageResult[Out]{out: out, err: err}
	})
	if err != nil {
		// Pool is shutting down; treat like a capability failure.
		s.observe(time.Since(start), err)
		s.fail(item, err)
		return
	}

	res := <-resCh
	s.observe(time.Since(start), res.err)

	if res.err != nil {
		s.Log.Warn().Err(res.err).Str("stage", s.Name).Msg("capability call failed")
		s.fail(item, res.err)
		return
	}

	if s.Discard != nil && s.Discard(item) {
		s.Log.Debug().Str("stage", s.Name).Msg("discarding result of aborted item")
		return
	}

	s.Emit(item, res.out)
}

func (s *Stage[In, Out]) fail(item In, err error) {
	if s.Fail != nil {
		s.Fail(item, err)
	}
}

func (s *Stage[In, Out]) observe(d time.Duration, err error) {
	if s.Observe != nil {
		s.Observe(d, err)
	}
}
