package report

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/soyeahso/vox/internal/domain"
	"github.com/soyeahso/vox/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	mu      sync.Mutex
	batches [][]domain.ReportEvent
	err     error
}

func (s *captureSink) Flush(_ context.Context, batch []domain.ReportEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	cp := make([]domain.ReportEvent, len(batch))
	copy(cp, batch)
	s.batches = append(s.batches, cp)
	return nil
}

func (s *captureSink) snapshot() [][]domain.ReportEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]domain.ReportEvent, len(s.batches))
	copy(out, s.batches)
	return out
}

func testLogger() *logging.Logger { return logging.New(nil, "silent") }

func event(dev, typ string) domain.ReportEvent {
	return domain.ReportEvent{DeviceID: dev, EventType: typ, Timestamp: time.Now()}
}

func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached")
}

func TestBatcher_SizeTriggeredFlush(t *testing.T) {
	sink := &captureSink{}
	b := NewBatcher(BatcherConfig{BatchSize: 3, BatchTimeout: time.Minute}, sink, nil, testLogger())
	defer b.Stop()

	b.Submit(event("dev-1", "a"))
	b.Submit(event("dev-1", "b"))
	b.Submit(event("dev-1", "c"))

	waitFor(t, 2*time.Second, func() bool { return len(sink.snapshot()) == 1 })
	batches := sink.snapshot()
	require.Len(t, batches[0], 3)
	assert.Equal(t, "a", batches[0][0].EventType)
}

func TestBatcher_TimeTriggeredFlush(t *testing.T) {
	sink := &captureSink{}
	b := NewBatcher(BatcherConfig{BatchSize: 100, BatchTimeout: 150 * time.Millisecond}, sink, nil, testLogger())
	defer b.Stop()

	b.Submit(event("dev-1", "lonely"))

	waitFor(t, 2*time.Second, func() bool { return len(sink.snapshot()) == 1 })
	batches := sink.snapshot()
	require.Len(t, batches[0], 1)
	assert.Equal(t, "lonely", batches[0][0].EventType)
}

func TestBatcher_StopFlushesPartialBatch(t *testing.T) {
	sink := &captureSink{}
	b := NewBatcher(BatcherConfig{BatchSize: 100, BatchTimeout: time.Minute}, sink, nil, testLogger())

	b.Submit(event("dev-1", "x"))
	b.Submit(event("dev-1", "y"))
	b.Stop()

	batches := sink.snapshot()
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 2)
}

func TestBatcher_SinkFailureDropsBatch(t *testing.T) {
	sink := &captureSink{err: errors.New("sink down")}
	b := NewBatcher(BatcherConfig{BatchSize: 1, BatchTimeout: time.Minute}, sink, nil, testLogger())
	defer b.Stop()

	// Failure is logged and swallowed; the batcher keeps running.
	b.Submit(event("dev-1", "a"))
	time.Sleep(100 * time.Millisecond)

	sink.mu.Lock()
	sink.err = nil
	sink.mu.Unlock()

	b.Submit(event("dev-1", "b"))
	waitFor(t, 2*time.Second, func() bool { return len(sink.snapshot()) == 1 })
	assert.Equal(t, "b", sink.snapshot()[0][0].EventType)
}

func TestBatcher_SubmitAfterStopIsNoop(t *testing.T) {
	sink := &captureSink{}
	b := NewBatcher(BatcherConfig{BatchSize: 1, BatchTimeout: time.Minute}, sink, nil, testLogger())
	b.Stop()

	b.Submit(event("dev-1", "late"))
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, sink.snapshot())
}

func TestBatcher_TimestampDefaulted(t *testing.T) {
	sink := &captureSink{}
	b := NewBatcher(BatcherConfig{BatchSize: 1, BatchTimeout: time.Minute}, sink, nil, testLogger())
	defer b.Stop()

	b.Submit(domain.ReportEvent{DeviceID: "dev-1", EventType: "no-ts"})
	waitFor(t, 2*time.Second, func() bool { return len(sink.snapshot()) == 1 })
	assert.False(t, sink.snapshot()[0][0].Timestamp.IsZero())
}
