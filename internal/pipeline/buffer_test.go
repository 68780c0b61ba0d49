package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuffer_PutGet_Order(t *testing.T) {
	b := NewBuffer[int](4)

	require.NoError(t, b.Put(1))
	require.NoError(t, b.Put(2))
	require.NoError(t, b.Put(3))

	for want := 1; want <= 3; want++ {
		v, err := b.Get(time.Second)
		require.NoError(t, err)
		assert.Equal(t, want, v)
	}
}

func TestBuffer_Get_Timeout(t *testing.T) {
	b := NewBuffer[string](1)

	start := time.Now()
	_, err := b.Get(20 * time.Millisecond)
	assert.ErrorIs(t, err, ErrBufferTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestBuffer_TryPut_Full(t *testing.T) {
	b := NewBuffer[int](1)

	require.NoError(t, b.TryPut(1))
	assert.ErrorIs(t, b.TryPut(2), ErrBufferFull)
}

func TestBuffer_PutDropOldest(t *testing.T) {
	b := NewBuffer[int](2)

	require.NoError(t, b.Put(1))
	require.NoError(t, b.Put(2))

	dropped, err := b.PutDropOldest(3)
	require.NoError(t, err)
	assert.Equal(t, 1, dropped)

	// Oldest was evicted; order of survivors preserved.
	v, err := b.Get(time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	v, err = b.Get(time.Second)
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestBuffer_Close_DrainsThenPoisons(t *testing.T) {
	b := NewBuffer[int](4)
	require.NoError(t, b.Put(7))
	b.Close()

	// Queued item survives the close.
	v, err := b.Get(time.Second)
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	// Then the poison signal.
	_, err = b.Get(10 * time.Millisecond)
	assert.ErrorIs(t, err, ErrBufferClosed)

	// Producers are rejected.
	assert.ErrorIs(t, b.Put(8), ErrBufferClosed)
	assert.ErrorIs(t, b.TryPut(8), ErrBufferClosed)
	_, err = b.PutDropOldest(8)
	assert.ErrorIs(t, err, ErrBufferClosed)
}

func TestBuffer_Close_UnblocksWaitingConsumer(t *testing.T) {
	b := NewBuffer[int](1)

	errCh := make(chan error, 1)
	go func() {
		_, err := b.Get(5 * time.Second)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	b.Close()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrBufferClosed)
	case <-time.After(time.Second):
		t.Fatal("consumer was not unblocked by Close")
	}
}

func TestBuffer_Close_Idempotent(t *testing.T) {
	b := NewBuffer[int](1)
	b.Close()
	b.Close()
	assert.True(t, b.Closed())
}
