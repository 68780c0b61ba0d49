package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/vox/internal/capability"
)

func testRegistry() *Registry {
	return NewRegistry(testLogger())
}

func createSession(t *testing.T, r *Registry, deviceID string) *Session {
	t.Helper()
	s, err := r.Create(Config{DeviceID: deviceID}, Deps{
		Caps: capability.NewMockSet(),
		Out:  &mockSender{},
		Log:  testLogger(),
	})
	require.NoError(t, err)
	return s
}

func TestRegistry_Create_And_Get(t *testing.T) {
	r := testRegistry()
	defer r.ShutdownAll()

	s := createSession(t, r, "esp32-01")
	got, ok := r.Get("esp32-01")
	require.True(t, ok)
	assert.Same(t, s, got)
	assert.Equal(t, 1, r.Count())

	_, ok = r.Get("unknown")
	assert.False(t, ok)
}

func TestRegistry_Create_EvictsExistingSession(t *testing.T) {
	r := testRegistry()
	defer r.ShutdownAll()

	first := createSession(t, r, "esp32-01")
	second := createSession(t, r, "esp32-01")

	// The stale session must be fully torn down before the replacement
	// exists; Create blocks on the old cleanup.
	select {
	case <-first.Closed():
	default:
		t.Fatal("first session still live after reconnect")
	}

	got, ok := r.Get("esp32-01")
	require.True(t, ok)
	assert.Same(t, second, got)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_MultipleDevices(t *testing.T) {
	r := testRegistry()
	defer r.ShutdownAll()

	a := createSession(t, r, "esp32-01")
	b := createSession(t, r, "esp32-02")

	assert.Equal(t, 2, r.Count())
	assert.NotEqual(t, a.ID, b.ID)
}

func TestRegistry_Remove(t *testing.T) {
	r := testRegistry()
	defer r.ShutdownAll()

	s := createSession(t, r, "esp32-01")
	r.Remove("esp32-01")

	select {
	case <-s.Closed():
	case <-time.After(5 * time.Second):
		t.Fatal("removed session was not closed")
	}
	assert.Equal(t, 0, r.Count())

	// Safe for unknown devices.
	r.Remove("esp32-01")
	r.Remove("never-seen")
}

func TestRegistry_SelfCloseRemovesEntry(t *testing.T) {
	r := testRegistry()
	defer r.ShutdownAll()

	s := createSession(t, r, "esp32-01")
	s.Close()

	assert.Equal(t, 0, r.Count())
	_, ok := r.Get("esp32-01")
	assert.False(t, ok)
}

func TestRegistry_ConcurrentReconnect_NoStaleEntries(t *testing.T) {
	r := testRegistry()
	defer r.ShutdownAll()

	// Sessions close concurrently with reconnects; self-removal must
	// always see its own identity and never evict a successor.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				s, err := r.Create(Config{DeviceID: "esp32-01"}, Deps{
					Caps: capability.NewMockSet(),
					Out:  &mockSender{},
					Log:  testLogger(),
				})
				if err != nil {
					continue
				}
				s.Close()
			}
		}()
	}
	wg.Wait()

	waitFor(t, 2*time.Second, func() bool { return r.Count() == 0 }, "all sessions removed")
}

func TestRegistry_ShutdownAll(t *testing.T) {
	r := testRegistry()

	a := createSession(t, r, "esp32-01")
	b := createSession(t, r, "esp32-02")
	c := createSession(t, r, "esp32-03")

	r.ShutdownAll()

	for _, s := range []*Session{a, b, c} {
		select {
		case <-s.Closed():
		default:
			t.Fatalf("session %s still live after shutdown", s.DeviceID)
		}
	}
	assert.Equal(t, 0, r.Count())

	_, err := r.Create(Config{DeviceID: "esp32-04"}, Deps{
		Caps: capability.NewMockSet(),
		Out:  &mockSender{},
		Log:  testLogger(),
	})
	assert.ErrorIs(t, err, ErrRegistryClosed)
}

func TestRegistry_OnCloseCallback(t *testing.T) {
	r := testRegistry()
	defer r.ShutdownAll()

	closed := make(chan string, 1)
	s, err := r.Create(Config{DeviceID: "esp32-01"}, Deps{
		Caps:    capability.NewMockSet(),
		Out:     &mockSender{},
		Log:     testLogger(),
		OnClose: func(deviceID string) { closed <- deviceID },
	})
	require.NoError(t, err)

	s.Close()

	select {
	case id := <-closed:
		assert.Equal(t, "esp32-01", id)
	case <-time.After(5 * time.Second):
		t.Fatal("OnClose callback never ran")
	}
}
