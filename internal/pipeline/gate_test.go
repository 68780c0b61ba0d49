package pipeline

import (
	"testing"
	"time"

	"github.com/soyeahso/vox/internal/domain"
	"github.com/soyeahso/vox/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logging.Logger {
	return logging.New(nil, "silent")
}

func frameAt(data string, voice bool, at time.Time) domain.AudioFrame {
	return domain.AudioFrame{Data: []byte(data), HasVoice: voice, ReceivedAt: at}
}

func TestGate_VoiceThenSilence_SealsOneUtterance(t *testing.T) {
	g := NewGate(GateConfig{}, testLogger())
	base := time.Now()

	// [T, T, T, F] → exactly one utterance with the three voiced payloads.
	for i, d := range []string{"aa", "bb", "cc"} {
		u, sealed := g.Feed(frameAt(d, true, base.Add(time.Duration(i)*20*time.Millisecond)))
		assert.False(t, sealed)
		assert.Empty(t, u.Data)
	}
	assert.True(t, g.Open())

	u, sealed := g.Feed(frameAt("", false, base.Add(60*time.Millisecond)))
	require.True(t, sealed)
	assert.Equal(t, []byte("aabbcc"), u.Data)
	assert.Equal(t, 3, u.Frames)
	assert.False(t, u.Forced)
	assert.False(t, g.Open())
}

func TestGate_PureSilence_EmitsNothing(t *testing.T) {
	g := NewGate(GateConfig{}, testLogger())
	base := time.Now()

	// [F, F] → zero utterances.
	for i := 0; i < 2; i++ {
		_, sealed := g.Feed(frameAt("xx", false, base.Add(time.Duration(i)*20*time.Millisecond)))
		assert.False(t, sealed)
	}
	assert.False(t, g.Open())
}

func TestGate_MaxDuration_ForceSeals(t *testing.T) {
	g := NewGate(GateConfig{MaxUtterance: 100 * time.Millisecond}, testLogger())
	base := time.Now()

	_, sealed := g.Feed(frameAt("aa", true, base))
	assert.False(t, sealed)

	// Still voiced, but past the max-open guard.
	u, sealed := g.Feed(frameAt("bb", true, base.Add(150*time.Millisecond)))
	require.True(t, sealed)
	assert.True(t, u.Forced)
	assert.Equal(t, []byte("aabb"), u.Data)
	assert.False(t, g.Open())
}

func TestGate_SilenceBetweenUtterances(t *testing.T) {
	g := NewGate(GateConfig{}, testLogger())
	base := time.Now()

	g.Feed(frameAt("one", true, base))
	u1, sealed := g.Feed(frameAt("", false, base.Add(20*time.Millisecond)))
	require.True(t, sealed)
	assert.Equal(t, []byte("one"), u1.Data)

	g.Feed(frameAt("two", true, base.Add(40*time.Millisecond)))
	u2, sealed := g.Feed(frameAt("", false, base.Add(60*time.Millisecond)))
	require.True(t, sealed)
	assert.Equal(t, []byte("two"), u2.Data)
}

func TestGate_Reset_DiscardsBufferedFrames(t *testing.T) {
	g := NewGate(GateConfig{}, testLogger())
	base := time.Now()

	g.Feed(frameAt("aa", true, base))
	require.True(t, g.Open())

	g.Reset()
	assert.False(t, g.Open())

	// The silence after a reset seals nothing.
	_, sealed := g.Feed(frameAt("", false, base.Add(20*time.Millisecond)))
	assert.False(t, sealed)
}
