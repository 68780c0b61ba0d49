package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionState_Terminal(t *testing.T) {
	assert.False(t, StateIdle.Terminal())
	assert.False(t, StateProcessingLLM.Terminal())
	assert.False(t, StateSendingResponse.Terminal())
	assert.True(t, StateDisconnecting.Terminal())
	assert.True(t, StateDisconnected.Terminal())
}

func TestIntentResult_IsChat(t *testing.T) {
	assert.True(t, IntentResult{Type: IntentChat}.IsChat())
	assert.True(t, IntentResult{}.IsChat(), "unclassified intents fall back to chat")
	assert.False(t, IntentResult{Type: "play_music", FunctionName: "play_music"}.IsChat())
}

func TestUtterance_Duration(t *testing.T) {
	opened := time.Now()
	u := Utterance{
		Data:     []byte("abc"),
		Frames:   3,
		OpenedAt: opened,
		SealedAt: opened.Add(1200 * time.Millisecond),
	}
	assert.Equal(t, 1200*time.Millisecond, u.Duration())
}
