package domain

// SessionState is the per-turn processing state of a device session.
type SessionState string

const (
	StateIdle              SessionState = "idle"
	StateReceivingAudio    SessionState = "receiving_audio"
	StateProcessingASR     SessionState = "processing_asr"
	StateProcessingIntent  SessionState = "processing_intent"
	StateProcessingLLM     SessionState = "processing_llm"
	StateExecutingFunction SessionState = "executing_function"
	StateProcessingSynth   SessionState = "processing_synthesis"
	StateSendingResponse   SessionState = "sending_response"
	StateDisconnecting     SessionState = "disconnecting"
	StateDisconnected      SessionState = "disconnected"
)

// String returns the wire form of the state.
func (s SessionState) String() string { return string(s) }

// Terminal reports whether the session has left the turn state machine
// and will never process another input.
func (s SessionState) Terminal() bool {
	return s == StateDisconnecting || s == StateDisconnected
}
