package domain

import "time"

// AudioFrame is one raw audio chunk received from a device. The HasVoice
// flag is set by the voice-activity gate, never by the transport.
type AudioFrame struct {
	Data       []byte
	ReceivedAt time.Time
	HasVoice   bool
}

// Utterance is a sealed span of voice-active audio: the concatenated
// payloads of every frame between a voice-start and voice-end transition.
// Immutable once sealed.
type Utterance struct {
	Data     []byte
	Frames   int
	OpenedAt time.Time
	SealedAt time.Time

	// Forced is true when the utterance was sealed by the max-duration
	// guard rather than a silence transition.
	Forced bool
}

// Duration returns the wall-clock span the utterance was open.
func (u Utterance) Duration() time.Duration {
	return u.SealedAt.Sub(u.OpenedAt)
}
