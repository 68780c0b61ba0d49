// Package capability defines the seams to the external AI models the
// pipeline invokes. Each capability may be slow or asynchronous and may
// fail; the pipeline treats them as black boxes with a timeout and an
// error return. Handles are injected into each session at construction so
// tests substitute fakes and deployments swap providers per device.
package capability

import (
	"context"

	"github.com/soyeahso/vox/internal/domain"
)

// VoiceDetector classifies a single audio frame as voice or silence.
// Must stay well under the frame arrival rate; sub-50ms per frame.
type VoiceDetector interface {
	DetectVoiceActivity(ctx context.Context, frame []byte) (bool, error)
}

// Transcriber converts a sealed utterance's audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// IntentDetector resolves recognized text into an intent, given the
// session's conversation history for context.
type IntentDetector interface {
	DetectIntent(ctx context.Context, text string, history []domain.Message) (domain.IntentResult, error)
}

// Responder generates a conversational reply for a chat intent.
type Responder interface {
	GenerateResponse(ctx context.Context, intent domain.IntentResult, history []domain.Message) (string, error)
}

// Synthesizer converts reply text into audio bytes for the device.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// FunctionExecutor runs a named device function with arguments.
// Unknown names yield a spoken "not found" result, not an error.
type FunctionExecutor interface {
	ExecuteFunction(ctx context.Context, name string, args map[string]any) (string, error)
}

// Set bundles the capability handles a session's pipeline needs.
type Set struct {
	VAD       VoiceDetector
	ASR       Transcriber
	Intent    IntentDetector
	LLM       Responder
	TTS       Synthesizer
	Functions FunctionExecutor
}
