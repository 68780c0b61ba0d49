package capability

import (
	"context"
	"fmt"

	"github.com/soyeahso/vox/internal/domain"
)

// MockVAD is a test double for VoiceDetector.
type MockVAD struct {
	DetectFunc func(ctx context.Context, frame []byte) (bool, error)
}

func (m *MockVAD) DetectVoiceActivity(ctx context.Context, frame []byte) (bool, error) {
	if m.DetectFunc != nil {
		return m.DetectFunc(ctx, frame)
	}
	// Crude default: anything bigger than a silence frame is voice.
	return len(frame) > 100, nil
}

// MockASR is a test double for Transcriber.
type MockASR struct {
	TranscribeFunc func(ctx context.Context, audio []byte) (string, error)
}

func (m *MockASR) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if m.TranscribeFunc != nil {
		return m.TranscribeFunc(ctx, audio)
	}
	return "hello there", nil
}

// MockIntent is a test double for IntentDetector.
type MockIntent struct {
	DetectFunc func(ctx context.Context, text string, history []domain.Message) (domain.IntentResult, error)
}

func (m *MockIntent) DetectIntent(ctx context.Context, text string, history []domain.Message) (domain.IntentResult, error) {
	if m.DetectFunc != nil {
		return m.DetectFunc(ctx, text, history)
	}
	return domain.IntentResult{Type: domain.IntentChat, Confidence: 0.8}, nil
}

// MockLLM is a test double for Responder.
type MockLLM struct {
	GenerateFunc func(ctx context.Context, intent domain.IntentResult, history []domain.Message) (string, error)
}

func (m *MockLLM) GenerateResponse(ctx context.Context, intent domain.IntentResult, history []domain.Message) (string, error) {
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, intent, history)
	}
	return "mock response", nil
}

// MockTTS is a test double for Synthesizer.
type MockTTS struct {
	SynthesizeFunc func(ctx context.Context, text string) ([]byte, error)
}

func (m *MockTTS) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if m.SynthesizeFunc != nil {
		return m.SynthesizeFunc(ctx, text)
	}
	return []byte(fmt.Sprintf("<tts:%s>", text)), nil
}

// MockFunctions is a test double for FunctionExecutor.
type MockFunctions struct {
	ExecuteFunc func(ctx context.Context, name string, args map[string]any) (string, error)
}

func (m *MockFunctions) ExecuteFunction(ctx context.Context, name string, args map[string]any) (string, error) {
	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, name, args)
	}
	return "done", nil
}

// NewMockSet returns a Set wired entirely with defaults. Tests override
// individual func fields per scenario.
func NewMockSet() Set {
	return Set{
		VAD:       &MockVAD{},
		ASR:       &MockASR{},
		Intent:    &MockIntent{},
		LLM:       &MockLLM{},
		TTS:       &MockTTS{},
		Functions: &MockFunctions{},
	}
}
