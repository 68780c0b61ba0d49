package capability

import (
	"context"
	"errors"
	"strings"

	"github.com/soyeahso/vox/internal/domain"
)

// ErrNoBackend marks a capability with no external service configured.
var ErrNoBackend = errors.New("capability: no backend configured")

// DevTranscriber always fails, so audio turns surface the spoken fallback
// until a real ASR backend is wired. Text input works regardless.
type DevTranscriber struct{}

func (DevTranscriber) Transcribe(context.Context, []byte) (string, error) {
	return "", ErrNoBackend
}

// KeywordRule maps trigger words in a user utterance to a registered
// function.
type KeywordRule struct {
	Keywords []string
	Function string
}

// KeywordIntent is a rule-based IntentDetector: an utterance containing
// any keyword of a rule resolves to that rule's function, everything else
// is chat. Good enough for a development setup without an NLU backend.
type KeywordIntent struct {
	Rules []KeywordRule
}

// DefaultKeywordRules covers the builtin device functions.
func DefaultKeywordRules() []KeywordRule {
	return []KeywordRule{
		{Keywords: []string{"play music", "put on a song", "some music"}, Function: "play_music"},
		{Keywords: []string{"weather", "forecast"}, Function: "get_weather"},
		{Keywords: []string{"remind me", "reminder"}, Function: "set_reminder"},
		{Keywords: []string{"light"}, Function: "control_light"},
		{Keywords: []string{"air conditioning", "air conditioner"}, Function: "control_ac"},
		{Keywords: []string{"tell me a story", "a story"}, Function: "play_story"},
		{Keywords: []string{"what time", "the time"}, Function: "get_time"},
	}
}

func (k *KeywordIntent) DetectIntent(_ context.Context, text string, _ []domain.Message) (domain.IntentResult, error) {
	lower := strings.ToLower(text)
	for _, rule := range k.Rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(lower, kw) {
				return domain.IntentResult{
					Type:         "function_call",
					FunctionName: rule.Function,
					Arguments:    map[string]any{"text": text},
					Confidence:   0.9,
				}, nil
			}
		}
	}
	return domain.IntentResult{Type: domain.IntentChat, Confidence: 0.5}, nil
}

// EchoResponder is a development Responder that reflects the user's last
// message back. Replaced by a real language model backend in deployments.
type EchoResponder struct{}

func (EchoResponder) GenerateResponse(_ context.Context, _ domain.IntentResult, history []domain.Message) (string, error) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == domain.RoleUser {
			return "You said: " + history[i].Content, nil
		}
	}
	return "I'm listening.", nil
}

// TextSynthesizer renders speech as plain UTF-8 bytes, for clients that
// display responses instead of playing audio.
type TextSynthesizer struct{}

func (TextSynthesizer) Synthesize(_ context.Context, text string) ([]byte, error) {
	return []byte(text), nil
}

// NewDevSet returns a self-contained capability set with no external
// service dependencies: RMS energy VAD, keyword intent routing, echo
// responses, and text-rendered speech. ASR is unavailable.
func NewDevSet(functions FunctionExecutor) Set {
	return Set{
		VAD:       NewRMSVAD(),
		ASR:       DevTranscriber{},
		Intent:    &KeywordIntent{Rules: DefaultKeywordRules()},
		LLM:       EchoResponder{},
		TTS:       TextSynthesizer{},
		Functions: functions,
	}
}
