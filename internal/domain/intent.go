package domain

// Intent type constants. IntentChat routes a turn to the response
// generator; everything else routes to function execution.
const (
	IntentChat = "chat"
)

// IntentResult is the outcome of intent detection for one recognized
// text. Produced once per turn and never mutated.
type IntentResult struct {
	Type         string         `json:"type"`
	FunctionName string         `json:"functionName,omitempty"`
	Arguments    map[string]any `json:"arguments,omitempty"`
	Confidence   float64        `json:"confidence"`
}

// IsChat reports whether the turn should be answered by the language
// model rather than a registered function.
func (r IntentResult) IsChat() bool {
	return r.Type == IntentChat || r.Type == ""
}
