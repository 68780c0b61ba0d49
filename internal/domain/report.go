package domain

import "time"

// Report event types emitted by sessions. Telemetry is best-effort;
// consumers must tolerate missing events.
const (
	ReportSessionStart  = "session_start"
	ReportSessionEnd    = "session_end"
	ReportStateChange   = "state_change"
	ReportTurnStarted   = "turn_started"
	ReportASRCompleted  = "asr_completed"
	ReportTurnCompleted = "turn_completed"
	ReportTurnAborted   = "turn_aborted"
	ReportTurnFailed    = "turn_failed"
)

// ReportEvent is one fire-and-forget telemetry record. Immutable and
// owned by the report batcher until flushed.
type ReportEvent struct {
	DeviceID  string         `json:"deviceId"`
	SessionID string         `json:"sessionId,omitempty"`
	EventType string         `json:"eventType"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
