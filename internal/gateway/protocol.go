package gateway

import "encoding/json"

// Message types on the device WebSocket. JSON text frames carry control
// messages; binary frames carry raw audio.
const (
	TypeHello   = "hello"
	TypeListen  = "listen"
	TypeAbort   = "abort"
	TypeGoodbye = "goodbye"

	TypeSTT   = "stt"
	TypeTTS   = "tts"
	TypeError = "error"
)

// Listen states sent by the device.
const (
	ListenStart  = "start"
	ListenStop   = "stop"
	ListenDetect = "detect" // carries typed or wake-word text in Text
)

// ClientMessage is any JSON control message from a device.
type ClientMessage struct {
	Type     string `json:"type"`
	DeviceID string `json:"device_id,omitempty"`
	Token    string `json:"token,omitempty"`
	State    string `json:"state,omitempty"`
	Text     string `json:"text,omitempty"`

	AudioParams *AudioParams `json:"audio_params,omitempty"`
}

// AudioParams describes the device's audio stream, advertised in hello.
type AudioParams struct {
	Format          string `json:"format,omitempty"`
	SampleRate      int    `json:"sample_rate,omitempty"`
	Channels        int    `json:"channels,omitempty"`
	FrameDurationMs int    `json:"frame_duration,omitempty"`
}

// ServerMessage is any JSON control message to a device.
type ServerMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Transport string `json:"transport,omitempty"`
	Text      string `json:"text,omitempty"`
	State     string `json:"state,omitempty"`
	Message   string `json:"message,omitempty"`
}

// ParseClientMessage decodes one JSON control frame.
func ParseClientMessage(data []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ClientMessage{}, err
	}
	return msg, nil
}

// HelloAck is the server's reply to a successful hello handshake.
func HelloAck(sessionID string) ServerMessage {
	return ServerMessage{
		Type:      TypeHello,
		SessionID: sessionID,
		Transport: "websocket",
	}
}

// ErrorMessage builds an error control frame.
func ErrorMessage(message string) ServerMessage {
	return ServerMessage{Type: TypeError, Message: message}
}
