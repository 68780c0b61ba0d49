package gateway

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/soyeahso/vox/internal/logging"
)

// ErrConnClosed is returned when writing to a closed device connection.
var ErrConnClosed = errors.New("gateway: connection closed")

const writeTimeout = 10 * time.Second

// DeviceConn wraps one device's WebSocket. It serializes writes and
// implements the session's outbound transport: JSON text frames for
// control events, binary frames for synthesized audio.
type DeviceConn struct {
	DeviceID    string
	RemoteAddr  string
	ConnectedAt time.Time

	mu     sync.Mutex
	socket *websocket.Conn
	closed bool
	log    *logging.Logger
}

// NewDeviceConn wraps an upgraded, authenticated socket.
func NewDeviceConn(conn *websocket.Conn, deviceID string, log *logging.Logger) *DeviceConn {
	return &DeviceConn{
		DeviceID:    deviceID,
		RemoteAddr:  conn.RemoteAddr().String(),
		ConnectedAt: time.Now(),
		socket:      conn,
		log:         log.With("deviceId", deviceID),
	}
}

// SendAudio sends synthesized speech as one binary frame.
func (c *DeviceConn) SendAudio(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	c.socket.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.socket.WriteMessage(websocket.BinaryMessage, data)
}

// SendEvent sends a typed control event, e.g. the recognized-text echo.
func (c *DeviceConn) SendEvent(eventType, text string) error {
	return c.SendMessage(ServerMessage{Type: eventType, Text: text})
}

// SendMessage sends one JSON control frame.
func (c *DeviceConn) SendMessage(msg ServerMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	c.socket.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.socket.WriteJSON(msg)
}

// ReadMessage reads the next frame. The bool reports a binary frame.
func (c *DeviceConn) ReadMessage() ([]byte, bool, error) {
	msgType, data, err := c.socket.ReadMessage()
	if err != nil {
		return nil, false, err
	}
	return data, msgType == websocket.BinaryMessage, nil
}

// Close closes the socket. Idempotent.
func (c *DeviceConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.socket.Close()
}
