package store

import (
	"fmt"
	"time"

	"github.com/soyeahso/vox/internal/domain"
)

// HistoryStore persists per-device conversation history. SaveHistory is
// invoked once at session teardown; Recent primes a new session's context
// with the device's latest turns.
type HistoryStore struct {
	db *DB
}

// NewHistoryStore creates a history store using the given database.
func NewHistoryStore(db *DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// SaveHistory appends a session's conversation history for a device.
// The device row is upserted so the first session of a device works.
func (s *HistoryStore) SaveHistory(deviceID, sessionID string, history []domain.Message) error {
	tx, err := s.db.sql.Begin()
	if err != nil {
		return fmt.Errorf("begin save history: %w", err)
	}

	if _, err := tx.Exec(
		`INSERT INTO devices (device_id, sessions) VALUES (?, 1)
		 ON CONFLICT(device_id) DO UPDATE SET
		   last_seen = datetime('now'),
		   sessions = sessions + 1`,
		deviceID,
	); err != nil {
		tx.Rollback()
		return fmt.Errorf("upserting device %s: %w", deviceID, err)
	}

	for _, msg := range history {
		ts := msg.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		if _, err := tx.Exec(
			`INSERT INTO conversation_messages (device_id, session_id, role, content, timestamp)
			 VALUES (?, ?, ?, ?, ?)`,
			deviceID, sessionID, msg.Role, msg.Content, ts.UTC().Format(time.DateTime),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("inserting message for %s: %w", deviceID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save history: %w", err)
	}

	s.db.log.Debug().
		Str("deviceId", deviceID).
		Str("sessionId", sessionID).
		Int("messages", len(history)).
		Msg("history saved")
	return nil
}

// Recent returns the device's latest limit messages in chronological order.
func (s *HistoryStore) Recent(deviceID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.sql.Query(
		`SELECT role, content, timestamp FROM (
		   SELECT id, role, content, timestamp
		   FROM conversation_messages WHERE device_id = ?
		   ORDER BY id DESC LIMIT ?
		 ) ORDER BY id`,
		deviceID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying history for %s: %w", deviceID, err)
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		var m domain.Message
		var ts string
		if err := rows.Scan(&m.Role, &m.Content, &ts); err != nil {
			continue
		}
		m.Timestamp, _ = time.Parse(time.DateTime, ts)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// DeviceCount returns the number of devices ever seen.
func (s *HistoryStore) DeviceCount() (int, error) {
	var n int
	err := s.db.sql.QueryRow(`SELECT COUNT(*) FROM devices`).Scan(&n)
	return n, err
}
