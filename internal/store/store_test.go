package store

import (
	"testing"
	"time"

	"github.com/soyeahso/vox/internal/domain"
	"github.com/soyeahso/vox/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	log := logging.New(nil, "silent")
	db, err := Open(":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// --- DB/Migration tests ---

func TestOpen_InMemory(t *testing.T) {
	db := testDB(t)
	assert.NotNil(t, db)
	assert.NotNil(t, db.SQL())
}

func TestMigrations_Applied(t *testing.T) {
	db := testDB(t)

	var count int
	err := db.sql.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), count)
}

func TestMigrations_Idempotent(t *testing.T) {
	db := testDB(t)

	// Running migrate again should be a no-op
	err := db.migrate()
	require.NoError(t, err)

	var count int
	err = db.sql.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), count)
}

func TestSchema_TablesExist(t *testing.T) {
	db := testDB(t)

	tables := []string{"devices", "conversation_messages"}
	for _, table := range tables {
		var name string
		err := db.sql.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

// --- History store tests ---

func history(contents ...string) []domain.Message {
	msgs := make([]domain.Message, 0, len(contents))
	for i, c := range contents {
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleAssistant
		}
		msgs = append(msgs, domain.Message{Role: role, Content: c, Timestamp: time.Now()})
	}
	return msgs
}

func TestHistoryStore_SaveAndRecent(t *testing.T) {
	hs := NewHistoryStore(testDB(t))

	err := hs.SaveHistory("esp32-01", "sess-1", history("hello", "hi there", "play music", "sure"))
	require.NoError(t, err)

	msgs, err := hs.Recent("esp32-01", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, domain.RoleUser, msgs[0].Role)
	assert.Equal(t, "sure", msgs[3].Content)
	assert.Equal(t, domain.RoleAssistant, msgs[3].Role)
}

func TestHistoryStore_RecentLimit_ReturnsLatest(t *testing.T) {
	hs := NewHistoryStore(testDB(t))

	require.NoError(t, hs.SaveHistory("esp32-01", "sess-1", history("one", "two", "three", "four")))

	msgs, err := hs.Recent("esp32-01", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	// Latest two, still in chronological order.
	assert.Equal(t, "three", msgs[0].Content)
	assert.Equal(t, "four", msgs[1].Content)
}

func TestHistoryStore_Recent_UnknownDevice(t *testing.T) {
	hs := NewHistoryStore(testDB(t))

	msgs, err := hs.Recent("ghost", 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestHistoryStore_MultipleSessions_AccumulateAndCountDevice(t *testing.T) {
	hs := NewHistoryStore(testDB(t))

	require.NoError(t, hs.SaveHistory("esp32-01", "sess-1", history("a", "b")))
	require.NoError(t, hs.SaveHistory("esp32-01", "sess-2", history("c", "d")))
	require.NoError(t, hs.SaveHistory("esp32-02", "sess-3", history("e")))

	msgs, err := hs.Recent("esp32-01", 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 4)

	n, err := hs.DeviceCount()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var sessions int
	require.NoError(t, hs.db.sql.QueryRow(
		`SELECT sessions FROM devices WHERE device_id = ?`, "esp32-01",
	).Scan(&sessions))
	assert.Equal(t, 2, sessions)
}

func TestHistoryStore_EmptyHistory(t *testing.T) {
	hs := NewHistoryStore(testDB(t))

	// Teardown of a session with no turns still records the device.
	require.NoError(t, hs.SaveHistory("esp32-01", "sess-1", nil))

	n, err := hs.DeviceCount()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
