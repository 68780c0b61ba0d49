package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create devices and conversation history",
		SQL: `
			CREATE TABLE devices (
				device_id   TEXT PRIMARY KEY,
				first_seen  TEXT NOT NULL DEFAULT (datetime('now')),
				last_seen   TEXT NOT NULL DEFAULT (datetime('now')),
				sessions    INTEGER NOT NULL DEFAULT 0
			);

			CREATE TABLE conversation_messages (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				device_id   TEXT NOT NULL REFERENCES devices(device_id) ON DELETE CASCADE,
				session_id  TEXT NOT NULL,
				role        TEXT NOT NULL,
				content     TEXT NOT NULL,
				timestamp   TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_messages_device ON conversation_messages (device_id, id);
			CREATE INDEX idx_messages_session ON conversation_messages (session_id);
		`,
	},
}
