package recorder

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id    TEXT    NOT NULL,
	seq           INTEGER NOT NULL,
	taken_at      INTEGER NOT NULL,
	position_mm   REAL    NOT NULL,
	velocity_mm_s REAL    NOT NULL,
	moving        INTEGER NOT NULL,
	homed         INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS snapshots_session_seq ON snapshots (session_id, seq);
CREATE INDEX IF NOT EXISTS snapshots_taken_at ON snapshots (taken_at);

CREATE TABLE IF NOT EXISTS state_changes (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT    NOT NULL,
	changed_at INTEGER NOT NULL,
	old_state  TEXT    NOT NULL,
	new_state  TEXT    NOT NULL,
	reason     TEXT    NOT NULL
);
`

const insertSnapshot = `INSERT INTO snapshots (
	session_id, seq, taken_at, position_mm, velocity_mm_s, moving, homed
) VALUES (?, ?, ?, ?, ?, ?, ?)`

const insertStateChange = `INSERT INTO state_changes (
	session_id, changed_at, old_state, new_state, reason
) VALUES (?, ?, ?, ?, ?)`
