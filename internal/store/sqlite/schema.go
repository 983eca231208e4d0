package sqlite

// schema is applied on every open; statements are idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	avatar        TEXT NOT NULL DEFAULT '',
	verified      BOOLEAN NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS private_messages (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	sender_id   INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	receiver_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	body        TEXT,
	file_url    TEXT,
	reply_to    INTEGER,
	is_read     BOOLEAN NOT NULL DEFAULT 0,
	edited      BOOLEAN NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_private_messages_sender   ON private_messages(sender_id);
CREATE INDEX IF NOT EXISTS idx_private_messages_receiver ON private_messages(receiver_id);
CREATE INDEX IF NOT EXISTS idx_private_messages_unread   ON private_messages(receiver_id, is_read);

CREATE TABLE IF NOT EXISTS message_votes (
	user_id    INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	message_id INTEGER NOT NULL REFERENCES private_messages(id) ON DELETE CASCADE,
	dir        INTEGER NOT NULL CHECK (dir <= 1),
	PRIMARY KEY (user_id, message_id)
);
`
