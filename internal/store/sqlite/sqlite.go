package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/privchat/privchat-server/internal/store"
)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and ensures the schema exists.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// NewWithSetup creates a new SQLite store and runs a setup function after the
// schema is applied. Useful for tests to seed fixture rows.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	s, err := New(dbPath)
	if err != nil {
		return nil, err
	}

	if setup != nil {
		if err := setup(s.db); err != nil {
			s.db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

const userColumns = `id, username, password_hash, avatar, verified, created_at`

// CreateUser creates a new user with hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, passwordHash, avatar string) (*store.User, error) {
	query := `
		INSERT INTO users (username, password_hash, avatar)
		VALUES (?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, username, passwordHash, avatar)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	return s.scanUser(s.db.QueryRowContext(ctx, query, id))
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = ?`
	return s.scanUser(s.db.QueryRowContext(ctx, query, username))
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*store.User, error) {
	var user store.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.Avatar,
		&user.Verified,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &user, nil
}

// SearchUsers searches for users by username substring.
func (s *SQLiteStore) SearchUsers(ctx context.Context, query string) ([]*store.User, error) {
	sqlQuery := `
		SELECT ` + userColumns + `
		FROM users
		WHERE username LIKE ?
		ORDER BY username ASC
		LIMIT 50
	`
	rows, err := s.db.QueryContext(ctx, sqlQuery, "%"+query+"%")
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []*store.User
	for rows.Next() {
		var user store.User
		if err := rows.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Avatar, &user.Verified, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, &user)
	}

	return users, rows.Err()
}

// ==== MessageStore implementation ====

// InsertMessage persists a new message and fills in its ID and CreatedAt.
func (s *SQLiteStore) InsertMessage(ctx context.Context, msg *store.Message) error {
	query := `
		INSERT INTO private_messages (sender_id, receiver_id, body, file_url, reply_to, is_read, edited)
		VALUES (?, ?, ?, ?, ?, ?, 0)
	`
	result, err := s.db.ExecContext(ctx, query,
		msg.SenderID,
		msg.ReceiverID,
		msg.Body,
		msg.FileURL,
		msg.ReplyTo,
		msg.IsRead,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	msg.ID = id

	// Read back the server-assigned timestamp.
	row := s.db.QueryRowContext(ctx, `SELECT created_at FROM private_messages WHERE id = ?`, id)
	if err := row.Scan(&msg.CreatedAt); err != nil {
		return fmt.Errorf("read created_at: %w", err)
	}

	return nil
}

// UpdateMessageBody overwrites the body of a message owned by senderID and
// sets its edited flag.
func (s *SQLiteStore) UpdateMessageBody(ctx context.Context, id, senderID int64, body string) error {
	query := `
		UPDATE private_messages
		SET body = ?, edited = 1
		WHERE id = ? AND sender_id = ?
	`
	result, err := s.db.ExecContext(ctx, query, body, id, senderID)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("message %d: %w", id, store.ErrNotFound)
	}
	return nil
}

// DeleteMessage hard-deletes a message owned by senderID.
func (s *SQLiteStore) DeleteMessage(ctx context.Context, id, senderID int64) error {
	query := `DELETE FROM private_messages WHERE id = ? AND sender_id = ?`
	result, err := s.db.ExecContext(ctx, query, id, senderID)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("message %d: %w", id, store.ErrNotFound)
	}
	return nil
}

// MarkRead sets the read flag on all messages sent by peerID to userID.
func (s *SQLiteStore) MarkRead(ctx context.Context, userID, peerID int64, read bool) error {
	query := `
		UPDATE private_messages
		SET is_read = ?
		WHERE receiver_id = ? AND sender_id = ? AND is_read = ?
	`
	_, err := s.db.ExecContext(ctx, query, read, userID, peerID, !read)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

// History returns the full conversation between two users ordered by message
// id ascending, joined with sender profiles and aggregate vote scores.
func (s *SQLiteStore) History(ctx context.Context, userA, userB int64) ([]*store.HistoryRow, error) {
	query := `
		SELECT m.id, m.sender_id, m.receiver_id, m.body, m.file_url, m.reply_to,
		       m.is_read, m.edited, m.created_at,
		       u.id, u.username, u.avatar, u.verified, u.created_at,
		       COALESCE(SUM(v.dir), 0) AS vote
		FROM private_messages m
		JOIN users u ON u.id = m.sender_id
		LEFT JOIN message_votes v ON v.message_id = m.id
		WHERE (m.sender_id = ? AND m.receiver_id = ?)
		   OR (m.sender_id = ? AND m.receiver_id = ?)
		GROUP BY m.id, u.id
		ORDER BY m.id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, userA, userB, userB, userA)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var history []*store.HistoryRow
	for rows.Next() {
		var hr store.HistoryRow
		var body, fileURL sql.NullString
		var replyTo sql.NullInt64
		if err := rows.Scan(
			&hr.Message.ID,
			&hr.Message.SenderID,
			&hr.Message.ReceiverID,
			&body,
			&fileURL,
			&replyTo,
			&hr.Message.IsRead,
			&hr.Message.Edited,
			&hr.Message.CreatedAt,
			&hr.Sender.ID,
			&hr.Sender.Username,
			&hr.Sender.Avatar,
			&hr.Sender.Verified,
			&hr.Sender.CreatedAt,
			&hr.Vote,
		); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		if body.Valid {
			hr.Message.Body = &body.String
		}
		if fileURL.Valid {
			hr.Message.FileURL = &fileURL.String
		}
		if replyTo.Valid {
			hr.Message.ReplyTo = &replyTo.Int64
		}
		history = append(history, &hr)
	}

	return history, rows.Err()
}

// FindMessage retrieves a message by id.
func (s *SQLiteStore) FindMessage(ctx context.Context, id int64) (*store.Message, error) {
	query := `
		SELECT id, sender_id, receiver_id, body, file_url, reply_to, is_read, edited, created_at
		FROM private_messages
		WHERE id = ?
	`
	msg, err := scanMessage(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query message: %w", err)
	}
	return msg, nil
}

// ListUnread returns unread messages addressed to userID, oldest first.
func (s *SQLiteStore) ListUnread(ctx context.Context, userID int64) ([]*store.Message, error) {
	query := `
		SELECT id, sender_id, receiver_id, body, file_url, reply_to, is_read, edited, created_at
		FROM private_messages
		WHERE receiver_id = ? AND is_read = 0
		ORDER BY id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query unread: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*store.Message, error) {
	var msg store.Message
	var body, fileURL sql.NullString
	var replyTo sql.NullInt64
	err := row.Scan(
		&msg.ID,
		&msg.SenderID,
		&msg.ReceiverID,
		&body,
		&fileURL,
		&replyTo,
		&msg.IsRead,
		&msg.Edited,
		&msg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if body.Valid {
		msg.Body = &body.String
	}
	if fileURL.Valid {
		msg.FileURL = &fileURL.String
	}
	if replyTo.Valid {
		msg.ReplyTo = &replyTo.Int64
	}
	return &msg, nil
}

// ==== VoteStore implementation ====

// InsertVote records a vote for (userID, messageID).
func (s *SQLiteStore) InsertVote(ctx context.Context, userID, messageID int64, dir int) error {
	query := `
		INSERT INTO message_votes (user_id, message_id, dir)
		VALUES (?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, userID, messageID, dir); err != nil {
		return fmt.Errorf("insert vote: %w", err)
	}
	return nil
}

// DeleteVote removes the vote for (userID, messageID), if any.
func (s *SQLiteStore) DeleteVote(ctx context.Context, userID, messageID int64) error {
	query := `DELETE FROM message_votes WHERE user_id = ? AND message_id = ?`
	if _, err := s.db.ExecContext(ctx, query, userID, messageID); err != nil {
		return fmt.Errorf("delete vote: %w", err)
	}
	return nil
}

// FindVote retrieves the vote for (userID, messageID).
func (s *SQLiteStore) FindVote(ctx context.Context, userID, messageID int64) (*store.Vote, error) {
	query := `SELECT user_id, message_id, dir FROM message_votes WHERE user_id = ? AND message_id = ?`
	var vote store.Vote
	err := s.db.QueryRowContext(ctx, query, userID, messageID).Scan(&vote.UserID, &vote.MessageID, &vote.Dir)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("vote: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query vote: %w", err)
	}
	return &vote, nil
}

// Ensure SQLiteStore implements store.Store
var _ store.Store = (*SQLiteStore)(nil)
