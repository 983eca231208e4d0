package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested row does not exist or is not
// visible to the requesting user.
var ErrNotFound = errors.New("not found")

// User represents a user in the system.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Avatar       string
	Verified     bool
	CreatedAt    time.Time
}

// Message represents a persisted private message. Body is stored encrypted;
// decryption happens above the store.
type Message struct {
	ID         int64
	SenderID   int64
	ReceiverID int64
	Body       *string
	FileURL    *string
	ReplyTo    *int64
	IsRead     bool
	Edited     bool
	CreatedAt  time.Time
}

// Vote is a single user's vote on a message. Identity is (UserID, MessageID);
// votes are toggled, never updated in place.
type Vote struct {
	UserID    int64
	MessageID int64
	Dir       int
}

// HistoryRow is one message of a conversation joined against its sender's
// profile and its aggregate vote score.
type HistoryRow struct {
	Message Message
	Sender  User
	Vote    int64
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, username, passwordHash, avatar string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// SearchUsers searches for users by username substring.
	SearchUsers(ctx context.Context, query string) ([]*User, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// InsertMessage persists a new message and fills in its ID and CreatedAt.
	InsertMessage(ctx context.Context, msg *Message) error

	// UpdateMessageBody overwrites the body of a message owned by senderID
	// and sets its edited flag. Returns ErrNotFound when no row matches both
	// the id and the sender.
	UpdateMessageBody(ctx context.Context, id, senderID int64, body string) error

	// DeleteMessage hard-deletes a message owned by senderID. Returns
	// ErrNotFound when no row matches both the id and the sender.
	DeleteMessage(ctx context.Context, id, senderID int64) error

	// MarkRead sets the read flag on all messages sent by peerID to userID.
	MarkRead(ctx context.Context, userID, peerID int64, read bool) error

	// History returns the full conversation between two users ordered by
	// message id ascending, each row joined with the sender profile and the
	// aggregate vote score.
	History(ctx context.Context, userA, userB int64) ([]*HistoryRow, error)

	// FindMessage retrieves a message by id. Returns ErrNotFound if missing.
	FindMessage(ctx context.Context, id int64) (*Message, error)

	// ListUnread returns unread messages addressed to userID, oldest first.
	ListUnread(ctx context.Context, userID int64) ([]*Message, error)
}

// VoteStore handles vote persistence.
type VoteStore interface {
	// InsertVote records a vote for (userID, messageID).
	InsertVote(ctx context.Context, userID, messageID int64, dir int) error

	// DeleteVote removes the vote for (userID, messageID), if any.
	DeleteVote(ctx context.Context, userID, messageID int64) error

	// FindVote retrieves the vote for (userID, messageID). Returns
	// ErrNotFound if the user has not voted on the message.
	FindVote(ctx context.Context, userID, messageID int64) (*Vote, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	MessageStore
	VoteStore

	// Close closes the underlying database connection.
	Close() error
}
