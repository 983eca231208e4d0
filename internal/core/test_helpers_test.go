package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/privchat/privchat-server/internal/proto"
	"github.com/privchat/privchat-server/internal/store"
)

// stubCipher prefixes plaintexts so tests can verify bodies are stored
// encrypted. Tokens equal to "!corrupt" fail to decrypt.
type stubCipher struct{}

func (stubCipher) Encrypt(plaintext string) (string, error) {
	return "enc:" + plaintext, nil
}

func (stubCipher) Decrypt(token string) (string, error) {
	if token == "!corrupt" {
		return "", fmt.Errorf("cannot decrypt token")
	}
	return strings.TrimPrefix(token, "enc:"), nil
}

// captureChannel records everything sent through it.
type captureChannel struct {
	mu   sync.Mutex
	sent []any
	fail error
}

func (c *captureChannel) Send(_ context.Context, v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	c.sent = append(c.sent, v)
	return nil
}

func (c *captureChannel) all() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]any(nil), c.sent...)
}

func (c *captureChannel) records() []*proto.DeliveryRecord {
	var out []*proto.DeliveryRecord
	for _, v := range c.all() {
		if r, ok := v.(*proto.DeliveryRecord); ok {
			out = append(out, r)
		}
	}
	return out
}

func (c *captureChannel) statuses() []proto.Status {
	var out []proto.Status
	for _, v := range c.all() {
		if s, ok := v.(proto.Status); ok {
			out = append(out, s)
		}
	}
	return out
}

// memStore is an in-memory store.Store for core tests.
type memStore struct {
	mu       sync.Mutex
	users    map[int64]*store.User
	messages map[int64]*store.Message
	votes    map[[2]int64]*store.Vote
	nextID   int64
}

func newMemStore(users ...store.User) *memStore {
	m := &memStore{
		users:    make(map[int64]*store.User),
		messages: make(map[int64]*store.Message),
		votes:    make(map[[2]int64]*store.Vote),
		nextID:   1,
	}
	for i := range users {
		u := users[i]
		m.users[u.ID] = &u
	}
	return m
}

func (m *memStore) CreateUser(_ context.Context, username, passwordHash, avatar string) (*store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := &store.User{
		ID:           int64(len(m.users) + 1),
		Username:     username,
		PasswordHash: passwordHash,
		Avatar:       avatar,
		CreatedAt:    time.Now(),
	}
	m.users[u.ID] = u
	return u, nil
}

func (m *memStore) GetUserByID(_ context.Context, id int64) (*store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, store.ErrNotFound
}

func (m *memStore) GetUserByUsername(_ context.Context, username string) (*store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) SearchUsers(_ context.Context, query string) ([]*store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.User
	for _, u := range m.users {
		if strings.Contains(u.Username, query) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memStore) InsertMessage(_ context.Context, msg *store.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg.ID = m.nextID
	m.nextID++
	msg.CreatedAt = time.Now().UTC()
	clone := *msg
	m.messages[msg.ID] = &clone
	return nil
}

func (m *memStore) UpdateMessageBody(_ context.Context, id, senderID int64, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok || msg.SenderID != senderID {
		return store.ErrNotFound
	}
	msg.Body = &body
	msg.Edited = true
	return nil
}

func (m *memStore) DeleteMessage(_ context.Context, id, senderID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok || msg.SenderID != senderID {
		return store.ErrNotFound
	}
	delete(m.messages, id)
	return nil
}

func (m *memStore) MarkRead(_ context.Context, userID, peerID int64, read bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages {
		if msg.ReceiverID == userID && msg.SenderID == peerID {
			msg.IsRead = read
		}
	}
	return nil
}

func (m *memStore) History(_ context.Context, userA, userB int64) ([]*store.HistoryRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows []*store.HistoryRow
	for id := int64(1); id < m.nextID; id++ {
		msg, ok := m.messages[id]
		if !ok {
			continue
		}
		inPair := (msg.SenderID == userA && msg.ReceiverID == userB) ||
			(msg.SenderID == userB && msg.ReceiverID == userA)
		if !inPair {
			continue
		}
		var vote int64
		for _, v := range m.votes {
			if v.MessageID == msg.ID {
				vote += int64(v.Dir)
			}
		}
		sender := m.users[msg.SenderID]
		rows = append(rows, &store.HistoryRow{Message: *msg, Sender: *sender, Vote: vote})
	}
	return rows, nil
}

func (m *memStore) FindMessage(_ context.Context, id int64) (*store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg, ok := m.messages[id]; ok {
		clone := *msg
		return &clone, nil
	}
	return nil, store.ErrNotFound
}

func (m *memStore) ListUnread(_ context.Context, userID int64) ([]*store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.Message
	for id := int64(1); id < m.nextID; id++ {
		msg, ok := m.messages[id]
		if !ok {
			continue
		}
		if msg.ReceiverID == userID && !msg.IsRead {
			clone := *msg
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (m *memStore) InsertVote(_ context.Context, userID, messageID int64, dir int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.votes[[2]int64{userID, messageID}] = &store.Vote{UserID: userID, MessageID: messageID, Dir: dir}
	return nil
}

func (m *memStore) DeleteVote(_ context.Context, userID, messageID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.votes, [2]int64{userID, messageID})
	return nil
}

func (m *memStore) FindVote(_ context.Context, userID, messageID int64) (*store.Vote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.votes[[2]int64{userID, messageID}]; ok {
		return v, nil
	}
	return nil, store.ErrNotFound
}

func (m *memStore) Close() error { return nil }

var _ store.Store = (*memStore)(nil)
