package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/privchat/privchat-server/internal/proto"
	"github.com/privchat/privchat-server/internal/store"
)

// SessionState tracks the conversation session lifecycle.
type SessionState int

const (
	// StateConnecting is the initial state before the registry connect.
	StateConnecting SessionState = iota
	// StateActive means the session is registered and processing frames.
	StateActive
	// StateClosed is terminal.
	StateClosed
)

// ConversationSession owns one physical connection of a user towards a peer.
// It validates inbound frames, dispatches them, and pushes resulting state
// back over the channel. Frames are processed strictly in receipt order; the
// transport must not call HandleFrame concurrently.
type ConversationSession struct {
	user     store.User
	peerID   int64
	ch       Channel
	engine   *Engine
	registry *Registry
	store    store.Store
	state    SessionState
	log      zerolog.Logger
}

// NewConversationSession builds a session in the Connecting state.
func NewConversationSession(
	user store.User,
	peerID int64,
	ch Channel,
	engine *Engine,
	registry *Registry,
	st store.Store,
	logger *zerolog.Logger,
) *ConversationSession {
	sessionLog := logger.With().
		Int64("user_id", user.ID).
		Int64("peer_id", peerID).
		Logger()

	return &ConversationSession{
		user:     user,
		peerID:   peerID,
		ch:       ch,
		engine:   engine,
		registry: registry,
		store:    st,
		state:    StateConnecting,
		log:      sessionLog,
	}
}

// Start registers the session, marks the peer's messages to this user as
// read, and pushes the full conversation history to the client. The session
// is Active once Start returns nil.
func (s *ConversationSession) Start(ctx context.Context) error {
	s.registry.Connect(PairKey{From: s.user.ID, To: s.peerID}, s.ch)
	s.state = StateActive

	if err := s.store.MarkRead(ctx, s.user.ID, s.peerID, true); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}

	return s.pushHistory(ctx)
}

// Close deregisters the session. Idempotent; safe to call from a deferred
// transport cleanup after any error.
func (s *ConversationSession) Close() {
	if s.state == StateClosed {
		return
	}
	s.registry.Disconnect(PairKey{From: s.user.ID, To: s.peerID})
	s.state = StateClosed
}

// HandleFrame parses and dispatches one inbound frame. Domain and validation
// failures are reported inline and leave the session Active; a non-nil error
// means the channel itself failed and the session must close.
func (s *ConversationSession) HandleFrame(ctx context.Context, data []byte) error {
	var frame proto.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return s.sendError(ctx, ErrCodeBadRequest, fmt.Sprintf("Malformed frame: %v", err))
	}

	switch {
	case frame.Send != nil:
		return s.handleSend(ctx, frame.Send)
	case frame.Vote != nil:
		return s.handleVote(ctx, frame.Vote)
	case frame.ChangeMessage != nil:
		return s.handleChange(ctx, frame.ChangeMessage)
	case frame.DeleteMessage != nil:
		return s.handleDelete(ctx, frame.DeleteMessage)
	default:
		return s.sendError(ctx, ErrCodeBadRequest, "Unknown frame type")
	}
}

func (s *ConversationSession) handleSend(ctx context.Context, data *proto.SendData) error {
	if err := data.Validate(); err != nil {
		return s.sendError(ctx, ErrCodeBadRequest, fmt.Sprintf("Error sending message: %v", err))
	}

	_, err := s.engine.SendMessage(ctx, SendInput{
		Sender:     s.user,
		ReceiverID: s.peerID,
		Body:       data.Message,
		FileURL:    data.FileURL,
		ReplyTo:    data.OriginalMessageID,
	})
	if err != nil {
		s.log.Error().Err(err).Msg("send message")
		return s.sendError(ctx, ErrCodeInternal, "Error sending message")
	}

	// Anything the peer sent earlier is read by now: the sender is looking
	// at the conversation.
	if err := s.store.MarkRead(ctx, s.user.ID, s.peerID, true); err != nil {
		s.log.Warn().Err(err).Msg("mark read after send")
	}

	return nil
}

func (s *ConversationSession) handleVote(ctx context.Context, data *proto.VoteData) error {
	if err := data.Validate(); err != nil {
		return s.sendError(ctx, ErrCodeBadRequest, fmt.Sprintf("Error processing vote: %v", err))
	}

	status, err := s.processVote(ctx, data)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return s.sendError(ctx, ErrCodeNotFound,
				fmt.Sprintf("Message with id %d does not exist", data.MessageID))
		}
		s.log.Error().Err(err).Int64("message_id", data.MessageID).Msg("process vote")
		return s.sendError(ctx, ErrCodeInternal, "Error processing vote")
	}

	if err := s.ch.Send(ctx, proto.Status{Message: status}); err != nil {
		return err
	}
	return s.pushHistory(ctx)
}

// processVote applies toggle semantics: dir == 1 adds a vote unless one
// exists (then removes it); any other dir only ever removes.
func (s *ConversationSession) processVote(ctx context.Context, data *proto.VoteData) (string, error) {
	if _, err := s.store.FindMessage(ctx, data.MessageID); err != nil {
		return "", err
	}

	_, err := s.store.FindVote(ctx, s.user.ID, data.MessageID)
	voted := err == nil
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", err
	}

	if data.Dir == 1 {
		if voted {
			if err := s.store.DeleteVote(ctx, s.user.ID, data.MessageID); err != nil {
				return "", err
			}
			return "Successfully removed vote", nil
		}
		if err := s.store.InsertVote(ctx, s.user.ID, data.MessageID, data.Dir); err != nil {
			return "", err
		}
		return "Successfully added vote", nil
	}

	if !voted {
		return "Vote does not exist or has already been removed", nil
	}
	if err := s.store.DeleteVote(ctx, s.user.ID, data.MessageID); err != nil {
		return "", err
	}
	return "Successfully deleted vote", nil
}

func (s *ConversationSession) handleChange(ctx context.Context, data *proto.ChangeData) error {
	if err := data.Validate(); err != nil {
		return s.sendError(ctx, ErrCodeBadRequest, fmt.Sprintf("Error processing change: %v", err))
	}

	token, err := s.engine.cipher.Encrypt(data.Message)
	if err != nil {
		s.log.Error().Err(err).Msg("encrypt edited body")
		return s.sendError(ctx, ErrCodeInternal, "Error processing change")
	}

	if err := s.store.UpdateMessageBody(ctx, data.ID, s.user.ID, token); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return s.sendError(ctx, ErrCodeNotFound,
				"Message not found or you don't have permission to edit this message")
		}
		s.log.Error().Err(err).Int64("message_id", data.ID).Msg("update message")
		return s.sendError(ctx, ErrCodeInternal, "Error processing change")
	}

	if err := s.ch.Send(ctx, proto.Status{Message: "Message updated"}); err != nil {
		return err
	}
	return s.pushHistory(ctx)
}

func (s *ConversationSession) handleDelete(ctx context.Context, data *proto.DeleteData) error {
	if err := data.Validate(); err != nil {
		return s.sendError(ctx, ErrCodeBadRequest, fmt.Sprintf("Error processing delete: %v", err))
	}

	if err := s.store.DeleteMessage(ctx, data.ID, s.user.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return s.sendError(ctx, ErrCodeNotFound,
				"Message not found or you don't have permission to delete this message")
		}
		s.log.Error().Err(err).Int64("message_id", data.ID).Msg("delete message")
		return s.sendError(ctx, ErrCodeInternal, "Error processing delete")
	}

	if err := s.ch.Send(ctx, proto.Status{Message: "Message deleted"}); err != nil {
		return err
	}
	return s.pushHistory(ctx)
}

// pushHistory re-derives ground truth from the store and pushes the full
// ordered conversation to this session's client only, one record per send.
func (s *ConversationSession) pushHistory(ctx context.Context) error {
	records, err := s.engine.History(ctx, s.user.ID, s.peerID)
	if err != nil {
		s.log.Error().Err(err).Msg("fetch history")
		return s.sendError(ctx, ErrCodeInternal, "Error fetching history")
	}

	for i := range records {
		if err := s.ch.Send(ctx, &records[i]); err != nil {
			return err
		}
	}
	return nil
}

// sendError reports a failure inline to the requester. The returned error is
// nil unless the channel write itself failed.
func (s *ConversationSession) sendError(ctx context.Context, code, msg string) error {
	return s.ch.Send(ctx, proto.Status{Message: msg, Code: code})
}

// State returns the current lifecycle state.
func (s *ConversationSession) State() SessionState {
	return s.state
}
