package core

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/privchat/privchat-server/internal/proto"
	"github.com/privchat/privchat-server/internal/store"
)

// NotificationSession is a per-user liveness channel. It polls the store on a
// fixed interval and emits one lightweight ping per unread message, carrying
// only sender and message ids. It is redundant to the pairwise push and never
// transmits bodies.
type NotificationSession struct {
	userID   int64
	ch       Channel
	store    store.MessageStore
	interval time.Duration
	log      zerolog.Logger
}

// NewNotificationSession builds a notification session for the user.
func NewNotificationSession(
	userID int64,
	ch Channel,
	st store.MessageStore,
	interval time.Duration,
	logger *zerolog.Logger,
) *NotificationSession {
	return &NotificationSession{
		userID:   userID,
		ch:       ch,
		store:    st,
		interval: interval,
		log:      logger.With().Int64("user_id", userID).Logger(),
	}
}

// Run polls until the context is cancelled or the transport fails. Any store
// or channel error terminates the session; the transport maps the returned
// error to a close code instead of looping.
func (s *NotificationSession) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.poll(ctx); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *NotificationSession) poll(ctx context.Context) error {
	messages, err := s.store.ListUnread(ctx, s.userID)
	if err != nil {
		return fmt.Errorf("list unread: %w", err)
	}

	for _, msg := range messages {
		ping := proto.NotifyPing{
			Type:      proto.NotifyTypeNewMessage,
			SenderID:  msg.SenderID,
			MessageID: msg.ID,
		}
		if err := s.ch.Send(ctx, ping); err != nil {
			return fmt.Errorf("send ping: %w", err)
		}
	}

	if len(messages) > 0 {
		s.log.Debug().Int("unread", len(messages)).Msg("notified unread messages")
	}
	return nil
}
