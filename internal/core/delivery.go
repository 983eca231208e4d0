package core

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/privchat/privchat-server/internal/crypto"
	"github.com/privchat/privchat-server/internal/proto"
	"github.com/privchat/privchat-server/internal/store"
)

// DecryptFallback replaces message bodies that fail decryption. A bad token
// never aborts a history batch.
const DecryptFallback = "[message cannot be decrypted]"

// Engine persists messages and fans them out to the live halves of the pair.
type Engine struct {
	store    store.Store
	cipher   crypto.Cipher
	registry *Registry
	log      *zerolog.Logger
}

// NewEngine creates a delivery engine.
func NewEngine(st store.Store, cipher crypto.Cipher, registry *Registry, logger *zerolog.Logger) *Engine {
	return &Engine{
		store:    st,
		cipher:   cipher,
		registry: registry,
		log:      logger,
	}
}

// SendInput describes a new message to deliver.
type SendInput struct {
	Sender     store.User
	ReceiverID int64
	Body       *string
	FileURL    *string
	ReplyTo    *int64
}

// SendMessage encrypts and persists a new message, then pushes the delivery
// record to both live sides of the pair. The store write happens before any
// push. Delivery is best-effort: no error if neither side is live.
func (e *Engine) SendMessage(ctx context.Context, in SendInput) (*proto.DeliveryRecord, error) {
	stored := in.Body
	if in.Body != nil {
		token, err := e.cipher.Encrypt(*in.Body)
		if err != nil {
			return nil, fmt.Errorf("encrypt body: %w", err)
		}
		stored = &token
	}

	// A message born while the receiver's socket is live is already read.
	_, receiverLive := e.registry.Lookup(PairKey{From: in.ReceiverID, To: in.Sender.ID})

	msg := &store.Message{
		SenderID:   in.Sender.ID,
		ReceiverID: in.ReceiverID,
		Body:       stored,
		FileURL:    in.FileURL,
		ReplyTo:    in.ReplyTo,
		IsRead:     receiverLive,
	}
	if err := e.store.InsertMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	record := &proto.DeliveryRecord{
		ID:         msg.ID,
		CreatedAt:  msg.CreatedAt.UTC(),
		ReceiverID: msg.ReceiverID,
		Message:    in.Body,
		FileURL:    msg.FileURL,
		IDReturn:   msg.ReplyTo,
		UserName:   in.Sender.Username,
		Verified:   in.Sender.Verified,
		Avatar:     in.Sender.Avatar,
		IsRead:     msg.IsRead,
		Vote:       0,
		Edited:     false,
	}

	e.push(ctx, PairKey{From: in.Sender.ID, To: in.ReceiverID}, record)
	e.push(ctx, PairKey{From: in.ReceiverID, To: in.Sender.ID}, record)

	return record, nil
}

func (e *Engine) push(ctx context.Context, key PairKey, record *proto.DeliveryRecord) {
	ch, ok := e.registry.Lookup(key)
	if !ok {
		return
	}
	if err := ch.Send(ctx, record); err != nil {
		e.log.Warn().Err(err).
			Int64("from", key.From).
			Int64("to", key.To).
			Int64("message_id", record.ID).
			Msg("push delivery record")
	}
}

// History returns the full conversation between two users as delivery
// records, oldest first, bodies decrypted.
func (e *Engine) History(ctx context.Context, userA, userB int64) ([]proto.DeliveryRecord, error) {
	rows, err := e.store.History(ctx, userA, userB)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}

	return lo.Map(rows, func(row *store.HistoryRow, _ int) proto.DeliveryRecord {
		return e.record(row)
	}), nil
}

func (e *Engine) record(row *store.HistoryRow) proto.DeliveryRecord {
	body := row.Message.Body
	if body != nil {
		plaintext, err := e.cipher.Decrypt(*body)
		if err != nil {
			e.log.Warn().Err(err).Int64("message_id", row.Message.ID).Msg("decrypt body")
			plaintext = DecryptFallback
		}
		body = &plaintext
	}

	return proto.DeliveryRecord{
		ID:         row.Message.ID,
		CreatedAt:  row.Message.CreatedAt.UTC(),
		ReceiverID: row.Message.ReceiverID,
		Message:    body,
		FileURL:    row.Message.FileURL,
		IDReturn:   row.Message.ReplyTo,
		UserName:   row.Sender.Username,
		Verified:   row.Sender.Verified,
		Avatar:     row.Sender.Avatar,
		IsRead:     row.Message.IsRead,
		Vote:       row.Vote,
		Edited:     row.Message.Edited,
	}
}
