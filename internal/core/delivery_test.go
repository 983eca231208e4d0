package core

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/privchat/privchat-server/internal/store"
)

var (
	alice = store.User{ID: 1, Username: "alice", Avatar: "https://cdn.test/a.png", Verified: true}
	bob   = store.User{ID: 2, Username: "bob", Avatar: "https://cdn.test/b.png"}
)

func newTestEngine(users ...store.User) (*Engine, *memStore, *Registry) {
	st := newMemStore(users...)
	registry := NewRegistry()
	logger := zerolog.Nop()
	return NewEngine(st, stubCipher{}, registry, &logger), st, registry
}

func strPtr(s string) *string { return &s }

func TestSendMessagePersistsWithoutLiveChannels(t *testing.T) {
	engine, st, _ := newTestEngine(alice, bob)
	ctx := context.Background()

	record, err := engine.SendMessage(ctx, SendInput{
		Sender:     alice,
		ReceiverID: bob.ID,
		Body:       strPtr("hi"),
	})
	require.NoError(t, err)
	require.NotNil(t, record)

	assert.Equal(t, "hi", *record.Message)
	assert.Equal(t, bob.ID, record.ReceiverID)
	assert.Equal(t, "alice", record.UserName)
	assert.True(t, record.Verified)
	assert.EqualValues(t, 0, record.Vote)
	assert.False(t, record.Edited)
	assert.False(t, record.IsRead, "receiver is not live")

	stored, err := st.FindMessage(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, "enc:hi", *stored.Body, "body must be stored encrypted")
}

func TestSendMessageFanOutBothSides(t *testing.T) {
	engine, _, registry := newTestEngine(alice, bob)
	ctx := context.Background()

	aliceCh := &captureChannel{}
	bobCh := &captureChannel{}
	registry.Connect(PairKey{From: alice.ID, To: bob.ID}, aliceCh)
	registry.Connect(PairKey{From: bob.ID, To: alice.ID}, bobCh)

	record, err := engine.SendMessage(ctx, SendInput{
		Sender:     alice,
		ReceiverID: bob.ID,
		Body:       strPtr("hello"),
	})
	require.NoError(t, err)

	require.Len(t, aliceCh.records(), 1)
	require.Len(t, bobCh.records(), 1)
	assert.Equal(t, record, aliceCh.records()[0])
	assert.Equal(t, record, bobCh.records()[0])
	assert.True(t, record.IsRead, "receiver side is live at send time")
}

func TestSendMessageFanOutSenderOnly(t *testing.T) {
	engine, st, registry := newTestEngine(alice, bob)
	ctx := context.Background()

	aliceCh := &captureChannel{}
	registry.Connect(PairKey{From: alice.ID, To: bob.ID}, aliceCh)

	record, err := engine.SendMessage(ctx, SendInput{
		Sender:     alice,
		ReceiverID: bob.ID,
		Body:       strPtr("hi"),
	})
	require.NoError(t, err)

	assert.Len(t, aliceCh.records(), 1, "exactly one push, to the sender's own side")
	assert.False(t, record.IsRead)

	// Persistence does not depend on liveness.
	rows, err := st.History(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestSendMessageFileOnly(t *testing.T) {
	engine, st, _ := newTestEngine(alice, bob)
	ctx := context.Background()

	record, err := engine.SendMessage(ctx, SendInput{
		Sender:     alice,
		ReceiverID: bob.ID,
		FileURL:    strPtr("https://cdn.test/file.pdf"),
	})
	require.NoError(t, err)

	assert.Nil(t, record.Message)
	assert.Equal(t, "https://cdn.test/file.pdf", *record.FileURL)

	stored, err := st.FindMessage(ctx, record.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.Body)
}

func TestSendMessagePushFailureIsBestEffort(t *testing.T) {
	engine, _, registry := newTestEngine(alice, bob)
	ctx := context.Background()

	registry.Connect(PairKey{From: bob.ID, To: alice.ID}, &captureChannel{fail: errors.New("broken pipe")})

	_, err := engine.SendMessage(ctx, SendInput{
		Sender:     alice,
		ReceiverID: bob.ID,
		Body:       strPtr("hi"),
	})
	assert.NoError(t, err, "a failed push must not fail the send")
}

func TestHistoryOrderedDecryptedWithVotes(t *testing.T) {
	engine, st, _ := newTestEngine(alice, bob)
	ctx := context.Background()

	first, err := engine.SendMessage(ctx, SendInput{Sender: alice, ReceiverID: bob.ID, Body: strPtr("one")})
	require.NoError(t, err)
	second, err := engine.SendMessage(ctx, SendInput{Sender: bob, ReceiverID: alice.ID, Body: strPtr("two")})
	require.NoError(t, err)

	require.NoError(t, st.InsertVote(ctx, bob.ID, first.ID, 1))

	records, err := engine.History(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, first.ID, records[0].ID)
	assert.Equal(t, second.ID, records[1].ID)
	assert.Equal(t, "one", *records[0].Message)
	assert.Equal(t, "two", *records[1].Message)
	assert.EqualValues(t, 1, records[0].Vote)
	assert.EqualValues(t, 0, records[1].Vote)
	assert.Equal(t, "alice", records[0].UserName)
	assert.Equal(t, "bob", records[1].UserName)
}

func TestHistoryDecryptFailureUsesSentinel(t *testing.T) {
	engine, st, _ := newTestEngine(alice, bob)
	ctx := context.Background()

	bad := &store.Message{SenderID: alice.ID, ReceiverID: bob.ID, Body: strPtr("!corrupt")}
	require.NoError(t, st.InsertMessage(ctx, bad))
	ok := &store.Message{SenderID: alice.ID, ReceiverID: bob.ID, Body: strPtr("enc:fine")}
	require.NoError(t, st.InsertMessage(ctx, ok))

	records, err := engine.History(ctx, alice.ID, bob.ID)
	require.NoError(t, err, "a bad token must not abort the batch")
	require.Len(t, records, 2)

	assert.Equal(t, DecryptFallback, *records[0].Message)
	assert.Equal(t, "fine", *records[1].Message)
}
