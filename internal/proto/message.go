package proto

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Frame is the envelope for inbound conversation messages. Exactly one of
// the fields is expected to be set; the set field is the discriminant.
type Frame struct {
	Send          *SendData   `json:"send,omitempty"`
	Vote          *VoteData   `json:"vote,omitempty"`
	ChangeMessage *ChangeData `json:"change_message,omitempty"`
	DeleteMessage *DeleteData `json:"delete_message,omitempty"`
}

// SendData carries a new message. At least one of Message and FileURL must
// be present.
type SendData struct {
	Message           *string `json:"message"`
	FileURL           *string `json:"fileUrl"`
	OriginalMessageID *int64  `json:"original_message_id"`
}

// Validate checks the send payload.
func (d *SendData) Validate() error {
	hasBody := d.Message != nil && *d.Message != ""
	hasFile := d.FileURL != nil && *d.FileURL != ""
	if !hasBody && !hasFile {
		return errors.New("message or fileUrl is required")
	}
	return nil
}

// VoteData toggles a vote on a message.
type VoteData struct {
	MessageID int64 `json:"message_id" validate:"required,gt=0"`
	Dir       int   `json:"dir" validate:"lte=1"`
}

// Validate checks the vote payload.
func (d *VoteData) Validate() error {
	return validate.Struct(d)
}

// ChangeData edits the body of an owned message.
type ChangeData struct {
	ID      int64  `json:"id" validate:"required,gt=0"`
	Message string `json:"message" validate:"required"`
}

// Validate checks the edit payload.
func (d *ChangeData) Validate() error {
	return validate.Struct(d)
}

// DeleteData deletes an owned message.
type DeleteData struct {
	ID int64 `json:"id" validate:"required,gt=0"`
}

// Validate checks the delete payload.
func (d *DeleteData) Validate() error {
	return validate.Struct(d)
}

// DeliveryRecord is the serialized message object pushed to live sockets and
// returned from history. ReceiverID carries the actual receiver of the
// message.
type DeliveryRecord struct {
	ID         int64     `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	ReceiverID int64     `json:"receiver_id"`
	Message    *string   `json:"message"`
	FileURL    *string   `json:"fileUrl"`
	IDReturn   *int64    `json:"id_return"`
	UserName   string    `json:"user_name"`
	Verified   bool      `json:"verified"`
	Avatar     string    `json:"avatar"`
	IsRead     bool      `json:"is_read"`
	Vote       int64     `json:"vote"`
	Edited     bool      `json:"edited"`
}

// Status is a short acknowledgement or inline error sent to the requester.
type Status struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// NotifyPing signals unread-message existence without transmitting content.
type NotifyPing struct {
	Type      string `json:"type"`
	SenderID  int64  `json:"sender_id"`
	MessageID int64  `json:"message_id"`
}

// NotifyTypeNewMessage is the Type of pings emitted by the notification
// session.
const NotifyTypeNewMessage = "new_message"
