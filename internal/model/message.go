package model

import "time"

type MessageStatus string

const (
	MessageDraft     MessageStatus = "draft"
	MessageScheduled MessageStatus = "scheduled"
	MessageSending   MessageStatus = "sending"
	MessageSent      MessageStatus = "sent"
	MessageFailed    MessageStatus = "failed"
	MessageCancelled MessageStatus = "cancelled"
)

type RecipientStatus string

const (
	RecipientPending   RecipientStatus = "pending"
	RecipientSending   RecipientStatus = "sending"
	RecipientSent      RecipientStatus = "sent"
	RecipientDelivered RecipientStatus = "delivered"
	RecipientFailed    RecipientStatus = "failed"
	RecipientBounced   RecipientStatus = "bounced"
)

// Terminal reports whether no further transition is expected for s.
func (s RecipientStatus) Terminal() bool {
	switch s {
	case RecipientSent, RecipientDelivered, RecipientFailed, RecipientBounced:
		return true
	}
	return false
}

type Message struct {
	ID              string
	UserID          string
	Content         string
	Channel         string
	Status          MessageStatus
	ScheduledFor    *time.Time
	SentAt          *time.Time
	TotalRecipients int
	SuccessCount    int
	FailedCount     int
	Cost            float64
	TemplateID      *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type MessageRecipient struct {
	ID           string
	MessageID    string
	Phone        string
	Name         string
	ContactID    *string
	Status       RecipientStatus
	SentAt       *time.Time
	DeliveredAt  *time.Time
	ErrorMessage *string
	CarrierSID   *string
	Cost         float64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Recipient is a resolved destination before any rows exist: an explicit
// phone number, or one expanded from a contact or group reference.
type Recipient struct {
	Phone     string
	Name      string
	ContactID string
}
