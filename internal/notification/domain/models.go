package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Type string

const (
	TypeOrderConfirmation Type = "ORDER_CONFIRMATION"
	TypePaymentSuccess    Type = "PAYMENT_SUCCESS"
	TypePaymentFailed     Type = "PAYMENT_FAILED"
	TypeShipmentTracking  Type = "SHIPMENT_TRACKING"
	TypeOrderCancelled    Type = "ORDER_CANCELLED"
)

type Status string

const (
	StatusPending Status = "PENDING"
	StatusSent    Status = "SENT"
	StatusFailed  Status = "FAILED"
)

// Metadata keys recorded alongside each attempt.
const (
	MetaMessageID   = "message_id"
	MetaQueue       = "queue"
	MetaRedelivered = "redelivered"
	MetaEventType   = "event_type"
)

// Notification is one dispatch attempt for one event.
type Notification struct {
	ID           snowflake.ID      `gorm:"primaryKey;autoIncrement:false" json:"id"`
	UserID       *string           `gorm:"column:user_id;index" json:"user_id"`
	OrderID      string            `gorm:"column:order_id;not null;index" json:"order_id"`
	Type         Type              `gorm:"column:type;not null" json:"type"`
	Status       Status            `gorm:"column:status;not null" json:"status"`
	Recipient    string            `gorm:"column:recipient;not null" json:"recipient"`
	Subject      string            `gorm:"column:subject;not null" json:"subject"`
	Body         string            `gorm:"column:body;type:text" json:"body"`
	ErrorMessage *string           `gorm:"column:error_message;type:text" json:"error_message,omitempty"`
	Metadata     datatypes.JSONMap `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt    time.Time         `gorm:"column:created_at;not null;index" json:"created_at"`
	SentAt       *time.Time        `gorm:"column:sent_at" json:"sent_at,omitempty"`
}

func (Notification) TableName() string {
	return "notifications"
}

// NewNotification returns a PENDING record. The body is filled in after rendering.
func NewNotification(id snowflake.ID, typ Type, userID *string, orderID, recipient, subject string, now time.Time) *Notification {
	return &Notification{
		ID:        id,
		UserID:    userID,
		OrderID:   orderID,
		Type:      typ,
		Status:    StatusPending,
		Recipient: recipient,
		Subject:   subject,
		Metadata:  datatypes.JSONMap{},
		CreatedAt: now.UTC(),
	}
}

// MarkSent moves a PENDING record to SENT. sent_at never precedes created_at.
func (n *Notification) MarkSent(at time.Time) error {
	if n.Status != StatusPending {
		return ErrInvalidTransition
	}
	at = at.UTC()
	if at.Before(n.CreatedAt) {
		at = n.CreatedAt
	}
	n.Status = StatusSent
	n.SentAt = &at
	n.ErrorMessage = nil
	return nil
}

// MarkFailed moves a PENDING record to FAILED with a reason.
func (n *Notification) MarkFailed(reason string) error {
	if n.Status != StatusPending {
		return ErrInvalidTransition
	}
	n.Status = StatusFailed
	n.ErrorMessage = &reason
	return nil
}

func (n *Notification) IsTerminal() bool {
	return n.Status == StatusSent || n.Status == StatusFailed
}

// Clone returns a deep copy; stores hand out copies so callers cannot mutate stored state.
func (n *Notification) Clone() *Notification {
	if n == nil {
		return nil
	}
	c := *n
	if n.UserID != nil {
		v := *n.UserID
		c.UserID = &v
	}
	if n.ErrorMessage != nil {
		v := *n.ErrorMessage
		c.ErrorMessage = &v
	}
	if n.SentAt != nil {
		v := *n.SentAt
		c.SentAt = &v
	}
	if n.Metadata != nil {
		c.Metadata = make(datatypes.JSONMap, len(n.Metadata))
		for k, v := range n.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
