package event

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Type names a domain event variant.
type Type string

const (
	TypeOrderCreated     Type = "OrderCreated"
	TypePaymentProcessed Type = "PaymentProcessed"
	TypePaymentFailed    Type = "PaymentFailed"
)

var types = []Type{TypeOrderCreated, TypePaymentProcessed, TypePaymentFailed}

// Types lists every supported variant.
func Types() []Type {
	out := make([]Type, len(types))
	copy(out, types)
	return out
}

// ParseType maps a binding or header value onto a known variant. It accepts the
// bare name ("OrderCreated"), the publisher's class name ("OrderCreatedEvent"),
// and namespaced forms ("Contracts.Events:OrderCreatedEvent"), case-insensitively.
func ParseType(raw string) (Type, bool) {
	name := strings.TrimSpace(raw)
	if i := strings.LastIndexAny(name, ".:/"); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSuffix(strings.ToLower(name), "event")
	if name == "" {
		return "", false
	}
	for _, t := range types {
		if strings.ToLower(string(t)) == name {
			return t, true
		}
	}
	return "", false
}

// Event is implemented by every domain event variant.
type Event interface {
	Type() Type
	// OrderRef is the originating order id, used for subjects and log correlation.
	OrderRef() string
}

type OrderItem struct {
	ProductID uuid.UUID           `json:"productId" validate:"required"`
	Quantity  *int                `json:"quantity" validate:"required,gte=0"`
	UnitPrice decimal.NullDecimal `json:"unitPrice" validate:"required"`
}

type OrderCreated struct {
	OrderID     uuid.UUID           `json:"orderId" validate:"required"`
	CustomerID  uuid.UUID           `json:"customerId" validate:"required"`
	Items       []OrderItem         `json:"items" validate:"required,dive"`
	TotalAmount decimal.NullDecimal `json:"totalAmount" validate:"required"`
	CreatedAt   *time.Time          `json:"createdAt,omitempty"`
}

func (OrderCreated) Type() Type { return TypeOrderCreated }

func (e OrderCreated) OrderRef() string { return e.OrderID.String() }

// Owner is the customer the order belongs to.
func (e OrderCreated) Owner() string { return e.CustomerID.String() }

type PaymentProcessed struct {
	PaymentID             uuid.UUID           `json:"paymentId" validate:"required"`
	OrderID               uuid.UUID           `json:"orderId" validate:"required"`
	StripePaymentIntentID string              `json:"stripePaymentIntentId,omitempty"`
	Amount                decimal.NullDecimal `json:"amount" validate:"required"`
	Currency              string              `json:"currency" validate:"required"`
	ProcessedAt           *time.Time          `json:"processedAt,omitempty"`
}

func (PaymentProcessed) Type() Type { return TypePaymentProcessed }

func (e PaymentProcessed) OrderRef() string { return e.OrderID.String() }

type PaymentFailed struct {
	PaymentID uuid.UUID  `json:"paymentId" validate:"required"`
	OrderID   uuid.UUID  `json:"orderId" validate:"required"`
	Reason    string     `json:"reason" validate:"required"`
	FailedAt  *time.Time `json:"failedAt,omitempty"`
}

func (PaymentFailed) Type() Type { return TypePaymentFailed }

func (e PaymentFailed) OrderRef() string { return e.OrderID.String() }

// Owner is implemented by events that carry the owning customer.
type Owner interface {
	Owner() string
}

// New returns a pointer to a zero value of the variant, ready for decoding.
func New(t Type) (Event, bool) {
	switch t {
	case TypeOrderCreated:
		return &OrderCreated{}, true
	case TypePaymentProcessed:
		return &PaymentProcessed{}, true
	case TypePaymentFailed:
		return &PaymentFailed{}, true
	default:
		return nil, false
	}
}
