package envelope

import (
	"context"
	"errors"
	"testing"

	"github.com/smallbiznis/notifier/internal/event"
	obscontext "github.com/smallbiznis/notifier/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const orderCreatedDoc = `{
	"orderId": "3fa85f64-5717-4562-b3fc-2c963f66afa6",
	"customerId": "7c9e6679-7425-40de-944b-e07fc1f90ae7",
	"items": [
		{"productId": "16fd2706-8baf-433b-82eb-8c7fada847da", "quantity": 2, "unitPrice": 12.5}
	],
	"totalAmount": "25.00",
	"createdAt": "2024-03-01T10:00:00Z"
}`

func newNormalizer() *Normalizer {
	return New(Params{})
}

func TestNormalizeEnvelopeAndRawAreEquivalent(t *testing.T) {
	n := newNormalizer()
	hint := Hint{Binding: event.TypeOrderCreated}

	enveloped := `{"messageId":"abc","messageType":["urn:message:Contracts:OrderCreatedEvent"],"message":` + orderCreatedDoc + `}`

	fromEnvelope, err := n.Normalize(context.Background(), []byte(enveloped), hint)
	require.NoError(t, err)
	fromRaw, err := n.Normalize(context.Background(), []byte(orderCreatedDoc), hint)
	require.NoError(t, err)

	assert.Equal(t, fromRaw, fromEnvelope)

	oc, ok := fromRaw.(*event.OrderCreated)
	require.True(t, ok)
	assert.Equal(t, "3fa85f64-5717-4562-b3fc-2c963f66afa6", oc.OrderRef())
	assert.Equal(t, "25", oc.TotalAmount.Decimal.String())
	require.Len(t, oc.Items, 1)
	require.NotNil(t, oc.Items[0].Quantity)
	assert.Equal(t, 2, *oc.Items[0].Quantity)
	require.NotNil(t, oc.CreatedAt)
	assert.Equal(t, 2024, oc.CreatedAt.Year())
}

func TestNormalizeExplicitTypeWinsOverBinding(t *testing.T) {
	n := newNormalizer()
	body := `{"paymentId":"16fd2706-8baf-433b-82eb-8c7fada847da","orderId":"3fa85f64-5717-4562-b3fc-2c963f66afa6","reason":"card declined"}`

	ev, err := n.Normalize(context.Background(), []byte(body), Hint{
		Explicit: event.TypePaymentFailed,
		Binding:  event.TypePaymentProcessed,
	})
	require.NoError(t, err)
	pf, ok := ev.(*event.PaymentFailed)
	require.True(t, ok)
	assert.Equal(t, "card declined", pf.Reason)
	assert.Nil(t, pf.FailedAt)
}

func TestNormalizeIgnoresUnknownFields(t *testing.T) {
	n := newNormalizer()
	body := `{"paymentId":"16fd2706-8baf-433b-82eb-8c7fada847da","orderId":"3fa85f64-5717-4562-b3fc-2c963f66afa6","amount":99.99,"currency":"USD","stripePaymentIntentId":"pi_123","extra":{"a":1}}`

	ev, err := n.Normalize(context.Background(), []byte(body), Hint{Binding: event.TypePaymentProcessed})
	require.NoError(t, err)
	pp := ev.(*event.PaymentProcessed)
	assert.Equal(t, "99.99", pp.Amount.Decimal.String())
	assert.Equal(t, "pi_123", pp.StripePaymentIntentID)
}

func TestNormalizeFailures(t *testing.T) {
	n := newNormalizer()
	ctx := obscontext.WithMessage(context.Background(), obscontext.Message{Queue: "notification.order-created"})

	cases := []struct {
		name  string
		body  string
		hint  Hint
		stage string
	}{
		{name: "not json", body: `not-json`, hint: Hint{Binding: event.TypeOrderCreated}, stage: "parse"},
		{name: "array", body: `[1,2]`, hint: Hint{Binding: event.TypeOrderCreated}, stage: "parse"},
		{name: "null", body: `null`, hint: Hint{Binding: event.TypeOrderCreated}, stage: "parse"},
		{name: "message not object", body: `{"message":"hi"}`, hint: Hint{Binding: event.TypeOrderCreated}, stage: "unwrap"},
		{name: "unresolved type", body: orderCreatedDoc, hint: Hint{}, stage: "resolve"},
		{name: "unknown type", body: orderCreatedDoc, hint: Hint{Explicit: event.Type("Refund")}, stage: "resolve"},
		{name: "mistyped id", body: `{"paymentId":"not-a-uuid","orderId":"3fa85f64-5717-4562-b3fc-2c963f66afa6","reason":"x"}`, hint: Hint{Binding: event.TypePaymentFailed}, stage: "decode"},
		{name: "mistyped amount", body: `{"paymentId":"16fd2706-8baf-433b-82eb-8c7fada847da","orderId":"3fa85f64-5717-4562-b3fc-2c963f66afa6","amount":"lots","currency":"USD"}`, hint: Hint{Binding: event.TypePaymentProcessed}, stage: "decode"},
		{name: "missing order id", body: `{"paymentId":"16fd2706-8baf-433b-82eb-8c7fada847da","reason":"x"}`, hint: Hint{Binding: event.TypePaymentFailed}, stage: "validate"},
		{name: "missing amount", body: `{"paymentId":"16fd2706-8baf-433b-82eb-8c7fada847da","orderId":"3fa85f64-5717-4562-b3fc-2c963f66afa6","currency":"USD"}`, hint: Hint{Binding: event.TypePaymentProcessed}, stage: "validate"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := n.Normalize(ctx, []byte(tc.body), tc.hint)
			require.Error(t, err)
			assert.Nil(t, ev)

			var ce *ConversionError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tc.stage, ce.Stage)
			assert.Equal(t, "notification.order-created", ce.Queue)
			assert.True(t, ce.Permanent())
			assert.True(t, IsConversionError(err))
		})
	}
}

func TestNormalizeUnresolvedTypeIsSentinel(t *testing.T) {
	_, err := newNormalizer().Normalize(context.Background(), []byte(`{"message":{}}`), Hint{})
	require.ErrorIs(t, err, ErrUnresolvedType)
}
