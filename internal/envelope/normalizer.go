package envelope

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/smallbiznis/notifier/internal/event"
	obscontext "github.com/smallbiznis/notifier/internal/observability/context"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("envelope",
	fx.Provide(New),
)

// messageField carries the payload when the publisher wraps events in an envelope.
const messageField = "message"

// Hint carries the type information known outside the body.
// Explicit is the type declared for the queue the message arrived on and always
// wins. Binding is the type advertised by broker metadata (AMQP type, a header)
// and is used only when Explicit is empty.
type Hint struct {
	Explicit event.Type
	Binding  event.Type
}

func (h Hint) resolve() (event.Type, bool) {
	if h.Explicit != "" {
		return h.Explicit, true
	}
	if h.Binding != "" {
		return h.Binding, true
	}
	return "", false
}

type Params struct {
	fx.In

	Log *zap.Logger
}

// Normalizer turns raw or enveloped message bodies into domain events.
type Normalizer struct {
	log *zap.Logger
}

func New(p Params) *Normalizer {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Normalizer{log: log.Named("envelope.normalizer")}
}

// Normalize decodes body into the event variant named by hint. Envelopes with a
// top-level "message" field and raw documents yield the same event. On error the
// returned event is always nil and the error is a *ConversionError.
func (n *Normalizer) Normalize(ctx context.Context, body []byte, hint Hint) (event.Event, error) {
	queue := ""
	if msg, ok := obscontext.MessageFromContext(ctx); ok {
		queue = msg.Queue
	}
	fail := func(stage string, err error) (event.Event, error) {
		return nil, &ConversionError{Queue: queue, Stage: stage, Err: err}
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return fail("parse", fmt.Errorf("%w: %v", ErrNotObject, err))
	}
	if doc == nil {
		return fail("parse", ErrNotObject)
	}

	payload := json.RawMessage(body)
	enveloped := false
	if inner, ok := doc[messageField]; ok {
		trimmed := bytes.TrimSpace(inner)
		if len(trimmed) == 0 || trimmed[0] != '{' {
			return fail("unwrap", fmt.Errorf("%w: %q is not an object", ErrNotObject, messageField))
		}
		payload = trimmed
		enveloped = true
	}

	typ, ok := hint.resolve()
	if !ok {
		return fail("resolve", ErrUnresolvedType)
	}
	ev, ok := event.New(typ)
	if !ok {
		return fail("resolve", fmt.Errorf("%w: unknown type %q", ErrUnresolvedType, typ))
	}

	if err := json.Unmarshal(payload, ev); err != nil {
		return fail("decode", err)
	}
	if err := event.Validate(ev); err != nil {
		return fail("validate", err)
	}

	n.log.Debug("normalized message",
		zap.String("event_type", string(typ)),
		zap.Bool("enveloped", enveloped),
		zap.String("order_id", ev.OrderRef()),
	)
	return ev, nil
}
