package middleware

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys handlers use to describe the capacity work a request did.
const (
	AttrUserID       = attribute.Key("user.id")
	AttrRouteID      = attribute.Key("route.id")
	AttrTimeModel    = attribute.Key("route.time_model")
	AttrComputable   = attribute.Key("capacity.computable")
	AttrCatalogStale = attribute.Key("catalog.stale")
	AttrFactorCount  = attribute.Key("catalog.factors")
)

type annotationsKey struct{}

type annotations struct {
	mu    sync.Mutex
	attrs []attribute.KeyValue
}

// withAnnotations returns a context carrying an annotation holder, reusing
// the one already present.
func withAnnotations(ctx context.Context) (context.Context, *annotations) {
	if a, ok := ctx.Value(annotationsKey{}).(*annotations); ok {
		return ctx, a
	}
	a := &annotations{}
	return context.WithValue(ctx, annotationsKey{}, a), a
}

// Annotate records attributes on the request's span and on the line Logger
// writes when the request completes.
func Annotate(ctx context.Context, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).SetAttributes(attrs...)

	a, ok := ctx.Value(annotationsKey{}).(*annotations)
	if !ok {
		return
	}
	a.mu.Lock()
	a.attrs = append(a.attrs, attrs...)
	a.mu.Unlock()
}

func (a *annotations) apply(event *zerolog.Event) *zerolog.Event {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, kv := range a.attrs {
		field := strings.ReplaceAll(string(kv.Key), ".", "_")
		switch kv.Value.Type() {
		case attribute.BOOL:
			event = event.Bool(field, kv.Value.AsBool())
		case attribute.INT64:
			event = event.Int64(field, kv.Value.AsInt64())
		default:
			event = event.Str(field, kv.Value.Emit())
		}
	}
	return event
}
