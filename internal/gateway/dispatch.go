// internal/gateway/dispatch.go
package gateway

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/askdba/dbquery-skill/internal/skillerr"
)

// DefaultTimeout applies when Dispatch is given a non-positive timeout.
const DefaultTimeout = 30 * time.Second

const tracerName = "github.com/askdba/dbquery-skill/internal/gateway"

// Dispatcher makes exactly one bounded call per Dispatch. It is safe for
// concurrent use.
type Dispatcher struct {
	tracer trace.Tracer
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTracer sets the tracer used for dispatch spans.
func WithTracer(t trace.Tracer) Option {
	return func(d *Dispatcher) {
		if t != nil {
			d.tracer = t
		}
	}
}

// NewDispatcher creates a dispatcher that traces through the global otel
// provider unless WithTracer is given.
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{tracer: otel.Tracer(tracerName)}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type outcome struct {
	body map[string]interface{}
	err  error
}

// Dispatch calls client with a deadline of timeout. The call runs on its own
// goroutine so a client that ignores ctx still cannot hold the caller past
// the deadline; its late result is discarded.
//
// Errors are *skillerr.Error: TIMEOUT when the deadline fires, otherwise
// UPSTREAM_ERROR wrapping the client's error. A client error that already is
// a *skillerr.Error is returned unchanged.
func (d *Dispatcher) Dispatch(ctx context.Context, client Client, method, path string, body interface{}, timeout time.Duration) (map[string]interface{}, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, span := d.tracer.Start(ctx, "gateway.dispatch", trace.WithAttributes(
		attribute.String("gateway.method", method),
		attribute.String("gateway.path", path),
		attribute.Int64("gateway.timeout_ms", timeout.Milliseconds()),
	))
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		b, err := client.Request(callCtx, method, path, body)
		done <- outcome{body: b, err: err}
	}()

	var res outcome
	select {
	case res = <-done:
	case <-callCtx.Done():
		res = outcome{err: callCtx.Err()}
	}

	if res.err != nil {
		err := classify(res.err, callCtx, path, timeout)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(err.Code))
		span.SetAttributes(attribute.String("gateway.error_code", string(err.Code)))
		return nil, err
	}
	if res.body == nil {
		res.body = map[string]interface{}{}
	}
	span.SetStatus(codes.Ok, "")
	return res.body, nil
}

func classify(err error, callCtx context.Context, path string, timeout time.Duration) *skillerr.Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return skillerr.Wrap(skillerr.CodeTimeout, err,
			"request to %s timed out after %dms", path, timeout.Milliseconds())
	}
	if se, ok := skillerr.As(err); ok {
		return se
	}
	return skillerr.Wrap(skillerr.CodeUpstream, err, "%s", err.Error())
}

var defaultDispatcher = NewDispatcher()

// Dispatch uses a dispatcher bound to the global tracer provider.
func Dispatch(ctx context.Context, client Client, method, path string, body interface{}, timeout time.Duration) (map[string]interface{}, error) {
	return defaultDispatcher.Dispatch(ctx, client, method, path, body, timeout)
}
