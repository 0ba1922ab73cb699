// Package bridge defines the control channel between a session and the
// remote whiteboard engine.
//
// Every command is a Request answered by exactly one Response keyed by the
// request id. The engine also pushes Events, which a Conn delivers in
// arrival order.
package bridge

import (
	"context"
	"fmt"

	"github.com/whiteboard-sdk/whiteboard.go/internal/codec"
)

type Conn interface {
	// Send writes a request and waits for its reply, ctx cancellation, or
	// CancelPending.
	Send(ctx context.Context, method Method, params any) (codec.RawMessage, error)

	// Events yields engine pushes in arrival order. It is closed when the
	// connection is lost or closed.
	Events() <-chan Event

	// Done is closed once the connection is unusable; Err then says why.
	Done() <-chan struct{}
	Err() error

	// CancelPending resolves every in-flight Send with err.
	CancelPending(err error)

	Close(ctx context.Context) error

	Unmarshaler() codec.Unmarshaler
}

// Dialer opens a fresh connection. Reconnects call it again.
type Dialer func(ctx context.Context) (Conn, error)

// Call sends a request and decodes the result into T.
func Call[T any](ctx context.Context, c Conn, method Method, params any) (T, error) {
	var out T
	raw, err := c.Send(ctx, method, params)
	if err != nil {
		return out, err
	}
	if err := raw.Decode(c.Unmarshaler(), &out); err != nil {
		return out, fmt.Errorf("%s: decoding result: %w", method, err)
	}
	return out, nil
}

// DecodeEvent decodes the payload of ev into T.
func DecodeEvent[T any](c Conn, ev Event) (T, error) {
	var out T
	if err := ev.Payload.Decode(c.Unmarshaler(), &out); err != nil {
		return out, fmt.Errorf("%s: decoding payload: %w", ev.Kind, err)
	}
	return out, nil
}
