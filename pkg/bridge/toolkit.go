package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/whiteboard-sdk/whiteboard.go/internal/codec"
	"github.com/whiteboard-sdk/whiteboard.go/internal/rand"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/constants"
)

// Toolkit is the transport independent half of a Conn: the codec and the
// pending response map. Transports embed it and supply the write path.
type Toolkit struct {
	Marshaler   codec.Marshaler
	Unmarshaler codec.Unmarshaler

	responseChannels     map[string]chan Reply
	responseChannelsLock sync.Mutex
}

func NewToolkit(c codec.Codec) *Toolkit {
	return &Toolkit{
		Marshaler:   c,
		Unmarshaler: c,
	}
}

func (t *Toolkit) CreateResponseChannel(id string) (chan Reply, error) {
	t.responseChannelsLock.Lock()
	defer t.responseChannelsLock.Unlock()

	if t.responseChannels == nil {
		t.responseChannels = make(map[string]chan Reply)
	}
	if _, ok := t.responseChannels[id]; ok {
		return nil, fmt.Errorf("%w: %v", constants.ErrIDInUse, id)
	}

	// Buffered so resolving never blocks the read loop.
	ch := make(chan Reply, 1)
	t.responseChannels[id] = ch
	return ch, nil
}

func (t *Toolkit) RemoveResponseChannel(id string) {
	t.responseChannelsLock.Lock()
	defer t.responseChannelsLock.Unlock()
	delete(t.responseChannels, id)
}

// Resolve hands a reply to the request waiting on id. It reports false
// when nobody waits, e.g. the request already gave up.
func (t *Toolkit) Resolve(id string, r Reply) bool {
	t.responseChannelsLock.Lock()
	ch, ok := t.responseChannels[id]
	delete(t.responseChannels, id)
	t.responseChannelsLock.Unlock()

	if !ok {
		return false
	}
	ch <- r
	return true
}

// CancelPending resolves every waiting request with err.
func (t *Toolkit) CancelPending(err error) {
	t.responseChannelsLock.Lock()
	pending := t.responseChannels
	t.responseChannels = nil
	t.responseChannelsLock.Unlock()

	for _, ch := range pending {
		ch <- Reply{Err: err}
	}
}

// Pending returns the number of requests waiting for a reply.
func (t *Toolkit) Pending() int {
	t.responseChannelsLock.Lock()
	defer t.responseChannelsLock.Unlock()
	return len(t.responseChannels)
}

// Roundtrip registers a request id, encodes the request, hands it to write
// and waits for the reply.
func (t *Toolkit) Roundtrip(ctx context.Context, method Method, params any, write func([]byte) error) (codec.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id := rand.NewRequestID(constants.RequestIDLength)
	ch, err := t.CreateResponseChannel(id)
	if err != nil {
		return nil, err
	}
	defer t.RemoveResponseChannel(id)

	data, err := t.Marshaler.Marshal(&Request{ID: id, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("%s: encoding request: %w", method, err)
	}
	if err := write(data); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.Result, r.Err
	}
}

// HandleFrame decodes one inbound frame. Responses are routed to their
// waiting request; an event is returned to the caller.
func (t *Toolkit) HandleFrame(data []byte) (*Event, error) {
	var f Frame
	if err := t.Unmarshaler.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decoding frame: %w", err)
	}

	switch {
	case f.ID != "":
		r := Reply{Result: f.Result}
		if f.Error != nil {
			r.Err = f.Error
		}
		if !t.Resolve(f.ID, r) {
			return nil, fmt.Errorf("%w: no pending request %q", errUnexpectedResponse, f.ID)
		}
		return nil, nil
	case f.Event != "":
		return &Event{Kind: f.Event, Payload: f.Payload}, nil
	case f.Error != nil:
		// Errors without an id cannot be routed to a request.
		return nil, f.Error
	}
	return nil, errEmptyFrame
}

var (
	errUnexpectedResponse = errors.New("unexpected response")
	errEmptyFrame         = errors.New("frame is neither a response nor an event")
)
