// Package gorillaws is the websocket transport of the bridge, built on
// gorilla/websocket.
package gorillaws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	gorilla "github.com/gorilla/websocket"

	"github.com/whiteboard-sdk/whiteboard.go/internal/codec"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/bridge"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/constants"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/logger"
)

// DefaultDialer is gorilla's default dialer with compression enabled.
// Subprotocols are set per dial from the chosen codec.
var DefaultDialer = &gorilla.Dialer{
	Proxy:             gorilla.DefaultDialer.Proxy,
	HandshakeTimeout:  gorilla.DefaultDialer.HandshakeTimeout,
	EnableCompression: true,
}

// ErrClosed is the Err of a connection closed by its owner.
var ErrClosed = errors.New("bridge connection closed")

const eventBuffer = 64

type Option func(*options)

type options struct {
	codec   codec.Codec
	header  http.Header
	dialer  *gorilla.Dialer
	logger  logger.Logger
	timeout time.Duration
}

func WithCodec(c codec.Codec) Option {
	return func(o *options) { o.codec = c }
}

func WithHeader(h http.Header) Option {
	return func(o *options) { o.header = h }
}

func WithDialer(d *gorilla.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTimeout bounds every request round trip. Zero leaves it to the
// caller's context.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

type Connection struct {
	*bridge.Toolkit

	conn        *gorilla.Conn
	messageType int
	writeLock   sync.Mutex

	timeout time.Duration
	logger  logger.Logger

	events chan bridge.Event
	done   chan struct{}

	closeOnce sync.Once
	errLock   sync.Mutex
	err       error
}

var _ bridge.Conn = (*Connection)(nil)

// NewDialer returns a bridge.Dialer that dials url on every call.
func NewDialer(url string, opts ...Option) bridge.Dialer {
	return func(ctx context.Context) (bridge.Conn, error) {
		return Dial(ctx, url, opts...)
	}
}

// Dial opens a websocket to url and starts reading frames.
func Dial(ctx context.Context, url string, opts ...Option) (*Connection, error) {
	o := options{
		codec:   codec.CBOR(),
		dialer:  DefaultDialer,
		logger:  logger.Nop(),
		timeout: constants.DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	d := *o.dialer
	d.Subprotocols = []string{o.codec.Name()}

	conn, res, err := d.DialContext(ctx, url, o.header)
	if res != nil && res.Body != nil {
		res.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: dialing %s: %v", constants.ErrConnectionLost, url, err)
	}

	c := o.codec
	if proto := conn.Subprotocol(); proto != "" && proto != c.Name() {
		negotiated, ok := codec.ByName(proto)
		if !ok {
			conn.Close()
			return nil, fmt.Errorf("%w: engine chose unknown subprotocol %q", constants.ErrConnectionLost, proto)
		}
		c = negotiated
	}

	messageType := gorilla.BinaryMessage
	if c.Name() == codec.JSON().Name() {
		messageType = gorilla.TextMessage
	}

	ws := &Connection{
		Toolkit:     bridge.NewToolkit(c),
		conn:        conn,
		messageType: messageType,
		timeout:     o.timeout,
		logger:      o.logger,
		events:      make(chan bridge.Event, eventBuffer),
		done:        make(chan struct{}),
	}
	go ws.readLoop()
	return ws, nil
}

func (c *Connection) Unmarshaler() codec.Unmarshaler {
	return c.Toolkit.Unmarshaler
}

func (c *Connection) Events() <-chan bridge.Event {
	return c.events
}

func (c *Connection) Done() <-chan struct{} {
	return c.done
}

func (c *Connection) Err() error {
	c.errLock.Lock()
	defer c.errLock.Unlock()
	return c.err
}

// Send writes a request and waits for the reply. When the connection
// drops while waiting, Send returns the connection error.
func (c *Connection) Send(ctx context.Context, method bridge.Method, params any) (codec.RawMessage, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	select {
	case <-c.done:
		return nil, c.Err()
	default:
	}

	return c.Roundtrip(ctx, method, params, c.write)
}

func (c *Connection) write(data []byte) error {
	c.writeLock.Lock()
	err := c.conn.WriteMessage(c.messageType, data)
	c.writeLock.Unlock()

	if err != nil {
		err = fmt.Errorf("%w: %v", constants.ErrConnectionLost, err)
		c.closeWithError(err)
	}
	return err
}

// Close sends a close frame, bounded by ctx, and tears the connection
// down. Pending requests fail with ErrClosed.
func (c *Connection) Close(ctx context.Context) error {
	select {
	case <-c.done:
		return nil
	default:
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(time.Second)
	}

	c.writeLock.Lock()
	err := c.conn.WriteControl(gorilla.CloseMessage, gorilla.FormatCloseMessage(constants.CloseMessageCode, ""), deadline)
	c.writeLock.Unlock()
	if err != nil && !errors.Is(err, gorilla.ErrCloseSent) {
		c.logger.Warn("failed to write close message", "error", err)
	}

	c.closeWithError(ErrClosed)
	return nil
}

func (c *Connection) closeWithError(err error) {
	c.closeOnce.Do(func() {
		c.errLock.Lock()
		c.err = err
		c.errLock.Unlock()

		close(c.done)
		c.CancelPending(err)
		if cerr := c.conn.Close(); cerr != nil {
			c.logger.Debug("closing websocket", "error", cerr)
		}
	})
}

// readLoop handles frames one at a time so events keep arrival order.
func (c *Connection) readLoop() {
	defer close(c.events)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.closeWithError(fmt.Errorf("%w: %v", constants.ErrConnectionLost, err))
			return
		}

		ev, err := c.HandleFrame(data)
		if err != nil {
			c.logger.Error("dropping bridge frame", "error", err)
			continue
		}
		if ev == nil {
			continue
		}

		select {
		case c.events <- *ev:
		case <-c.done:
			return
		}
	}
}
