package whiteboard

import (
	"fmt"

	"github.com/whiteboard-sdk/whiteboard.go/internal/clock"
	"github.com/whiteboard-sdk/whiteboard.go/internal/codec"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/bridge"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/bridge/gorillaws"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/constants"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/events"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/imageservice"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/logger"
)

// Option configures how a session reaches the engine and reports back.
// Room and replay parameters live in the config package.
type Option func(*options) error

type options struct {
	url      string
	dialer   bridge.Dialer
	codec    codec.Codec
	logger   logger.Logger
	retryer  bridge.Retryer
	images   imageservice.Service
	coalesce events.Coalesce
	width    float64
	height   float64
	clock    clock.Clock
}

// WithURL connects to the engine at a ws:// or wss:// URL over
// gorilla/websocket.
func WithURL(url string) Option {
	return func(o *options) error {
		o.url = url
		return nil
	}
}

// WithDialer replaces the transport. It takes precedence over WithURL.
func WithDialer(d bridge.Dialer) Option {
	return func(o *options) error {
		if d == nil {
			return fmt.Errorf("%w: nil dialer", constants.ErrInvalidConfig)
		}
		o.dialer = d
		return nil
	}
}

// WithCodec selects the wire encoding by name, "cbor" (default) or "json".
func WithCodec(name string) Option {
	return func(o *options) error {
		c, ok := codec.ByName(name)
		if !ok {
			return fmt.Errorf("%w: unknown codec %q", constants.ErrInvalidConfig, name)
		}
		o.codec = c
		return nil
	}
}

func WithLogger(l logger.Logger) Option {
	return func(o *options) error {
		if l != nil {
			o.logger = l
		}
		return nil
	}
}

// WithRetryer sets the reconnect policy. The session timeout still bounds
// the whole reconnect.
func WithRetryer(r bridge.Retryer) Option {
	return func(o *options) error {
		if r != nil {
			o.retryer = r
		}
		return nil
	}
}

// WithImageService fetches scene images from svc instead of asking the
// engine.
func WithImageService(svc imageservice.Service) Option {
	return func(o *options) error {
		o.images = svc
		return nil
	}
}

// WithCoalesce chooses what a high frequency event window delivers.
func WithCoalesce(c events.Coalesce) Option {
	return func(o *options) error {
		o.coalesce = c
		return nil
	}
}

// WithViewSize sets the initial size of the host view.
func WithViewSize(width, height float64) Option {
	return func(o *options) error {
		if width < 0 || height < 0 {
			return fmt.Errorf("%w: negative view size %vx%v", constants.ErrInvalidConfig, width, height)
		}
		o.width, o.height = width, height
		return nil
	}
}

func withClock(c clock.Clock) Option {
	return func(o *options) error {
		o.clock = c
		return nil
	}
}

func buildOptions(opts []Option) (*options, error) {
	o := &options{
		codec:   codec.CBOR(),
		logger:  logger.Default(),
		retryer: bridge.NewBackoff(),
		clock:   clock.Real(),
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	if o.dialer == nil {
		if o.url == "" {
			return nil, fmt.Errorf("%w: no engine URL or dialer", constants.ErrInvalidConfig)
		}
		o.dialer = gorillaws.NewDialer(o.url, gorillaws.WithCodec(o.codec), gorillaws.WithLogger(o.logger))
	}
	return o, nil
}
