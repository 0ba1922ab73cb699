// Package config holds the immutable configuration a session is opened
// with.
//
// Values are built once with functional options and never change after
// construction; the session copies what it needs to mutate at runtime
// (writable, input and camera gates) into its own state.
package config

import (
	"fmt"
	"time"

	"github.com/whiteboard-sdk/whiteboard.go/internal/codec"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/camera"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/constants"
)

// Region is the data center a room is served from.
type Region string

const (
	RegionCNHangzhou      Region = "cn-hz"
	RegionUSSiliconValley Region = "us-sv"
	RegionINMumbai        Region = "in-mum"
	RegionSingapore       Region = "sg"
	RegionGBLondon        Region = "gb-lon"
)

// Regions lists every supported region.
var Regions = []Region{RegionCNHangzhou, RegionUSSiliconValley, RegionINMumbai, RegionSingapore, RegionGBLondon}

func (r Region) Valid() bool {
	for _, known := range Regions {
		if r == known {
			return true
		}
	}
	return false
}

// MemberInfo is the legacy user description.
//
// Deprecated: pass the same fields with WithUserPayload.
type MemberInfo struct {
	Nickname string `json:"nickName,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
	UserID   string `json:"userId,omitempty"`
}

type settings struct {
	region                 Region
	writable               bool
	disableDeviceInputs    bool
	disableCameraTransform bool
	disableOperations      bool
	disableEraseImage      bool
	disableBezier          bool
	disableNewPencil       bool
	cameraBound            *camera.Bound
	userPayload            []byte
	timeout                time.Duration

	begin    time.Time
	duration time.Duration
}

func defaults() settings {
	return settings{
		region:           RegionCNHangzhou,
		writable:         true,
		disableNewPencil: true,
		timeout:          constants.DefaultTimeout,
	}
}

// Option customizes a RoomConfig or PlayerConfig.
type Option func(*settings) error

func WithRegion(r Region) Option {
	return func(s *settings) error {
		if !r.Valid() {
			return fmt.Errorf("%w: unknown region %q", constants.ErrInvalidConfig, r)
		}
		s.region = r
		return nil
	}
}

// WithWritable chooses between interactive (true, default) and read-only
// participation.
func WithWritable(writable bool) Option {
	return func(s *settings) error {
		s.writable = writable
		return nil
	}
}

func WithDisableDeviceInputs(disable bool) Option {
	return func(s *settings) error {
		s.disableDeviceInputs = disable
		return nil
	}
}

func WithDisableCameraTransform(disable bool) Option {
	return func(s *settings) error {
		s.disableCameraTransform = disable
		return nil
	}
}

func WithDisableEraseImage(disable bool) Option {
	return func(s *settings) error {
		s.disableEraseImage = disable
		return nil
	}
}

func WithDisableBezier(disable bool) Option {
	return func(s *settings) error {
		s.disableBezier = disable
		return nil
	}
}

// WithDisableNewPencil turns the stroke tapering effect off (true,
// default) or on.
func WithDisableNewPencil(disable bool) Option {
	return func(s *settings) error {
		s.disableNewPencil = disable
		return nil
	}
}

func WithCameraBound(b camera.Bound) Option {
	return func(s *settings) error {
		if err := b.Validate(); err != nil {
			return err
		}
		if b.Rect != nil {
			r := *b.Rect
			b.Rect = &r
		}
		s.cameraBound = &b
		return nil
	}
}

// WithUserPayload attaches user data relayed to every member of the room.
// The payload is encoded immediately, so later changes to v are not seen.
func WithUserPayload(v any) Option {
	return func(s *settings) error {
		if v == nil {
			s.userPayload = nil
			return nil
		}
		data, err := codec.JSON().Marshal(v)
		if err != nil {
			return fmt.Errorf("%w: user payload: %v", constants.ErrInvalidConfig, err)
		}
		s.userPayload = data
		return nil
	}
}

// WithTimeout bounds the join and every reconnect attempt sequence.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) error {
		if d <= 0 {
			return fmt.Errorf("%w: timeout must be positive, got %v", constants.ErrInvalidConfig, d)
		}
		s.timeout = d
		return nil
	}
}

// WithMemberInfo sets the user payload from legacy member information.
//
// Deprecated: use WithUserPayload.
func WithMemberInfo(m MemberInfo) Option {
	return WithUserPayload(m)
}

// WithDisableOperations disables both device inputs and camera transforms.
// It is folded into those two settings when the configuration is built.
//
// Deprecated: use WithDisableDeviceInputs and WithDisableCameraTransform.
func WithDisableOperations(disable bool) Option {
	return func(s *settings) error {
		s.disableOperations = disable
		return nil
	}
}

// WithBeginTime sets where a replay starts.
func WithBeginTime(t time.Time) Option {
	return func(s *settings) error {
		s.begin = t
		return nil
	}
}

// WithDuration limits how much of the recording a replay covers.
func WithDuration(d time.Duration) Option {
	return func(s *settings) error {
		if d < 0 {
			return fmt.Errorf("%w: negative replay duration %v", constants.ErrInvalidConfig, d)
		}
		s.duration = d
		return nil
	}
}

func build(uuid, token string, opts []Option) (settings, error) {
	if uuid == "" {
		return settings{}, fmt.Errorf("%w: room uuid is required", constants.ErrInvalidConfig)
	}
	if token == "" {
		return settings{}, fmt.Errorf("%w: room token is required", constants.ErrInvalidConfig)
	}
	s := defaults()
	for _, o := range opts {
		if err := o(&s); err != nil {
			return settings{}, err
		}
	}
	if s.disableOperations {
		s.disableDeviceInputs = true
		s.disableCameraTransform = true
	}
	return s, nil
}

// common is what live rooms and replays share.
type common struct {
	uuid  string
	token string
	s     settings
}

func (c *common) UUID() string           { return c.uuid }
func (c *common) Token() string          { return c.token }
func (c *common) Region() Region         { return c.s.region }
func (c *common) Timeout() time.Duration { return c.s.timeout }

func (c *common) DisableCameraTransform() bool { return c.s.disableCameraTransform }

// CameraBound returns a copy of the configured bound, or nil.
func (c *common) CameraBound() *camera.Bound {
	if c.s.cameraBound == nil {
		return nil
	}
	b := *c.s.cameraBound
	if b.Rect != nil {
		r := *b.Rect
		b.Rect = &r
	}
	return &b
}

// RoomConfig configures a live room.
type RoomConfig struct {
	common
}

// NewRoom validates and freezes a live room configuration. The token must
// have been issued for uuid; that is checked when the room connects.
func NewRoom(uuid, token string, opts ...Option) (*RoomConfig, error) {
	s, err := build(uuid, token, opts)
	if err != nil {
		return nil, err
	}
	if !s.begin.IsZero() || s.duration != 0 {
		return nil, fmt.Errorf("%w: begin time and duration only apply to replays", constants.ErrInvalidConfig)
	}
	return &RoomConfig{common{uuid: uuid, token: token, s: s}}, nil
}

func (c *RoomConfig) Writable() bool            { return c.s.writable }
func (c *RoomConfig) DisableDeviceInputs() bool { return c.s.disableDeviceInputs }
func (c *RoomConfig) DisableEraseImage() bool   { return c.s.disableEraseImage }
func (c *RoomConfig) DisableBezier() bool       { return c.s.disableBezier }
func (c *RoomConfig) DisableNewPencil() bool    { return c.s.disableNewPencil }

// UserPayload returns a copy of the encoded (JSON) user payload, nil when
// none was set.
func (c *RoomConfig) UserPayload() []byte {
	if c.s.userPayload == nil {
		return nil
	}
	return append([]byte(nil), c.s.userPayload...)
}

// DecodeUserPayload decodes the user payload into dst.
func (c *RoomConfig) DecodeUserPayload(dst any) error {
	return codec.RawMessage(c.s.userPayload).Decode(codec.JSON(), dst)
}

// PlayerConfig configures a replay.
type PlayerConfig struct {
	common
}

func NewPlayer(uuid, token string, opts ...Option) (*PlayerConfig, error) {
	s, err := build(uuid, token, opts)
	if err != nil {
		return nil, err
	}
	return &PlayerConfig{common{uuid: uuid, token: token, s: s}}, nil
}

// BeginTime is the zero time when the replay starts at the beginning of
// the recording.
func (c *PlayerConfig) BeginTime() time.Time    { return c.s.begin }
func (c *PlayerConfig) Duration() time.Duration { return c.s.duration }
