package whiteboard

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/whiteboard-sdk/whiteboard.go/pkg/bridge"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/config"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/constants"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/scenes"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/token"
)

// Room is a session in a live room.
type Room struct {
	*displayer

	cfg         *config.RoomConfig
	userPayload any
	joined      *Future[*Room]

	writable             atomic.Bool
	deviceInputsDisabled atomic.Bool
}

// Connect validates cfg and starts joining the room. It returns as soon as
// the configuration is accepted; Joined resolves when the room is
// Connected or the join failed. ctx bounds the join only.
//
// A token that is not a room token, or was issued for another room, fails
// with ErrAuthorization before anything is dialed.
func Connect(ctx context.Context, cfg *config.RoomConfig, opts ...Option) (*Room, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil room config", constants.ErrInvalidConfig)
	}
	if err := token.CheckRoom(cfg.Token(), cfg.UUID()); err != nil {
		return nil, err
	}
	var payload any
	if raw := cfg.UserPayload(); raw != nil {
		if err := cfg.DecodeUserPayload(&payload); err != nil {
			return nil, fmt.Errorf("%w: user payload: %v", constants.ErrInvalidConfig, err)
		}
	}
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}

	d, err := newDisplayer("room", cfg, o)
	if err != nil {
		return nil, err
	}
	r := &Room{
		displayer:   d,
		cfg:         cfg,
		userPayload: payload,
		joined:      newFuture[*Room](d.deliveries),
	}
	r.writable.Store(cfg.Writable())
	r.deviceInputsDisabled.Store(cfg.DisableDeviceInputs())

	d.join = r.joinRoom
	d.applied = func(res bridge.JoinResult) { r.writable.Store(res.Writable) }
	d.ready = func(err error) {
		if err != nil {
			r.joined.reject(err)
			return
		}
		r.joined.resolve(r)
	}
	d.start(ctx)
	return r, nil
}

// joinRoom sends the join. A rejoin after a reconnect carries the current
// writability, gates, bound and custom event subscriptions.
func (r *Room) joinRoom(ctx context.Context, conn bridge.Conn) (bridge.JoinResult, error) {
	return bridge.Call[bridge.JoinResult](ctx, conn, bridge.JoinRoom, bridge.JoinParams{
		UUID:                   r.uuid,
		Token:                  r.token,
		Region:                 string(r.region),
		Session:                r.id,
		Writable:               r.writable.Load(),
		DisableDeviceInputs:    r.deviceInputsDisabled.Load(),
		DisableCameraTransform: r.camera.UserTransformDisabled(),
		DisableEraseImage:      r.cfg.DisableEraseImage(),
		DisableBezier:          r.cfg.DisableBezier(),
		DisableNewPencil:       r.cfg.DisableNewPencil(),
		CameraBound:            r.camera.Bound(),
		UserPayload:            r.userPayload,
		Listeners:              r.listenerParams(),
	})
}

// Joined resolves with the room once it is Connected, or with the reason
// the join failed.
func (r *Room) Joined() *Future[*Room] {
	return r.joined
}

func (r *Room) Config() *config.RoomConfig {
	return r.cfg
}

// Writable reports whether this member may change the room.
func (r *Room) Writable() bool {
	return r.writable.Load()
}

// SetWritable switches between writer and reader. It resolves with the
// writability the engine granted.
func (r *Room) SetWritable(writable bool) *Future[bool] {
	return submit(r.displayer, bridge.SetWritable, func(ctx context.Context, conn bridge.Conn) (bool, error) {
		res, err := bridge.Call[bridge.FlagParams](ctx, conn, bridge.SetWritable, bridge.FlagParams{Value: writable})
		if err != nil {
			return r.writable.Load(), err
		}
		r.writable.Store(res.Value)
		return res.Value, nil
	})
}

func (r *Room) DeviceInputsDisabled() bool {
	return r.deviceInputsDisabled.Load()
}

// DisableDeviceInputs stops or resumes drawing input from this member.
func (r *Room) DisableDeviceInputs(disabled bool) *Future[struct{}] {
	return send(r.displayer, bridge.DisableDeviceInputs, bridge.FlagParams{Value: disabled}, func() {
		r.deviceInputsDisabled.Store(disabled)
	})
}

// DispatchMagixEvent sends a custom event to every member listening for
// name. Only writable members may dispatch.
func (r *Room) DispatchMagixEvent(name string, payload any) *Future[struct{}] {
	if name == "" {
		return rejected[struct{}](r.displayer, fmt.Errorf("%w: custom event needs a name", constants.ErrInvalidConfig))
	}
	return send(r.displayer, bridge.DispatchMagixEvent, bridge.MagixParams{Name: name, Payload: payload}, nil)
}

// SetScenePath switches the room to the page at path.
func (r *Room) SetScenePath(path string) *Future[struct{}] {
	if err := scenes.ValidatePath(path); err != nil {
		return rejected[struct{}](r.displayer, err)
	}
	return send(r.displayer, bridge.SetScenePath, bridge.PathParams{Path: path}, func() {
		if err := r.scenes.SetCurrent(path); err != nil {
			r.logger.Warn("scene path accepted by engine but not mirrored", "path", path, "error", err)
			return
		}
		r.syncPptRegion()
	})
}

// PutScenes inserts list into dir at index; an index past the end appends.
func (r *Room) PutScenes(dir string, list []scenes.Scene, index int) *Future[struct{}] {
	if err := scenes.ValidatePath(dir); err != nil {
		return rejected[struct{}](r.displayer, err)
	}
	if err := scenes.ValidateNames(list); err != nil {
		return rejected[struct{}](r.displayer, err)
	}
	return send(r.displayer, bridge.PutScenes, bridge.PutScenesParams{Dir: dir, Scenes: list, Index: index}, func() {
		if err := r.scenes.Put(dir, list, index); err != nil {
			r.logger.Warn("scenes accepted by engine but not mirrored", "dir", dir, "error", err)
		}
	})
}

// RemoveScenes removes the page or directory at path; "/" removes all.
func (r *Room) RemoveScenes(path string) *Future[struct{}] {
	if err := scenes.ValidatePath(path); err != nil {
		return rejected[struct{}](r.displayer, err)
	}
	return send(r.displayer, bridge.RemoveScenes, bridge.PathParams{Path: path}, func() {
		if err := r.scenes.Remove(path); err != nil {
			r.logger.Warn("removal accepted by engine but not mirrored", "path", path, "error", err)
			return
		}
		r.syncPptRegion()
	})
}
