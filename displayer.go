package whiteboard

import (
	"context"
	"fmt"
	"image/color"
	"strconv"
	"strings"
	"time"

	"github.com/whiteboard-sdk/whiteboard.go/pkg/bridge"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/camera"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/constants"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/events"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/imageservice"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/phase"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/scenes"
)

// UUID returns the room identifier.
func (d *displayer) UUID() string {
	return d.uuid
}

// SessionID identifies this connection to the room; every Connect or
// Replay gets a new one.
func (d *displayer) SessionID() string {
	return d.id
}

func (d *displayer) Phase() phase.Phase {
	return d.machine.Current()
}

// ObserverID is the member id the engine assigned on the last join.
func (d *displayer) ObserverID() int64 {
	d.stateMu.RLock()
	defer d.stateMu.RUnlock()
	return d.observerID
}

// Disconnect leaves the room. Pending commands and image fetches resolve
// with ErrCancelled. Calling it again returns the same future.
func (d *displayer) Disconnect() *Future[struct{}] {
	return d.disconnect(nil)
}

// Closed resolves once the session reached Disconnected and every
// notification before it was delivered.
func (d *displayer) Closed() *Future[struct{}] {
	return d.closed
}

// --------------------------------------------------
// Listeners
// --------------------------------------------------

func (d *displayer) AddPhaseListener(fn func(phase.Change)) ListenerID {
	return listen(d.listeners, d.phaseChanged, fn)
}

// AddDisconnectListener is told why a session ended on its own: a failed
// join or reconnect, or the engine closing it.
func (d *displayer) AddDisconnectListener(fn func(error)) ListenerID {
	return listen(d.listeners, d.disconnected, fn)
}

// AddSceneListener is told about scene changes the engine reports.
func (d *displayer) AddSceneListener(fn func(scenes.State)) ListenerID {
	return listen(d.listeners, d.sceneChanged, fn)
}

func (d *displayer) AddCameraListener(fn func(camera.State)) ListenerID {
	return listen(d.listeners, d.cameraChanged, fn)
}

// RemoveListener reports whether id was registered.
func (d *displayer) RemoveListener(id ListenerID) bool {
	return d.listeners.remove(id)
}

// --------------------------------------------------
// Camera
// --------------------------------------------------

func (d *displayer) Camera() camera.State {
	return d.camera.State()
}

func (d *displayer) CameraBound() *camera.Bound {
	return d.camera.Bound()
}

// MoveCamera moves the camera. The engine applies it first; the local
// camera follows once it accepted. Programmatic moves ignore
// DisableCameraTransform.
func (d *displayer) MoveCamera(c camera.Config) *Future[camera.State] {
	if err := c.Validate(); err != nil {
		return rejected[camera.State](d, err)
	}
	return submit(d, bridge.MoveCamera, func(ctx context.Context, conn bridge.Conn) (camera.State, error) {
		if _, err := conn.Send(ctx, bridge.MoveCamera, c); err != nil {
			return camera.State{}, err
		}
		s, err := d.camera.Move(c)
		if err != nil {
			return camera.State{}, err
		}
		emit(d.listeners, d.cameraChanged, s)
		return s, nil
	})
}

// MoveCameraToContainer fits the world rectangle r into the view.
func (d *displayer) MoveCameraToContainer(r camera.Rectangle) *Future[camera.State] {
	if r.Empty() {
		return rejected[camera.State](d, fmt.Errorf("%w: container %vx%v is empty", constants.ErrInvalidConfig, r.Width, r.Height))
	}
	return submit(d, bridge.MoveCameraToContainer, func(ctx context.Context, conn bridge.Conn) (camera.State, error) {
		if _, err := conn.Send(ctx, bridge.MoveCameraToContainer, r); err != nil {
			return camera.State{}, err
		}
		s, err := d.camera.MoveToContainer(r)
		if err != nil {
			return camera.State{}, err
		}
		emit(d.listeners, d.cameraChanged, s)
		return s, nil
	})
}

// ScalePptToFit fits the slide of the current scene into the view. It
// resolves false, without asking the engine, when the scene has no slide.
func (d *displayer) ScalePptToFit(mode camera.AnimationMode) *Future[bool] {
	return d.scaleToFit(camera.RegionPpt, mode)
}

// ScaleIframeToFit fits the iframe content the engine reported into the
// view. It resolves false when there is none.
func (d *displayer) ScaleIframeToFit() *Future[bool] {
	return d.scaleToFit(camera.RegionIframe, "")
}

func (d *displayer) scaleToFit(region string, mode camera.AnimationMode) *Future[bool] {
	return submit(d, bridge.ScaleToFit, func(ctx context.Context, conn bridge.Conn) (bool, error) {
		if _, ok := d.camera.Region(region); !ok {
			return false, nil
		}
		if _, err := conn.Send(ctx, bridge.ScaleToFit, bridge.ScaleToFitParams{Region: region, Mode: mode}); err != nil {
			return false, err
		}
		s, ok := d.camera.ScaleToFit(region)
		if ok {
			emit(d.listeners, d.cameraChanged, s)
		}
		return ok, nil
	})
}

// SetCameraBound constrains every later camera change; nil removes the
// bound. The current camera is clamped right away.
func (d *displayer) SetCameraBound(b *camera.Bound) *Future[camera.State] {
	if b != nil {
		if err := b.Validate(); err != nil {
			return rejected[camera.State](d, err)
		}
	}
	return submit(d, bridge.SetCameraBound, func(ctx context.Context, conn bridge.Conn) (camera.State, error) {
		if _, err := conn.Send(ctx, bridge.SetCameraBound, b); err != nil {
			return camera.State{}, err
		}
		s, err := d.camera.SetBound(b)
		if err != nil {
			return camera.State{}, err
		}
		emit(d.listeners, d.cameraChanged, s)
		return s, nil
	})
}

// DisableCameraTransform blocks or allows user gestures. Programmatic
// camera commands are never blocked.
// The local gate changes right away; the engine is told afterwards.
func (d *displayer) DisableCameraTransform(disabled bool) *Future[struct{}] {
	if !d.machine.Current().Terminating() {
		d.camera.SetUserTransformDisabled(disabled)
	}
	return send(d, bridge.DisableCameraTransform, bridge.FlagParams{Value: disabled}, nil)
}

func (d *displayer) CameraTransformDisabled() bool {
	return d.camera.UserTransformDisabled()
}

// HandleGesture applies a user pan or pinch. It reports false, leaving the
// camera untouched, while camera transforms are disabled or the session is
// terminating. An applied gesture is mirrored to the engine in the
// background.
func (d *displayer) HandleGesture(g camera.Gesture) (camera.State, bool) {
	if d.machine.Current().Terminating() {
		return d.camera.State(), false
	}
	s, ok := d.camera.ApplyGesture(g)
	if !ok {
		return s, false
	}
	emit(d.listeners, d.cameraChanged, s)

	cfg := camera.Config{
		CenterX:       camera.Float(s.CenterX),
		CenterY:       camera.Float(s.CenterY),
		Scale:         camera.Float(s.Scale),
		AnimationMode: camera.AnimationImmediately,
	}
	submit(d, bridge.MoveCamera, func(ctx context.Context, conn bridge.Conn) (struct{}, error) {
		if _, err := conn.Send(ctx, bridge.MoveCamera, cfg); err != nil {
			d.logger.Debug("gesture sync failed", "error", err)
		}
		return struct{}{}, nil
	})
	return s, true
}

// ConvertToPointInWorld maps a point of the host view (origin top-left) to
// whiteboard coordinates.
func (d *displayer) ConvertToPointInWorld(p camera.Point) camera.Point {
	return d.camera.ToWorld(p)
}

// ConvertToPointInView is the inverse of ConvertToPointInWorld.
func (d *displayer) ConvertToPointInView(p camera.Point) camera.Point {
	return d.camera.ToView(p)
}

// RefreshViewSize tells the session the host view was resized. Local
// conversions use the new size immediately.
func (d *displayer) RefreshViewSize(width, height float64) *Future[struct{}] {
	if width < 0 || height < 0 {
		return rejected[struct{}](d, fmt.Errorf("%w: negative view size %vx%v", constants.ErrInvalidConfig, width, height))
	}
	d.camera.SetViewSize(width, height)
	return send(d, bridge.RefreshViewSize, bridge.ViewSizeParams{Width: width, Height: height}, nil)
}

// --------------------------------------------------
// Scenes
// --------------------------------------------------

// GetScenePathType classifies path against the local scene mirror.
func (d *displayer) GetScenePathType(path string) (scenes.PathType, error) {
	return d.scenes.PathType(path)
}

// GetEntireScenes returns a copy of the local scene mirror.
func (d *displayer) GetEntireScenes() map[string][]scenes.Scene {
	return d.scenes.Entire()
}

func (d *displayer) SceneState() scenes.State {
	return d.scenes.State()
}

// FetchEntireScenes asks the engine for the scene set and refreshes the
// local mirror with it.
func (d *displayer) FetchEntireScenes() *Future[map[string][]scenes.Scene] {
	return submit(d, bridge.GetEntireScenes, func(ctx context.Context, conn bridge.Conn) (map[string][]scenes.Scene, error) {
		entire, err := bridge.Call[map[string][]scenes.Scene](ctx, conn, bridge.GetEntireScenes, nil)
		if err != nil {
			return nil, err
		}
		if err := d.scenes.Replace(entire); err != nil {
			return nil, err
		}
		d.syncPptRegion()
		return d.scenes.Entire(), nil
	})
}

// --------------------------------------------------
// Custom events
// --------------------------------------------------

// AddMagixEventListener subscribes h to the custom event name, replacing
// any previous subscription for it. h runs on the delivery queue.
func (d *displayer) AddMagixEventListener(name string, h events.Handler) *Future[struct{}] {
	if name == "" || h == nil {
		return rejected[struct{}](d, fmt.Errorf("%w: custom event listener needs a name and a handler", constants.ErrInvalidConfig))
	}
	return d.listen(bridge.AddMagixEventListener, bridge.ListenerParams{Name: name}, func() {
		d.events.Subscribe(name, h)
	})
}

// AddHighFrequencyEventListener subscribes h to name with deliveries
// coalesced into windows of interval. Intervals below the minimum are
// raised to it; the effective interval is returned.
func (d *displayer) AddHighFrequencyEventListener(name string, interval time.Duration, h events.BatchHandler) (time.Duration, *Future[struct{}]) {
	if name == "" || h == nil {
		return 0, rejected[struct{}](d, fmt.Errorf("%w: custom event listener needs a name and a handler", constants.ErrInvalidConfig))
	}
	effective := events.ClampInterval(interval)
	return effective, d.listen(bridge.AddMagixEventListener, bridge.ListenerParams{Name: name, IntervalMs: effective.Milliseconds()}, func() {
		d.events.SubscribeHighFrequency(name, effective, h)
	})
}

func (d *displayer) RemoveMagixEventListener(name string) *Future[struct{}] {
	return d.listen(bridge.RemoveMagixEventListener, bridge.ListenerParams{Name: name}, func() {
		d.events.Unsubscribe(name)
	})
}

// listen changes the local registry and tells the engine from one queued
// command, so both see subscription changes in submission order. The local
// change stands when the engine cannot be told; a rejoin restores it.
func (d *displayer) listen(method bridge.Method, params bridge.ListenerParams, change func()) *Future[struct{}] {
	return submit(d, method, func(ctx context.Context, conn bridge.Conn) (struct{}, error) {
		change()
		_, err := conn.Send(ctx, method, params)
		return struct{}{}, err
	})
}

// listenerParams lists the subscriptions a (re)join restores.
func (d *displayer) listenerParams() []bridge.ListenerParams {
	names := d.events.Names()
	out := make([]bridge.ListenerParams, 0, len(names))
	for _, name := range names {
		interval, ok := d.events.Interval(name)
		if !ok {
			continue
		}
		out = append(out, bridge.ListenerParams{Name: name, IntervalMs: interval.Milliseconds()})
	}
	return out
}

// --------------------------------------------------
// Images
// --------------------------------------------------

// GetScenePreviewImage renders the page at path. It resolves with a nil
// image when no preview can be produced.
func (d *displayer) GetScenePreviewImage(path string, width, height int) *Future[*imageservice.Image] {
	return d.image(path, width, height, d.images.Preview)
}

// GetSceneSnapshotImage renders the page at path with its background. It
// fails with ErrUnsupportedOperation where the image server cannot.
func (d *displayer) GetSceneSnapshotImage(path string, width, height int) *Future[*imageservice.Image] {
	return d.image(path, width, height, d.images.Snapshot)
}

func (d *displayer) image(path string, width, height int, fetch func(context.Context, imageservice.Request) (*imageservice.Image, error)) *Future[*imageservice.Image] {
	if err := scenes.ValidatePath(path); err != nil {
		return rejected[*imageservice.Image](d, err)
	}
	if d.machine.Current().Terminating() {
		return rejected[*imageservice.Image](d, errCancelled("image"))
	}

	f := newFuture[*imageservice.Image](d.deliveries)
	req := imageservice.Request{Room: d.uuid, Path: path, Width: width, Height: height}
	go func() {
		img, err := fetch(d.ctx, req)
		if err != nil && d.ctx.Err() != nil {
			err = cancelled(err)
		}
		f.settle(img, err)
	}()
	return f
}

// --------------------------------------------------
// Room appearance
// --------------------------------------------------

func (d *displayer) BackgroundColor() color.RGBA {
	d.stateMu.RLock()
	defer d.stateMu.RUnlock()
	return d.background
}

func (d *displayer) SetBackgroundColor(c color.RGBA) *Future[struct{}] {
	return send(d, bridge.SetBackgroundColor, bridge.ColorParams{Color: formatColor(c)}, func() {
		d.stateMu.Lock()
		d.background = c
		d.stateMu.Unlock()
	})
}

// PostIframeMessage forwards payload to the iframe embedded in the room.
func (d *displayer) PostIframeMessage(payload any) *Future[struct{}] {
	return send(d, bridge.PostIframeMessage, bridge.IframeParams{Payload: payload}, nil)
}

// parseColor reads "#rrggbb" or "#rrggbbaa".
func parseColor(s string) (color.RGBA, error) {
	hex, ok := strings.CutPrefix(s, "#")
	if ok && len(hex) == 6 {
		hex += "ff"
	}
	if !ok || len(hex) != 8 {
		return color.RGBA{}, fmt.Errorf("%w: color %q", constants.ErrInvalidConfig, s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("%w: color %q", constants.ErrInvalidConfig, s)
	}
	return color.RGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

func formatColor(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A)
}
