package whiteboard

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/uuid"

	"github.com/whiteboard-sdk/whiteboard.go/internal/clock"
	"github.com/whiteboard-sdk/whiteboard.go/internal/queue"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/bridge"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/bridge/gorillaws"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/camera"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/config"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/constants"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/events"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/imageservice"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/logger"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/phase"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/scenes"
)

const closeTimeout = time.Second

// sessionConfig is what live rooms and replays are configured with alike.
type sessionConfig interface {
	UUID() string
	Token() string
	Region() config.Region
	Timeout() time.Duration
	DisableCameraTransform() bool
	CameraBound() *camera.Bound
}

// displayer is the session core shared by Room and Player: the phase
// machine, both serial queues, the bridge connection and the local mirrors
// of camera, scenes and custom event subscriptions.
type displayer struct {
	id      string
	uuid    string
	token   string
	region  config.Region
	timeout time.Duration

	opts   *options
	logger logger.Logger
	clock  clock.Clock

	machine    *phase.Machine
	commands   *queue.Serial
	deliveries *queue.Serial

	listeners     *listeners
	phaseChanged  *signal[phase.Change]
	disconnected  *signal[error]
	sceneChanged  *signal[scenes.State]
	cameraChanged *signal[camera.State]

	ctx    context.Context
	cancel context.CancelFunc

	connMu sync.RWMutex
	conn   bridge.Conn

	camera *camera.Engine
	scenes *scenes.Tree
	events *events.Registry
	images imageservice.Service

	stateMu    sync.RWMutex
	background color.RGBA
	observerID int64

	closed *Future[struct{}]

	// Set by Room and Player before start.
	join    func(ctx context.Context, conn bridge.Conn) (bridge.JoinResult, error)
	applied func(bridge.JoinResult)
	extra   func(conn bridge.Conn, ev bridge.Event) bool
	ready   func(error)
}

func newDisplayer(kind string, cfg sessionConfig, o *options) (*displayer, error) {
	sid, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("generating session id: %w", err)
	}

	log := logger.With(o.logger, "kind", kind, "room", cfg.UUID(), "session", sid.String())
	d := &displayer{
		id:         sid.String(),
		uuid:       cfg.UUID(),
		token:      cfg.Token(),
		region:     cfg.Region(),
		timeout:    cfg.Timeout(),
		opts:       o,
		logger:     log,
		clock:      o.clock,
		background: color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff},
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())

	d.deliveries = queue.NewSerial(kind+" deliveries", log)
	d.commands = queue.NewSerial(kind+" commands", log)

	d.listeners = newListeners(d.deliveries, log)
	d.phaseChanged = register[phase.Change](d.listeners, "phase")
	d.disconnected = register[error](d.listeners, "disconnect")
	d.sceneChanged = register[scenes.State](d.listeners, "scene")
	d.cameraChanged = register[camera.State](d.listeners, "camera")

	d.machine = phase.NewMachine(phase.Connecting, func(c phase.Change) {
		log.Info("phase changed", "from", c.From, "to", c.To, "cause", c.Cause)
		emit(d.listeners, d.phaseChanged, c)
	})

	d.camera = camera.NewEngine()
	d.camera.SetViewSize(o.width, o.height)
	d.camera.SetUserTransformDisabled(cfg.DisableCameraTransform())
	if b := cfg.CameraBound(); b != nil {
		if _, err := d.camera.SetBound(b); err != nil {
			d.close()
			return nil, err
		}
	}

	d.scenes = scenes.NewTree()
	d.events = events.NewRegistry(
		events.WithClock(o.clock),
		events.WithCoalesce(o.coalesce),
		events.WithDeliver(func(job func()) { d.deliveries.Submit(job) }),
		events.WithLogger(log),
	)

	d.images = o.images
	if d.images == nil {
		d.images = imageservice.NewBridgeService(d.connected, log)
	}
	d.closed = newFuture[struct{}](d.deliveries)
	return d, nil
}

// close releases the queues of a session that never started.
func (d *displayer) close() {
	d.cancel()
	d.commands.Close()
	d.deliveries.Close()
}

// start queues the join. joinCtx bounds the join only; once connected the
// session lives until Disconnect or a failure.
func (d *displayer) start(joinCtx context.Context) {
	d.commands.Submit(func() { d.open(joinCtx) })
}

func (d *displayer) currentConn() bridge.Conn {
	d.connMu.RLock()
	defer d.connMu.RUnlock()
	return d.conn
}

// connected returns the live connection or ErrNotConnected.
func (d *displayer) connected() (bridge.Conn, error) {
	if c := d.currentConn(); c != nil {
		return c, nil
	}
	return nil, constants.ErrNotConnected
}

func (d *displayer) swapConn(next bridge.Conn) bridge.Conn {
	d.connMu.Lock()
	defer d.connMu.Unlock()
	prev := d.conn
	d.conn = next
	return prev
}

func (d *displayer) open(joinCtx context.Context) {
	ctx, cancel := context.WithCancel(d.ctx)
	defer cancel()
	stop := context.AfterFunc(joinCtx, cancel)
	defer stop()

	conn, res, err := d.establish(ctx, "join")
	if err == nil && !d.install(conn, res, phase.Connecting) {
		err = errCancelled("join")
	}
	if err != nil {
		d.logger.Warn("join failed", "error", err)
		d.fail(phase.Connecting, err)
	}
	if d.ready != nil {
		d.ready(err)
	}
}

// establish dials and joins until it succeeds, ctx is done or the session
// timeout runs out. Transport failures are retried with the session's
// retryer; engine refusals are final.
func (d *displayer) establish(parent context.Context, verb string) (bridge.Conn, bridge.JoinResult, error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	budget := bridge.Budget{Retryer: d.opts.retryer, Deadline: d.clock.Now().Add(d.timeout)}
	var expired atomic.Bool
	timer := d.clock.AfterFunc(d.timeout, func() {
		expired.Store(true)
		cancel()
	})
	defer timer.Stop()

	stopped := func(err error) error {
		if expired.Load() {
			return fmt.Errorf("%w: %s exceeded %d ms", constants.ErrConnectionTimeout, verb, d.timeout.Milliseconds())
		}
		if ctx.Err() != nil {
			return cancelled(err)
		}
		return nil
	}

	for attempt := 0; ; attempt++ {
		conn, res, err := d.attempt(ctx)
		if err == nil {
			return conn, res, nil
		}
		if serr := stopped(err); serr != nil {
			return nil, bridge.JoinResult{}, serr
		}
		if !retryable(err) {
			return nil, bridge.JoinResult{}, err
		}

		delay, ok := budget.Next(d.clock.Now(), attempt, err)
		if !ok {
			return nil, bridge.JoinResult{}, fmt.Errorf("%s gave up after %d attempts: %w", verb, attempt+1, err)
		}
		d.logger.Debug("retrying", "verb", verb, "attempt", attempt+1, "delay", delay, "error", err)

		select {
		case <-ctx.Done():
			return nil, bridge.JoinResult{}, stopped(ctx.Err())
		case <-d.clock.After(delay):
		}
	}
}

func (d *displayer) attempt(ctx context.Context) (bridge.Conn, bridge.JoinResult, error) {
	conn, err := d.opts.dialer(ctx)
	if err != nil {
		return nil, bridge.JoinResult{}, err
	}
	res, err := d.join(ctx, conn)
	if err != nil {
		closeQuietly(conn)
		return nil, bridge.JoinResult{}, err
	}
	return conn, res, nil
}

// install makes conn the session connection and moves from to Connected.
// It reports false when the session started terminating meanwhile.
func (d *displayer) install(conn bridge.Conn, res bridge.JoinResult, from phase.Phase) bool {
	d.connMu.Lock()
	if d.machine.Current() != from {
		d.connMu.Unlock()
		closeQuietly(conn)
		return false
	}
	d.conn = conn
	d.connMu.Unlock()

	d.apply(res)
	if !d.machine.TransitionFrom(from, phase.Connected, nil) {
		// The pending shutdown job owns the connection now.
		return false
	}
	go d.pump(conn)
	return true
}

// apply mirrors the room state a join answered with.
func (d *displayer) apply(res bridge.JoinResult) {
	d.stateMu.Lock()
	d.observerID = res.ObserverID
	if c, err := parseColor(res.BackgroundColor); err == nil {
		d.background = c
	}
	d.stateMu.Unlock()

	if err := d.scenes.Replace(res.Scenes); err != nil {
		d.logger.Warn("engine sent invalid scenes", "error", err)
	}
	if res.ScenePath != "" {
		if err := d.scenes.SetCurrent(res.ScenePath); err != nil {
			d.logger.Warn("engine sent invalid scene path", "path", res.ScenePath, "error", err)
		}
	}
	d.syncPptRegion()
	d.camera.Set(res.Camera)

	if d.applied != nil {
		d.applied(res)
	}
}

// pump applies engine events in arrival order until conn goes away.
func (d *displayer) pump(conn bridge.Conn) {
	for ev := range conn.Events() {
		d.handle(conn, ev)
	}
	d.lost(conn)
}

func (d *displayer) lost(conn bridge.Conn) {
	d.interrupted(conn, conn.Err())
}

// interrupted moves a Connected session to Reconnecting and queues the
// reconnect, which runs under the session timeout.
func (d *displayer) interrupted(conn bridge.Conn, cause error) {
	if d.ctx.Err() != nil || d.currentConn() != conn {
		return
	}
	if !d.machine.TransitionFrom(phase.Connected, phase.Reconnecting, cause) {
		return
	}
	d.logger.Warn("connection lost", "error", cause)
	d.commands.Submit(d.reconnect)
}

func (d *displayer) reconnect() {
	if d.machine.Current() != phase.Reconnecting {
		return
	}
	if old := d.swapConn(nil); old != nil {
		closeQuietly(old)
	}

	conn, res, err := d.establish(d.ctx, "reconnect")
	if err != nil {
		d.logger.Error("reconnect failed", "error", err)
		d.fail(phase.Reconnecting, err)
		return
	}
	if d.install(conn, res, phase.Reconnecting) {
		d.opts.retryer.Reset()
		d.logger.Info("reconnected")
	}
}

//nolint:gocyclo
func (d *displayer) handle(conn bridge.Conn, ev bridge.Event) {
	switch ev.Kind {
	case bridge.PhaseChanged:
		p, err := bridge.DecodeEvent[bridge.PhasePayload](conn, ev)
		if err != nil {
			d.logger.Warn("dropping event", "event", ev.Kind, "error", err)
			return
		}
		next, err := phase.Parse(p.Phase)
		if err != nil {
			d.logger.Warn("dropping event", "event", ev.Kind, "error", err)
			return
		}
		switch {
		case next.Terminating():
			d.disconnect(fmt.Errorf("%w: engine closed the session", constants.ErrConnectionLost))
			return
		case next == phase.Reconnecting:
			d.interrupted(conn, fmt.Errorf("%w: engine is reconnecting", constants.ErrConnectionLost))
			return
		}
		if err := d.machine.TransitionTo(next, nil); err != nil {
			d.logger.Debug("dropping phase change", "error", err)
		}

	case bridge.SceneStateChanged:
		p, err := bridge.DecodeEvent[bridge.SceneStatePayload](conn, ev)
		if err != nil {
			d.logger.Warn("dropping event", "event", ev.Kind, "error", err)
			return
		}
		if err := d.scenes.SetCurrent(p.ScenePath); err != nil {
			d.logger.Warn("engine sent invalid scene path", "path", p.ScenePath, "error", err)
			return
		}
		d.syncPptRegion()
		emit(d.listeners, d.sceneChanged, d.scenes.State())

	case bridge.ScenesChanged:
		p, err := bridge.DecodeEvent[bridge.ScenesPayload](conn, ev)
		if err != nil {
			d.logger.Warn("dropping event", "event", ev.Kind, "error", err)
			return
		}
		if err := d.scenes.Replace(p.Scenes); err != nil {
			d.logger.Warn("engine sent invalid scenes", "error", err)
			return
		}
		if p.ScenePath != "" {
			if err := d.scenes.SetCurrent(p.ScenePath); err != nil {
				d.logger.Warn("engine sent invalid scene path", "path", p.ScenePath, "error", err)
			}
		}
		d.syncPptRegion()
		emit(d.listeners, d.sceneChanged, d.scenes.State())

	case bridge.CameraChanged:
		s, err := bridge.DecodeEvent[camera.State](conn, ev)
		if err != nil {
			d.logger.Warn("dropping event", "event", ev.Kind, "error", err)
			return
		}
		d.camera.Set(s)
		emit(d.listeners, d.cameraChanged, d.camera.State())

	case bridge.IframeBounds:
		r, err := bridge.DecodeEvent[camera.Rectangle](conn, ev)
		if err != nil {
			d.logger.Warn("dropping event", "event", ev.Kind, "error", err)
			return
		}
		if r.Empty() {
			d.camera.ClearRegion(camera.RegionIframe)
		} else {
			d.camera.SetRegion(camera.RegionIframe, r)
		}

	case bridge.MagixEvent:
		e, err := bridge.DecodeEvent[events.Event](conn, ev)
		if err != nil {
			d.logger.Warn("dropping event", "event", ev.Kind, "error", err)
			return
		}
		if !d.events.Dispatch(e) {
			d.logger.Debug("no listener for custom event", "name", e.Name)
		}

	case bridge.Kicked:
		p, err := bridge.DecodeEvent[bridge.KickedPayload](conn, ev)
		if err != nil {
			d.logger.Warn("undecodable kick, leaving anyway", "event", ev.Kind, "error", err)
		}
		d.disconnect(fmt.Errorf("%w: kicked from room: %s", constants.ErrConnectionLost, p.Reason))

	default:
		if d.extra != nil && d.extra(conn, ev) {
			return
		}
		d.logger.Debug("ignoring event", "event", ev.Kind)
	}
}

// syncPptRegion points the ppt content region at the current scene's
// slide, or clears it.
func (d *displayer) syncPptRegion() {
	if s, ok := d.scenes.State().Current(); ok && s.Ppt != nil {
		d.camera.SetRegion(camera.RegionPpt, s.Ppt.Region())
		return
	}
	d.camera.ClearRegion(camera.RegionPpt)
}

// disconnect moves the session to Disconnecting, cancels everything in
// flight and queues the shutdown. cause is nil for a requested disconnect.
func (d *displayer) disconnect(cause error) *Future[struct{}] {
	if err := d.machine.TransitionTo(phase.Disconnecting, cause); err != nil {
		return d.closed
	}
	d.cancel()
	if conn := d.currentConn(); conn != nil {
		conn.CancelPending(errCancelled("disconnect"))
	}
	if !d.commands.Submit(func() { d.shutdown(cause) }) {
		d.shutdown(cause)
	}
	return d.closed
}

func (d *displayer) shutdown(cause error) {
	if conn := d.swapConn(nil); conn != nil {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		if cause == nil {
			if _, err := conn.Send(ctx, bridge.LeaveRoom, nil); err != nil {
				d.logger.Debug("leave failed", "error", err)
			}
		}
		_ = conn.Close(ctx)
		cancel()
	}
	if err := d.machine.TransitionTo(phase.Disconnected, cause); err != nil {
		d.logger.Error("shutdown", "error", err)
	}
	d.teardown(cause)
}

// fail ends a session that could not (re)join. It is a no-op once the
// session has moved past from.
func (d *displayer) fail(from phase.Phase, err error) {
	if !d.machine.TransitionFrom(from, phase.Disconnected, err) {
		return
	}
	d.cancel()
	if conn := d.swapConn(nil); conn != nil {
		conn.CancelPending(errCancelled("disconnect"))
		closeQuietly(conn)
	}
	d.teardown(err)
}

// teardown runs once the session is Disconnected. The disconnect error and
// the closed future follow the phase change on the delivery queue.
func (d *displayer) teardown(cause error) {
	d.events.Close()
	if cause != nil {
		emit(d.listeners, d.disconnected, cause)
	}
	d.deliveries.Submit(func() {
		d.closed.resolve(struct{}{})
		d.deliveries.Close()
	})
	d.commands.Close()
}

// submit queues a command. It runs after every command submitted before
// it and resolves with ErrCancelled once the session is terminating.
func submit[T any](d *displayer, method bridge.Method, run func(ctx context.Context, conn bridge.Conn) (T, error)) *Future[T] {
	f := newFuture[T](d.deliveries)
	ok := d.commands.Submit(func() {
		if d.ctx.Err() != nil || d.machine.Current().Terminating() {
			f.reject(errCancelled(string(method)))
			return
		}
		conn, err := d.connected()
		if err != nil {
			f.reject(fmt.Errorf("%s: %w", method, err))
			return
		}
		v, err := run(d.ctx, conn)
		if err != nil && d.ctx.Err() != nil {
			err = cancelled(err)
		}
		f.settle(v, err)
	})
	if !ok {
		f.reject(errCancelled(string(method)))
	}
	return f
}

// send is a command with no result.
func send(d *displayer, method bridge.Method, params any, then func()) *Future[struct{}] {
	return submit(d, method, func(ctx context.Context, conn bridge.Conn) (struct{}, error) {
		if _, err := conn.Send(ctx, method, params); err != nil {
			return struct{}{}, err
		}
		if then != nil {
			then()
		}
		return struct{}{}, nil
	})
}

// rejected returns a future failed with a validation error.
func rejected[T any](d *displayer, err error) *Future[T] {
	var zero T
	return resolved(d.deliveries, zero, err)
}

func retryable(err error) bool {
	return errors.Is(err, constants.ErrConnectionLost) ||
		errors.Is(err, constants.ErrConnectionTimeout) ||
		errors.Is(err, gorillaws.ErrClosed) ||
		errors.Is(err, context.DeadlineExceeded)
}

func errCancelled(op string) error {
	return fmt.Errorf("%w: %s", constants.ErrCancelled, op)
}

func cancelled(err error) error {
	if errors.Is(err, constants.ErrCancelled) {
		return err
	}
	return fmt.Errorf("%w: %v", constants.ErrCancelled, err)
}

func closeQuietly(conn bridge.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	_ = conn.Close(ctx)
}
