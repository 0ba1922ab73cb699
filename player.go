package whiteboard

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/whiteboard-sdk/whiteboard.go/pkg/bridge"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/config"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/constants"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/phase"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/token"
)

// Player is a session replaying a recorded room. It shares the camera,
// scene, custom event and image surface of Room but cannot change the
// room.
type Player struct {
	*displayer

	cfg   *config.PlayerConfig
	ready *Future[*Player]

	playerPhaseChanged *signal[phase.PlayerPhase]
	scheduleChanged    *signal[time.Duration]

	mu          sync.RWMutex
	playerPhase phase.PlayerPhase
	schedule    time.Duration
	duration    time.Duration
	speed       float64
}

// Replay validates cfg and starts opening the recording. Ready resolves
// once the player is Connected.
func Replay(ctx context.Context, cfg *config.PlayerConfig, opts ...Option) (*Player, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil player config", constants.ErrInvalidConfig)
	}
	if err := token.CheckRoom(cfg.Token(), cfg.UUID()); err != nil {
		return nil, err
	}
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}

	d, err := newDisplayer("replay", cfg, o)
	if err != nil {
		return nil, err
	}
	p := &Player{
		displayer:   d,
		cfg:         cfg,
		ready:       newFuture[*Player](d.deliveries),
		playerPhase: phase.WaitingFirstFrame,
		speed:       1,
	}
	p.playerPhaseChanged = register[phase.PlayerPhase](d.listeners, "player phase")
	p.scheduleChanged = register[time.Duration](d.listeners, "schedule time")

	d.join = p.openReplay
	d.applied = p.applied
	d.extra = p.handle
	d.ready = func(err error) {
		if err != nil {
			p.ready.reject(err)
			return
		}
		p.ready.resolve(p)
	}
	d.start(ctx)
	return p, nil
}

func (p *Player) openReplay(ctx context.Context, conn bridge.Conn) (bridge.JoinResult, error) {
	params := bridge.ReplayParams{
		UUID:        p.uuid,
		Token:       p.token,
		Region:      string(p.region),
		Session:     p.id,
		DurationMs:  p.cfg.Duration().Milliseconds(),
		CameraBound: p.camera.Bound(),
		Listeners:   p.listenerParams(),
	}
	if begin := p.cfg.BeginTime(); !begin.IsZero() {
		params.BeginMs = begin.UnixMilli()
	}
	return bridge.Call[bridge.JoinResult](ctx, conn, bridge.ReplayRoom, params)
}

func (p *Player) applied(res bridge.JoinResult) {
	p.mu.Lock()
	p.duration = time.Duration(res.DurationMs) * time.Millisecond
	p.mu.Unlock()

	if res.PlayerPhase == "" {
		return
	}
	next, err := phase.ParsePlayer(res.PlayerPhase)
	if err != nil {
		p.logger.Warn("engine sent invalid player phase", "error", err)
		return
	}
	// A reopened replay starts over, so this is not a transition.
	p.mu.Lock()
	changed := p.playerPhase != next
	p.playerPhase = next
	p.mu.Unlock()
	if changed {
		emit(p.listeners, p.playerPhaseChanged, next)
	}
}

func (p *Player) handle(conn bridge.Conn, ev bridge.Event) bool {
	switch ev.Kind {
	case bridge.PlayerPhaseChanged:
		payload, err := bridge.DecodeEvent[bridge.PhasePayload](conn, ev)
		if err != nil {
			p.logger.Warn("dropping event", "event", ev.Kind, "error", err)
			return true
		}
		next, err := phase.ParsePlayer(payload.Phase)
		if err != nil {
			p.logger.Warn("dropping event", "event", ev.Kind, "error", err)
			return true
		}
		if err := p.setPlayerPhase(next); err != nil {
			p.logger.Debug("dropping player phase change", "error", err)
		}
		return true

	case bridge.ScheduleTimeChanged:
		payload, err := bridge.DecodeEvent[bridge.ScheduleTimePayload](conn, ev)
		if err != nil {
			p.logger.Warn("dropping event", "event", ev.Kind, "error", err)
			return true
		}
		t := time.Duration(payload.Ms) * time.Millisecond
		p.mu.Lock()
		p.schedule = t
		p.mu.Unlock()
		emit(p.listeners, p.scheduleChanged, t)
		return true
	}
	return false
}

// setPlayerPhase applies a transition and notifies listeners when the
// phase actually changed.
func (p *Player) setPlayerPhase(next phase.PlayerPhase) error {
	p.mu.Lock()
	prev := p.playerPhase
	n, err := prev.TransitionTo(next)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	p.playerPhase = n
	p.mu.Unlock()

	if n != prev {
		emit(p.listeners, p.playerPhaseChanged, n)
	}
	return nil
}

// Ready resolves with the player once the recording is open, or with the
// reason it could not be opened.
func (p *Player) Ready() *Future[*Player] {
	return p.ready
}

func (p *Player) Config() *config.PlayerConfig {
	return p.cfg
}

func (p *Player) PlayerPhase() phase.PlayerPhase {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.playerPhase
}

// ScheduleTime is the playback position within the recording.
func (p *Player) ScheduleTime() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.schedule
}

// Duration is the length of the replayed part of the recording.
func (p *Player) Duration() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.duration
}

func (p *Player) PlaybackSpeed() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.speed
}

func (p *Player) AddPlayerPhaseListener(fn func(phase.PlayerPhase)) ListenerID {
	return listen(p.listeners, p.playerPhaseChanged, fn)
}

func (p *Player) AddScheduleTimeListener(fn func(time.Duration)) ListenerID {
	return listen(p.listeners, p.scheduleChanged, fn)
}

func (p *Player) Play() *Future[struct{}] {
	return p.control(bridge.Play, phase.Playing)
}

func (p *Player) Pause() *Future[struct{}] {
	return p.control(bridge.Pause, phase.Pause)
}

// Stop ends playback for good; a stopped player only accepts Disconnect.
func (p *Player) Stop() *Future[struct{}] {
	return p.control(bridge.Stop, phase.Stopped)
}

func (p *Player) control(method bridge.Method, next phase.PlayerPhase) *Future[struct{}] {
	if _, err := p.PlayerPhase().TransitionTo(next); err != nil {
		return rejected[struct{}](p.displayer, err)
	}
	return send(p.displayer, method, nil, func() {
		if err := p.setPlayerPhase(next); err != nil {
			p.logger.Debug("player phase moved on meanwhile", "error", err)
		}
	})
}

// Seek moves playback to t, clamped to the replay duration.
func (p *Player) Seek(t time.Duration) *Future[struct{}] {
	if t < 0 {
		return rejected[struct{}](p.displayer, fmt.Errorf("%w: negative seek %v", constants.ErrInvalidConfig, t))
	}
	return send(p.displayer, bridge.Seek, bridge.SeekParams{Ms: t.Milliseconds()}, func() {
		p.mu.Lock()
		if p.duration > 0 && t > p.duration {
			t = p.duration
		}
		p.schedule = t
		p.mu.Unlock()
	})
}

func (p *Player) SetPlaybackSpeed(speed float64) *Future[struct{}] {
	if !(speed > 0) || math.IsInf(speed, 0) {
		return rejected[struct{}](p.displayer, fmt.Errorf("%w: playback speed must be positive, got %v", constants.ErrInvalidConfig, speed))
	}
	return send(p.displayer, bridge.SetPlaybackSpeed, bridge.SpeedParams{Speed: speed}, func() {
		p.mu.Lock()
		p.speed = speed
		p.mu.Unlock()
	})
}
