package camera

import (
	"fmt"
	"math"
	"sync"

	"github.com/whiteboard-sdk/whiteboard.go/pkg/constants"
)

// Named content regions ScaleToFit can target.
const (
	RegionPpt    = "ppt"
	RegionIframe = "iframe"
)

// Engine owns the camera of one session. Commands take the write lock;
// conversions take the read lock and never mutate.
//
// Programmatic commands are never gated. ApplyGesture, the user input path,
// is rejected while user transforms are disabled.
type Engine struct {
	mu           sync.RWMutex
	state        State
	width        float64
	height       float64
	bound        *Bound
	regions      map[string]Rectangle
	userDisabled bool
}

func NewEngine() *Engine {
	return &Engine{
		state:   Initial(),
		regions: make(map[string]Rectangle),
	}
}

func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Set replaces the state with one reported by the engine. The remote
// engine already applied the bound, so it is not clamped again.
func (e *Engine) Set(s State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s.valid() {
		e.state = s
	}
}

func (e *Engine) SetViewSize(width, height float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.width, e.height = width, height
}

func (e *Engine) ViewSize() (float64, float64) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.width, e.height
}

// SetBound installs b (nil removes it) and re-clamps the current state.
func (e *Engine) SetBound(b *Bound) (State, error) {
	if b != nil {
		if err := b.Validate(); err != nil {
			return State{}, err
		}
		b = b.clone()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.bound = b
	e.state = e.bound.clamp(e.state)
	return e.state, nil
}

func (e *Engine) Bound() *Bound {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.bound.clone()
}

// Move applies a moveCamera command.
func (e *Engine) Move(c Config) (State, error) {
	if err := c.Validate(); err != nil {
		return State{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.state
	if c.CenterX != nil {
		s.CenterX = *c.CenterX
	}
	if c.CenterY != nil {
		s.CenterY = *c.CenterY
	}
	if c.Scale != nil {
		s.Scale = *c.Scale
	}
	if c.Rotation != nil {
		s.Rotation = *c.Rotation
	}
	e.state = e.bound.clamp(s)
	return e.state, nil
}

// Preview returns what Move would produce without applying it.
func (e *Engine) Preview(c Config) State {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s := e.state
	if c.CenterX != nil {
		s.CenterX = *c.CenterX
	}
	if c.CenterY != nil {
		s.CenterY = *c.CenterY
	}
	if c.Scale != nil && *c.Scale > 0 {
		s.Scale = *c.Scale
	}
	if c.Rotation != nil {
		s.Rotation = *c.Rotation
	}
	return e.bound.clamp(s)
}

// MoveToContainer adjusts the camera so r is entirely visible.
func (e *Engine) MoveToContainer(r Rectangle) (State, error) {
	if r.Empty() {
		return State{}, fmt.Errorf("%w: container %vx%v is empty", constants.ErrInvalidConfig, r.Width, r.Height)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = e.bound.clamp(e.state.fit(r, e.width, e.height))
	return e.state, nil
}

func (e *Engine) SetRegion(name string, r Rectangle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.regions[name] = r
}

func (e *Engine) ClearRegion(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.regions, name)
}

func (e *Engine) Region(name string) (Rectangle, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.regions[name]
	return r, ok
}

// ScaleToFit fits the named region into the view once. It reports false,
// leaving the camera untouched, when the region is absent. Calling it
// repeatedly without other changes yields the same state.
func (e *Engine) ScaleToFit(name string) (State, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, ok := e.regions[name]
	if !ok || r.Empty() {
		return e.state, false
	}
	e.state = e.bound.clamp(e.state.fit(r, e.width, e.height))
	return e.state, true
}

func (e *Engine) SetUserTransformDisabled(disabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.userDisabled = disabled
}

func (e *Engine) UserTransformDisabled() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.userDisabled
}

// ApplyGesture applies a user pan/pinch. It reports false without touching
// the camera while user transforms are disabled, and for gestures with
// non finite values.
func (e *Engine) ApplyGesture(g Gesture) (State, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.userDisabled || !g.finite() {
		return e.state, false
	}

	s := e.state
	if g.DX != 0 || g.DY != 0 {
		// Content follows the finger, so the camera moves the other way.
		x, y := rotate(g.DX/s.Scale, g.DY/s.Scale, -s.Rotation)
		s.CenterX -= x
		s.CenterY -= y
	}
	if g.Factor > 0 && g.Factor != 1 {
		anchor := s.ToWorld(g.Anchor, e.width, e.height)
		scaled := s
		scaled.Scale = s.Scale * g.Factor
		scaled = e.bound.clamp(scaled)
		x, y := rotate((g.Anchor.X-e.width/2)/scaled.Scale, (g.Anchor.Y-e.height/2)/scaled.Scale, -scaled.Rotation)
		scaled.CenterX = anchor.X - x
		scaled.CenterY = anchor.Y - y
		s = scaled
	}
	s = e.bound.clamp(s)
	if !s.valid() {
		return e.state, false
	}
	e.state = s
	return e.state, true
}

// ToWorld converts a view-local point to world coordinates under the
// current camera.
func (e *Engine) ToWorld(p Point) Point {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.ToWorld(p, e.width, e.height)
}

// ToView converts a world point to view-local coordinates.
func (e *Engine) ToView(p Point) Point {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.ToView(p, e.width, e.height)
}

// Float is a helper for building Config literals.
func Float(v float64) *float64 {
	return &v
}

// Validate rejects non finite fields and a non positive scale.
func (c Config) Validate() error {
	if c.Scale != nil && !(*c.Scale > 0) {
		return fmt.Errorf("%w: camera scale must be positive, got %v", constants.ErrInvalidConfig, *c.Scale)
	}
	for _, v := range []*float64{c.CenterX, c.CenterY, c.Scale, c.Rotation} {
		if v != nil && !finite(*v) {
			return fmt.Errorf("%w: camera field is not finite", constants.ErrInvalidConfig)
		}
	}
	return nil
}

func (b *Bound) Validate() error {
	if b.MinScale < 0 || b.MaxScale < 0 || (b.MaxScale > 0 && b.MinScale > b.MaxScale) {
		return fmt.Errorf("%w: camera bound scale range [%v, %v]", constants.ErrInvalidConfig, b.MinScale, b.MaxScale)
	}
	if b.Rect != nil && (b.Rect.Width < 0 || b.Rect.Height < 0) {
		return fmt.Errorf("%w: camera bound rectangle has negative size", constants.ErrInvalidConfig)
	}
	return nil
}

func (b *Bound) clone() *Bound {
	if b == nil {
		return nil
	}
	cp := *b
	if b.Rect != nil {
		r := *b.Rect
		cp.Rect = &r
	}
	return &cp
}

func (g Gesture) finite() bool {
	return finite(g.DX) && finite(g.DY) && finite(g.Factor) && finite(g.Anchor.X) && finite(g.Anchor.Y)
}

// valid reports whether s can be used for conversions.
func (s State) valid() bool {
	return s.Scale > 0 && finite(s.Scale) && finite(s.CenterX) && finite(s.CenterY) && finite(s.Rotation)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
