// Package camera implements the viewport of a whiteboard session: camera
// state, bounds, transform commands and conversion between view-local and
// world coordinates.
//
// World space has its origin at the center of the view when the session
// started, X growing rightward and Y growing downward. View space is the
// host view's local space with its origin at the top-left corner.
package camera

import (
	"math"
)

type Point struct {
	X float64 `json:"x" cbor:"x"`
	Y float64 `json:"y" cbor:"y"`
}

// State is the camera of one session. CenterX/CenterY is the world point
// shown at the center of the view; Rotation is in radians, clockwise on
// screen.
type State struct {
	CenterX  float64 `json:"centerX" cbor:"centerX"`
	CenterY  float64 `json:"centerY" cbor:"centerY"`
	Scale    float64 `json:"scale" cbor:"scale"`
	Rotation float64 `json:"rotation,omitempty" cbor:"rotation,omitempty"`
}

// Initial is the camera of a freshly opened session.
func Initial() State {
	return State{Scale: 1}
}

// Rectangle is an axis aligned region of world space.
type Rectangle struct {
	OriginX float64 `json:"originX" cbor:"originX" yaml:"originX"`
	OriginY float64 `json:"originY" cbor:"originY" yaml:"originY"`
	Width   float64 `json:"width" cbor:"width" yaml:"width"`
	Height  float64 `json:"height" cbor:"height" yaml:"height"`
}

func (r Rectangle) Center() Point {
	return Point{X: r.OriginX + r.Width/2, Y: r.OriginY + r.Height/2}
}

func (r Rectangle) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

type AnimationMode string

const (
	AnimationContinuous  AnimationMode = "continuous"
	AnimationImmediately AnimationMode = "immediately"
)

// Config is a moveCamera command. Nil fields keep the current value.
type Config struct {
	CenterX       *float64      `json:"centerX,omitempty" cbor:"centerX,omitempty"`
	CenterY       *float64      `json:"centerY,omitempty" cbor:"centerY,omitempty"`
	Scale         *float64      `json:"scale,omitempty" cbor:"scale,omitempty"`
	Rotation      *float64      `json:"rotation,omitempty" cbor:"rotation,omitempty"`
	AnimationMode AnimationMode `json:"animationMode,omitempty" cbor:"animationMode,omitempty"`
}

// Bound constrains every camera mutation. Zero MinScale/MaxScale leave that
// side open; a nil Rect leaves the center free.
type Bound struct {
	MinScale float64    `json:"minScale,omitempty" cbor:"minScale,omitempty" yaml:"minScale"`
	MaxScale float64    `json:"maxScale,omitempty" cbor:"maxScale,omitempty" yaml:"maxScale"`
	Rect     *Rectangle `json:"rect,omitempty" cbor:"rect,omitempty" yaml:"rect"`
	Damping  float64    `json:"damping,omitempty" cbor:"damping,omitempty" yaml:"damping"`
}

func (b *Bound) clamp(s State) State {
	if b == nil {
		return s
	}
	if b.MinScale > 0 && s.Scale < b.MinScale {
		s.Scale = b.MinScale
	}
	if b.MaxScale > 0 && s.Scale > b.MaxScale {
		s.Scale = b.MaxScale
	}
	if r := b.Rect; r != nil {
		s.CenterX = math.Min(math.Max(s.CenterX, r.OriginX), r.OriginX+r.Width)
		s.CenterY = math.Min(math.Max(s.CenterY, r.OriginY), r.OriginY+r.Height)
	}
	return s
}

// Gesture is a user input transform: a pan by DX/DY view units and an
// optional pinch by Factor around Anchor (view space). Factor 0 means no
// pinch.
type Gesture struct {
	DX     float64
	DY     float64
	Factor float64
	Anchor Point
}

// ToWorld converts a view point for a view of size width x height.
func (s State) ToWorld(p Point, width, height float64) Point {
	dx := (p.X - width/2) / s.Scale
	dy := (p.Y - height/2) / s.Scale
	x, y := rotate(dx, dy, -s.Rotation)
	return Point{X: s.CenterX + x, Y: s.CenterY + y}
}

// ToView is the inverse of ToWorld.
func (s State) ToView(p Point, width, height float64) Point {
	x, y := rotate(p.X-s.CenterX, p.Y-s.CenterY, s.Rotation)
	return Point{X: width/2 + x*s.Scale, Y: height/2 + y*s.Scale}
}

func rotate(x, y, theta float64) (float64, float64) {
	if theta == 0 {
		return x, y
	}
	sin, cos := math.Sincos(theta)
	return x*cos - y*sin, x*sin + y*cos
}

// fit returns the camera that shows r entirely in a view of the given
// size. Rotation is kept.
func (s State) fit(r Rectangle, width, height float64) State {
	c := r.Center()
	s.CenterX, s.CenterY = c.X, c.Y
	if width > 0 && height > 0 && !r.Empty() {
		s.Scale = math.Min(width/r.Width, height/r.Height)
	}
	return s
}
