// Package lens implements the circular fisheye used for focus-plus-context
// rendering, and the pan/zoom transform between simulation and surface space.
//
// Everything here is read-only with respect to the layout: the lens maps a
// position to where it should be drawn and never writes back.
package lens

import "math"

// maxScale caps the magnification reported for points near the focus.
const maxScale = 10.0

// Point is a 2D coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Lens is a circular fisheye with precomputed coefficients.
// The zero value is the disabled lens.
type Lens struct {
	Radius     float64
	Distortion float64

	k0, k1 float64
}

// New builds a lens. A radius or distortion of zero yields the disabled lens.
func New(radius, distortion float64) Lens {
	l := Lens{Radius: radius, Distortion: distortion}
	if l.Enabled() {
		e := math.Exp(distortion)
		l.k0 = e / (e - 1) * radius
		l.k1 = distortion / radius
	}
	return l
}

// Disabled returns the identity lens.
func Disabled() Lens { return Lens{} }

// Enabled reports whether the lens distorts anything at all.
func (l Lens) Enabled() bool {
	return l.Radius > 0 && l.Distortion > 0 &&
		!math.IsInf(l.Radius, 0) && !math.IsNaN(l.Distortion) && !math.IsInf(l.Distortion, 0)
}

// Apply maps p for rendering around focus. It returns the drawn position
// and the magnification to apply to the node's radius. Points outside the
// radius, and every point of a disabled lens, map to themselves with scale 1.
func (l Lens) Apply(p, focus Point) (Point, float64) {
	if !l.Enabled() {
		return p, 1
	}
	dx, dy := p.X-focus.X, p.Y-focus.Y
	dd := math.Sqrt(dx*dx + dy*dy)
	if dd >= l.Radius {
		return p, 1
	}
	if dd == 0 {
		// limit of k as dd -> 0
		return p, math.Min(l.k0*l.k1*0.75+0.25, maxScale)
	}
	k := l.k0*(1-math.Exp(-dd*l.k1))/dd*0.75 + 0.25
	return Point{X: focus.X + dx*k, Y: focus.Y + dy*k}, math.Min(k, maxScale)
}

// Apply is the stateless form of Lens.Apply.
func Apply(p, focus Point, radius, distortion float64) (Point, float64) {
	return New(radius, distortion).Apply(p, focus)
}
