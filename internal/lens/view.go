package lens

import "math"

// ViewTransform maps simulation space to surface space:
// surface = sim*K + (X, Y).
type ViewTransform struct {
	K float64 `json:"k"`
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Centered returns the unscaled transform that puts the simulation origin
// in the middle of a width x height surface.
func Centered(width, height float64) ViewTransform {
	return ViewTransform{K: 1, X: width / 2, Y: height / 2}
}

// Valid reports whether the transform is finite and invertible.
func (t ViewTransform) Valid() bool {
	for _, v := range []float64{t.K, t.X, t.Y} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return t.K > 0
}

// Apply maps a simulation point to the surface.
func (t ViewTransform) Apply(p Point) Point {
	return Point{X: p.X*t.K + t.X, Y: p.Y*t.K + t.Y}
}

// Invert maps a surface point back to simulation space.
func (t ViewTransform) Invert(p Point) Point {
	return Point{X: (p.X - t.X) / t.K, Y: (p.Y - t.Y) / t.K}
}

// Focus tracks the lens focus in simulation space as the pointer moves.
// It caches the inverse of the current view; changing the view drops the
// cache and the next pointer event recomputes it.
type Focus struct {
	view ViewTransform

	cached     bool
	invK       float64
	invX, invY float64

	point Point
	set   bool
}

// NewFocus returns a focus tracker for the given view.
func NewFocus(view ViewTransform) *Focus {
	return &Focus{view: view}
}

// View returns the current view transform.
func (f *Focus) View() ViewTransform { return f.view }

// SetView installs a new pan/zoom transform and invalidates the cached
// inverse mapping.
func (f *Focus) SetView(t ViewTransform) {
	f.view = t
	f.cached = false
}

// Cached reports whether an inverse mapping is currently cached.
func (f *Focus) Cached() bool { return f.cached }

// Update recomputes the focus from a pointer position on the surface and
// returns it in simulation space.
func (f *Focus) Update(surface Point) Point {
	f.point = f.ToSimulation(surface)
	f.set = true
	return f.point
}

// ToSimulation inverts a surface point through the cached mapping,
// rebuilding the cache first if the view changed.
func (f *Focus) ToSimulation(surface Point) Point {
	if !f.cached {
		f.invK = 1 / f.view.K
		f.invX = -f.view.X / f.view.K
		f.invY = -f.view.Y / f.view.K
		f.cached = true
	}
	return Point{X: surface.X*f.invK + f.invX, Y: surface.Y*f.invK + f.invY}
}

// Point returns the last focus and whether the pointer has been seen.
func (f *Focus) Point() (Point, bool) { return f.point, f.set }

// Clear forgets the focus point; the view is kept.
func (f *Focus) Clear() {
	f.point = Point{}
	f.set = false
}
