// Package force implements a small 2D force-directed layout solver: pairwise
// repulsion, spring links and a centering force, integrated with damped
// velocities under a decaying "alpha" energy term.
//
// The solver is single-threaded. A Simulation is owned by exactly one caller
// and must not be shared across goroutines.
package force

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Mode selects how the simulation advances on each frame.
type Mode int

const (
	// ModeInteractive integrates one tick per Step, indefinitely.
	ModeInteractive Mode = iota
	// ModeStatic converges in a burst and then freezes.
	ModeStatic
)

func (m Mode) String() string {
	if m == ModeStatic {
		return "static"
	}
	return "interactive"
}

// Config holds the physical parameters of the simulation.
// Defaults mirror the values used by the browser layout the researchers know.
type Config struct {
	// AlphaMin is the energy below which the layout is considered settled. Default: 0.001.
	AlphaMin float64

	// AlphaDecay is the fraction of the remaining distance to AlphaTarget
	// removed per tick. Default: 1 - AlphaMin^(1/300), i.e. 300 ticks to settle.
	AlphaDecay float64

	// VelocityDecay is the friction applied to velocities per tick. Default: 0.4.
	VelocityDecay float64

	// ChargeStrength is the many-body strength; negative repels. Default: -80.
	ChargeStrength float64

	// DistanceMin clamps the repulsion distance to avoid singularities. Default: 6.
	DistanceMin float64

	// LinkDistance is the spring rest length. Default: 30.
	LinkDistance float64

	// CenterStrength scales the centroid correction. Default: 1.
	CenterStrength float64

	// Seed seeds the jiggle source used to separate coincident nodes.
	// Zero picks a time-based seed.
	Seed uint64
}

// DefaultConfig returns the default simulation parameters.
func DefaultConfig() Config {
	return Config{
		AlphaMin:       0.001,
		AlphaDecay:     1 - math.Pow(0.001, 1.0/300),
		VelocityDecay:  0.4,
		ChargeStrength: -80,
		DistanceMin:    6,
		LinkDistance:   30,
		CenterStrength: 1,
	}
}

// Node is a point body. X and Y are NaN until the simulation places it.
type Node struct {
	Index  int
	X, Y   float64
	VX, VY float64

	// FX and FY hold the pinned position while Pinned is set.
	FX, FY float64
	Pinned bool
}

// NewNode returns an unplaced node; AddNodes assigns its initial position.
func NewNode() *Node {
	return &Node{X: math.NaN(), Y: math.NaN()}
}

// Link is a spring between two node indices.
type Link struct {
	Source int
	Target int
}

const (
	initialRadius = 10.0
	maxTickBurst  = 1 << 20
)

var initialAngle = math.Pi * (3 - math.Sqrt(5))

// Simulation integrates node positions under the configured forces.
type Simulation struct {
	cfg   Config
	nodes []*Node
	links []Link

	// per-link spring parameters derived from node degrees
	strengths []float64
	bias      []float64

	alpha       float64
	alphaTarget float64
	mode        Mode
	pending     int // ticks owed by a static settle burst
	ticks       uint64

	rng *rand.Rand
}

// New creates an empty simulation in interactive mode with alpha at 1.
func New(cfg Config) *Simulation {
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Simulation{
		cfg:   cfg,
		alpha: 1,
		rng:   rand.New(rand.NewPCG(seed, 0x9e3779b97f4a7c15)),
	}
}

// Config returns the parameters the simulation was built with.
func (s *Simulation) Config() Config { return s.cfg }

// Nodes returns the node bodies in index order. Callers must treat the
// returned slice as read-only.
func (s *Simulation) Nodes() []*Node { return s.nodes }

// Links returns the current springs.
func (s *Simulation) Links() []Link { return s.links }

// Alpha returns the current energy.
func (s *Simulation) Alpha() float64 { return s.alpha }

// SetAlpha sets the current energy, clamped to [0, 1].
func (s *Simulation) SetAlpha(a float64) {
	s.alpha = math.Max(0, math.Min(1, a))
	s.schedule()
}

// AlphaTarget returns the energy the simulation decays toward.
func (s *Simulation) AlphaTarget() float64 { return s.alphaTarget }

// SetAlphaTarget changes the energy the simulation decays toward.
func (s *Simulation) SetAlphaTarget(t float64) {
	s.alphaTarget = math.Max(0, math.Min(1, t))
}

// Ticks returns the number of integration steps executed so far.
func (s *Simulation) Ticks() uint64 { return s.ticks }

// Mode returns the current advance mode.
func (s *Simulation) Mode() Mode { return s.mode }

// Pending returns the number of ticks owed by a static settle burst.
func (s *Simulation) Pending() int { return s.pending }

// SetMode switches the advance mode. Entering static mode schedules a settle
// burst from the current alpha.
func (s *Simulation) SetMode(m Mode) {
	if s.mode == m {
		return
	}
	s.mode = m
	if m == ModeInteractive {
		s.pending = 0
		return
	}
	s.schedule()
}

// Reheat raises alpha to at least a, so freshly added structure settles
// without a full restart. Alpha is never lowered. In static mode a settle
// burst is scheduled for the next Step.
func (s *Simulation) Reheat(a float64) {
	if a > s.alpha {
		s.alpha = math.Min(1, a)
	}
	s.schedule()
}

// schedule recomputes the settle burst owed in static mode.
func (s *Simulation) schedule() {
	if s.mode != ModeStatic {
		return
	}
	s.pending = s.TicksToConverge(s.alpha)
}

// TicksToConverge returns how many ticks it takes alpha to decay from `from`
// to AlphaMin with a zero target: ceil(log(alphaMin/from) / log(1-alphaDecay)).
func (s *Simulation) TicksToConverge(from float64) int {
	if from <= s.cfg.AlphaMin || s.cfg.AlphaDecay <= 0 {
		return 0
	}
	if s.cfg.AlphaDecay >= 1 {
		return 1
	}
	n := math.Ceil(math.Log(s.cfg.AlphaMin/from) / math.Log(1-s.cfg.AlphaDecay))
	if n > maxTickBurst {
		return maxTickBurst
	}
	return int(n)
}

// AddNodes appends bodies to the simulation. Unplaced nodes (NaN position)
// are laid out on a phyllotaxis spiral by their index; existing nodes are not
// touched.
func (s *Simulation) AddNodes(nodes ...*Node) {
	for _, n := range nodes {
		n.Index = len(s.nodes)
		if n.Pinned {
			n.X, n.Y = n.FX, n.FY
		}
		if math.IsNaN(n.X) || math.IsNaN(n.Y) {
			radius := initialRadius * math.Sqrt(0.5+float64(n.Index))
			angle := float64(n.Index) * initialAngle
			n.X = radius * math.Cos(angle)
			n.Y = radius * math.Sin(angle)
		}
		if math.IsNaN(n.VX) || math.IsNaN(n.VY) {
			n.VX, n.VY = 0, 0
		}
		s.nodes = append(s.nodes, n)
	}
	if len(s.links) > 0 {
		s.initLinks()
	}
}

// SetLinks replaces the spring set. Links that reference unknown nodes are
// dropped; self-links carry no force.
func (s *Simulation) SetLinks(links []Link) {
	kept := make([]Link, 0, len(links))
	for _, l := range links {
		if l.Source < 0 || l.Source >= len(s.nodes) || l.Target < 0 || l.Target >= len(s.nodes) {
			continue
		}
		kept = append(kept, l)
	}
	s.links = kept
	s.initLinks()
}

// initLinks derives per-link strength and bias from node degrees.
func (s *Simulation) initLinks() {
	count := make([]int, len(s.nodes))
	for _, l := range s.links {
		if l.Source == l.Target {
			continue
		}
		count[l.Source]++
		count[l.Target]++
	}

	s.strengths = make([]float64, len(s.links))
	s.bias = make([]float64, len(s.links))
	for i, l := range s.links {
		if l.Source == l.Target {
			continue
		}
		cs, ct := float64(count[l.Source]), float64(count[l.Target])
		s.strengths[i] = 1 / math.Min(cs, ct)
		s.bias[i] = cs / (cs + ct)
	}
}

// Pin fixes node i at (x, y) until Unpin.
func (s *Simulation) Pin(i int, x, y float64) bool {
	if i < 0 || i >= len(s.nodes) {
		return false
	}
	n := s.nodes[i]
	n.Pinned = true
	n.FX, n.FY = x, y
	return true
}

// Unpin releases node i back to the physics.
func (s *Simulation) Unpin(i int) bool {
	if i < 0 || i >= len(s.nodes) {
		return false
	}
	n := s.nodes[i]
	n.Pinned = false
	n.FX, n.FY = 0, 0
	return true
}

// Tick runs a single integration step. With no nodes it does nothing.
func (s *Simulation) Tick() {
	if len(s.nodes) == 0 {
		return
	}

	s.alpha += (s.alphaTarget - s.alpha) * s.cfg.AlphaDecay

	s.applyCharge(s.alpha)
	s.applyLinks(s.alpha)
	s.applyCenter()

	friction := 1 - s.cfg.VelocityDecay
	for _, n := range s.nodes {
		if n.Pinned {
			n.X, n.Y = n.FX, n.FY
			n.VX, n.VY = 0, 0
			continue
		}
		n.VX *= friction
		n.VY *= friction
		n.X += n.VX
		n.Y += n.VY
	}
	s.ticks++
}

// Step advances the simulation by one frame: a single tick in interactive
// mode, or any owed settle burst in static mode. It returns the number of
// ticks executed.
func (s *Simulation) Step() int {
	if s.mode == ModeInteractive {
		if len(s.nodes) == 0 {
			return 0
		}
		s.Tick()
		return 1
	}
	n, _ := s.Settle(context.Background())
	return n
}

// Settle executes the owed static burst synchronously. The context is
// checked between ticks; on cancellation the remainder stays owed and is run
// by the next Step.
func (s *Simulation) Settle(ctx context.Context) (int, error) {
	if len(s.nodes) == 0 {
		return 0, nil
	}
	ran := 0
	for s.pending > 0 {
		if err := ctx.Err(); err != nil {
			return ran, err
		}
		s.Tick()
		s.pending--
		ran++
	}
	return ran, nil
}

// Reset drops every node and link and restores the initial energy.
func (s *Simulation) Reset() {
	s.nodes = nil
	s.links = nil
	s.strengths = nil
	s.bias = nil
	s.alpha = 1
	s.alphaTarget = 0
	s.mode = ModeInteractive
	s.pending = 0
	s.ticks = 0
}
