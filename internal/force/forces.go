package force

import "math"

// ChargeForce returns the velocity change node i receives from node j under
// the many-body force, where (dx, dy) is the offset from i to j. Distances
// below DistanceMin are clamped: the magnitude there equals the magnitude at
// DistanceMin. A zero offset component is replaced by a tiny random jiggle so
// coincident nodes still get a defined direction.
func (s *Simulation) ChargeForce(dx, dy, alpha float64) (float64, float64) {
	l := dx*dx + dy*dy
	if dx == 0 {
		dx = s.jiggle()
		l += dx * dx
	}
	if dy == 0 {
		dy = s.jiggle()
		l += dy * dy
	}
	dmin2 := s.cfg.DistanceMin * s.cfg.DistanceMin
	if l < dmin2 {
		l = math.Sqrt(dmin2 * l)
	}
	w := s.cfg.ChargeStrength * alpha / l
	return dx * w, dy * w
}

// applyCharge accumulates pairwise repulsion into node velocities.
func (s *Simulation) applyCharge(alpha float64) {
	if s.cfg.ChargeStrength == 0 {
		return
	}
	for i, a := range s.nodes {
		for j, b := range s.nodes {
			if i == j {
				continue
			}
			fx, fy := s.ChargeForce(b.X-a.X, b.Y-a.Y, alpha)
			a.VX += fx
			a.VY += fy
		}
	}
}

// applyLinks pulls linked endpoints toward LinkDistance, splitting the
// correction between source and target by their relative degree.
func (s *Simulation) applyLinks(alpha float64) {
	for i, link := range s.links {
		if link.Source == link.Target {
			continue
		}
		src, tgt := s.nodes[link.Source], s.nodes[link.Target]

		x := tgt.X + tgt.VX - src.X - src.VX
		if x == 0 {
			x = s.jiggle()
		}
		y := tgt.Y + tgt.VY - src.Y - src.VY
		if y == 0 {
			y = s.jiggle()
		}
		l := math.Sqrt(x*x + y*y)
		l = (l - s.cfg.LinkDistance) / l * alpha * s.strengths[i]
		x *= l
		y *= l

		b := s.bias[i]
		tgt.VX -= x * b
		tgt.VY -= y * b
		src.VX += x * (1 - b)
		src.VY += y * (1 - b)
	}
}

// applyCenter translates every node so the centroid moves to the origin.
func (s *Simulation) applyCenter() {
	if s.cfg.CenterStrength == 0 || len(s.nodes) == 0 {
		return
	}
	var sx, sy float64
	for _, n := range s.nodes {
		sx += n.X
		sy += n.Y
	}
	n := float64(len(s.nodes))
	sx = sx / n * s.cfg.CenterStrength
	sy = sy / n * s.cfg.CenterStrength
	for _, node := range s.nodes {
		node.X -= sx
		node.Y -= sy
	}
}

// jiggle returns a tiny non-zero offset in (-5e-7, 5e-7).
func (s *Simulation) jiggle() float64 {
	for {
		if v := (s.rng.Float64() - 0.5) * 1e-6; v != 0 {
			return v
		}
	}
}
