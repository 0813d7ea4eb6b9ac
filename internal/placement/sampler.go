package placement

import (
	"math/rand"

	"orefield/internal/world"
)

// Result describes one Sample call. OK is false when every attempt was
// rejected or there was nothing to sample from.
type Result struct {
	Position       world.Vec3
	Surface        string
	OK             bool
	Attempts       int
	HeightRejects  int
	SpacingRejects int
}

// Sampler draws candidate positions by rejection sampling.
type Sampler struct {
	constraints Constraints
	rng         *rand.Rand
}

func NewSampler(c Constraints, rng *rand.Rand) *Sampler {
	return &Sampler{constraints: c, rng: rng}
}

func (s *Sampler) Constraints() Constraints {
	return s.constraints
}

// Sample tries up to MaxAttempts candidates. Each attempt picks a surface
// uniformly, draws a planar position inside it and accepts the position when
// its height lies in the band and no indexed point is too close. Both kinds of
// rejection count as an attempt.
func (s *Sampler) Sample(kind Kind, surfaces []world.Surface, existing *Index) Result {
	var res Result
	if len(surfaces) == 0 {
		return res
	}

	limit := s.constraints.attempts()
	for res.Attempts < limit {
		res.Attempts++

		surface := surfaces[s.rng.Intn(len(surfaces))]
		b := surface.Bounds()
		x := b.Origin.X + s.rng.Float64()*b.Width
		z := b.Origin.Z + s.rng.Float64()*b.Depth
		y := surface.SampleHeight(x, z)
		if !s.constraints.InBand(y) {
			res.HeightRejects++
			continue
		}

		pos := world.Vec3{X: x, Y: y, Z: z}
		if existing != nil && existing.Conflicts(pos, kind, s.constraints) {
			res.SpacingRejects++
			continue
		}

		res.Position = pos
		res.Surface = surface.ID()
		res.OK = true
		return res
	}
	return res
}
