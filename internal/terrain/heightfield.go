package terrain

import (
	"fmt"
	"math/rand"
	"sort"

	"orefield/internal/config"
	"orefield/internal/world"
)

// Heightfield is a rectangular noise-shaped surface.
type Heightfield struct {
	id        string
	bounds    world.Bounds
	amplitude float64
	noise     Noise
}

var _ world.Surface = (*Heightfield)(nil)

// NewHeightfield builds a surface from its config entry. Each surface mixes its
// id into the terrain seed so that neighbouring surfaces do not repeat.
func NewHeightfield(cfg config.TerrainConfig, surface config.SurfaceConfig) (*Heightfield, error) {
	if surface.Width <= 0 || surface.Depth <= 0 {
		return nil, fmt.Errorf("surface %q: dimensions must be positive", surface.ID)
	}
	return &Heightfield{
		id: surface.ID,
		bounds: world.Bounds{
			Origin: world.Vec3{X: surface.OriginX, Y: surface.OriginY, Z: surface.OriginZ},
			Width:  surface.Width,
			Depth:  surface.Depth,
		},
		amplitude: cfg.Amplitude,
		noise: Noise{
			Seed:        cfg.Seed ^ hashString(surface.ID),
			Frequency:   cfg.Frequency,
			Octaves:     cfg.Octaves,
			Persistence: cfg.Persistence,
			Lacunarity:  cfg.Lacunarity,
		},
	}, nil
}

func (h *Heightfield) ID() string { return h.id }

func (h *Heightfield) Bounds() world.Bounds { return h.bounds }

// SampleHeight returns the surface elevation at the planar coordinate. Points
// outside the footprint are sampled from the same continuous field.
func (h *Heightfield) SampleHeight(x, z float64) float64 {
	return h.bounds.Origin.Y + h.noise.At(x, z)*h.amplitude
}

// NewSurfaces builds every configured surface in declaration order.
func NewSurfaces(cfg config.TerrainConfig) ([]world.Surface, error) {
	surfaces := make([]world.Surface, 0, len(cfg.Surfaces))
	for _, sc := range cfg.Surfaces {
		hf, err := NewHeightfield(cfg, sc)
		if err != nil {
			return nil, err
		}
		surfaces = append(surfaces, hf)
	}
	return surfaces, nil
}

// Select picks n distinct surfaces uniformly at random, keeping their
// declaration order. n <= 0 or n >= len(all) returns every surface.
func Select(all []world.Surface, n int, rng *rand.Rand) []world.Surface {
	if n <= 0 || n >= len(all) || rng == nil {
		out := make([]world.Surface, len(all))
		copy(out, all)
		return out
	}
	picked := rng.Perm(len(all))[:n]
	sort.Ints(picked)
	out := make([]world.Surface, 0, n)
	for _, idx := range picked {
		out = append(out, all[idx])
	}
	return out
}
