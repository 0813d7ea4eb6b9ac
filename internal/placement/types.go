// Package placement finds positions on terrain surfaces that respect the
// configured height band and minimum spacing between placed objects.
package placement

import (
	"math"

	"orefield/internal/config"
	"orefield/internal/world"
)

// Kind selects which spacing rules apply to a category.
type Kind string

const (
	KindOre    Kind = "ore"
	KindHazard Kind = "hazard"
)

// Category is a spawnable content class. Ore categories are indexed in unlock
// order; the hazard category uses index -1.
type Category struct {
	Index    int    `json:"index"`
	ID       string `json:"id"`
	Template string `json:"template"`
	Kind     Kind   `json:"kind"`
}

// Point is an accepted placement.
type Point struct {
	Position world.Vec3 `json:"position"`
	Category Category   `json:"category"`
	Surface  string     `json:"surface"`
}

// Constraints are the acceptance rules shared by every sample in a session.
type Constraints struct {
	OreOre       float64
	HazardHazard float64
	OreHazard    float64
	MinHeight    float64
	MaxHeight    float64
	MaxAttempts  int
	Planar       bool
}

// DefaultMaxAttempts bounds Sample when Constraints.MaxAttempts is unset.
const DefaultMaxAttempts = 50

func ConstraintsFromConfig(cfg config.PlacementConfig) Constraints {
	return Constraints{
		OreOre:       cfg.MinDistanceBetweenOres,
		HazardHazard: cfg.MinDistanceBetweenHazards,
		OreHazard:    cfg.MinDistanceOreToHazard,
		MinHeight:    cfg.MinSpawnHeight,
		MaxHeight:    cfg.MaxSpawnHeight,
		MaxAttempts:  cfg.MaxAttempts,
		Planar:       cfg.DistanceMode == config.DistanceModePlanar,
	}
}

// MinDistance returns the required separation between two kinds. The ore
// rule applies across every ore category, not just within one.
func (c Constraints) MinDistance(a, b Kind) float64 {
	switch {
	case a == KindOre && b == KindOre:
		return c.OreOre
	case a == KindHazard && b == KindHazard:
		return c.HazardHazard
	default:
		return c.OreHazard
	}
}

// Reach is the largest separation a point of kind k must keep from anything.
func (c Constraints) Reach(k Kind) float64 {
	return math.Max(c.MinDistance(k, KindOre), c.MinDistance(k, KindHazard))
}

// MaxDistance is the largest of the three pairwise separations.
func (c Constraints) MaxDistance() float64 {
	return math.Max(c.OreOre, math.Max(c.HazardHazard, c.OreHazard))
}

// Distance measures separation in the configured metric.
func (c Constraints) Distance(a, b world.Vec3) float64 {
	if c.Planar {
		return a.PlanarDistance(b)
	}
	return a.Distance(b)
}

func (c Constraints) InBand(y float64) bool {
	return y >= c.MinHeight && y <= c.MaxHeight
}

func (c Constraints) attempts() int {
	if c.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return c.MaxAttempts
}
