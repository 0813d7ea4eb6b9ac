package world

import "math"

// Vec3 is a world-space position. Y is up; surfaces span the X/Z plane.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Distance returns the euclidean distance between two positions.
func (v Vec3) Distance(o Vec3) float64 {
	dx := v.X - o.X
	dy := v.Y - o.Y
	dz := v.Z - o.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// PlanarDistance ignores the vertical axis.
func (v Vec3) PlanarDistance(o Vec3) float64 {
	dx := v.X - o.X
	dz := v.Z - o.Z
	return math.Sqrt(dx*dx + dz*dz)
}

// Bounds describes the planar footprint of a surface. Origin.Y is the base
// elevation of the surface and is not part of the footprint.
type Bounds struct {
	Origin Vec3    `json:"origin"`
	Width  float64 `json:"width"`
	Depth  float64 `json:"depth"`
}

func (b Bounds) MaxX() float64 { return b.Origin.X + b.Width }
func (b Bounds) MaxZ() float64 { return b.Origin.Z + b.Depth }

// Contains reports whether the planar coordinate lies inside the footprint.
func (b Bounds) Contains(x, z float64) bool {
	return x >= b.Origin.X && x <= b.MaxX() && z >= b.Origin.Z && z <= b.MaxZ()
}

// Union returns the smallest footprint covering both b and o.
func (b Bounds) Union(o Bounds) Bounds {
	minX := math.Min(b.Origin.X, o.Origin.X)
	minZ := math.Min(b.Origin.Z, o.Origin.Z)
	maxX := math.Max(b.MaxX(), o.MaxX())
	maxZ := math.Max(b.MaxZ(), o.MaxZ())
	return Bounds{
		Origin: Vec3{X: minX, Z: minZ},
		Width:  maxX - minX,
		Depth:  maxZ - minZ,
	}
}

// Surface is a walkable terrain patch objects can be placed on. Implementations
// must be side-effect free and safe to sample at any rate.
type Surface interface {
	ID() string
	Bounds() Bounds
	SampleHeight(x, z float64) float64
}

// ObjectID identifies an object handed out by a Spawner.
type ObjectID string

// Spawner instantiates placed content in the hosting world. Destroy must
// tolerate ids that were already destroyed.
type Spawner interface {
	Spawn(template string, pos Vec3) (ObjectID, error)
	Destroy(id ObjectID)
}

// LevelObserver is implemented by spawners that tag objects with the level
// they were generated for.
type LevelObserver interface {
	LevelStarted(level int)
}
