package terrain

import (
	"hash/fnv"
	"math"
)

// Noise is repeatable fractal value noise over the X/Z plane.
type Noise struct {
	Seed        int64
	Frequency   float64
	Octaves     int
	Persistence float64
	Lacunarity  float64
}

// At returns the fractal noise value at (x, z), roughly in [-1, 1].
func (n Noise) At(x, z float64) float64 {
	frequency := n.Frequency
	amplitude := 1.0
	noiseSum := 0.0
	maxAmplitude := 0.0

	for i := 0; i < n.Octaves; i++ {
		noiseSum += n.valueNoise(x*frequency, z*frequency) * amplitude
		maxAmplitude += amplitude
		amplitude *= n.Persistence
		frequency *= n.Lacunarity
	}

	if maxAmplitude == 0 {
		return 0
	}
	return noiseSum / maxAmplitude
}

func (n Noise) valueNoise(x, z float64) float64 {
	x0 := int(math.Floor(x))
	z0 := int(math.Floor(z))
	x1 := x0 + 1
	z1 := z0 + 1

	sx := smooth(x - float64(x0))
	sz := smooth(z - float64(z0))

	ix0 := lerp(random2D(x0, z0, n.Seed), random2D(x1, z0, n.Seed), sx)
	ix1 := lerp(random2D(x0, z1, n.Seed), random2D(x1, z1, n.Seed), sx)
	return lerp(ix0, ix1, sz)
}

func smooth(t float64) float64 {
	return t * t * (3 - 2*t)
}

func lerp(a, b, t float64) float64 {
	return a + t*(b-a)
}

func random2D(x, z int, seed int64) float64 {
	return float64(hash3(x, z, int(seed))&0xFFFF)/0x8000 - 1.0
}

func hash3(x, y, z int) uint32 {
	h := uint32(x*374761393 + y*668265263 + z*2147483647)
	h = (h ^ (h >> 13)) * 1274126177
	return h ^ (h >> 16)
}

func hashString(s string) int64 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return int64(h.Sum32())
}
