package main

import (
	"math"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"
)

const sampleRate = beep.SampleRate(48000)

// ChimeGenerator is a decaying two-partial bell tone.
type ChimeGenerator struct {
	sr   beep.SampleRate
	freq float64
	pos  int
}

func NewChimeGenerator(sr beep.SampleRate, freq float64) *ChimeGenerator {
	return &ChimeGenerator{sr: sr, freq: freq}
}

func (g *ChimeGenerator) Stream(samples [][2]float64) (n int, ok bool) {
	for i := range samples {
		t := float64(g.pos) / float64(g.sr)
		sample := 0.6*math.Sin(2*math.Pi*g.freq*t) + 0.25*math.Sin(2*math.Pi*g.freq*2.76*t)

		attack := math.Min(t/0.005, 1.0)
		sample *= attack * math.Exp(-t*9) * 0.3

		samples[i][0] = sample
		samples[i][1] = sample
		g.pos++
	}
	return len(samples), true
}

func (g *ChimeGenerator) Err() error {
	return nil
}

// chime plays a short cue when a level finishes. A failed speaker init leaves
// it silent.
type chime struct {
	mu          sync.Mutex
	initialized bool
}

func newChime(enabled bool) (*chime, error) {
	c := &chime{}
	if !enabled {
		return c, nil
	}
	if err := speaker.Init(sampleRate, sampleRate.N(time.Millisecond*100)); err != nil {
		return c, err
	}
	c.initialized = true
	return c, nil
}

func (c *chime) play() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return
	}
	speaker.Play(beep.Take(sampleRate.N(time.Millisecond*400), NewChimeGenerator(sampleRate, 880)))
}

func (c *chime) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized {
		speaker.Close()
		c.initialized = false
	}
}
