// Package level owns the level counter and the lifecycle of the generation
// session that populates the current level.
package level

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"

	"orefield/internal/config"
	"orefield/internal/events"
	"orefield/internal/placement"
	"orefield/internal/session"
	"orefield/internal/stage"
	"orefield/internal/terrain"
	"orefield/internal/world"
)

// ErrLevelGenerated is returned by StartLevel when the current level already
// has a session and no transition was requested.
var ErrLevelGenerated = errors.New("level already generated")

type Options struct {
	Config  *config.Config
	Spawner world.Spawner
	Events  *events.Queue
	Logger  *log.Logger

	// Surfaces overrides the configured terrain. A nil slice builds surfaces
	// from Config.Terrain; an empty non-nil slice means no surfaces at all.
	Surfaces []world.Surface
}

// Coordinator sequences levels. It is not safe for concurrent use; the host
// calls it from a single loop.
type Coordinator struct {
	cfg         *config.Config
	policy      *stage.Policy
	catalog     session.Catalog
	constraints placement.Constraints
	surfaces    []world.Surface
	spawner     world.Spawner
	events      *events.Queue
	logger      *log.Logger

	currentLevel  int
	transitioning bool
	current       *session.Session
	lastState     session.State
}

func New(opts Options) (*Coordinator, error) {
	if opts.Config == nil {
		return nil, errors.New("level: config is nil")
	}
	if opts.Spawner == nil {
		return nil, errors.New("level: spawner is nil")
	}
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("level: %w", err)
	}
	policy, err := stage.NewPolicy(cfg.Stage)
	if err != nil {
		return nil, fmt.Errorf("level: %w", err)
	}

	surfaces := opts.Surfaces
	if surfaces == nil {
		surfaces, err = terrain.NewSurfaces(cfg.Terrain)
		if err != nil {
			return nil, fmt.Errorf("level: build surfaces: %w", err)
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Coordinator{
		cfg:          cfg,
		policy:       policy,
		catalog:      session.CatalogFromConfig(cfg.Catalog),
		constraints:  placement.ConstraintsFromConfig(cfg.Placement),
		surfaces:     surfaces,
		spawner:      opts.Spawner,
		events:       opts.Events,
		logger:       logger,
		currentLevel: cfg.Generation.StartLevel,
	}, nil
}

func (c *Coordinator) CurrentLevel() int            { return c.currentLevel }
func (c *Coordinator) Transitioning() bool          { return c.transitioning }
func (c *Coordinator) Session() *session.Session    { return c.current }
func (c *Coordinator) Policy() *stage.Policy        { return c.policy }
func (c *Coordinator) AllSurfaces() []world.Surface { return c.surfaces }

// AdvanceLevel moves to the next level and cancels the running session. The
// next StartLevel clears the previous level's objects.
func (c *Coordinator) AdvanceLevel() int {
	c.currentLevel++
	c.beginTransition()
	c.logger.Printf("advancing to level %d", c.currentLevel)
	return c.currentLevel
}

// ResetLevel returns to level 1 with the same cleanup as AdvanceLevel.
func (c *Coordinator) ResetLevel() {
	c.currentLevel = 1
	c.beginTransition()
	c.logger.Printf("resetting to level 1")
}

func (c *Coordinator) beginTransition() {
	c.transitioning = true
	if c.current != nil {
		c.current.Cancel()
		c.observe()
	}
}

// StartLevel creates and starts the session for the current level. When a
// transition is pending, every object and point of the previous session is
// cleared first.
func (c *Coordinator) StartLevel() error {
	if c.current != nil {
		if !c.transitioning {
			return fmt.Errorf("%w: level %d", ErrLevelGenerated, c.current.Level())
		}
		c.current.Cancel()
		c.observe()
		c.current.Clear()
		c.current = nil
	}
	c.transitioning = false

	lvl := c.currentLevel
	seed := c.cfg.Generation.Seed
	surfaces := terrain.Select(c.surfaces, c.cfg.Terrain.ActivePerLevel, newLevelRNG(seed, lvl, streamSurfaces))

	if observer, ok := c.spawner.(world.LevelObserver); ok {
		observer.LevelStarted(lvl)
	}

	s, err := session.New(session.Options{
		Level:           lvl,
		Surfaces:        surfaces,
		Catalog:         c.catalog,
		Policy:          c.policy,
		Constraints:     c.constraints,
		UseSpatialIndex: c.cfg.Placement.UseSpatialIndex,
		Spawner:         c.spawner,
		Rand:            newLevelRNG(seed, lvl, streamSampler),
		QuotaRand:       newLevelRNG(seed, lvl, streamQuota),
		Logger:          c.logger,
	})
	if err != nil {
		return fmt.Errorf("level %d: %w", lvl, err)
	}
	c.current = s
	c.lastState = s.State()

	if err := s.Start(); err != nil {
		c.observe()
		return err
	}
	c.publish(events.TypeLevelStarted, fmt.Sprintf("stage %d", s.Quotas().Stage))
	c.observe()
	return nil
}

// Tick advances the current session by one step.
func (c *Coordinator) Tick() (session.Outcome, error) {
	if c.current == nil {
		return session.Outcome{}, nil
	}
	out, err := c.current.Step()
	c.observe()
	return out, err
}

// Run ticks until the current session stops running.
func (c *Coordinator) Run(ctx context.Context) error {
	if c.current == nil {
		return nil
	}
	err := c.current.Run(ctx)
	c.observe()
	return err
}

// Status is a point-in-time summary for status endpoints.
type Status struct {
	Level         int           `json:"level"`
	Stage         int           `json:"stage"`
	Transitioning bool          `json:"transitioning"`
	State         session.State `json:"state"`
	Phase         session.Phase `json:"phase,omitempty"`
	Quotas        *stage.Quotas `json:"quotas,omitempty"`
	Stats         session.Stats `json:"stats"`
	Attempted     int           `json:"attempted"`
	Total         int           `json:"total"`
	Surfaces      []string      `json:"surfaces,omitempty"`
	Error         string        `json:"error,omitempty"`
}

func (c *Coordinator) Status() Status {
	st := Status{
		Level:         c.currentLevel,
		Stage:         c.policy.Stage(c.currentLevel),
		Transitioning: c.transitioning,
		State:         session.StateIdle,
	}
	s := c.current
	if s == nil {
		return st
	}
	st.State = s.State()
	st.Phase = s.Phase()
	st.Stats = s.Stats()
	st.Attempted, st.Total = s.Progress()
	if q := s.Quotas(); q.Level != 0 {
		st.Quotas = &q
	}
	for _, surface := range s.Surfaces() {
		st.Surfaces = append(st.Surfaces, surface.ID())
	}
	if err := s.Err(); err != nil {
		st.Error = err.Error()
	}
	return st
}

// Preview renders the surfaces of the current level with every placed point.
func (c *Coordinator) Preview(pixelsPerUnit float64) (*image.NRGBA, error) {
	surfaces := c.surfaces
	var markers []world.Marker
	if c.current != nil {
		if len(c.current.Surfaces()) > 0 {
			surfaces = c.current.Surfaces()
		}
		for _, p := range c.current.Points() {
			markers = append(markers, world.Marker{
				Position: p.Position,
				Hazard:   p.Category.Kind == placement.KindHazard,
				Category: p.Category.Index,
			})
		}
	}
	return world.RenderPreview(surfaces, markers, world.PreviewOptions{
		PixelsPerUnit: pixelsPerUnit,
		BandMin:       c.constraints.MinHeight,
		BandMax:       c.constraints.MaxHeight,
	})
}

func (c *Coordinator) observe() {
	if c.current == nil {
		return
	}
	state := c.current.State()
	if state == c.lastState {
		return
	}
	c.lastState = state
	switch state {
	case session.StateCompleted:
		stats := c.current.Stats()
		c.publish(events.TypeLevelCompleted, fmt.Sprintf("placed %d of %d", stats.Placed, stats.Attempted))
	case session.StateCancelled:
		c.publish(events.TypeLevelCancelled, "")
	case session.StateFailed:
		msg := ""
		if err := c.current.Err(); err != nil {
			msg = err.Error()
		}
		c.publish(events.TypeLevelFailed, msg)
	}
}

func (c *Coordinator) publish(typ events.Type, msg string) {
	if c.events == nil || c.current == nil {
		return
	}
	c.events.Publish(events.Event{Type: typ, Level: c.current.Level(), Message: msg})
}
