// Package session runs one level's placement pass as a state machine that
// performs at most one sampler call per Step.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"

	"orefield/internal/config"
	"orefield/internal/placement"
	"orefield/internal/stage"
	"orefield/internal/world"
)

type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCancelled State = "cancelled"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Phase is the placement bucket a running session is working through.
type Phase string

const (
	PhaseOres    Phase = "ores"
	PhaseTopUp   Phase = "topUp"
	PhaseHazards Phase = "hazards"
	PhaseDone    Phase = "done"
)

var (
	ErrNoSurfaces = errors.New("no surfaces to place on")
	ErrSpawn      = errors.New("spawn failed")
	ErrNotIdle    = errors.New("session already started")
)

// Catalog lists the ore categories in unlock order plus the hazard category.
type Catalog struct {
	Ores   []placement.Category
	Hazard placement.Category
}

func CatalogFromConfig(cfg config.CatalogConfig) Catalog {
	ores := make([]placement.Category, len(cfg.Ores))
	for i, ref := range cfg.Ores {
		ores[i] = placement.Category{Index: i, ID: ref.ID, Template: ref.Template, Kind: placement.KindOre}
	}
	return Catalog{
		Ores:   ores,
		Hazard: placement.Category{Index: -1, ID: cfg.Hazard.ID, Template: cfg.Hazard.Template, Kind: placement.KindHazard},
	}
}

// Options wires a session to its collaborators.
type Options struct {
	Level           int
	Surfaces        []world.Surface
	Catalog         Catalog
	Policy          *stage.Policy
	Constraints     placement.Constraints
	UseSpatialIndex bool
	Spawner         world.Spawner

	// Rand drives the sampler and top-up category picks. QuotaRand, when set,
	// is used for the hazard count instead.
	Rand      *rand.Rand
	QuotaRand *rand.Rand
	Logger    *log.Logger
}

type Stats struct {
	Attempted       int `json:"attempted"`
	Placed          int `json:"placed"`
	Skipped         int `json:"skipped"`
	OresPlaced      int `json:"oresPlaced"`
	HazardsPlaced   int `json:"hazardsPlaced"`
	SamplerAttempts int `json:"samplerAttempts"`
	HeightRejects   int `json:"heightRejects"`
	SpacingRejects  int `json:"spacingRejects"`
}

// Outcome reports what a single Step did. Attempted is false when the step
// made no sampler call.
type Outcome struct {
	Attempted bool
	Category  placement.Category
	Result    placement.Result
	Object    world.ObjectID
}

func (o Outcome) Placed() bool {
	return o.Attempted && o.Result.OK && o.Object != ""
}

// Session is a single generation pass. It is not safe for concurrent use.
type Session struct {
	opts    Options
	logger  *log.Logger
	sampler *placement.Sampler
	index   *placement.Index

	state    State
	phase    Phase
	quotas   stage.Quotas
	category int
	done     int

	handles []world.ObjectID
	stats   Stats
	err     error

	nextLogPercent int
}

func New(opts Options) (*Session, error) {
	if opts.Level < 1 {
		return nil, fmt.Errorf("session: %w: got %d", stage.ErrInvalidLevel, opts.Level)
	}
	if opts.Policy == nil {
		return nil, errors.New("session: stage policy is nil")
	}
	if opts.Spawner == nil {
		return nil, errors.New("session: spawner is nil")
	}
	if opts.Rand == nil {
		return nil, errors.New("session: random source is nil")
	}
	if len(opts.Catalog.Ores) == 0 {
		return nil, fmt.Errorf("session: %w", stage.ErrEmptyCatalog)
	}
	if opts.QuotaRand == nil {
		opts.QuotaRand = opts.Rand
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Session{
		opts:    opts,
		logger:  logger,
		sampler: placement.NewSampler(opts.Constraints, opts.Rand),
		index:   placement.NewIndexFor(opts.Constraints, opts.UseSpatialIndex),
		state:   StateIdle,
	}, nil
}

// Start computes the quotas and moves the session to Running. A session with
// no surfaces fails without attempting anything.
func (s *Session) Start() error {
	if s.state != StateIdle {
		return fmt.Errorf("%w: state %s", ErrNotIdle, s.state)
	}
	if len(s.opts.Surfaces) == 0 {
		s.fail(fmt.Errorf("level %d: %w", s.opts.Level, ErrNoSurfaces))
		return s.err
	}
	quotas, err := s.opts.Policy.Compute(s.opts.Level, len(s.opts.Catalog.Ores), s.opts.QuotaRand)
	if err != nil {
		s.fail(fmt.Errorf("level %d: compute quotas: %w", s.opts.Level, err))
		return s.err
	}

	s.quotas = quotas
	s.state = StateRunning
	s.phase = PhaseOres
	s.category = 0
	s.done = 0
	s.nextLogPercent = 10

	s.logger.Printf("level %d (stage %d): %d ore categories x %d (+%d top-up, target %d), %d hazards on %d surfaces",
		quotas.Level, quotas.Stage, quotas.Unlocked, quotas.PerCategory, quotas.TopUp,
		quotas.TotalOreTarget, quotas.Hazards, len(s.opts.Surfaces))
	s.settle()
	return nil
}

// Step performs at most one placement attempt. It is a no-op unless the
// session is Running. A spawn failure moves the session to Failed and is
// returned wrapped in ErrSpawn.
func (s *Session) Step() (Outcome, error) {
	if s.state != StateRunning {
		return Outcome{}, nil
	}

	category := s.nextCategory()
	res := s.sampler.Sample(category.Kind, s.opts.Surfaces, s.index)
	s.done++
	s.stats.Attempted++
	s.stats.SamplerAttempts += res.Attempts
	s.stats.HeightRejects += res.HeightRejects
	s.stats.SpacingRejects += res.SpacingRejects

	out := Outcome{Attempted: true, Category: category, Result: res}
	if !res.OK {
		s.stats.Skipped++
		s.logger.Printf("level %d: skipped %s placement after %d attempts (%d height, %d spacing)",
			s.opts.Level, category.ID, res.Attempts, res.HeightRejects, res.SpacingRejects)
		s.settle()
		return out, nil
	}

	id, err := s.opts.Spawner.Spawn(category.Template, res.Position)
	if err != nil {
		s.fail(fmt.Errorf("level %d: %w: template %q: %w", s.opts.Level, ErrSpawn, category.Template, err))
		return out, s.err
	}

	s.index.Add(placement.Point{Position: res.Position, Category: category, Surface: res.Surface})
	s.handles = append(s.handles, id)
	s.stats.Placed++
	if category.Kind == placement.KindHazard {
		s.stats.HazardsPlaced++
	} else {
		s.stats.OresPlaced++
	}
	out.Object = id
	s.settle()
	return out, nil
}

// Run steps the session until it leaves Running. Cancelling ctx cancels the
// session.
func (s *Session) Run(ctx context.Context) error {
	for s.state == StateRunning {
		if err := ctx.Err(); err != nil {
			s.Cancel()
			return err
		}
		if _, err := s.Step(); err != nil {
			return err
		}
	}
	return s.err
}

// Cancel stops an idle or running session. Later Steps make no sampler calls.
func (s *Session) Cancel() {
	if s.state != StateIdle && s.state != StateRunning {
		return
	}
	s.state = StateCancelled
	s.logger.Printf("level %d generation cancelled after %d of %d placements", s.opts.Level, s.stats.Attempted, s.quotas.Attempts())
}

// Clear destroys every spawned object and forgets every placed point. A
// running session is cancelled first.
func (s *Session) Clear() {
	if s.state == StateRunning {
		s.Cancel()
	}
	for _, id := range s.handles {
		s.opts.Spawner.Destroy(id)
	}
	s.handles = nil
	s.index.Reset()
}

func (s *Session) Level() int                         { return s.opts.Level }
func (s *Session) State() State                       { return s.state }
func (s *Session) Phase() Phase                       { return s.phase }
func (s *Session) Quotas() stage.Quotas               { return s.quotas }
func (s *Session) Stats() Stats                       { return s.stats }
func (s *Session) Err() error                         { return s.err }
func (s *Session) Surfaces() []world.Surface          { return s.opts.Surfaces }
func (s *Session) Points() []placement.Point          { return s.index.Points() }
func (s *Session) Constraints() placement.Constraints { return s.opts.Constraints }

// Handles returns a copy of the object ids spawned so far.
func (s *Session) Handles() []world.ObjectID {
	out := make([]world.ObjectID, len(s.handles))
	copy(out, s.handles)
	return out
}

// Progress returns attempted and total placements.
func (s *Session) Progress() (int, int) {
	return s.stats.Attempted, s.quotas.Attempts()
}

func (s *Session) nextCategory() placement.Category {
	switch s.phase {
	case PhaseOres:
		return s.opts.Catalog.Ores[s.category]
	case PhaseTopUp:
		return s.opts.Catalog.Ores[s.opts.Rand.Intn(s.quotas.Unlocked)]
	default:
		return s.opts.Catalog.Hazard
	}
}

// settle moves past exhausted buckets so that the next Step always has work,
// completing the session when none is left.
func (s *Session) settle() {
	s.logProgress()
	for {
		switch s.phase {
		case PhaseOres:
			if s.category >= s.quotas.Unlocked {
				s.phase = PhaseTopUp
				s.done = 0
				continue
			}
			if s.done < s.quotas.PerCategory {
				return
			}
			s.category++
			s.done = 0
		case PhaseTopUp:
			if s.done < s.quotas.TopUp {
				return
			}
			s.phase = PhaseHazards
			s.done = 0
		case PhaseHazards:
			if s.done < s.quotas.Hazards {
				return
			}
			s.phase = PhaseDone
		default:
			s.state = StateCompleted
			s.logger.Printf("level %d generation complete: placed %d of %d (%d ores, %d hazards, %d skipped)",
				s.opts.Level, s.stats.Placed, s.stats.Attempted, s.stats.OresPlaced, s.stats.HazardsPlaced, s.stats.Skipped)
			return
		}
	}
}

func (s *Session) logProgress() {
	total := s.quotas.Attempts()
	if total <= 0 || s.nextLogPercent > 100 {
		return
	}
	progress := s.stats.Attempted * 100 / total
	if progress < s.nextLogPercent {
		return
	}
	s.logger.Printf("level %d generation progress: %d%%", s.opts.Level, progress)
	s.nextLogPercent = (progress/10 + 1) * 10
}

func (s *Session) fail(err error) {
	s.state = StateFailed
	s.err = err
	s.logger.Printf("%v", err)
}
