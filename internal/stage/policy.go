// Package stage turns a level number into the content quotas generated for it.
package stage

import (
	"errors"
	"fmt"
	"math/rand"

	"orefield/internal/config"
)

// Quotas is the per-level placement budget.
type Quotas struct {
	Level          int `json:"level"`
	Stage          int `json:"stage"`
	Unlocked       int `json:"unlocked"`
	TotalOreTarget int `json:"totalOreTarget"`
	PerCategory    int `json:"perCategory"`
	// Remaining may be negative when the per-category floor overshoots the
	// target; TopUp is clamped at zero.
	Remaining int `json:"remaining"`
	TopUp     int `json:"topUp"`
	Hazards   int `json:"hazards"`
}

// OreAttempts is the number of ore placements a session will attempt. It can
// exceed TotalOreTarget when the per-category floor applies.
func (q Quotas) OreAttempts() int {
	return q.Unlocked*q.PerCategory + q.TopUp
}

// Attempts is the total number of placement attempts for the level.
func (q Quotas) Attempts() int {
	return q.OreAttempts() + q.Hazards
}

var (
	ErrInvalidLevel = errors.New("level must be at least 1")
	ErrEmptyCatalog = errors.New("catalog has no ore categories")
	ErrNilRandom    = errors.New("random source is nil")
)

// Policy computes quotas from a validated stage schedule.
type Policy struct {
	cfg config.StageConfig
}

func NewPolicy(cfg config.StageConfig) (*Policy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("stage policy: %w", err)
	}
	unlocks := make([]int, len(cfg.StageUnlocks))
	copy(unlocks, cfg.StageUnlocks)
	cfg.StageUnlocks = unlocks
	return &Policy{cfg: cfg}, nil
}

// Stage returns the 1-based stage a level belongs to.
func (p *Policy) Stage(level int) int {
	return (level-1)/p.cfg.LevelsPerStage + 1
}

// UnlockedCount returns how many ore categories are available at a level.
func (p *Policy) UnlockedCount(level, catalogSize int) int {
	stage := p.Stage(level)
	if stage-1 < len(p.cfg.StageUnlocks) {
		return min(p.cfg.StageUnlocks[stage-1], catalogSize)
	}
	return catalogSize
}

// Compute derives the quotas for a level. The hazard count is drawn from rng
// exactly once.
func (p *Policy) Compute(level, catalogSize int, rng *rand.Rand) (Quotas, error) {
	if level < 1 {
		return Quotas{}, fmt.Errorf("%w: got %d", ErrInvalidLevel, level)
	}
	if catalogSize <= 0 {
		return Quotas{}, ErrEmptyCatalog
	}
	if rng == nil {
		return Quotas{}, ErrNilRandom
	}

	unlocked := p.UnlockedCount(level, catalogSize)
	total := min(p.cfg.MaxOresPerLevel, unlocked*p.cfg.BaseOresPerCategory)
	perCategory := max(p.cfg.MinOresPerCategory, total/unlocked)
	remaining := total - unlocked*perCategory

	hazards := p.cfg.MinHazardsPerLevel + rng.Intn(p.cfg.MaxHazardsPerLevel-p.cfg.MinHazardsPerLevel+1)

	return Quotas{
		Level:          level,
		Stage:          p.Stage(level),
		Unlocked:       unlocked,
		TotalOreTarget: total,
		PerCategory:    perCategory,
		Remaining:      remaining,
		TopUp:          max(0, remaining),
		Hazards:        hazards,
	}, nil
}
