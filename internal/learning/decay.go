package learning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/spice-tally/internal/common"
	"github.com/Veraticus/spice-tally/internal/model"
	"github.com/Veraticus/spice-tally/internal/service"
)

// DecayPolicy selects the curve applied to idle weights.
type DecayPolicy string

// Supported decay policies.
const (
	DecayLinear      DecayPolicy = "linear"
	DecayExponential DecayPolicy = "exponential"
)

// DecayConfig controls a sweep. For the linear policy Rate is subtracted per
// sweep; for the exponential policy the weight is multiplied by Rate.
type DecayConfig struct {
	Policy      DecayPolicy
	Rate        float64
	Floor       float64
	IdleAfter   time.Duration
	Concurrency int
}

// DefaultDecayConfig returns the linear policy used when nothing is configured.
func DefaultDecayConfig() DecayConfig {
	return DecayConfig{
		Policy:      DecayLinear,
		Rate:        0.05,
		Floor:       0.1,
		IdleAfter:   30 * 24 * time.Hour,
		Concurrency: 4,
	}
}

// Validate checks the policy parameters.
func (c DecayConfig) Validate() error {
	switch c.Policy {
	case DecayLinear:
		if c.Rate <= 0 || c.Rate > model.MaxKeywordWeight {
			return fmt.Errorf("%w: linear decay rate must be in (0, %.1f], got %v", common.ErrInvalidConfig, model.MaxKeywordWeight, c.Rate)
		}
	case DecayExponential:
		if c.Rate <= 0 || c.Rate >= 1 {
			return fmt.Errorf("%w: exponential decay factor must be in (0, 1), got %v", common.ErrInvalidConfig, c.Rate)
		}
	default:
		return fmt.Errorf("%w: unknown decay policy %q", common.ErrInvalidConfig, c.Policy)
	}
	if c.Floor < 0 || c.Floor > model.MaxKeywordWeight {
		return fmt.Errorf("%w: decay floor must be in [0, %.1f], got %v", common.ErrInvalidConfig, model.MaxKeywordWeight, c.Floor)
	}
	if c.IdleAfter < 0 {
		return fmt.Errorf("%w: idle period must not be negative", common.ErrInvalidConfig)
	}
	return nil
}

// Apply returns the decayed weight, never below Floor and never above the input.
func (c DecayConfig) Apply(weight float64) float64 {
	if weight <= c.Floor {
		return weight
	}
	var next float64
	switch c.Policy {
	case DecayExponential:
		next = weight * c.Rate
	default:
		next = weight - c.Rate
	}
	return math.Max(c.Floor, next)
}

// DecayStats summarizes one sweep.
type DecayStats struct {
	Users    int
	Examined int
	Decayed  int
	Skipped  int
}

// Decayer lowers weights whose keyword has not been used for IdleAfter.
// It is meant to be triggered by an external schedule, never by inference.
type Decayer struct {
	store service.WeightStore
	cfg   DecayConfig
}

// NewDecayer creates a decay sweeper.
func NewDecayer(store service.WeightStore, cfg DecayConfig) (*Decayer, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: weight store", common.ErrMissingConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Decayer{store: store, cfg: cfg}, nil
}

// Sweep decays idle weights for every user. A row that changed since it was
// read is skipped rather than retried; the next sweep picks it up.
func (d *Decayer) Sweep(ctx context.Context, now time.Time) (DecayStats, error) {
	start := time.Now()

	users, err := d.store.ListWeightUsers(ctx)
	if err != nil {
		return DecayStats{}, fmt.Errorf("failed to list users with learned weights: %w", err)
	}

	var (
		mu    sync.Mutex
		stats = DecayStats{Users: len(users)}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Concurrency)

	for _, user := range users {
		user := user
		g.Go(func() error {
			userStats, err := d.sweepUser(gctx, user, now)
			if err != nil {
				return err
			}
			mu.Lock()
			stats.Examined += userStats.Examined
			stats.Decayed += userStats.Decayed
			stats.Skipped += userStats.Skipped
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return stats, err
	}

	slog.Info("Decay sweep complete",
		"policy", d.cfg.Policy,
		"users", stats.Users,
		"examined", stats.Examined,
		"decayed", stats.Decayed,
		"skipped", stats.Skipped,
		"duration", time.Since(start))

	return stats, nil
}

func (d *Decayer) sweepUser(ctx context.Context, userID string, now time.Time) (DecayStats, error) {
	weights, err := d.store.GetUserWeights(ctx, userID)
	if err != nil {
		return DecayStats{}, fmt.Errorf("failed to load learned weights for %s: %w", userID, err)
	}

	var stats DecayStats
	for i := range weights {
		current := weights[i]
		stats.Examined++

		if now.Sub(current.LastUsed) < d.cfg.IdleAfter {
			continue
		}
		next := current.WithWeight(d.cfg.Apply(current.Weight))
		if next.Weight == current.Weight {
			continue
		}

		err := d.store.SaveWeight(ctx, &current, next)
		switch {
		case errors.Is(err, common.ErrStaleWeightWrite):
			stats.Skipped++
		case err != nil:
			return stats, fmt.Errorf("failed to decay %s: %w", current.Key(), err)
		default:
			stats.Decayed++
		}
	}
	return stats, nil
}
