// Package jobs runs the periodic maintenance work: leaderboard and
// visibility recomputes, the abuse sweep, the GitHub star mirror and star
// reconciliation.
//
// Every run goes through Runner, which holds a Redis lease for the job so two
// instances never run the same job at once. Triggering is separate: an asynq
// scheduler enqueues one task per cron tick and an asynq server hands each
// task to the Runner. The CLI can also call the Runner directly.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/sakif/starswipe/internal/cache"
	"github.com/sakif/starswipe/internal/service"
)

// Job names.
const (
	Leaderboard = "leaderboard"
	Visibility  = "visibility"
	AbuseSweep  = "abuse-sweep"
	GitHubSync  = "github-sync"
	Reconcile   = "reconcile"
)

// ErrUnknownJob is returned for a name nobody registered.
var ErrUnknownJob = errors.New("jobs: unknown job")

// Func does one run of a job and reports how many items it touched.
type Func func(ctx context.Context) (int, error)

// Result describes one Run.
type Result struct {
	Job       string
	Processed int
	// Skipped is set when another instance held the lease.
	Skipped  bool
	Duration time.Duration
}

// Runner executes registered jobs under a lease.
type Runner struct {
	cache    cache.Cache
	leaseTTL time.Duration
	logger   *slog.Logger
	jobs     map[string]Func
}

func NewRunner(c cache.Cache, leaseTTL time.Duration, logger *slog.Logger) *Runner {
	return &Runner{
		cache:    c,
		leaseTTL: leaseTTL,
		logger:   logger,
		jobs:     make(map[string]Func),
	}
}

// Register adds a job. Registering a name twice replaces it.
func (r *Runner) Register(name string, fn Func) {
	r.jobs[name] = fn
}

// Names lists registered jobs in name order.
func (r *Runner) Names() []string {
	names := make([]string, 0, len(r.jobs))
	for n := range r.jobs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Run executes the job if no other instance holds its lease. Without a
// reachable cache there is no lease, so the run is refused.
func (r *Runner) Run(ctx context.Context, name string) (Result, error) {
	fn, ok := r.jobs[name]
	if !ok {
		return Result{Job: name}, fmt.Errorf("%w: %q", ErrUnknownJob, name)
	}

	key := cache.LeaseKey(name)
	token, acquired, err := r.cache.AcquireLease(ctx, key, r.leaseTTL)
	if err != nil {
		return Result{Job: name}, fmt.Errorf("jobs: acquiring lease for %s: %w", name, err)
	}
	if !acquired {
		r.logger.Info("job already running elsewhere, skipping", slog.String("job", name))
		return Result{Job: name, Skipped: true}, nil
	}
	defer func() {
		if err := r.cache.ReleaseLease(context.WithoutCancel(ctx), key, token); err != nil {
			r.logger.Warn("releasing job lease failed", slog.String("job", name), slog.String("error", err.Error()))
		}
	}()

	start := time.Now()
	n, err := fn(ctx)
	res := Result{Job: name, Processed: n, Duration: time.Since(start)}
	if err != nil {
		r.logger.Error("job failed",
			slog.String("job", name),
			slog.Int("processed", n),
			slog.String("error", err.Error()),
		)
		return res, fmt.Errorf("jobs: %s: %w", name, err)
	}

	r.logger.Info("job finished",
		slog.String("job", name),
		slog.Int("processed", n),
		slog.Duration("duration", res.Duration),
	)
	return res, nil
}

// Services are the job bodies.
type Services struct {
	Leaderboard *service.LeaderboardService
	Trust       *service.TrustService
	Repos       *service.RepositoryService
	StarSync    *service.StarSyncService
}

// RegisterAll registers every periodic job.
func RegisterAll(r *Runner, s Services) {
	r.Register(Leaderboard, s.Leaderboard.RecomputeScores)
	r.Register(Visibility, s.Leaderboard.RecomputeVisibility)
	r.Register(AbuseSweep, s.Trust.SweepAnomalies)
	r.Register(GitHubSync, s.Repos.RefreshStale)
	r.Register(Reconcile, s.StarSync.ReconcileSweep)
}
