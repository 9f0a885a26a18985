package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/sakif/starswipe/internal/config"
)

const taskPrefix = "job:"

// TaskType is the asynq task type for a job.
func TaskType(name string) string { return taskPrefix + name }

// Schedules maps each job to its cron spec. Empty specs are left out.
func Schedules(cfg config.JobsConfig) map[string]string {
	out := map[string]string{
		Leaderboard: cfg.LeaderboardSchedule,
		Visibility:  cfg.VisibilitySchedule,
		AbuseSweep:  cfg.AbuseSweepSchedule,
		GitHubSync:  cfg.GitHubSyncSchedule,
		Reconcile:   cfg.ReconcileSchedule,
	}
	for k, v := range out {
		if strings.TrimSpace(v) == "" {
			delete(out, k)
		}
	}
	return out
}

// NewScheduler registers one periodic task per scheduled job. Unique keeps a
// second scheduler instance from enqueueing the same tick twice.
func NewScheduler(opt asynq.RedisConnOpt, schedules map[string]string, leaseTTL time.Duration, logger *slog.Logger) (*asynq.Scheduler, error) {
	scheduler := asynq.NewScheduler(opt, &asynq.SchedulerOpts{
		Location: time.UTC,
		LogLevel: asynq.WarnLevel,
		Logger:   &asynqLogger{logger: logger},
	})

	for name, spec := range schedules {
		task := asynq.NewTask(
			TaskType(name),
			nil,
			asynq.MaxRetry(0),
			asynq.Timeout(leaseTTL),
			asynq.Unique(time.Minute),
		)
		entryID, err := scheduler.Register(spec, task)
		if err != nil {
			return nil, fmt.Errorf("jobs: registering %s (%q): %w", name, spec, err)
		}
		logger.Debug("job scheduled", slog.String("job", name), slog.String("schedule", spec), slog.String("entryId", entryID))
	}
	return scheduler, nil
}

// NewServer builds the asynq worker that hands scheduled tasks to runner.
func NewServer(opt asynq.RedisConnOpt, concurrency int, runner *Runner, logger *slog.Logger) (*asynq.Server, *asynq.ServeMux) {
	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency:     max(concurrency, 1),
		ShutdownTimeout: 30 * time.Second,
		LogLevel:        asynq.WarnLevel,
		Logger:          &asynqLogger{logger: logger},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.Error("scheduled job failed", slog.String("task", task.Type()), slog.String("error", err.Error()))
		}),
	})

	mux := asynq.NewServeMux()
	for _, name := range runner.Names() {
		mux.HandleFunc(TaskType(name), handler(runner, name))
	}
	return srv, mux
}

func handler(runner *Runner, name string) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, _ *asynq.Task) error {
		if _, err := runner.Run(ctx, name); err != nil {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return nil
	}
}

// Worker is the scheduler and server started together.
type Worker struct {
	scheduler *asynq.Scheduler
	server    *asynq.Server
	mux       *asynq.ServeMux
}

// NewWorker wires the scheduler and server against one Redis URL.
func NewWorker(redisURL string, cfg config.JobsConfig, runner *Runner, logger *slog.Logger) (*Worker, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("jobs: parsing redis url: %w", err)
	}
	scheduler, err := NewScheduler(opt, Schedules(cfg), cfg.LeaseTTL, logger)
	if err != nil {
		return nil, err
	}
	srv, mux := NewServer(opt, cfg.Concurrency, runner, logger)
	return &Worker{scheduler: scheduler, server: srv, mux: mux}, nil
}

// Start runs both in the background.
func (w *Worker) Start() error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("jobs: starting server: %w", err)
	}
	if err := w.scheduler.Start(); err != nil {
		w.server.Shutdown()
		return fmt.Errorf("jobs: starting scheduler: %w", err)
	}
	return nil
}

// Stop shuts the scheduler down first so no new ticks are enqueued.
func (w *Worker) Stop() {
	w.scheduler.Shutdown()
	w.server.Shutdown()
}

// asynqLogger adapts slog to asynq.Logger.
type asynqLogger struct {
	logger *slog.Logger
}

func (a *asynqLogger) Debug(args ...any) { a.logger.Debug(fmt.Sprint(args...)) }
func (a *asynqLogger) Info(args ...any)  { a.logger.Info(fmt.Sprint(args...)) }
func (a *asynqLogger) Warn(args ...any)  { a.logger.Warn(fmt.Sprint(args...)) }
func (a *asynqLogger) Error(args ...any) { a.logger.Error(fmt.Sprint(args...)) }

func (a *asynqLogger) Fatal(args ...any) {
	a.logger.Error(fmt.Sprint(args...))
	panic(fmt.Sprint(args...))
}
