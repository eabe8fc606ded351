// Package worker runs the periodic tasks of structurewatch.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/ErikKalkoken/structurewatch/internal/app/storage"
	"github.com/ErikKalkoken/structurewatch/internal/app/structureservice"
	"github.com/ErikKalkoken/structurewatch/internal/metrics"
	"github.com/ErikKalkoken/structurewatch/internal/xgoesi"
)

// Task names
const (
	TaskCleanup       = "cleanup"
	TaskLowFuel       = "low-fuel"
	TaskNotifications = "notifications"
	TaskStructures    = "structures"
)

// Number of buckets characters are distributed over for polling their notifications.
// Each character is polled once every pollBuckets minutes.
const pollBuckets = 10

// StructureService is the service which executes the tasks.
type StructureService interface {
	DeleteStalePings(ctx context.Context, maxAge time.Duration) (int64, error)
	NotifyLowFuel(ctx context.Context) (int, error)
	ProcessCharacterNotifications(ctx context.Context, characterID int32) (structureservice.ProcessCharacterNotificationsResult, error)
	UpdateCorporationStructures(ctx context.Context, corporationID int32) (int, error)
}

// Schedules are the cron schedules of the tasks.
type Schedules struct {
	Cleanup       string
	LowFuel       string
	Notifications string
	Structures    string
}

// DefaultSchedules returns the default schedules.
func DefaultSchedules() Schedules {
	return Schedules{
		Cleanup:       "30 3 * * *",
		LowFuel:       "0 18 * * *",
		Notifications: "* * * * *",
		Structures:    "15 * * * *",
	}
}

// Worker runs the periodic tasks.
type Worker struct {
	concurrencyLimit int
	cron             *cron.Cron
	downtime         func() time.Duration
	now              func() time.Time
	pingRetention    time.Duration
	s                StructureService
	st               *storage.Storage
	stagger          time.Duration

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

type Params struct {
	Schedules        Schedules
	Storage          *storage.Storage
	StructureService StructureService
	// optional
	ConcurrencyLimit int                  // max number of characters processed concurrently
	Downtime         func() time.Duration // returns the remaining ESI downtime
	Now              func() time.Time
	PingRetention    time.Duration // pings older than this are deleted
	Stagger          time.Duration // delay between starting characters; negative for none
}

// New returns a new worker with its tasks scheduled. The worker needs to be started.
func New(arg Params) (*Worker, error) {
	w := &Worker{
		concurrencyLimit: 5,
		downtime:         arg.Downtime,
		now:              arg.Now,
		pingRetention:    90 * 24 * time.Hour,
		s:                arg.StructureService,
		st:               arg.Storage,
		stagger:          time.Second,
	}
	if w.downtime == nil {
		w.downtime = xgoesi.DailyDowntimeCountdown
	}
	if w.now == nil {
		w.now = func() time.Time {
			return time.Now().UTC()
		}
	}
	if arg.ConcurrencyLimit > 0 {
		w.concurrencyLimit = arg.ConcurrencyLimit
	}
	if arg.PingRetention > 0 {
		w.pingRetention = arg.PingRetention
	}
	if arg.Stagger != 0 {
		w.stagger = max(0, arg.Stagger)
	}
	logger := cronLogger{}
	w.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	jobs := []struct {
		schedule string
		task     string
		run      func(context.Context) error
	}{
		{arg.Schedules.Notifications, TaskNotifications, func(ctx context.Context) error {
			return w.PollNotifications(ctx, w.now().Minute())
		}},
		{arg.Schedules.Structures, TaskStructures, w.UpdateStructures},
		{arg.Schedules.LowFuel, TaskLowFuel, w.NotifyLowFuel},
		{arg.Schedules.Cleanup, TaskCleanup, w.Cleanup},
	}
	for _, j := range jobs {
		if j.schedule == "" {
			slog.Info("Task disabled", "task", j.task)
			continue
		}
		_, err := w.cron.AddFunc(j.schedule, func() {
			w.runTask(w.context(), j.task, j.run)
		})
		if err != nil {
			return nil, fmt.Errorf("schedule task %s: %w", j.task, err)
		}
	}
	return w, nil
}

// Start starts running the scheduled tasks in the background.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.cron.Start()
	slog.Info("Worker started", "tasks", len(w.cron.Entries()))
}

// Stop stops the scheduler and waits for running tasks to complete or ctx to expire.
func (w *Worker) Stop(ctx context.Context) {
	done := w.cron.Stop()
	w.mu.Lock()
	if w.cancel != nil {
		defer w.cancel()
	}
	w.mu.Unlock()
	select {
	case <-done.Done():
		slog.Info("Worker stopped")
	case <-ctx.Done():
		slog.Warn("Worker stopped before all tasks completed")
	}
}

func (w *Worker) context() context.Context {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ctx == nil {
		return context.Background()
	}
	return w.ctx
}

// RunOnce runs all tasks once. Notifications are polled for all characters.
func (w *Worker) RunOnce(ctx context.Context) error {
	var errs []error
	errs = append(errs, w.runTask(ctx, TaskStructures, w.UpdateStructures))
	errs = append(errs, w.runTask(ctx, TaskNotifications, func(ctx context.Context) error {
		return w.PollNotifications(ctx, -1)
	}))
	errs = append(errs, w.runTask(ctx, TaskLowFuel, w.NotifyLowFuel))
	errs = append(errs, w.runTask(ctx, TaskCleanup, w.Cleanup))
	return errors.Join(errs...)
}

// runTask runs a task and records its result.
// During the ESI daily downtime polling notifications is skipped
// and other tasks are deferred until the downtime has ended.
func (w *Worker) runTask(ctx context.Context, task string, run func(context.Context) error) error {
	if d := w.downtime(); d > 0 {
		if task == TaskNotifications {
			slog.Info("Skipping task during ESI daily downtime", "task", task)
			metrics.RecordTaskSkipped(task)
			return nil
		}
		slog.Info("Deferring task until ESI daily downtime has ended", "task", task, "delay", d)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
		}
	}
	start := time.Now()
	err := run(ctx)
	duration := time.Since(start)
	metrics.RecordTaskRun(task, duration, err)
	if err != nil {
		slog.Error("Task failed", "task", task, "duration", duration, "error", err)
		return err
	}
	slog.Debug("Task completed", "task", task, "duration", duration)
	return nil
}

// PollNotifications processes the notifications of all characters in the bucket for minute.
// All characters are processed when minute is negative.
//
// Characters are started one after the other with a delay and processed concurrently.
// Failures for a character are logged and do not stop the other characters.
func (w *Worker) PollNotifications(ctx context.Context, minute int) error {
	ids, err := w.st.ListCharacterIDsForNotificationPolling(ctx)
	if err != nil {
		return err
	}
	if minute >= 0 {
		ids = charactersForMinute(ids, minute)
	}
	if len(ids) == 0 {
		return nil
	}
	g := new(errgroup.Group)
	g.SetLimit(w.concurrencyLimit)
	for i, id := range ids {
		if i > 0 && w.stagger > 0 {
			select {
			case <-ctx.Done():
				return errors.Join(ctx.Err(), g.Wait())
			case <-time.After(w.stagger):
			}
		}
		g.Go(func() error {
			r, err := w.s.ProcessCharacterNotifications(ctx, id)
			if err != nil {
				slog.Error("Failed to process notifications", "characterID", id, "error", err)
				return nil
			}
			if r.Found > 0 {
				slog.Info("Processed structure notifications", "characterID", id, "found", r.Found, "new", r.New)
			}
			return nil
		})
	}
	slog.Info("Polled notifications", "characters", len(ids))
	return g.Wait()
}

// charactersForMinute returns the characters in the polling bucket for minute.
func charactersForMinute(ids []int32, minute int) []int32 {
	bucket := int32(minute % pollBuckets)
	var r []int32
	for _, id := range ids {
		if id%pollBuckets == bucket {
			r = append(r, id)
		}
	}
	return r
}

// UpdateStructures updates the structures of all corporations.
// Failures for a corporation are logged and do not stop the other corporations.
func (w *Worker) UpdateStructures(ctx context.Context) error {
	ids, err := w.st.ListCorporationIDs(ctx)
	if err != nil {
		return err
	}
	g := new(errgroup.Group)
	g.SetLimit(w.concurrencyLimit)
	for _, id := range ids {
		g.Go(func() error {
			if _, err := w.s.UpdateCorporationStructures(ctx, id); err != nil {
				slog.Error("Failed to update structures", "corporationID", id, "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// NotifyLowFuel reports structures running low on fuel.
func (w *Worker) NotifyLowFuel(ctx context.Context) error {
	_, err := w.s.NotifyLowFuel(ctx)
	return err
}

// Cleanup deletes stale data.
func (w *Worker) Cleanup(ctx context.Context) error {
	_, err := w.s.DeleteStalePings(ctx, w.pingRetention)
	return err
}

// cronLogger logs messages from the cron scheduler with slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	slog.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
