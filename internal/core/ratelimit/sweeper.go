package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/tgfiles/tgfiles/internal/metrics"
	"github.com/tgfiles/tgfiles/internal/observability"
)

// DefaultSweepInterval is how often expired windows are evicted.
const DefaultSweepInterval = 30 * time.Second

const sweepJobName = "ratelimit-sweep"

// Sweeper periodically evicts expired windows from a store, independent of
// request traffic.
type Sweeper struct {
	store     WindowStore
	clock     func() time.Time
	scheduler gocron.Scheduler
}

// NewSweeper schedules store.Sweep every interval. Call Start to begin.
func NewSweeper(store WindowStore, interval time.Duration, clock func() time.Time) (*Sweeper, error) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}

	s, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
		gocron.WithLogger(&gocronLogger{}),
	)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	sw := &Sweeper{store: store, clock: clock, scheduler: s}
	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { sw.RunOnce(context.Background()) }),
		gocron.WithName(sweepJobName),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("schedule %s: %w", sweepJobName, err)
	}

	return sw, nil
}

// Start begins running the sweep job.
func (s *Sweeper) Start() {
	s.scheduler.Start()
}

// Stop waits for a running sweep and stops the scheduler.
func (s *Sweeper) Stop() error {
	if err := s.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("shutdown sweeper: %w", err)
	}
	return nil
}

// RunOnce performs a single sweep and returns the number of evicted windows.
func (s *Sweeper) RunOnce(ctx context.Context) int {
	evicted, err := s.store.Sweep(ctx, s.clock())
	if err != nil {
		metrics.RecordRateStoreError(backendName(s.store))
		observability.Warn("rate window sweep failed", zap.Error(err))
		return 0
	}
	if evicted > 0 {
		metrics.RecordEvictions(evicted)
		observability.Debug("evicted expired rate windows", zap.Int("count", evicted))
	}
	return evicted
}

type gocronLogger struct{}

func (l *gocronLogger) Debug(msg string, args ...any) { observability.Debug(msg, fieldsFromArgs(args)...) }
func (l *gocronLogger) Info(msg string, args ...any)  { observability.Info(msg, fieldsFromArgs(args)...) }
func (l *gocronLogger) Warn(msg string, args ...any)  { observability.Warn(msg, fieldsFromArgs(args)...) }
func (l *gocronLogger) Error(msg string, args ...any) { observability.Error(msg, fieldsFromArgs(args)...) }

func fieldsFromArgs(args []any) []zap.Field {
	fields := make([]zap.Field, 0, (len(args)+1)/2)
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			fields = append(fields, zap.Any("value", args[i]))
			break
		}
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", args[i])
		}
		fields = append(fields, zap.Any(key, args[i+1]))
	}
	return fields
}
