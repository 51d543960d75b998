package retention

import (
	"context"
	"log/slog"
	"time"

	"mercator-hq/triage/pkg/config"
	"mercator-hq/triage/pkg/recorder"
)

// Pruner enforces the retention policy on stored run records.
type Pruner struct {
	storage   recorder.Storage
	config    *config.RetentionConfig
	logger    *slog.Logger
	scheduler *Scheduler
	now       func() time.Time
}

// NewPruner creates a pruner for storage.
func NewPruner(storage recorder.Storage, cfg *config.RetentionConfig, logger *slog.Logger) *Pruner {
	if cfg == nil {
		cfg = &config.RetentionConfig{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pruner{
		storage: storage,
		config:  cfg,
		logger:  logger.With("component", "recorder.retention"),
		now:     time.Now,
	}
	p.scheduler = NewScheduler(p)
	return p
}

// Prune deletes records older than Days, then the oldest records beyond
// MaxRecords. A zero limit disables that phase. It returns the number of
// records deleted.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	var total int64

	if p.config.Days > 0 {
		deleted, err := p.pruneByAge(ctx)
		if err != nil {
			return total, err
		}
		total += deleted
	}

	if p.config.MaxRecords > 0 {
		deleted, err := p.pruneByCount(ctx)
		if err != nil {
			return total, err
		}
		total += deleted
	}

	if total > 0 {
		p.logger.Info("run records pruned",
			"deleted_count", total,
			"retention_days", p.config.Days,
			"max_records", p.config.MaxRecords,
		)
	}
	return total, nil
}

func (p *Pruner) pruneByAge(ctx context.Context) (int64, error) {
	cutoff := p.now().AddDate(0, 0, -p.config.Days)
	p.logger.Debug("pruning by age", "cutoff_time", cutoff)

	deleted, err := p.storage.Delete(ctx, &recorder.Query{EndTime: &cutoff})
	if err != nil {
		return 0, recorder.NewRetentionError("age", err)
	}
	return deleted, nil
}

// pruneByCount deletes the oldest records in pages until at most
// MaxRecords remain.
func (p *Pruner) pruneByCount(ctx context.Context) (int64, error) {
	var deleted int64
	for {
		count, err := p.storage.Count(ctx, &recorder.Query{})
		if err != nil {
			return deleted, recorder.NewRetentionError("count", err)
		}
		excess := count - p.config.MaxRecords
		if excess <= 0 {
			return deleted, nil
		}

		oldest, err := p.storage.Query(ctx, &recorder.Query{
			SortBy:    "recorded_at",
			SortOrder: "asc",
			Limit:     int(min(excess, recorder.MaxLimit)),
		})
		if err != nil {
			return deleted, recorder.NewRetentionError("count", err)
		}
		if len(oldest) == 0 {
			return deleted, nil
		}

		ids := make([]string, len(oldest))
		for i, r := range oldest {
			ids[i] = r.ID
		}
		n, err := p.storage.Delete(ctx, &recorder.Query{IDs: ids})
		if err != nil {
			return deleted, recorder.NewRetentionError("count", err)
		}
		deleted += n
		if n == 0 {
			return deleted, nil
		}
	}
}

// Start schedules pruning on PruneSchedule until ctx is done.
func (p *Pruner) Start(ctx context.Context) error {
	return p.scheduler.Start(ctx)
}

// Stop stops the schedule and waits for a running prune.
func (p *Pruner) Stop() {
	p.scheduler.Stop()
}

// NextPruning returns the next scheduled prune, or nil when none is
// scheduled.
func (p *Pruner) NextPruning() *time.Time {
	return p.scheduler.NextRun()
}
