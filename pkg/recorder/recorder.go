package recorder

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"mercator-hq/triage/pkg/engine"
)

// Config contains configuration for the run recorder.
type Config struct {
	// AsyncBuffer is the size of the async write channel buffer.
	// Default: 256
	AsyncBuffer int

	// WriteTimeout bounds both enqueueing and each storage write.
	// Default: 5 seconds
	WriteTimeout time.Duration

	// IncludeResult stores the full result JSON with every record.
	// Default: true
	IncludeResult bool
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() *Config {
	return &Config{
		AsyncBuffer:   256,
		WriteTimeout:  5 * time.Second,
		IncludeResult: true,
	}
}

// Recorder persists finalized runs. Writes happen on a background worker
// so recording never delays the next run; Close drains what is queued.
type Recorder struct {
	storage Storage
	config  *Config
	logger  *slog.Logger

	records chan *Record
	done    chan struct{}
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewRecorder starts a recorder writing to storage.
func NewRecorder(storage Storage, config *Config, logger *slog.Logger) *Recorder {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := &Recorder{
		storage: storage,
		config:  config,
		logger:  logger.With("component", "recorder"),
		records: make(chan *Record, config.AsyncBuffer),
		done:    make(chan struct{}),
	}

	r.wg.Add(1)
	go r.worker()

	r.logger.Debug("run recorder started",
		"async_buffer", config.AsyncBuffer,
		"write_timeout", config.WriteTimeout,
	)
	return r
}

// NewRecord summarizes result. artifactHash is the SHA-256 of the artifact
// content as returned by HashArtifact.
func NewRecord(result *engine.Result, artifactHash string, size int64, includeResult bool) (*Record, error) {
	rec := &Record{
		ID:             uuid.NewString(),
		RunID:          result.RunID,
		Artifact:       result.Artifact,
		ArtifactSHA256: artifactHash,
		ArtifactSize:   size,
		Outcome:        result.Outcome.Name,
		Severity:       result.Outcome.Severity,
		Score:          result.Score,
		RiskHints:      append([]string{}, result.RiskHints...),
		Emissions:      len(result.Emissions),
		Deferred:       len(result.Deferred),
		BoundsExceeded: result.BoundsExceeded,
		Generation:     result.Generation,
		Digest:         result.Digest(),
		RecordedAt:     time.Now().UTC(),
		Duration:       result.Duration,
	}
	if includeResult {
		data, err := json.Marshal(result)
		if err != nil {
			return nil, NewRecorderError(rec.ID, err)
		}
		rec.Result = data
	}
	return rec, nil
}

// RecordResult builds a record for result and enqueues it.
func (r *Recorder) RecordResult(ctx context.Context, result *engine.Result, artifactHash string, size int64) (*Record, error) {
	rec, err := NewRecord(result, artifactHash, size, r.config.IncludeResult)
	if err != nil {
		return nil, err
	}
	return rec, r.Record(ctx, rec)
}

// Record enqueues rec for writing. It blocks for at most WriteTimeout when
// the buffer is full.
func (r *Recorder) Record(ctx context.Context, rec *Record) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return NewRecorderError(rec.ID, ErrRecorderClosed)
	}

	timer := time.NewTimer(r.config.WriteTimeout)
	defer timer.Stop()

	select {
	case r.records <- rec:
		r.logger.Debug("run record enqueued", "record_id", rec.ID, "run_id", rec.RunID)
		return nil
	case <-ctx.Done():
		return NewRecorderError(rec.ID, ctx.Err())
	case <-timer.C:
		r.logger.Error("record channel full, dropping record",
			"record_id", rec.ID,
			"run_id", rec.RunID,
			"channel_capacity", r.config.AsyncBuffer,
		)
		return NewRecorderError(rec.ID, context.DeadlineExceeded)
	}
}

// Close stops accepting records and waits until every queued record has
// been written.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.done)
	r.mu.Unlock()

	r.wg.Wait()
	r.logger.Debug("run recorder stopped")
	return nil
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case rec := <-r.records:
			r.write(rec)
		case <-r.done:
			for {
				select {
				case rec := <-r.records:
					r.write(rec)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(rec *Record) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	start := time.Now()
	if err := r.storage.Store(ctx, rec); err != nil {
		r.logger.Error("failed to store run record",
			"record_id", rec.ID,
			"run_id", rec.RunID,
			"error", err,
		)
		return
	}

	duration := time.Since(start)
	r.logger.Info("run recorded",
		"record_id", rec.ID,
		"run_id", rec.RunID,
		"outcome", rec.Outcome,
		"duration_ms", duration.Milliseconds(),
	)
	if duration > r.config.WriteTimeout/2 {
		r.logger.Warn("slow record write",
			"record_id", rec.ID,
			"duration_ms", duration.Milliseconds(),
		)
	}
}
