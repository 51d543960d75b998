package retention

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"mercator-hq/triage/pkg/config"
	"mercator-hq/triage/pkg/recorder"
	"mercator-hq/triage/pkg/recorder/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var now = time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)

func seeded(t *testing.T, ages ...time.Duration) *storage.MemoryStorage {
	t.Helper()
	s := storage.NewMemoryStorage()
	for i, age := range ages {
		rec := &recorder.Record{
			ID:         fmt.Sprintf("rec-%d", i),
			Outcome:    "Clean",
			RecordedAt: now.Add(-age),
		}
		if err := s.Store(t.Context(), rec); err != nil {
			t.Fatalf("Store() error = %v", err)
		}
	}
	return s
}

func remaining(t *testing.T, s recorder.Storage) []string {
	t.Helper()
	records, err := s.Query(t.Context(), &recorder.Query{SortOrder: "asc"})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}

func TestPruner_Prune(t *testing.T) {
	day := 24 * time.Hour

	tests := []struct {
		name        string
		cfg         config.RetentionConfig
		wantDeleted int64
		want        []string
	}{
		{
			name:        "disabled",
			cfg:         config.RetentionConfig{},
			wantDeleted: 0,
			want:        []string{"rec-0", "rec-1", "rec-2", "rec-3"},
		},
		{
			name:        "by age",
			cfg:         config.RetentionConfig{Days: 7},
			wantDeleted: 2,
			want:        []string{"rec-2", "rec-3"},
		},
		{
			name:        "by count keeps newest",
			cfg:         config.RetentionConfig{MaxRecords: 1},
			wantDeleted: 3,
			want:        []string{"rec-3"},
		},
		{
			name:        "age then count",
			cfg:         config.RetentionConfig{Days: 20, MaxRecords: 2},
			wantDeleted: 2,
			want:        []string{"rec-2", "rec-3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := seeded(t, 30*day, 10*day, 2*day, time.Hour)
			p := NewPruner(s, &tt.cfg, nil)
			p.now = func() time.Time { return now }

			deleted, err := p.Prune(t.Context())
			if err != nil {
				t.Fatalf("Prune() error = %v", err)
			}
			if deleted != tt.wantDeleted {
				t.Errorf("Prune() = %d, want %d", deleted, tt.wantDeleted)
			}
			if diff := cmp.Diff(tt.want, remaining(t, s)); diff != "" {
				t.Errorf("remaining mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestScheduler_Start(t *testing.T) {
	tests := []struct {
		name        string
		schedule    string
		wantRunning bool
		wantErr     bool
	}{
		{name: "daily", schedule: "0 3 * * *", wantRunning: true},
		{name: "every six hours", schedule: "0 */6 * * *", wantRunning: true},
		{name: "empty schedule", schedule: "", wantRunning: false},
		{name: "invalid", schedule: "every day", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPruner(storage.NewMemoryStorage(), &config.RetentionConfig{PruneSchedule: tt.schedule}, nil)

			err := p.Start(t.Context())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Start() error = %v, wantErr %v", err, tt.wantErr)
			}
			defer p.Stop()

			if got := p.scheduler.IsRunning(); got != tt.wantRunning {
				t.Errorf("IsRunning() = %v, want %v", got, tt.wantRunning)
			}
			next := p.NextPruning()
			if tt.wantRunning && (next == nil || !next.After(time.Now())) {
				t.Errorf("NextPruning() = %v, want a future time", next)
			}
			if !tt.wantRunning && next != nil {
				t.Errorf("NextPruning() = %v, want nil", next)
			}
		})
	}
}

func TestScheduler_StopsOnContextDone(t *testing.T) {
	p := NewPruner(storage.NewMemoryStorage(), &config.RetentionConfig{PruneSchedule: "@every 1h"}, nil)

	ctx, cancel := context.WithCancel(t.Context())
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for p.scheduler.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("scheduler still running after context cancellation")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
