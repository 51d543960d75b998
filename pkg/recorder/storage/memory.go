package storage

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"mercator-hq/triage/pkg/recorder"
)

// MemoryStorage implements recorder.Storage with an in-memory map. It is
// meant for tests and one-shot runs that do not need persistence.
type MemoryStorage struct {
	records map[string]*recorder.Record
	mu      sync.RWMutex
}

// NewMemoryStorage creates a new in-memory storage backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		records: make(map[string]*recorder.Record),
	}
}

// Store persists a copy of record.
func (s *MemoryStorage) Store(ctx context.Context, record *recorder.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[record.ID]; ok {
		return recorder.NewStorageError("memory", "store", fmt.Errorf("duplicate record id %s", record.ID))
	}
	s.records[record.ID] = clone(record)
	return nil
}

// Get returns a copy of the record with the given ID.
func (s *MemoryStorage) Get(ctx context.Context, id string) (*recorder.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[id]
	if !ok {
		return nil, recorder.ErrNotFound
	}
	return clone(record), nil
}

// Query retrieves records matching the query filters, sorted and paged.
func (s *MemoryStorage) Query(ctx context.Context, query *recorder.Query) ([]*recorder.Record, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	results := make([]*recorder.Record, 0)
	for _, record := range s.records {
		if matches(record, query) {
			results = append(results, clone(record))
		}
	}
	s.mu.RUnlock()

	field, desc := query.Sort()
	slices.SortFunc(results, func(a, b *recorder.Record) int {
		c := compareBy(field, a, b)
		if c == 0 {
			c = cmp.Compare(a.ID, b.ID)
		}
		if desc {
			return -c
		}
		return c
	})

	if query.Offset >= len(results) {
		return []*recorder.Record{}, nil
	}
	end := min(query.Offset+query.PageSize(), len(results))
	return results[query.Offset:end], nil
}

// Count returns the number of records matching the query filters.
func (s *MemoryStorage) Count(ctx context.Context, query *recorder.Query) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, record := range s.records {
		if matches(record, query) {
			count++
		}
	}
	return count, nil
}

// Delete removes records matching the query filters.
func (s *MemoryStorage) Delete(ctx context.Context, query *recorder.Query) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, record := range s.records {
		if matches(record, query) {
			delete(s.records, id)
			deleted++
		}
	}
	return deleted, nil
}

// Close releases the records.
func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[string]*recorder.Record)
	return nil
}

// Size returns the number of records held.
func (s *MemoryStorage) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func matches(record *recorder.Record, query *recorder.Query) bool {
	if query.StartTime != nil && record.RecordedAt.Before(*query.StartTime) {
		return false
	}
	if query.EndTime != nil && record.RecordedAt.After(*query.EndTime) {
		return false
	}
	if len(query.IDs) > 0 && !slices.Contains(query.IDs, record.ID) {
		return false
	}
	if query.RunID != "" && record.RunID != query.RunID {
		return false
	}
	if query.Artifact != "" && record.Artifact != query.Artifact {
		return false
	}
	if query.ArtifactSHA256 != "" && record.ArtifactSHA256 != query.ArtifactSHA256 {
		return false
	}
	if query.Outcome != "" && record.Outcome != query.Outcome {
		return false
	}
	if query.Severity != "" && record.Severity != query.Severity {
		return false
	}
	if query.MinScore != nil && record.Score < *query.MinScore {
		return false
	}
	if query.BoundsExceeded != nil && record.BoundsExceeded != *query.BoundsExceeded {
		return false
	}
	return true
}

func compareBy(field string, a, b *recorder.Record) int {
	switch field {
	case "score":
		return cmp.Compare(a.Score, b.Score)
	case "artifact":
		return cmp.Compare(a.Artifact, b.Artifact)
	case "duration":
		return cmp.Compare(a.Duration, b.Duration)
	default:
		return a.RecordedAt.Compare(b.RecordedAt)
	}
}

func clone(record *recorder.Record) *recorder.Record {
	c := *record
	c.RiskHints = slices.Clone(record.RiskHints)
	c.Result = slices.Clone(record.Result)
	return &c
}
