package runstore

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryStore keeps run state for the lifetime of the process. Used
// when no DATABASE_URL is configured.
type InMemoryStore struct {
	mu       sync.RWMutex
	runs     map[string]RunRecord
	segments map[string][]SegmentRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		runs:     make(map[string]RunRecord),
		segments: make(map[string][]SegmentRecord),
	}
}

func (s *InMemoryStore) SaveRun(_ context.Context, record RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.CreatedAt.IsZero() {
		if existing, ok := s.runs[record.ID]; ok {
			record.CreatedAt = existing.CreatedAt
		} else {
			record.CreatedAt = time.Now().UTC()
		}
	}
	record.UpdatedAt = time.Now().UTC()
	s.runs[record.ID] = record
	return nil
}

func (s *InMemoryStore) SaveSegment(_ context.Context, record SegmentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	// Replace a re-reported segment rather than duplicating it.
	list := s.segments[record.RunID]
	for i := range list {
		if list[i].Index == record.Index {
			list[i] = record
			return nil
		}
	}
	s.segments[record.RunID] = append(list, record)
	return nil
}

func (s *InMemoryStore) GetRun(_ context.Context, id string) (RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.runs[id]
	if !ok {
		return RunRecord{}, ErrNotFound
	}
	return record, nil
}

func (s *InMemoryStore) ListSegments(_ context.Context, runID string) ([]SegmentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.segments[runID]
	out := make([]SegmentRecord, len(list))
	copy(out, list)
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
