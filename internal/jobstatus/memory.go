package jobstatus

import (
	"context"
	"sync"

	"basegraph.co/distributor/internal/model"
)

// MemoryStore is process-local and never expires entries.
type MemoryStore struct {
	results sync.Map
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Record(_ context.Context, jobID string, result model.JobResult) error {
	s.results.Store(jobID, result)
	return nil
}

func (s *MemoryStore) Find(_ context.Context, jobID string) (model.JobResult, bool, error) {
	v, ok := s.results.Load(jobID)
	if !ok {
		return model.JobResult{}, false, nil
	}
	return v.(model.JobResult), true, nil
}
