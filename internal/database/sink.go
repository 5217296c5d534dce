package database

import (
	"context"

	"github.com/CodeMonkeyCybersecurity/x9/pkg/mutation"
)

const defaultBatchSize = 500

// CandidateSink persists candidates for one run in batches.
type CandidateSink struct {
	store *Store
	runID string
	size  int
	batch []mutation.Candidate
	next  int
}

func NewCandidateSink(store *Store, runID string, batchSize int) *CandidateSink {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &CandidateSink{
		store: store,
		runID: runID,
		size:  batchSize,
		batch: make([]mutation.Candidate, 0, batchSize),
	}
}

func (s *CandidateSink) Write(ctx context.Context, c mutation.Candidate) error {
	s.batch = append(s.batch, c)
	if len(s.batch) >= s.size {
		return s.flush(ctx)
	}
	return nil
}

func (s *CandidateSink) flush(ctx context.Context) error {
	if len(s.batch) == 0 {
		return nil
	}
	if err := s.store.SaveCandidates(ctx, s.runID, s.next, s.batch); err != nil {
		return err
	}
	s.next += len(s.batch)
	s.batch = s.batch[:0]
	return nil
}

// Close writes whatever is still buffered.
func (s *CandidateSink) Close() error {
	return s.flush(context.Background())
}

// Saved returns the number of candidates committed so far.
func (s *CandidateSink) Saved() int { return s.next }
