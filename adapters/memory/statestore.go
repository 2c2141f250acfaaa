// Package memory provides in-memory implementations of storage ports,
// used by default and in tests.
package memory

import (
	"context"
	"sync"

	"github.com/sigmos-lang/sigmos/domain/value"
	"github.com/sigmos-lang/sigmos/ports"
)

// StateStore is an in-memory implementation of ports.StateStore.
type StateStore struct {
	mu         sync.RWMutex
	lastInputs map[string]*value.Object
	history    map[string][]ports.ExecutionRecord
}

// NewStateStore creates a new in-memory state store.
func NewStateStore() *StateStore {
	return &StateStore{
		lastInputs: make(map[string]*value.Object),
		history:    make(map[string][]ports.ExecutionRecord),
	}
}

// LastInputs returns the most recent input snapshot for a spec.
func (s *StateStore) LastInputs(ctx context.Context, specName string) (*value.Object, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	in, ok := s.lastInputs[specName]
	return in, ok, nil
}

// SaveExecution records an execution and replaces the last-input snapshot.
func (s *StateStore) SaveExecution(ctx context.Context, rec ports.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.Inputs != nil {
		s.lastInputs[rec.SpecName] = rec.Inputs.Clone()
	}
	s.history[rec.SpecName] = append([]ports.ExecutionRecord{rec}, s.history[rec.SpecName]...)
	return nil
}

// History returns the most recent executions for a spec, newest first.
func (s *StateStore) History(ctx context.Context, specName string, limit int) ([]ports.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := s.history[specName]
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	out := make([]ports.ExecutionRecord, len(recs))
	copy(out, recs)
	return out, nil
}

var _ ports.StateStore = (*StateStore)(nil)
