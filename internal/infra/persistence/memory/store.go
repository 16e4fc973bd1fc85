// Package memory provides an in-memory migration ledger used for tests, dry
// runs and ephemeral environments.
package memory

import (
	"bytes"
	"context"
	"sync"

	"labdoc/internal/ledger/core"
)

var _ core.Ledger = (*Store)(nil)

// Store keeps records per key in append order.
type Store struct {
	mu    sync.RWMutex
	byKey map[string][]core.Record
}

// New returns an empty ledger.
func New() *Store {
	return &Store{byKey: make(map[string][]core.Record)}
}

func (s *Store) Driver() core.Driver { return core.DriverMemory }

func (s *Store) Append(ctx context.Context, rec core.Record) (core.Record, error) {
	if err := ctx.Err(); err != nil {
		return core.Record{}, err
	}
	rec, err := core.Prepare(rec)
	if err != nil {
		return core.Record{}, err
	}
	rec.Changes = bytes.Clone(rec.Changes)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byKey[rec.Key] = append(s.byKey[rec.Key], rec)
	return rec, nil
}

func (s *Store) History(ctx context.Context, key string) ([]core.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := s.byKey[key]
	out := make([]core.Record, len(recs))
	for i, r := range recs {
		r.Changes = bytes.Clone(r.Changes)
		out[i] = r
	}
	return out, nil
}

func (s *Store) Latest(ctx context.Context, key string) (core.Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return core.Record{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := s.byKey[key]
	if len(recs) == 0 {
		return core.Record{}, false, nil
	}
	r := recs[len(recs)-1]
	r.Changes = bytes.Clone(r.Changes)
	return r, true, nil
}

// Close is a no-op; records remain readable.
func (s *Store) Close() error { return nil }
