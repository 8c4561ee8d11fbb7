// Package inmemorystore provides an ephemeral, thread-safe, in-memory store
// of cell states for one run.
//
// # Concurrency Model
//
// Workers of every job update their own cells while the status endpoint
// reads. Each cell's state is independent, so entries live in a sync.Map:
// the key space is known up front and values change frequently, which is the
// access pattern sync.Map is built for.
package inmemorystore

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Live states of a cell. Finished cells carry their final cell status
// instead.
const (
	StatePending = "pending"
	StateRunning = "running"
)

// Entry is the state of one cell at a point in time.
type Entry struct {
	Job     string    `json:"job"`
	Cell    string    `json:"cell"`
	Index   int       `json:"index"`
	State   string    `json:"state"`
	Phase   string    `json:"phase,omitempty"`
	Updated time.Time `json:"updated"`
}

// Store is an in-memory cell state store.
type Store struct {
	entries sync.Map // Key: cell ID, Value: Entry
}

// New creates a new, empty store.
func New() *Store {
	return &Store{}
}

// Register records a cell as pending.
func (s *Store) Register(ctx context.Context, job, cellID string, index int) error {
	s.entries.Store(cellID, Entry{Job: job, Cell: cellID, Index: index, State: StatePending, Updated: time.Now()})
	return nil
}

// SetState updates the state of a cell, registering it if needed.
func (s *Store) SetState(ctx context.Context, cellID, state string) error {
	s.update(cellID, func(e *Entry) {
		e.State = state
		e.Phase = ""
	})
	return nil
}

// SetPhase records which part of its pipeline a running cell is in, e.g.
// "provision" or a step name.
func (s *Store) SetPhase(ctx context.Context, cellID, phase string) error {
	s.update(cellID, func(e *Entry) { e.Phase = phase })
	return nil
}

func (s *Store) update(cellID string, fn func(*Entry)) {
	for {
		cur, _ := s.entries.LoadOrStore(cellID, Entry{Cell: cellID, State: StatePending})
		e := cur.(Entry)
		next := e
		fn(&next)
		next.Updated = time.Now()
		if s.entries.CompareAndSwap(cellID, e, next) {
			return
		}
	}
}

// GetState retrieves the state of a cell. Unknown cells are pending.
func (s *Store) GetState(ctx context.Context, cellID string) (string, error) {
	v, ok := s.entries.Load(cellID)
	if !ok {
		return StatePending, nil
	}
	return v.(Entry).State, nil
}

// Snapshot returns every entry ordered by job and cell index.
func (s *Store) Snapshot() []Entry {
	var out []Entry
	s.entries.Range(func(_, v any) bool {
		out = append(out, v.(Entry))
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Job != out[j].Job {
			return out[i].Job < out[j].Job
		}
		if out[i].Index != out[j].Index {
			return out[i].Index < out[j].Index
		}
		return out[i].Cell < out[j].Cell
	})
	return out
}
