package store

import (
	"context"
	"slices"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/couchcryptid/nasa-explorer/internal/domain"
)

// MemoryStore keeps everything in process memory. Stats updates for one user
// are serialized by a per-user mutex.
type MemoryStore struct {
	mu        sync.RWMutex
	userLocks map[string]*sync.Mutex
	stats     map[string]domain.UserGameStats
	locations map[string][]domain.LocationRecord
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		userLocks: make(map[string]*sync.Mutex),
		stats:     make(map[string]domain.UserGameStats),
		locations: make(map[string][]domain.LocationRecord),
	}
}

func (s *MemoryStore) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.userLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.userLocks[userID] = l
	}
	return l
}

func (s *MemoryStore) RecordVisit(_ context.Context, rec domain.LocationRecord, update StatsUpdate) (domain.UserGameStats, error) {
	l := s.userLock(rec.UserID)
	l.Lock()
	defer l.Unlock()

	updated, err := update(s.loadStats(rec.UserID))
	if err != nil {
		return domain.UserGameStats{}, err
	}
	updated.Version++

	s.mu.Lock()
	defer s.mu.Unlock()
	s.locations[rec.UserID] = append(s.locations[rec.UserID], rec)
	s.stats[rec.UserID] = updated
	return updated, nil
}

func (s *MemoryStore) UpdateStats(_ context.Context, userID string, update StatsUpdate) (domain.UserGameStats, error) {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	updated, err := update(s.loadStats(userID))
	if err != nil {
		return domain.UserGameStats{}, err
	}
	updated.Version++

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats[userID] = updated
	return updated, nil
}

func (s *MemoryStore) GetStats(_ context.Context, userID string) (domain.UserGameStats, error) {
	return s.loadStats(userID), nil
}

func (s *MemoryStore) loadStats(userID string) domain.UserGameStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.stats[userID]; ok {
		st.Achievements = slices.Clone(st.Achievements)
		return st
	}
	return domain.NewUserGameStats(userID)
}

func (s *MemoryStore) ListLocations(_ context.Context, userID string, limit int) ([]domain.LocationRecord, error) {
	s.mu.RLock()
	recs := make([]domain.LocationRecord, 0, len(s.locations[userID]))
	for _, r := range s.locations[userID] {
		if r.Active {
			recs = append(recs, r)
		}
	}
	s.mu.RUnlock()

	// insertion order reversed keeps ties newest first
	slices.Reverse(recs)
	sortNewestFirst(recs)
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

func (s *MemoryStore) DeactivateLocation(_ context.Context, userID, locationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.locations[userID] {
		if r.ID == locationID {
			s.locations[userID][i].Active = false
			return nil
		}
	}
	return eris.Wrapf(ErrNotFound, "memory: location %s", locationID)
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() {}
