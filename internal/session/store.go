package session

import (
	"slices"
	"sync"
)

// Store maps guild IDs to their live [GuildSession].
//
// Store is safe for concurrent use. The zero value is ready to use.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*GuildSession
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{}
}

// Has reports whether guildID has a session.
func (s *Store) Has(guildID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[guildID]
	return ok
}

// Get returns the session for guildID.
func (s *Store) Get(guildID string) (*GuildSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	gs, ok := s.sessions[guildID]
	return gs, ok
}

// Put stores gs under its guild ID. It returns false without modifying the
// store when the guild already has a session.
func (s *Store) Put(gs *GuildSession) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[gs.GuildID]; ok {
		return false
	}
	if s.sessions == nil {
		s.sessions = make(map[string]*GuildSession)
	}
	s.sessions[gs.GuildID] = gs
	return true
}

// Remove deletes and returns the session for guildID.
func (s *Store) Remove(guildID string) (*GuildSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gs, ok := s.sessions[guildID]
	if ok {
		delete(s.sessions, guildID)
	}
	return gs, ok
}

// CompareAndRemove deletes the session for guildID only if it is gs. A
// teardown of an old connection therefore never removes a newer session.
func (s *Store) CompareAndRemove(guildID string, gs *GuildSession) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.sessions[guildID]; ok && cur == gs {
		delete(s.sessions, guildID)
		return true
	}
	return false
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// GuildIDs returns the connected guild IDs in sorted order.
func (s *Store) GuildIDs() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	slices.Sort(ids)
	return ids
}
