package controllers

import (
	"sync"
)

// SessionStore maps a client session to its current charge. Each session
// holds at most one txid at a time; creating a new charge replaces the
// previous binding.
type SessionStore struct {
	mu    sync.RWMutex
	txids map[string]string
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		txids: make(map[string]string),
	}
}

func (s *SessionStore) Bind(sessionID, txid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txids[sessionID] = txid
}

func (s *SessionStore) Lookup(sessionID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	txid, ok := s.txids[sessionID]
	return txid, ok
}

func (s *SessionStore) Clear(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.txids, sessionID)
}
