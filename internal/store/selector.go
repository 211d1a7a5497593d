package store

import "sync"

// Identity is the authenticated user, as supplied by the external auth
// provider. Absence (a nil *Identity) means local mode.
type Identity struct {
	UserID string
}

// RemoteFactory builds a remote store scoped to one owning user.
type RemoteFactory func(userID string) Store

// Selector routes every operation to the remote store when an identity is
// present, otherwise to the local store. Pure routing: it holds no record
// state, so callers must reload through the newly active store after an
// identity switch.
type Selector struct {
	mu        sync.RWMutex
	local     Store
	newRemote RemoteFactory
	identity  *Identity
	remote    Store
}

// NewSelector creates a selector starting in local mode.
func NewSelector(local Store, newRemote RemoteFactory) *Selector {
	return &Selector{local: local, newRemote: newRemote}
}

// SetIdentity switches the active mode. Passing nil returns to local mode.
func (s *Selector) SetIdentity(id *Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = id
	s.remote = nil
	if id != nil && s.newRemote != nil {
		s.remote = s.newRemote(id.UserID)
	}
}

// Identity returns the current identity, or nil in local mode.
func (s *Selector) Identity() *Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// Active returns the store operations dispatch to right now.
func (s *Selector) Active() Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.remote != nil {
		return s.remote
	}
	return s.local
}
