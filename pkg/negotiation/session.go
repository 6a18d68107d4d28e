package negotiation

import (
	"sort"
	"sync"

	apis "github.com/Student-osmania/SDN-offloading/pkg/api/v1alpha1"
)

// SessionStore holds per-UE negotiation state for the controller's lifetime.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*apis.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*apis.Session)}
}

// Update applies fn to the UE's session, creating it on first use.
func (s *SessionStore) Update(ueID, mac string, fn func(*apis.Session)) apis.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[ueID]
	if !ok {
		sess = &apis.Session{UEID: ueID, MAC: mac}
		s.sessions[ueID] = sess
	}
	fn(sess)
	return *sess
}

func (s *SessionStore) Get(ueID string) (apis.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[ueID]
	if !ok {
		return apis.Session{}, false
	}
	return *sess, true
}

func (s *SessionStore) List() []apis.Session {
	s.mu.RLock()
	out := make([]apis.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, *sess)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].UEID < out[j].UEID })
	return out
}
