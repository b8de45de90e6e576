package net

// SessionStore tracks live console sessions. Tick loop only.
type SessionStore struct {
	sessions map[uint64]*Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[uint64]*Session)}
}

func (s *SessionStore) Add(sess *Session) {
	s.sessions[sess.ID] = sess
}

func (s *SessionStore) Remove(id uint64) *Session {
	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	delete(s.sessions, id)
	return sess
}

func (s *SessionStore) Get(id uint64) *Session {
	return s.sessions[id]
}

func (s *SessionStore) Count() int {
	return len(s.sessions)
}

// Each calls fn for every live session.
func (s *SessionStore) Each(fn func(*Session)) {
	for _, sess := range s.sessions {
		fn(sess)
	}
}

// CloseAll closes every session and empties the store.
func (s *SessionStore) CloseAll() {
	for id, sess := range s.sessions {
		sess.Close()
		delete(s.sessions, id)
	}
}
