package sessionstore

import (
	"sort"
	"sync"
	"time"
)

// Session is the server's record of one token.
type Session struct {
	Token       string    `json:"token"`
	Anonymous   bool      `json:"anonymous"`
	CreatedAt   time.Time `json:"created_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
	Connections int       `json:"connections"`
	Active      int       `json:"active"`
}

// Registry tracks sessions by token for the lifetime of a server process.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	now      func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session), now: time.Now}
}

// Issue registers a named session with no connections yet. Its token can be
// handed to a client out of band and resumed by a later handshake.
func (r *Registry) Issue() Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	s := &Session{Token: NewToken(), CreatedAt: now, LastSeenAt: now}
	r.sessions[s.Token] = s
	return *s
}

// Resolve maps a handshake token onto a session and marks it active. Only
// tokens this registry issued are resumed; a nil, malformed or unknown token
// gets a fresh anonymous session.
func (r *Registry) Resolve(token *string) (sess Session, resumed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()

	if token != nil {
		if s, ok := r.sessions[*token]; ok {
			s.LastSeenAt = now
			s.Connections++
			s.Active++
			return *s, true
		}
	}

	s := &Session{Token: NewToken(), Anonymous: true, CreatedAt: now, LastSeenAt: now, Connections: 1, Active: 1}
	r.sessions[s.Token] = s
	return *s, false
}

// Release marks one connection of token as gone.
func (r *Registry) Release(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[token]; ok && s.Active > 0 {
		s.Active--
		s.LastSeenAt = r.now()
	}
}

func (r *Registry) Get(token string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[token]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// List returns every known session, most recently seen first.
func (r *Registry) List() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastSeenAt.Equal(out[j].LastSeenAt) {
			return out[i].Token < out[j].Token
		}
		return out[i].LastSeenAt.After(out[j].LastSeenAt)
	})
	return out
}

// ActiveCount is the number of live connections across all sessions.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sessions {
		n += s.Active
	}
	return n
}
