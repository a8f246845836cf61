package relay

import (
	"strconv"
	"sync"
	"sync/atomic"
)

// IDSource issues process-unique, monotonically increasing decimal string
// ids. A single source is shared between connection registration and
// per-room id assignment, so no id is ever reused across the two.
type IDSource struct {
	next atomic.Uint64
}

// NewIDSource creates an IDSource whose first issued id is "1".
func NewIDSource() *IDSource {
	return &IDSource{}
}

// Next returns a fresh id.
func (g *IDSource) Next() string {
	return strconv.FormatUint(g.next.Add(1), 10)
}

// Registry tracks every accepted connection's session and issues connection
// ids. All methods are safe for concurrent use.
type Registry struct {
	ids        *IDSource
	bufferSize int

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates a Registry drawing ids from the given source.
//
// Precondition: ids must be non-nil.
func NewRegistry(ids *IDSource, sessionBuffer int) *Registry {
	return &Registry{
		ids:        ids,
		bufferSize: sessionBuffer,
		sessions:   make(map[string]*Session),
	}
}

// Register allocates a fresh connection id and returns the session for it.
func (r *Registry) Register() *Session {
	s := newSession(r.ids.Next(), r.bufferSize)

	r.mu.Lock()
	r.sessions[s.id] = s
	r.mu.Unlock()

	return s
}

// Deregister marks the session inactive and closes its outbound buffer.
// Idempotent.
func (r *Registry) Deregister(s *Session) {
	if s == nil {
		return
	}

	r.mu.Lock()
	delete(r.sessions, s.id)
	r.mu.Unlock()

	s.Close()
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
