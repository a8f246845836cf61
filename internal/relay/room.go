package relay

// room holds one live multiplayer session: its member set, per-member ids,
// and the set of members that have declared readiness. Access is serialized
// by the owning Coordinator's mutex; room itself holds no lock.
type room struct {
	code    string
	clients map[*Session]struct{}
	ready   map[*Session]struct{}
	ids     map[*Session]string

	// order preserves join order so room_state snapshots are deterministic.
	order []*Session
}

func newRoom(code string) *room {
	return &room{
		code:    code,
		clients: make(map[*Session]struct{}),
		ready:   make(map[*Session]struct{}),
		ids:     make(map[*Session]string),
	}
}

func (r *room) has(s *Session) bool {
	_, ok := r.clients[s]
	return ok
}

func (r *room) add(s *Session, id string) {
	if r.has(s) {
		return
	}
	r.clients[s] = struct{}{}
	r.ids[s] = id
	r.order = append(r.order, s)
}

// remove deletes the member from clients, ready, and the id mapping,
// returning the member's per-room id.
func (r *room) remove(s *Session) (string, bool) {
	if !r.has(s) {
		return "", false
	}
	id := r.ids[s]
	delete(r.clients, s)
	delete(r.ready, s)
	delete(r.ids, s)
	for i, member := range r.order {
		if member == s {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return id, true
}

func (r *room) empty() bool {
	return len(r.clients) == 0
}

// allReady reports whether every current member has declared readiness.
// Every session in ready is also in clients, so set sizes suffice.
func (r *room) allReady() bool {
	return len(r.clients) > 0 && len(r.ready) == len(r.clients)
}

// playerIDs returns the per-room ids of all members in join order.
func (r *room) playerIDs() []string {
	ids := make([]string, 0, len(r.order))
	for _, s := range r.order {
		ids = append(ids, r.ids[s])
	}
	return ids
}

// broadcast pushes a frame to every member except the excluded session.
// Push failures (closed session, full buffer) skip that recipient only.
func (r *room) broadcast(frame []byte, except *Session) {
	if frame == nil {
		return
	}
	for _, member := range r.order {
		if member == except {
			continue
		}
		_ = member.Push(frame)
	}
}
