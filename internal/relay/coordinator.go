package relay

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quickmatch/relay/internal/protocol"
)

// Coordinator owns all shared matchmaking and room state: the per-mode
// waiting queues, the directory of live rooms, and a reverse index from
// session to room code. A single mutex serializes every operation, so
// concurrent connections never observe a queue or room mid-mutation:
// pairing, join, leave, and each relay broadcast are transactional.
//
// Operations on an absent context (unknown room code, ready without a room)
// are silent no-ops per the relay protocol: no error event exists on the wire.
type Coordinator struct {
	ids      *IDSource
	logger   *zap.Logger
	recorder Recorder

	// defaultMode fills in an omitted find_match mode and the mode tag on
	// start_game events that don't carry one.
	defaultMode string

	// genCode and now are swappable for tests.
	genCode func() string
	now     func() time.Time

	mu       sync.Mutex
	queues   map[string][]*Session
	rooms    map[string]*room
	byMember map[*Session]string // session → room code reverse index
}

// NewCoordinator creates a Coordinator drawing per-room ids from the given
// source.
//
// Precondition: ids and logger must be non-nil. recorder may be nil, in
// which case match history is discarded.
func NewCoordinator(ids *IDSource, defaultMode string, recorder Recorder, logger *zap.Logger) *Coordinator {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	if defaultMode == "" {
		defaultMode = "coop"
	}
	return &Coordinator{
		ids:         ids,
		logger:      logger,
		recorder:    recorder,
		defaultMode: defaultMode,
		genCode:     randomCode,
		now:         time.Now,
		queues:      make(map[string][]*Session),
		rooms:       make(map[string]*room),
		byMember:    make(map[*Session]string),
	}
}

// Enqueue appends the session to the named mode's waiting queue, creating
// the queue if absent, and pairs the two front entries into a new room once
// the queue holds two. A session already waiting or already in a room is not
// enqueued again.
//
// Postcondition: The session is in exactly one queue, or in a freshly
// created room with a fresh per-room id alongside its partner, both notified
// with match_found.
func (c *Coordinator) Enqueue(s *Session, mode string) {
	if mode == "" {
		mode = c.defaultMode
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, inRoom := c.byMember[s]; inRoom || c.queued(s) {
		c.logger.Debug("ignoring find_match from busy session",
			zap.String("conn_id", s.ID()),
		)
		return
	}

	queue := append(c.queues[mode], s)
	if len(queue) < 2 {
		c.queues[mode] = queue
		c.logger.Debug("session queued",
			zap.String("conn_id", s.ID()),
			zap.String("mode", mode),
			zap.Int("queue_len", len(queue)),
		)
		return
	}

	// Drain the two front entries and pair them. Everything happens under
	// the lock, so the pair is never visible to a concurrent pairing.
	p1, p2 := queue[0], queue[1]
	c.queues[mode] = queue[2:]

	code := c.genCode()
	for _, taken := c.rooms[code]; taken; _, taken = c.rooms[code] {
		code = c.genCode()
	}

	rm := newRoom(code)
	rm.add(p1, c.ids.Next())
	rm.add(p2, c.ids.Next())
	c.rooms[code] = rm
	c.byMember[p1] = code
	c.byMember[p2] = code

	frame := protocol.MatchFound(code)
	_ = p1.Push(frame)
	_ = p2.Push(frame)

	c.recorder.MatchCreated(code, mode)
	c.logger.Info("match paired",
		zap.String("code", code),
		zap.String("mode", mode),
		zap.String("conn_a", p1.ID()),
		zap.String("conn_b", p2.ID()),
	)
}

// CancelMatch removes the session from every waiting queue. Safe to call for
// a session that was never queued.
func (c *Coordinator) CancelMatch(s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeFromQueues(s)
}

// JoinRoom adds the session to the room with the given code. The code is
// case-folded to upper before lookup. An unknown code, or a session already
// in a room, is a silent no-op. In particular a member re-joining its own
// room does not produce a duplicate player_joined.
//
// Postcondition: On success the joiner holds its connection id as per-room
// id, has received room_joined and a room_state snapshot, and every other
// member has received exactly one player_joined.
func (c *Coordinator) JoinRoom(s *Session, code string) {
	code = strings.ToUpper(code)

	c.mu.Lock()
	defer c.mu.Unlock()

	rm, ok := c.rooms[code]
	if !ok {
		c.logger.Debug("join for unknown room",
			zap.String("conn_id", s.ID()),
			zap.String("code", code),
		)
		return
	}
	if _, inRoom := c.byMember[s]; inRoom {
		return
	}

	// A connection is never simultaneously queued and in a room.
	c.removeFromQueues(s)

	id := s.ID()
	rm.add(s, id)
	c.byMember[s] = code

	_ = s.Push(protocol.RoomJoined(code, id))
	_ = s.Push(protocol.RoomState(rm.playerIDs()))
	rm.broadcast(protocol.PlayerJoined(id), s)

	c.logger.Info("session joined room",
		zap.String("code", code),
		zap.String("conn_id", id),
		zap.Int("members", len(rm.clients)),
	)
}

// LeaveRoom removes the session from its room, if any, broadcasting
// player_left to the remaining members and deleting the room when it becomes
// empty. Invoked both for an explicit leave_room and on disconnect.
func (c *Coordinator) LeaveRoom(s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.leaveLocked(s)
}

func (c *Coordinator) leaveLocked(s *Session) {
	code, ok := c.byMember[s]
	if !ok {
		return
	}
	rm := c.rooms[code]
	delete(c.byMember, s)

	id, _ := rm.remove(s)
	rm.broadcast(protocol.PlayerLeft(id), nil)

	if rm.empty() {
		delete(c.rooms, code)
		c.logger.Info("room deleted", zap.String("code", code))
		return
	}
	c.logger.Info("session left room",
		zap.String("code", code),
		zap.String("conn_id", s.ID()),
		zap.Int("members", len(rm.clients)),
	)
}

// MarkReady records the session's readiness. When every member of a
// non-empty room is ready, start_game is broadcast to the whole room with a
// fresh millisecond seed. A repeated ready from an already-ready member does
// not re-broadcast. The ready set is not cleared after the game starts, so a
// later joiner completing a new quorum fires start_game again with a fresh
// seed.
func (c *Coordinator) MarkReady(s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()

	code, ok := c.byMember[s]
	if !ok {
		return
	}
	rm := c.rooms[code]

	if _, already := rm.ready[s]; already {
		return
	}
	rm.ready[s] = struct{}{}

	if !rm.allReady() {
		return
	}

	seed := c.now().UnixMilli()
	rm.broadcast(protocol.StartGame(nil, c.defaultMode, seed), nil)
	c.recorder.GameStarted(code, seed)
	c.logger.Info("game started",
		zap.String("code", code),
		zap.Int64("seed", seed),
		zap.Int("members", len(rm.clients)),
	)
}

// StartGame lets any room member force-start: the caller-supplied payload is
// broadcast to the whole room (including the caller) as start_game, with
// seed defaulting to the current milliseconds and mode to the default tag.
func (c *Coordinator) StartGame(s *Session, fields map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	code, ok := c.byMember[s]
	if !ok {
		return
	}
	rm := c.rooms[code]

	seed := c.now().UnixMilli()
	if v, ok := fields["seed"].(float64); ok {
		seed = int64(v)
	}

	rm.broadcast(protocol.StartGame(fields, c.defaultMode, seed), nil)
	c.recorder.GameStarted(code, seed)
	c.logger.Info("game started",
		zap.String("code", code),
		zap.Int64("seed", seed),
		zap.String("requested_by", s.ID()),
	)
}

// RelayState broadcasts a positional update, tagged with the sender's
// per-room id, to every other room member. No-op without a room.
func (c *Coordinator) RelayState(s *Session, x, y float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	code, ok := c.byMember[s]
	if !ok {
		return
	}
	rm := c.rooms[code]
	rm.broadcast(protocol.State(rm.ids[s], x, y), s)
}

// RelayGame broadcasts the caller-supplied payload, with the sender's
// per-room id attached, to every room member including the sender. The relay
// does not interpret the payload. No-op without a room.
func (c *Coordinator) RelayGame(s *Session, fields map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	code, ok := c.byMember[s]
	if !ok {
		return
	}
	rm := c.rooms[code]
	rm.broadcast(protocol.Game(fields, rm.ids[s]), nil)
}

// Disconnect performs close-time cleanup: cancel from all queues, then leave
// the room with the same side effects as an explicit leave. One atomic unit,
// so a disconnect racing a pairing or a join serializes cleanly.
func (c *Coordinator) Disconnect(s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.removeFromQueues(s)
	c.leaveLocked(s)
}

// RoomCount returns the number of live rooms.
func (c *Coordinator) RoomCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.rooms)
}

// QueuedCount returns the number of sessions waiting across all queues.
func (c *Coordinator) QueuedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, q := range c.queues {
		n += len(q)
	}
	return n
}

func (c *Coordinator) queued(s *Session) bool {
	for _, q := range c.queues {
		for _, waiting := range q {
			if waiting == s {
				return true
			}
		}
	}
	return false
}

func (c *Coordinator) removeFromQueues(s *Session) {
	for mode, q := range c.queues {
		for i, waiting := range q {
			if waiting == s {
				c.queues[mode] = append(q[:i], q[i+1:]...)
				break
			}
		}
		if len(c.queues[mode]) == 0 {
			delete(c.queues, mode)
		}
	}
}
