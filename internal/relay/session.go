// Package relay implements the connection/session core of the relay server:
// the connection registry, per-mode matchmaking queues, the room directory,
// and the message relay. All shared queue and room state is owned by a single
// mutex-guarded Coordinator so that pairing, join, leave, and broadcast each
// execute as an atomic unit across concurrently connected clients.
package relay

import (
	"fmt"
	"sync"
)

// Session is the opaque handle for one accepted connection. Outbound frames
// are buffered in a channel drained by the transport's write loop; pushes to
// a full or closed buffer fail and the caller drops the frame, so a slow or
// gone recipient never blocks a broadcast.
type Session struct {
	id string

	mu     sync.Mutex
	closed bool
	frames chan []byte
}

func newSession(id string, bufferSize int) *Session {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Session{
		id:     id,
		frames: make(chan []byte, bufferSize),
	}
}

// ID returns the session's registry-issued connection id.
func (s *Session) ID() string {
	return s.id
}

// Push enqueues an outbound frame.
//
// Postcondition: The frame is enqueued, or an error is returned if the
// session is closed, the buffer is full, or the frame is empty.
func (s *Session) Push(frame []byte) error {
	if len(frame) == 0 {
		return fmt.Errorf("session %s: empty frame", s.id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("session %s is closed", s.id)
	}
	select {
	case s.frames <- frame:
		return nil
	default:
		return fmt.Errorf("session %s frame buffer full", s.id)
	}
}

// Frames returns the read-only outbound frame channel. The transport's write
// loop drains it until the session is closed.
func (s *Session) Frames() <-chan []byte {
	return s.frames
}

// Close marks the session closed and closes the frame channel. Idempotent.
//
// Postcondition: Further Push calls return an error.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.frames)
	}
}

// IsClosed reports whether the session has been closed.
func (s *Session) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
