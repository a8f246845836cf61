package postgres

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Recorder adapts the HistoryRepository to the relay's non-blocking Recorder
// interface. Notifications are queued onto a buffered channel and written by
// a background worker; when the buffer is full the notification is dropped,
// so a slow or down database never stalls the relay's state lock.
type Recorder struct {
	repo   *HistoryRepository
	logger *zap.Logger

	events chan historyEvent
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

type historyEvent struct {
	roomCode string
	mode     string
	seed     int64
	isStart  bool
}

// NewRecorder creates a Recorder and starts its writer goroutine.
//
// Precondition: repo and logger must be non-nil.
// Postcondition: The returned Recorder accepts notifications until Close.
func NewRecorder(repo *HistoryRepository, logger *zap.Logger) *Recorder {
	r := &Recorder{
		repo:   repo,
		logger: logger,
		events: make(chan historyEvent, 256),
	}
	r.wg.Add(1)
	go r.run()
	return r
}

// MatchCreated queues a pairing for recording. Never blocks.
func (r *Recorder) MatchCreated(code, mode string) {
	r.enqueue(historyEvent{roomCode: code, mode: mode})
}

// GameStarted queues a game start for recording. Never blocks.
func (r *Recorder) GameStarted(code string, seed int64) {
	r.enqueue(historyEvent{roomCode: code, seed: seed, isStart: true})
}

func (r *Recorder) enqueue(ev historyEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.events <- ev:
	default:
		r.logger.Warn("match history buffer full, dropping event",
			zap.String("room_code", ev.roomCode),
		)
	}
}

// Close stops accepting notifications and waits for queued events to flush.
//
// Postcondition: All accepted events have been attempted against the database.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.events)
	r.mu.Unlock()

	r.wg.Wait()
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for ev := range r.events {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		var err error
		if ev.isStart {
			err = r.repo.RecordGameStart(ctx, ev.roomCode, ev.seed)
		} else {
			err = r.repo.RecordMatch(ctx, ev.roomCode, ev.mode)
		}
		cancel()
		if err != nil {
			r.logger.Warn("recording match history failed",
				zap.String("room_code", ev.roomCode),
				zap.Error(err),
			)
		}
	}
}
