package relay

// Recorder receives match-history notifications. Implementations must not
// block: the Coordinator calls these while holding its state lock.
type Recorder interface {
	// MatchCreated is called when matchmaking pairs two connections into a
	// new room.
	MatchCreated(code, mode string)
	// GameStarted is called when a start_game event is broadcast to a room,
	// whether by readiness quorum or an explicit start request.
	GameStarted(code string, seed int64)
}

// NopRecorder discards all notifications. Used when match history is disabled.
type NopRecorder struct{}

// MatchCreated does nothing.
func (NopRecorder) MatchCreated(string, string) {}

// GameStarted does nothing.
func (NopRecorder) GameStarted(string, int64) {}
