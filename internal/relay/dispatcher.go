package relay

import (
	"go.uber.org/zap"

	"github.com/quickmatch/relay/internal/protocol"
)

// Dispatcher is the single routing entry point for inbound frames. Malformed
// frames and unknown intents are dropped without a reply; every recognized
// intent maps to exactly one Coordinator operation.
type Dispatcher struct {
	coord    *Coordinator
	registry *Registry
	logger   *zap.Logger
}

// NewDispatcher creates a Dispatcher routing to the given coordinator.
//
// Precondition: coord, registry, and logger must be non-nil.
func NewDispatcher(coord *Coordinator, registry *Registry, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		coord:    coord,
		registry: registry,
		logger:   logger,
	}
}

// Dispatch routes one inbound frame from the given session.
func (d *Dispatcher) Dispatch(s *Session, data []byte) {
	in, err := protocol.Decode(data)
	if err != nil {
		d.logger.Debug("dropping malformed frame",
			zap.String("conn_id", s.ID()),
			zap.Error(err),
		)
		return
	}

	switch in.Type {
	case protocol.IntentFindMatch:
		d.coord.Enqueue(s, in.Mode)
	case protocol.IntentCancelMatch:
		d.coord.CancelMatch(s)
	case protocol.IntentJoinRoom:
		d.coord.JoinRoom(s, in.Code)
	case protocol.IntentLeaveRoom:
		d.coord.LeaveRoom(s)
	case protocol.IntentReady:
		d.coord.MarkReady(s)
	case protocol.IntentStartGame:
		d.coord.StartGame(s, in.Fields)
	case protocol.IntentState:
		d.coord.RelayState(s, in.X, in.Y)
	case protocol.IntentGame:
		d.coord.RelayGame(s, in.Fields)
	default:
		d.logger.Debug("ignoring unknown intent",
			zap.String("conn_id", s.ID()),
			zap.String("intent", in.Type),
		)
	}
}

// Disconnect runs close-time cleanup for a session: queue cancellation, room
// departure with its broadcasts, and registry deregistration.
func (d *Dispatcher) Disconnect(s *Session) {
	d.coord.Disconnect(s)
	d.registry.Deregister(s)
}
