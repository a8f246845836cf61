// Package protocol defines the JSON wire format spoken between clients and
// the relay. Every frame is a UTF-8 JSON object with a string "type" field;
// the relay never interprets fields beyond the ones named here, and the
// pass-through events (game, start_game) carry the client's object verbatim.
package protocol

import "encoding/json"

// Client intent types.
const (
	IntentFindMatch   = "find_match"
	IntentCancelMatch = "cancel_match"
	IntentJoinRoom    = "join_room"
	IntentLeaveRoom   = "leave_room"
	IntentReady       = "ready"
	IntentStartGame   = "start_game"
	IntentState       = "state"
	IntentGame        = "game"
)

// Server event types.
const (
	EventWelcome      = "welcome"
	EventMatchFound   = "match_found"
	EventRoomJoined   = "room_joined"
	EventRoomState    = "room_state"
	EventPlayerJoined = "player_joined"
	EventPlayerLeft   = "player_left"
	EventStartGame    = "start_game"
	EventState        = "state"
	EventGame         = "game"
)

// Inbound is a decoded client frame. Type, Mode, Code, X and Y are extracted
// for the fixed-shape intents; Fields holds the full decoded object so the
// pass-through intents can be rebroadcast without loss.
type Inbound struct {
	Type   string
	Mode   string
	Code   string
	X      float64
	Y      float64
	Fields map[string]any
}

// Decode parses a client frame.
//
// Postcondition: Returns a non-nil error only when data is not a JSON object;
// a frame with a missing or non-string "type" decodes with an empty Type and
// is dropped by the dispatcher as an unknown intent.
func Decode(data []byte) (Inbound, error) {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return Inbound{}, err
	}

	in := Inbound{Fields: fields}
	in.Type, _ = fields["type"].(string)
	in.Mode, _ = fields["mode"].(string)
	in.Code, _ = fields["code"].(string)
	in.X, _ = fields["x"].(float64)
	in.Y, _ = fields["y"].(float64)
	return in, nil
}

type welcomeEvent struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type matchFoundEvent struct {
	Type string `json:"type"`
	Code string `json:"code"`
}

type roomJoinedEvent struct {
	Type string `json:"type"`
	Code string `json:"code"`
	ID   string `json:"id"`
}

type roomStateEvent struct {
	Type    string   `json:"type"`
	Players []string `json:"players"`
}

type playerEvent struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type stateEvent struct {
	Type string  `json:"type"`
	ID   string  `json:"id"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

// Welcome builds the frame sent to every connection on accept.
func Welcome(id string) []byte {
	return marshal(welcomeEvent{Type: EventWelcome, ID: id})
}

// MatchFound builds the frame sent to both members of a new pairing.
func MatchFound(code string) []byte {
	return marshal(matchFoundEvent{Type: EventMatchFound, Code: code})
}

// RoomJoined builds the acknowledgment sent to a successful joiner.
func RoomJoined(code, id string) []byte {
	return marshal(roomJoinedEvent{Type: EventRoomJoined, Code: code, ID: id})
}

// RoomState builds the membership snapshot sent to a joiner. players is the
// per-room ids of all current members in join order, including the joiner.
func RoomState(players []string) []byte {
	if players == nil {
		players = []string{}
	}
	return marshal(roomStateEvent{Type: EventRoomState, Players: players})
}

// PlayerJoined builds the event broadcast to existing members on a join.
func PlayerJoined(id string) []byte {
	return marshal(playerEvent{Type: EventPlayerJoined, ID: id})
}

// PlayerLeft builds the event broadcast when a member leaves or disconnects.
func PlayerLeft(id string) []byte {
	return marshal(playerEvent{Type: EventPlayerLeft, ID: id})
}

// State builds a positional update tagged with the sender's per-room id.
func State(id string, x, y float64) []byte {
	return marshal(stateEvent{Type: EventState, ID: id, X: x, Y: y})
}

// StartGame builds a game-start event from the caller-supplied fields,
// defaulting an absent seed and mode. fields may be nil for the
// readiness-quorum trigger, which carries only mode and seed.
func StartGame(fields map[string]any, mode string, seed int64) []byte {
	out := make(map[string]any, len(fields)+3)
	for k, v := range fields {
		out[k] = v
	}
	out["type"] = EventStartGame
	if v, ok := out["seed"]; !ok || v == nil {
		out["seed"] = seed
	}
	if v, ok := out["mode"].(string); !ok || v == "" {
		out["mode"] = mode
	}
	return marshal(out)
}

// Game builds a generic relay event from the caller-supplied fields with the
// sender's per-room id attached.
func Game(fields map[string]any, id string) []byte {
	out := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		out[k] = v
	}
	out["type"] = EventGame
	out["id"] = id
	return marshal(out)
}

// marshal encodes an event frame. Inputs are either fixed structs or maps
// produced by json.Unmarshal, so encoding cannot fail; a nil frame is
// returned and skipped by the send path if it somehow does.
func marshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
