package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeFrame(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func TestDecodeFindMatch(t *testing.T) {
	in, err := Decode([]byte(`{"type":"find_match","mode":"coop"}`))
	require.NoError(t, err)
	assert.Equal(t, IntentFindMatch, in.Type)
	assert.Equal(t, "coop", in.Mode)
}

func TestDecodeState(t *testing.T) {
	in, err := Decode([]byte(`{"type":"state","x":12.5,"y":-3}`))
	require.NoError(t, err)
	assert.Equal(t, IntentState, in.Type)
	assert.Equal(t, 12.5, in.X)
	assert.Equal(t, -3.0, in.Y)
}

func TestDecodeKeepsExtraFields(t *testing.T) {
	in, err := Decode([]byte(`{"type":"game","event":"pickup","item":7}`))
	require.NoError(t, err)
	assert.Equal(t, "pickup", in.Fields["event"])
	assert.Equal(t, 7.0, in.Fields["item"])
}

func TestDecodeMalformed(t *testing.T) {
	for _, data := range []string{"", "not json", "[1,2,3]", `"just a string"`, "{"} {
		_, err := Decode([]byte(data))
		assert.Error(t, err, "input %q should fail to decode", data)
	}
}

func TestDecodeMissingType(t *testing.T) {
	in, err := Decode([]byte(`{"mode":"coop"}`))
	require.NoError(t, err)
	assert.Empty(t, in.Type)

	in, err = Decode([]byte(`{"type":42}`))
	require.NoError(t, err)
	assert.Empty(t, in.Type)
}

func TestWelcome(t *testing.T) {
	m := decodeFrame(t, Welcome("17"))
	assert.Equal(t, "welcome", m["type"])
	assert.Equal(t, "17", m["id"])
}

func TestMatchFound(t *testing.T) {
	m := decodeFrame(t, MatchFound("AB23"))
	assert.Equal(t, "match_found", m["type"])
	assert.Equal(t, "AB23", m["code"])
}

func TestRoomJoinedAndState(t *testing.T) {
	m := decodeFrame(t, RoomJoined("AB23", "4"))
	assert.Equal(t, "room_joined", m["type"])
	assert.Equal(t, "AB23", m["code"])
	assert.Equal(t, "4", m["id"])

	m = decodeFrame(t, RoomState([]string{"2", "3", "4"}))
	assert.Equal(t, "room_state", m["type"])
	assert.Equal(t, []any{"2", "3", "4"}, m["players"])
}

func TestRoomStateEmpty(t *testing.T) {
	m := decodeFrame(t, RoomState(nil))
	players, ok := m["players"].([]any)
	require.True(t, ok, "players must encode as an array, not null")
	assert.Empty(t, players)
}

func TestStateExcludesExtraFields(t *testing.T) {
	m := decodeFrame(t, State("9", 1, 2))
	assert.Equal(t, map[string]any{"type": "state", "id": "9", "x": 1.0, "y": 2.0}, m)
}

func TestStartGameDefaults(t *testing.T) {
	m := decodeFrame(t, StartGame(nil, "coop", 1700000000000))
	assert.Equal(t, "start_game", m["type"])
	assert.Equal(t, "coop", m["mode"])
	assert.Equal(t, 1.7e12, m["seed"])
}

func TestStartGameKeepsCallerFields(t *testing.T) {
	fields := map[string]any{"type": "start_game", "mode": "versus", "seed": 42.0, "map": "ruins"}
	m := decodeFrame(t, StartGame(fields, "coop", 1700000000000))
	assert.Equal(t, "start_game", m["type"])
	assert.Equal(t, "versus", m["mode"], "caller-supplied mode must win over default")
	assert.Equal(t, 42.0, m["seed"], "caller-supplied seed must win over default")
	assert.Equal(t, "ruins", m["map"], "extra fields pass through verbatim")
}

func TestGameAttachesSenderID(t *testing.T) {
	fields := map[string]any{"type": "game", "event": "shoot", "dir": 90.0}
	m := decodeFrame(t, Game(fields, "5"))
	assert.Equal(t, "game", m["type"])
	assert.Equal(t, "5", m["id"])
	assert.Equal(t, "shoot", m["event"])
	assert.Equal(t, 90.0, m["dir"])
}

func TestGameOverridesClientID(t *testing.T) {
	// A client cannot spoof another member's id; the relay always stamps
	// the sender's own per-room id.
	fields := map[string]any{"type": "game", "id": "9999"}
	m := decodeFrame(t, Game(fields, "5"))
	assert.Equal(t, "5", m["id"])
}
