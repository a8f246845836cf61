package gateway

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/quickmatch/relay/internal/config"
	"github.com/quickmatch/relay/internal/relay"
)

func startGateway(t *testing.T) *Gateway {
	t.Helper()

	cfg := config.ServerConfig{
		Host:         "127.0.0.1",
		Port:         0, // random port
		ReadLimit:    65536,
		WriteTimeout: 5 * time.Second,
		PongWait:     30 * time.Second,
	}

	logger := zaptest.NewLogger(t)
	ids := relay.NewIDSource()
	registry := relay.NewRegistry(ids, 64)
	coord := relay.NewCoordinator(ids, "coop", nil, logger)
	dispatcher := relay.NewDispatcher(coord, registry, logger)

	g := New(cfg, registry, dispatcher, coord, logger)
	go func() {
		if err := g.Start(); err != nil {
			t.Errorf("gateway start: %v", err)
		}
	}()
	t.Cleanup(g.Stop)

	deadline := time.After(2 * time.Second)
	for !g.IsRunning() || g.Addr() == "" {
		select {
		case <-deadline:
			t.Fatal("gateway did not start in time")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	return g
}

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func dial(t *testing.T, g *Gateway) *wsClient {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+g.Addr()+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &wsClient{t: t, conn: conn}
}

func (c *wsClient) send(frame string) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func (c *wsClient) recv() map[string]any {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := c.conn.ReadMessage()
	require.NoError(c.t, err, "expected a frame")
	var m map[string]any
	require.NoError(c.t, json.Unmarshal(data, &m))
	return m
}

// recvType reads frames until one of the given type arrives; useful when
// interleaved broadcasts are not order-deterministic across clients.
func (c *wsClient) recvType(eventType string) map[string]any {
	c.t.Helper()
	for i := 0; i < 10; i++ {
		m := c.recv()
		if m["type"] == eventType {
			return m
		}
	}
	c.t.Fatalf("no %q frame received", eventType)
	return nil
}

func (c *wsClient) welcome() string {
	c.t.Helper()
	m := c.recv()
	require.Equal(c.t, "welcome", m["type"])
	return m["id"].(string)
}

func TestWelcomeOnConnect(t *testing.T) {
	g := startGateway(t)

	a := dial(t, g)
	id1 := a.welcome()
	b := dial(t, g)
	id2 := b.welcome()

	assert.NotEmpty(t, id1)
	assert.NotEqual(t, id1, id2)
}

func TestMatchmakingOverWire(t *testing.T) {
	g := startGateway(t)

	a, b := dial(t, g), dial(t, g)
	a.welcome()
	b.welcome()

	a.send(`{"type":"find_match","mode":"coop"}`)
	b.send(`{"type":"find_match","mode":"coop"}`)

	fa := a.recv()
	fb := b.recv()
	assert.Equal(t, "match_found", fa["type"])
	assert.Equal(t, fa["code"], fb["code"])
	assert.Len(t, fa["code"].(string), 4)
}

func TestExplicitJoinAfterMatchIsIdempotent(t *testing.T) {
	g := startGateway(t)

	a, b := dial(t, g), dial(t, g)
	a.welcome()
	b.welcome()
	a.send(`{"type":"find_match","mode":"coop"}`)
	b.send(`{"type":"find_match","mode":"coop"}`)
	code := a.recv()["code"].(string)
	b.recv()

	// A re-joining its own room must not produce a duplicate membership or
	// any player_joined at B.
	a.send(`{"type":"join_room","code":"` + code + `"}`)
	a.send(`{"type":"game","probe":true}`)

	ev := b.recvType("game")
	assert.Equal(t, true, ev["probe"])
	ev = a.recvType("game")
	assert.Equal(t, true, ev["probe"], "first frame after the no-op join is the relayed game event")
}

func TestJoinReadyStartScenario(t *testing.T) {
	g := startGateway(t)

	a, b := dial(t, g), dial(t, g)
	a.welcome()
	b.welcome()
	a.send(`{"type":"find_match","mode":"coop"}`)
	b.send(`{"type":"find_match","mode":"coop"}`)
	code := a.recv()["code"].(string)
	b.recv()

	c := dial(t, g)
	c.welcome()
	c.send(`{"type":"join_room","code":"` + code + `"}`)

	joined := c.recv()
	require.Equal(t, "room_joined", joined["type"])
	state := c.recv()
	require.Equal(t, "room_state", state["type"])
	assert.Len(t, state["players"], 3)

	a.recvType("player_joined")
	b.recvType("player_joined")

	a.send(`{"type":"ready"}`)
	b.send(`{"type":"ready"}`)
	c.send(`{"type":"ready"}`)

	for _, cl := range []*wsClient{a, b, c} {
		ev := cl.recvType("start_game")
		assert.Equal(t, "coop", ev["mode"])
		_, isNumber := ev["seed"].(float64)
		assert.True(t, isNumber, "seed must be numeric")
	}
}

func TestStateRelayOverWire(t *testing.T) {
	g := startGateway(t)

	a, b := dial(t, g), dial(t, g)
	a.welcome()
	b.welcome()
	a.send(`{"type":"find_match"}`)
	b.send(`{"type":"find_match"}`)
	a.recv()
	b.recv()

	a.send(`{"type":"state","x":7,"y":8}`)
	ev := b.recvType("state")
	assert.Equal(t, 7.0, ev["x"])
	assert.Equal(t, 8.0, ev["y"])
	assert.NotEmpty(t, ev["id"])
}

func TestDisconnectBroadcastsPlayerLeft(t *testing.T) {
	g := startGateway(t)

	a, b := dial(t, g), dial(t, g)
	a.welcome()
	b.welcome()
	a.send(`{"type":"find_match"}`)
	b.send(`{"type":"find_match"}`)
	a.recv()
	b.recv()

	require.NoError(t, a.conn.Close())

	ev := b.recvType("player_left")
	assert.NotEmpty(t, ev["id"])
}

func TestMalformedFramesIgnoredOverWire(t *testing.T) {
	g := startGateway(t)

	a := dial(t, g)
	a.welcome()
	a.send(`this is not json`)
	a.send(`{"type":"warp_speed"}`)

	// The connection survives and still works.
	b := dial(t, g)
	b.welcome()
	a.send(`{"type":"find_match"}`)
	b.send(`{"type":"find_match"}`)
	assert.Equal(t, "match_found", a.recv()["type"])
}

func TestHealthEndpoint(t *testing.T) {
	g := startGateway(t)

	a := dial(t, g)
	a.welcome()

	resp, err := http.Get("http://" + g.Addr() + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, 1.0, body["sessions"])
}
