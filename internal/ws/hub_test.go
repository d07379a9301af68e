package ws

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
)

const (
	joinR1   = `{"type":"join-room","roomId":"r1","userId":"u1"}`
	joinR1U2 = `{"type":"join-room","roomId":"r1","userId":"u2"}`
	addNode  = `{"type":"diagram:action","roomId":"r1","action":{"id":"a1","userId":"u1","ts":1,"type":"ADD_NODE","payload":{"node":{"id":"n1","type":"api","label":"API","x":10,"y":10,"width":140,"height":80}}}}`
	undoU1   = `{"type":"diagram:undo","roomId":"r1","userId":"u1"}`
	redoU1   = `{"type":"diagram:redo","roomId":"r1","userId":"u1"}`
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHub(t *testing.T, config Config) *Hub {
	t.Helper()
	hub := NewHub(config, testLogger())
	go hub.Run()
	t.Cleanup(hub.Stop)
	return hub
}

// Registers a client that has no socket; outbound frames stay in its send channel.
func connect(hub *Hub) *Client {
	c := newClient(hub, nil)
	hub.post(hub.register, c)
	return c
}

func send(hub *Hub, c *Client, msg string) {
	hub.deliver(&Message{Client: c, Data: []byte(msg)})
}

func expectMessage(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case msg, ok := <-c.send:
		if !ok {
			t.Fatal("Send channel closed")
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for message")
	}
	return nil
}

func expectNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg := <-c.send:
		t.Fatalf("Expected no message, got %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func TestHubCreation(t *testing.T) {
	hub := NewHub(Config{}, nil)
	if hub == nil {
		t.Fatal("Hub should not be nil")
	}
	if hub.clients == nil {
		t.Error("Hub clients map should be initialized")
	}
	if hub.config.PongWait != DefaultConfig().PongWait {
		t.Errorf("Expected default pong wait, got %v", hub.config.PongWait)
	}
	if hub.GetRoomCount() != 0 || hub.GetClientCount() != 0 {
		t.Error("New hub should be empty")
	}
	if len(hub.GetActiveRooms()) != 0 {
		t.Error("New hub should have no active rooms")
	}
}

func TestJoinSendsRoomState(t *testing.T) {
	hub := newTestHub(t, DefaultConfig())
	c := connect(hub)

	send(hub, c, joinR1)

	msg := expectMessage(t, c)
	if got := gjson.GetBytes(msg, "type").String(); got != "room:state" {
		t.Errorf("Expected room:state, got %s", got)
	}
	for _, key := range []string{"nodes", "edges", "strokes", "texts"} {
		if !gjson.GetBytes(msg, key).IsArray() {
			t.Errorf("Expected %s to be an array in %s", key, msg)
		}
	}
}

func TestActionRelayedToOthers(t *testing.T) {
	hub := newTestHub(t, DefaultConfig())
	c1, c2 := connect(hub), connect(hub)
	send(hub, c1, joinR1)
	send(hub, c2, joinR1U2)
	expectMessage(t, c1)
	expectMessage(t, c2)

	send(hub, c1, addNode)

	msg := expectMessage(t, c2)
	if got := gjson.GetBytes(msg, "type").String(); got != "diagram:action" {
		t.Errorf("Expected diagram:action, got %s", got)
	}
	if got := gjson.GetBytes(msg, "action.payload.node.id").String(); got != "n1" {
		t.Errorf("Expected node n1, got %s", got)
	}
	expectNothing(t, c1)
}

func TestUndoRedoReachRequester(t *testing.T) {
	hub := newTestHub(t, DefaultConfig())
	c1, c2 := connect(hub), connect(hub)
	send(hub, c1, joinR1)
	send(hub, c2, joinR1U2)
	expectMessage(t, c1)
	expectMessage(t, c2)
	send(hub, c1, addNode)
	expectMessage(t, c2)

	send(hub, c1, undoU1)
	for _, c := range []*Client{c1, c2} {
		msg := expectMessage(t, c)
		if got := gjson.GetBytes(msg, "action.type").String(); got != "DELETE_NODE" {
			t.Errorf("Expected DELETE_NODE, got %s", got)
		}
	}

	send(hub, c1, redoU1)
	for _, c := range []*Client{c1, c2} {
		msg := expectMessage(t, c)
		if got := gjson.GetBytes(msg, "action.id").String(); got != "a1" {
			t.Errorf("Expected redo of a1, got %s", got)
		}
	}
}

func TestDropsInvalidMessages(t *testing.T) {
	hub := newTestHub(t, DefaultConfig())
	c1, c2 := connect(hub), connect(hub)

	// Before join
	send(hub, c1, addNode)
	if hub.GetRoomCount() != 0 {
		t.Error("An action before join must not create a room")
	}

	send(hub, c1, joinR1)
	send(hub, c2, joinR1U2)
	expectMessage(t, c1)
	expectMessage(t, c2)

	for _, msg := range []string{
		`not json`,
		`{"roomId":"r1"}`,
		`{"type":"cursor:move","roomId":"r1"}`,
		`{"type":"room:state","roomId":"r1"}`,
		`{"type":"join-room","userId":"u1"}`,
		`{"type":"diagram:action","roomId":"r1","action":{"id":"x","type":"ROTATE_NODE","payload":{}}}`,
		`{"type":"diagram:action","roomId":"r1","action":{"id":"x","type":"ADD_NODE","payload":{"node":{}}}}`,
		`{"type":"diagram:action","roomId":"r1"}`,
		`{"type":"diagram:action","roomId":"other","action":{"id":"x","type":"DELETE_TEXT","payload":{"text":{"id":"t1"}}}}`,
	} {
		send(hub, c1, msg)
	}
	expectNothing(t, c2)

	send(hub, c1, addNode)
	msg := expectMessage(t, c2)
	if got := gjson.GetBytes(msg, "action.id").String(); got != "a1" {
		t.Errorf("Valid action after garbage should still be relayed, got %s", got)
	}
}

func TestRoomExpiresAfterGrace(t *testing.T) {
	config := DefaultConfig()
	config.GracePeriod = 50 * time.Millisecond
	hub := newTestHub(t, config)

	c := connect(hub)
	send(hub, c, joinR1)
	expectMessage(t, c)
	if hub.GetRoomCount() != 1 {
		t.Fatalf("Expected 1 room, got %d", hub.GetRoomCount())
	}

	hub.post(hub.unregister, c)

	waitFor(t, "room expiry", func() bool { return hub.GetRoomCount() == 0 })
	if hub.GetClientCount() != 0 {
		t.Errorf("Expected 0 clients, got %d", hub.GetClientCount())
	}
}

func TestRejoinWithinGraceKeepsState(t *testing.T) {
	config := DefaultConfig()
	config.GracePeriod = time.Minute
	hub := newTestHub(t, config)

	c1 := connect(hub)
	send(hub, c1, joinR1)
	expectMessage(t, c1)
	send(hub, c1, addNode)
	hub.post(hub.unregister, c1)

	c2 := connect(hub)
	send(hub, c2, joinR1)
	msg := expectMessage(t, c2)
	if got := gjson.GetBytes(msg, "nodes.#").Int(); got != 1 {
		t.Errorf("Expected 1 node in snapshot, got %d", got)
	}
	if !hub.IsLive("r1") {
		t.Error("Room r1 should be live")
	}
}

func TestActiveRooms(t *testing.T) {
	hub := newTestHub(t, DefaultConfig())
	c1, c2, c3 := connect(hub), connect(hub), connect(hub)
	send(hub, c1, joinR1)
	send(hub, c2, joinR1U2)
	send(hub, c3, `{"type":"join-room","roomId":"r2","userId":"u3"}`)
	expectMessage(t, c3)

	active := hub.GetActiveRooms()
	if active["r1"] != 2 || active["r2"] != 1 {
		t.Errorf("Unexpected active rooms: %v", active)
	}
	if hub.GetClientCount() != 3 {
		t.Errorf("Expected 3 clients, got %d", hub.GetClientCount())
	}
}

func TestFullBufferDropsMessage(t *testing.T) {
	config := DefaultConfig()
	config.SendBuffer = 1
	hub := newTestHub(t, config)

	c1, c2 := connect(hub), connect(hub)
	send(hub, c1, joinR1)
	send(hub, c2, joinR1U2)
	expectMessage(t, c1)

	// c2 never drains its snapshot, so the relay does not fit.
	send(hub, c1, addNode)
	send(hub, c1, undoU1)
	expectMessage(t, c1)

	if len(c2.send) != 1 {
		t.Errorf("Expected only the snapshot queued, got %d", len(c2.send))
	}
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"no restriction", nil, "http://evil.example", true},
		{"missing origin", []string{"http://localhost:3000"}, "", true},
		{"allowed", []string{"http://localhost:3000"}, "http://localhost:3000", true},
		{"wildcard", []string{"*"}, "http://anything.example", true},
		{"rejected", []string{"http://localhost:3000"}, "http://evil.example", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := Config{AllowedOrigins: tt.allowed}
			req := httptest.NewRequest("GET", "/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if got := config.checkOrigin(req); got != tt.want {
				t.Errorf("checkOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if kind != websocket.TextMessage {
		t.Errorf("Expected text frame, got %d", kind)
	}
	return msg
}

func TestServeWsEndToEnd(t *testing.T) {
	hub := newTestHub(t, DefaultConfig())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r)
	}))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	alice, bob := dial(t, url), dial(t, url)

	alice.WriteMessage(websocket.TextMessage, []byte(joinR1))
	if got := gjson.GetBytes(readFrame(t, alice), "type").String(); got != "room:state" {
		t.Fatalf("Expected room:state, got %s", got)
	}
	bob.WriteMessage(websocket.TextMessage, []byte(joinR1U2))
	readFrame(t, bob)

	alice.WriteMessage(websocket.TextMessage, []byte(addNode))
	msg := readFrame(t, bob)
	if got := gjson.GetBytes(msg, "action.payload.node.label").String(); got != "API" {
		t.Errorf("Expected relayed node label API, got %s", got)
	}

	alice.Close()
	waitFor(t, "alice to unregister", func() bool { return hub.GetActiveRooms()["r1"] == 1 })
}
