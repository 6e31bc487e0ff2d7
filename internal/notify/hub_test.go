package notify

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newTestServer(t *testing.T, hub *Hub, ownerID string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := hub.Upgrade(w, r, ownerID); err != nil {
			t.Errorf("Upgrade() failed: %v", err)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dialAndJoin(t *testing.T, srv *httptest.Server, hub *Hub, ownerID string, expectJoined int) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() failed: %v", err)
	}
	t.Cleanup(func() { ws.Close() })

	if err := ws.WriteJSON(map[string]string{"type": "join"}); err != nil {
		t.Fatalf("Failed to send join: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.RoomSize(ownerID) < expectJoined {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for join, room size %d", hub.RoomSize(ownerID))
		}
		time.Sleep(5 * time.Millisecond)
	}
	return ws
}

func readEnvelope(t *testing.T, ws *websocket.Conn) Envelope {
	t.Helper()
	if err := ws.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("SetReadDeadline() failed: %v", err)
	}
	var envelope Envelope
	if err := ws.ReadJSON(&envelope); err != nil {
		t.Fatalf("ReadJSON() failed: %v", err)
	}
	return envelope
}

func TestPublishReachesJoinedConnection(t *testing.T) {
	hub := NewHub()
	srv := newTestServer(t, hub, "user-1")
	ws := dialAndJoin(t, srv, hub, "user-1", 1)

	hub.Publish("user-1", EventProgress, ProgressPayload{VideoID: "vid-1", Progress: 40, Status: "processing"})

	envelope := readEnvelope(t, ws)
	if envelope.Event != EventProgress {
		t.Errorf("Expected event %s, got %s", EventProgress, envelope.Event)
	}
	data, ok := envelope.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("Expected object payload, got %T", envelope.Data)
	}
	if data["videoId"] != "vid-1" {
		t.Errorf("Expected videoId=vid-1, got %v", data["videoId"])
	}
	if data["progress"] != float64(40) {
		t.Errorf("Expected progress=40, got %v", data["progress"])
	}
}

func TestPublishBroadcastsToAllConnections(t *testing.T) {
	hub := NewHub()
	srv := newTestServer(t, hub, "user-1")
	first := dialAndJoin(t, srv, hub, "user-1", 1)
	second := dialAndJoin(t, srv, hub, "user-1", 2)

	hub.Publish("user-1", EventCompleted, CompletedPayload{VideoID: "vid-1", Status: "completed", Sensitivity: "safe"})

	for i, ws := range []*websocket.Conn{first, second} {
		envelope := readEnvelope(t, ws)
		if envelope.Event != EventCompleted {
			t.Errorf("Connection %d: expected event %s, got %s", i, EventCompleted, envelope.Event)
		}
	}
}

func TestPublishIsolatesOwners(t *testing.T) {
	hub := NewHub()
	srv := newTestServer(t, hub, "user-1")
	ws := dialAndJoin(t, srv, hub, "user-1", 1)

	// Event for a different owner must not reach user-1's connection.
	hub.Publish("user-2", EventUploaded, UploadedPayload{VideoID: "other"})
	hub.Publish("user-1", EventUploaded, UploadedPayload{VideoID: "mine"})

	envelope := readEnvelope(t, ws)
	data := envelope.Data.(map[string]interface{})
	if data["videoId"] != "mine" {
		t.Errorf("Expected only user-1's event, got %v", data["videoId"])
	}
}

func TestPublishToEmptyRoomIsNoop(t *testing.T) {
	hub := NewHub()

	// Must not panic or block.
	hub.Publish("nobody", EventUploaded, UploadedPayload{VideoID: "vid-1"})

	if size := hub.RoomSize("nobody"); size != 0 {
		t.Errorf("Expected empty room, got %d", size)
	}
}

func TestConnectionWithoutJoinReceivesNothing(t *testing.T) {
	hub := NewHub()
	srv := newTestServer(t, hub, "user-1")

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() failed: %v", err)
	}
	defer ws.Close()

	// Connected but never joined.
	time.Sleep(20 * time.Millisecond)
	if size := hub.RoomSize("user-1"); size != 0 {
		t.Errorf("Expected empty room before join, got %d", size)
	}
}

func TestDisconnectLeavesRoom(t *testing.T) {
	hub := NewHub()
	srv := newTestServer(t, hub, "user-1")
	ws := dialAndJoin(t, srv, hub, "user-1", 1)

	ws.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.RoomSize("user-1") != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("Expected room to empty after disconnect, size %d", hub.RoomSize("user-1"))
		}
		time.Sleep(5 * time.Millisecond)
	}
}
