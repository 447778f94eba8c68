package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func startHub(t *testing.T, origins []string) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(origins)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(func() {
		cancel()
		server.Close()
	})
	return hub, server
}

func dial(t *testing.T, server *httptest.Server, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	return websocket.DefaultDialer.Dial(url, header)
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ClientCount() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Expected %d clients, got %d", want, hub.ClientCount())
}

func TestHubBroadcastsEvents(t *testing.T) {
	hub, server := startHub(t, nil)

	conn, _, err := dial(t, server, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitForClients(t, hub, 1)

	hub.Publish(Event{Type: PredictionCreated, PredictionID: 7, DetectType: "Points", ResultCount: 3, Success: true})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, message, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var got Event
	if err := json.Unmarshal(message, &got); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if got.Type != PredictionCreated || got.PredictionID != 7 || got.ResultCount != 3 {
		t.Errorf("Unexpected event %+v", got)
	}
	if got.Timestamp.IsZero() {
		t.Error("Expected timestamp to be set")
	}
}

func TestHubUnregistersClosedViewers(t *testing.T) {
	hub, server := startHub(t, nil)

	conn, _, err := dial(t, server, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)
}

func TestHubRejectsUnknownOrigin(t *testing.T) {
	_, server := startHub(t, []string{"http://localhost:3000"})

	header := http.Header{}
	header.Set("Origin", "http://evil.example")
	_, resp, err := dial(t, server, header)
	if err == nil {
		t.Fatal("Expected dial to fail for a foreign origin")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403 response, got %v", resp)
	}

	header.Set("Origin", "http://localhost:3000")
	conn, _, err := dial(t, server, header)
	if err != nil {
		t.Fatalf("Expected allowed origin to connect: %v", err)
	}
	conn.Close()
}

func TestPublishDoesNotBlockWithoutRun(t *testing.T) {
	hub := NewHub(nil)
	done := make(chan struct{})
	go func() {
		for i := 0; i < queueSize*2; i++ {
			hub.Publish(Event{Type: PredictionDeleted, PredictionID: int64(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full queue")
	}
}

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"no list", nil, "http://a", true},
		{"wildcard", []string{"*"}, "http://a", true},
		{"listed", []string{"http://a"}, "http://a", true},
		{"unlisted", []string{"http://a"}, "http://b", false},
		{"no origin header", []string{"http://a"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := originChecker(tt.allowed)(r); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}
