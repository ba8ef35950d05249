package gateway_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/gorilla/websocket"

	"pokertable/events"
	"pokertable/gateway"
	"pokertable/holdem"
	"pokertable/registry"
)

func discardLogger() *log.Logger {
	return log.New(io.Discard)
}

// fakeSink is a no-op EventSink so the registry's actors don't need a
// real database for this transport-level test.
type fakeSink struct{}

func (fakeSink) Append(context.Context, string, []events.Event) error { return nil }
func (fakeSink) Snapshot(context.Context, string, uint64, holdem.Snapshot) error {
	return nil
}

func newTestServer(t *testing.T) (*httptest.Server, *registry.Registry) {
	t.Helper()
	reg := registry.New(quartz.NewReal(), fakeSink{}, discardLogger())
	gw := gateway.New(reg, discardLogger())

	mux := http.NewServeMux()
	mux.HandleFunc("/tables", gw.CreateTableHTTP)
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		userID, _ := strconv.ParseUint(r.URL.Query().Get("userId"), 10, 64)
		gw.HandleWebSocket(userID, w, r)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, reg
}

func TestCreateTableHTTPAndJoinOverWebSocket(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/tables", "application/json", strings.NewReader(`{
		"ownerUserId": 1, "maxPlayers": 6, "smallBlind": 10, "bigBlind": 20
	}`))
	if err != nil {
		t.Fatalf("POST /tables: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var created struct{ TableID string `json:"tableId"` }
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.TableID == "" {
		t.Fatalf("expected a non-empty tableId")
	}

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?userId=1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	join := map[string]any{
		"kind":    "joinTable",
		"tableId": created.TableID,
		"payload": map[string]any{"chair": 0, "buyIn": 1000},
	}
	if err := conn.WriteJSON(join); err != nil {
		t.Fatalf("write joinTable: %v", err)
	}

	subscribe := map[string]any{"kind": "subscribe", "tableId": created.TableID}
	if err := conn.WriteJSON(subscribe); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var sawPlayerJoined bool
	for i := 0; i < 5; i++ {
		var env struct {
			Type  string `json:"type"`
			Event struct {
				Kind string `json:"kind"`
			} `json:"event"`
			Error string `json:"error"`
		}
		if err := conn.ReadJSON(&env); err != nil {
			break
		}
		if env.Type == "error" {
			t.Fatalf("unexpected gateway error: %s", env.Error)
		}
		if env.Event.Kind == "player_joined" {
			sawPlayerJoined = true
			break
		}
	}
	if !sawPlayerJoined {
		t.Fatalf("expected a player_joined event to be relayed over the websocket")
	}
}
