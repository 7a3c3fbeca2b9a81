package server

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"nhooyr.io/websocket"

	"github.com/Sprinter100/dobble/internal/game"
	"github.com/Sprinter100/dobble/internal/game/dobble"
	"github.com/Sprinter100/dobble/internal/identity"
	"github.com/Sprinter100/dobble/internal/session"
	"github.com/Sprinter100/dobble/internal/storage"
)

// --- Test environment ---

type testEnv struct {
	ts    *httptest.Server
	mgr   *session.Manager
	store *storage.Store
}

func setupTestEnv(t *testing.T, rules dobble.Rules) *testEnv {
	t.Helper()
	store, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	match, err := dobble.New(game.Letters, rules, dobble.WithRand(rand.New(rand.NewPCG(7, 11))))
	if err != nil {
		t.Fatalf("new match: %v", err)
	}
	mgr := session.NewManager(match, store, 0)
	t.Cleanup(mgr.Close)

	ident := identity.NewService(store, identity.Options{Secret: "test-secret", Cost: bcrypt.MinCost})
	webFS := fstest.MapFS{
		"index.html": &fstest.MapFile{Data: []byte("<html><body>test</body></html>")},
	}
	srv := New(game.DefaultRegistry(), mgr, ident, store, webFS)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, mgr: mgr, store: store}
}

// --- Context helpers ---

func timeoutCtx(t *testing.T) (context.Context, context.CancelFunc) {
	t.Helper()
	return context.WithTimeout(context.Background(), 5*time.Second)
}

// --- WebSocket helpers ---

func wsURL(ts *httptest.Server) string {
	return strings.Replace(ts.URL, "http://", "ws://", 1) + "/ws"
}

// wsConnect dials as a fresh device and returns the connection and its
// player id. The caller is responsible for closing the connection.
func wsConnect(t *testing.T, ts *httptest.Server) (*websocket.Conn, string) {
	t.Helper()
	device := uuid.NewString()
	return wsConnectWithCookie(t, ts, &http.Cookie{Name: identity.DeviceCookie, Value: device}), device
}

func wsConnectWithCookie(t *testing.T, ts *httptest.Server, cookie *http.Cookie) *websocket.Conn {
	t.Helper()
	ctx, cancel := timeoutCtx(t)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL(ts), &websocket.DialOptions{
		HTTPHeader: http.Header{"Cookie": []string{cookie.Name + "=" + cookie.Value}},
	})
	if err != nil {
		t.Fatalf("ws dial: %v", err)
	}
	return conn
}

// wsSend marshals and writes a typed message, calling t.Fatal on error.
func wsSend(ctx context.Context, t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	msg := WSMessage{Type: msgType}
	if payload != nil {
		p, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		msg.Payload = p
	}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal ws message: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("ws write: %v", err)
	}
}

// wsRead reads and unmarshals a WebSocket message, calling t.Fatal on error.
func wsRead(ctx context.Context, t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("ws read: %v", err)
	}
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal ws message: %v", err)
	}
	return msg
}

// readStateUntil reads state messages until ok accepts one.
func readStateUntil(ctx context.Context, t *testing.T, conn *websocket.Conn, ok func(dobble.Snapshot) bool) dobble.Snapshot {
	t.Helper()
	for {
		msg := wsRead(ctx, t, conn)
		if msg.Type != session.MsgState {
			continue
		}
		var snap dobble.Snapshot
		if err := json.Unmarshal(msg.Payload, &snap); err != nil {
			t.Fatalf("unmarshal state payload: %v", err)
		}
		if ok(snap) {
			return snap
		}
	}
}

// readError reads messages until an error arrives and returns its text.
func readError(ctx context.Context, t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	for {
		msg := wsRead(ctx, t, conn)
		if msg.Type != session.MsgError {
			continue
		}
		var ep errorPayload
		if err := json.Unmarshal(msg.Payload, &ep); err != nil {
			t.Fatalf("unmarshal error payload: %v", err)
		}
		return ep.Message
	}
}

// --- HTTP helpers ---

func postJSON(t *testing.T, client *http.Client, url, body string) *http.Response {
	t.Helper()
	resp, err := client.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

// --- Game helpers ---

func sharedSymbol(t *testing.T, s dobble.Snapshot, playerID string) game.Symbol {
	t.Helper()
	p, ok := s.Player(playerID)
	if !ok {
		t.Fatalf("player %s missing from %+v", playerID, s.Players)
	}
	shared := game.Shared(p.Hand, s.CentralSet)
	if len(shared) == 0 {
		t.Fatalf("no shared symbol for %s", playerID)
	}
	return shared[0]
}

func hasPlayer(s dobble.Snapshot, id string) bool {
	_, ok := s.Player(id)
	return ok
}
