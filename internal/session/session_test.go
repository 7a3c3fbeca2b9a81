package session

import (
	"encoding/json"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/Sprinter100/dobble/internal/game"
	"github.com/Sprinter100/dobble/internal/game/dobble"
	"github.com/Sprinter100/dobble/internal/storage"
)

func setupTest(t *testing.T, rules dobble.Rules, grace time.Duration) (*Manager, *storage.Store) {
	t.Helper()
	store, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	match, err := dobble.New(game.Letters, rules, dobble.WithRand(rand.New(rand.NewPCG(1, 2))))
	if err != nil {
		t.Fatalf("new match: %v", err)
	}
	mgr := NewManager(match, store, grace)
	t.Cleanup(func() {
		mgr.Close()
		store.Close()
	})
	return mgr, store
}

// waitFor reads from c until a message of msgType arrives.
func waitFor(t *testing.T, c *Client, msgType string) Message {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case data, ok := <-c.Send:
			if !ok {
				t.Fatalf("channel closed waiting for %s", msgType)
			}
			var msg Message
			if err := json.Unmarshal(data, &msg); err != nil {
				t.Fatalf("bad message %s: %v", data, err)
			}
			if msg.Type == msgType {
				return msg
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", msgType)
		}
	}
}

func lastState(t *testing.T, c *Client) dobble.Snapshot {
	t.Helper()
	var snap dobble.Snapshot
	found := false
	for {
		select {
		case data := <-c.Send:
			var msg Message
			json.Unmarshal(data, &msg)
			if msg.Type == MsgState {
				var next dobble.Snapshot
				if err := json.Unmarshal(msg.Payload, &next); err != nil {
					t.Fatalf("bad state %s: %v", msg.Payload, err)
				}
				snap, found = next, true
			}
		default:
			if !found {
				t.Fatal("no state message queued")
			}
			return snap
		}
	}
}

func correctMove(t *testing.T, s dobble.Snapshot, playerID string) dobble.Selection {
	t.Helper()
	p, ok := s.Player(playerID)
	if !ok {
		t.Fatalf("player %s missing", playerID)
	}
	shared := game.Shared(p.Hand, s.CentralSet)
	if len(shared) == 0 {
		t.Fatalf("no shared symbol for %s", playerID)
	}
	return dobble.Selection{shared[0], shared[0]}
}

func TestSessionBroadcastAndSend(t *testing.T) {
	s := NewSession()
	a := s.Add("alice")
	a2 := s.Add("alice")
	b := s.Add("bob")

	if s.Count("alice") != 2 || s.Count("bob") != 1 || s.Len() != 3 {
		t.Fatalf("unexpected counts: alice=%d bob=%d len=%d", s.Count("alice"), s.Count("bob"), s.Len())
	}

	s.Broadcast([]byte("all"))
	s.Send("alice", []byte("alice only"))
	for _, c := range []*Client{a, a2} {
		if got := string(<-c.Send); got != "all" {
			t.Fatalf("expected broadcast, got %q", got)
		}
		if got := string(<-c.Send); got != "alice only" {
			t.Fatalf("expected direct message, got %q", got)
		}
	}
	if got := string(<-b.Send); got != "all" {
		t.Fatalf("expected broadcast, got %q", got)
	}
	if len(b.Send) != 0 {
		t.Fatal("bob must not receive alice's message")
	}

	s.SendClient(a2.ID, []byte("tab"))
	if got := string(<-a2.Send); got != "tab" || len(a.Send) != 0 {
		t.Fatalf("expected message only on the second tab, got %q", got)
	}

	pid, ok := s.Remove(a.ID)
	if !ok || pid != "alice" {
		t.Fatalf("remove returned %q %v", pid, ok)
	}
	if _, open := <-a.Send; open {
		t.Fatal("expected send channel closed")
	}
	if _, ok := s.Remove(a.ID); ok {
		t.Fatal("second remove must report false")
	}
}

func TestBroadcastDropsWhenFull(t *testing.T) {
	s := NewSession()
	c := s.Add("alice")
	for i := 0; i < sendBuffer+10; i++ {
		s.Broadcast([]byte("x"))
	}
	if len(c.Send) != sendBuffer {
		t.Fatalf("expected full buffer of %d, got %d", sendBuffer, len(c.Send))
	}
}

func TestEncode(t *testing.T) {
	data, err := Encode(MsgUnlocked, UnlockedPayload{PlayerID: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"type":"unlocked","payload":{"playerId":"alice"}}`
	if string(data) != want {
		t.Fatalf("expected %s, got %s", want, data)
	}
}

func TestConnectJoinsAndBroadcasts(t *testing.T) {
	mgr, _ := setupTest(t, dobble.DefaultRules(), 0)

	alice := mgr.Connect("alice", "")
	s := lastState(t, alice)
	if len(s.Players) != 1 || s.Players[0].ID != "alice" || s.Players[0].Name != "Player 1" {
		t.Fatalf("unexpected roster: %+v", s.Players)
	}

	mgr.Connect("bob", "Bob")
	s = lastState(t, alice)
	if len(s.Players) != 2 || s.Players[1].Name != "Bob" {
		t.Fatalf("alice did not see bob: %+v", s.Players)
	}
}

func TestReconnectAndDisconnect(t *testing.T) {
	mgr, _ := setupTest(t, dobble.DefaultRules(), 0)

	first := mgr.Connect("alice", "")
	second := mgr.Connect("alice", "")
	if s := lastState(t, second); len(s.Players) != 1 {
		t.Fatalf("second tab must get the current state, got %+v", s.Players)
	}

	mgr.Disconnect(first)
	if _, ok := mgr.Snapshot().Player("alice"); !ok {
		t.Fatal("alice must stay while a connection remains")
	}
	mgr.Disconnect(second)
	if _, ok := mgr.Snapshot().Player("alice"); ok {
		t.Fatal("alice must leave once every connection is gone")
	}
}

func TestDisconnectGrace(t *testing.T) {
	mgr, _ := setupTest(t, dobble.DefaultRules(), time.Minute)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	mgr.now = func() time.Time { return now }

	c := mgr.Connect("alice", "")
	mgr.Disconnect(c)
	mgr.cleanup()
	if _, ok := mgr.Snapshot().Player("alice"); !ok {
		t.Fatal("alice removed before grace expired")
	}

	// Reconnecting cancels the pending removal.
	c = mgr.Connect("alice", "")
	now = now.Add(2 * time.Minute)
	mgr.cleanup()
	if _, ok := mgr.Snapshot().Player("alice"); !ok {
		t.Fatal("reconnected player must not be removed")
	}

	mgr.Disconnect(c)
	now = now.Add(2 * time.Minute)
	mgr.cleanup()
	if _, ok := mgr.Snapshot().Player("alice"); ok {
		t.Fatal("alice must be removed after grace")
	}
}

func TestResultRecordedOnce(t *testing.T) {
	rules := dobble.DefaultRules()
	rules.TurnsToWin = 1
	mgr, store := setupTest(t, rules, 0)

	mgr.Connect("alice", "Alice")
	mgr.Join("bob")
	mgr.Ready("alice")
	mgr.Ready("bob")

	if out := mgr.Move("alice", correctMove(t, mgr.Snapshot(), "alice")); out != dobble.MoveWon {
		t.Fatalf("expected won, got %s", out)
	}
	mgr.Rename("bob", "Bobby")
	mgr.Leave("bob")

	mgr.saves.Wait()
	results, err := store.ListResults(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.WinnerID != "alice" || r.WinnerName != "Alice" || len(r.Players) != 2 {
		t.Fatalf("unexpected result: %+v", r)
	}

	mgr.NewMatch()
	mgr.Ready("alice")
	mgr.Move("alice", correctMove(t, mgr.Snapshot(), "alice"))
	mgr.saves.Wait()
	if results, _ := store.ListResults(10); len(results) != 2 {
		t.Fatalf("expected a second result after a new match, got %d", len(results))
	}
}

func TestUnlockedAnnounced(t *testing.T) {
	rules := dobble.DefaultRules()
	rules.Lockout = 30 * time.Millisecond
	mgr, _ := setupTest(t, rules, 0)

	c := mgr.Connect("alice", "")
	mgr.Ready("alice")

	s := mgr.Snapshot()
	p, _ := s.Player("alice")
	var wrong game.Symbol = "nope"
	for _, sym := range p.Hand {
		if !game.Contains(s.CentralSet, sym) {
			wrong = sym
			break
		}
	}
	if out := mgr.Move("alice", dobble.Selection{wrong, wrong}); out != dobble.MoveRejected {
		t.Fatalf("expected rejected, got %s", out)
	}

	msg := waitFor(t, c, MsgUnlocked)
	var payload UnlockedPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.PlayerID != "alice" {
		t.Fatalf("expected alice unlocked, got %q", payload.PlayerID)
	}
	if out := mgr.Move("alice", correctMove(t, mgr.Snapshot(), "alice")); out != dobble.MoveAccepted {
		t.Fatalf("expected accepted after unlock, got %s", out)
	}
}
