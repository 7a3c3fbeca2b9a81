package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Sprinter100/dobble/internal/game/dobble"
	"github.com/Sprinter100/dobble/internal/storage"
)

// ResultStore records finished matches.
type ResultStore interface {
	SaveResult(r storage.ResultRow) (*storage.ResultRow, error)
}

type unlockTimer struct {
	until time.Time
	timer *time.Timer
}

// Manager connects the transport to the match. It fans snapshots out to
// every client, turns connection lifecycle into Join and Leave, records
// finished matches and announces lockout expiry.
//
// Manager never calls into the match while holding its own mutex: the
// match invokes onSnapshot with its lock held, and onSnapshot takes mu.
type Manager struct {
	match   *dobble.Match
	session *Session
	results ResultStore
	grace   time.Duration
	now     func() time.Time

	mu       sync.Mutex
	pending  map[string]time.Time // disconnected players awaiting removal
	unlocks  map[string]unlockTimer
	recorded bool

	saves       sync.WaitGroup
	unsubscribe func()
}

// NewManager wires a manager to match. results may be nil. A positive
// grace keeps disconnected players in the match until CleanupLoop removes
// them.
func NewManager(match *dobble.Match, results ResultStore, grace time.Duration) *Manager {
	m := &Manager{
		match:   match,
		session: NewSession(),
		results: results,
		grace:   grace,
		now:     time.Now,
		pending: make(map[string]time.Time),
		unlocks: make(map[string]unlockTimer),
	}
	m.unsubscribe = match.Subscribe(m.onSnapshot)
	return m
}

// Session returns the live connections.
func (m *Manager) Session() *Session { return m.session }

// Rules returns the match rules.
func (m *Manager) Rules() dobble.Rules { return m.match.Rules() }

// Snapshot returns the current match state.
func (m *Manager) Snapshot() dobble.Snapshot { return m.match.Snapshot() }

// Connect registers a connection for playerID and joins the match if
// possible. A non-empty name overwrites the display name. The new client
// always receives the current state.
func (m *Manager) Connect(playerID, name string) *Client {
	m.mu.Lock()
	delete(m.pending, playerID)
	m.mu.Unlock()

	c := m.session.Add(playerID)
	before := m.match.Snapshot().Version
	if m.match.Join(playerID) {
		log.Debug().Str("player", playerID).Msg("player joined")
	}
	if name != "" {
		m.match.SetName(playerID, name)
	}
	if s := m.match.Snapshot(); s.Version == before {
		if msg, err := Encode(MsgState, s); err == nil {
			deliver(c, msg)
		}
	}
	return c
}

// Disconnect drops a connection. The player leaves the match once no
// connection remains, immediately or after the grace period.
func (m *Manager) Disconnect(c *Client) {
	playerID, ok := m.session.Remove(c.ID)
	if !ok || m.session.Count(playerID) > 0 {
		return
	}
	if m.grace <= 0 {
		m.Leave(playerID)
		return
	}
	m.mu.Lock()
	m.pending[playerID] = m.now()
	m.mu.Unlock()
	log.Debug().Str("player", playerID).Dur("grace", m.grace).Msg("player disconnected")
}

// CleanupLoop removes players whose grace period has expired.
func (m *Manager) CleanupLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.cleanup()
		}
	}
}

func (m *Manager) cleanup() {
	now := m.now()
	var expired []string
	m.mu.Lock()
	for id, at := range m.pending {
		if now.Sub(at) >= m.grace {
			expired = append(expired, id)
			delete(m.pending, id)
		}
	}
	m.mu.Unlock()

	for _, id := range expired {
		if m.session.Count(id) > 0 {
			continue
		}
		log.Info().Str("player", id).Msg("removing disconnected player")
		m.match.Leave(id)
	}
}

// Join adds a player without a connection.
func (m *Manager) Join(playerID string) bool {
	return m.match.Join(playerID)
}

// Ready marks a player ready.
func (m *Manager) Ready(playerID string) {
	m.match.SetReady(playerID)
}

// Move submits a move.
func (m *Manager) Move(playerID string, sel dobble.Selection) dobble.Outcome {
	out := m.match.SubmitMove(playerID, sel)
	log.Debug().Str("player", playerID).Str("outcome", out.String()).Msg("move")
	return out
}

// Leave removes a player from the match.
func (m *Manager) Leave(playerID string) {
	m.mu.Lock()
	delete(m.pending, playerID)
	m.mu.Unlock()
	m.match.Leave(playerID)
}

// NewMatch resets the match.
func (m *Manager) NewMatch() {
	m.match.NewMatch()
}

// Rename sets a player's display name.
func (m *Manager) Rename(playerID, name string) {
	m.match.SetName(playerID, name)
}

// Close stops timers, waits for pending result writes and closes every
// connection.
func (m *Manager) Close() {
	m.unsubscribe()
	m.mu.Lock()
	for id, u := range m.unlocks {
		u.timer.Stop()
		delete(m.unlocks, id)
	}
	m.mu.Unlock()
	m.saves.Wait()
	m.session.CloseAll()
}

// onSnapshot runs with the match locked.
func (m *Manager) onSnapshot(s dobble.Snapshot) {
	msg, err := Encode(MsgState, s)
	if err != nil {
		log.Error().Err(err).Msg("encode state")
		return
	}
	m.session.Broadcast(msg)

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range s.Players {
		if p.LockedUntil != nil {
			m.scheduleUnlock(p.ID, *p.LockedUntil)
		}
	}
	if s.Phase != dobble.PhaseResults {
		m.recorded = false
		return
	}
	if !m.recorded && s.Winner != nil {
		m.recorded = true
		m.record(s)
	}
}

// scheduleUnlock must be called with mu held.
func (m *Manager) scheduleUnlock(playerID string, until time.Time) {
	if u, ok := m.unlocks[playerID]; ok {
		if u.until.Equal(until) {
			return
		}
		u.timer.Stop()
	}
	t := time.AfterFunc(until.Sub(m.now()), func() {
		m.mu.Lock()
		if u, ok := m.unlocks[playerID]; ok && u.until.Equal(until) {
			delete(m.unlocks, playerID)
		}
		m.mu.Unlock()

		msg, err := Encode(MsgUnlocked, UnlockedPayload{PlayerID: playerID})
		if err != nil {
			return
		}
		m.session.Broadcast(msg)
	})
	m.unlocks[playerID] = unlockTimer{until: until, timer: t}
}

// record must be called with mu held.
func (m *Manager) record(s dobble.Snapshot) {
	if m.results == nil {
		return
	}
	row := storage.ResultRow{
		WinnerID:   s.Winner.ID,
		WinnerName: s.Winner.Name,
		FinishedAt: m.now(),
	}
	for _, p := range s.Players {
		row.Players = append(row.Players, storage.ResultPlayer{
			ID:             p.ID,
			Name:           p.Name,
			TurnsRemaining: p.TurnsRemaining,
		})
	}
	m.saves.Add(1)
	go func() {
		defer m.saves.Done()
		saved, err := m.results.SaveResult(row)
		if err != nil {
			log.Error().Err(err).Str("winner", row.WinnerID).Msg("save match result")
			return
		}
		log.Info().Str("result", saved.ID).Str("winner", saved.WinnerName).Msg("match finished")
	}()
}
