package dobble

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Sprinter100/dobble/internal/game"
)

// Selection names two symbols: one picked from the central set and one
// from the mover's hand, in either order.
type Selection [2]game.Symbol

// Outcome reports what SubmitMove did with a move.
type Outcome int

const (
	MoveIgnored  Outcome = iota // wrong phase, unknown player, or locked out
	MoveRejected                // wrong guess; the player is now locked out
	MoveAccepted                // correct guess; a new round was dealt
	MoveWon                     // correct guess that ended the match
)

func (o Outcome) String() string {
	switch o {
	case MoveRejected:
		return "rejected"
	case MoveAccepted:
		return "accepted"
	case MoveWon:
		return "won"
	default:
		return "ignored"
	}
}

type player struct {
	id             string
	name           string
	turnsRemaining int
	hand           []game.Symbol
	ready          bool
	lockedAt       time.Time
}

// Option customizes a Match.
type Option func(*Match)

// WithClock replaces time.Now for lockout evaluation.
func WithClock(now func() time.Time) Option {
	return func(m *Match) { m.now = now }
}

// WithRand sets the random source used for dealing.
func WithRand(rng *rand.Rand) Option {
	return func(m *Match) { m.rng = rng }
}

// Match is the single authoritative game. All methods are safe for
// concurrent use; commands run one at a time.
//
// Listeners run while the match is locked and must not call back into it.
type Match struct {
	mu      sync.Mutex
	rules   Rules
	catalog game.Catalog
	dealer  *Dealer
	lock    lockout
	rng     *rand.Rand
	now     func() time.Time
	emitter Emitter

	phase   Phase
	players []*player
	central []game.Symbol
	winner  *WinnerView
	version uint64
}

// New creates a match waiting for players.
func New(c game.Catalog, rules Rules, opts ...Option) (*Match, error) {
	if err := rules.Validate(c); err != nil {
		return nil, err
	}
	m := &Match{
		rules:   rules,
		catalog: c,
		lock:    lockout{window: rules.Lockout},
		now:     time.Now,
		phase:   PhaseWaitingForPlayers,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.rng == nil {
		m.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	m.dealer = NewDealer(c, rules.HandSize, rules.Strict, m.rng)
	return m, nil
}

// Rules returns the rules the match was created with.
func (m *Match) Rules() Rules { return m.rules }

// Catalog returns the catalog symbols are dealt from.
func (m *Match) Catalog() game.Catalog { return m.catalog }

// Subscribe registers fn for every future snapshot.
func (m *Match) Subscribe(fn Listener) (unsubscribe func()) {
	return m.emitter.Subscribe(fn)
}

// Snapshot returns a detached copy of the current state.
func (m *Match) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Join adds a player while the match is waiting for players. It reports
// whether a new player was created.
func (m *Match) Join(playerID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase != PhaseWaitingForPlayers || playerID == "" {
		return false
	}
	if m.find(playerID) != nil {
		return false
	}
	m.players = append(m.players, &player{
		id:             playerID,
		name:           fmt.Sprintf("Player %d", len(m.players)+1),
		turnsRemaining: m.rules.TurnsToWin,
	})
	m.emit()
	return true
}

// SetName overwrites a player's display name.
func (m *Match) SetName(playerID, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name = strings.TrimSpace(name)
	p := m.find(playerID)
	if p == nil || name == "" || p.name == name {
		return
	}
	p.name = name
	m.emit()
}

// SetReady marks a waiting player ready and deals the first round once
// every player is ready and the roster is large enough.
func (m *Match) SetReady(playerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase != PhaseWaitingForPlayers {
		return
	}
	p := m.find(playerID)
	if p == nil || p.ready {
		return
	}
	p.ready = true

	if m.canStart() {
		m.prepareInitialRound()
		return
	}
	m.emit()
}

// SubmitMove evaluates a move. A move is correct when both selected
// symbols are the same and that symbol is in the player's hand and in the
// central set.
func (m *Match) SubmitMove(playerID string, sel Selection) Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase != PhaseWaitForPlayerMove {
		return MoveIgnored
	}
	p := m.find(playerID)
	if p == nil || len(p.hand) == 0 {
		return MoveIgnored
	}
	now := m.now()
	if m.lock.IsLocked(p, now) {
		return MoveIgnored
	}
	m.lock.Clear(p)

	if !m.isCorrect(p, sel) {
		m.lock.Lock(p, now)
		m.emit()
		return MoveRejected
	}

	if p.turnsRemaining > 0 {
		p.turnsRemaining--
	}
	if p.turnsRemaining == 0 {
		m.phase = PhaseResults
		m.winner = &WinnerView{ID: p.id, Name: p.name}
		m.emit()
		return MoveWon
	}
	m.prepareNextRound(p)
	return MoveAccepted
}

// Leave removes a player in any phase.
func (m *Match) Leave(playerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := slices.IndexFunc(m.players, func(p *player) bool { return p.id == playerID })
	if i < 0 {
		return
	}
	m.players = slices.Delete(m.players, i, i+1)

	if m.phase == PhaseWaitingForPlayers && m.canStart() {
		m.prepareInitialRound()
		return
	}
	m.emit()
}

// NewMatch returns to WAITING_FOR_PLAYERS keeping the roster and names.
func (m *Match) NewMatch() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.phase = PhaseWaitingForPlayers
	m.central = nil
	m.winner = nil
	for _, p := range m.players {
		p.ready = false
		p.hand = nil
		p.turnsRemaining = m.rules.TurnsToWin
		m.lock.Clear(p)
	}
	m.emit()
}

func (m *Match) prepareInitialRound() {
	m.phase = PhasePrepareInitialRound
	m.emit()

	m.central = m.dealer.CentralSet()
	for _, p := range m.players {
		p.hand = m.dealer.Hand(m.central)
		m.lock.Clear(p)
	}

	m.phase = PhaseWaitForPlayerMove
	m.emit()
}

// prepareNextRound turns the round winner's hand into the central set and
// redeals the winner. Other hands are kept unless they no longer match.
func (m *Match) prepareNextRound(winner *player) {
	m.phase = PhasePrepareNextRound
	m.emit()

	m.central = slices.Clone(winner.hand)
	winner.hand = m.dealer.Hand(m.central)
	for _, p := range m.players {
		if p != winner && !m.dealer.Fits(p.hand, m.central) {
			p.hand = m.dealer.Hand(m.central)
		}
	}

	m.phase = PhaseWaitForPlayerMove
	m.emit()
}

func (m *Match) isCorrect(p *player, sel Selection) bool {
	s := sel[0]
	return s != "" && s == sel[1] &&
		game.Contains(p.hand, s) &&
		game.Contains(m.central, s)
}

func (m *Match) canStart() bool {
	if len(m.players) < m.rules.MinPlayers {
		return false
	}
	for _, p := range m.players {
		if !p.ready {
			return false
		}
	}
	return true
}

func (m *Match) find(id string) *player {
	for _, p := range m.players {
		if p.id == id {
			return p
		}
	}
	return nil
}

func (m *Match) emit() {
	m.version++
	m.emitter.Emit(m.snapshotLocked())
}

func (m *Match) snapshotLocked() Snapshot {
	now := m.now()
	s := Snapshot{
		Version:    m.version,
		Phase:      m.phase,
		Players:    make([]PlayerView, 0, len(m.players)),
		CentralSet: cloneSymbols(m.central),
		Rules:      viewRules(m.rules),
		Catalog:    m.catalog.Name,
	}
	for _, p := range m.players {
		v := PlayerView{
			ID:             p.id,
			Name:           p.name,
			Hand:           cloneSymbols(p.hand),
			IsReady:        p.ready,
			TurnsRemaining: p.turnsRemaining,
		}
		if until, ok := m.lock.Until(p, now); ok {
			v.LockedUntil = &until
		}
		s.Players = append(s.Players, v)
	}
	if m.winner != nil {
		w := *m.winner
		s.Winner = &w
	}
	return s
}
