package dobble

import (
	"time"

	"github.com/Sprinter100/dobble/internal/game"
)

// Phase is the match lifecycle state.
type Phase string

const (
	PhaseWaitingForPlayers   Phase = "WAITING_FOR_PLAYERS"
	PhasePrepareInitialRound Phase = "PREPARE_INITIAL_ROUND"
	PhaseWaitForPlayerMove   Phase = "WAIT_FOR_PLAYER_MOVE"
	PhasePrepareNextRound    Phase = "PREPARE_NEXT_ROUND"
	PhaseResults             Phase = "RESULTS"
)

// PlayerView is one player as seen in a snapshot.
type PlayerView struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	Hand           []game.Symbol `json:"hand"`
	IsReady        bool          `json:"isReady"`
	TurnsRemaining int           `json:"turnsRemaining"`
	LockedUntil    *time.Time    `json:"lockedUntil,omitempty"`
}

// RulesView is the rule set in wire form.
type RulesView struct {
	LockoutDurationMs int64 `json:"lockoutDurationMs"`
	TurnsToWin        int   `json:"turnsToWin"`
	HandSize          int   `json:"handSize"`
	MinPlayers        int   `json:"minPlayers"`
	Strict            bool  `json:"strict"`
}

// WinnerView names the player who ended the match.
type WinnerView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Snapshot is a detached copy of the match state. Version increases by one
// with every emitted snapshot.
type Snapshot struct {
	Version    uint64        `json:"version"`
	Phase      Phase         `json:"phase"`
	Players    []PlayerView  `json:"players"`
	CentralSet []game.Symbol `json:"centralSet"`
	Rules      RulesView     `json:"rules"`
	Catalog    string        `json:"catalog"`
	Winner     *WinnerView   `json:"winner,omitempty"`
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.CentralSet = cloneSymbols(s.CentralSet)
	out.Players = make([]PlayerView, len(s.Players))
	for i, p := range s.Players {
		p.Hand = cloneSymbols(p.Hand)
		if p.LockedUntil != nil {
			t := *p.LockedUntil
			p.LockedUntil = &t
		}
		out.Players[i] = p
	}
	if s.Winner != nil {
		w := *s.Winner
		out.Winner = &w
	}
	return out
}

// Player returns the view of the player with the given id.
func (s Snapshot) Player(id string) (PlayerView, bool) {
	for _, p := range s.Players {
		if p.ID == id {
			return p, true
		}
	}
	return PlayerView{}, false
}

func cloneSymbols(in []game.Symbol) []game.Symbol {
	return append([]game.Symbol{}, in...)
}

func viewRules(r Rules) RulesView {
	return RulesView{
		LockoutDurationMs: r.Lockout.Milliseconds(),
		TurnsToWin:        r.TurnsToWin,
		HandSize:          r.HandSize,
		MinPlayers:        r.MinPlayers,
		Strict:            r.Strict,
	}
}
