package dobble

import (
	"errors"
	"fmt"
	"time"

	"github.com/Sprinter100/dobble/internal/game"
)

// ErrInvalidRules is returned when rules cannot produce a playable match.
var ErrInvalidRules = errors.New("invalid rules")

// Rules configures a match.
type Rules struct {
	HandSize   int           // symbols per hand and per central set
	TurnsToWin int           // correct moves a player needs to win
	MinPlayers int           // ready players required to start
	Lockout    time.Duration // penalty window after a wrong guess
	// Strict deals hands sharing exactly one symbol with the central set
	// instead of at least one.
	Strict bool
}

// DefaultRules returns the rules of the reference game.
func DefaultRules() Rules {
	return Rules{
		HandSize:   6,
		TurnsToWin: 2,
		MinPlayers: 1,
		Lockout:    2 * time.Second,
	}
}

// Validate checks the rules against the catalog they will deal from.
func (r Rules) Validate(c game.Catalog) error {
	switch {
	case r.HandSize < 1:
		return fmt.Errorf("%w: hand size must be positive, got %d", ErrInvalidRules, r.HandSize)
	case r.TurnsToWin < 1:
		return fmt.Errorf("%w: turns to win must be positive, got %d", ErrInvalidRules, r.TurnsToWin)
	case r.MinPlayers < 1:
		return fmt.Errorf("%w: min players must be positive, got %d", ErrInvalidRules, r.MinPlayers)
	case r.Lockout < 0:
		return fmt.Errorf("%w: lockout must not be negative, got %s", ErrInvalidRules, r.Lockout)
	case c.Len() < 2*r.HandSize:
		return fmt.Errorf("%w: catalog %q has %d symbols, need at least %d",
			ErrInvalidRules, c.Name, c.Len(), 2*r.HandSize)
	}
	return nil
}
