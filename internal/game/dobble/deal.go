package dobble

import (
	"math/rand/v2"

	"github.com/Sprinter100/dobble/internal/game"
)

// Dealer draws central sets and hands from a catalog.
//
// Every hand contains one symbol picked at random from the central set; the
// rest is filler sampled from the whole catalog without repeats. Filler may
// itself land in the central set, so hands share at least one symbol with
// it. In strict mode filler avoids the central set and exactly one symbol
// is shared.
type Dealer struct {
	catalog game.Catalog
	size    int
	strict  bool
	rng     *rand.Rand
}

// NewDealer returns a dealer producing sets of handSize symbols.
func NewDealer(c game.Catalog, handSize int, strict bool, rng *rand.Rand) *Dealer {
	return &Dealer{catalog: c, size: handSize, strict: strict, rng: rng}
}

// CentralSet draws handSize distinct symbols in random order.
func (d *Dealer) CentralSet() []game.Symbol {
	perm := d.rng.Perm(d.catalog.Len())
	out := make([]game.Symbol, d.size)
	for i := range out {
		out[i] = d.catalog.Symbols[perm[i]]
	}
	return out
}

// Hand draws a hand to be matched against central.
func (d *Dealer) Hand(central []game.Symbol) []game.Symbol {
	hand := make([]game.Symbol, 0, d.size)
	if len(central) > 0 {
		hand = append(hand, central[d.rng.IntN(len(central))])
	}
	for _, i := range d.rng.Perm(d.catalog.Len()) {
		if len(hand) == d.size {
			break
		}
		s := d.catalog.Symbols[i]
		if game.Contains(hand, s) {
			continue
		}
		if d.strict && game.Contains(central, s) {
			continue
		}
		hand = append(hand, s)
	}
	d.rng.Shuffle(len(hand), func(i, j int) { hand[i], hand[j] = hand[j], hand[i] })
	return hand
}

// Fits reports whether hand still satisfies the sharing rule against central.
func (d *Dealer) Fits(hand, central []game.Symbol) bool {
	n := len(game.Shared(hand, central))
	if d.strict {
		return n == 1
	}
	return n >= 1
}
