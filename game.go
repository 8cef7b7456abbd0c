package nim

import (
	"errors"
	"fmt"

	"golang.org/x/exp/rand"
)

const (
	// MaxTake is the most sticks a single move may remove.
	MaxTake = 3

	// MinStart and MaxStart bound the random starting pile.
	MinStart = 4
	MaxStart = 20
)

// ErrInvalidMove is returned when a take amount is zero, larger than MaxTake
// or larger than the pile.
var ErrInvalidMove = errors.New("Invalid number of sticks!")

// GameInterface is the rule surface a driver needs.
type GameInterface interface {
	IsTerminal() bool
	ApplyMove(n uint) (GameState, error)
	Successors() []GameState
	Winner() (Player, bool)
}

// GameState is whose turn it is and how many sticks remain. It is a value:
// every transition returns a new state and leaves the receiver untouched.
type GameState struct {
	Current   Player `json:"currentPlayer"`
	Remaining uint   `json:"remaining"`
}

var _ GameInterface = GameState{}

// NewGame returns the root state with the human to move.
func NewGame(total uint) GameState {
	return GameState{
		Current:   Human,
		Remaining: total,
	}
}

// RandomStart draws a starting pile uniformly from [MinStart, MaxStart].
func RandomStart(r *rand.Rand) uint {
	return uint(MinStart + r.Intn(MaxStart-MinStart+1))
}

func (g GameState) IsTerminal() bool {
	return g.Remaining == 0
}

// LegalTakes is the largest legal take amount, min(MaxTake, Remaining).
func (g GameState) LegalTakes() uint {
	return min(MaxTake, g.Remaining)
}

// ApplyMove removes n sticks and hands the turn to the other player.
func (g GameState) ApplyMove(n uint) (GameState, error) {
	if n == 0 || n > MaxTake || n > g.Remaining {
		return g, ErrInvalidMove
	}
	return GameState{
		Current:   g.Current.Opponent(),
		Remaining: g.Remaining - n,
	}, nil
}

// Successors lists the states reachable by taking 1, 2 and 3 sticks, in that
// order, stopping at the pile size.
func (g GameState) Successors() []GameState {
	successors := make([]GameState, 0, g.LegalTakes())
	for n := uint(1); n <= g.LegalTakes(); n++ {
		next, err := g.ApplyMove(n)
		if err != nil {
			panic(fmt.Sprintf("nim: successor take %d rejected on %s: %v", n, g, err))
		}
		successors = append(successors, next)
	}
	return successors
}

// Winner reports the player recorded as current once the pile is empty.
// Turns switch on every take, so this is the player who did not take the
// last stick.
func (g GameState) Winner() (Player, bool) {
	if !g.IsTerminal() {
		return 0, false
	}
	return g.Current, true
}

func (g GameState) String() string {
	return fmt.Sprintf("%s to move, %d remaining", g.Current.Name(), g.Remaining)
}
