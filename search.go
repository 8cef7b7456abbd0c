package nim

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
)

// SearchDepth is the number of plies the engine looks ahead, counting the
// candidate move itself.
const SearchDepth = 10

// Evaluate scores a leaf from the computer's point of view: +1 when the
// computer is recorded as current, -1 otherwise. Past the horizon this only
// says whose turn it is, so play on large piles is approximate.
func Evaluate(state GameState) int {
	if state.Current.IsComputer() {
		return 1
	}
	return -1
}

// Minimax runs a depth-bounded minimax with alpha-beta pruning and returns
// the score of state.
func Minimax(state GameState, depth int, maximizing bool, alpha, beta int) int {
	var s searcher
	return s.minimax(state, depth, maximizing, alpha, beta)
}

// BestMove picks the take amount for state using the default engine.
func BestMove(state GameState) uint {
	return defaultEngine.BestMove(state)
}

// SearchStats describes one decision.
type SearchStats struct {
	Take    uint          `json:"take"`
	Score   int           `json:"score"`
	Nodes   int           `json:"nodes"`
	Cutoffs int           `json:"cutoffs"`
	Elapsed time.Duration `json:"elapsed"`
}

type searcher struct {
	nodes   int
	cutoffs int
}

func (s *searcher) minimax(state GameState, depth int, maximizing bool, alpha, beta int) int {
	s.nodes++
	if depth == 0 || state.IsTerminal() {
		return Evaluate(state)
	}

	if maximizing {
		best := math.MinInt
		for _, child := range state.Successors() {
			eval := s.minimax(child, depth-1, false, alpha, beta)
			best = max(best, eval)
			alpha = max(alpha, eval)
			if beta <= alpha {
				s.cutoffs++
				break
			}
		}
		return best
	}

	best := math.MaxInt
	for _, child := range state.Successors() {
		eval := s.minimax(child, depth-1, true, alpha, beta)
		best = min(best, eval)
		beta = min(beta, eval)
		if beta <= alpha {
			s.cutoffs++
			break
		}
	}
	return best
}

type EngineOption func(e *Engine)

func WithLogger(logger zerolog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// Engine chooses the computer's moves.
type Engine struct {
	logger zerolog.Logger
}

var defaultEngine = NewEngine()

func NewEngine(options ...EngineOption) *Engine {
	e := &Engine{
		logger: zerolog.Nop(),
	}
	for _, option := range options {
		option(e)
	}
	return e
}

// BestMove returns the take amount in 1..min(3, Remaining) with the highest
// score. Ties keep the smaller take. state must not be terminal.
func (e *Engine) BestMove(state GameState) uint {
	return e.Search(state).Take
}

// Search is BestMove with the bookkeeping of the decision.
func (e *Engine) Search(state GameState) SearchStats {
	if state.IsTerminal() {
		panic("nim: search requested on a finished game")
	}

	start := time.Now()
	var s searcher
	bestValue := math.MinInt
	var bestMove uint
	alpha, beta := math.MinInt, math.MaxInt

	for n := uint(1); n <= state.LegalTakes(); n++ {
		next, err := state.ApplyMove(n)
		if err != nil {
			panic(fmt.Sprintf("nim: candidate take %d rejected on %s: %v", n, state, err))
		}
		value := s.minimax(next, SearchDepth-1, false, alpha, beta)
		if value > bestValue {
			bestValue = value
			bestMove = n
		}
		alpha = max(alpha, value)
	}

	stats := SearchStats{
		Take:    bestMove,
		Score:   bestValue,
		Nodes:   s.nodes,
		Cutoffs: s.cutoffs,
		Elapsed: time.Since(start),
	}
	e.logger.Debug().
		Uint("remaining", state.Remaining).
		Uint("take", stats.Take).
		Int("score", stats.Score).
		Int("nodes", stats.Nodes).
		Int("cutoffs", stats.Cutoffs).
		Dur("elapsed", stats.Elapsed).
		Msg("best-move")
	return stats
}
