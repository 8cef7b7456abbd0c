package nim

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrGameOver    = errors.New("game is over")
	ErrNotYourTurn = errors.New("not your turn")
)

// Move records one accepted take. Remaining is the pile after the take.
type Move struct {
	Player    Player `json:"player"`
	Take      uint   `json:"take"`
	Remaining uint   `json:"remaining"`
}

type SessionInterface interface {
	State() GameState
	History() []Move
	Finished() bool
	Winner() (Player, bool)
	Take(n uint) error
	PlayComputer() (uint, error)
}

// Session is one live game between the human and the engine.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`

	state     GameState
	history   []Move
	engine    *Engine
	updatedAt time.Time
	mutex     *sync.RWMutex
}

var _ SessionInterface = (*Session)(nil)

func NewSession(total uint, engine *Engine) *Session {
	if engine == nil {
		engine = defaultEngine
	}
	now := time.Now()
	return &Session{
		ID:        uuid.New().String(),
		CreatedAt: now,
		updatedAt: now,
		state:     NewGame(total),
		engine:    engine,
		mutex:     &sync.RWMutex{},
	}
}

func (s *Session) State() GameState {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.state
}

// History returns a copy of the accepted moves, oldest first.
func (s *Session) History() []Move {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	history := make([]Move, len(s.history))
	copy(history, s.history)
	return history
}

func (s *Session) Finished() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.state.IsTerminal()
}

func (s *Session) Winner() (Player, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.state.Winner()
}

// LastActivity is the time of the last accepted move, or creation.
func (s *Session) LastActivity() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.updatedAt
}

// Take applies the human's move. A rejected move leaves the state as it was.
func (s *Session) Take(n uint) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := s.checkTurn(Human); err != nil {
		return err
	}
	return s.apply(n)
}

// PlayComputer lets the engine choose and apply the computer's move.
func (s *Session) PlayComputer() (uint, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := s.checkTurn(Computer); err != nil {
		return 0, err
	}
	n := s.engine.BestMove(s.state)
	if err := s.apply(n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Session) checkTurn(p Player) error {
	if s.state.IsTerminal() {
		return ErrGameOver
	}
	if s.state.Current != p {
		return ErrNotYourTurn
	}
	return nil
}

func (s *Session) apply(n uint) error {
	next, err := s.state.ApplyMove(n)
	if err != nil {
		return err
	}
	s.history = append(s.history, Move{
		Player:    s.state.Current,
		Take:      n,
		Remaining: next.Remaining,
	})
	s.state = next
	s.updatedAt = time.Now()
	return nil
}
