package nim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/exp/rand"
)

var (
	ErrAtCapacity      = errors.New("server at capacity")
	ErrBrokerStopped   = errors.New("broker is shutting down")
	ErrSessionNotFound = errors.New("session not found")
)

type BrokerOption func(sb *SessionBroker)

// WithSessionTimeout sets how long a session may go without a move before
// it is reaped.
func WithSessionTimeout(timeout time.Duration) BrokerOption {
	return func(sb *SessionBroker) {
		if timeout > 0 {
			sb.sessionTimeout = timeout
		}
	}
}

func WithCleanupInterval(interval time.Duration) BrokerOption {
	return func(sb *SessionBroker) {
		if interval > 0 {
			sb.cleanupInterval = interval
		}
	}
}

func WithMonitorInterval(interval time.Duration) BrokerOption {
	return func(sb *SessionBroker) {
		if interval > 0 {
			sb.monitorInterval = interval
		}
	}
}

func WithBrokerLogger(logger zerolog.Logger) BrokerOption {
	return func(sb *SessionBroker) {
		sb.logger = logger
	}
}

// WithRand fixes the source of starting piles, mostly for tests.
func WithRand(r *rand.Rand) BrokerOption {
	return func(sb *SessionBroker) {
		if r != nil {
			sb.rng = r
		}
	}
}

// WithReapHandler is called, outside the broker's lock, for every session
// removed for inactivity so its owner can stop the game.
func WithReapHandler(onReap func(*Session)) BrokerOption {
	return func(sb *SessionBroker) {
		sb.onReap = onReap
	}
}

func WithEngine(engine *Engine) BrokerOption {
	return func(sb *SessionBroker) {
		if engine != nil {
			sb.engine = engine
		}
	}
}

// SessionBroker owns the live sessions of a server and bounds how many may
// run at once.
type SessionBroker struct {
	// Configuration
	maxConcurrentGames int
	sessionTimeout     time.Duration
	cleanupInterval    time.Duration
	monitorInterval    time.Duration

	engine *Engine
	logger zerolog.Logger
	onReap func(*Session)

	rng      *rand.Rand
	rngMutex sync.Mutex

	activeSessions map[string]*Session
	sessionsMutex  *sync.RWMutex

	// Limits concurrent sessions
	sessionSemaphore chan struct{}

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     *sync.WaitGroup
}

func NewSessionBroker(maxConcurrentGames int, options ...BrokerOption) *SessionBroker {
	if maxConcurrentGames <= 0 {
		maxConcurrentGames = 1
	}
	ctx, cancel := context.WithCancel(context.Background())

	sb := &SessionBroker{
		maxConcurrentGames: maxConcurrentGames,
		sessionTimeout:     30 * time.Minute,
		cleanupInterval:    1 * time.Minute,
		monitorInterval:    10 * time.Second,
		engine:             defaultEngine,
		logger:             zerolog.Nop(),
		rng:                rand.New(rand.NewSource(uint64(time.Now().UnixNano()))),
		activeSessions:     make(map[string]*Session),
		sessionsMutex:      new(sync.RWMutex),
		sessionSemaphore:   make(chan struct{}, maxConcurrentGames),
		ctx:                ctx,
		cancel:             cancel,
		wg:                 new(sync.WaitGroup),
	}
	for _, option := range options {
		option(sb)
	}
	return sb
}

// Start launches the cleanup and monitoring workers.
func (sb *SessionBroker) Start() {
	sb.wg.Add(2)
	go sb.sessionCleanupWorker()
	go sb.monitoringWorker()

	sb.logger.Info().Int("max_games", sb.maxConcurrentGames).Msg("session broker started")
}

// Stop cancels the workers and drops every session.
func (sb *SessionBroker) Stop() {
	sb.cancel()
	sb.wg.Wait()

	sb.sessionsMutex.Lock()
	for id := range sb.activeSessions {
		delete(sb.activeSessions, id)
		<-sb.sessionSemaphore
	}
	sb.sessionsMutex.Unlock()

	sb.logger.Info().Msg("session broker stopped")
}

// Open starts a new session with a random starting pile.
func (sb *SessionBroker) Open() (*Session, error) {
	if sb.ctx.Err() != nil {
		return nil, ErrBrokerStopped
	}

	select {
	case sb.sessionSemaphore <- struct{}{}:
	default:
		return nil, ErrAtCapacity
	}

	sb.rngMutex.Lock()
	total := RandomStart(sb.rng)
	sb.rngMutex.Unlock()

	session := NewSession(total, sb.engine)

	sb.sessionsMutex.Lock()
	sb.activeSessions[session.ID] = session
	sb.sessionsMutex.Unlock()

	sb.logger.Info().Str("session", session.ID).Uint("sticks", total).Msg("session opened")
	return session, nil
}

// Close forgets a session and frees its slot.
func (sb *SessionBroker) Close(id string) error {
	sb.sessionsMutex.Lock()
	defer sb.sessionsMutex.Unlock()

	session, ok := sb.activeSessions[id]
	if !ok {
		return fmt.Errorf("close %s: %w", id, ErrSessionNotFound)
	}
	delete(sb.activeSessions, id)
	<-sb.sessionSemaphore

	event := sb.logger.Info().Str("session", id).Dur("duration", time.Since(session.CreatedAt))
	if winner, ok := session.Winner(); ok {
		event = event.Str("winner", winner.Name())
	}
	event.Msg("session closed")
	return nil
}

func (sb *SessionBroker) Get(id string) (*Session, bool) {
	sb.sessionsMutex.RLock()
	defer sb.sessionsMutex.RUnlock()
	session, exists := sb.activeSessions[id]
	return session, exists
}

func (sb *SessionBroker) ActiveCount() int {
	sb.sessionsMutex.RLock()
	defer sb.sessionsMutex.RUnlock()
	return len(sb.activeSessions)
}

func (sb *SessionBroker) AvailableSlots() int {
	return cap(sb.sessionSemaphore) - len(sb.sessionSemaphore)
}

func (sb *SessionBroker) sessionCleanupWorker() {
	defer sb.wg.Done()

	ticker := time.NewTicker(sb.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sb.cleanupStaleSessions()
		case <-sb.ctx.Done():
			return
		}
	}
}

// cleanupStaleSessions removes sessions that have gone too long without a
// move and hands each one to the reap handler.
func (sb *SessionBroker) cleanupStaleSessions() int {
	sb.sessionsMutex.Lock()
	now := time.Now()
	var reaped []*Session
	for id, session := range sb.activeSessions {
		if now.Sub(session.LastActivity()) > sb.sessionTimeout {
			sb.logger.Info().Str("session", id).Msg("cleaning up stale session")
			delete(sb.activeSessions, id)
			<-sb.sessionSemaphore
			reaped = append(reaped, session)
		}
	}
	sb.sessionsMutex.Unlock()

	if sb.onReap != nil {
		for _, session := range reaped {
			sb.onReap(session)
		}
	}
	return len(reaped)
}

func (sb *SessionBroker) monitoringWorker() {
	defer sb.wg.Done()

	ticker := time.NewTicker(sb.monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sb.logMetrics()
		case <-sb.ctx.Done():
			return
		}
	}
}

func (sb *SessionBroker) logMetrics() {
	sb.logger.Debug().
		Int("active", sb.ActiveCount()).
		Int("available_slots", sb.AvailableSlots()).
		Msg("broker metrics")
}
