package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	gws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/tkahng/nim"
	"github.com/tkahng/nim/driver"
	"github.com/tkahng/nim/websocket"
)

// MsgSessionExpired is sent before a connection whose session was reaped
// for inactivity is closed.
const MsgSessionExpired = "Session expired!"

type Config struct {
	MaxConcurrentGames int
	SessionTimeout     time.Duration
	CleanupInterval    time.Duration
	MonitorInterval    time.Duration
	AllowedOrigins     []string
	PingInterval       time.Duration
}

// connection ties a websocket client to its game. driver is nil when no
// session could be opened for the client.
type connection struct {
	session *nim.Session
	driver  *driver.Driver
	cancel  context.CancelFunc
}

// GameServer plays one game per WebSocket connection, human against engine.
type GameServer struct {
	broker   *nim.SessionBroker
	manager  websocket.Manager
	upgrader gws.Upgrader
	router   chi.Router
	logger   zerolog.Logger
	config   Config

	connections map[websocket.Client]*connection
	connMutex   *sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
}

func (gs *GameServer) Handler() http.Handler {
	return Cors(gs.config.AllowedOrigins, gs.router)
}

func NewGameServer(config Config, logger zerolog.Logger) *GameServer {
	if config.PingInterval <= 0 {
		config.PingInterval = 50 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())

	engine := nim.NewEngine(nim.WithLogger(logger))
	gs := &GameServer{
		manager:     websocket.NewManager(),
		upgrader:    websocket.DefaultUpgrader(config.AllowedOrigins),
		router:      chi.NewRouter(),
		logger:      logger,
		config:      config,
		connections: make(map[websocket.Client]*connection),
		connMutex:   &sync.Mutex{},
		ctx:         ctx,
		cancel:      cancel,
	}
	gs.broker = nim.NewSessionBroker(config.MaxConcurrentGames,
		nim.WithSessionTimeout(config.SessionTimeout),
		nim.WithCleanupInterval(config.CleanupInterval),
		nim.WithMonitorInterval(config.MonitorInterval),
		nim.WithReapHandler(gs.onReap),
		nim.WithEngine(engine),
		nim.WithBrokerLogger(logger),
	)
	return gs
}

// Start starts the session broker and the client manager and mounts routes.
func (gs *GameServer) Start() {
	gs.broker.Start()
	go gs.manager.Run(gs.ctx)
	gs.setupRoutes()
}

// Stop closes every connection and drops every session.
func (gs *GameServer) Stop() {
	gs.cancel()
	gs.broker.Stop()
}

func (gs *GameServer) setupRoutes() {
	gs.router.Use(middleware.RequestID)
	gs.router.Use(middleware.RealIP)
	gs.router.Use(RequestLogger(gs.logger))
	gs.router.Use(middleware.Recoverer)

	gs.router.Get("/api/ws", websocket.ServeWS(
		gs.upgrader,
		websocket.DefaultSetupConn,
		websocket.NewClient,
		gs.onCreate,
		gs.onDestroy,
		gs.config.PingInterval,
		[]websocket.MessageHandler{gs.onMessage},
	))
	gs.router.Get("/api/stats", gs.handleStats)
	gs.router.Get("/api/health", gs.handleHealth)
}

func (gs *GameServer) onCreate(ctx context.Context, cancel context.CancelFunc, c websocket.Client) {
	_ = c.SetLogger(gs.logger)
	conn := &connection{cancel: cancel}

	session, err := gs.broker.Open()
	if err != nil {
		gs.logger.Warn().Err(err).Msg("could not open session")
		gs.connMutex.Lock()
		gs.connections[c] = conn
		gs.connMutex.Unlock()
		_, _ = c.Write([]byte(err.Error() + "\n"))
		cancel()
		return
	}

	d := driver.New(session, c,
		driver.WithLogger(gs.logger.With().Str("session", session.ID).Logger()))
	conn.session = session
	conn.driver = d
	gs.connMutex.Lock()
	gs.connections[c] = conn
	gs.connMutex.Unlock()
	gs.manager.RegisterClient(ctx, cancel, c)

	if err := d.Start(); err != nil {
		gs.logger.Error().Err(err).Str("session", session.ID).Msg("could not start game")
		cancel()
	}
}

// onReap closes the connection playing a session the broker dropped for
// inactivity. Frames arriving after this are ignored.
func (gs *GameServer) onReap(session *nim.Session) {
	gs.connMutex.Lock()
	var (
		client websocket.Client
		conn   *connection
	)
	for c, candidate := range gs.connections {
		if candidate.session == session {
			client, conn = c, candidate
			conn.driver = nil
			break
		}
	}
	gs.connMutex.Unlock()
	if conn == nil {
		return
	}

	gs.logger.Info().Str("session", session.ID).Msg("closing expired game")
	_, _ = client.Write([]byte(MsgSessionExpired + "\n"))
	conn.cancel()
}

func (gs *GameServer) onMessage(c websocket.Client, payload []byte) {
	gs.connMutex.Lock()
	conn, ok := gs.connections[c]
	var d *driver.Driver
	if ok {
		d = conn.driver
	}
	gs.connMutex.Unlock()
	if d == nil {
		return
	}

	done, err := d.Handle(string(payload))
	if err != nil {
		gs.logger.Error().Err(err).Str("session", conn.session.ID).Msg("game aborted")
		conn.cancel()
		return
	}
	if done {
		conn.cancel()
	}
}

// onDestroy runs once per client goroutine. The first call tears the game
// down; it waits for both goroutines so queued lines are flushed before the
// connection is closed.
func (gs *GameServer) onDestroy(c websocket.Client) {
	gs.connMutex.Lock()
	conn, ok := gs.connections[c]
	delete(gs.connections, c)
	gs.connMutex.Unlock()
	if !ok {
		return
	}

	conn.cancel()
	c.Wait()
	gs.manager.UnregisterClient(c)
	_ = c.Close()

	if conn.session != nil {
		_ = gs.broker.Close(conn.session.ID)
	}
}

// ConnectionCount is the number of open game connections.
func (gs *GameServer) ConnectionCount() int {
	gs.connMutex.Lock()
	defer gs.connMutex.Unlock()
	return len(gs.connections)
}

func (gs *GameServer) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"activeGames":    gs.broker.ActiveCount(),
		"availableSlots": gs.broker.AvailableSlots(),
		"connections":    gs.ConnectionCount(),
		"timestamp":      time.Now().Unix(),
	})
}

var startTime = time.Now()

func (gs *GameServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(startTime).String(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// nolint:errcheck
	json.NewEncoder(w).Encode(v)
}
