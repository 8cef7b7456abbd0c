// Package websocket carries line-oriented game traffic over gorilla/websocket
// connections. Every text frame is one line.
//
// Author: Jon Brown
// Date: Mar 30, 2024
// URL: https://github.com/brojonat/websocket
package websocket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var ErrClientClosed = errors.New("websocket client closed")

// DefaultSetupConn limits frame size and keeps the read deadline moving with
// every pong.
func DefaultSetupConn(c *websocket.Conn) {
	pw := 60 * time.Second
	c.SetReadLimit(512)
	_ = c.SetReadDeadline(time.Now().Add(pw))
	c.SetPongHandler(func(string) error {
		_ = c.SetReadDeadline(time.Now().Add(pw))
		return nil
	})
}

// DefaultUpgrader accepts the listed origins. An origin of "*" accepts all.
func DefaultUpgrader(origins []string) websocket.Upgrader {
	upgrader := websocket.Upgrader{
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		HandshakeTimeout:  0,
		WriteBufferPool:   nil,
		Subprotocols:      nil,
		Error:             nil,
		CheckOrigin:       nil,
		EnableCompression: false,
	}
	upgrader.CheckOrigin = func(r *http.Request) bool {
		if slices.Contains(origins, "*") {
			return true
		}
		origin := r.Header.Get("Origin")
		// non-browser clients send no origin
		return origin == "" || slices.Contains(origins, origin)
	}
	return upgrader
}

// Client is the middleman between a game and one websocket connection.
type Client interface {
	io.Writer
	io.Closer

	// WriteForever writes queued lines and regularly spaced pings.
	WriteForever(context.Context, func(Client), time.Duration)

	// ReadForever passes every received frame to the message handlers.
	ReadForever(context.Context, func(Client), ...MessageHandler)

	SetLogger(any) error
	Log(zerolog.Level, string, ...any)

	// Wait blocks until the client is done processing messages
	Wait()
}

type MessageHandler func(Client, []byte)

// ServeWS upgrades HTTP connections to WebSocket, creates the Client, calls the
// onCreate callback, and starts goroutines that handle reading (writing)
// from (to) the client.
func ServeWS(
	// upgrader upgrades the connection
	upgrader websocket.Upgrader,
	// connSetup configures the upgraded connection
	connSetup func(*websocket.Conn),
	// clientFactory wraps the connection in a Client
	clientFactory func(*websocket.Conn) Client,
	// onCreate is called once the Client exists, before any frame is read
	onCreate func(context.Context, context.CancelFunc, Client),
	// onDestroy is called after the connection is done
	onDestroy func(Client),
	// ping is the interval between ping frames
	ping time.Duration,
	// msgHandlers handle frames received from the client
	msgHandlers []MessageHandler,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// if Upgrade fails it closes the connection, so just return
			return
		}
		connSetup(conn)
		client := clientFactory(conn)
		ctx, cf := context.WithCancel(context.Background())
		onCreate(ctx, cf, client)

		// all writes happen in this goroutine
		go client.WriteForever(ctx, onDestroy, ping)

		// all reads happen in this goroutine
		go client.ReadForever(ctx, onDestroy, msgHandlers...)
	}
}

type client struct {
	wg        *sync.WaitGroup
	conn      *websocket.Conn
	egress    chan []byte
	done      chan struct{}
	closeOnce *sync.Once
	logger    zerolog.Logger
}

// NewClient returns a new Client from a *websocket.Conn. This can be passed to
// ServeWS as the client factory arg.
func NewClient(c *websocket.Conn) Client {
	// add 2 to the wait group for the read/write goroutines
	wg := &sync.WaitGroup{}
	wg.Add(2)
	return &client{
		wg:        wg,
		conn:      c,
		egress:    make(chan []byte, 32),
		done:      make(chan struct{}),
		closeOnce: &sync.Once{},
		logger:    zerolog.Nop(),
	}
}

// Write queues one frame. It fails once the writer has shut down.
func (c *client) Write(p []byte) (int, error) {
	msg := make([]byte, len(p))
	copy(msg, p)
	select {
	case <-c.done:
		return 0, ErrClientClosed
	default:
	}
	select {
	case c.egress <- msg:
		return len(p), nil
	case <-c.done:
		return 0, ErrClientClosed
	}
}

// Close sends a close frame and closes the connection. Calling it more than
// once is harmless.
func (c *client) Close() error {
	c.shutdown()
	_ = c.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(time.Second))
	_ = c.conn.Close()
	return nil
}

func (c *client) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// WriteForever serially writes queued frames, so every write to the
// connection happens here. On cancellation the queue is flushed before the
// close frame.
func (c *client) WriteForever(ctx context.Context, onDestroy func(Client), ping time.Duration) {
	pingTicker := time.NewTicker(ping)
	defer func() {
		c.shutdown()
		c.wg.Done()
		pingTicker.Stop()
		onDestroy(c)
	}()

	for {
		select {
		case <-ctx.Done():
			c.flush()
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-c.done:
			return
		case msgBytes := <-c.egress:
			if err := c.conn.WriteMessage(websocket.TextMessage, msgBytes); err != nil {
				c.Log(zerolog.ErrorLevel, "error writing message", "error", err.Error())
				return
			}
		case <-pingTicker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				c.Log(zerolog.ErrorLevel, "error writing ping", "error", err.Error())
				return
			}
		}
	}
}

func (c *client) flush() {
	for {
		select {
		case msgBytes := <-c.egress:
			if err := c.conn.WriteMessage(websocket.TextMessage, msgBytes); err != nil {
				return
			}
		default:
			return
		}
	}
}

// ReadForever serially processes frames from the client. Each frame is
// handed to every handler; the next frame is read once they all return.
func (c *client) ReadForever(ctx context.Context, onDestroy func(Client), handlers ...MessageHandler) {
	defer func() {
		c.wg.Done()
		onDestroy(c)
	}()

	ingress := make(chan []byte)
	errCancel := make(chan error, 1)

	go func() {
		for {
			_, payload, err := c.conn.ReadMessage()
			if err != nil {
				errCancel <- err
				return
			}
			select {
			case ingress <- payload:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			c.Log(zerolog.DebugLevel, "read loop cancelled, shutting down")
			return
		case err := <-errCancel:
			c.Log(zerolog.DebugLevel, "client connection closed in read loop")
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.Log(zerolog.WarnLevel, "read loop encountered error, shutting down", "error", err.Error())
			}
			return
		case payload := <-ingress:
			var wg sync.WaitGroup
			wg.Add(len(handlers))
			for _, h := range handlers {
				go func(h MessageHandler) {
					defer wg.Done()
					h(c, payload)
				}(h)
			}
			wg.Wait()
		}
	}
}

func (c *client) SetLogger(v any) error {
	switch l := v.(type) {
	case zerolog.Logger:
		c.logger = l
	case *zerolog.Logger:
		c.logger = *l
	default:
		return fmt.Errorf("bad logger value supplied")
	}
	return nil
}

func (c *client) Log(level zerolog.Level, s string, args ...any) {
	_, f, l, ok := runtime.Caller(1)
	if ok {
		args = append(args, "caller_source", fmt.Sprintf("%s %d", f, l))
	}
	c.logger.WithLevel(level).Fields(args).Msg(s)
}

// Wait blocks until the read/write goroutines have completed
func (c *client) Wait() {
	c.wg.Wait()
}

// Manager maintains a set of Clients.
type Manager interface {
	Clients() []Client
	RegisterClient(context.Context, context.CancelFunc, Client)
	UnregisterClient(Client)
	Run(context.Context)
}

type manager struct {
	mu         *sync.RWMutex
	clients    map[Client]context.CancelFunc
	register   chan regreq
	unregister chan regreq
	stopped    chan struct{}
}

type regreq struct {
	cancel context.CancelFunc
	client Client
	done   chan struct{}
}

func NewManager() Manager {
	return &manager{
		mu:         &sync.RWMutex{},
		clients:    make(map[Client]context.CancelFunc),
		register:   make(chan regreq),
		unregister: make(chan regreq),
		stopped:    make(chan struct{}),
	}
}

// Clients returns the currently managed Clients.
func (m *manager) Clients() []Client {
	res := []Client{}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for c := range m.clients {
		res = append(res, c)
	}
	return res
}

// RegisterClient adds the Client to the Manager's store. Once Run has
// returned the client is closed instead.
func (m *manager) RegisterClient(_ context.Context, cf context.CancelFunc, c Client) {
	done := make(chan struct{})
	select {
	case m.register <- regreq{cancel: cf, client: c, done: done}:
		<-done
	case <-m.stopped:
		cf()
		_ = c.Close()
	}
}

// UnregisterClient removes the Client from the Manager's store.
func (m *manager) UnregisterClient(c Client) {
	done := make(chan struct{})
	select {
	case m.unregister <- regreq{client: c, done: done}:
		<-done
	case <-m.stopped:
	}
}

// Run processes (un)registration requests until ctx is done, then closes
// every remaining client.
func (m *manager) Run(ctx context.Context) {
	cleanupClient := func(c Client) {
		cancel, ok := m.clients[c]
		if ok {
			cancel()
		}
		delete(m.clients, c)
		_ = c.Close()
	}

	for {
		select {
		case <-ctx.Done():
			m.mu.Lock()
			for client := range m.clients {
				cleanupClient(client)
			}
			m.mu.Unlock()
			close(m.stopped)
			return
		case rr := <-m.register:
			m.mu.Lock()
			m.clients[rr.client] = rr.cancel
			m.mu.Unlock()
			rr.done <- struct{}{}

		case rr := <-m.unregister:
			m.mu.Lock()
			if _, ok := m.clients[rr.client]; ok {
				cleanupClient(rr.client)
			}
			m.mu.Unlock()
			rr.done <- struct{}{}
		}
	}
}
