package websocket_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gwebsocket "github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tkahng/nim/websocket"
)

type harness struct {
	manager   websocket.Manager
	server    *httptest.Server
	doneReg   chan websocket.Client
	doneUnreg chan websocket.Client
	cancels   map[websocket.Client]context.CancelFunc
	mu        sync.Mutex
}

func newHarness(t *testing.T, handler websocket.MessageHandler) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := &harness{
		manager:   websocket.NewManager(),
		doneReg:   make(chan websocket.Client, 1),
		doneUnreg: make(chan websocket.Client, 1),
		cancels:   map[websocket.Client]context.CancelFunc{},
	}
	go h.manager.Run(ctx)

	var once sync.Once
	h.server = httptest.NewServer(websocket.ServeWS(
		websocket.DefaultUpgrader([]string{"*"}),
		websocket.DefaultSetupConn,
		websocket.NewClient,
		func(ctx context.Context, cf context.CancelFunc, c websocket.Client) {
			require.NoError(t, c.SetLogger(zerolog.Nop()))
			h.mu.Lock()
			h.cancels[c] = cf
			h.mu.Unlock()
			h.manager.RegisterClient(ctx, cf, c)
			h.doneReg <- c
		},
		func(c websocket.Client) {
			once.Do(func() {
				h.mu.Lock()
				cf := h.cancels[c]
				h.mu.Unlock()
				cf()
				c.Wait()
				h.manager.UnregisterClient(c)
				h.doneUnreg <- c
			})
		},
		50*time.Second,
		[]websocket.MessageHandler{handler},
	))
	t.Cleanup(h.server.Close)
	return h
}

func (h *harness) dial(t *testing.T) *gwebsocket.Conn {
	t.Helper()
	rawWS, _, err := gwebsocket.DefaultDialer.Dial(
		"ws"+strings.TrimPrefix(h.server.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rawWS.Close() })
	return rawWS
}

func TestWSHandler(t *testing.T) {
	testBytes := []byte("testing")
	h := newHarness(t, func(c websocket.Client, b []byte) { _, _ = c.Write(b) })
	rawWS := h.dial(t)

	// once registration is done, the manager should have one client
	c := <-h.doneReg
	assert.Len(t, h.manager.Clients(), 1)

	// write a message to the server; this will be echoed back
	require.NoError(t, rawWS.WriteMessage(gwebsocket.TextMessage, testBytes))
	_, msg, err := rawWS.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, testBytes, msg)

	// closing the connection unregisters the client
	_ = rawWS.WriteControl(gwebsocket.CloseMessage, nil, time.Now().Add(1*time.Second))
	select {
	case got := <-h.doneUnreg:
		assert.Equal(t, c, got)
	case <-time.After(5 * time.Second):
		t.Fatal("client was not unregistered")
	}
	assert.Empty(t, h.manager.Clients())

	_, err = c.Write([]byte("late"))
	assert.ErrorIs(t, err, websocket.ErrClientClosed)
}

func TestWSHandler_FlushesBeforeClose(t *testing.T) {
	var h *harness
	h = newHarness(t, func(c websocket.Client, b []byte) {
		for _, line := range []string{"one", "two", "three"} {
			_, _ = c.Write([]byte(line))
		}
		h.mu.Lock()
		cf := h.cancels[c]
		h.mu.Unlock()
		cf()
	})
	rawWS := h.dial(t)
	<-h.doneReg

	require.NoError(t, rawWS.WriteMessage(gwebsocket.TextMessage, []byte("go")))
	var got []string
	for {
		_, msg, err := rawWS.ReadMessage()
		if err != nil {
			assert.True(t, gwebsocket.IsCloseError(err, gwebsocket.CloseNormalClosure), "unexpected error %v", err)
			break
		}
		got = append(got, string(msg))
	}
	assert.Equal(t, []string{"one", "two", "three"}, got)
}
