package feed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xtrntr/ccx/internal/exchange"
	"github.com/xtrntr/ccx/internal/models"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readState(t *testing.T, conn *websocket.Conn) models.BookState {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var state models.BookState
	require.NoError(t, json.Unmarshal(data, &state))
	return state
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.Len() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_SendsSnapshotOnConnectAndBroadcast(t *testing.T) {
	e := exchange.NewEngine(exchange.DefaultConfig())
	require.NoError(t, e.SeedMarket(exchange.MarketMakerID, exchange.DefaultBids(), exchange.DefaultAsks()))

	hub := NewHub(func() (models.BookState, error) { return e.BookState(3) }, nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv)
	initial := readState(t, conn)
	assert.Len(t, initial.Bids, 3)
	assert.Len(t, initial.Asks, 3)
	waitForClients(t, hub, 1)

	_, err := e.PlaceOrder(models.SideBuy, decimal.RequireFromString("10.05"), decimal.RequireFromString("400"), "bob")
	require.NoError(t, err)

	hub.Broadcast()
	next := readState(t, conn)
	assert.True(t, next.BestAsk.Equal(decimal.RequireFromString("10.10")))
	assert.True(t, next.LastPrice.Equal(decimal.RequireFromString("10.05")))
}

func TestHub_DropsDisconnectedClients(t *testing.T) {
	hub := NewHub(func() (models.BookState, error) { return models.BookState{}, nil }, nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv)
	readState(t, conn)
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)
}

func TestHub_SkipsBroadcastOnSourceError(t *testing.T) {
	var fail atomic.Bool
	hub := NewHub(func() (models.BookState, error) {
		if fail.Load() {
			return models.BookState{}, errors.New("boom")
		}
		return models.BookState{}, nil
	}, nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv)
	readState(t, conn)
	waitForClients(t, hub, 1)

	fail.Store(true)
	hub.Broadcast()
	assert.Equal(t, 1, hub.Len(), "a failed snapshot must not disconnect clients")
}

func TestHub_RunClosesClientsOnShutdown(t *testing.T) {
	hub := NewHub(func() (models.BookState, error) { return models.BookState{}, nil }, nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv)
	readState(t, conn)
	waitForClients(t, hub, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx, 20*time.Millisecond)
		close(done)
	}()

	// at least one tick reaches the client
	readState(t, conn)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, 0, hub.Len())
}
