package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/nftmarket/internal/cache/memory"
	"github.com/alanyoungcy/nftmarket/internal/domain"
)

func startHub(t *testing.T) (*Hub, *memory.SignalBus, *websocket.Conn) {
	t.Helper()
	bus := memory.NewSignalBus()
	hub := NewHub(bus, Config{Channel: "ch:market", Stream: "stream:market"}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = hub.Run(ctx) }()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	return hub, bus, conn
}

func publish(t *testing.T, bus *memory.SignalBus, typ domain.EventType) {
	t.Helper()
	payload, err := json.Marshal(domain.Event{ID: string(typ), Type: typ})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), "ch:market", payload))
	require.NoError(t, bus.StreamAppend(context.Background(), "stream:market", payload))
}

func readEvent(t *testing.T, conn *websocket.Conn) domain.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev domain.Event
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func TestHubRelaysEvents(t *testing.T) {
	_, bus, conn := startHub(t)

	publish(t, bus, domain.EventItemListed)
	assert.Equal(t, domain.EventItemListed, readEvent(t, conn).Type)
}

func TestHubFiltersByType(t *testing.T) {
	_, bus, conn := startHub(t)

	require.NoError(t, conn.WriteJSON(clientMsg{Action: "subscribe", Types: []domain.EventType{domain.EventItemSold}}))
	// The read pump applies the filter asynchronously.
	time.Sleep(50 * time.Millisecond)

	publish(t, bus, domain.EventItemListed)
	publish(t, bus, domain.EventItemSold)
	assert.Equal(t, domain.EventItemSold, readEvent(t, conn).Type)
}

func TestHubReplaysStream(t *testing.T) {
	_, bus, conn := startHub(t)

	publish(t, bus, domain.EventCollectionCreated)
	assert.Equal(t, domain.EventCollectionCreated, readEvent(t, conn).Type)

	require.NoError(t, conn.WriteJSON(clientMsg{Action: "replay", Since: "0"}))
	assert.Equal(t, domain.EventCollectionCreated, readEvent(t, conn).Type)
}
