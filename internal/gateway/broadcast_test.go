package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-enginev1/internal/model"
)

type staticSignals struct {
	signals []model.Signal
}

func (s *staticSignals) ActiveSignals(ctx context.Context, now time.Time) ([]model.Signal, error) {
	return s.signals, nil
}

func wsServer(t *testing.T, h *Hub) (*httptest.Server, string) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWS))
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	return srv, wsURL
}

func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	return conn
}

// readEvents reads one frame and splits coalesced events.
func readEvents(t *testing.T, conn *websocket.Conn) []model.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)

	var events []model.Event
	for _, line := range strings.Split(string(frame), "\n") {
		var e model.Event
		require.NoError(t, json.Unmarshal([]byte(line), &e))
		events = append(events, e)
	}
	return events
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.ClientCount() == n },
		2*time.Second, 5*time.Millisecond)
}

func TestWelcomeCarriesActiveSignals(t *testing.T) {
	src := &staticSignals{signals: []model.Signal{{Symbol: "BTCUSDT", Confidence: 73}}}
	h := NewHub(src, nil)
	srv, wsURL := wsServer(t, h)
	defer srv.Close()

	conn := dial(t, wsURL)
	defer conn.Close()

	events := readEvents(t, conn)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventWelcome, events[0].Type)

	var payload struct {
		ActiveSignals []model.Signal `json:"active_signals"`
	}
	require.NoError(t, json.Unmarshal(events[0].Payload, &payload))
	require.Len(t, payload.ActiveSignals, 1)
	assert.Equal(t, "BTCUSDT", payload.ActiveSignals[0].Symbol)
}

func TestPublishReachesAllClients(t *testing.T) {
	h := NewHub(nil, nil)
	srv, wsURL := wsServer(t, h)
	defer srv.Close()

	c1 := dial(t, wsURL)
	defer c1.Close()
	c2 := dial(t, wsURL)
	defer c2.Close()
	waitForClients(t, h, 2)

	// Drain welcomes.
	readEvents(t, c1)
	readEvents(t, c2)

	h.Publish(model.NewEvent(model.EventNewSignal, map[string]string{"symbol": "BTCUSDT"}))

	for _, conn := range []*websocket.Conn{c1, c2} {
		events := readEvents(t, conn)
		require.Len(t, events, 1)
		assert.Equal(t, model.EventNewSignal, events[0].Type)
		assert.Positive(t, events[0].Seq)
	}
}

func TestSequenceNumbersAreMonotonic(t *testing.T) {
	h := NewHub(nil, nil)
	srv, wsURL := wsServer(t, h)
	defer srv.Close()

	conn := dial(t, wsURL)
	defer conn.Close()
	waitForClients(t, h, 1)
	readEvents(t, conn)

	for i := 0; i < 3; i++ {
		h.Publish(model.NewEvent(model.EventHeartbeat, nil))
	}

	var seqs []int64
	for len(seqs) < 3 {
		for _, e := range readEvents(t, conn) {
			seqs = append(seqs, e.Seq)
		}
	}
	for i := 1; i < len(seqs); i++ {
		assert.Greater(t, seqs[i], seqs[i-1])
	}
}

// TestReconnectGetsNoReplay: events published while disconnected are
// gone; a rejoining client sees only the welcome and future events.
func TestReconnectGetsNoReplay(t *testing.T) {
	h := NewHub(nil, nil)
	srv, wsURL := wsServer(t, h)
	defer srv.Close()

	first := dial(t, wsURL)
	waitForClients(t, h, 1)
	readEvents(t, first)
	h.Publish(model.NewEvent(model.EventNewSignal, map[string]string{"symbol": "OLD"}))
	readEvents(t, first)
	first.Close()
	waitForClients(t, h, 0)

	// Published while nobody is listening.
	h.Publish(model.NewEvent(model.EventNewSignal, map[string]string{"symbol": "MISSED"}))

	second := dial(t, wsURL)
	defer second.Close()
	waitForClients(t, h, 1)

	events := readEvents(t, second)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventWelcome, events[0].Type)

	h.Publish(model.NewEvent(model.EventNewSignal, map[string]string{"symbol": "FRESH"}))
	events = readEvents(t, second)
	require.Len(t, events, 1)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(events[0].Payload, &payload))
	assert.Equal(t, "FRESH", payload["symbol"], "no replay of the missed event")
}

// TestSlowClientNeverBlocksPublish: a peer that stops reading fills its
// buffer; Publish keeps returning promptly and other clients keep
// receiving.
func TestSlowClientNeverBlocksPublish(t *testing.T) {
	h := NewHub(nil, nil)
	srv, wsURL := wsServer(t, h)
	defer srv.Close()

	slow := dial(t, wsURL)
	defer slow.Close()
	fast := dial(t, wsURL)
	defer fast.Close()
	waitForClients(t, h, 2)
	readEvents(t, fast)

	done := make(chan struct{})
	go func() {
		// Far more events than the 64-slot buffer; the slow client is
		// never read from.
		for i := 0; i < 500; i++ {
			h.Publish(model.NewEvent(model.EventHeartbeat, map[string]int{"n": i}))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Publish blocked on a slow client")
	}

	// The fast client still receives events.
	events := readEvents(t, fast)
	assert.NotEmpty(t, events)
}

// TestClientSendNeverHitsClosedChannel: a per-client writer (pong,
// welcome) racing shutdown drops the message instead of sending on a
// closed channel.
func TestClientSendNeverHitsClosedChannel(t *testing.T) {
	h := NewHub(nil, nil)
	c := &Client{send: make(chan []byte, 1), hub: h}
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			h.trySend(c, []byte(`{"type":"pong"}`))
			select {
			case <-c.send:
			default:
			}
		}
	}()

	time.Sleep(time.Millisecond)
	h.Close()
	<-done

	assert.False(t, h.trySend(c, []byte("x")), "removed client must be rejected")
}

func TestCloseDisconnectsClients(t *testing.T) {
	h := NewHub(nil, nil)
	srv, wsURL := wsServer(t, h)
	defer srv.Close()

	conn := dial(t, wsURL)
	defer conn.Close()
	waitForClients(t, h, 1)

	h.Close()
	assert.Equal(t, 0, h.ClientCount())

	// Publishing after Close must not panic.
	h.Publish(model.NewEvent(model.EventHeartbeat, nil))
}
