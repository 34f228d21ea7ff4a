package gateway

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"signal-enginev1/internal/model"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second

	snapshotTimeout = 3 * time.Second
)

// Client represents a single WebSocket peer.
type Client struct {
	conn    *websocket.Conn
	send    chan []byte
	hub     *Hub
	dropped int64
}

func (c *Client) noteDrop() { atomic.AddInt64(&c.dropped, 1) }

// Dropped returns how many events this client's full buffer discarded.
func (c *Client) Dropped() int64 { return atomic.LoadInt64(&c.dropped) }

// encodeEvent hand-crafts the envelope JSON around the already-marshalled
// payload, avoiding a second json.Marshal on the fan-out path.
func encodeEvent(e model.Event) ([]byte, error) {
	payload := e.Payload
	if len(payload) == 0 {
		payload = []byte("null")
	}

	buf := make([]byte, 0, len(payload)+96)
	buf = append(buf, `{"type":"`...)
	buf = append(buf, e.Type...)
	buf = append(buf, `","payload":`...)
	buf = append(buf, payload...)
	buf = append(buf, `,"ts":"`...)
	buf = e.TS.UTC().AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, e.Seq, 10)
	buf = append(buf, '}')
	return buf, nil
}

// sendWelcome pushes the welcome event and, when a signal source is
// wired, a snapshot of current active signals. Future events follow;
// nothing older is ever replayed.
func (c *Client) sendWelcome() {
	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()

	welcome := map[string]interface{}{
		"message": "connected to signal stream",
	}
	if c.hub.signals != nil {
		if signals, err := c.hub.signals.ActiveSignals(ctx, time.Now().UTC()); err == nil {
			welcome["active_signals"] = signals
		} else {
			log.Printf("[gateway] welcome snapshot unavailable: %v", err)
		}
	}

	buf, err := encodeEvent(model.NewEvent(model.EventWelcome, welcome))
	if err != nil {
		return
	}
	c.hub.trySend(c, buf)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			// Write coalescing: batch queued events into one frame with
			// newline separators.
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		log.Println("[gateway] ws client disconnected")
	}()

	c.conn.SetReadLimit(1024)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			break
		}

		// Application-level ping for browser clients that cannot send
		// protocol pings.
		var base struct {
			Ping int64 `json:"ping"`
		}
		if json.Unmarshal(msg, &base) != nil || base.Ping == 0 {
			continue
		}
		pong, _ := json.Marshal(map[string]interface{}{
			"type":      "pong",
			"ping":      base.Ping,
			"server_ts": time.Now().UnixMilli(),
		})
		c.hub.trySend(c, pong)
	}
}
