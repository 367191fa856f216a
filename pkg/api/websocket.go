package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/helixmarkets/helix/pkg/bus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS is enforced on the REST surface; the stream carries only
		// data the REST endpoints already serve.
		return true
	},
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// wsClient adapts one websocket connection to a bus session. The bus
// pump is the only caller of Send; writePump is the only goroutine that
// writes to the connection.
type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *wsClient) ID() string { return c.id }

// Send marshals the frame onto the writer queue. A full queue reports
// failure so the bus drops the session instead of stalling fan-out.
func (c *wsClient) Send(f bus.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return websocket.ErrCloseSent
	default:
		return errSlowConsumer
	}
}

var errSlowConsumer = &websocket.CloseError{Code: websocket.ClosePolicyViolation, Text: "slow consumer"}

func (c *wsClient) Close() {
	c.once.Do(func() { close(c.done) })
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Fold queued frames into the same write.
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

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// readPump consumes subscribe/unsubscribe requests until the connection
// drops. Runs on the upgrade handler's goroutine.
func (s *Server) readPump(c *wsClient) {
	defer c.conn.Close()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.log.Debugw("ws_read_error", "session", c.id, "err", err)
			}
			return
		}

		var req WSRequest
		if err := json.Unmarshal(message, &req); err != nil {
			s.log.Debugw("ws_bad_request", "session", c.id, "err", err)
			continue
		}
		switch req.Type {
		case "subscribe":
			for _, topic := range req.Channels {
				// Subscribe reports invalid topics to the session itself.
				s.bus.Subscribe(c.id, topic)
			}
		case "unsubscribe":
			for _, topic := range req.Channels {
				s.bus.Unsubscribe(c.id, topic)
			}
		default:
			s.log.Debugw("ws_unknown_type", "session", c.id, "type", req.Type)
		}
	}
}

// handleWebSocket upgrades the connection and attaches it to the bus.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debugw("ws_upgrade_failed", "err", err)
		return
	}

	c := &wsClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, 256),
		done: make(chan struct{}),
	}

	go c.writePump()
	s.bus.Attach(c)
	s.metrics.SessionsActive.Set(float64(s.bus.SessionCount()))

	s.readPump(c)

	s.bus.Detach(c.id)
	s.metrics.SessionsActive.Set(float64(s.bus.SessionCount()))
}
