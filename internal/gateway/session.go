package gateway

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"marketstream/internal/hub"
	"marketstream/internal/logger"
	"marketstream/internal/metrics"
	"marketstream/internal/types"
)

const maxMessageSize = 4096

// Session is one websocket connection. Quotes flow out through a bounded
// drop-oldest buffer so a blocked client can never stall the hub; control
// frames (acks, errors) take a separate small channel.
type Session struct {
	id   string
	conn *websocket.Conn
	hub  *hub.Hub

	send chan []byte
	ctrl chan []byte
	done chan struct{}

	writeWait  time.Duration
	pongWait   time.Duration
	pingPeriod time.Duration

	closeOnce sync.Once
}

var _ hub.Session = (*Session)(nil)

func (s *Session) ID() string { return s.id }

// Deliver enqueues a quote for this session. When the buffer is full the
// oldest pending quote is evicted in favor of the newest; delivery order
// stays monotonic because eviction is always from the front.
func (s *Session) Deliver(q types.Quote) {
	select {
	case <-s.done:
		return
	default:
	}

	b, err := json.Marshal(q)
	if err != nil {
		return
	}

	// Evict from the front until the new quote lands; another producer may
	// refill the freed slot in between, so a single retry is not enough.
	for {
		select {
		case <-s.done:
			return
		case s.send <- b:
			return
		default:
		}
		select {
		case <-s.send:
			metrics.QuotesDroppedBackpressure.Inc()
		default:
		}
	}
}

func (s *Session) sendControl(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case s.ctrl <- b:
	default:
	}
}

func (s *Session) run(ctx context.Context) {
	metrics.ActiveSessions.Inc()
	go s.writePump()
	s.readPump(ctx)
}

// readPump consumes control messages until the connection dies. Connection
// loss is a normal event, logged at debug, never an error condition.
func (s *Session) readPump(ctx context.Context) {
	defer func() {
		s.close()
		s.hub.SessionDisconnected(ctx, s.id)
		metrics.ActiveSessions.Dec()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.pongWait))
	})

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			logger.Debug(ctx, "Session read ended", "session", s.id, "error", err)
			return
		}

		var msg ControlMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			s.sendControl(ErrorFrame{Type: "error", Message: "invalid JSON"})
			continue
		}
		s.handleControl(ctx, msg)
	}
}

func (s *Session) handleControl(ctx context.Context, msg ControlMessage) {
	symbols := make([]string, 0, len(msg.Symbols))
	for _, sym := range msg.Symbols {
		if sym = strings.ToUpper(strings.TrimSpace(sym)); sym != "" {
			symbols = append(symbols, sym)
		}
	}
	if len(symbols) == 0 {
		s.sendControl(ErrorFrame{Type: "error", Message: "no symbols provided"})
		return
	}

	switch msg.Action {
	case ActionSubscribe:
		for _, sym := range symbols {
			s.hub.Subscribe(ctx, s, sym)
		}
		s.sendControl(AckFrame{Type: "ack", Action: ActionSubscribe, Symbols: symbols})
	case ActionUnsubscribe:
		for _, sym := range symbols {
			s.hub.Unsubscribe(ctx, s.id, sym)
		}
		s.sendControl(AckFrame{Type: "ack", Action: ActionUnsubscribe, Symbols: symbols})
	default:
		s.sendControl(ErrorFrame{Type: "error", Message: "unknown action: " + msg.Action})
	}
}

// writePump owns all writes to the connection: buffered quotes, control
// frames, keepalive pings.
func (s *Session) writePump() {
	ticker := time.NewTicker(s.pingPeriod)
	defer func() {
		ticker.Stop()
		s.close()
	}()

	for {
		select {
		case <-s.done:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage, nil)
			return
		case b := <-s.ctrl:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case b := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// close tears the session down; buffered quotes are discarded.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}
