package gateway

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// generous headroom over the configured max message length
	maxFrameSize = 16 * 1024

	sendBuffer = 256
)

// Session is one authenticated connection. Its read pump handles inbound
// events strictly in arrival order; delivery happens through the buffered
// send channel drained by the write pump.
type Session struct {
	gw        *Gateway
	conn      *websocket.Conn
	userID    string
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	createdAt time.Time
	logger    *slog.Logger
}

func newSession(gw *Gateway, conn *websocket.Conn, userID string, logger *slog.Logger) *Session {
	return &Session{
		gw:        gw,
		conn:      conn,
		userID:    userID,
		send:      make(chan []byte, sendBuffer),
		done:      make(chan struct{}),
		createdAt: time.Now(),
		logger:    logger,
	}
}

// UserID returns the identity bound at handshake; immutable for the
// session's lifetime.
func (s *Session) UserID() string { return s.userID }

// enqueue hands an encoded event to the write pump. A session whose buffer
// is full is too far behind to catch up and is forced closed.
func (s *Session) enqueue(data []byte) {
	select {
	case s.send <- data:
	case <-s.done:
	default:
		s.logger.Warn("dropping slow session", slog.String("userID", s.userID))
		s.close()
	}
}

// close tears down the transport. The read pump notices the closed
// connection and runs the disconnect path exactly once.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.conn != nil {
			s.conn.Close()
		}
	})
}

// readPump dispatches inbound events one at a time until the transport
// closes, then runs the unconditional teardown: unsubscribe everywhere and
// decrement presence.
func (s *Session) readPump() {
	defer func() {
		s.gw.handleDisconnect(s)
		s.close()
	}()

	s.conn.SetReadLimit(maxFrameSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("session read failed", slog.Any("error", err))
			}
			return
		}
		s.gw.dispatch(s, raw)
	}
}

// writePump drains the send channel onto the wire and keeps the connection
// alive with pings.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.close()
	}()

	for {
		select {
		case data := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
