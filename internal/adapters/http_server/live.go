package httpserver

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"review_pulse/internal/alerts"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512

	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// liveSession pumps alert view updates to one websocket client.
type liveSession struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newLiveSession(conn *websocket.Conn) *liveSession {
	return &liveSession{conn: conn, send: make(chan []byte, sendBuffer), done: make(chan struct{})}
}

func (s *liveSession) close() { s.once.Do(func() { close(s.done) }) }

// push queues an update. A client that cannot keep up is disconnected rather
// than allowed to stall the view.
func (s *liveSession) push(u alerts.Update) {
	b, err := json.Marshal(u)
	if err != nil {
		log.Error().Err(err).Str("type", u.Type).Msg("encode live update failed")
		return
	}
	select {
	case <-s.done:
	case s.send <- b:
	default:
		log.Warn().Str("remote", s.conn.RemoteAddr().String()).Msg("live alert client too slow; closing")
		s.close()
	}
}

// liveAlerts serves GET /v1/alerts/live. Each connection owns one alert view:
// connecting activates it and disconnecting deactivates it.
func (h *Handlers) liveAlerts(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	s := newLiveSession(conn)
	view := alerts.NewView(h.Alerts, h.Events, s.push)

	writeDone, readDone := make(chan struct{}), make(chan struct{})
	go func() { defer close(writeDone); s.writePump() }()
	go func() { defer close(readDone); s.readPump() }()

	if err := view.Activate(r.Context()); err != nil {
		log.Error().Err(err).Msg("alert view activation failed")
		s.close()
	}

	<-s.done
	view.Deactivate()
	// the close frame goes out before the socket is torn down
	<-writeDone
	_ = conn.Close()
	<-readDone
	log.Debug().Str("remote", remoteIP(r)).Msg("live alert session closed")
}

// readPump only services control frames; client messages are ignored.
func (s *liveSession) readPump() {
	defer s.close()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("websocket connection error")
			}
			return
		}
	}
}

func (s *liveSession) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case message := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.close()
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.close()
				return
			}
		}
	}
}
