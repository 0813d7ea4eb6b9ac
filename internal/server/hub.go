package server

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const subscriberWriteTimeout = 2 * time.Second

type subscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *subscriber) write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(subscriberWriteTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// hub fans level events out to websocket subscribers.
type hub struct {
	logger   *log.Logger
	upgrader websocket.Upgrader

	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
}

func newHub(logger *log.Logger) *hub {
	return &hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		subscribers: make(map[*subscriber]struct{}),
	}
}

// serve upgrades the request, writes the initial snapshot and blocks until
// the peer disconnects. Inbound messages are ignored.
func (h *hub) serve(w http.ResponseWriter, r *http.Request, snapshot func() ([]byte, error)) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("websocket upgrade from %s: %v", r.RemoteAddr, err)
		return
	}
	sub := &subscriber{conn: conn}

	data, err := snapshot()
	if err != nil {
		h.logger.Printf("marshal initial status: %v", err)
		conn.Close()
		return
	}
	if err := sub.write(data); err != nil {
		conn.Close()
		return
	}

	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	h.mu.Unlock()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.remove(sub)
			return
		}
	}
}

func (h *hub) remove(sub *subscriber) {
	h.mu.Lock()
	_, ok := h.subscribers[sub]
	delete(h.subscribers, sub)
	h.mu.Unlock()
	if ok {
		sub.conn.Close()
	}
}

func (h *hub) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// broadcast writes data to every subscriber and drops the ones that fail.
func (h *hub) broadcast(data []byte) {
	h.mu.Lock()
	subs := make([]*subscriber, 0, len(h.subscribers))
	for sub := range h.subscribers {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		if err := sub.write(data); err != nil {
			h.logger.Printf("dropping websocket subscriber %s: %v", sub.conn.RemoteAddr(), err)
			h.remove(sub)
		}
	}
}

func (h *hub) close() {
	h.mu.Lock()
	subs := h.subscribers
	h.subscribers = make(map[*subscriber]struct{})
	h.mu.Unlock()

	for sub := range subs {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		sub.mu.Lock()
		_ = sub.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		sub.mu.Unlock()
		sub.conn.Close()
	}
}
