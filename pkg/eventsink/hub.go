// Package eventsink содержит получатели событий трекера звонков:
// websocket рассылку, запись в лог и веер из нескольких получателей.
package eventsink

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arzzra/call_tracker/pkg/telecom"
)

const writeTimeout = 5 * time.Second

// Envelope сообщение, отправляемое websocket клиентам
type Envelope struct {
	Name string    `json:"name"`
	Data any       `json:"data"`
	Time time.Time `json:"time"`
}

// Hub рассылает события всем подключенным websocket клиентам.
//
// PostEvent не блокируется: у каждого клиента своя очередь, при ее
// переполнении событие для этого клиента отбрасывается.
type Hub struct {
	upgrader websocket.Upgrader
	buffer   int
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool

	dropped atomic.Uint64
}

var _ telecom.EventSink = (*Hub)(nil)

// HubOption настраивает Hub
type HubOption func(*Hub)

// WithClientBuffer размер очереди одного клиента
func WithClientBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithHubLogger задает логгер
func WithHubLogger(logger *slog.Logger) HubOption {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger.With(slog.String("component", "event_hub"))
		}
	}
}

// NewHub создает пустой Hub
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		buffer:  64,
		logger:  slog.Default().With(slog.String("component", "event_hub")),
		now:     time.Now,
		clients: make(map[*client]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// PostEvent реализует telecom.EventSink
func (h *Hub) PostEvent(name string, payload any) {
	data, err := json.Marshal(Envelope{Name: name, Data: payload, Time: h.now().UTC()})
	if err != nil {
		h.logger.Error("не удалось сериализовать событие",
			slog.String("event", name),
			slog.String("error", err.Error()))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.dropped.Add(1)
		}
	}
}

// ServeHTTP переводит соединение в websocket и отправляет в него события
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade error", slog.String("error", err.Error()))
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, h.buffer),
		done: make(chan struct{}),
	}
	if !h.add(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"),
			time.Now().Add(writeTimeout))
		c.close()
		return
	}
	defer h.remove(c)

	h.logger.Info("клиент событий подключен", slog.String("remote", r.RemoteAddr))

	// входящие сообщения не используются, читаем до закрытия
	go func() {
		defer c.close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-c.done:
			return
		case <-r.Context().Done():
			c.close()
			return
		case data := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.close()
				return
			}
		}
	}
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
	h.logger.Info("клиент событий отключен", slog.String("remote", c.conn.RemoteAddr().String()))
}

// Clients количество подключенных клиентов
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Dropped количество событий, отброшенных из-за переполненных очередей
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Close отключает всех клиентов. Новые подключения после Close отклоняются.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"),
			time.Now().Add(writeTimeout))
		c.close()
	}
	return nil
}
