// Package ws keeps websocket connections to browser extension clients. It
// carries their messages to a handler and pushes browser commands back:
// tab redirects, new tabs, notifications and block rules.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"phishguard/internal/domain"
)

var (
	ErrNoClient   = eris.New("ws: no connected client")
	ErrClientBusy = eris.New("ws: client send buffer full")
)

const (
	CommandHello       = "HELLO"
	CommandRedirect    = "REDIRECT"
	CommandOpenTab     = "OPEN_TAB"
	CommandNotify      = "NOTIFY"
	CommandInstallRule = "INSTALL_RULE"
)

const (
	sendBuffer   = 64
	readLimit    = 4 << 20
	writeTimeout = 10 * time.Second
)

// Handler answers one client message. client is the connection id.
type Handler func(ctx context.Context, client string, msg json.RawMessage) (any, error)

// Command is a server-initiated frame.
type Command struct {
	Command      string               `json:"command"`
	Client       string               `json:"client,omitempty"`
	TabID        int                  `json:"tabId,omitempty"`
	URL          string               `json:"url,omitempty"`
	Notification *domain.Notification `json:"notification,omitempty"`
	Rule         *domain.BlockRule    `json:"rule,omitempty"`
}

// Request is a client frame; the reply echoes ID.
type Request struct {
	ID      string          `json:"id"`
	Message json.RawMessage `json:"message"`
}

type Reply struct {
	ID       string `json:"id"`
	Response any    `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
}

type client struct {
	id   string
	conn *websocket.Conn

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *client) offer(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrNoClient
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrClientBusy
	}
}

type Hub struct {
	handler  Handler
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client
	closed  bool

	// conns tracks ServeHTTP calls so Close can wait out in-flight handlers.
	conns sync.WaitGroup
}

func NewHub(handler Handler) *Hub {
	return &Hub{
		handler: handler,
		upgrader: websocket.Upgrader{
			// extension origins are chrome-extension://<id>
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[string]*client),
	}
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.L().Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(readLimit)

	c := &client{id: uuid.NewString(), conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c.id] = c
	h.conns.Add(1)
	h.mu.Unlock()
	defer h.conns.Done()
	zap.L().Info("extension client connected", zap.String("client", c.id))

	go h.writeLoop(c)
	_ = h.enqueue(c, Command{Command: CommandHello, Client: c.id})

	var inflight sync.WaitGroup
	h.readLoop(r.Context(), c, &inflight)
	inflight.Wait()

	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()
	c.close()
	zap.L().Info("extension client disconnected", zap.String("client", c.id))
}

func (h *Hub) readLoop(ctx context.Context, c *client, inflight *sync.WaitGroup) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			_ = h.enqueue(c, Reply{Error: "invalid frame"})
			continue
		}
		inflight.Add(1)
		go func() {
			defer inflight.Done()
			reply := Reply{ID: req.ID}
			resp, err := h.handler(ctx, c.id, req.Message)
			if err != nil {
				reply.Error = err.Error()
			} else {
				reply.Response = resp
			}
			if err := h.enqueue(c, reply); err != nil {
				zap.L().Warn("websocket reply dropped", zap.String("client", c.id), zap.Error(err))
			}
		}()
	}
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for frame := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			zap.L().Debug("websocket write failed", zap.String("client", c.id), zap.Error(err))
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (h *Hub) enqueue(c *client, v any) error {
	frame, err := json.Marshal(v)
	if err != nil {
		return eris.Wrap(err, "ws: encode frame")
	}
	return c.offer(frame)
}

// targets resolves a client id, or every client when id is empty.
func (h *Hub) targets(id string) []*client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if id != "" {
		if c, ok := h.clients[id]; ok {
			return []*client{c}
		}
		return nil
	}
	out := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, c)
	}
	return out
}

func (h *Hub) push(id string, cmd Command) error {
	targets := h.targets(id)
	if len(targets) == 0 {
		return ErrNoClient
	}
	var firstErr error
	for _, c := range targets {
		if err := h.enqueue(c, cmd); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h *Hub) Redirect(_ context.Context, tab domain.Tab, target string) error {
	if tab.Client == "" {
		return ErrNoClient
	}
	return h.push(tab.Client, Command{Command: CommandRedirect, TabID: tab.ID, URL: target})
}

// OpenTab opens target in the given client, or in every client when the
// request did not come from one.
func (h *Hub) OpenTab(_ context.Context, client, target string) error {
	return h.push(client, Command{Command: CommandOpenTab, URL: target})
}

func (h *Hub) Notify(_ context.Context, client string, n domain.Notification) error {
	return h.push(client, Command{Command: CommandNotify, Notification: &n})
}

// InstallRule sends the rule to every connected client.
func (h *Hub) InstallRule(_ context.Context, rule domain.BlockRule) error {
	return h.push("", Command{Command: CommandInstallRule, Rule: &rule})
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client, refuses new ones and returns once every
// connection and its in-flight handler calls have finished.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	for _, c := range h.targets("") {
		_ = c.conn.Close()
	}
	h.conns.Wait()
}
