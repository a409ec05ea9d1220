package ws

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/cwrk-planet/board-service/internal/identity"
)

var (
	ErrConnClosed   = errors.New("connection closed")
	ErrSlowConsumer = errors.New("send queue full")
)

type ServerConfig struct {
	PingInterval   time.Duration
	WriteWait      time.Duration
	ReadLimit      int64
	SendBuffer     int
	AllowedOrigins []string // пусто — любой origin
}

func (c *ServerConfig) defaults() {
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 1 << 20
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 256
	}
}

type Server struct {
	upgrader websocket.Upgrader
	gateway  *Gateway
	ids      *identity.Resolver
	cfg      ServerConfig

	mu      sync.Mutex
	conns   map[string]*wsConn
	closing bool

	wg sync.WaitGroup
}

func NewServer(gw *Gateway, ids *identity.Resolver, cfg ServerConfig) *Server {
	cfg.defaults()
	s := &Server{
		gateway: gw,
		ids:     ids,
		cfg:     cfg,
		conns:   make(map[string]*wsConn),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || slices.Contains(s.cfg.AllowedOrigins, origin)
}

// WS endpoint: GET /ws?token=... (или cookie userId)
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	ident, err := s.ids.Resolve(r)
	if err != nil {
		slog.Warn("ws identity rejected", "remote", r.RemoteAddr, "err", err)
		http.Error(w, "invalid identity token", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade уже ответил клиенту
		slog.Warn("ws upgrade failed", "err", err)
		return
	}

	c := newWsConn(conn, uuid.NewString(), s.cfg.SendBuffer)
	if !s.track(c) {
		_ = c.Close()
		return
	}
	defer s.untrack(c)
	cl := s.gateway.Connect(c, ident)
	slog.Debug("ws connected", "conn", c.ID(), "user", ident, "remote", r.RemoteAddr)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.writeLoop(c)
	}()
	s.readLoop(cl, c)

	s.gateway.Disconnect(cl)
	if err := c.Close(); err != nil {
		slog.Debug("ws close failed", "conn", c.ID(), "err", err)
	}
	slog.Debug("ws disconnected", "conn", c.ID(), "user", ident)
}

func (s *Server) track(c *wsConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[c.ID()] = c
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(c *wsConn) {
	s.mu.Lock()
	delete(s.conns, c.ID())
	s.mu.Unlock()
	s.wg.Done()
}

// Shutdown closes every open connection and waits until their handlers
// have finished disconnecting.
// http.Server.Shutdown does not touch hijacked connections.
func (s *Server) Shutdown() {
	s.mu.Lock()
	s.closing = true
	conns := make([]*wsConn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
			time.Now().Add(s.cfg.WriteWait))
		_ = c.Close()
	}
	s.wg.Wait()
	slog.Info("ws connections closed", "count", len(conns))
}

func (s *Server) readLoop(cl *Client, c *wsConn) {
	pongWait := 2 * s.cfg.PingInterval

	c.conn.SetReadLimit(s.cfg.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		typ, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("ws read failed", "conn", c.ID(), "err", err)
			}
			return
		}
		if typ != websocket.TextMessage {
			continue
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		s.dispatch(cl, data)
	}
}

func (s *Server) dispatch(cl *Client, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("ws handler panic", "conn", cl.ID(), "panic", r)
		}
	}()
	s.gateway.Handle(cl, data)
}

func (s *Server) writeLoop(c *wsConn) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case b := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				slog.Debug("ws write failed", "conn", c.ID(), "err", err)
				_ = c.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.WriteWait)); err != nil {
				_ = c.Close()
				return
			}
		case <-c.closed:
			return
		}
	}
}

// --- connection ---

type wsConn struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	closed chan struct{}
	once   sync.Once
}

func newWsConn(c *websocket.Conn, id string, buffer int) *wsConn {
	return &wsConn{
		id:     id,
		conn:   c,
		send:   make(chan []byte, buffer),
		closed: make(chan struct{}),
	}
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) Send(msg Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case <-c.closed:
		return ErrConnClosed
	default:
	}
	select {
	case c.send <- b:
		return nil
	default:
		return ErrSlowConsumer
	}
}

func (c *wsConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}
