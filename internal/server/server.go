package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/safedit/host/internal/auth"
	"github.com/safedit/host/internal/backup"
	"github.com/safedit/host/internal/edit"
	"github.com/safedit/host/internal/fsops"
	"github.com/safedit/host/internal/storage"
	"github.com/safedit/host/internal/workspace"
)

// channelBufferSize is the per-client send buffer. A slow client can fall
// this far behind before results are dropped.
const channelBufferSize = 256

// AuditRecorder persists an audit trail of mutating operations.
// Implemented by storage.SQLiteStore; nil disables auditing.
type AuditRecorder interface {
	SaveEditAudit(entry *storage.EditAuditEntry) error
}

// Server manages WebSocket connections and routes request messages to the
// edit engine, backup store, and workspace guard. Every request receives a
// result message on the same connection; slow clients never block others.
type Server struct {
	// addr is the address to listen on (e.g., "127.0.0.1:7171")
	addr string

	// upgrader converts HTTP connections to WebSocket connections.
	upgrader websocket.Upgrader

	// clients tracks all connected WebSocket clients.
	clients map[*Client]bool

	// mu protects the clients map, stopped flag, and settable fields.
	mu sync.RWMutex

	// stopped indicates whether the server has been stopped.
	// This prevents sending to a closed broadcast channel.
	stopped bool

	// broadcast receives messages to send to all clients.
	broadcast chan Message

	// httpServer is the underlying HTTP server for graceful shutdown.
	httpServer *http.Server

	guard   *workspace.Guard
	engine  *edit.Engine
	backups *backup.Store
	files   *fsops.Ops

	// audit records mutating operations. Nil disables auditing; audit
	// failures are logged and never fail the operation itself.
	audit AuditRecorder

	// validateToken checks bearer tokens for WebSocket authentication.
	// When requireAuth is true, connections without valid tokens are
	// rejected at upgrade time.
	validateToken auth.TokenValidator
	requireAuth   bool

	// editRatePerSec and editBurst configure the per-client limiter for
	// mutating requests. Zero rate disables limiting.
	editRatePerSec float64
	editBurst      int
}

// Client represents a single WebSocket connection.
// Each client has its own goroutine for writing messages, which prevents
// slow clients from blocking request handling for others.
type Client struct {
	// conn is the underlying WebSocket connection.
	conn *websocket.Conn

	// send is a buffered channel for outgoing messages.
	// The write goroutine reads from this and sends to the WebSocket.
	send chan Message

	// done is closed to signal the client should shut down.
	// Used to coordinate clean shutdown without racing on send channel.
	done chan struct{}

	// closeOnce ensures done is only closed once. Both Stop() and
	// readPump() may try to close it.
	closeOnce sync.Once

	// server is a reference back to the parent server.
	server *Server

	// editLimiter rate-limits mutating requests (edit.apply and
	// backup.restore) from this client. Nil means unlimited.
	editLimiter *rate.Limiter
}

// closeClient signals the client to shut down exactly once.
// Safe to call multiple times from different goroutines. Only the done
// channel is closed (never send) to avoid racing with in-flight sends.
func (c *Client) closeClient() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// NewServer creates a server wired to the given workspace guard, edit
// engine, backup store, and file ops. Call Start() or StartAsync() to begin
// accepting connections.
func NewServer(addr string, g *workspace.Guard, e *edit.Engine, b *backup.Store, f *fsops.Ops) *Server {
	return &Server{
		addr:      addr,
		clients:   make(map[*Client]bool),
		broadcast: make(chan Message, channelBufferSize),
		guard:     g,
		engine:    e,
		backups:   b,
		files:     f,
		upgrader: websocket.Upgrader{
			// The server binds loopback by default; origin checks add
			// nothing for local editor clients.
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// SetAuditRecorder sets the audit sink for mutating operations.
func (s *Server) SetAuditRecorder(a AuditRecorder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = a
}

// SetTokenValidator sets the token validation function for WebSocket auth.
// When requireAuth is true, connections without valid tokens are rejected.
func (s *Server) SetTokenValidator(v auth.TokenValidator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validateToken = v
}

// SetRequireAuth enables or disables authentication enforcement.
func (s *Server) SetRequireAuth(require bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requireAuth = require
}

// SetEditRate configures the per-client limiter for mutating requests.
// A rate of zero disables limiting.
func (s *Server) SetEditRate(perSec float64, burst int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.editRatePerSec = perSec
	s.editBurst = burst
}

// Start begins listening for WebSocket connections.
// This method blocks, so call it in a goroutine if you need to do other
// work. For non-blocking startup with error handling, use StartAsync().
func (s *Server) Start() error {
	mux := s.createMux()

	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: mux,
	}

	go s.runBroadcaster()

	log.Printf("server: listening on %s", s.addr)

	// ListenAndServe blocks until the server is stopped or an error occurs.
	// It returns http.ErrServerClosed on graceful shutdown.
	return s.httpServer.ListenAndServe()
}

// StartAsync starts the server in a goroutine and reports startup errors.
// The returned channel receives nil if startup succeeded, or an error if
// the listener could not be created (e.g., port already in use).
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)

	mux := s.createMux()

	// Create the listener first to detect port conflicts immediately.
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		errCh <- fmt.Errorf("failed to listen on %s: %w", s.addr, err)
		close(errCh)
		return errCh
	}

	s.httpServer = &http.Server{
		Handler: mux,
	}

	go s.runBroadcaster()

	go func() {
		log.Printf("server: listening on %s", s.addr)
		errCh <- nil
		close(errCh)

		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("server: serve error: %v", err)
		}
	}()

	return errCh
}

// createMux creates the HTTP mux with all endpoints.
func (s *Server) createMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.handleWebSocket)

	// Health check for supervisors and the CLI. Unauthenticated and
	// deliberately content-free.
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","clients":%d}`, s.ClientCount())
	})

	return mux
}

// Stop gracefully shuts down the server.
// It sends close frames to all clients, closes connections, and stops
// accepting new ones.
func (s *Server) Stop() error {
	s.mu.Lock()

	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true

	// Signal all clients to stop. writePump sends the close frame and
	// closes the connection when it sees done closed; we never write
	// directly here to avoid racing with writePump.
	for client := range s.clients {
		client.closeClient()
	}
	s.clients = make(map[*Client]bool)

	// Close the broadcast channel so runBroadcaster exits. Must happen
	// after stopped=true to keep concurrent Broadcast() calls from
	// panicking on a closed channel.
	close(s.broadcast)

	s.mu.Unlock()

	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

// Broadcast sends a message to all connected clients.
// Non-blocking; messages to slow clients are dropped rather than queued
// without bound.
func (s *Server) Broadcast(msg Message) {
	// Hold RLock through the send so Stop() cannot close the channel
	// between the stopped check and the send.
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.stopped {
		return
	}

	select {
	case s.broadcast <- msg:
	default:
		log.Printf("server: broadcast channel full, dropping message")
	}
}

// runBroadcaster reads from the broadcast channel and fans out to clients.
func (s *Server) runBroadcaster() {
	for msg := range s.broadcast {
		s.mu.RLock()
		for client := range s.clients {
			select {
			case client.send <- msg:
			default:
				log.Printf("server: client send buffer full, dropping message")
			}
		}
		s.mu.RUnlock()
	}
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// handleWebSocket upgrades an HTTP connection to a WebSocket connection.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	requireAuth := s.requireAuth
	validate := s.validateToken
	ratePerSec := s.editRatePerSec
	burst := s.editBurst
	s.mu.RUnlock()

	if requireAuth && validate != nil {
		token := extractBearerToken(r)
		if token == "" {
			log.Printf("server: connection rejected: missing authorization token")
			http.Error(w, "Unauthorized: missing token", http.StatusUnauthorized)
			return
		}
		if err := validate(token); err != nil {
			log.Printf("server: connection rejected: invalid token: %v", err)
			http.Error(w, "Unauthorized: invalid token", http.StatusUnauthorized)
			return
		}
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("server: upgrade failed: %v", err)
		return
	}

	client := &Client{
		conn:   conn,
		send:   make(chan Message, channelBufferSize),
		done:   make(chan struct{}),
		server: s,
	}
	if ratePerSec > 0 {
		if burst < 1 {
			burst = 1
		}
		client.editLimiter = rate.NewLimiter(rate.Limit(ratePerSec), burst)
	}

	s.mu.Lock()
	s.clients[client] = true
	s.mu.Unlock()

	log.Printf("server: client connected (%d total)", s.ClientCount())

	go client.writePump()
	go client.readPump()
}

// extractBearerToken extracts the token from an Authorization header.
// Returns empty string if no valid bearer token is found.
// Supports both "Bearer <token>" header and "token" query parameter as a
// fallback for WebSocket clients that cannot set custom headers.
func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth != "" {
		const bearerPrefix = "Bearer "
		if len(auth) > len(bearerPrefix) {
			prefix := auth[:len(bearerPrefix)]
			if prefix == bearerPrefix || prefix == "bearer " {
				return auth[len(bearerPrefix):]
			}
		}
	}

	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	return ""
}

// writePump continuously sends messages from the send channel to the
// WebSocket. It also sends periodic pings to keep the connection alive.
func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))

			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(msg)
			if err != nil {
				log.Printf("server: failed to marshal message: %v", err)
				continue
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("server: write error: %v", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads messages from the WebSocket and dispatches them.
// It exits when the client disconnects or the connection errors.
func (c *Client) readPump() {
	defer func() {
		c.server.mu.Lock()
		delete(c.server.clients, c)
		c.server.mu.Unlock()

		// closeClient signals writePump to exit, which closes the
		// connection. Stop() may have signaled already.
		c.closeClient()

		log.Printf("server: client disconnected (%d remaining)", c.server.ClientCount())
	}()

	c.conn.SetReadLimit(512 * 1024) // Max message size: 512KB
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))

	// When we receive a pong (response to our ping), the client is alive.
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				log.Printf("server: read error: %v", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("server: failed to parse message: %v", err)
			continue
		}

		switch msg.Type {
		case MessageTypeEditApply, MessageTypeEditPreview, MessageTypeEditValidate:
			c.handleEdit(msg.Type, msg.ID, data)
		case MessageTypeBackupCreate, MessageTypeBackupList, MessageTypeBackupRestore,
			MessageTypeBackupCommit, MessageTypeBackupCompare:
			c.handleBackup(msg.Type, msg.ID, data)
		case MessageTypeWorkspaceSet, MessageTypeWorkspaceGet:
			c.handleWorkspace(msg.Type, msg.ID, data)
		case MessageTypeFileList, MessageTypeFileHead, MessageTypeFileTail, MessageTypeFileLines:
			c.handleFile(msg.Type, msg.ID, data)
		case MessageTypeHeartbeat:
			// Application-level keep-alive from clients that cannot send
			// WebSocket pings. Nothing to do.
		default:
			log.Printf("server: unknown message type %q", msg.Type)
		}
	}
}

// sendResult queues a result message for this client.
// Non-blocking so a stalled connection cannot wedge readPump.
func (c *Client) sendResult(msg Message) {
	select {
	case <-c.done:
	case c.send <- msg:
	default:
		log.Printf("server: client send buffer full, dropping %s", msg.Type)
	}
}
