package api

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"podfetch/backend"
)

// Server represents the HTTP API server
type Server struct {
	app    *fiber.App
	orch   *backend.Orchestrator
	wsHub  *WebSocketHub
	stopFn func()

	mu     sync.RWMutex
	config *backend.Config
}

// NewServer creates a new API server around orch
func NewServer(orch *backend.Orchestrator) *Server {
	app := fiber.New(fiber.Config{
		AppName:      "podfetch Server",
		ServerHeader: "podfetch",
		BodyLimit:    1 * 1024 * 1024,
	})

	wsHub := NewWebSocketHub()
	go wsHub.Run()

	server := &Server{
		app:    app,
		orch:   orch,
		wsHub:  wsHub,
		config: orch.Config(),
	}

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} (${latency})\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
		AllowMethods: "GET, POST, DELETE, OPTIONS",
	}))

	server.setupRoutes()
	server.stopFn = server.forwardProgress()

	return server
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.app.Get("/api/health", s.handleHealth)

	api := s.app.Group("/api")

	api.Get("/version", s.handleGetVersion)
	api.Get("/dependencies", s.handleCheckDependencies)

	// Download routes
	api.Get("/info", s.handleGetInfo)
	api.Post("/track", s.handleDownloadTrack)
	api.Post("/video", s.handleDownloadVideo)
	api.Post("/stop", s.handleStop)

	// Config routes
	api.Get("/config", s.handleGetConfig)
	api.Post("/config", s.handleSaveConfig)

	// History routes
	api.Get("/history", s.handleGetHistory)
	api.Get("/history/stats", s.handleGetHistoryStats)
	api.Delete("/history/:id", s.handleDeleteHistoryEntry)
	api.Post("/history/clear", s.handleClearHistory)
	api.Post("/history/:id/redownload", s.handleRedownloadFromHistory)

	// Device routes
	api.Get("/device", s.handleCheckDevice)
	api.Post("/device/copy", s.handleCopyToDevice)
	api.Post("/device/video", s.handleVideoToDevice)

	// WebSocket endpoint
	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.app.Get("/ws", websocket.New(s.handleWebSocket))
}

// App exposes the fiber app so other shells can mount it.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts the HTTP server
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() error {
	s.stopFn()
	s.wsHub.Close()
	return s.app.Shutdown()
}

func (s *Server) currentConfig() *backend.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// progressMessage is the WebSocket frame for one progress event.
type progressMessage struct {
	Type    string  `json:"type"`
	JobID   string  `json:"jobId,omitempty"`
	Percent float64 `json:"percent"`
	Label   string  `json:"label"`
	Status  string  `json:"status,omitempty"`
}

func newProgressMessage(ev backend.ProgressEvent) progressMessage {
	return progressMessage{
		Type:    "progress",
		JobID:   ev.JobID,
		Percent: ev.Percent,
		Label:   ev.Label,
		Status:  ev.Status,
	}
}

// forwardProgress relays orchestrator progress to WebSocket clients until
// the returned func is called.
func (s *Server) forwardProgress() func() {
	events, unsubscribe := s.orch.Subscribe()
	go func() {
		for ev := range events {
			s.wsHub.Broadcast(newProgressMessage(ev))
		}
	}()
	return unsubscribe
}

// WebSocketHub manages WebSocket connections
type WebSocketHub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan interface{}
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.RWMutex
	done       chan struct{}
	closeOnce  sync.Once
}

// NewWebSocketHub creates a new WebSocket hub
func NewWebSocketHub() *WebSocketHub {
	return &WebSocketHub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan interface{}, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
	}
}

// Run starts the WebSocket hub
func (h *WebSocketHub) Run() {
	for {
		select {
		case <-h.done:
			return
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			total := len(h.clients)
			h.mu.Unlock()
			backend.Logger.Debug("websocket client connected", "total", total)
		case conn := <-h.unregister:
			h.remove(conn)
		case message := <-h.broadcast:
			var failed []*websocket.Conn
			h.mu.RLock()
			for conn := range h.clients {
				if err := conn.WriteJSON(message); err != nil {
					backend.Logger.Debug("websocket write error", "error", err)
					failed = append(failed, conn)
				}
			}
			h.mu.RUnlock()
			for _, conn := range failed {
				h.remove(conn)
			}
		}
	}
}

func (h *WebSocketHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
	total := len(h.clients)
	h.mu.Unlock()
	backend.Logger.Debug("websocket client disconnected", "total", total)
}

// Broadcast sends a message to all connected clients
func (h *WebSocketHub) Broadcast(message interface{}) {
	select {
	case h.broadcast <- message:
	default:
		backend.Logger.Warn("websocket broadcast channel full, dropping message")
	}
}

// Close shuts down the hub
func (h *WebSocketHub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
		h.mu.Lock()
		for conn := range h.clients {
			conn.Close()
		}
		h.mu.Unlock()
	})
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(c *websocket.Conn) {
	select {
	case s.wsHub.register <- c:
	case <-s.wsHub.done:
		return
	}
	defer func() {
		select {
		case s.wsHub.unregister <- c:
		case <-s.wsHub.done:
		}
	}()

	for {
		if _, _, err := c.ReadMessage(); err != nil {
			break
		}
		// Incoming messages are ignored; reading keeps the connection alive
	}
}
