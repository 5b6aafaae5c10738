package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"DROWSY_MONITOR/go-detector/internal/config"
	"DROWSY_MONITOR/go-detector/internal/database"
	"DROWSY_MONITOR/go-detector/internal/handlers"
	"DROWSY_MONITOR/go-detector/internal/live"
	"DROWSY_MONITOR/go-detector/internal/services"
	"DROWSY_MONITOR/go-detector/internal/storage"
)

var (
	httpServer *http.Server

	coord *live.Coordinator
	store *storage.LogStore

	wsClients = &WebSocketClients{
		clients: make(map[string]*WebSocketClient),
	}
)

type WebSocketClient struct {
	conn     *websocket.Conn
	clientID string
	send     chan interface{}
	mu       sync.Mutex
}

type WebSocketClients struct {
	mu      sync.RWMutex
	clients map[string]*WebSocketClient
}

type WebSocketMessage struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	ClientID  string      `json:"client_id,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

func main() {
	httpPort := flag.String("http-port", "", "HTTP port (overrides env)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if *httpPort != "" {
		cfg.HTTPPort = *httpPort
	}

	log.Println("Starting...")
	log.Printf("HTTP port: %s", cfg.HTTPPort)
	log.Printf("Detector binary: %s", cfg.DetectorBin)
	log.Printf("Environment: %s", cfg.Environment)

	handlers.SetCORSOrigin(cfg.CORSOrigins)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	// Postgres archive is optional; account and history endpoints need it
	if cfg.DatabaseURL != "" {
		if err := database.InitDB(cfg.DatabaseURL); err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		defer database.CloseDB()
	} else {
		log.Println("DATABASE_URL not set, archive endpoints disabled")
	}

	coord = live.New(cfg.LiveStatusFile, cfg.LiveSessionsDir, cfg.DetectorBin)
	store = storage.NewLogStore(cfg.SessionLogFile)

	log.Println("Starting HTTP server...")
	go startHTTPServer(cfg)

	<-done
	log.Println("Shutting down...")

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		log.Println("Stopping HTTP server...")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error shutting down HTTP server: %v", err)
		} else {
			log.Println("HTTP server gracefully stopped")
		}
	}

	log.Println("Closing WebSocket connections...")
	closeAllWebSocketConnections()
	log.Println("All WebSocket connections closed...")

	log.Println("Goodbye!")
}

func startHTTPServer(cfg *config.Config) {
	port := cfg.HTTPPort
	if len(port) > 0 && port[0] == ':' {
		port = port[1:]
	}

	liveHandler := handlers.NewLiveHandler(coord, store)

	mux := http.NewServeMux()

	mux.HandleFunc("/ws", handleWebSocket)

	mux.HandleFunc("/api/live/start", liveHandler.Start)
	mux.HandleFunc("/api/live/stop", liveHandler.Stop)
	mux.HandleFunc("/api/live/status", liveHandler.Status)
	mux.HandleFunc("/api/sessions", liveHandler.Sessions)

	if cfg.DatabaseURL != "" {
		mux.HandleFunc("/api/register", handlers.Register)
		mux.HandleFunc("/api/login", handlers.Login)
		mux.HandleFunc("/api/logout", handlers.Logout)
		mux.HandleFunc("/api/me", handlers.GetCurrentUser)
		mux.HandleFunc("/api/sessions/archive", handlers.ArchiveSession)
		mux.HandleFunc("/api/sessions/archived", handlers.GetArchivedSessions)
		mux.HandleFunc("/api/sessions/delete", handlers.DeleteArchivedSession)
		mux.HandleFunc("/api/events", handlers.GetArchivedEvents)
	}

	mux.HandleFunc("/api/health", handleHealth)
	mux.HandleFunc("/api/metrics", handleMetrics)

	httpServer = &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Printf("HTTP server listening on port %s", port)
	log.Printf("WebSocket:  ws://localhost:%s/ws", port)
	log.Printf("REST API:   http://localhost:%s/api/*", port)

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to serve HTTP: %v", err)
	}
}

func handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}

	clientID := r.URL.Query().Get("clientId")
	if clientID == "" {
		clientID = generateClientID()
	}

	log.Printf("WebSocket client connected: %s", clientID)

	client := &WebSocketClient{
		conn:     conn,
		clientID: clientID,
		send:     make(chan interface{}, 256),
	}

	wsClients.mu.Lock()
	wsClients.clients[clientID] = client
	wsClients.mu.Unlock()
	services.GetMetrics().IncrementWebSocketConnections()

	defer func() {
		wsClients.mu.Lock()
		delete(wsClients.clients, clientID)
		wsClients.mu.Unlock()
		services.GetMetrics().DecrementWebSocketConnections()

		conn.Close()
		log.Printf("WebSocket client disconnected: %s", clientID)
	}()

	go writePump(client)

	welcomeMsg := WebSocketMessage{
		Type:      "WELCOME",
		ClientID:  clientID,
		Timestamp: time.Now().Unix(),
		Payload: map[string]interface{}{
			"message": "Connected to Drowsiness Monitoring Server",
			"version": "1.0",
		},
	}

	client.send <- welcomeMsg

	readPump(client)
}

// Read loop: PING keepalives and on-demand status requests.
func readPump(client *WebSocketClient) {
	defer func() {
		client.conn.Close()
	}()

	client.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		var msg WebSocketMessage
		err := client.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error for %s: %v", client.clientID, err)
				services.GetMetrics().IncrementWebSocketErrors()
			}
			break
		}
		client.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		services.GetMetrics().IncrementWebSocketMessages()

		switch msg.Type {
		case "PING":
			client.send <- WebSocketMessage{
				Type:      "PONG",
				ClientID:  client.clientID,
				Timestamp: time.Now().Unix(),
			}

		case "STATUS":
			client.send <- statusMessage(client.clientID)

		default:
			log.Printf("Unknown message type: %s", msg.Type)
		}
	}
}

// Write loop: queued messages plus a periodic live status push.
func writePump(client *WebSocketClient) {
	pingTicker := time.NewTicker(10 * time.Minute)
	statusTicker := time.NewTicker(5 * time.Second)
	defer func() {
		pingTicker.Stop()
		statusTicker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))

			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := client.conn.WriteJSON(msg); err != nil {
				return
			}

		case <-statusTicker.C:
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.conn.WriteJSON(statusMessage(client.clientID)); err != nil {
				return
			}

		case <-pingTicker.C:
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// historyTotals folds the logged session history into overall counters.
// Frames are processed in the detector process, so the server derives its
// numbers from what that process persisted rather than from local state.
func historyTotals() (totalFrames, drowsyFrames uint64, drowsyEvents, sessions int) {
	for _, s := range store.LoadAll() {
		totalFrames += s.TotalFrames
		drowsyFrames += s.DrowsyFrames
		drowsyEvents += s.DrowsyEvents
		sessions++
	}
	return
}

func statusMessage(clientID string) WebSocketMessage {
	totalFrames, drowsyFrames, drowsyEvents, sessions := historyTotals()
	var rate float64
	if totalFrames > 0 {
		rate = float64(drowsyFrames) / float64(totalFrames)
	}
	return WebSocketMessage{
		Type:      "STATUS",
		ClientID:  clientID,
		Timestamp: time.Now().Unix(),
		Payload: map[string]interface{}{
			"live":            coord.Status(),
			"logged_sessions": sessions,
			"total_frames":    totalFrames,
			"drowsy_frames":   drowsyFrames,
			"drowsy_events":   drowsyEvents,
			"detection_rate":  rate,
		},
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": "Method not allowed",
		})
		return
	}

	wsClients.mu.RLock()
	activeClients := len(wsClients.clients)
	wsClients.mu.RUnlock()

	status := coord.Status()

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":         "healthy",
		"HTTP_status":    "running",
		"active_clients": activeClients,
		"live_session":   status.Active,
		"session_id":     status.SessionID,
		"timestamp":      time.Now().Format(time.RFC3339),
	})
}

func handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": "Method not allowed",
		})
		return
	}

	wsClients.mu.RLock()
	activeClients := len(wsClients.clients)
	wsClients.mu.RUnlock()

	totalFrames, drowsyFrames, drowsyEvents, sessions := historyTotals()
	var rate float64
	if totalFrames > 0 {
		rate = float64(drowsyFrames) / float64(totalFrames)
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"total_frames":      totalFrames,
		"drowsy_frames":     drowsyFrames,
		"drowsy_detections": drowsyEvents,
		"detection_rate":    rate,
		"logged_sessions":   sessions,
		"active_clients":    activeClients,
		"ws":                services.GetMetrics().GetWebSocketMetrics(),
		"timestamp":         time.Now().Format(time.RFC3339),
	})
}

func generateClientID() string {
	return "client-" + time.Now().Format("20060102150405")
}

func closeAllWebSocketConnections() {
	wsClients.mu.Lock()
	defer wsClients.mu.Unlock()

	for clientID, client := range wsClients.clients {
		close(client.send)
		client.conn.Close()
		log.Printf("Closed connection for client: %s", clientID)
	}
	wsClients.clients = make(map[string]*WebSocketClient)
}
