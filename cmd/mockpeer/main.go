// mockpeer is a stand-in inference peer for development and load testing.
// It speaks the session wire protocol: accepts base64 frame payloads and
// replies with synthetic classification messages marked mock=true.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"EMOTISENSE/go-client/internal/models"
)

var (
	httpServer *http.Server

	peers = &peerClients{
		clients: make(map[string]*peerClient),
	}
)

type peerClient struct {
	conn      *websocket.Conn
	sessionID string
	send      chan interface{}
}

type peerClients struct {
	mu      sync.RWMutex
	clients map[string]*peerClient
}

type inboundMessage struct {
	Type  string `json:"type,omitempty"`
	Frame string `json:"frame,omitempty"`
}

func main() {
	addr := flag.String("addr", ":8090", "listen address")
	flag.Parse()

	log.Println("Starting mock inference peer...")
	log.Printf("Listening on %s", *addr)
	log.Printf("WebSocket:  ws://localhost%s/ws", *addr)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", handlePeerSocket)
	mux.HandleFunc("/api/health", handleHealth)

	httpServer = &http.Server{
		Addr:         *addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to serve HTTP: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down HTTP server: %v", err)
	}

	closeAllPeers()
	log.Println("Goodbye!")
}

func handlePeerSocket(w http.ResponseWriter, r *http.Request) {
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

	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		sessionID = "session-" + time.Now().Format("20060102150405")
	}
	log.Printf("Session connected: %s", sessionID)

	client := &peerClient{
		conn:      conn,
		sessionID: sessionID,
		send:      make(chan interface{}, 256),
	}

	peers.mu.Lock()
	peers.clients[sessionID] = client
	peers.mu.Unlock()

	defer func() {
		peers.mu.Lock()
		delete(peers.clients, sessionID)
		peers.mu.Unlock()
		conn.Close()
		log.Printf("Session disconnected: %s", sessionID)
	}()

	go writePump(client)
	readPump(client)
}

func readPump(client *peerClient) {
	defer close(client.send)

	client.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	model := &classifier{}
	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("Read error for %s: %v", client.sessionID, err)
			}
			return
		}
		client.conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("Unparseable message from %s", client.sessionID)
			continue
		}

		switch {
		case msg.Type == models.TypeReset:
			log.Printf("Reset from %s", client.sessionID)
			model.reset()
		case msg.Frame != "":
			client.send <- model.classify()
		default:
			log.Printf("Unknown message from %s", client.sessionID)
		}
	}
}

func writePump(client *peerClient) {
	keepalive := time.NewTicker(15 * time.Second)
	defer func() {
		keepalive.Stop()
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

		case <-keepalive.C:
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.conn.WriteJSON(models.ControlMessage{Type: models.TypeKeepalive}); err != nil {
				return
			}
		}
	}
}

// classifier fabricates plausible classification messages: labels cycle,
// scores oscillate, and every 13th frame reports no face.
type classifier struct {
	n     int
	start time.Time
}

func (c *classifier) reset() {
	c.n = 0
}

func (c *classifier) classify() models.PeerMessage {
	if c.start.IsZero() {
		c.start = time.Now()
	}
	c.n++

	faceDetected := c.n%13 != 0
	msg := models.PeerMessage{
		FaceDetected: &faceDetected,
		Mock:         true,
		Timestamp:    time.Now().UnixMilli(),
	}
	if elapsed := time.Since(c.start).Seconds(); elapsed > 0 {
		msg.FPS = float64(c.n) / elapsed
	}
	if !faceDetected {
		return msg
	}

	label := models.Labels[(c.n/5)%len(models.Labels)]
	msg.Emotion = &label
	msg.Confidence = 0.6 + 0.3*math.Abs(math.Cos(float64(c.n)/7))
	msg.StressScore = 0.5 + 0.4*math.Sin(float64(c.n)/9)

	msg.AllEmotions = make(map[string]float64, len(models.Labels))
	for i, l := range models.Labels {
		msg.AllEmotions[l] = 0.1 + 0.05*float64(i%3)
	}
	msg.AllEmotions[label] = msg.Confidence
	return msg
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

	peers.mu.RLock()
	active := len(peers.clients)
	peers.mu.RUnlock()

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":          "healthy",
		"active_sessions": active,
		"mock":            true,
		"timestamp":       time.Now().Format(time.RFC3339),
	})
}

func closeAllPeers() {
	peers.mu.Lock()
	defer peers.mu.Unlock()

	for sessionID, client := range peers.clients {
		client.conn.Close()
		log.Printf("Closed connection for session: %s", sessionID)
	}
	peers.clients = make(map[string]*peerClient)
}
