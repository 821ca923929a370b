// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"

	"github.com/relabs-tech/geofix/internal/geo"
	"github.com/relabs-tech/geofix/internal/position"
)

const wsWriteTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// distanceResponse is the /api/distance payload. DistanceM is null while
// the position is unknown.
type distanceResponse struct {
	DistanceM *float64 `json:"distance_m"`
	Stale     bool     `json:"stale"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan position.State
}

// webServer serves the latest tracker state over HTTP and websockets.
type webServer struct {
	pub        Publisher
	recalTopic string

	mu        sync.RWMutex
	state     position.State
	haveState bool
	clients   map[*wsClient]struct{}
}

func newWebServer(pub Publisher, recalTopic string) *webServer {
	return &webServer{
		pub:        pub,
		recalTopic: recalTopic,
		clients:    map[*wsClient]struct{}{},
	}
}

func (s *webServer) routes(staticDir string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/position", s.handlePosition)
	mux.HandleFunc("/api/distance", s.handleDistance)
	mux.HandleFunc("/api/recalibrate", s.handleRecalibrate)
	mux.HandleFunc("/ws", s.handleWS)
	if staticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(staticDir)))
	}
	return mux
}

func (s *webServer) handleStateMessage(_ mqtt.Client, msg mqtt.Message) {
	var st position.State
	if err := json.Unmarshal(msg.Payload(), &st); err != nil {
		log.Printf("web: state unmarshal error: %v", err)
		return
	}
	s.setState(st)
}

func (s *webServer) setState(st position.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
	s.haveState = true
	for c := range s.clients {
		select {
		case c.send <- st:
		default:
			// slow client; it gets the next one
		}
	}
}

func (s *webServer) snapshot() (position.State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state, s.haveState
}

func (s *webServer) handlePosition(w http.ResponseWriter, r *http.Request) {
	st, ok := s.snapshot()
	if !ok {
		http.Error(w, "no data yet", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, st)
}

func (s *webServer) handleDistance(w http.ResponseWriter, r *http.Request) {
	lat, err := parseCoord(r, "lat", 90)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	lon, err := parseCoord(r, "lon", 180)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	st, _ := s.snapshot()
	resp := distanceResponse{Stale: st.Stale}
	if st.HasFix {
		d := geo.DistanceMeters(st.Latitude, st.Longitude, lat, lon)
		resp.DistanceM = &d
	}
	writeJSON(w, resp)
}

func (s *webServer) handleRecalibrate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := publish(s.pub, s.recalTopic, false, "recalibrate"); err != nil {
		log.Printf("web: %v", err)
		http.Error(w, "recalibration request failed", http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *webServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	c := &wsClient{conn: conn, send: make(chan position.State, 8)}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	if s.haveState {
		c.send <- s.state
	}
	s.mu.Unlock()

	go c.writeLoop()

	// reads only detect the peer going away
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.mu.Lock()
	delete(s.clients, c)
	close(c.send)
	s.mu.Unlock()
}

func (c *wsClient) writeLoop() {
	for st := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := c.conn.WriteJSON(st); err != nil {
			log.Printf("web: websocket write error: %v", err)
			c.conn.Close()
			// keep draining until the read loop unregisters us
			for range c.send {
			}
			return
		}
	}
}

func parseCoord(r *http.Request, name string, limit float64) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, fmt.Errorf("missing %s", name)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < -limit || v > limit {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return v, nil
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("web: json encode error: %v", err)
	}
}

// RunWeb serves the position API and the static UI from ./web.
func RunWeb() error {
	cfg, err := loadedConfig()
	if err != nil {
		return err
	}

	client, err := connectMQTT(cfg, cfg.MQTTClientIDWeb)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	s := newWebServer(client, cfg.TopicRecalibrate)

	token := client.Subscribe(cfg.TopicPosition, 0, s.handleStateMessage)
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("web: subscribed to MQTT topic %s", cfg.TopicPosition)

	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	log.Printf("web server listening on %s", addr)
	return http.ListenAndServe(addr, s.routes("web"))
}
