// Package server exposes a journey and its player over HTTP: the route for
// drawing, playback state and controls, and a websocket stream of player
// events.
package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ezzatron/fake-geolocation-demo/internal/journey"
	"github.com/ezzatron/fake-geolocation-demo/internal/player"
	"github.com/ezzatron/fake-geolocation-demo/internal/route"
)

// clientBuffer is how many events a slow websocket client may fall behind
// before events are dropped for it.
const clientBuffer = 64

type Server struct {
	player      *player.Player
	log         *zap.Logger
	upgrader    websocket.Upgrader
	unsubscribe func()
	topSpeed    float64 // m/s, over the fastest segment

	mu      sync.Mutex
	clients map[chan player.Event]struct{}
}

// State is the playback state reported by the API.
type State struct {
	Paused     bool                `json:"paused"`
	OffsetTime float64             `json:"offsetTime"`
	StartTime  int64               `json:"startTime"`
	Duration   int64               `json:"duration"`
	Chapter    *journey.Chapter    `json:"chapter,omitempty"`
	Coords     journey.Coordinates `json:"coords"`
	// TopSpeed is the average speed of the fastest segment in m/s, the full
	// scale for a speedometer.
	TopSpeed   float64             `json:"topSpeed"`
}

func New(p *player.Player, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		player: p,
		log:    log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[chan player.Event]struct{}),
	}
	fastest := p.Journey().FastestSegment()
	s.topSpeed = journey.Speed(fastest.A, fastest.B)
	s.unsubscribe = p.Subscribe(s.broadcast)
	return s
}

// Close stops streaming events. Open websocket connections are closed.
func (s *Server) Close() {
	s.unsubscribe()

	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.clients {
		close(ch)
		delete(s.clients, ch)
	}
}

// Handler routes the API. Routes are registered on the root router so that a
// method mismatch answers 405 rather than 404.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/route", s.handleRoute).Methods(http.MethodGet)
	r.HandleFunc("/api/bounds", s.handleBounds).Methods(http.MethodGet)
	r.HandleFunc("/api/accuracy", s.handleAccuracy).Methods(http.MethodGet)
	r.HandleFunc("/api/chapters", s.handleChapters).Methods(http.MethodGet)
	r.HandleFunc("/api/state", s.handleState).Methods(http.MethodGet)
	r.HandleFunc("/api/play", s.control(s.player.Play)).Methods(http.MethodPost)
	r.HandleFunc("/api/pause", s.control(s.player.Pause)).Methods(http.MethodPost)
	r.HandleFunc("/api/seek", s.handleSeek).Methods(http.MethodPost)
	r.HandleFunc("/api/chapters/next", s.control(s.player.SeekToNextChapter)).Methods(http.MethodPost)
	r.HandleFunc("/api/chapters/previous", s.control(s.player.SeekToPreviousChapter)).Methods(http.MethodPost)
	r.HandleFunc("/api/ws", s.handleWebSocket)
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return r
}

// Serve starts an HTTP server for Handler on the given address.
func (s *Server) Serve(addr string) *http.Server {
	srv := &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		ReadTimeout: 15 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("http server error", zap.Error(err))
		}
	}()
	s.log.Info("http listening", zap.String("addr", addr))
	return srv
}

func (s *Server) state() State {
	j := s.player.Journey()
	offset := s.player.OffsetTime()
	st := State{
		Paused:     s.player.IsPaused(),
		OffsetTime: offset,
		StartTime:  j.StartTime(),
		Duration:   j.Duration(),
		Coords:     j.CoordinatesAtOffsetTime(offset),
		TopSpeed:   s.topSpeed,
	}
	if c, ok := j.ChapterAtOffsetTime(offset); ok {
		st.Chapter = &c
	}
	return st
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, route.GeoJSONFromPositions(s.player.Journey().Positions()))
}

func (s *Server) handleBounds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, route.BoundsFeature(s.player.Journey().BoundingBox()))
}

func (s *Server) handleAccuracy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, route.AccuracyFeature(s.state().Coords))
}

func (s *Server) handleChapters(w http.ResponseWriter, r *http.Request) {
	chapters := s.player.Journey().Chapters()
	if chapters == nil {
		chapters = []journey.Chapter{}
	}
	writeJSON(w, http.StatusOK, chapters)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state())
}

func (s *Server) control(action func()) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		action()
		writeJSON(w, http.StatusOK, s.state())
	}
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("offset")
	offset, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "offset must be a number of milliseconds")
		return
	}
	s.player.Seek(offset)
	writeJSON(w, http.StatusOK, s.state())
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ch := make(chan player.Event, clientBuffer)
	s.mu.Lock()
	s.clients[ch] = struct{}{}
	n := len(s.clients)
	s.mu.Unlock()
	s.log.Debug("websocket client connected", zap.Int("clients", n))

	defer func() {
		s.mu.Lock()
		if _, ok := s.clients[ch]; ok {
			delete(s.clients, ch)
			close(ch)
		}
		s.mu.Unlock()
		s.log.Debug("websocket client disconnected")
	}()

	if err := conn.WriteJSON(map[string]any{"type": "STATE", "state": s.state()}); err != nil {
		s.log.Debug("websocket write failed", zap.Error(err))
		return
	}

	// Reads only detect the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				s.log.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-gone:
			return
		}
	}
}

// broadcast is a player subscriber and must not block.
func (s *Server) broadcast(ev player.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.clients {
		select {
		case ch <- ev:
		default:
			s.log.Warn("websocket client too slow, dropping event", zap.String("event", string(ev.Type)))
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
