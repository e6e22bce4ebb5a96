package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/1ureka/callroom/internal/iceconfig"
	"github.com/1ureka/callroom/internal/protocol"
	"github.com/1ureka/callroom/internal/util"
)

const (
	roomCapacity      = 2
	defaultMaxPending = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServerConfig configures the room relay server.
type ServerConfig struct {
	// ICEServers are handed to every joining client.
	ICEServers []webrtc.ICEServer

	// Turn issues credentials on /turn for TurnURIs. Nil disables /turn.
	Turn     *iceconfig.Generator
	TurnURIs []string

	// MaxPending bounds the messages held for a member that has not
	// connected yet.
	MaxPending int
}

// Server pairs up to two clients per room and forwards signaling messages
// between them.
type Server struct {
	cfg     ServerConfig
	metrics *Metrics

	mu    sync.Mutex
	rooms map[string]*room
}

type room struct {
	id      string
	members map[string]*member

	// survivor is set when a member left while the other stayed; the
	// survivor waits as callee, so the next joiner initiates.
	survivor bool
}

type member struct {
	id        string
	initiator bool
	conn      *websocket.Conn
	saidBye   bool

	// outbox holds messages sent while the other member was not connected.
	outbox [][]byte
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = defaultMaxPending
	}
	if cfg.ICEServers == nil {
		cfg.ICEServers = []webrtc.ICEServer{}
	}
	return &Server{
		cfg:     cfg,
		metrics: NewMetrics(),
		rooms:   make(map[string]*room),
	}
}

// Metrics returns the server's collectors.
func (s *Server) Metrics() *Metrics { return s.metrics }

// Handler returns the HTTP routes of the relay.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/join", s.handleJoin)
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/turn", s.handleTurn)
	mux.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
	return mux
}

// Serve listens on addr until ctx is cancelled. onListen, if set, receives
// the bound address.
func (s *Server) Serve(ctx context.Context, addr string, onListen func(net.Addr)) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start relay server: %w", err)
	}
	if onListen != nil {
		onListen(listener.Addr())
	}

	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		s.closeAll()
	}()

	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("r")
	if roomID == "" {
		http.Error(w, "missing room", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	rm, ok := s.rooms[roomID]
	if !ok {
		rm = &room{id: roomID, members: make(map[string]*member)}
		s.rooms[roomID] = rm
		s.metrics.rooms.Inc()
	}
	if len(rm.members) >= roomCapacity {
		s.mu.Unlock()
		http.Error(w, "room is full", http.StatusConflict)
		return
	}

	m := &member{id: uuid.NewString(), initiator: len(rm.members) == 0 || rm.survivor}
	rm.survivor = false
	rm.members[m.id] = m
	s.metrics.members.Inc()
	s.mu.Unlock()

	util.LogInfo("Client %s joined room %s (initiator=%v)", m.id, roomID, m.initiator)

	resp := JoinResponse{
		RoomID:     roomID,
		ClientID:   m.id,
		Initiator:  m.initiator,
		ICEServers: s.cfg.ICEServers,
	}
	if s.cfg.Turn != nil {
		resp.TurnURL = turnURL(r, m.id)
	}
	writeJSON(w, resp)
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Turn == nil {
		http.NotFound(w, r)
		return
	}

	creds, err := s.cfg.Turn.Generate(s.cfg.TurnURIs, r.URL.Query().Get("username"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, creds)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	roomID, clientID := r.URL.Query().Get("r"), r.URL.Query().Get("u")

	s.mu.Lock()
	m := s.lookup(roomID, clientID)
	switch {
	case m == nil:
		s.mu.Unlock()
		http.Error(w, "unknown room member", http.StatusNotFound)
		return
	case m.conn != nil:
		s.mu.Unlock()
		http.Error(w, "already connected", http.StatusConflict)
		return
	}
	s.mu.Unlock()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	if s.lookup(roomID, clientID) != m || m.conn != nil {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	m.conn = conn
	s.flushTo(roomID, m)
	s.mu.Unlock()

	util.LogDebug("Client %s connected to room %s", clientID, roomID)
	s.watch(roomID, m)
	s.leave(roomID, m)
}

// ---------------------------------------------------------------------------
// Forwarding
// ---------------------------------------------------------------------------

// watch reads messages from one member until its connection ends.
func (s *Server) watch(roomID string, from *member) {
	for {
		_, data, err := from.conn.ReadMessage()
		if err != nil {
			return
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			s.metrics.dropped.WithLabelValues("malformed").Inc()
			util.LogWarning("Dropping message from %s: %v", from.id, err)
			continue
		}

		s.mu.Lock()
		if msg.Type == protocol.TypeBye {
			from.saidBye = true
		}
		s.forward(roomID, from, msg.Type, data)
		s.mu.Unlock()
	}
}

// forward delivers data to the other connected member or holds it in the
// sender's outbox. Caller holds s.mu.
func (s *Server) forward(roomID string, from *member, typ protocol.Type, data []byte) {
	if to := s.other(roomID, from); to != nil && to.conn != nil {
		if err := write(to.conn, data); err != nil {
			s.metrics.dropped.WithLabelValues("write").Inc()
			util.LogDebug("Write to %s failed: %v", to.id, err)
			return
		}
		s.metrics.forwarded.WithLabelValues(string(typ)).Inc()
		return
	}

	if len(from.outbox) >= s.cfg.MaxPending {
		s.metrics.dropped.WithLabelValues("overflow").Inc()
		return
	}
	from.outbox = append(from.outbox, data)
	s.metrics.buffered.Inc()
}

// flushTo delivers everything the other member queued for m. Caller holds
// s.mu.
func (s *Server) flushTo(roomID string, m *member) {
	from := s.other(roomID, m)
	if from == nil {
		return
	}
	for _, data := range from.outbox {
		if err := write(m.conn, data); err != nil {
			s.metrics.dropped.WithLabelValues("write").Inc()
			break
		}
		s.metrics.forwarded.WithLabelValues("buffered").Inc()
	}
	from.outbox = nil
}

// leave removes m from its room and tells the remaining member, unless m
// already said bye.
func (s *Server) leave(roomID string, m *member) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_ = m.conn.Close()

	rm, ok := s.rooms[roomID]
	if !ok || rm.members[m.id] != m {
		return
	}
	delete(rm.members, m.id)
	s.metrics.members.Dec()
	util.LogInfo("Client %s left room %s", m.id, roomID)

	if len(rm.members) == 0 {
		delete(s.rooms, roomID)
		s.metrics.rooms.Dec()
		return
	}

	rm.survivor = true
	for _, other := range rm.members {
		other.outbox = nil
		if other.conn == nil || m.saidBye {
			continue
		}
		bye, _ := protocol.Encode(protocol.NewBye())
		if err := write(other.conn, bye); err != nil {
			util.LogDebug("Bye to %s failed: %v", other.id, err)
		}
	}
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rm := range s.rooms {
		for _, m := range rm.members {
			if m.conn != nil {
				_ = m.conn.Close()
			}
		}
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// lookup returns the member or nil. Caller holds s.mu.
func (s *Server) lookup(roomID, clientID string) *member {
	rm, ok := s.rooms[roomID]
	if !ok {
		return nil
	}
	return rm.members[clientID]
}

// other returns the member sharing m's room, or nil. Caller holds s.mu.
func (s *Server) other(roomID string, m *member) *member {
	rm, ok := s.rooms[roomID]
	if !ok {
		return nil
	}
	for id, o := range rm.members {
		if id != m.id {
			return o
		}
	}
	return nil
}

func write(conn *websocket.Conn, data []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		util.LogDebug("Failed to write response: %v", err)
	}
}

func turnURL(r *http.Request, clientID string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	u := url.URL{
		Scheme:   scheme,
		Host:     r.Host,
		Path:     "/turn",
		RawQuery: url.Values{"username": {clientID}}.Encode(),
	}
	return u.String()
}
