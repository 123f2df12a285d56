package signaling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Ashish23jun/One-Call/internal/apperr"
	"github.com/Ashish23jun/One-Call/internal/metrics"
	"github.com/Ashish23jun/One-Call/internal/presence"
	"github.com/Ashish23jun/One-Call/internal/store"
	"github.com/Ashish23jun/One-Call/internal/token"
)

// shutdownGrace bounds how long Shutdown waits for in-flight sends to
// drain before closing transports outright.
const shutdownGrace = 10 * time.Second

// Options tune one signaling server instance.
type Options struct {
	// AllowedOrigins restricts websocket upgrades when Production is set.
	// Empty means any origin is accepted.
	AllowedOrigins []string
	Production     bool

	// HeartbeatInterval overrides the ping cadence; the read deadline is
	// two intervals. Zero keeps the default.
	HeartbeatInterval time.Duration
	// SendBuffer overrides the per-connection outgoing queue length.
	// Zero keeps the default.
	SendBuffer int
}

// Server terminates signaling connections: it admits peers by grant, drives
// the presence registry and relays negotiation frames between the peers of
// a room.
type Server struct {
	registry   *presence.Registry
	tokens     *token.Service
	store      store.Store
	metrics    *metrics.Metrics
	log        *slog.Logger
	upgrader   websocket.Upgrader
	heartbeat  time.Duration
	sendBuffer int

	mu      sync.RWMutex
	clients map[string]*client
	closed  bool
}

// NewServer wires the signaling endpoint to its collaborators. The registry
// is passed in rather than owned so tests can run isolated instances.
func NewServer(registry *presence.Registry, tokens *token.Service, st store.Store,
	m *metrics.Metrics, log *slog.Logger, opts Options) *Server {

	s := &Server{
		registry:   registry,
		tokens:     tokens,
		store:      st,
		metrics:    m,
		log:        log,
		heartbeat:  opts.HeartbeatInterval,
		sendBuffer: opts.SendBuffer,
		clients:    make(map[string]*client),
	}
	if s.heartbeat <= 0 {
		s.heartbeat = defaultHeartbeat
	}
	if s.sendBuffer <= 0 {
		s.sendBuffer = defaultSendBuffer
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     buildCheckOrigin(opts, log),
	}
	return s
}

// buildCheckOrigin allows every origin outside production; in production an
// allowlist, when configured, is enforced.
func buildCheckOrigin(opts Options, log *slog.Logger) func(*http.Request) bool {
	if opts.Production && len(opts.AllowedOrigins) > 0 {
		allowed := make(map[string]bool, len(opts.AllowedOrigins))
		for _, o := range opts.AllowedOrigins {
			allowed[o] = true
		}
		return func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if allowed[origin] {
				return true
			}
			log.Warn("rejected upgrade from origin", "origin", origin)
			return false
		}
	}
	if opts.Production {
		log.Warn("ALLOWED_ORIGINS not set in production, accepting all origins")
	}
	return func(*http.Request) bool { return true }
}

// ServeHTTP upgrades the connection and starts its actor goroutines.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	connID := uuid.NewString()
	c := newClient(connID, s, conn)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.clients[connID] = c
	s.mu.Unlock()

	if _, err := s.registry.Register(connID); err != nil {
		s.log.Error("register connection", "conn", connID, "error", err)
		s.mu.Lock()
		delete(s.clients, connID)
		s.mu.Unlock()
		conn.Close()
		return
	}

	s.metrics.ConnectionsActive.Inc()
	c.log.Info("connection opened", "remote", r.RemoteAddr)

	go c.writePump()
	go c.readPump()
}

// handleFrame runs one incoming frame through the state machine. It returns
// true when the connection has entered Closing and readPump should stop.
func (s *Server) handleFrame(c *client, payload []byte) (done bool) {
	frame, err := ParseClientFrame(payload)
	if err != nil {
		// Pre-admission a malformed frame is fatal; once admitted a
		// single bad frame only gets reported.
		fatal := !c.admitted
		s.sendError(c, apperr.CodeInvalidMessage, err.Error(), fatal)
		return fatal
	}

	switch f := frame.(type) {
	case JoinFrame:
		return s.handleJoin(c, f)
	case OfferFrame:
		return s.relay(c, "offer", func(from string) []byte {
			return marshalFrame(sdpRelayFrame{Type: "offer", SDP: f.SDP, FromUserID: from})
		})
	case AnswerFrame:
		return s.relay(c, "answer", func(from string) []byte {
			return marshalFrame(sdpRelayFrame{Type: "answer", SDP: f.SDP, FromUserID: from})
		})
	case ICEFrame:
		return s.relay(c, "ice", func(from string) []byte {
			return marshalFrame(iceRelayFrame{Type: "ice", Candidate: f.Candidate, FromUserID: from})
		})
	case LeaveFrame:
		return s.handleLeave(c)
	default:
		s.sendError(c, apperr.CodeInternal, "unhandled frame", false)
		return false
	}
}

func (s *Server) handleJoin(c *client, f JoinFrame) bool {
	if c.admitted {
		s.sendError(c, apperr.CodeAlreadyInRoom, "connection already joined a room", false)
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	claims, err := s.tokens.Verify(ctx, f.Token)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrExpired):
			s.sendError(c, apperr.CodeTokenExpired, "grant rejected", true)
		case errors.Is(err, token.ErrInvalid), errors.Is(err, token.ErrRevoked):
			s.sendError(c, apperr.CodeInvalidToken, "grant rejected", true)
		default:
			// Verifier infrastructure fault, not a bad credential.
			c.log.Error("grant verification", "error", err)
			s.sendError(c, apperr.CodeInternal, "admission failed", true)
		}
		return true
	}

	// The grant is only good for the room it names.
	if claims.RoomID != f.RoomID {
		s.sendError(c, apperr.CodeInvalidToken, "grant does not match requested room", true)
		return true
	}

	// Seat count comes from the room record when reachable; a missing or
	// unreachable room falls back to the two-seat default.
	capHint := 0
	if room, err := s.store.GetRoom(ctx, claims.RoomID); err == nil {
		capHint = room.MaxParticipants
	}

	existing, err := s.registry.Admit(c.id, claims.RoomID, claims.UserID, claims.AppID, capHint)
	if err != nil {
		return s.admissionFailed(c, err)
	}
	c.admitted = true

	// Peers the newcomer should dial, derived from the members that were
	// in the room at the instant of admission.
	peers := make([]string, 0, len(existing))
	for _, connID := range existing {
		if peer, ok := s.registry.Lookup(connID); ok {
			peers = append(peers, peer.UserID)
		}
	}

	c.enqueue(marshalFrame(joinedFrame{
		Type:   "joined",
		RoomID: claims.RoomID,
		UserID: claims.UserID,
		Peers:  peers,
	}))

	// Existing members are told about the newcomer and designated
	// initiator, so exactly one side produces the first offer.
	notice := marshalFrame(peerJoinedFrame{Type: "peer-joined", UserID: claims.UserID, IsInitiator: true})
	s.fanOut(existing, notice)

	s.metrics.RoomsActive.Set(float64(s.registry.Rooms()))
	c.log.Info("peer admitted", "room", claims.RoomID, "user", claims.UserID, "peers", len(existing))
	return false
}

func (s *Server) admissionFailed(c *client, err error) bool {
	switch {
	case errors.Is(err, presence.ErrTenantMismatch):
		s.sendError(c, apperr.CodeTenantMismatch, "room belongs to another app", true)
		return true
	case errors.Is(err, presence.ErrRoomFull):
		s.sendError(c, apperr.CodeRoomFull, "room is full", true)
		return true
	case errors.Is(err, presence.ErrAlreadyAdmitted):
		s.sendError(c, apperr.CodeAlreadyInRoom, "connection already joined a room", false)
		return false
	default:
		s.sendError(c, apperr.CodeInternal, "admission failed", true)
		return true
	}
}

// relay forwards a negotiation frame verbatim to every other member of the
// sender's room. No other member means a silent drop, not an error.
func (s *Server) relay(c *client, kind string, build func(fromUserID string) []byte) bool {
	if !c.admitted {
		s.sendError(c, apperr.CodeNotInRoom, fmt.Sprintf("%s before join", kind), false)
		return false
	}

	peer, ok := s.registry.Lookup(c.id)
	if !ok || !peer.Admitted() {
		s.sendError(c, apperr.CodeNotInRoom, fmt.Sprintf("%s before join", kind), false)
		return false
	}

	targets := s.registry.PeersOf(c.id)
	if len(targets) == 0 {
		return false
	}

	s.fanOut(targets, build(peer.UserID))
	s.metrics.FramesRelayed.WithLabelValues(kind).Inc()
	return false
}

func (s *Server) handleLeave(c *client) bool {
	if c.admitted {
		// Snapshot the identity first; Leave resets it.
		peer, _ := s.registry.Lookup(c.id)
		roomID, remaining, ok := s.registry.Leave(c.id)
		if ok {
			s.notifyLeft(remaining, peer.UserID)
			c.log.Info("peer left room", "room", roomID, "user", peer.UserID)
		}
		c.admitted = false
		s.metrics.RoomsActive.Set(float64(s.registry.Rooms()))
	}
	c.beginClose()
	return true
}

// dropClient runs on every teardown path: unclean disconnect, heartbeat
// timeout, graceful leave. Survivors get exactly one peer-left.
func (s *Server) dropClient(c *client) {
	s.mu.Lock()
	_, present := s.clients[c.id]
	delete(s.clients, c.id)
	s.mu.Unlock()
	if !present {
		return
	}

	roomID, remaining, userID, wasAdmitted := s.registry.DropConnection(c.id)
	if wasAdmitted {
		s.notifyLeft(remaining, userID)
		c.log.Info("peer disconnected", "room", roomID, "user", userID)
	} else {
		c.log.Info("connection closed")
	}

	s.metrics.ConnectionsActive.Dec()
	s.metrics.RoomsActive.Set(float64(s.registry.Rooms()))
}

func (s *Server) notifyLeft(connIDs []string, userID string) {
	if userID == "" {
		return
	}
	s.fanOut(connIDs, marshalFrame(peerLeftFrame{Type: "peer-left", UserID: userID}))
}

// fanOut delivers one frame to a set of connections. Order across receivers
// is unspecified; order per receiver follows each send queue.
func (s *Server) fanOut(connIDs []string, frame []byte) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range connIDs {
		if target, ok := s.clients[id]; ok {
			target.enqueue(frame)
		}
	}
}

func (s *Server) sendError(c *client, code, message string, fatal bool) {
	s.metrics.SignalingErrors.WithLabelValues(code).Inc()
	c.enqueue(marshalFrame(errorFrame{Type: "error", Code: code, Message: message}))
	if fatal {
		c.beginClose()
	}
}

// Shutdown stops accepting work and closes every connection after letting
// in-flight sends drain for up to the grace period.
func (s *Server) Shutdown(ctx context.Context) {
	s.mu.Lock()
	s.closed = true
	open := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		open = append(open, c)
	}
	s.mu.Unlock()

	for _, c := range open {
		c.beginClose()
	}

	deadline := time.Now().Add(shutdownGrace)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	for time.Now().Before(deadline) {
		s.mu.RLock()
		n := len(s.clients)
		s.mu.RUnlock()
		if n == 0 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}

	for _, c := range open {
		c.close()
	}
}
