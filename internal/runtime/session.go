package runtime

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/pathcall/pathcall/internal/runtime/jsoncodec"
	"github.com/pathcall/pathcall/internal/runtime/logging"
	"github.com/pathcall/pathcall/internal/runtime/store"
	"github.com/pathcall/pathcall/internal/runtime/wire"
)

// Push-channel lifecycle events routed to a procedure's OnSocket callback.
const (
	SocketConnect    = "connect"
	SocketMessage    = "message"
	SocketDisconnect = "disconnect"
)

// SessionConn is the write side of a live push channel. *websocket.Conn
// satisfies it; tests use fakes.
type SessionConn interface {
	WriteJSON(v any) error
	Close() error
}

// pushEnvelope is what the client receives on a directed push.
type pushEnvelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// forwardEnvelope crosses worker processes over the registry pub/sub channel
// when the identity's session lives elsewhere.
type forwardEnvelope struct {
	ID   string `json:"id"`
	Data any    `json:"data"`
}

type session struct {
	id   string
	proc *Procedure
	conn SessionConn

	writeMu sync.Mutex
}

func (s *session) send(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}

// SessionManager tracks at most one live push channel per authenticated
// identity per process. Connect-time authorization runs through the same
// gateway call as HTTP auth.
type SessionManager struct {
	authorize AuthorizeFunc
	lookup    func(path string) (*Procedure, bool)
	store     store.Store
	channel   string // empty disables cross-worker forwarding
	logger    logging.ServiceLogger
	metrics   *Metrics

	mu       sync.Mutex
	sessions map[string]*session

	upgrader websocket.Upgrader
}

func newSessionManager(authorize AuthorizeFunc, lookup func(string) (*Procedure, bool), st store.Store, channel string, logger logging.ServiceLogger, metrics *Metrics) *SessionManager {
	return &SessionManager{
		authorize: authorize,
		lookup:    lookup,
		store:     st,
		channel:   channel,
		logger:    logger,
		metrics:   metrics,
		sessions:  make(map[string]*session),
		upgrader: websocket.Upgrader{
			// The push channel is token-gated; origin policy is left to the
			// fronting proxy, as with the HTTP mounts.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Connect authorizes the token against the requested path and installs the
// session. An existing session for the same identity is evicted first. The
// returned id identifies the session for Message/Disconnect/Push.
func (m *SessionManager) Connect(ctx context.Context, conn SessionConn, token, path string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("no token supplied")
	}

	result := m.authorize(ctx, token, path)
	if result.Status != wire.StatusSuccess || result.Data == nil {
		return "", fmt.Errorf("connect authorization failed: %s", result.Message)
	}
	id := result.Data.ID

	proc, ok := m.lookup(path)
	if !ok || proc.OnSocket == nil {
		return "", fmt.Errorf("no socket handler registered for %s", path)
	}

	m.mu.Lock()
	if existing, ok := m.sessions[id]; ok {
		_ = existing.conn.Close()
	}
	s := &session{id: id, proc: proc, conn: conn}
	m.sessions[id] = s
	m.mu.Unlock()

	if err := proc.OnSocket(ctx, id, SocketConnect, nil); err != nil {
		m.logger.Error("socket connect callback failed", err, logging.LogFields{"id": id, "path": path})
	}
	return id, nil
}

// Message routes an inbound client message to the owning handler.
func (m *SessionManager) Message(ctx context.Context, id string, data any) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return
	}
	if err := s.proc.OnSocket(ctx, id, SocketMessage, data); err != nil {
		m.logger.Error("socket message callback failed", err, logging.LogFields{"id": id})
	}
}

// Disconnect removes the session, unless a newer connection has already
// superseded it, and notifies the handler.
func (m *SessionManager) Disconnect(ctx context.Context, id string, conn SessionConn) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok && s.conn == conn {
		delete(m.sessions, id)
	} else {
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	if err := s.proc.OnSocket(ctx, id, SocketDisconnect, nil); err != nil {
		m.logger.Error("socket disconnect callback failed", err, logging.LogFields{"id": id})
	}
}

// Push delivers data to the identity's live session. When the session lives
// in another worker process the push is forwarded over the registry pub/sub
// channel; with no session and no forwarding it is a no-op, not an error.
func (m *SessionManager) Push(ctx context.Context, id string, data any) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()

	if ok {
		if err := s.send(pushEnvelope{Event: SocketMessage, Data: data}); err != nil {
			return fmt.Errorf("pushing to session %s: %w", id, err)
		}
		m.metrics.SessionPushes.WithLabelValues("delivered").Inc()
		return nil
	}

	if m.channel == "" || m.store == nil {
		m.metrics.SessionPushes.WithLabelValues("dropped").Inc()
		return nil
	}

	payload, err := jsoncodec.Marshal(forwardEnvelope{ID: id, Data: data})
	if err != nil {
		return fmt.Errorf("encoding push forward: %w", err)
	}
	if err := m.store.Publish(ctx, m.channel, string(payload)); err != nil {
		return fmt.Errorf("forwarding push for %s: %w", id, err)
	}
	m.metrics.SessionPushes.WithLabelValues("forwarded").Inc()
	return nil
}

// Evict closes and removes the identity's session if this worker owns it.
func (m *SessionManager) Evict(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if ok {
		_ = s.conn.Close()
	}
}

// runForwarder listens on the cross-worker channel and delivers forwarded
// pushes for identities this worker owns. Workers without the session ignore
// the payload; the owning worker delivers it directly, never re-forwarding.
func (m *SessionManager) runForwarder(ctx context.Context) {
	if m.channel == "" || m.store == nil {
		return
	}

	msgs, err := m.store.Listen(ctx, m.channel)
	if err != nil {
		m.logger.Error("session forwarder could not subscribe", err, logging.LogFields{"channel": m.channel})
		return
	}

	for payload := range msgs {
		var fwd forwardEnvelope
		if err := jsoncodec.UnmarshalString(payload, &fwd); err != nil {
			m.logger.Debug("ignoring malformed push forward", logging.LogFields{"error": err.Error()})
			continue
		}

		m.mu.Lock()
		s, ok := m.sessions[fwd.ID]
		m.mu.Unlock()
		if !ok {
			continue
		}
		if err := s.send(pushEnvelope{Event: SocketMessage, Data: fwd.Data}); err != nil {
			m.logger.Error("forwarded push delivery failed", err, logging.LogFields{"id": fwd.ID})
			continue
		}
		m.metrics.SessionPushes.WithLabelValues("delivered").Inc()
	}
}

// HandleWS upgrades the HTTP request and drives the session lifecycle:
// connect-time authorization, inbound message routing, and disconnect
// cleanup. Authorization failures close the socket immediately.
func (m *SessionManager) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Debug("websocket upgrade failed", logging.LogFields{"error": err.Error()})
		return
	}

	query := r.URL.Query()
	id, err := m.Connect(r.Context(), conn, query.Get("token"), query.Get("path"))
	if err != nil {
		m.logger.Debug("websocket connect rejected", logging.LogFields{"error": err.Error()})
		_ = conn.Close()
		return
	}

	// Detached from the request context: the session outlives the upgrade
	// request and ends on disconnect.
	ctx := context.Background()
	for {
		var data any
		if err := conn.ReadJSON(&data); err != nil {
			m.Disconnect(ctx, id, conn)
			_ = conn.Close()
			return
		}
		m.Message(ctx, id, data)
	}
}
