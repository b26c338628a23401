package transport

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"

	"nhooyr.io/websocket"

	"github.com/collabcore/editorcore/pkg/auth"
	"github.com/collabcore/editorcore/pkg/logger"
	"github.com/collabcore/editorcore/pkg/session"
)

// Server is the HTTP entry point: it accepts WebSocket upgrades on /ws,
// runs the handshake, and hands the connection off to the session
// registry.
type Server struct {
	mux      *http.ServeMux
	registry *session.Registry
	verifier auth.Verifier
	cfg      Config
	nextID   atomic.Uint64
}

// NewServer wires a Server backed by registry for session routing and
// verifier for handshake auth.
func NewServer(registry *session.Registry, verifier auth.Verifier, cfg Config) *Server {
	s := &Server{
		mux:      http.NewServeMux(),
		registry: registry,
		verifier: verifier,
		cfg:      cfg,
	}
	s.mux.HandleFunc("/ws", s.handleWebSocket)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleWebSocket runs the handshake: parse document_id and token from
// the query string, verify the token, resolve the session, accept the
// upgrade, and run the connection to completion.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	documentID := r.URL.Query().Get("doc")
	token := r.URL.Query().Get("token")
	if documentID == "" {
		http.Error(w, "doc is required", http.StatusBadRequest)
		return
	}

	userID, err := s.verifier.Verify(ctx, token)
	if err != nil {
		conn, acceptErr := websocket.Accept(w, r, nil)
		if acceptErr == nil {
			conn.Close(websocket.StatusCode(4401), "unauthorized")
		}
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		logger.Error("websocket upgrade failed: %v", err)
		return
	}

	clientID := s.nextID.Add(1)

	for {
		actor, err := s.registry.GetOrCreate(ctx, documentID)
		if err != nil {
			logger.Error("session %s: failed to resolve actor: %v", documentID, err)
			conn.Close(websocket.StatusInternalError, "")
			return
		}

		conn2 := NewConnection(ctx, conn, actor, documentID, userID, clientID, s.cfg)
		err = conn2.Handle()
		if errors.Is(err, session.ErrActorDraining) {
			continue
		}
		if err != nil {
			logger.Error("session %s: connection %d ended: %v", documentID, clientID, err)
		}
		return
	}
}
