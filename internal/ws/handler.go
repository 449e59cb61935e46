package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/firstserv/chat-platform/internal/model"
	"github.com/firstserv/chat-platform/internal/registry"
	"github.com/firstserv/chat-platform/internal/store"
	"github.com/firstserv/chat-platform/pkg/logger"
	"github.com/firstserv/chat-platform/pkg/metrics"
)

const writeWait = 10 * time.Second

// IdentityResolver validates an opaque bearer credential into a user handle.
type IdentityResolver interface {
	ResolveIdentity(credential string) (string, error)
}

// Subscriptions is the registry surface the handler binds connections to.
type Subscriptions interface {
	Subscribe(conversationID string, sub registry.Subscriber) error
	Unsubscribe(conversationID string, sub registry.Subscriber)
}

// Submitter is the dispatcher surface inbound events are handed to.
type Submitter interface {
	Submit(ctx context.Context, conversationID, sender, content, media string) (*model.Message, error)
	Typing(conversationID, user string)
}

// Config tunes per-connection queue and transport limits.
type Config struct {
	SendQueueSize  int
	MaxMessageSize int64
	PongTimeout    time.Duration
}

// Handler upgrades live-connection requests and drives each connection's
// state machine.
type Handler struct {
	authenticator IdentityResolver
	subscriptions Subscriptions
	dispatcher    Submitter
	logger        *logger.Logger
	cfg           Config
	upgrader      websocket.Upgrader
}

// NewHandler creates a WebSocket connection handler.
func NewHandler(authenticator IdentityResolver, subs Subscriptions, dispatcher Submitter, cfg Config, log *logger.Logger) *Handler {
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = 256
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 64 * 1024
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = 60 * time.Second
	}
	return &Handler{
		authenticator: authenticator,
		subscriptions: subs,
		dispatcher:    dispatcher,
		logger:        log,
		cfg:           cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browsers cannot attach Authorization headers to WebSocket
			// handshakes; the bearer token authenticates the connection, so
			// origin alone is not a trust boundary here.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Serve handles GET /conversations/{id}/ws. The connection is accepted at
// the transport level first; authentication and membership failures then
// close it with a policy-violation frame, per the handshake contract.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")

	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error.
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	conn := newConn(wsConn, h.cfg.SendQueueSize)
	conn.conversationID = conversationID

	// Authenticating
	conn.state.Store(stateAuthenticating)
	handle, err := h.authenticator.ResolveIdentity(bearerCredential(r))
	if err != nil {
		h.logger.Info("live connection rejected: invalid credential", "conversation_id", conversationID)
		conn.closeNow(websocket.ClosePolicyViolation, "invalid credential")
		return
	}
	conn.handle = handle

	// Validating
	conn.state.Store(stateValidating)
	if err := h.subscriptions.Subscribe(conversationID, conn); err != nil {
		reason := "subscription rejected"
		switch {
		case errors.Is(err, store.ErrNotFound):
			reason = "unknown conversation"
		case errors.Is(err, registry.ErrForbidden):
			reason = "not a participant"
		default:
			h.logger.Error("subscribe failed", "error", err, "conversation_id", conversationID, "user", handle)
		}
		h.logger.Info("live connection rejected", "reason", reason, "conversation_id", conversationID, "user", handle)
		conn.closeNow(websocket.ClosePolicyViolation, reason)
		return
	}

	// Subscribed
	conn.state.Store(stateSubscribed)
	metrics.WSConnectionsActive.Inc()
	h.logger.Info("subscriber connected", "conversation_id", conversationID, "user", handle)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.writePump(conn)
	}()

	h.readPump(r.Context(), conn)
	wg.Wait()

	// Closing -> Closed: the registry entry is released exactly once here,
	// after both pumps have stopped, regardless of which side triggered it.
	h.subscriptions.Unsubscribe(conversationID, conn)
	_ = wsConn.Close()
	conn.state.Store(stateClosed)
	metrics.WSConnectionsActive.Dec()
	h.logger.Info("subscriber disconnected", "conversation_id", conversationID, "user", handle)
}

// bearerCredential extracts the opaque credential from the handshake: the
// Authorization header when present, else the token query parameter (the
// only form browser clients can send).
func bearerCredential(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// readPump decodes inbound frames and hands them to the dispatcher. It
// returns when the transport fails, the peer closes, or the connection is
// asked to close.
func (h *Handler) readPump(ctx context.Context, conn *Conn) {
	defer conn.beginClose(websocket.CloseNormalClosure, "")

	conn.ws.SetReadLimit(h.cfg.MaxMessageSize)
	_ = conn.ws.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	})

	for {
		_, raw, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				h.logger.Warn("read error", "error", err, "user", conn.handle)
			}
			return
		}

		var ev model.ClientEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			// Malformed frame: drop it, keep the connection.
			h.logger.Warn("dropping malformed frame", "error", err, "user", conn.handle)
			continue
		}

		switch ev.Type {
		case model.EventTypeMessage:
			if _, err := h.dispatcher.Submit(ctx, conn.conversationID, conn.handle, ev.Content, ev.Media); err != nil {
				// A store failure degrades this submission only; nothing was
				// broadcast and the connection stays up.
				h.logger.Error("submit failed", "error", err,
					"conversation_id", conn.conversationID, "user", conn.handle)
			}
		case model.EventTypeTyping:
			h.dispatcher.Typing(conn.conversationID, conn.handle)
		default:
			h.logger.Warn("dropping frame with unknown type", "type", ev.Type, "user", conn.handle)
		}
	}
}

// writePump owns all writes on the connection: queued outbound events,
// keepalive pings, and the final close frame.
func (h *Handler) writePump(conn *Conn) {
	pingInterval := h.cfg.PongTimeout * 9 / 10
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	// Closing the transport here unblocks a read pump still parked in
	// ReadMessage, so both pumps wind down together.
	defer conn.ws.Close()

	for {
		select {
		case ev := <-conn.send:
			_ = conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.ws.WriteJSON(ev); err != nil {
				h.logger.Debug("write failed", "error", err, "user", conn.handle)
				conn.beginClose(websocket.CloseAbnormalClosure, "write failure")
				return
			}

		case <-ticker.C:
			_ = conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.beginClose(websocket.CloseAbnormalClosure, "ping failure")
				return
			}

		case <-conn.closing:
			msg := websocket.FormatCloseMessage(conn.closeCode, conn.closeReason)
			_ = conn.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			return
		}
	}
}
