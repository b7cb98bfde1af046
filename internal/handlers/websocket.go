package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"tenancy-backend/internal/authn"
	"tenancy-backend/internal/docstore"
	"tenancy-backend/internal/gateway"
	"tenancy-backend/internal/models"
	"tenancy-backend/internal/session"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for MVP
	},
}

// WSMessage represents a WebSocket message, both client commands and
// server events.
type WSMessage struct {
	Type       string           `json:"type"`
	Collection string           `json:"collection,omitempty"`
	Scope      string           `json:"scope,omitempty"`
	Records    any              `json:"records,omitempty"`
	Dropped    int              `json:"dropped,omitempty"`
	SignedIn   *bool            `json:"signed_in,omitempty"`
	Identity   *models.Identity `json:"identity,omitempty"`
	Message    string           `json:"message,omitempty"`
}

// WebSocketHandler serves one client session per connection: auth-state
// transitions plus live collection snapshots.
type WebSocketHandler struct {
	auth  authn.Service
	store docstore.Store
	rdb   *redis.Client
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(auth authn.Service, store docstore.Store, rdb *redis.Client) *WebSocketHandler {
	return &WebSocketHandler{auth: auth, store: store, rdb: rdb}
}

// HandleWebSocket handles WebSocket connections.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		respondError(w, "token required", http.StatusUnauthorized)
		return
	}

	// One session manager per connection: the connection is the client
	// process from the session's point of view.
	sess := session.NewManager(h.auth, h.store)
	identity, err := sess.Restore(r.Context(), token)
	if err != nil {
		respondError(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go sess.Run(ctx)
	if h.rdb != nil {
		feed, err := authn.WatchRevocations(ctx, h.rdb)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to watch revocations")
		} else {
			defer feed.Close()
			go sess.WatchRevocations(ctx, feed)
		}
	}

	out := make(chan WSMessage, 16)
	go writePump(ctx, conn, out)

	cancelAuth := sess.Subscribe(func(identity *models.Identity) {
		signedIn := identity != nil
		select {
		case out <- WSMessage{Type: "auth_state", SignedIn: &signedIn, Identity: identity}:
		case <-ctx.Done():
		}
	})
	defer cancelAuth()

	complaints := gateway.NewComplaints(h.store, sess)
	vendors := gateway.NewVendors(h.store, sess)

	streams := make(map[string]interface{ Cancel() })
	defer func() {
		for _, live := range streams {
			live.Cancel()
		}
	}()

	log.Info().Str("identity_id", identity.ID).Msg("WebSocket connection established")

	for {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("identity_id", identity.ID).Msg("WebSocket error")
			}
			return
		}

		switch msg.Type {
		case "subscribe":
			h.handleSubscribe(ctx, msg, identity, complaints, vendors, streams, out)
		case "unsubscribe":
			key := streamKey(msg.Collection, msg.Scope)
			if live, ok := streams[key]; ok {
				live.Cancel()
				delete(streams, key)
			}
		default:
			sendEvent(ctx, out, WSMessage{Type: "error", Message: "Unknown message type"})
		}
	}
}

func (h *WebSocketHandler) handleSubscribe(
	ctx context.Context,
	msg WSMessage,
	identity *models.Identity,
	complaints *gateway.Complaints,
	vendors *gateway.Vendors,
	streams map[string]interface{ Cancel() },
	out chan<- WSMessage,
) {
	key := streamKey(msg.Collection, msg.Scope)
	if _, ok := streams[key]; ok {
		return
	}

	switch msg.Collection {
	case models.CollectionComplaints:
		var (
			live *gateway.Live[models.Complaint, *models.Complaint]
			err  error
		)
		if msg.Scope == "all" {
			live, err = complaints.QueryAll(ctx)
		} else {
			live, err = complaints.QueryByOwner(ctx, identity.ID)
		}
		if err != nil {
			sendEvent(ctx, out, WSMessage{Type: "error", Collection: msg.Collection, Message: err.Error()})
			return
		}
		streams[key] = live
		go forwardSnapshots(ctx, msg.Collection, msg.Scope, live, out)

	case models.CollectionVendors:
		// Vendors have no unscoped view.
		if msg.Scope == "all" {
			sendEvent(ctx, out, WSMessage{Type: "error", Collection: msg.Collection, Message: "Unsupported scope"})
			return
		}
		live, err := vendors.QueryByOwner(ctx, identity.ID)
		if err != nil {
			sendEvent(ctx, out, WSMessage{Type: "error", Collection: msg.Collection, Message: err.Error()})
			return
		}
		streams[key] = live
		go forwardSnapshots(ctx, msg.Collection, msg.Scope, live, out)

	default:
		sendEvent(ctx, out, WSMessage{Type: "error", Collection: msg.Collection, Message: "Unknown collection"})
	}
}

// forwardSnapshots relays live snapshots to the connection until the view
// is cancelled. A terminal failure of the view is reported to the client
// rather than going silent.
func forwardSnapshots[T any, PT gateway.Record[T]](
	ctx context.Context,
	collection, scope string,
	live *gateway.Live[T, PT],
	out chan<- WSMessage,
) {
	for snap := range live.Snapshots() {
		event := WSMessage{
			Type:       "snapshot",
			Collection: collection,
			Scope:      scope,
			Records:    snap.Records,
			Dropped:    len(snap.Dropped),
		}
		select {
		case out <- event:
		case <-ctx.Done():
			live.Cancel()
			return
		}
	}
	if err := live.Err(); err != nil {
		sendEvent(ctx, out, WSMessage{
			Type:       "error",
			Collection: collection,
			Scope:      scope,
			Message:    "live query terminated: " + err.Error(),
		})
	}
}

func writePump(ctx context.Context, conn *websocket.Conn, out <-chan WSMessage) {
	for {
		select {
		case msg := <-out:
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func sendEvent(ctx context.Context, out chan<- WSMessage, msg WSMessage) {
	select {
	case out <- msg:
	case <-ctx.Done():
	}
}

func streamKey(collection, scope string) string {
	return collection + ":" + scope
}
