package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"tenancy-backend/internal/docstore"
	"tenancy-backend/internal/gateway"
	"tenancy-backend/internal/models"
	"tenancy-backend/internal/push"
	"tenancy-backend/internal/session"
)

// MessageHandler handles message submission. Messages are write-only:
// storage plus a best-effort push to the recipient's device.
type MessageHandler struct {
	messages *gateway.Messages
	profiles *gateway.Profiles
	notifier *push.Notifier // nil when push is disabled
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(messages *gateway.Messages, profiles *gateway.Profiles, notifier *push.Notifier) *MessageHandler {
	return &MessageHandler{
		messages: messages,
		profiles: profiles,
		notifier: notifier,
	}
}

// SendMessageRequest represents a message submission.
type SendMessageRequest struct {
	Recipient string `json:"recipient"`
	Content   string `json:"content"`
}

// Send handles POST /api/v1/messages
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Recipient == "" || req.Content == "" {
		respondError(w, "recipient and content are required", http.StatusBadRequest)
		return
	}

	identity := session.IdentityFrom(r.Context())
	msg := models.Message{
		Recipient: req.Recipient,
		Content:   req.Content,
		Timestamp: time.Now(),
		SenderID:  identity.ID,
	}

	id, err := h.messages.Insert(r.Context(), msg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to store message")
		respondError(w, "Failed to send message", statusFor(err))
		return
	}

	if h.notifier != nil {
		go h.notifyRecipient(req.Recipient, identity.Email, req.Content)
	}

	respondJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// notifyRecipient pushes a notification to the recipient's registered
// device. The message is already stored, so failures are only logged.
func (h *MessageHandler) notifyRecipient(recipient, sender, content string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	snap, err := h.profiles.List(ctx, docstore.Filter{Equals: map[string]string{"email": recipient}})
	if err != nil {
		log.Warn().Err(err).Str("recipient", recipient).Msg("Failed to look up message recipient")
		return
	}
	for _, profile := range snap.Records {
		if profile.PushToken == "" {
			continue
		}
		if err := h.notifier.MessageReceived(ctx, profile.PushToken, sender, content); err != nil {
			log.Warn().Err(err).Str("recipient", recipient).Msg("Failed to push message notification")
		}
		return
	}
}
