package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"tenancy-backend/internal/gateway"
	"tenancy-backend/internal/models"
	"tenancy-backend/internal/session"
)

// ComplaintHandler handles complaint requests. Complaints are immutable
// once filed: there is no update route.
type ComplaintHandler struct {
	complaints *gateway.Complaints
}

// NewComplaintHandler creates a new complaint handler.
func NewComplaintHandler(complaints *gateway.Complaints) *ComplaintHandler {
	return &ComplaintHandler{complaints: complaints}
}

// CreateComplaintRequest represents a complaint submission.
type CreateComplaintRequest struct {
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// Create handles POST /api/v1/complaints
func (h *ComplaintHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateComplaintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Subject == "" || req.Message == "" {
		respondError(w, "subject and message are required", http.StatusBadRequest)
		return
	}

	identity := session.IdentityFrom(r.Context())
	complaint := models.Complaint{
		Subject: req.Subject,
		Message: req.Message,
		UserID:  identity.ID,
	}

	id, err := h.complaints.Insert(r.Context(), complaint)
	if err != nil {
		log.Error().Err(err).Msg("Failed to file complaint")
		respondError(w, "Failed to file complaint", statusFor(err))
		return
	}

	log.Info().
		Str("complaint_id", id).
		Str("identity_id", identity.ID).
		Msg("Complaint filed")
	respondJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// List handles GET /api/v1/complaints. The default is the unscoped
// all-complaints view; ?scope=mine narrows to the caller's own.
func (h *ComplaintHandler) List(w http.ResponseWriter, r *http.Request) {
	var (
		snap gateway.Snapshot[models.Complaint]
		err  error
	)
	if r.URL.Query().Get("scope") == "mine" {
		identity := session.IdentityFrom(r.Context())
		snap, err = h.complaints.ListByOwner(r.Context(), identity.ID)
	} else {
		snap, err = h.complaints.ListAll(r.Context())
	}
	if err != nil {
		respondError(w, "Failed to list complaints", statusFor(err))
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"complaints": snap.Records,
		"dropped":    len(snap.Dropped),
	})
}

// Get handles GET /api/v1/complaints/{complaint_id}
func (h *ComplaintHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "complaint_id")
	complaint, err := h.complaints.GetByID(r.Context(), id)
	if err != nil {
		respondError(w, "Complaint not found", statusFor(err))
		return
	}
	respondJSON(w, http.StatusOK, complaint)
}
