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

// VendorHandler handles vendor contact requests. Vendor lists are
// per-identity: every route works on the caller's own vendors.
type VendorHandler struct {
	vendors *gateway.Vendors
}

// NewVendorHandler creates a new vendor handler.
func NewVendorHandler(vendors *gateway.Vendors) *VendorHandler {
	return &VendorHandler{vendors: vendors}
}

// VendorRequest represents a vendor create or update body.
type VendorRequest struct {
	Name  *string `json:"name"`
	Role  *string `json:"role"`
	Phone *string `json:"phone"`
}

// Create handles POST /api/v1/vendors
func (h *VendorHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req VendorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == nil || req.Phone == nil {
		respondError(w, "name and phone are required", http.StatusBadRequest)
		return
	}

	identity := session.IdentityFrom(r.Context())
	vendor := models.Vendor{
		Name:   *req.Name,
		Phone:  *req.Phone,
		UserID: identity.ID,
	}
	if req.Role != nil {
		vendor.Role = *req.Role
	}

	id, err := h.vendors.Insert(r.Context(), vendor)
	if err != nil {
		log.Error().Err(err).Msg("Failed to add vendor")
		respondError(w, "Failed to add vendor", statusFor(err))
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// List handles GET /api/v1/vendors
func (h *VendorHandler) List(w http.ResponseWriter, r *http.Request) {
	identity := session.IdentityFrom(r.Context())
	snap, err := h.vendors.ListByOwner(r.Context(), identity.ID)
	if err != nil {
		respondError(w, "Failed to list vendors", statusFor(err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"vendors": snap.Records,
		"dropped": len(snap.Dropped),
	})
}

// Get handles GET /api/v1/vendors/{vendor_id}
func (h *VendorHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "vendor_id")
	vendor, err := h.vendors.GetByID(r.Context(), id)
	if err != nil {
		respondError(w, "Vendor not found", statusFor(err))
		return
	}
	respondJSON(w, http.StatusOK, vendor)
}

// Update handles PATCH /api/v1/vendors/{vendor_id}. Ownership is enforced
// by the gateway: updating another user's vendor fails.
func (h *VendorHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req VendorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	fields := make(map[string]any)
	if req.Name != nil {
		fields["name"] = *req.Name
	}
	if req.Role != nil {
		fields["role"] = *req.Role
	}
	if req.Phone != nil {
		fields["phone"] = *req.Phone
	}
	if len(fields) == 0 {
		respondError(w, "No fields to update", http.StatusBadRequest)
		return
	}

	id := chi.URLParam(r, "vendor_id")
	if err := h.vendors.Update(r.Context(), id, fields); err != nil {
		respondError(w, "Failed to update vendor", statusFor(err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}
