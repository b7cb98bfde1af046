package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"tenancy-backend/internal/authn"
	"tenancy-backend/internal/blobstore"
	"tenancy-backend/internal/docstore"
	"tenancy-backend/internal/errdefs"
	"tenancy-backend/internal/gateway"
	"tenancy-backend/internal/session"
)

const maxPhotoBytes = 5 << 20

// UserHandler handles sign-up, sign-in and profile requests.
type UserHandler struct {
	auth     authn.Service
	store    docstore.Store
	profiles *gateway.Profiles
	blobs    *blobstore.S3Store
}

// NewUserHandler creates a new user handler.
func NewUserHandler(auth authn.Service, store docstore.Store, profiles *gateway.Profiles, blobs *blobstore.S3Store) *UserHandler {
	return &UserHandler{
		auth:     auth,
		store:    store,
		profiles: profiles,
		blobs:    blobs,
	}
}

// SignUpRequest represents a sign-up request body.
type SignUpRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Contact  string `json:"contact"`
	Photo    string `json:"photo"`
}

// SignInRequest represents a sign-in request body.
type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse carries the established identity and its bearer token.
// ProfileCreated is false for the partial sign-up outcome: the account
// exists but the profile write failed and should be retried.
type AuthResponse struct {
	Identity       any    `json:"identity"`
	Token          string `json:"token"`
	ProfileCreated bool   `json:"profile_created"`
	Warning        string `json:"warning,omitempty"`
}

// SignUp handles POST /api/v1/auth/signup
func (h *UserHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req SignUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	sess := session.NewManager(h.auth, h.store)
	identity, err := sess.SignUp(r.Context(), session.SignUpInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Contact:  req.Contact,
		Photo:    req.Photo,
	})
	if err != nil {
		if created, ok := errdefs.IsPartialSignUp(err); ok {
			token, tokenErr := h.auth.IssueToken(created.ID)
			if tokenErr != nil {
				respondError(w, "Failed to issue token", http.StatusInternalServerError)
				return
			}
			log.Error().Err(err).Str("identity_id", created.ID).Msg("Sign-up completed without profile")
			respondJSON(w, http.StatusCreated, AuthResponse{
				Identity:       created,
				Token:          token,
				ProfileCreated: false,
				Warning:        "profile write failed, retry via PATCH /profile",
			})
			return
		}
		if errdefs.IsCredential(err) {
			respondError(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Error().Err(err).Msg("Failed to sign up")
		respondError(w, "Failed to sign up", statusFor(err))
		return
	}

	token, err := h.auth.IssueToken(identity.ID)
	if err != nil {
		respondError(w, "Failed to issue token", http.StatusInternalServerError)
		return
	}

	log.Info().Str("identity_id", identity.ID).Msg("User signed up")
	respondJSON(w, http.StatusCreated, AuthResponse{Identity: identity, Token: token, ProfileCreated: true})
}

// SignIn handles POST /api/v1/auth/signin
func (h *UserHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	sess := session.NewManager(h.auth, h.store)
	identity, err := sess.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		respondError(w, "Invalid email or password", statusFor(err))
		return
	}

	token, err := h.auth.IssueToken(identity.ID)
	if err != nil {
		respondError(w, "Failed to issue token", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, AuthResponse{Identity: identity, Token: token, ProfileCreated: true})
}

// SignOut handles POST /api/v1/auth/signout. Revoking the identity signs out
// every session, including live websocket ones.
func (h *UserHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	identity := session.IdentityFrom(r.Context())
	if err := h.auth.Revoke(r.Context(), identity.ID); err != nil {
		log.Error().Err(err).Str("identity_id", identity.ID).Msg("Failed to revoke sessions")
		respondError(w, "Failed to sign out", statusFor(err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "signed out"})
}

// PasswordReset handles POST /api/v1/auth/password-reset
func (h *UserHandler) PasswordReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		respondError(w, "email is required", http.StatusBadRequest)
		return
	}

	if err := h.auth.SendPasswordReset(r.Context(), req.Email); err != nil {
		respondError(w, "Failed to issue password reset", statusFor(err))
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "reset issued"})
}

// PasswordResetConfirm handles POST /api/v1/auth/password-reset/confirm
func (h *UserHandler) PasswordResetConfirm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token       string `json:"token"`
		NewPassword string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.auth.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		respondError(w, err.Error(), statusFor(err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "password reset"})
}

// GetProfile handles GET /api/v1/profile
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	identity := session.IdentityFrom(r.Context())
	profile, err := h.profiles.GetByID(r.Context(), identity.ID)
	if err != nil {
		respondError(w, "Profile not found", statusFor(err))
		return
	}
	respondJSON(w, http.StatusOK, profile)
}

// UpdateProfileRequest represents a partial profile update.
type UpdateProfileRequest struct {
	Name          *string `json:"name"`
	ContactNumber *string `json:"contactNumber"`
	Photo         *string `json:"photo"`
	PushToken     *string `json:"pushToken"`
}

// UpdateProfile handles PATCH /api/v1/profile
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	fields := make(map[string]any)
	if req.Name != nil {
		fields["name"] = *req.Name
	}
	if req.ContactNumber != nil {
		fields["contactNumber"] = *req.ContactNumber
	}
	if req.Photo != nil {
		fields["photo"] = *req.Photo
	}
	if req.PushToken != nil {
		fields["pushToken"] = *req.PushToken
	}
	if len(fields) == 0 {
		respondError(w, "No fields to update", http.StatusBadRequest)
		return
	}

	identity := session.IdentityFrom(r.Context())
	if err := h.profiles.Update(r.Context(), identity.ID, fields); err != nil {
		if errdefs.IsNotFound(err) {
			// The partial sign-up case: account without a profile yet.
			h.createProfile(w, r, identity.ID, req)
			return
		}
		respondError(w, "Failed to update profile", statusFor(err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// createProfile writes a fresh profile record for an identity that has none,
// completing a sign-up whose profile write failed.
func (h *UserHandler) createProfile(w http.ResponseWriter, r *http.Request, identityID string, req UpdateProfileRequest) {
	identity := session.IdentityFrom(r.Context())
	profile := struct {
		Name          string `json:"name"`
		Email         string `json:"email"`
		ContactNumber string `json:"contactNumber"`
		Photo         string `json:"photo"`
	}{Email: identity.Email}
	if req.Name != nil {
		profile.Name = *req.Name
	}
	if req.ContactNumber != nil {
		profile.ContactNumber = *req.ContactNumber
	}
	if req.Photo != nil {
		profile.Photo = *req.Photo
	}

	data, err := json.Marshal(profile)
	if err == nil {
		err = h.store.Put(r.Context(), gateway.UsersCollection.Name, identityID, identityID, data)
	}
	if err != nil {
		respondError(w, "Failed to create profile", statusFor(err))
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"status": "created"})
}

// UploadPhoto handles POST /api/v1/profile/photo. The photo lands in the
// blob store and its URL is written back to the profile record.
func (h *UserHandler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	identity := session.IdentityFrom(r.Context())

	data, err := io.ReadAll(io.LimitReader(r.Body, maxPhotoBytes+1))
	if err != nil || len(data) == 0 {
		respondError(w, "Photo body required", http.StatusBadRequest)
		return
	}
	if len(data) > maxPhotoBytes {
		respondError(w, "Photo too large", http.StatusRequestEntityTooLarge)
		return
	}

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}

	key := blobstore.ProfilePhotoKey(identity.ID)
	url, err := h.blobs.Put(r.Context(), key, data, contentType)
	if err != nil {
		log.Error().Err(err).Str("identity_id", identity.ID).Msg("Failed to upload profile photo")
		respondError(w, "Failed to upload photo", http.StatusBadGateway)
		return
	}

	if err := h.profiles.Update(r.Context(), identity.ID, map[string]any{"profileImagePath": url}); err != nil {
		respondError(w, "Photo stored but profile update failed", statusFor(err))
		return
	}

	log.Info().Str("identity_id", identity.ID).Msg("Profile photo uploaded")
	respondJSON(w, http.StatusOK, map[string]string{"url": url})
}

// PresignPhoto handles POST /api/v1/profile/photo/presign. The profile is
// not touched here: the URL is written back by ConfirmPhoto once the client
// reports the upload done, so an abandoned upload never leaves the profile
// pointing at a missing object.
func (h *UserHandler) PresignPhoto(w http.ResponseWriter, r *http.Request) {
	identity := session.IdentityFrom(r.Context())

	contentType := r.URL.Query().Get("content_type")
	if contentType == "" {
		contentType = "image/jpeg"
	}

	key := blobstore.ProfilePhotoKey(identity.ID)
	uploadURL, err := h.blobs.PresignPut(r.Context(), key, contentType)
	if err != nil {
		respondError(w, "Failed to generate upload URL", http.StatusBadGateway)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"upload_url": uploadURL,
		"public_url": h.blobs.URL(key),
		"expires_in": 300,
	})
}

// ConfirmPhoto handles POST /api/v1/profile/photo/confirm, writing the photo
// URL to the profile after a presigned upload completed.
func (h *UserHandler) ConfirmPhoto(w http.ResponseWriter, r *http.Request) {
	identity := session.IdentityFrom(r.Context())

	url := h.blobs.URL(blobstore.ProfilePhotoKey(identity.ID))
	if err := h.profiles.Update(r.Context(), identity.ID, map[string]any{"profileImagePath": url}); err != nil {
		respondError(w, "Failed to update profile", statusFor(err))
		return
	}

	log.Info().Str("identity_id", identity.ID).Msg("Profile photo confirmed")
	respondJSON(w, http.StatusOK, map[string]string{"url": url})
}
