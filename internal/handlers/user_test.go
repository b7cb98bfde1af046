package handlers_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tenancy-backend/internal/blobstore"
	"tenancy-backend/internal/config"
	"tenancy-backend/internal/docstore"
	"tenancy-backend/internal/errdefs"
	"tenancy-backend/internal/gateway"
	"tenancy-backend/internal/handlers"
	"tenancy-backend/internal/models"
)

func userRouter(auth *MockAuthService, store *docstore.Memory, identity *models.Identity) *chi.Mux {
	h := handlers.NewUserHandler(auth, store, gateway.NewProfiles(store, nil), nil)
	r := chi.NewRouter()
	r.Post("/auth/signup", h.SignUp)
	r.Post("/auth/signin", h.SignIn)
	r.Post("/auth/password-reset", h.PasswordReset)
	r.Post("/auth/password-reset/confirm", h.PasswordResetConfirm)
	r.Group(func(r chi.Router) {
		r.Use(withIdentity(identity))
		r.Post("/auth/signout", h.SignOut)
		r.Get("/profile", h.GetProfile)
		r.Patch("/profile", h.UpdateProfile)
	})
	return r
}

func TestSignUpSuccess(t *testing.T) {
	auth := new(MockAuthService)
	auth.On("CreateAccount", mock.Anything, "ann@x.com", "secret123").
		Return(&models.Identity{ID: "u1", Email: "ann@x.com"}, nil)
	auth.On("IssueToken", "u1").Return("tok-1", nil)

	store := docstore.NewMemory()
	r := userRouter(auth, store, nil)

	body := `{"name":"Ann","email":"ann@x.com","password":"secret123","contact":"555-0100"}`
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/signup", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp handlers.AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "tok-1", resp.Token)
	assert.True(t, resp.ProfileCreated)
	assert.Empty(t, resp.Warning)

	doc, err := store.Get(httptest.NewRequest(http.MethodGet, "/", nil).Context(), models.CollectionUsers, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", doc.OwnerID)
}

func TestSignUpPartialFailureStillIssuesToken(t *testing.T) {
	auth := new(MockAuthService)
	auth.On("CreateAccount", mock.Anything, "ann@x.com", "secret123").
		Return(&models.Identity{ID: "u1", Email: "ann@x.com"}, nil)
	auth.On("IssueToken", "u1").Return("tok-1", nil)

	store := docstore.NewMemory()
	store.FailWrites(fmt.Errorf("disk full"))
	r := userRouter(auth, store, nil)

	body := `{"name":"Ann","email":"ann@x.com","password":"secret123"}`
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/signup", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp handlers.AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "tok-1", resp.Token)
	assert.False(t, resp.ProfileCreated)
	assert.NotEmpty(t, resp.Warning)
}

func TestSignUpRejectsBadCredentials(t *testing.T) {
	auth := new(MockAuthService)
	auth.On("CreateAccount", mock.Anything, "ann@x.com", "short").
		Return(nil, fmt.Errorf("password must be at least 6 characters: %w", errdefs.ErrCredential))

	r := userRouter(auth, docstore.NewMemory(), nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/signup",
		strings.NewReader(`{"email":"ann@x.com","password":"short"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSignInInvalidCredentials(t *testing.T) {
	auth := new(MockAuthService)
	auth.On("Authenticate", mock.Anything, "ann@x.com", "wrong").
		Return(nil, fmt.Errorf("invalid email or password: %w", errdefs.ErrCredential))

	r := userRouter(auth, docstore.NewMemory(), nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/signin",
		strings.NewReader(`{"email":"ann@x.com","password":"wrong"}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSignOutRevokes(t *testing.T) {
	auth := new(MockAuthService)
	auth.On("Revoke", mock.Anything, "u1").Return(nil)

	r := userRouter(auth, docstore.NewMemory(), &models.Identity{ID: "u1"})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/signout", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	auth.AssertCalled(t, "Revoke", mock.Anything, "u1")
}

func TestPasswordResetFlow(t *testing.T) {
	auth := new(MockAuthService)
	auth.On("SendPasswordReset", mock.Anything, "ann@x.com").Return(nil)
	auth.On("ResetPassword", mock.Anything, "reset-1", "newsecret").Return(nil)

	r := userRouter(auth, docstore.NewMemory(), nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/password-reset",
		strings.NewReader(`{"email":"ann@x.com"}`)))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/password-reset/confirm",
		strings.NewReader(`{"token":"reset-1","new_password":"newsecret"}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetProfile(t *testing.T) {
	store := docstore.NewMemory()
	ctx := httptest.NewRequest(http.MethodGet, "/", nil).Context()
	require.NoError(t, store.Put(ctx, models.CollectionUsers, "u1", "u1",
		json.RawMessage(`{"name":"Ann","email":"ann@x.com","contactNumber":"555-0100"}`)))

	r := userRouter(new(MockAuthService), store, &models.Identity{ID: "u1", Email: "ann@x.com"})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/profile", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.UserProfile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "u1", got.ID)
	assert.Equal(t, "Ann", got.Name)
}

func TestUpdateProfilePatchesFields(t *testing.T) {
	store := docstore.NewMemory()
	ctx := httptest.NewRequest(http.MethodGet, "/", nil).Context()
	require.NoError(t, store.Put(ctx, models.CollectionUsers, "u1", "u1",
		json.RawMessage(`{"name":"Ann","email":"ann@x.com","contactNumber":"555-0100"}`)))

	r := userRouter(new(MockAuthService), store, &models.Identity{ID: "u1", Email: "ann@x.com"})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/profile",
		strings.NewReader(`{"contactNumber":"555-0199"}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	doc, err := store.Get(ctx, models.CollectionUsers, "u1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Ann","email":"ann@x.com","contactNumber":"555-0199"}`, string(doc.Data))
}

func photoRouter(t *testing.T, store *docstore.Memory, identity *models.Identity) *chi.Mux {
	t.Helper()
	blobs, err := blobstore.NewS3Store(context.Background(), config.AWSConfig{
		Region:    "us-east-1",
		S3Bucket:  "photos",
		AccessKey: "test",
		SecretKey: "test",
		Endpoint:  "http://localhost:9000",
	})
	require.NoError(t, err)

	h := handlers.NewUserHandler(new(MockAuthService), store, gateway.NewProfiles(store, nil), blobs)
	r := chi.NewRouter()
	r.Use(withIdentity(identity))
	r.Post("/profile/photo/presign", h.PresignPhoto)
	r.Post("/profile/photo/confirm", h.ConfirmPhoto)
	return r
}

func TestPresignPhotoDefersWriteBack(t *testing.T) {
	store := docstore.NewMemory()
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, models.CollectionUsers, "u1", "u1",
		json.RawMessage(`{"name":"Ann","email":"ann@x.com"}`)))

	r := photoRouter(t, store, &models.Identity{ID: "u1", Email: "ann@x.com"})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/profile/photo/presign", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var presign struct {
		UploadURL string `json:"upload_url"`
		PublicURL string `json:"public_url"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &presign))
	assert.NotEmpty(t, presign.UploadURL)
	assert.Equal(t, "http://localhost:9000/photos/users/u1/profile.jpg", presign.PublicURL)

	// The profile does not point at the photo until the upload is confirmed.
	doc, err := store.Get(ctx, models.CollectionUsers, "u1")
	require.NoError(t, err)
	assert.NotContains(t, string(doc.Data), "profileImagePath")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/profile/photo/confirm", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	doc, err = store.Get(ctx, models.CollectionUsers, "u1")
	require.NoError(t, err)
	assert.Contains(t, string(doc.Data), `"profileImagePath":"http://localhost:9000/photos/users/u1/profile.jpg"`)
}

func TestUpdateProfileCompletesPartialSignUp(t *testing.T) {
	// No profile record exists yet: the account was created but the profile
	// write failed during sign-up. PATCH /profile creates it.
	store := docstore.NewMemory()
	r := userRouter(new(MockAuthService), store, &models.Identity{ID: "u1", Email: "ann@x.com"})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/profile",
		strings.NewReader(`{"name":"Ann","contactNumber":"555-0100"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)

	ctx := httptest.NewRequest(http.MethodGet, "/", nil).Context()
	doc, err := store.Get(ctx, models.CollectionUsers, "u1")
	require.NoError(t, err)

	var profile models.UserProfile
	require.NoError(t, json.Unmarshal(doc.Data, &profile))
	assert.Equal(t, "Ann", profile.Name)
	assert.Equal(t, "ann@x.com", profile.Email)
	assert.Equal(t, "555-0100", profile.ContactNumber)
}
