// Package session owns the current authenticated identity: who is signed in,
// transitions between signed-out and signed-in, and push-style notification
// of every dependent on each transition.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"tenancy-backend/internal/docstore"
	"tenancy-backend/internal/errdefs"
	"tenancy-backend/internal/models"
)

// CredentialService is the slice of the credential boundary the manager
// needs. Satisfied by authn.Service.
type CredentialService interface {
	CreateAccount(ctx context.Context, email, password string) (*models.Identity, error)
	Authenticate(ctx context.Context, email, password string) (*models.Identity, error)
	VerifyToken(ctx context.Context, token string) (*models.Identity, error)
}

// RevocationSource is a live feed of revoked identity ids. Satisfied by
// *authn.Revocations.
type RevocationSource interface {
	Revoked() <-chan string
}

// Listener observes identity transitions. It receives the current identity,
// or nil when signed out.
type Listener func(*models.Identity)

type subscriber struct {
	id int
	fn Listener
}

// Manager is the single source of truth for the current identity of one
// logical client session. All listener callbacks are delivered on the one
// goroutine driving Run, in transition order.
type Manager struct {
	auth  CredentialService
	store docstore.Store

	mu      sync.RWMutex
	current *models.Identity
	subs    []subscriber
	nextID  int

	queue chan func()
}

// SignUpInput carries the fields of a sign-up request.
type SignUpInput struct {
	Name     string
	Email    string
	Password string
	Contact  string
	Photo    string
}

// NewManager creates a signed-out manager.
func NewManager(auth CredentialService, store docstore.Store) *Manager {
	return &Manager{
		auth:  auth,
		store: store,
		queue: make(chan func(), 64),
	}
}

// Run drives listener delivery until ctx is cancelled. Without a running
// Run, subscribed listeners are not invoked.
func (m *Manager) Run(ctx context.Context) {
	for {
		select {
		case fn := <-m.queue:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// SignUp creates a credential account and its profile record. When the
// account is created but the profile write fails, the returned error is a
// *errdefs.PartialSignUpError and the identity is signed in regardless: the
// caller may retry the profile write without recreating the account.
func (m *Manager) SignUp(ctx context.Context, in SignUpInput) (*models.Identity, error) {
	if m.Current() != nil {
		return nil, fmt.Errorf("already signed in, sign out first: %w", errdefs.ErrAuth)
	}

	identity, err := m.auth.CreateAccount(ctx, in.Email, in.Password)
	if err != nil {
		return nil, err
	}
	m.setCurrent(identity)

	profile := models.UserProfile{
		Name:          in.Name,
		Email:         in.Email,
		ContactNumber: in.Contact,
		Photo:         in.Photo,
	}
	data, err := json.Marshal(profile)
	if err == nil {
		err = m.store.Put(ctx, models.CollectionUsers, identity.ID, identity.ID, data)
	}
	if err != nil {
		log.Error().Err(err).Str("identity_id", identity.ID).Msg("Profile write failed after account creation")
		return identity, &errdefs.PartialSignUpError{Identity: identity, Err: err}
	}

	return identity, nil
}

// SignIn validates credentials and transitions to SignedIn. On failure the
// current identity is unchanged.
func (m *Manager) SignIn(ctx context.Context, email, password string) (*models.Identity, error) {
	if m.Current() != nil {
		return nil, fmt.Errorf("already signed in, sign out first: %w", errdefs.ErrAuth)
	}

	identity, err := m.auth.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	m.setCurrent(identity)
	return identity, nil
}

// SignOut clears the current identity. Idempotent.
func (m *Manager) SignOut(ctx context.Context) error {
	if m.Current() == nil {
		return nil
	}
	m.setCurrent(nil)
	return nil
}

// Restore establishes the initial state from a persisted token.
func (m *Manager) Restore(ctx context.Context, token string) (*models.Identity, error) {
	if m.Current() != nil {
		return nil, fmt.Errorf("already signed in: %w", errdefs.ErrAuth)
	}

	identity, err := m.auth.VerifyToken(ctx, token)
	if err != nil {
		return nil, err
	}
	m.setCurrent(identity)
	return identity, nil
}

// Current returns the current identity, or nil when signed out.
func (m *Manager) Current() *models.Identity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Subscribe registers a listener. It is invoked once immediately with the
// current state and again on every transition, until cancel is called.
// Cancel stops further callbacks, including any not yet delivered.
func (m *Manager) Subscribe(fn Listener) (cancel func()) {
	m.mu.Lock()
	m.nextID++
	sub := subscriber{id: m.nextID, fn: fn}
	m.subs = append(m.subs, sub)
	current := m.current
	m.mu.Unlock()

	m.deliver(sub, current)

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, s := range m.subs {
			if s.id == sub.id {
				m.subs = append(m.subs[:i], m.subs[i+1:]...)
				return
			}
		}
	}
}

// WatchRevocations observes a revocation feed and signs out when the current
// identity is invalidated externally.
func (m *Manager) WatchRevocations(ctx context.Context, src RevocationSource) {
	for {
		select {
		case id, ok := <-src.Revoked():
			if !ok {
				return
			}
			current := m.Current()
			if current != nil && current.ID == id {
				log.Info().Str("identity_id", current.ID).Msg("Session revoked externally, signing out")
				m.setCurrent(nil)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) setCurrent(identity *models.Identity) {
	m.mu.Lock()
	m.current = identity
	subs := append([]subscriber(nil), m.subs...)
	m.mu.Unlock()

	for _, sub := range subs {
		m.deliver(sub, identity)
	}
}

func (m *Manager) deliver(sub subscriber, identity *models.Identity) {
	m.queue <- func() {
		if m.subscribed(sub.id) {
			sub.fn(identity)
		}
	}
}

func (m *Manager) subscribed(id int) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.subs {
		if s.id == id {
			return true
		}
	}
	return false
}
