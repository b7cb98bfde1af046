package authn

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"tenancy-backend/internal/config"
	"tenancy-backend/internal/errdefs"
	"tenancy-backend/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// Postgres is the credential service backed by an accounts table, with
// revocation flags and reset tokens held in redis.
type Postgres struct {
	db             *pgxpool.Pool
	rdb            *redis.Client
	jwtSecret      string
	minPasswordLen int
	tokenTTL       time.Duration
	resetTTL       time.Duration
}

// NewPostgres creates a new credential service.
func NewPostgres(db *pgxpool.Pool, rdb *redis.Client, cfg config.AuthConfig) *Postgres {
	return &Postgres{
		db:             db,
		rdb:            rdb,
		jwtSecret:      cfg.JWTSecret,
		minPasswordLen: cfg.MinPasswordLen,
		tokenTTL:       time.Duration(cfg.TokenTTLDays) * 24 * time.Hour,
		resetTTL:       time.Duration(cfg.ResetTTLMinutes) * time.Minute,
	}
}

// EnsureSchema creates the accounts table if it does not exist.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return storagef(err, "failed to ensure accounts schema")
	}
	return nil
}

// CreateAccount registers a new email+password account.
func (s *Postgres) CreateAccount(ctx context.Context, email, password string) (*models.Identity, error) {
	if len(password) < s.minPasswordLen {
		return nil, fmt.Errorf("password must be at least %d characters: %w", s.minPasswordLen, errdefs.ErrCredential)
	}

	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE email = $1)`, email).Scan(&exists)
	if err != nil {
		return nil, storagef(err, "failed to check email")
	}
	if exists {
		return nil, fmt.Errorf("email already registered: %w", errdefs.ErrCredential)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	id := uuid.New().String()
	_, err = s.db.Exec(ctx,
		`INSERT INTO accounts (id, email, password_hash, created_at) VALUES ($1, $2, $3, $4)`,
		id, email, string(hash), time.Now(),
	)
	if err != nil {
		return nil, storagef(err, "failed to create account")
	}

	return &models.Identity{ID: id, Email: email}, nil
}

// Authenticate validates credentials and returns the account identity.
func (s *Postgres) Authenticate(ctx context.Context, email, password string) (*models.Identity, error) {
	var id, hash string
	err := s.db.QueryRow(ctx, `SELECT id, password_hash FROM accounts WHERE email = $1`, email).Scan(&id, &hash)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("invalid email or password: %w", errdefs.ErrCredential)
		}
		return nil, storagef(err, "failed to look up account")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, fmt.Errorf("invalid email or password: %w", errdefs.ErrCredential)
	}

	return &models.Identity{ID: id, Email: email}, nil
}

// SendPasswordReset issues a single-use reset token for the account with the
// given email. Token delivery is handled out of band.
func (s *Postgres) SendPasswordReset(ctx context.Context, email string) error {
	var id string
	err := s.db.QueryRow(ctx, `SELECT id FROM accounts WHERE email = $1`, email).Scan(&id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return fmt.Errorf("no account for %s: %w", email, errdefs.ErrNotFound)
		}
		return storagef(err, "failed to look up account")
	}

	token := uuid.New().String()
	if err := s.rdb.Set(ctx, resetKey(token), id, s.resetTTL).Err(); err != nil {
		return storagef(err, "failed to store reset token")
	}

	log.Info().
		Str("account_id", id).
		Msg("Password reset token issued")
	return nil
}

// ResetPassword consumes a reset token, replaces the password and revokes
// any outstanding sessions of the account.
func (s *Postgres) ResetPassword(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < s.minPasswordLen {
		return fmt.Errorf("password must be at least %d characters: %w", s.minPasswordLen, errdefs.ErrCredential)
	}

	id, err := s.rdb.GetDel(ctx, resetKey(token)).Result()
	if err != nil {
		if err == redis.Nil {
			return fmt.Errorf("invalid or expired reset token: %w", errdefs.ErrCredential)
		}
		return storagef(err, "failed to consume reset token")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if _, err := s.db.Exec(ctx, `UPDATE accounts SET password_hash = $1 WHERE id = $2`, string(hash), id); err != nil {
		return storagef(err, "failed to update password")
	}

	return s.Revoke(ctx, id)
}

// Revoke invalidates every outstanding session of an identity and announces
// it on RevocationChannel.
func (s *Postgres) Revoke(ctx context.Context, identityID string) error {
	if err := s.rdb.Set(ctx, revokedKey(identityID), "1", s.tokenTTL).Err(); err != nil {
		return storagef(err, "failed to flag revoked identity")
	}
	if err := s.rdb.Publish(ctx, RevocationChannel, identityID).Err(); err != nil {
		return storagef(err, "failed to announce revocation")
	}
	log.Info().Str("identity_id", identityID).Msg("Identity sessions revoked")
	return nil
}

func resetKey(token string) string        { return "reset:" + token }
func revokedKey(identityID string) string { return "revoked:" + identityID }

// storagef wraps err as a storage failure with a formatted prefix.
func storagef(err error, format string, args ...any) error {
	args = append(args, errdefs.ErrStorage, err)
	return fmt.Errorf(format+": %w: %w", args...)
}

var _ Service = (*Postgres)(nil)
