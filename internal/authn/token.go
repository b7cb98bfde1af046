package authn

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"tenancy-backend/internal/errdefs"
	"tenancy-backend/internal/models"
)

// IssueToken mints a bearer token for an identity.
func (s *Postgres) IssueToken(identityID string) (string, error) {
	claims := jwt.MapClaims{
		"user_id": identityID,
		"exp":     time.Now().Add(s.tokenTTL).Unix(),
		"iat":     time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// VerifyToken resolves a bearer token to its identity, rejecting revoked
// sessions.
func (s *Postgres) VerifyToken(ctx context.Context, tokenString string) (*models.Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token: %w", errdefs.ErrCredential)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims: %w", errdefs.ErrCredential)
	}
	identityID, ok := claims["user_id"].(string)
	if !ok {
		return nil, fmt.Errorf("user_id not found in token: %w", errdefs.ErrCredential)
	}

	revoked, err := s.rdb.Exists(ctx, revokedKey(identityID)).Result()
	if err != nil && err != redis.Nil {
		return nil, storagef(err, "failed to check revocation")
	}
	if revoked > 0 {
		return nil, fmt.Errorf("session revoked: %w", errdefs.ErrAuth)
	}

	var email string
	err = s.db.QueryRow(ctx, `SELECT email FROM accounts WHERE id = $1`, identityID).Scan(&email)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("unknown identity: %w", errdefs.ErrCredential)
		}
		return nil, storagef(err, "failed to load account")
	}

	return &models.Identity{ID: identityID, Email: email}, nil
}
