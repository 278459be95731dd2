package impl

import (
	"willvault/internal/domain"
	"willvault/internal/service"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type SessionTokenConfig struct {
	Issuer     string
	Audience   string
	SigningKey []byte // HS256 secret
}

type sessionClaims struct {
	RID string `json:"rid"` // verification request id
	jwt.RegisteredClaims
}

var _ service.SessionTokenService = (*SessionTokenHS256)(nil)

// SessionTokenHS256 wraps an unlock session id in a signed bearer token.
// Step state lives in the DB row, never in the claims, so a stolen token is
// worthless without also passing the remaining steps.
type SessionTokenHS256 struct {
	cfg   SessionTokenConfig
	clock service.Clock
}

func NewSessionTokenHS256(cfg SessionTokenConfig, clock service.Clock) *SessionTokenHS256 {
	return &SessionTokenHS256{cfg: cfg, clock: clock}
}

func (t *SessionTokenHS256) Issue(sess *domain.UnlockSession) (string, error) {
	now := t.clock.Now()
	claims := sessionClaims{
		RID: sess.RequestID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.cfg.Issuer,
			Subject:   sess.PartyID.String(),
			Audience:  jwt.ClaimStrings{t.cfg.Audience},
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        sess.ID.String(), // <-- bind JWT to DB session row
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.cfg.SigningKey)
}

func (t *SessionTokenHS256) Parse(token string) (domain.SessionID, error) {
	claims := &sessionClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.clock.Now),
	)
	tok, err := parser.ParseWithClaims(token, claims, func(token *jwt.Token) (interface{}, error) {
		return t.cfg.SigningKey, nil
	})
	if err != nil || !tok.Valid {
		return uuid.Nil, domain.ErrInvalidCredential
	}
	if claims.Issuer != t.cfg.Issuer {
		return uuid.Nil, domain.ErrInvalidCredential
	}
	if !containsAudience(claims.Audience, t.cfg.Audience) {
		return uuid.Nil, domain.ErrInvalidCredential
	}
	id, err := uuid.Parse(claims.ID)
	if err != nil {
		return uuid.Nil, domain.ErrInvalidCredential
	}
	return id, nil
}

func containsAudience(aud jwt.ClaimStrings, expected string) bool {
	for _, a := range aud {
		if a == expected {
			return true
		}
	}
	return false
}
