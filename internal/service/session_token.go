package service

import (
	"willvault/internal/domain"
)

// SessionTokenService signs and parses the bearer handle for an unlock
// session. The token only carries the session id; the DB row is
// authoritative for step state.
type SessionTokenService interface {
	Issue(sess *domain.UnlockSession) (string, error)
	Parse(token string) (domain.SessionID, error)
}
