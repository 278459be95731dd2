package domain

import "time"

type SessionStatus string

const (
	SessionIdentified       SessionStatus = "identified"
	SessionOtpVerified      SessionStatus = "otp_verified"
	SessionContactsVerified SessionStatus = "contacts_verified"
	SessionFinalized        SessionStatus = "finalized"
)

func (s SessionStatus) rank() int {
	switch s {
	case SessionIdentified:
		return 0
	case SessionOtpVerified:
		return 1
	case SessionContactsVerified:
		return 2
	case SessionFinalized:
		return 3
	}
	return -1
}

func (s SessionStatus) CanAdvanceTo(next SessionStatus) bool {
	return s.rank() >= 0 && next.rank() == s.rank()+1
}

// UnlockSession tracks one acting party's walk through the unlock chain
// (identify -> otp -> contacts -> finalize). The row is authoritative for
// step state; the JWT handed to the caller only carries the session id.
type UnlockSession struct {
	ID            SessionID     `gorm:"type:uuid;primaryKey" db:"id" json:"id"`
	RequestID     RequestID     `gorm:"type:uuid;index" db:"request_id" json:"requestId"`
	PartyID       PartyID       `gorm:"type:uuid;index" db:"party_id" json:"partyId"`
	Status        SessionStatus `gorm:"type:text;not null" db:"status" json:"status"`
	OtpVerifiedAt *time.Time    `db:"otp_verified_at" json:"otpVerifiedAt,omitempty"`
	ExpiresAt     time.Time     `gorm:"not null" db:"expires_at" json:"expiresAt"`
	IP            string        `gorm:"type:text" db:"ip" json:"-"`
	UserAgent     string        `gorm:"type:text" db:"user_agent" json:"-"`
	CreatedAt     time.Time     `gorm:"not null" db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time     `gorm:"not null" db:"updated_at" json:"updatedAt"`
}

func (UnlockSession) TableName() string { return "unlock_sessions" }
