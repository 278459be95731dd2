package domain

import "time"

// UnlockCredential is the single-use secret issued to one party when a
// verification request opens. Only the argon2id digest is stored; the raw
// code travels once, inside that party's notification.
type UnlockCredential struct {
	ID         CredentialID `gorm:"type:uuid;primaryKey" db:"id" json:"id"`
	RequestID  RequestID    `gorm:"type:uuid;index" db:"request_id" json:"requestId"`
	PartyID    PartyID      `gorm:"type:uuid;uniqueIndex:ux_credentials_request_party,priority:2" db:"party_id" json:"partyId"`
	Role       PartyRole    `gorm:"type:text;not null" db:"role" json:"role"`
	CodeHash   []byte       `gorm:"type:bytea;not null" db:"code_hash" json:"-"`
	Salt       []byte       `gorm:"type:bytea;not null" db:"salt" json:"-"`
	ParamsJSON []byte       `gorm:"type:jsonb;not null" db:"params_json" json:"-"`
	Used       bool         `gorm:"not null;default:false" db:"used" json:"used"`
	UsedAt     *time.Time   `db:"used_at" json:"usedAt,omitempty"`
	ExpiresAt  time.Time    `gorm:"not null" db:"expires_at" json:"expiresAt"`
	CreatedAt  time.Time    `gorm:"not null" db:"created_at" json:"createdAt"`
}

func (UnlockCredential) TableName() string { return "unlock_credentials" }

// OtpChallenge is the short-lived second factor for one unlock session. At
// most one active challenge exists per session; re-issuing replaces it.
type OtpChallenge struct {
	ID         CredentialID `gorm:"type:uuid;primaryKey" db:"id" json:"id"`
	SessionID  SessionID    `gorm:"type:uuid;uniqueIndex:ux_otp_session" db:"session_id" json:"sessionId"`
	CodeHash   []byte       `gorm:"type:bytea;not null" db:"code_hash" json:"-"`
	Salt       []byte       `gorm:"type:bytea;not null" db:"salt" json:"-"`
	ParamsJSON []byte       `gorm:"type:jsonb;not null" db:"params_json" json:"-"`
	Consumed   bool         `gorm:"not null;default:false" db:"consumed" json:"consumed"`
	ExpiresAt  time.Time    `gorm:"not null" db:"expires_at" json:"expiresAt"`
	CreatedAt  time.Time    `gorm:"not null" db:"created_at" json:"createdAt"`
}

func (OtpChallenge) TableName() string { return "otp_challenges" }
