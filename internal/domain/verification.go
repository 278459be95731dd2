package domain

import "time"

type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestCompleted RequestStatus = "completed"
	RequestExpired   RequestStatus = "expired"
	RequestCancelled RequestStatus = "cancelled"
)

func (s RequestStatus) Terminal() bool { return s != RequestPending }

type PartyRole string

const (
	RoleExecutor       PartyRole = "executor"
	RoleBeneficiary    PartyRole = "beneficiary"
	RoleTrustedContact PartyRole = "trusted_contact"
)

// VerificationRequest is one escalation episode: opened when the grace period
// fully elapses, closed by release, expiry, or the testator proving alive.
// At most one non-terminal request exists per testator.
type VerificationRequest struct {
	ID          RequestID     `gorm:"type:uuid;primaryKey" db:"id" json:"id"`
	TestatorID  TestatorID    `gorm:"type:uuid;index" db:"testator_id" json:"testatorId"`
	Status      RequestStatus `gorm:"type:text;not null" db:"status" json:"status"`
	InitiatedAt time.Time     `gorm:"not null" db:"initiated_at" json:"initiatedAt"`
	ExpiresAt   time.Time     `gorm:"not null" db:"expires_at" json:"expiresAt"`
	ClosedAt    *time.Time    `db:"closed_at" json:"closedAt,omitempty"`
	CreatedAt   time.Time     `gorm:"not null" db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time     `gorm:"not null" db:"updated_at" json:"updatedAt"`
}

func (VerificationRequest) TableName() string { return "verification_requests" }

// VerificationParty is the persisted registry snapshot taken when the request
// opens. Later registry edits do not change who may act on this request.
type VerificationParty struct {
	ID        PartyID   `gorm:"type:uuid;primaryKey" db:"id" json:"id"`
	RequestID RequestID `gorm:"type:uuid;index" db:"request_id" json:"requestId"`
	Role      PartyRole `gorm:"type:text;not null" db:"role" json:"role"`
	FullName  string    `gorm:"type:text;not null" db:"full_name" json:"fullName"`
	Email     string    `gorm:"type:citext;not null" db:"email" json:"email"`
	CreatedAt time.Time `gorm:"not null" db:"created_at" json:"createdAt"`
}

func (VerificationParty) TableName() string { return "verification_parties" }
