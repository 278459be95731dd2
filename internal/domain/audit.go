package domain

import (
	"time"

	"github.com/google/uuid"
)

// Audit actions recorded by the core. One entry per state transition, plus a
// separate entry per dispatched notification carrying the delivery id.
const (
	AuditCheckInRecorded         = "checkin.recorded"
	AuditCheckInMarkedPending    = "checkin.marked_pending"
	AuditCheckInReminderSent     = "checkin.reminder_sent"
	AuditTrustedContactStage     = "checkin.trusted_contact_stage"
	AuditTrustedContactAlertSent = "checkin.trusted_contact_alert_sent"
	AuditVerificationTriggered   = "checkin.verification_triggered"
	AuditVerificationOpened      = "verification.opened"
	AuditVerificationExpired     = "verification.expired"
	AuditVerificationCancelled   = "verification.cancelled"
	AuditCredentialIssued        = "unlock.credential_issued"
	AuditPartyNotified           = "unlock.party_notified"
	AuditUnlockIdentified        = "unlock.identified"
	AuditOtpIssued               = "unlock.otp_issued"
	AuditOtpVerified             = "unlock.otp_verified"
	AuditOtpRejected             = "unlock.otp_rejected"
	AuditContactsVerified        = "unlock.contacts_verified"
	AuditContactsRejected        = "unlock.contacts_rejected"
	AuditWillReleased            = "unlock.will_released"
	AuditFinalizeRejected        = "unlock.finalize_rejected"
)

// AuditEntry is append-only: never updated, never deleted.
type AuditEntry struct {
	ID         uuid.UUID   `gorm:"type:uuid;primaryKey" db:"id" json:"id"`
	TestatorID *TestatorID `gorm:"type:uuid;index" db:"testator_id" json:"testatorId,omitempty"`
	Action     string      `gorm:"type:text;not null" db:"action" json:"action"`
	Metadata   []byte      `gorm:"type:jsonb" db:"metadata" json:"metadata,omitempty"`
	IP         string      `gorm:"type:text" db:"ip" json:"ip,omitempty"`
	UserAgent  string      `gorm:"type:text" db:"user_agent" json:"userAgent,omitempty"`
	CreatedAt  time.Time   `gorm:"not null;index" db:"created_at" json:"createdAt"`
}

func (AuditEntry) TableName() string { return "audit_log" }
