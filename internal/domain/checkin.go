package domain

import "time"

type CheckInStatus string

const (
	CheckInAlive                   CheckInStatus = "alive"
	CheckInPending                 CheckInStatus = "pending"
	CheckInTrustedContactsNotified CheckInStatus = "trusted_contacts_notified"
	CheckInVerificationTriggered   CheckInStatus = "verification_triggered"
)

// rank orders the escalation chain. A status may only move to a higher rank;
// a fresh check-in starts a new row at CheckInAlive instead of moving back.
func (s CheckInStatus) rank() int {
	switch s {
	case CheckInAlive:
		return 0
	case CheckInPending:
		return 1
	case CheckInTrustedContactsNotified:
		return 2
	case CheckInVerificationTriggered:
		return 3
	}
	return -1
}

func (s CheckInStatus) CanAdvanceTo(next CheckInStatus) bool {
	return s.rank() >= 0 && next.rank() > s.rank()
}

// CheckIn is an immutable liveness event. The current check-in for a testator
// is the row with the latest CheckedInAt; escalation sweeps advance its status
// in place but never rewind it.
type CheckIn struct {
	ID          CheckInID     `gorm:"type:uuid;primaryKey" db:"id" json:"id"`
	TestatorID  TestatorID    `gorm:"type:uuid;index:ix_checkins_testator_time,priority:1" db:"testator_id" json:"testatorId"`
	Status      CheckInStatus `gorm:"type:text;not null" db:"status" json:"status"`
	CheckedInAt time.Time     `gorm:"not null;index:ix_checkins_testator_time,priority:2,sort:desc" db:"checked_in_at" json:"checkedInAt"`
	NextDueAt   time.Time     `gorm:"not null" db:"next_due_at" json:"nextDueAt"`
	CreatedAt   time.Time     `gorm:"not null" db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time     `gorm:"not null" db:"updated_at" json:"updatedAt"`
}

func (CheckIn) TableName() string { return "checkins" }
