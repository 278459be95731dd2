package domain

import "time"

type Testator struct {
	ID              TestatorID    `gorm:"type:uuid;primaryKey" db:"id" json:"id"`
	Email           string        `gorm:"type:citext;uniqueIndex:ux_testators_email" db:"email" json:"email"`
	FullName        string        `gorm:"type:text;not null" db:"full_name" json:"fullName"`
	CheckInEnabled  bool          `gorm:"not null;default:true" db:"checkin_enabled" json:"checkInEnabled"`
	CheckInInterval time.Duration `gorm:"not null" db:"checkin_interval" json:"checkInInterval"`
	GracePeriod     time.Duration `gorm:"not null" db:"grace_period" json:"gracePeriod"`
	// Frozen is set once, at first successful release, and never cleared.
	Frozen    bool      `gorm:"not null;default:false" db:"frozen" json:"frozen"`
	CreatedAt time.Time `gorm:"not null" db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null" db:"updated_at" json:"updatedAt"`
}

func (Testator) TableName() string { return "testators" }
