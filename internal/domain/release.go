package domain

import (
	"time"

	"github.com/google/uuid"
)

// ReleasePackage is the sealed will bundle, materialized exactly once per
// verification request. Immutable after creation; the testator's frozen flag
// blocks any further packages even through a later request.
type ReleasePackage struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey" db:"id" json:"id"`
	RequestID       RequestID  `gorm:"type:uuid;uniqueIndex:ux_releases_request" db:"request_id" json:"requestId"`
	TestatorID      TestatorID `gorm:"type:uuid;index" db:"testator_id" json:"testatorId"`
	SealedContent   []byte     `gorm:"type:bytea;not null" db:"sealed_content" json:"-"`
	ManifestJSON    []byte     `gorm:"type:jsonb;not null" db:"manifest_json" json:"manifest"`
	ReleasedToParty PartyID    `gorm:"type:uuid;not null" db:"released_to_party" json:"releasedToParty"`
	ReleasedAt      time.Time  `gorm:"not null" db:"released_at" json:"releasedAt"`
	CreatedAt       time.Time  `gorm:"not null" db:"created_at" json:"createdAt"`
}

func (ReleasePackage) TableName() string { return "release_packages" }

// ReleaseManifest is what gets marshaled into ManifestJSON.
type ReleaseManifest struct {
	TestatorEmail string    `json:"testatorEmail"`
	ReleasedTo    string    `json:"releasedTo"`
	ReleasedRole  PartyRole `json:"releasedRole"`
	PartyNames    []string  `json:"partyNames"`
	ReleasedAt    time.Time `json:"releasedAt"`
}
