package dto

import "time"

type CheckInResponse struct {
	TestatorID  string    `json:"testatorId"`
	Status      string    `json:"status"`
	CheckedInAt time.Time `json:"checkedInAt"`
	NextDueAt   time.Time `json:"nextDueAt"`
}
