package dto

type ProvisionTestatorRequest struct {
	Email           string `json:"email"`
	FullName        string `json:"fullName"`
	CheckInInterval string `json:"checkInInterval,omitempty"` // Go duration string, e.g. "168h"
	GracePeriod     string `json:"gracePeriod,omitempty"`
}

type ProvisionTestatorResponse struct {
	TestatorID string `json:"testatorId"`
}

type TestatorResponse struct {
	TestatorID      string `json:"testatorId"`
	Email           string `json:"email"`
	FullName        string `json:"fullName"`
	CheckInEnabled  bool   `json:"checkInEnabled"`
	CheckInInterval string `json:"checkInInterval"`
	GracePeriod     string `json:"gracePeriod"`
	Frozen          bool   `json:"frozen"`
}

type TestatorSettingsRequest struct {
	CheckInEnabled  *bool  `json:"checkInEnabled,omitempty"`
	CheckInInterval string `json:"checkInInterval,omitempty"`
	GracePeriod     string `json:"gracePeriod,omitempty"`
}
