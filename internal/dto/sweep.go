package dto

// SweepResponse reports what one escalation sweep did.
type SweepResponse struct {
	Processed             int `json:"processed"`
	RemindersSent         int `json:"remindersSent"`
	TrustedContactNotices int `json:"trustedContactNotices"`
	RequestsOpened        int `json:"requestsOpened"`
	Failures              int `json:"failures"`
}
