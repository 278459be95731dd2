package service

import "context"

type TemplateKind string

const (
	TemplateCheckInReminder     TemplateKind = "checkin_reminder"
	TemplateTrustedContactAlert TemplateKind = "trusted_contact_alert"
	TemplateUnlockInvitation    TemplateKind = "unlock_invitation"
	TemplateUnlockOtp           TemplateKind = "unlock_otp"
)

// Notifier is the transactional-email collaborator. Fire-and-forget: the core
// records the returned delivery id in the audit log and never blocks on
// delivery confirmation.
type Notifier interface {
	Send(ctx context.Context, recipient string, kind TemplateKind, payload map[string]string) (deliveryID string, err error)
}
