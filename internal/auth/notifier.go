package auth

import (
	"context"

	"fleetgrid.io/internal/obs"
)

// LogNotifier writes notifications to the structured log instead of sending
// mail. Delivery mechanics live outside this service; deployments wire a real
// Notifier in its place.
type LogNotifier struct{}

func (LogNotifier) SendVerificationCode(_ context.Context, email, code string) error {
	obs.LogEvent(map[string]any{
		"level": "info",
		"msg":   "verification code issued",
		"email": email,
		"code":  code,
	})
	return nil
}

func (LogNotifier) SendPasswordResetEmail(_ context.Context, email, code string) error {
	obs.LogEvent(map[string]any{
		"level": "info",
		"msg":   "password reset code issued",
		"email": email,
		"code":  code,
	})
	return nil
}

func (LogNotifier) SendPasswordChangedEmail(_ context.Context, email string) error {
	obs.LogEvent(map[string]any{
		"level": "info",
		"msg":   "password changed notification",
		"email": email,
	})
	return nil
}

func (LogNotifier) SendAccountActivatedEmail(_ context.Context, email string) error {
	obs.LogEvent(map[string]any{
		"level": "info",
		"msg":   "account activated notification",
		"email": email,
	})
	return nil
}

var _ Notifier = LogNotifier{}
