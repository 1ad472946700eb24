package notifications

import "context"

// Account lifecycle events fan out to whatever channel the deployment
// wires (Slack, email). The core only guarantees the hook fires; a
// failing notifier never fails the credential operation.

type AccountEventKind string

const (
	EventPasswordSet      AccountEventKind = "password_set"
	EventProfileCompleted AccountEventKind = "profile_completed"
	EventPasswordReset    AccountEventKind = "password_reset"
)

type AccountEvent struct {
	Kind   AccountEventKind
	UserID string
	Email  string
}

type Notifier interface {
	SendAccountEvent(ctx context.Context, event AccountEvent) error
}
