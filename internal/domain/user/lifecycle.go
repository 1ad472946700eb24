package user

// LifecycleState is always computed from the record, never persisted.
type LifecycleState string

const (
	StateNeedsPasswordSetup LifecycleState = "needs_password_setup"
	StateNeedsProfileSetup  LifecycleState = "needs_profile_setup"
	StateReady              LifecycleState = "ready"
)

// ResolveLifecycle classifies a user into exactly one lifecycle state.
// Order matters: a freshly invited user lacks both password and role,
// and the password must be established before a profile is attached to
// the account.
func ResolveLifecycle(u User) LifecycleState {
	if !u.HasPassword() {
		return StateNeedsPasswordSetup
	}

	if !u.HasRole() {
		return StateNeedsProfileSetup
	}

	return StateReady
}
