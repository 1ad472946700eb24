package user

import "testing"

func strPtr(s string) *string { return &s }

func rolePtr(r Role) *Role { return &r }

func TestResolveLifecycle(t *testing.T) {
	hash := strPtr("$2a$12$fakefakefakefakefakefake")

	tests := []struct {
		name string
		u    User
		want LifecycleState
	}{
		{
			name: "no password no role",
			u:    User{},
			want: StateNeedsPasswordSetup,
		},
		{
			name: "no password with role",
			u:    User{Role: rolePtr(RoleAnalyst)},
			want: StateNeedsPasswordSetup,
		},
		{
			name: "password no role",
			u:    User{PasswordHash: hash},
			want: StateNeedsProfileSetup,
		},
		{
			name: "password and role",
			u:    User{PasswordHash: hash, Role: rolePtr(RoleGeneralEmployee)},
			want: StateReady,
		},
		{
			name: "empty string hash counts as unset",
			u:    User{PasswordHash: strPtr(""), Role: rolePtr(RoleAnalyst)},
			want: StateNeedsPasswordSetup,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveLifecycle(tt.u)

			if got != tt.want {
				t.Fatalf("ResolveLifecycle() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestPreferencesApplyMergesOnlySuppliedFields(t *testing.T) {
	p := DefaultPreferences()
	p.FavoriteSources = []string{"events_db"}

	mode := "deep"
	up := PreferencesUpdate{DefaultAgentMode: &mode}

	p.Apply(up)

	if p.DefaultAgentMode != "deep" {
		t.Fatalf("DefaultAgentMode = %q, want deep", p.DefaultAgentMode)
	}

	// untouched fields keep their values
	if len(p.FavoriteSources) != 1 || p.FavoriteSources[0] != "events_db" {
		t.Fatalf("FavoriteSources was reset: %v", p.FavoriteSources)
	}

	if p.WorkingHours.Start != "09:00" {
		t.Fatalf("WorkingHours was reset: %+v", p.WorkingHours)
	}
}

func TestAgentConfigApplyMergesOnlySuppliedFields(t *testing.T) {
	c := DefaultAgentConfig()

	creativity := 80
	instructions := "prefer tables over prose"
	up := AgentConfigUpdate{
		Creativity:         &creativity,
		CustomInstructions: &instructions,
	}

	c.Apply(up)

	if c.Creativity != 80 {
		t.Fatalf("Creativity = %d, want 80", c.Creativity)
	}

	if c.CustomInstructions != instructions {
		t.Fatalf("CustomInstructions = %q", c.CustomInstructions)
	}

	if c.Personality != "professional" || c.ResponseStyle != "balanced" {
		t.Fatalf("unrelated fields changed: %+v", c)
	}
}
