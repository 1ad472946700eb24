package user

import "time"

type Role string

const (
	RoleAnalyst         Role = "analyst"
	RoleGeneralEmployee Role = "general_employee"
)

func ValidRole(r Role) bool {
	return r == RoleAnalyst || r == RoleGeneralEmployee
}

// User is the persisted identity record. PasswordHash and Role are
// pointers because both are legitimately absent for invited users who
// have not finished setup; lifecycle state is always derived from their
// presence, never stored.
type User struct {
	ID           string      `json:"id"`
	Email        string      `json:"email"`
	PasswordHash *string     `json:"-"` // never expose hash in JSON
	Role         *Role       `json:"role"`
	CreatedAt    time.Time   `json:"createdAt"`
	LastActive   time.Time   `json:"lastActive"`
	Preferences  Preferences `json:"preferences"`
	AgentConfig  AgentConfig `json:"agentConfig"`
}

func (u User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

func (u User) HasRole() bool {
	return u.Role != nil && *u.Role != ""
}

type WorkingHours struct {
	Start    string `json:"start"` // HH:MM
	End      string `json:"end"`
	Timezone string `json:"timezone"`
}

type Preferences struct {
	DefaultAgentMode     string       `json:"defaultAgentMode"` // quick | deep
	AutoUpgrade          bool         `json:"autoUpgrade"`
	NotificationChannels []string     `json:"notificationChannels"`
	WorkingHours         WorkingHours `json:"workingHours"`
	FavoriteSources      []string     `json:"favoriteSources"`
}

type AgentConfig struct {
	Personality        string `json:"personality"`   // professional | friendly | direct
	ResponseStyle      string `json:"responseStyle"` // detailed | balanced | brief
	Creativity         int    `json:"creativity"`    // 0..100
	ResponseLength     string `json:"responseLength"`
	CustomInstructions string `json:"customInstructions"`
}

func DefaultPreferences() Preferences {
	return Preferences{
		DefaultAgentMode:     "quick",
		AutoUpgrade:          false,
		NotificationChannels: []string{},
		WorkingHours: WorkingHours{
			Start:    "09:00",
			End:      "17:00",
			Timezone: "America/New_York",
		},
		FavoriteSources: []string{},
	}
}

func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		Personality:    "professional",
		ResponseStyle:  "balanced",
		Creativity:     50,
		ResponseLength: "medium",
	}
}

// Partial updates. Nil fields are left untouched, never reset to defaults.

type PreferencesUpdate struct {
	DefaultAgentMode     *string       `json:"defaultAgentMode" binding:"omitempty,oneof=quick deep"`
	AutoUpgrade          *bool         `json:"autoUpgrade"`
	NotificationChannels *[]string     `json:"notificationChannels"`
	WorkingHours         *WorkingHours `json:"workingHours"`
	FavoriteSources      *[]string     `json:"favoriteSources"`
}

func (p *Preferences) Apply(u PreferencesUpdate) {
	if u.DefaultAgentMode != nil {
		p.DefaultAgentMode = *u.DefaultAgentMode
	}
	if u.AutoUpgrade != nil {
		p.AutoUpgrade = *u.AutoUpgrade
	}
	if u.NotificationChannels != nil {
		p.NotificationChannels = *u.NotificationChannels
	}
	if u.WorkingHours != nil {
		p.WorkingHours = *u.WorkingHours
	}
	if u.FavoriteSources != nil {
		p.FavoriteSources = *u.FavoriteSources
	}
}

type AgentConfigUpdate struct {
	Personality        *string `json:"personality" binding:"omitempty,oneof=professional friendly direct"`
	ResponseStyle      *string `json:"responseStyle" binding:"omitempty,oneof=detailed balanced brief"`
	Creativity         *int    `json:"creativity" binding:"omitempty,min=0,max=100"`
	ResponseLength     *string `json:"responseLength" binding:"omitempty,oneof=short medium long"`
	CustomInstructions *string `json:"customInstructions" binding:"omitempty,max=500"`
}

func (c *AgentConfig) Apply(u AgentConfigUpdate) {
	if u.Personality != nil {
		c.Personality = *u.Personality
	}
	if u.ResponseStyle != nil {
		c.ResponseStyle = *u.ResponseStyle
	}
	if u.Creativity != nil {
		c.Creativity = *u.Creativity
	}
	if u.ResponseLength != nil {
		c.ResponseLength = *u.ResponseLength
	}
	if u.CustomInstructions != nil {
		c.CustomInstructions = *u.CustomInstructions
	}
}
