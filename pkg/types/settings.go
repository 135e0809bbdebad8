package types

import "time"

const (
	// DefaultUpdateIntervalSeconds is 6 hours between refresh ticks.
	DefaultUpdateIntervalSeconds = 21600
	// DefaultUpdateTimeoutSeconds bounds a whole tick.
	DefaultUpdateTimeoutSeconds = 120
	// DefaultFacetTimeoutSeconds bounds a single upstream call. The
	// daily-cost endpoint routinely takes close to 30 seconds.
	DefaultFacetTimeoutSeconds = 30
)

// Settings are the tunables of the refresh loop. Zero or negative values are
// replaced with defaults by Normalize.
type Settings struct {
	UpdateIntervalSeconds int `json:"update_interval_seconds" yaml:"update_interval_seconds"`
	UpdateTimeoutSeconds  int `json:"update_timeout_seconds" yaml:"update_timeout_seconds"`
	FacetTimeoutSeconds   int `json:"facet_timeout_seconds" yaml:"facet_timeout_seconds"`
}

// Normalize returns a copy with defaults applied where unset.
func (s Settings) Normalize() Settings {
	if s.UpdateIntervalSeconds <= 0 {
		s.UpdateIntervalSeconds = DefaultUpdateIntervalSeconds
	}
	if s.UpdateTimeoutSeconds <= 0 {
		s.UpdateTimeoutSeconds = DefaultUpdateTimeoutSeconds
	}
	if s.FacetTimeoutSeconds <= 0 {
		s.FacetTimeoutSeconds = DefaultFacetTimeoutSeconds
	}
	return s
}

func (s Settings) UpdateInterval() time.Duration {
	return time.Duration(s.UpdateIntervalSeconds) * time.Second
}

func (s Settings) UpdateTimeout() time.Duration {
	return time.Duration(s.UpdateTimeoutSeconds) * time.Second
}

func (s Settings) FacetTimeout() time.Duration {
	return time.Duration(s.FacetTimeoutSeconds) * time.Second
}

// ConfigEntry is one stored login plus its bound electricity accounts. The
// auth token is rewritten whenever a tick had to re-login.
type ConfigEntry struct {
	Username  string                        `json:"username" yaml:"username"`
	Password  string                        `json:"password" yaml:"password"`
	LoginType LoginType                     `json:"login_type" yaml:"login_type"`
	AuthToken string                        `json:"auth_token" yaml:"auth_token"`
	Accounts  map[string]ElectricityAccount `json:"accounts" yaml:"accounts"`
	Settings  Settings                      `json:"settings" yaml:"settings"`
	// UpdatedAt is epoch milliseconds of the last write.
	UpdatedAt int64 `json:"updated_at" yaml:"updated_at"`
}

// Session returns the restorable session held by the entry.
func (e *ConfigEntry) Session() Session {
	return Session{
		AuthToken: e.AuthToken,
		LoginType: e.LoginType,
	}
}

// Touch stamps UpdatedAt with the given wall time.
func (e *ConfigEntry) Touch(now time.Time) {
	e.UpdatedAt = now.UnixMilli()
}
