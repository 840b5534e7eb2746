package config

import (
	"fmt"
	"time"
)

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Gateway: GatewayConfig{
			Port: 18790,
			Bind: "loopback",
		},
		Database: DatabaseConfig{
			Driver:   "sqlite",
			MaxConns: 4,
		},
		Auth: AuthConfig{
			EntryURL:          "/auth/login",
			CookieName:        "voicesquad_session",
			SessionTTLMinutes: 720,
		},
		Voice: VoiceConfig{
			Provider:                 "elevenlabs",
			ConnectTimeoutSeconds:    15,
			SpeakingHoldMs:           400,
			PermissionTimeoutSeconds: 60,
		},
		Logging: LoggingConfig{
			Level:        "info",
			ConsoleStyle: "pretty",
		},
	}
}

// SessionTTL returns the lifetime of issued session tokens.
func (a AuthConfig) SessionTTL() time.Duration {
	return time.Duration(a.SessionTTLMinutes) * time.Minute
}

// ConnectTimeout bounds opening a voice session.
func (v VoiceConfig) ConnectTimeout() time.Duration {
	return time.Duration(v.ConnectTimeoutSeconds) * time.Second
}

// SpeakingHold is how long the agent counts as speaking after its last audio.
func (v VoiceConfig) SpeakingHold() time.Duration {
	return time.Duration(v.SpeakingHoldMs) * time.Millisecond
}

// PermissionTimeout bounds a microphone prompt.
func (v VoiceConfig) PermissionTimeout() time.Duration {
	return time.Duration(v.PermissionTimeoutSeconds) * time.Second
}
