package config

import (
	"fmt"
	"slices"
)

// ValidationIssue describes a problem with one config key.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

type issues []ValidationIssue

func (is *issues) add(path, format string, args ...any) {
	*is = append(*is, ValidationIssue{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (is *issues) oneOf(path, got string, valid ...string) {
	if got != "" && !slices.Contains(valid, got) {
		is.add(path, "must be one of %v, got %q", valid, got)
	}
}

func (is *issues) required(path, got, when string) {
	if got == "" {
		is.add(path, "required when %s", when)
	}
}

func (is *issues) nonNegative(path string, got int) {
	if got < 0 {
		is.add(path, "must not be negative, got %d", got)
	}
}

// resolved flags a secret still holding a ${VAR} whose variable is unset.
func (is *issues) resolved(path, got string) {
	if envRef.MatchString(got) {
		is.add(path, "references an unset environment variable: %s", envRef.FindString(got))
	}
}

// Validate checks a loaded Config. It returns nil when the config is usable.
func Validate(cfg *Config) []ValidationIssue {
	var is issues

	g := cfg.Gateway
	if g.Port < 0 || g.Port > 65535 {
		is.add("gateway.port", "port must be 0-65535, got %d", g.Port)
	}
	is.oneOf("gateway.bind", g.Bind, "auto", "lan", "loopback", "custom")
	if g.Bind == "custom" {
		is.required("gateway.customBindHost", g.CustomBindHost, "bind: custom")
	}
	if g.TLS.Enabled {
		is.required("gateway.tls.certPath", g.TLS.CertPath, "tls is enabled")
		is.required("gateway.tls.keyPath", g.TLS.KeyPath, "tls is enabled")
	}

	db := cfg.Database
	is.oneOf("database.driver", db.Driver, "sqlite", "postgres", "memory")
	if db.Driver == "postgres" {
		is.required("database.dsn", db.DSN, "driver: postgres")
		is.resolved("database.dsn", db.DSN)
	}
	is.nonNegative("database.maxConns", db.MaxConns)

	a := cfg.Auth
	is.nonNegative("auth.sessionTtlMinutes", a.SessionTTLMinutes)
	is.resolved("auth.jwtSecret", a.JWTSecret)
	if a.OAuth.Enabled {
		is.required("auth.jwtSecret", a.JWTSecret, "oauth is enabled")
		if a.OAuth.CredentialsFile == "" && (a.OAuth.ClientID == "" || a.OAuth.ClientSecret == "") {
			is.add("auth.oauth", "clientId and clientSecret or credentialsFile are required when enabled")
		}
		is.resolved("auth.oauth.clientId", a.OAuth.ClientID)
		is.resolved("auth.oauth.clientSecret", a.OAuth.ClientSecret)
	}

	v := cfg.Voice
	is.oneOf("voice.provider", v.Provider, "elevenlabs", "none")
	if v.Provider == "elevenlabs" {
		is.resolved("voice.apiKey", v.APIKey)
	}
	is.nonNegative("voice.connectTimeoutSeconds", v.ConnectTimeoutSeconds)
	is.nonNegative("voice.speakingHoldMs", v.SpeakingHoldMs)
	is.nonNegative("voice.permissionTimeoutSeconds", v.PermissionTimeoutSeconds)

	is.oneOf("logging.level", cfg.Logging.Level, "silent", "fatal", "error", "warn", "info", "debug", "trace")
	is.oneOf("logging.consoleStyle", cfg.Logging.ConsoleStyle, "pretty", "json")

	if len(is) == 0 {
		return nil
	}
	return is
}
