package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"
)

// Load reads the config file at path and returns it with defaults,
// VOICESQUAD_* overrides and ${VAR} references in secrets applied. A
// missing file yields the defaults.
func Load(path string) (Config, error) {
	doc, err := OpenDocument(path)
	if err != nil {
		return Defaults(), err
	}
	cfg, err := doc.Decode()
	if err != nil {
		return cfg, err
	}
	applyEnvOverrides(&cfg, os.LookupEnv)
	expandSecrets(&cfg, os.LookupEnv)
	return cfg, nil
}

// applyDefaults fills zero-value fields a file left out or zeroed.
func applyDefaults(cfg *Config) {
	d := Defaults()
	orInt := func(v *int, def int) {
		if *v == 0 {
			*v = def
		}
	}
	orString := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}

	orInt(&cfg.Gateway.Port, d.Gateway.Port)
	orString(&cfg.Gateway.Bind, d.Gateway.Bind)
	orString(&cfg.Database.Driver, d.Database.Driver)
	orInt(&cfg.Database.MaxConns, d.Database.MaxConns)
	orString(&cfg.Auth.EntryURL, d.Auth.EntryURL)
	orString(&cfg.Auth.CookieName, d.Auth.CookieName)
	orInt(&cfg.Auth.SessionTTLMinutes, d.Auth.SessionTTLMinutes)
	orString(&cfg.Voice.Provider, d.Voice.Provider)
	orInt(&cfg.Voice.ConnectTimeoutSeconds, d.Voice.ConnectTimeoutSeconds)
	orInt(&cfg.Voice.SpeakingHoldMs, d.Voice.SpeakingHoldMs)
	orInt(&cfg.Voice.PermissionTimeoutSeconds, d.Voice.PermissionTimeoutSeconds)
	orString(&cfg.Logging.Level, d.Logging.Level)
	orString(&cfg.Logging.ConsoleStyle, d.Logging.ConsoleStyle)
}

// lookupFunc matches os.LookupEnv.
type lookupFunc func(string) (string, bool)

// envOverride applies one VOICESQUAD_* variable.
type envOverride struct {
	name  string
	apply func(cfg *Config, v string)
}

var envOverrides = []envOverride{
	{"VOICESQUAD_GATEWAY_PORT", func(c *Config, v string) {
		if port, err := strconv.Atoi(v); err == nil {
			c.Gateway.Port = port
		}
	}},
	{"VOICESQUAD_GATEWAY_BIND", func(c *Config, v string) { c.Gateway.Bind = v }},
	{"VOICESQUAD_DATABASE_DRIVER", func(c *Config, v string) { c.Database.Driver = strings.ToLower(v) }},
	{"VOICESQUAD_DATABASE_DSN", func(c *Config, v string) { c.Database.DSN = v }},
	{"VOICESQUAD_JWT_SECRET", func(c *Config, v string) { c.Auth.JWTSecret = v }},
	{"VOICESQUAD_ELEVENLABS_API_KEY", func(c *Config, v string) { c.Voice.APIKey = v }},
	{"VOICESQUAD_LOG_LEVEL", func(c *Config, v string) { c.Logging.Level = strings.ToLower(v) }},
}

func applyEnvOverrides(cfg *Config, lookup lookupFunc) {
	for _, o := range envOverrides {
		if v, ok := lookup(o.name); ok && v != "" {
			o.apply(cfg, v)
		}
	}
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandRefs replaces ${VAR} with its value. Unset variables stay as
// written so Validate can point at them.
func expandRefs(s string, lookup lookupFunc) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		if v, ok := lookup(ref[2 : len(ref)-1]); ok {
			return v
		}
		return ref
	})
}

// expandSecrets lets credentials live in the environment rather than the
// file.
func expandSecrets(cfg *Config, lookup lookupFunc) {
	for _, s := range []*string{
		&cfg.Database.DSN,
		&cfg.Auth.JWTSecret,
		&cfg.Auth.OAuth.ClientID,
		&cfg.Auth.OAuth.ClientSecret,
		&cfg.Voice.APIKey,
	} {
		*s = expandRefs(*s, lookup)
	}
}
