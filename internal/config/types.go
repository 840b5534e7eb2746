package config

// Config is the root configuration for voicesquad.
type Config struct {
	Gateway  GatewayConfig  `yaml:"gateway,omitempty"`
	Database DatabaseConfig `yaml:"database,omitempty"`
	Auth     AuthConfig     `yaml:"auth,omitempty"`
	Voice    VoiceConfig    `yaml:"voice,omitempty"`
	Logging  LoggingConfig  `yaml:"logging,omitempty"`
}

// GatewayConfig controls the HTTP/WebSocket server.
type GatewayConfig struct {
	Port           int        `yaml:"port,omitempty"`
	Bind           string     `yaml:"bind,omitempty"` // "auto" | "lan" | "loopback" | "custom"
	CustomBindHost string     `yaml:"customBindHost,omitempty"`
	TLS            GatewayTLS `yaml:"tls,omitempty"`
	AllowedOrigins []string   `yaml:"allowedOrigins,omitempty"`
}

// GatewayTLS configures TLS for the gateway.
type GatewayTLS struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	CertPath string `yaml:"certPath,omitempty"`
	KeyPath  string `yaml:"keyPath,omitempty"`
}

// DatabaseConfig selects the agents table backend.
type DatabaseConfig struct {
	Driver   string `yaml:"driver,omitempty"` // "sqlite" | "postgres" | "memory"
	Path     string `yaml:"path,omitempty"`   // sqlite file; defaults to <home>/data/agents.db
	DSN      string `yaml:"dsn,omitempty"`    // postgres connection string
	MaxConns int    `yaml:"maxConns,omitempty"`
}

// AuthConfig configures session tokens and the sign-in entry point.
type AuthConfig struct {
	JWTSecret         string      `yaml:"jwtSecret,omitempty"`
	EntryURL          string      `yaml:"entryUrl,omitempty"` // where browsers without a session are sent
	CookieName        string      `yaml:"cookieName,omitempty"`
	SessionTTLMinutes int         `yaml:"sessionTtlMinutes,omitempty"`
	OAuth             OAuthConfig `yaml:"oauth,omitempty"`
}

// OAuthConfig configures Google sign-in. Disabled unless Enabled is set.
type OAuthConfig struct {
	Enabled         bool   `yaml:"enabled,omitempty"`
	ClientID        string `yaml:"clientId,omitempty"`
	ClientSecret    string `yaml:"clientSecret,omitempty"`
	CredentialsFile string `yaml:"credentialsFile,omitempty"`
	RedirectURL     string `yaml:"redirectUrl,omitempty"`
}

// VoiceConfig configures the conversational session provider.
type VoiceConfig struct {
	Provider                 string `yaml:"provider,omitempty"` // "elevenlabs" | "none"
	APIKey                   string `yaml:"apiKey,omitempty"`
	WSURL                    string `yaml:"wsUrl,omitempty"`
	APIURL                   string `yaml:"apiUrl,omitempty"`
	ConnectTimeoutSeconds    int    `yaml:"connectTimeoutSeconds,omitempty"`
	SpeakingHoldMs           int    `yaml:"speakingHoldMs,omitempty"`
	PermissionTimeoutSeconds int    `yaml:"permissionTimeoutSeconds,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	File         string `yaml:"file,omitempty"`
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "json"
}
