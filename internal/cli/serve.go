package cli

import (
	"crypto/rand"
	"fmt"

	"github.com/soyeahso/voicesquad/internal/agents"
	"github.com/soyeahso/voicesquad/internal/auth"
	"github.com/soyeahso/voicesquad/internal/config"
	"github.com/soyeahso/voicesquad/internal/gateway"
	"github.com/soyeahso/voicesquad/internal/logging"
	"github.com/soyeahso/voicesquad/internal/voice/elevenlabs"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the console gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}

			if port != 0 {
				cfg.Gateway.Port = port
			}
			if bind != "" {
				cfg.Gateway.Bind = bind
			}
			if flags.logLevel != "" {
				cfg.Logging.Level = flags.logLevel
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			srvLog, logCloser, err := logging.Open(logging.Options{
				Level: cfg.Logging.Level,
				Style: cfg.Logging.ConsoleStyle,
				File:  cfg.Logging.File,
			})
			if err != nil {
				return err
			}
			defer logCloser.Close()

			// Runs until the process context is cancelled by SIGINT or SIGTERM
			ctx := cmd.Context()

			table, closeTable, err := openTable(ctx, cfg, srvLog)
			if err != nil {
				return err
			}
			defer closeTable()

			secret := []byte(cfg.Auth.JWTSecret)
			if len(secret) == 0 {
				secret = make([]byte, 32)
				if _, err := rand.Read(secret); err != nil {
					return fmt.Errorf("generating session secret: %w", err)
				}
				srvLog.Warn().Msg("auth.jwtSecret is not set; using a per-process secret, issued tokens will not survive a restart")
			}
			verifier := auth.NewVerifier(secret)

			var opts []gateway.ServerOption
			switch cfg.Voice.Provider {
			case "elevenlabs":
				opts = append(opts, gateway.WithVoiceGateway(elevenlabs.New(elevenlabs.Config{
					APIKey:         cfg.Voice.APIKey,
					WSURL:          cfg.Voice.WSURL,
					APIURL:         cfg.Voice.APIURL,
					ConnectTimeout: cfg.Voice.ConnectTimeout(),
					SpeakingHold:   cfg.Voice.SpeakingHold(),
				}, srvLog)))
			default:
				srvLog.Warn().Str("provider", cfg.Voice.Provider).Msg("voice provider disabled; voice.connect will fail")
			}

			srv := gateway.New(cfg, agents.NewRepository(table, srvLog), verifier, srvLog, opts...)

			if cfg.Auth.OAuth.Enabled {
				err := srv.EnableOAuth(auth.OAuthConfig{
					ClientID:        cfg.Auth.OAuth.ClientID,
					ClientSecret:    cfg.Auth.OAuth.ClientSecret,
					CredentialsFile: cfg.Auth.OAuth.CredentialsFile,
					RedirectURL:     cfg.Auth.OAuth.RedirectURL,
					SessionTTL:      cfg.Auth.SessionTTL(),
					SecureCookies:   cfg.Gateway.TLS.Enabled,
				})
				if err != nil {
					return fmt.Errorf("configuring oauth: %w", err)
				}
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override gateway port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (auto, lan, loopback, custom)")

	return cmd
}
