package cli

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/soyeahso/voicesquad/internal/agents"
	"github.com/soyeahso/voicesquad/internal/config"
	"github.com/soyeahso/voicesquad/internal/logging"
	"github.com/soyeahso/voicesquad/internal/version"
	"github.com/spf13/cobra"
)

// statusProbeTimeout bounds the agents table check.
const statusProbeTimeout = 5 * time.Second

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show voicesquad status and configuration summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			cyan := color.New(color.FgCyan)
			green := color.New(color.FgGreen)
			yellow := color.New(color.FgYellow)

			cyan.Fprintln(out, version.Info())
			fmt.Fprintln(out)

			fmt.Fprintf(out, "Config:   %s\n", paths.Config)
			fmt.Fprintf(out, "Data:     %s\n", paths.Data)
			fmt.Fprintf(out, "Home:     %s\n", paths.Home)
			fmt.Fprintln(out)

			cfg, err := config.Load(paths.Config)
			if err != nil {
				color.New(color.FgRed).Fprintf(out, "Config:   error loading: %v\n", err)
				return nil
			}
			if _, err := os.Stat(paths.Config); os.IsNotExist(err) {
				yellow.Fprintln(out, "Config:   not found (using defaults)")
			}

			fmt.Fprintf(out, "Gateway:  port=%d bind=%s tls=%v\n", cfg.Gateway.Port, cfg.Gateway.Bind, cfg.Gateway.TLS.Enabled)
			fmt.Fprintf(out, "Database: %s\n", describeDatabase(cfg.Database))
			fmt.Fprintf(out, "Auth:     secret=%s oauth=%v ttl=%s\n",
				setOrMissing(cfg.Auth.JWTSecret), cfg.Auth.OAuth.Enabled, cfg.Auth.SessionTTL())
			fmt.Fprintf(out, "Voice:    provider=%s apiKey=%s\n", cfg.Voice.Provider, setOrMissing(cfg.Voice.APIKey))

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				yellow.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(out, "  - %s: %s\n", issue.Path, issue.Message)
				}
				return nil
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), statusProbeTimeout)
			defer cancel()
			table, closeFn, err := openTable(ctx, cfg, logging.Nop())
			if err != nil {
				color.New(color.FgRed).Fprintf(out, "Agents:   unreachable (%v)\n", err)
				return nil
			}
			defer closeFn()

			list, err := agents.NewRepository(table, logging.Nop()).ListAgents(ctx)
			if err != nil {
				color.New(color.FgRed).Fprintf(out, "Agents:   unreachable (%v)\n", err)
				return nil
			}
			green.Fprintf(out, "Agents:   %d\n", len(list))
			return nil
		},
	}

	return cmd
}

func describeDatabase(db config.DatabaseConfig) string {
	switch db.Driver {
	case "postgres":
		// Never print credentials from the DSN
		if u, err := url.Parse(db.DSN); err == nil && u.Host != "" {
			return fmt.Sprintf("postgres host=%s db=%s maxConns=%d", u.Host, u.Path, db.MaxConns)
		}
		return fmt.Sprintf("postgres maxConns=%d", db.MaxConns)
	case "memory":
		return "memory (not persisted)"
	default:
		return "sqlite " + paths.DatabasePath(db)
	}
}

func setOrMissing(s string) string {
	if s == "" {
		return "missing"
	}
	return "set"
}
