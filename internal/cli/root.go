package cli

import (
	"context"

	"github.com/soyeahso/voicesquad/internal/config"
	"github.com/soyeahso/voicesquad/internal/logging"
	"github.com/spf13/cobra"
)

// Set by the root command before any subcommand runs.
var (
	flags struct {
		config   string
		logLevel string // empty defers to the config file
	}
	paths config.Paths
	log   *logging.Logger
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "voicesquad",
		Short: "Voice console for a squad of conversational agents",
		Long: "voicesquad keeps an ordered list of voice agents and serves a browser console\n" +
			"where each agent is a card you can talk to.",
		PersistentPreRunE: prepare,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.config, "config", "", "config file (default $"+config.HomeEnv+"/config.yaml)")
	pf.StringVar(&flags.logLevel, "log-level", "", "trace, debug, info, warn, error, fatal or silent")

	cmd.AddCommand(
		newServeCmd(),
		newAgentsCmd(),
		newTokenCmd(),
		newConfigCmd(),
		newStatusCmd(),
		newVersionCmd(),
	)
	return cmd
}

func prepare(*cobra.Command, []string) error {
	p, err := config.ResolvePaths()
	if err != nil {
		return err
	}
	if flags.config != "" {
		p.Config = flags.config
	}
	paths = p

	level := flags.logLevel
	if level == "" {
		level = "info"
	}
	log = logging.New(nil, level)
	return nil
}

// Execute runs the voicesquad command line. Cancelling ctx stops a
// running server.
func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}
