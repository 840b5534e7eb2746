package cli

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/soyeahso/voicesquad/internal/config"
	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read and edit the config file",
		Long: "Keys are dotted paths such as gateway.port or voice.apiKey. " +
			"Edits keep the file's comments; run 'voicesquad config keys' for the full list.",
	}

	cmd.AddCommand(
		newConfigGetCmd(),
		newConfigSetCmd(),
		newConfigUnsetCmd(),
		newConfigKeysCmd(),
		newConfigPathCmd(),
		newConfigValidateCmd(),
	)
	return cmd
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print a value, or its default when the file does not set it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := config.OpenDocument(paths.Config)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			v, err := doc.Get(args[0])
			if errors.Is(err, config.ErrKeyNotSet) {
				def, derr := config.DefaultValue(args[0])
				if derr != nil {
					return fmt.Errorf("%s is not set", args[0])
				}
				fmt.Fprint(out, def)
				color.New(color.Faint).Fprintln(out, " (default)")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(out, v)
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a value; numbers, booleans and [a, b] lists are typed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := config.OpenDocument(paths.Config)
			if err != nil {
				return err
			}
			if err := doc.Set(args[0], args[1]); err != nil {
				return err
			}
			if err := doc.Save(paths.Config); err != nil {
				return err
			}
			log.Debug().Str("key", args[0]).Str("file", paths.Config).Msg("config updated")
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s\n", args[0])
			return nil
		},
	}
}

func newConfigUnsetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unset <key>",
		Short: "Remove a value so its default applies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := config.OpenDocument(paths.Config)
			if err != nil {
				return err
			}
			removed, err := doc.Unset(args[0])
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("%s is not set", args[0])
			}
			if err := doc.Save(paths.Config); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Unset %s\n", args[0])
			return nil
		},
	}
}

func newConfigKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List every settable key",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, k := range config.Keys() {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
		},
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), paths.Config)
		},
	}
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the config, environment overrides included",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			issues := config.Validate(&cfg)
			if len(issues) == 0 {
				color.New(color.FgGreen).Fprintf(out, "%s is valid\n", paths.Config)
				return nil
			}
			red := color.New(color.FgRed)
			for _, issue := range issues {
				red.Fprintf(out, "  - %s\n", issue)
			}
			return fmt.Errorf("%d issue(s) found", len(issues))
		},
	}
}
