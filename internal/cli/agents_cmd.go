package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/soyeahso/voicesquad/internal/domain"
	"github.com/spf13/cobra"
)

func newAgentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "agents",
		Aliases: []string{"agent"},
		Short:   "Manage the agents table",
	}

	cmd.AddCommand(newAgentsListCmd())
	cmd.AddCommand(newAgentsAddCmd())
	cmd.AddCommand(newAgentsUpdateCmd())
	cmd.AddCommand(newAgentsRemoveCmd())
	cmd.AddCommand(newAgentsReorderCmd())
	return cmd
}

func newAgentsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List agents in display order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, closeFn, err := openRepository(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			list, err := repo.ListAgents(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "No agents. Add one with: voicesquad agents add --name NAME --agent-id ID")
				return nil
			}
			for i, a := range list {
				printAgent(out, i, a)
			}
			return nil
		},
	}
}

func printAgent(out io.Writer, i int, a domain.Agent) {
	cyan := color.New(color.FgCyan)
	dim := color.New(color.Faint)

	cyan.Fprintf(out, "%2d  %-20s", i+1, a.Name)
	fmt.Fprintf(out, " agent=%s", a.AgentID)
	if a.LLM != "" {
		fmt.Fprintf(out, " llm=%s", a.LLM)
	}
	dim.Fprintf(out, "  id=%s\n", a.ID)
	if a.Bio != "" {
		dim.Fprintf(out, "    %s\n", a.Bio)
	}
}

func newAgentsAddCmd() *cobra.Command {
	var in domain.NewAgent

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an agent at the end of the list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, closeFn, err := openRepository(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			a, err := repo.CreateAgent(cmd.Context(), in)
			if err != nil {
				return err
			}
			color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "Added %s (id %s)\n", a.Name, a.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&in.Name, "name", "", "display name (required)")
	cmd.Flags().StringVar(&in.AgentID, "agent-id", "", "conversational agent id (required)")
	cmd.Flags().StringVar(&in.Bio, "bio", "", "short description")
	cmd.Flags().StringVar(&in.LLM, "llm", "", "model label shown on the card")
	return cmd
}

func newAgentsUpdateCmd() *cobra.Command {
	var name, agentID, bio, llm string

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change fields of an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch domain.AgentPatch
			fs := cmd.Flags()
			if fs.Changed("name") {
				patch.Name = &name
			}
			if fs.Changed("agent-id") {
				patch.AgentID = &agentID
			}
			if fs.Changed("bio") {
				patch.Bio = &bio
			}
			if fs.Changed("llm") {
				patch.LLM = &llm
			}
			if patch.IsEmpty() {
				return fmt.Errorf("nothing to update; pass at least one of --name, --agent-id, --bio, --llm")
			}

			repo, closeFn, err := openRepository(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			a, err := repo.UpdateAgent(cmd.Context(), args[0], patch)
			if err != nil {
				return err
			}
			color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "Updated %s\n", a.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&agentID, "agent-id", "", "conversational agent id")
	cmd.Flags().StringVar(&bio, "bio", "", "short description")
	cmd.Flags().StringVar(&llm, "llm", "", "model label")
	return cmd
}

func newAgentsRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <id>",
		Aliases: []string{"rm"},
		Short:   "Remove an agent",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, closeFn, err := openRepository(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			if err := repo.DeleteAgent(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
			return nil
		},
	}
}

func newAgentsReorderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reorder <id>...",
		Short: "Persist a new display order; ids are listed first to last",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, closeFn, err := openRepository(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			if err := repo.ReorderAgents(cmd.Context(), args); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reordered %d agent(s)\n", len(args))
			return nil
		},
	}
}
