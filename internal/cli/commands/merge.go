package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewMergeCommand creates the merge command.
func NewMergeCommand() *cobra.Command {
	var (
		baseOnly bool
		metrics  bool
	)

	cmd := &cobra.Command{
		Use:   "merge [file-id...]",
		Short: "Merge file lineages into one graph",
		Long: `Merge the lineages of the given files, or of all files in upload order,
into one graph with provenance and derived file-to-file dependencies.

Results are cached per user and file set until a file is imported, replaced
or deleted.`,
		Example: `  # Merge everything
  leapmigrate merge

  # Merge two files without derived dependency edges
  leapmigrate merge orders report --base-only --output json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			resp, err := cmdCtx.Engine.Merge(cmd.Context(), cmdCtx.Cfg.User, args, !baseOnly)
			if err != nil {
				return fmt.Errorf("merge failed: %w", err)
			}
			if err := cmdCtx.Renderer.Merge(resp); err != nil {
				return err
			}
			if metrics {
				return cmdCtx.Renderer.CacheMetrics(cmdCtx.Engine.CacheMetrics())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&baseOnly, "base-only", false, "Omit derived DEPENDS_ON_FILE edges")
	cmd.Flags().BoolVar(&metrics, "metrics", false, "Print cache counters after merging")
	return cmd
}

// NewPlanCommand creates the plan command.
func NewPlanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "plan [file-id...]",
		Short: "Compute a migration plan",
		Long: `Group files that share tables, order each group into waves so that
every file runs after the files creating the tables it reads, and list
the tables no file creates.`,
		Example: `  leapmigrate plan
  leapmigrate plan --output markdown > PLAN.md`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			plan, err := cmdCtx.Engine.Plan(cmd.Context(), cmdCtx.Cfg.User, args)
			if err != nil {
				return fmt.Errorf("planning failed: %w", err)
			}
			return cmdCtx.Renderer.Plan(plan)
		},
	}
}
