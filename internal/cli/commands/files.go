package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewFilesCommand creates the files command.
func NewFilesCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "files",
		Aliases: []string{"ls"},
		Short:   "List imported files",
		Long:    `List the current user's files in upload order with their lineage IDs.`,
		Example: `  leapmigrate files
  leapmigrate files --user alice --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			files, err := cmdCtx.Engine.ListFiles(cmd.Context(), cmdCtx.Cfg.User)
			if err != nil {
				return fmt.Errorf("failed to list files: %w", err)
			}
			return cmdCtx.Renderer.Files(files)
		},
	}
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <file-id>...",
		Aliases: []string{"rm"},
		Short:   "Delete files and their lineages",
		Example: `  leapmigrate delete orders report`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			for _, id := range args {
				if err := cmdCtx.Engine.DeleteFile(cmd.Context(), cmdCtx.Cfg.User, id); err != nil {
					return fmt.Errorf("failed to delete %s: %w", id, err)
				}
				cmdCtx.Renderer.Success("Deleted " + id)
			}
			return nil
		},
	}
}

// NewInvalidateCommand creates the invalidate command.
func NewInvalidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate",
		Short: "Drop cached merge results of the current user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			n, err := cmdCtx.Engine.InvalidateUser(cmd.Context(), cmdCtx.Cfg.User)
			if err != nil {
				return err
			}
			cmdCtx.Renderer.Success(fmt.Sprintf("Removed %d cached merge result(s) for %s", n, cmdCtx.Cfg.User))
			return nil
		},
	}
}
