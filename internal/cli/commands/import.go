package commands

import (
	"fmt"
	"os"

	"github.com/leapstack-labs/leapmigrate/internal/engine"
	"github.com/spf13/cobra"
)

// NewImportCommand creates the import command.
func NewImportCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "import <path>...",
		Short: "Import lineage documents",
		Long: `Import lineage documents produced by a SQL parser.

A document is JSON or YAML with the shape
  {file_id, filename, dialect, nodes: [...], edges: [...]}

A file argument adds the document as a new lineage of its file.
A directory argument imports every .json, .yaml and .yml document below it;
documents whose content did not change since the last import are skipped,
changed documents replace the lineages of their file.`,
		Example: `  # Import one lineage
  leapmigrate import lineage/orders.json

  # Import a directory of lineages
  leapmigrate import ./lineage

  # Re-import everything, ignoring content hashes
  leapmigrate import ./lineage --force`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, args, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Ignore content hashes when importing directories")
	return cmd
}

func runImport(cmd *cobra.Command, paths []string, force bool) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	eng := cmdCtx.Engine
	r := cmdCtx.Renderer
	user := cmdCtx.Cfg.User

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return err
		}

		if info.IsDir() {
			res, err := eng.Discover(ctx, user, path, engine.DiscoveryOptions{ForceFullRefresh: force})
			if err != nil {
				return err
			}
			if err := r.Discovery(res); err != nil {
				return err
			}
			continue
		}

		data, err := os.ReadFile(path) //nolint:gosec // G304: path is a user-supplied import argument
		if err != nil {
			return err
		}
		doc, err := engine.DecodeDocument(path, data)
		if err != nil {
			return err
		}
		res, err := eng.ImportLineage(ctx, user, doc)
		if err != nil {
			return fmt.Errorf("failed to import %s: %w", path, err)
		}
		if err := r.Imported(res); err != nil {
			return err
		}
	}
	return nil
}
