package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/solatis/editcheck/internal/catalog"
	"github.com/solatis/editcheck/internal/core/config"
	"github.com/solatis/editcheck/internal/types"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage edit catalogs",
}

var catalogImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import a catalog file into the database",
	Args:  cobra.ExactArgs(1),
	RunE:  runCatalogImport,
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the edits of one filing year",
	Args:  cobra.NoArgs,
	RunE:  runCatalogList,
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogImportCmd, catalogListCmd)
	catalogListCmd.Flags().Int("year", 2017, "filing year")
	catalogListCmd.Flags().String("catalog", "builtin", "catalog source (builtin, db)")
}

func runCatalogImport(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	file, err := catalog.Decode(f)
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}

	database, queries, err := openQueries(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	store := catalog.NewStore(queries)
	if err := store.Import(ctx, file); err != nil {
		return err
	}
	n, err := store.Count(ctx, file.Year)
	if err != nil {
		return err
	}
	logger.Info("catalog imported", "year", file.Year, "edits", n)
	return nil
}

func runCatalogList(cmd *cobra.Command, args []string) error {
	cfg, _, err := setup(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	cat, closeFn, err := openCatalog(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSCOPE\tTYPE\tDESCRIPTION")
	for _, editType := range types.AllEditTypes {
		for _, scope := range types.AllScopes {
			edits, err := cat.Edits(ctx, cfg.Engine.Year, scope, editType)
			if err != nil {
				return err
			}
			for _, e := range edits {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.ID, e.Scope, e.Type, e.Description)
			}
		}
	}
	return w.Flush()
}

// openCatalog returns the configured catalog source and a release func for
// any database it opened.
func openCatalog(ctx context.Context, cfg *config.Config) (catalog.Catalog, func(), error) {
	if cfg.Catalog.Source == "builtin" {
		cat, err := catalog.Builtin()
		if err != nil {
			return nil, nil, err
		}
		return cat, func() {}, nil
	}

	database, queries, err := openQueries(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return catalog.NewStore(queries), func() { database.Close() }, nil
}

