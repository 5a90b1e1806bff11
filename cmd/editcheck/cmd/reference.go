package cmd

import (
	"fmt"
	"os"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/solatis/editcheck/internal/lookup"
)

// referenceFile is the import format for lookup reference data.
type referenceFile struct {
	Year        int                 `json:"year"`
	Geographies []lookup.Geography  `json:"geographies"`
	Respondents []lookup.Respondent `json:"respondents"`
}

var referenceCmd = &cobra.Command{
	Use:   "reference",
	Short: "Manage lookup reference data",
}

var referenceImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import geographies and respondents for one filing year",
	Args:  cobra.ExactArgs(1),
	RunE:  runReferenceImport,
}

func init() {
	rootCmd.AddCommand(referenceCmd)
	referenceCmd.AddCommand(referenceImportCmd)
}

func runReferenceImport(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	var ref referenceFile
	if err := json.Unmarshal(data, &ref); err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	if ref.Year <= 0 {
		return fmt.Errorf("%s: year must be positive, got %d", args[0], ref.Year)
	}

	database, queries, err := openQueries(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	store := lookup.NewStore(queries)
	if err := store.AddGeographies(ctx, ref.Year, ref.Geographies...); err != nil {
		return fmt.Errorf("failed to import geographies: %w", err)
	}
	if err := store.AddRespondents(ctx, ref.Year, ref.Respondents...); err != nil {
		return fmt.Errorf("failed to import respondents: %w", err)
	}
	logger.Info("reference data imported", "year", ref.Year,
		"geographies", len(ref.Geographies), "respondents", len(ref.Respondents))
	return nil
}
