package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/solatis/editcheck/internal/catalog"
	"github.com/solatis/editcheck/internal/core/config"
	"github.com/solatis/editcheck/internal/core/db"
	"github.com/solatis/editcheck/internal/engine"
	"github.com/solatis/editcheck/internal/filing"
	"github.com/solatis/editcheck/internal/lookup"
	"github.com/solatis/editcheck/internal/rules"
	"github.com/solatis/editcheck/internal/types"
)

var validateCmd = &cobra.Command{
	Use:   "validate FILE",
	Short: "Run edit checks over a filing",
	Long: `Run edit checks over a filing document (.json, .json.gz or .json.zst) and
write a JSON report of every failing edit, grouped by edit type.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	f := validateCmd.Flags()
	f.StringSlice("type", []string{"syntactical", "validity", "quality", "macro"}, "edit types to run, in order")
	f.Int("year", 2017, "filing year")
	f.StringP("output", "o", "-", "report destination (- for stdout)")
	f.Int("record-concurrency", 100, "concurrent record evaluations per edit")
	f.Int("aggregate-concurrency", 10, "concurrent evaluations inside aggregate functions")
	f.String("catalog", "builtin", "catalog source (builtin, db)")
	f.String("lookup-mode", "local", "lookup backend (local, remote)")
	f.String("lookup-address", "localhost:50051", "lookup server address for remote mode")
	f.String("lookup-cache", "", "Redis URL for the lookup cache")
	f.String("metrics-out", "", "write Prometheus metrics to this file after the run")
}

// report is the JSON document validate writes.
type report struct {
	RunID  types.RunID            `json:"run_id"`
	Year   int                    `json:"year"`
	Errors *types.ErrorCollection `json:"errors"`
}

// resources tracks what a run opened so it can all be released at once.
type resources struct {
	queries *db.Queries
	closers []func() error
}

func (r *resources) dbQueries(ctx context.Context, cfg *config.Config) (*db.Queries, error) {
	if r.queries != nil {
		return r.queries, nil
	}
	database, queries, err := openQueries(ctx, cfg)
	if err != nil {
		return nil, err
	}
	r.queries = queries
	r.closers = append(r.closers, database.Close)
	return queries, nil
}

func (r *resources) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		_ = r.closers[i]()
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	typeNames, _ := cmd.Flags().GetStringSlice("type")
	editTypes := make([]types.EditType, 0, len(typeNames))
	for _, name := range typeNames {
		et, err := types.ParseEditType(name)
		if err != nil {
			return err
		}
		editTypes = append(editTypes, et)
	}

	doc, err := filing.Load(args[0])
	if err != nil {
		return err
	}

	res := &resources{}
	defer res.Close()

	cat, err := buildCatalog(ctx, cfg, res)
	if err != nil {
		return err
	}
	lib, err := buildLibrary(ctx, cfg, res, logger)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	progress := engine.NewProgress()
	progress.Subscribe(func(percent int) {
		logger.Debug("validation progress", "percent", percent)
	})

	session := engine.NewSession(cfg.Engine.Year, doc, cat, rules.NewEngine(lib),
		engine.WithLogger(logger),
		engine.WithMetrics(engine.NewMetrics(registry)),
		engine.WithRecordConcurrency(cfg.Engine.RecordConcurrency),
		engine.WithAggregateConcurrency(cfg.Engine.AggregateConcurrency),
		engine.WithProgress(progress),
	)

	var runErr error
	for _, et := range editTypes {
		if runErr = session.Run(ctx, et); runErr != nil {
			break
		}
	}

	// Partial results are still written when a pass fails.
	outPath, _ := cmd.Flags().GetString("output")
	if err := writeReport(cmd.OutOrStdout(), outPath, report{
		RunID:  session.RunID(),
		Year:   cfg.Engine.Year,
		Errors: session.Errors(),
	}); err != nil {
		return errors.Join(runErr, err)
	}

	if metricsOut, _ := cmd.Flags().GetString("metrics-out"); metricsOut != "" {
		if err := prometheus.WriteToTextfile(metricsOut, registry); err != nil {
			return errors.Join(runErr, fmt.Errorf("failed to write metrics: %w", err))
		}
	}

	if runErr != nil {
		return runErr
	}
	logger.Info("validation complete", "run_id", string(session.RunID()), "errors", session.Errors().Len())
	return nil
}

func buildCatalog(ctx context.Context, cfg *config.Config, res *resources) (catalog.Catalog, error) {
	if cfg.Catalog.Source == "builtin" {
		return catalog.Builtin()
	}
	queries, err := res.dbQueries(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return catalog.NewStore(queries), nil
}

// buildLibrary registers the builtin functions plus the lookup-backed ones
// for the configured backend.
func buildLibrary(ctx context.Context, cfg *config.Config, res *resources, logger *slog.Logger) (*rules.Library, error) {
	lib, err := rules.NewBuiltinLibrary()
	if err != nil {
		return nil, err
	}

	var svc lookup.Service
	switch cfg.Lookup.Mode {
	case "remote":
		client, err := lookup.Dial(cfg.Lookup.Address,
			lookup.WithAPIKey(cfg.Lookup.APIKey),
			lookup.WithTimeout(cfg.Lookup.Timeout))
		if err != nil {
			return nil, fmt.Errorf("failed to dial lookup server: %w", err)
		}
		res.closers = append(res.closers, client.Close)
		svc = client
	default:
		queries, err := res.dbQueries(ctx, cfg)
		if err != nil {
			return nil, err
		}
		svc = lookup.NewStore(queries)
	}

	if cfg.Lookup.CacheURL != "" {
		client, err := lookup.NewRedisClient(ctx, cfg.Lookup.CacheURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect lookup cache: %w", err)
		}
		res.closers = append(res.closers, client.Close)
		svc = lookup.NewRedisCache(client, svc, cfg.Lookup.CacheTTL, logger)
	}

	if err := lookup.Register(lib, svc, cfg.Engine.Year); err != nil {
		return nil, err
	}
	return lib, nil
}

// writeReport encodes r to stdout or, unless path is "-" or empty, to a file.
// A failed close of the file is reported.
func writeReport(stdout io.Writer, path string, r report) error {
	if path == "-" || path == "" {
		return encodeReport(stdout, r)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := encodeReport(f, r); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write report %s: %w", path, err)
	}
	return nil
}

func encodeReport(w io.Writer, r report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
