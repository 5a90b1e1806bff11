package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/solatis/editcheck/internal/core/api"
	"github.com/solatis/editcheck/internal/core/auth"
	"github.com/solatis/editcheck/internal/core/config"
	"github.com/solatis/editcheck/internal/core/db"
	"github.com/solatis/editcheck/internal/core/server"
	"github.com/solatis/editcheck/internal/lookup"
)

var lookupServerCmd = &cobra.Command{
	Use:   "lookup-server",
	Short: "Serve reference-data lookups over gRPC",
	RunE:  runLookupServer,
}

func init() {
	rootCmd.AddCommand(lookupServerCmd)
	lookupServerCmd.Flags().String("host", "0.0.0.0", "gRPC server host")
	lookupServerCmd.Flags().Int("port", 50051, "gRPC server port")
	lookupServerCmd.Flags().String("lookup-cache", "", "Redis URL for the lookup cache")
}

func runLookupServer(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, queries, err := openQueries(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	statuses, err := db.MigrateStatus(ctx, database)
	if err != nil {
		return fmt.Errorf("failed to check migrations: %w", err)
	}
	for _, s := range statuses {
		if !s.Applied {
			return fmt.Errorf("migration %s not applied - run 'editcheck migrate' first", s.ID)
		}
	}

	secrets, err := config.HMACSecrets()
	if err != nil {
		return fmt.Errorf("failed to load HMAC secrets: %w", err)
	}
	if len(secrets) == 0 {
		return fmt.Errorf("no HMAC secrets configured (set %s environment variable)", config.EnvHMACSecret)
	}

	authenticator := auth.NewAuthenticator(secrets, queries)

	var backend lookup.Service = lookup.NewStore(queries)
	if cfg.Lookup.CacheURL != "" {
		client, err := lookup.NewRedisClient(ctx, cfg.Lookup.CacheURL)
		if err != nil {
			return fmt.Errorf("failed to connect lookup cache: %w", err)
		}
		defer client.Close()
		backend = lookup.NewRedisCache(client, backend, cfg.Lookup.CacheTTL, logger)
	}

	service, err := api.NewLookupService(backend, &cfg.LookupAPI, logger)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	grpcServer, err := server.NewGRPCServer(&cfg.LookupAPI, service, authenticator)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	logger.Info("starting lookup server", "version", Version, "addr", cfg.LookupAPI.Addr(), "cache", cfg.Lookup.CacheURL != "")
	errChan := make(chan error, 1)
	go func() {
		errChan <- grpcServer.Start(ctx)
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		logger.Info("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.ShutdownTimeout)
		defer cancel()
		return grpcServer.Shutdown(shutdownCtx)
	}
}
