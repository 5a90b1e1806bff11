package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/solatis/editcheck/internal/core/auth"
	"github.com/solatis/editcheck/internal/core/config"
)

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage lookup server API keys",
}

var apikeyCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Issue a new API key",
	Args:  cobra.NoArgs,
	RunE:  runAPIKeyCreate,
}

var apikeyRevokeCmd = &cobra.Command{
	Use:   "revoke ID",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	RunE:  runAPIKeyRevoke,
}

func init() {
	rootCmd.AddCommand(apikeyCmd)
	apikeyCmd.AddCommand(apikeyCreateCmd, apikeyRevokeCmd)
	apikeyCreateCmd.Flags().String("name", "", "human-readable key name")
	apikeyCreateCmd.Flags().String("secret-id", "", "HMAC secret to sign with (defaults to the lowest secret_id)")
	_ = apikeyCreateCmd.MarkFlagRequired("name")
}

func runAPIKeyCreate(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	secrets, err := config.HMACSecrets()
	if err != nil {
		return fmt.Errorf("failed to load HMAC secrets: %w", err)
	}
	if len(secrets) == 0 {
		return fmt.Errorf("no HMAC secrets configured (set %s environment variable)", config.EnvHMACSecret)
	}

	secretID, _ := cmd.Flags().GetString("secret-id")
	if secretID == "" {
		ids := make([]string, 0, len(secrets))
		for id := range secrets {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		secretID = ids[0]
	}
	secret, ok := secrets[secretID]
	if !ok {
		return fmt.Errorf("unknown secret_id %q", secretID)
	}

	database, queries, err := openQueries(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	name, _ := cmd.Flags().GetString("name")
	issued, err := auth.Issue(ctx, queries, secretID, secret, name)
	if err != nil {
		return err
	}
	logger.Info("api key issued", "id", issued.ID, "name", issued.Name, "secret_id", secretID)

	// The plaintext key is only ever shown here.
	fmt.Fprintln(cmd.OutOrStdout(), issued.Key)
	return nil
}

func runAPIKeyRevoke(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	database, queries, err := openQueries(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := auth.Revoke(ctx, queries, args[0]); err != nil {
		return err
	}
	logger.Info("api key revoked", "id", args[0])
	return nil
}
