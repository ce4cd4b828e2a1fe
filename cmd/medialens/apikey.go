package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/medialens/internal/api/middleware"
	"github.com/kiranshivaraju/medialens/pkg/models"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

const apiKeyPrefix = "mlk_"

var (
	keyName   string
	keyScopes []string
)

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage admin API keys",
}

var apikeyCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an API key and print it once",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		scopes, err := parseScopes(keyScopes)
		if err != nil {
			return err
		}

		cfg, logger, cleanup, err := setup()
		if err != nil {
			return err
		}
		defer cleanup()

		pool, s, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer pool.Close()

		key, raw, err := newAPIKey(keyName, scopes, time.Now().UTC())
		if err != nil {
			return err
		}
		if err := s.CreateAPIKey(cmd.Context(), key); err != nil {
			return fmt.Errorf("create api key: %w", err)
		}

		logger.Info("api key created", "id", key.ID, "name", key.Name, "prefix", key.KeyPrefix, "scopes", key.Scopes)
		fmt.Fprintln(cmd.OutOrStdout(), raw)
		return nil
	},
}

var apikeyRevokeCmd = &cobra.Command{
	Use:   "revoke <key-id>",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid key id %q: %w", args[0], err)
		}

		cfg, logger, cleanup, err := setup()
		if err != nil {
			return err
		}
		defer cleanup()

		pool, s, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := s.RevokeAPIKey(cmd.Context(), id); err != nil {
			return fmt.Errorf("revoke api key: %w", err)
		}
		logger.Info("api key revoked", "id", id)
		return nil
	},
}

func init() {
	apikeyCreateCmd.Flags().StringVar(&keyName, "name", "", "human-readable key name (required)")
	apikeyCreateCmd.Flags().StringSliceVar(&keyScopes, "scopes", []string{models.ScopeRead}, "comma-separated scopes: read, admin")
	_ = apikeyCreateCmd.MarkFlagRequired("name")

	apikeyCmd.AddCommand(apikeyCreateCmd, apikeyRevokeCmd)
	rootCmd.AddCommand(apikeyCmd)
}

func parseScopes(raw []string) ([]string, error) {
	var scopes []string
	for _, s := range raw {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || slices.Contains(scopes, s) {
			continue
		}
		if s != models.ScopeRead && s != models.ScopeAdmin {
			return nil, fmt.Errorf("unknown scope %q: must be %s or %s", s, models.ScopeRead, models.ScopeAdmin)
		}
		scopes = append(scopes, s)
	}
	if len(scopes) == 0 {
		return nil, fmt.Errorf("at least one scope is required")
	}
	return scopes, nil
}

// newAPIKey generates a random key. Only its bcrypt hash and lookup prefix
// are persisted; raw is returned for display.
func newAPIKey(name string, scopes []string, now time.Time) (*models.APIKey, string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return nil, "", fmt.Errorf("generate key: %w", err)
	}
	raw := apiKeyPrefix + hex.EncodeToString(buf)

	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash key: %w", err)
	}

	return &models.APIKey{
		ID:        uuid.New(),
		Name:      name,
		KeyHash:   string(hash),
		KeyPrefix: raw[:mw.KeyPrefixLen],
		Scopes:    scopes,
		CreatedAt: now,
		UpdatedAt: now,
	}, raw, nil
}
