package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kiranshivaraju/medialens/internal/prompt"
	"github.com/kiranshivaraju/medialens/pkg/models"
	"github.com/spf13/cobra"
)

var (
	promptTenant string
	promptFile   string
)

var promptCmd = &cobra.Command{
	Use:   "prompt",
	Short: "Manage analysis prompts",
}

var promptSetCmd = &cobra.Command{
	Use:   "set <master|image|video|audio> [content]",
	Short: "Replace the active prompt for a tier",
	Long: "Replace the active prompt for a tier, optionally scoped to a tenant. " +
		"Content is read from the argument, --file, or stdin when neither is given.",
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		tier, err := parseTier(args[0])
		if err != nil {
			return err
		}
		content, err := promptContent(cmd.InOrStdin(), args[1:], promptFile)
		if err != nil {
			return err
		}

		var tenantID *string
		if promptTenant != "" {
			tenantID = &promptTenant
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

		rec, err := s.SetPrompt(cmd.Context(), tier, tenantID, content)
		if err != nil {
			return err
		}
		logger.Info("prompt updated", "id", rec.ID, "tier", rec.Tier, "tenant_id", promptTenant)

		// A global tier change drops every tenant's entry for the affected kinds.
		rc, err := openCache(cmd.Context(), cfg.Redis)
		if err != nil {
			logger.Warn("prompt cache not invalidated", "error", err)
			return nil
		}
		if rc == nil {
			return nil
		}
		defer rc.Close()
		cached := prompt.NewCachedSource(s, rc, cfg.Prompt.CacheTTL)
		for _, kind := range kindsFor(tier) {
			if err := cached.Invalidate(cmd.Context(), kind, tenantID); err != nil {
				logger.Warn("prompt cache not invalidated", "media_kind", kind, "error", err)
			}
		}
		return nil
	},
}

func init() {
	promptSetCmd.Flags().StringVar(&promptTenant, "tenant", "", "scope the prompt to one tenant")
	promptSetCmd.Flags().StringVarP(&promptFile, "file", "f", "", "read prompt content from a file")

	promptCmd.AddCommand(promptSetCmd)
	rootCmd.AddCommand(promptCmd)
}

func parseTier(s string) (models.PromptTier, error) {
	switch t := models.PromptTier(strings.ToLower(s)); t {
	case models.PromptTierMaster, models.PromptTierImage, models.PromptTierVideo, models.PromptTierAudio:
		return t, nil
	}
	return "", fmt.Errorf("unknown prompt tier %q", s)
}

// kindsFor lists the media kinds whose composed prompt includes tier.
func kindsFor(tier models.PromptTier) []models.MediaKind {
	if tier == models.PromptTierMaster {
		return models.MediaKinds
	}
	return []models.MediaKind{models.MediaKind(tier)}
}

func promptContent(stdin io.Reader, args []string, file string) (string, error) {
	var raw []byte
	var err error
	switch {
	case len(args) > 0:
		raw = []byte(args[0])
	case file != "":
		raw, err = os.ReadFile(file)
	default:
		raw, err = io.ReadAll(stdin)
	}
	if err != nil {
		return "", fmt.Errorf("read prompt content: %w", err)
	}
	content := strings.TrimSpace(string(raw))
	if content == "" {
		return "", fmt.Errorf("prompt content is empty")
	}
	return content, nil
}
