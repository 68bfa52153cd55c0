package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/jmehdipour/compliance-gateway/internal/config"
	"github.com/jmehdipour/compliance-gateway/internal/db"
	"github.com/jmehdipour/compliance-gateway/internal/logger"
	"github.com/jmehdipour/compliance-gateway/internal/model"
	"github.com/jmehdipour/compliance-gateway/internal/repository"
	"github.com/jmehdipour/compliance-gateway/internal/util"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var seedWebhookURL string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed demo tenants with fresh API keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1) load config
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		log := logger.Init(cfg.Log.Level)
		defer logger.Sync()

		// 2) connect MySQL
		sqlDB, err := db.NewMySQLConnection(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer sqlDB.Close()

		log.Info("seeding demo tenants")

		keys, err := seedTenants(cmd.Context(),
			repository.NewAPIKeysRepository(sqlDB),
			repository.NewIntegrationsRepository(sqlDB),
			demoTenants(seedWebhookURL),
		)
		if err != nil {
			return err
		}

		// raw keys are shown once; only their hashes are stored
		for _, k := range keys {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", k.clientID, k.raw)
		}
		log.Info("seed completed", zap.Int("tenants", len(keys)))
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedWebhookURL, "webhook-url", "http://127.0.0.1:9999/hooks", "webhook target for the tenant that has one")
}

type demoTenant struct {
	clientID   string
	keyName    string
	webhookURL *string
}

type issuedKey struct {
	clientID string
	raw      string
}

// demoTenants: one tenant with a webhook, one without.
func demoTenants(webhookURL string) []demoTenant {
	return []demoTenant{
		{clientID: "acme", keyName: "acme-default", webhookURL: &webhookURL},
		{clientID: "globex", keyName: "globex-default"},
	}
}

func seedTenants(
	ctx context.Context,
	keys repository.APIKeysRepository,
	integrations repository.IntegrationsRepository,
	tenants []demoTenant,
) ([]issuedKey, error) {
	now := time.Now().UTC()
	out := make([]issuedKey, 0, len(tenants))
	for _, t := range tenants {
		raw, err := util.NewAPIKey()
		if err != nil {
			return nil, fmt.Errorf("generate key: %w", err)
		}
		if err := keys.Upsert(ctx, model.APIKey{
			ClientID:  t.clientID,
			KeyHash:   util.HashAPIKey(raw),
			Name:      t.keyName,
			IsActive:  true,
			CreatedAt: now,
		}); err != nil {
			return nil, fmt.Errorf("upsert api key %s: %w", t.clientID, err)
		}
		if err := integrations.Upsert(ctx, model.ClientIntegration{
			ClientID:   t.clientID,
			WebhookURL: t.webhookURL,
			IsActive:   true,
			CreatedAt:  now,
			UpdatedAt:  now,
		}); err != nil {
			return nil, fmt.Errorf("upsert integration %s: %w", t.clientID, err)
		}
		out = append(out, issuedKey{clientID: t.clientID, raw: raw})
	}
	return out, nil
}
