package main

import (
	"context"

	"go.uber.org/zap"

	adapterports "github.com/novalabs/billing-service/internal/adapters/ports"
	"github.com/novalabs/billing-service/internal/adapters/secrets"
	"github.com/novalabs/billing-service/internal/config"
)

// initSecretManager initializes the appropriate secret manager based on
// configuration.
//
// Supports:
//   - AWS Secrets Manager (production): SECRETS_BACKEND=aws and AWS_REGION
//   - Local filesystem (development): SECRETS_BACKEND=local (default)
func initSecretManager(ctx context.Context, cfg *config.Config, logger *zap.Logger) adapterports.SecretManager {
	switch cfg.Secrets.Backend {
	case "aws":
		return initAWSSecretManager(ctx, cfg, logger)
	case "local":
		return initLocalSecretManager(cfg, logger)
	default:
		logger.Warn("Unknown SECRETS_BACKEND, falling back to local",
			zap.String("backend", cfg.Secrets.Backend),
		)
		return initLocalSecretManager(cfg, logger)
	}
}

func initAWSSecretManager(ctx context.Context, cfg *config.Config, logger *zap.Logger) adapterports.SecretManager {
	awsConfig := secrets.DefaultAWSSecretsManagerConfig(cfg.Secrets.Region)
	awsConfig.Profile = cfg.Secrets.Profile
	awsConfig.Endpoint = cfg.Secrets.Endpoint

	sm, err := secrets.NewAWSSecretsManagerAdapter(ctx, awsConfig, logger)
	if err != nil {
		logger.Fatal("Failed to initialize AWS Secrets Manager",
			zap.Error(err),
			zap.String("region", cfg.Secrets.Region),
		)
	}
	return sm
}

func initLocalSecretManager(cfg *config.Config, logger *zap.Logger) adapterports.SecretManager {
	logger.Warn("Using LOCAL secret manager - NOT for production use!",
		zap.String("base_path", cfg.Secrets.LocalPath),
	)
	return secrets.NewLocalSecretManager(cfg.Secrets.LocalPath, logger)
}
