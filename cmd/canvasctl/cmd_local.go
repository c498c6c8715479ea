package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MartinFunctu/lifeos/application/commands"
	"github.com/MartinFunctu/lifeos/infrastructure/config"
	"github.com/MartinFunctu/lifeos/infrastructure/di"
	"github.com/MartinFunctu/lifeos/pkg/auth"
)

func runSeed(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	container, cleanup, err := di.InitializeContainer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize container: %w", err)
	}
	defer cleanup()

	ctx = auth.WithOwner(ctx, ownerID)
	if _, err := container.CommandBus.Send(ctx, commands.SeedWorkspaceCommand{OwnerID: ownerID}); err != nil {
		return fmt.Errorf("seed workspace: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "seeded %s in %s storage\n", commands.RootNodeID(ownerID), cfg.StorageBackend)
	return nil
}

func runToken(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	token, err := mintToken(cfg)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

func mintToken(cfg *config.Config) (string, error) {
	secret := di.JWTSecret(cfg)
	if secret == "" {
		return "", fmt.Errorf("JWT_SECRET is required to mint tokens in %s", cfg.Environment)
	}
	gen, err := auth.NewJWTGenerator(auth.JWTGeneratorConfig{
		SigningMethod: "HS256",
		SecretKey:     secret,
		Issuer:        cfg.JWTIssuer,
		Audience:      []string{di.JWTAudience(cfg)},
		ExpiryTime:    tokenTTL,
	})
	if err != nil {
		return "", fmt.Errorf("create token generator: %w", err)
	}
	return gen.IssueToken(ownerID, email)
}
