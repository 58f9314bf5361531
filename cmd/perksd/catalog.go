package main

import (
	"fmt"

	"github.com/MarkoPoloResearchLab/perkledger/internal/catalog"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newCatalogCommand(cfg *runtimeConfig) *cobra.Command {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the card and benefit catalog",
	}
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Upsert cards, benefits and card ownership from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := cmd.Flags().GetString(flagCatalogFile)
			if err != nil {
				return err
			}
			return importCatalog(cmd, cfg, path)
		},
	}
	importCmd.Flags().String(flagCatalogFile, "", "catalog YAML file")
	_ = importCmd.MarkFlagRequired(flagCatalogFile)
	catalogCmd.AddCommand(importCmd)
	return catalogCmd
}

func importCatalog(cmd *cobra.Command, cfg *runtimeConfig, path string) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	loaded, err := catalog.LoadFile(path)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	gormDB, cleanup, _, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer func() { _ = cleanup() }()

	store, err := prepareSchema(ctx, gormDB)
	if err != nil {
		return err
	}
	if err := store.Import(ctx, loaded); err != nil {
		return fmt.Errorf("catalog import: %w", err)
	}

	if cfg.RedisURL != "" {
		cache, closeCache, err := newCatalogCache(cfg, store, nil)
		if err != nil {
			return err
		}
		defer closeCache()
		if err := cache.Clear(ctx); err != nil {
			logger.Warn("catalog cache clear failed", zap.Error(err))
		}
	}

	logger.Info("catalog imported",
		zap.String("file", path),
		zap.Int("cards", len(loaded.Entries)),
		zap.Int("ownerships", len(loaded.Ownerships)),
	)
	return nil
}
