package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"docchat/internal/bootstrap"
	postgresClient "docchat/internal/platform/postgres"
	"docchat/internal/repository"
)

var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Create tables, the pgvector extension and the similarity index",
	RunE:  runInitDB,
}

func init() {
	rootCmd.AddCommand(initDBCmd)
}

func runInitDB(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	_, db, err := bootstrap.Connect(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()

	if err := postgresClient.Migrate(ctx, db); err != nil {
		return err
	}
	chunks := repository.NewChunkRepository(db)
	if err := chunks.CreateIndex(ctx); err != nil {
		return fmt.Errorf("create similarity index failed: %w", err)
	}
	documents := repository.NewDocumentRepository(db)
	stats, err := documents.Stats(ctx)
	if err != nil {
		return err
	}
	coverage, err := chunks.Coverage(ctx)
	if err != nil {
		return err
	}
	cmd.Println("Database initialised: tables, pgvector extension and HNSW index are ready.")
	cmd.Printf("Documents: %d, chunks: %d, embedded: %d (%.1f%%)\n",
		stats.Documents, stats.Chunks, coverage.WithEmbeddings, coverage.Percent)
	return nil
}
