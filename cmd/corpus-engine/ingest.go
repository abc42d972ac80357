// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/corpus-engine/internal/corpus"
	"github.com/pdiddy/corpus-engine/internal/extract"
	"github.com/pdiddy/corpus-engine/internal/ingest"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Store fetched paper payloads and index them into the catalog",
	Long: `Ingest reads fetched paper payloads (*.json) from the input directory,
stores each under its stable identifier, and indexes it into the metadata
catalog. Re-ingesting an unchanged paper is a no-op; changed content is a
conflict unless --overwrite is given. Papers whose metadata is incomplete
are indexed with partial fields and flagged for review.`,
	RunE: runIngest,
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg := engineConfig(cmd)
	if inputDir, _ := cmd.Flags().GetString("input"); inputDir != "" {
		cfg.Ingest.InputDir = inputDir
	}
	cfg.Ingest.Overwrite, _ = cmd.Flags().GetBool("overwrite")

	store, err := corpus.Open(cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	result, err := ingest.Run(context.Background(), store, extract.PMCExtractor{}, cfg.Ingest, os.Stdout)
	if err != nil {
		return err
	}
	if result.Failed > 0 {
		return fmt.Errorf("%d payload(s) failed ingest", result.Failed)
	}
	return nil
}

func init() {
	ingestCmd.Flags().String("input", "", "directory of fetched paper payloads (default: data/fetched)")
	ingestCmd.Flags().Bool("overwrite", false, "replace stored papers whose content changed")

	rootCmd.AddCommand(ingestCmd)
}
