// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/corpus-engine/internal/corpus"
)

var purgeCmd = &cobra.Command{
	Use:   "purge <paper-id>",
	Short: "Remove a paper and everything derived from it",
	Long: `Purge deletes a paper record together with its index entry, ledger rows,
and artifacts in all three derived stores. This is the only way paper data
leaves the corpus; it requires --confirm.`,
	Args: cobra.ExactArgs(1),
	RunE: runPurge,
}

func runPurge(cmd *cobra.Command, args []string) error {
	confirm, _ := cmd.Flags().GetBool("confirm")
	if !confirm {
		return fmt.Errorf("purge is destructive: rerun with --confirm")
	}

	cfg := engineConfig(cmd)

	store, err := corpus.Open(cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	paperID := args[0]
	if err := store.Purge(context.Background(), paperID); err != nil {
		return err
	}

	fmt.Printf("Purged %s\n", paperID)
	return nil
}

func init() {
	purgeCmd.Flags().Bool("confirm", false, "confirm the deletion")

	rootCmd.AddCommand(purgeCmd)
}
