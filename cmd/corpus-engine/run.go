// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pdiddy/corpus-engine/internal/corpus"
	"github.com/pdiddy/corpus-engine/internal/pipeline"
	"github.com/pdiddy/corpus-engine/pkg/types"
)

var runCmd = &cobra.Command{
	Use:   "run <query|synthesis|label|all>",
	Short: "Run a generation stage over the pending index entries",
	Long: `Run drives one artifact-generation stage: it scans the catalog for entries
the ledger does not mark done, generates artifacts for each, and commits
every artifact set atomically with its ledger transition. Entries that
previously failed are skipped unless --retry-failed is given; --force
regenerates entries already done, replacing their artifacts.

"run all" executes the three stages in sequence. The stages are
independent: a failure in one does not block the others.`,
	Args: cobra.ExactArgs(1),
	RunE: runStage,
}

func runStage(cmd *cobra.Command, args []string) error {
	stageArg := args[0]

	var stages []string
	switch {
	case stageArg == "all":
		stages = types.GenerationStages()
	case types.ValidStage(stageArg):
		stages = []string{stageArg}
	default:
		return fmt.Errorf("unknown stage %q: use query, synthesis, label, or all", stageArg)
	}

	cfg := engineConfig(cmd)

	store, err := corpus.Open(cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	runner := &pipeline.Runner{
		Store: store,
		Cfg:   cfg,
		Log:   log,
	}
	runner.Force, _ = cmd.Flags().GetBool("force")
	runner.RetryFailed, _ = cmd.Flags().GetBool("retry-failed")
	runner.Collection, _ = cmd.Flags().GetString("collection")
	if workers, _ := cmd.Flags().GetInt("workers"); workers > 0 {
		runner.Cfg.Pipeline.Workers = workers
	}
	groupsFile, _ := cmd.Flags().GetString("groups")
	if groupsFile == "" {
		groupsFile = cfg.Synthesis.GroupsFile
	}
	if groupsFile != "" {
		groups, err := pipeline.LoadGroups(groupsFile)
		if err != nil {
			return err
		}
		runner.Groups = groups
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	failed := 0
	for _, stage := range stages {
		summary, err := runner.RunStage(ctx, stage, os.Stdout)
		if err != nil {
			return err
		}
		failed += summary.Failed
	}
	if failed > 0 {
		return fmt.Errorf("%d entries failed; rerun with --retry-failed after fixing inputs", failed)
	}
	return nil
}

func init() {
	runCmd.Flags().Bool("force", false, "regenerate entries already done, replacing their artifacts")
	runCmd.Flags().Bool("retry-failed", false, "reprocess entries that previously failed")
	runCmd.Flags().Int("workers", 0, "concurrent papers per stage (default: 4)")
	runCmd.Flags().String("collection", "", "restrict the run to one collection tag (e.g. slr_cem)")
	runCmd.Flags().String("groups", "", "YAML file mapping synthesis group names to paper ids")

	rootCmd.AddCommand(runCmd)
}
