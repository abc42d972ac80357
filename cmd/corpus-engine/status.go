// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/corpus-engine/internal/corpus"
	"github.com/pdiddy/corpus-engine/pkg/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show ledger state per stage and recent runs",
	Long: `Status summarizes the processing ledger: how many papers each stage has
pending, running, done, and failed, plus the most recent pipeline runs.`,
	RunE: runStatus,
}

// statusReport is the exported status shape.
type statusReport struct {
	Stages map[string]map[string]int `json:"stages" yaml:"stages"`
	Runs   []types.RunRecord         `json:"runs" yaml:"runs"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg := engineConfig(cmd)

	store, err := corpus.Open(cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()

	summary, err := store.Summary(ctx)
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("runs")
	runs, err := store.RecentRuns(ctx, limit)
	if err != nil {
		return err
	}

	report := statusReport{Stages: make(map[string]map[string]int), Runs: runs}
	for stage, counts := range summary {
		report.Stages[stage] = make(map[string]int)
		for status, n := range counts {
			report.Stages[stage][string(status)] = n
		}
	}

	format, _ := cmd.Flags().GetString("format")
	switch format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "yaml":
		data, err := yaml.Marshal(report)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	case "", "table":
		printStatusTable(report)
		return nil
	default:
		return fmt.Errorf("unsupported format %q: use table, yaml, or json", format)
	}
}

func printStatusTable(report statusReport) {
	fmt.Printf("%-10s  %8s  %8s  %8s  %8s\n", "Stage", "Pending", "Running", "Done", "Failed")

	stages := append([]string{types.StageIndexing}, types.GenerationStages()...)
	for _, stage := range stages {
		counts := report.Stages[stage]
		fmt.Printf("%-10s  %8d  %8d  %8d  %8d\n", stage,
			counts[string(types.StatusPending)], counts[string(types.StatusRunning)],
			counts[string(types.StatusDone)], counts[string(types.StatusFailed)])
	}

	if len(report.Runs) > 0 {
		fmt.Printf("\nRecent runs:\n")
		for _, r := range report.Runs {
			fmt.Printf("  %s  %-10s  %d generated, %d failed, %d skipped\n",
				r.StartedAt.Format("2006-01-02 15:04:05"), r.Stage,
				r.Generated, r.Failed, r.Skipped)
		}
	}
}

func init() {
	statusCmd.Flags().String("format", "table", "output format: table, yaml, or json")
	statusCmd.Flags().Int("runs", 10, "number of recent runs to show")

	rootCmd.AddCommand(statusCmd)
}
