package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/localsearch/indexer-core/internal/config"
	"github.com/localsearch/indexer-core/internal/ledger"
	"github.com/localsearch/indexer-core/internal/output"
	"github.com/localsearch/indexer-core/internal/planner"
	"github.com/localsearch/indexer-core/internal/scanner"
)

func newScanCmd() *cobra.Command {
	var force bool
	c := &cobra.Command{
		Use:   "scan <dir>...",
		Short: "Compute and print the reindex plan without embedding anything",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd.Context(), args, force)
		},
	}
	c.Flags().BoolVar(&force, "force", false, "plan as if every file needs reindexing")
	return c
}

func runScan(ctx context.Context, dirs []string, force bool) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}
	cfg, err := config.Load(dataDir)
	if err != nil {
		return err
	}

	ledgerDir := filepath.Join(dataDir, "file_status")
	if err := os.MkdirAll(ledgerDir, 0o755); err != nil {
		return err
	}
	led, err := ledger.Open(filepath.Join(ledgerDir, "file_status.db"), 0)
	if err != nil {
		return err
	}
	defer func() { _ = led.Close() }()

	sc, err := scanner.New()
	if err != nil {
		return err
	}

	var allFiles []string
	for _, dir := range dirs {
		abs, err := filepath.Abs(dir)
		if err != nil {
			abs = dir
		}
		results, err := sc.Scan(ctx, scanner.Options{
			RootDir:             abs,
			ExcludePatterns:     cfg.Settings.ExcludePatterns,
			SupportedExtensions: []string{"txt", "md", "csv", "tsv"},
			DataDir:             dataDir,
		})
		if err != nil {
			return err
		}
		for r := range results {
			if r.Error != nil {
				return r.Error
			}
			allFiles = append(allFiles, r.File.AbsPath)
		}
	}

	absRoots := make([]string, len(dirs))
	for i, d := range dirs {
		abs, err := filepath.Abs(d)
		if err != nil {
			abs = d
		}
		absRoots[i] = abs
	}

	plan := planner.Plan(absRoots, allFiles, led.LoadCache(), planner.Options{
		SupportedExtensions: []string{"txt", "md", "csv", "tsv"},
		Force:               force,
	})

	out := output.New(os.Stdout)
	out.Successf("plan: %d to index, %d to remove", len(plan.FilesToIndex), len(plan.FilesToRemove))
	out.Status("", fmt.Sprintf("new=%d modified=%d outdated=%d failed=%d skipped=%d total=%d",
		plan.Stats.New, plan.Stats.Modified, plan.Stats.Outdated, plan.Stats.Failed, plan.Stats.Skipped, plan.Stats.Total))
	for _, p := range plan.FilesToIndex {
		out.Status("", fmt.Sprintf("index  [%s] %s", plan.Reasons[p], p))
	}
	for _, p := range plan.FilesToRemove {
		out.Status("", fmt.Sprintf("remove %s", p))
	}

	return nil
}
