package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/localsearch/indexer-core/internal/config"
	"github.com/localsearch/indexer-core/internal/embedqueue"
	"github.com/localsearch/indexer-core/internal/ledger"
	"github.com/localsearch/indexer-core/internal/logging"
	"github.com/localsearch/indexer-core/internal/pipeline"
	"github.com/localsearch/indexer-core/internal/preflight"
	"github.com/localsearch/indexer-core/internal/scanner"
	"github.com/localsearch/indexer-core/internal/supervisor"
	"github.com/localsearch/indexer-core/internal/vectorstore"
)

// runPreflight aborts startup on any critical (Required) check failure, and
// logs non-critical warnings so the operator can see them without stopping
// the run. It runs only when dataDir has no preflight marker
// (preflight.NeedsCheck); once the checks pass, MarkPassed writes the marker,
// and the marker's age is not consulted.
func runPreflight(dataDir string, modelSpec string) error {
	if !preflight.NeedsCheck(dataDir) {
		return nil
	}

	checker := preflight.New()
	results := checker.RunAll(context.Background(), dataDir, modelSpec)
	for _, r := range results {
		if r.Status == preflight.StatusWarn {
			slog.Warn("preflight warning", slog.String("check", r.Name), slog.String("message", r.Message))
		}
	}
	if checker.HasCriticalFailures(results) {
		checker.PrintResults(results)
		return fmt.Errorf("preflight checks failed for %s", dataDir)
	}

	return preflight.MarkPassed(dataDir)
}

// defaultDataDir mirrors logging.DefaultLogDir's home-directory-with-
// temp-dir-fallback shape, under a sibling "data" leaf (§6's <db_dir>).
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".indexer-core", "data")
	}
	return filepath.Join(home, ".indexer-core", "data")
}

// openStores opens (creating as needed) the file_status and chunks
// databases under dataDir's layout (§6).
func openStores(dataDir string) (*ledger.Ledger, *vectorstore.Store, *vectorstore.Table, error) {
	ledgerDir := filepath.Join(dataDir, "file_status")
	if err := os.MkdirAll(ledgerDir, 0o755); err != nil {
		return nil, nil, nil, fmt.Errorf("create %s: %w", ledgerDir, err)
	}
	led, err := ledger.Open(filepath.Join(ledgerDir, "file_status.db"), 4096)
	if err != nil {
		return nil, nil, nil, err
	}

	chunksDir := filepath.Join(dataDir, "chunks")
	if err := os.MkdirAll(chunksDir, 0o755); err != nil {
		_ = led.Close()
		return nil, nil, nil, fmt.Errorf("create %s: %w", chunksDir, err)
	}
	vstore, err := vectorstore.Open(filepath.Join(chunksDir, "chunks.db"))
	if err != nil {
		_ = led.Close()
		return nil, nil, nil, err
	}
	table, err := vstore.CreateTable("chunks", nil)
	if err != nil {
		_ = led.Close()
		_ = vstore.Close()
		return nil, nil, nil, err
	}

	return led, vstore, table, nil
}

// buildDriver assembles a pipeline.Driver over dataDir, watching dirs. The
// returned config.Guard is already locked; callers must Unlock it on exit.
func buildDriver(dataDir string, dirs []string, model string) (*pipeline.Driver, *config.Guard, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create data dir %s: %w", dataDir, err)
	}
	if err := runPreflight(dataDir, model); err != nil {
		return nil, nil, err
	}

	guard := config.NewGuard(dataDir)
	acquired, err := guard.TryLock()
	if err != nil {
		return nil, nil, err
	}
	if !acquired {
		pid, _ := config.HolderPID(dataDir)
		return nil, nil, fmt.Errorf("another indexer-core process already holds %s (pid %d)", dataDir, pid)
	}

	cfg, err := config.Load(dataDir)
	if err != nil {
		_ = guard.Unlock()
		return nil, nil, err
	}

	led, vstore, table, err := openStores(dataDir)
	if err != nil {
		_ = guard.Unlock()
		return nil, nil, err
	}

	sc, err := scanner.New()
	if err != nil {
		_ = led.Close()
		_ = vstore.Close()
		_ = guard.Unlock()
		return nil, nil, err
	}

	childLogPath := logging.ChildLogPath()
	if err := os.MkdirAll(filepath.Dir(childLogPath), 0o755); err != nil {
		_ = led.Close()
		_ = vstore.Close()
		_ = guard.Unlock()
		return nil, nil, err
	}
	childLog, err := os.OpenFile(childLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		_ = led.Close()
		_ = vstore.Close()
		_ = guard.Unlock()
		return nil, nil, err
	}

	supCfg := supervisor.DefaultConfig()
	supCfg.Model = model
	sup := supervisor.New(supCfg, newProcessLauncher(childLog), newProcMemSampler())

	watched := make([]string, len(dirs))
	for i, d := range dirs {
		abs, err := filepath.Abs(d)
		if err != nil {
			abs = d
		}
		watched[i] = abs
	}

	drv := pipeline.NewDriver(pipeline.Config{
		WatchedRoots:        watched,
		ExcludePatterns:     cfg.Settings.ExcludePatterns,
		SupportedExtensions: []string{"txt", "md", "csv", "tsv"},
		EmbedQueue: embedqueue.Config{
			MaxQueueSize:      supCfg.MaxQueueSize,
			BatchSize:         32,
			MaxTokensPerBatch: embedqueue.DefaultMaxTokensPerBatch,
		},
		EmbedMaxRetries: supCfg.MaxRetries,
		DataDir:         dataDir,
	}, sc, led, vstore, table, sup, slog.Default())

	return drv, guard, nil
}

func closeGuard(guard *config.Guard) {
	if err := guard.Unlock(); err != nil {
		slog.Warn("failed to release data directory lock", slog.Any("error", err))
	}
}
