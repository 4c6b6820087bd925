package cmd

import (
	"os"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/localsearch/indexer-core/internal/config"
	"github.com/localsearch/indexer-core/internal/ledger"
	"github.com/localsearch/indexer-core/internal/output"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Summarize the ledger and report whether a watcher is running",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus()
		},
	}
}

func runStatus() error {
	out := output.New(os.Stdout)

	led, err := openLedgerForCmd()
	if err != nil {
		return err
	}
	defer func() { _ = led.Close() }()

	counts := map[ledger.Status]int{}
	for _, s := range led.LoadCache() {
		counts[s.Status]++
	}

	out.Statusf("", "data dir: %s", dataDir)
	out.Statusf("", "indexed=%d failed=%d error=%d outdated=%d init=%d",
		counts[ledger.StatusIndexed], counts[ledger.StatusFailed], counts[ledger.StatusError],
		counts[ledger.StatusOutdated], counts[ledger.StatusInit])
	if counts[ledger.StatusFailed]+counts[ledger.StatusError] > 0 {
		out.Warningf("%d file(s) failed or errored; see 'ledger show' for details",
			counts[ledger.StatusFailed]+counts[ledger.StatusError])
	}

	pid, err := config.HolderPID(dataDir)
	if err != nil {
		out.Status("", "watcher: not running")
		return nil
	}
	if processAlive(pid) {
		out.Successf("watcher: running (pid %d)", pid)
	} else {
		out.Warningf("watcher: stale lock (pid %d not running)", pid)
	}
	return nil
}

// processAlive reports whether pid identifies a live process, using the
// Unix convention of signalling 0 (no-op delivery, error-only probe).
func processAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
