package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/localsearch/indexer-core/internal/ledger"
)

func newLedgerCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect or reset the file-status ledger",
	}
	root.AddCommand(newLedgerShowCmd())
	root.AddCommand(newLedgerClearCmd())
	return root
}

func openLedgerForCmd() (*ledger.Ledger, error) {
	ledgerDir := filepath.Join(dataDir, "file_status")
	if err := os.MkdirAll(ledgerDir, 0o755); err != nil {
		return nil, err
	}
	return ledger.Open(filepath.Join(ledgerDir, "file_status.db"), 0)
}

func newLedgerShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print every ledger row",
		RunE: func(cmd *cobra.Command, args []string) error {
			led, err := openLedgerForCmd()
			if err != nil {
				return err
			}
			defer func() { _ = led.Close() }()

			cache := led.LoadCache()
			paths := make([]string, 0, len(cache))
			for p := range cache {
				paths = append(paths, p)
			}
			sort.Strings(paths)

			for _, p := range paths {
				s := cache[p]
				fmt.Printf("%-8s chunks=%-4d v%-2d %s", s.Status, s.ChunkCount, s.ParserVersion, p)
				if s.ErrorMessage != "" {
					fmt.Printf(" (%s)", s.ErrorMessage)
				}
				fmt.Println()
			}
			fmt.Printf("%d rows\n", len(paths))
			return nil
		},
	}
}

func newLedgerClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every ledger row, forcing a full reindex on next sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			led, err := openLedgerForCmd()
			if err != nil {
				return err
			}
			defer func() { _ = led.Close() }()

			cache := led.LoadCache()
			for p := range cache {
				if err := led.Delete(p); err != nil {
					return fmt.Errorf("delete %s: %w", p, err)
				}
			}
			fmt.Printf("cleared %d rows\n", len(cache))
			return nil
		},
	}
}
