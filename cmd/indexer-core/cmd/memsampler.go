package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/localsearch/indexer-core/internal/supervisor"
)

// childPID holds the embedder-child's current OS PID, updated by
// newProcessLauncher on every spawn. Zero means no child is running.
var childPID atomic.Int64

// newProcMemSampler returns a supervisor.ResourceSampler reading the live
// child's resident set size from /proc/<pid>/status. The native model is
// loaded in-process via dlopen (internal/embedmodel.NativeModel), so its
// memory is already counted in VmRSS; externalMB is reported as zero rather
// than guessed, since there is no separate out-of-process component to
// measure here.
func newProcMemSampler() supervisor.ResourceSampler {
	return func() (rssMB, externalMB float64, err error) {
		pid := childPID.Load()
		if pid == 0 {
			return 0, 0, fmt.Errorf("embedder-child not running")
		}

		f, err := os.Open(fmt.Sprintf("/proc/%d/status", pid))
		if err != nil {
			return 0, 0, err
		}
		defer func() { _ = f.Close() }()

		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "VmRSS:") {
				continue
			}
			fields := strings.Fields(line)
			if len(fields) < 2 {
				return 0, 0, fmt.Errorf("malformed VmRSS line: %q", line)
			}
			kb, err := strconv.ParseFloat(fields[1], 64)
			if err != nil {
				return 0, 0, fmt.Errorf("parse VmRSS: %w", err)
			}
			return kb / 1024, 0, nil
		}
		return 0, 0, fmt.Errorf("VmRSS not found in /proc/%d/status", pid)
	}
}
