package cmd

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/localsearch/indexer-core/internal/ipc"
)

// childPathEnvVar overrides the embedder-child binary location, for
// deployments that install it somewhere other than beside indexer-core.
const childPathEnvVar = "INDEXER_CORE_EMBEDDER_CHILD_PATH"

// newProcessLauncher returns a supervisor.Launcher that forks a real
// embedder-child OS process and speaks the wire protocol over its
// stdin/stdout, grounded on internal/lifecycle's execCommand-as-a-field
// pattern for spawning and supervising a subsidiary process.
func newProcessLauncher(childLog io.Writer) func() (ipc.ProcessMessenger, error) {
	return func() (ipc.ProcessMessenger, error) {
		path, err := resolveChildPath()
		if err != nil {
			return nil, err
		}

		c := exec.Command(path)
		stdin, err := c.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("embedder-child: stdin pipe: %w", err)
		}
		stdout, err := c.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("embedder-child: stdout pipe: %w", err)
		}
		if childLog != nil {
			c.Stderr = childLog
		}

		if err := c.Start(); err != nil {
			return nil, fmt.Errorf("embedder-child: start %s: %w", path, err)
		}

		proc := c.Process
		childPID.Store(int64(proc.Pid))
		return ipc.NewPipeMessenger(stdout, stdin, func() error {
			_ = stdin.Close()
			childPID.Store(0)
			if proc == nil {
				return nil
			}
			return proc.Kill()
		}), nil
	}
}

func resolveChildPath() (string, error) {
	if p := os.Getenv(childPathEnvVar); p != "" {
		return p, nil
	}

	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), childBinaryName())
		if _, statErr := os.Stat(candidate); statErr == nil {
			return candidate, nil
		}
	}

	if p, err := exec.LookPath(childBinaryName()); err == nil {
		return p, nil
	}

	return "", fmt.Errorf(
		"embedder-child binary not found: set %s, place it next to indexer-core, or add it to PATH",
		childPathEnvVar,
	)
}

func childBinaryName() string {
	if runtime.GOOS == "windows" {
		return "embedder-child.exe"
	}
	return "embedder-child"
}
