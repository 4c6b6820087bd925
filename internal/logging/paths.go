package logging

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultLogDir returns the default log directory (~/.indexer-core/logs/).
// Falls back to the temp directory if the home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".indexer-core", "logs")
	}
	return filepath.Join(home, ".indexer-core", "logs")
}

// DefaultLogPath returns the parent process's log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "indexer.log")
}

// ChildLogPath returns the isolated embedder child's log path.
func ChildLogPath() string {
	return filepath.Join(DefaultLogDir(), "embedder.log")
}

// LogSource identifies which process's logs to view.
type LogSource string

const (
	// LogSourceParent is the indexer-core parent process logs (default).
	LogSourceParent LogSource = "parent"
	// LogSourceChild is the isolated embedder child process logs.
	LogSourceChild LogSource = "child"
	// LogSourceAll combines both.
	LogSourceAll LogSource = "all"
)

// FindLogFile locates the log file to view: an explicit path if given,
// otherwise the parent process's default log path.
func FindLogFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit, nil
		}
		return "", fmt.Errorf("log file not found: %s", explicit)
	}

	path := DefaultLogPath()
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("no log file found; expected at: %s", path)
}

// FindLogFileBySource returns the log file paths matching source that
// currently exist on disk.
func FindLogFileBySource(source LogSource, explicit string) ([]string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return []string{explicit}, nil
		}
		return nil, fmt.Errorf("log file not found: %s", explicit)
	}

	var paths, checked []string
	consider := func(p string) {
		checked = append(checked, p)
		if _, err := os.Stat(p); err == nil {
			paths = append(paths, p)
		}
	}

	switch source {
	case LogSourceParent:
		consider(DefaultLogPath())
	case LogSourceChild:
		consider(ChildLogPath())
	case LogSourceAll:
		consider(DefaultLogPath())
		consider(ChildLogPath())
	default:
		return nil, fmt.Errorf("unknown log source: %s (use: parent, child, all)", source)
	}

	if len(paths) == 0 {
		return nil, fmt.Errorf("no log files found for source '%s'; checked: %v", source, checked)
	}
	return paths, nil
}

// ParseLogSource parses a string into a LogSource, defaulting to parent.
func ParseLogSource(s string) LogSource {
	switch s {
	case "child":
		return LogSourceChild
	case "all":
		return LogSourceAll
	default:
		return LogSourceParent
	}
}

// EnsureLogDir creates the log directory if it doesn't already exist.
func EnsureLogDir() error {
	return os.MkdirAll(DefaultLogDir(), 0o755)
}
