// Package logging provides structured, rotating file logging for
// indexer-core, built on log/slog. The parent process logs to
// <log_dir>/indexer.log; the isolated embedder child (whose stdout is
// reserved for the IPC wire protocol, §6) logs to <log_dir>/embedder.log
// and never writes to stdout.
package logging
