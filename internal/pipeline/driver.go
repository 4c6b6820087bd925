package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/localsearch/indexer-core/internal/chunker"
	coreerrors "github.com/localsearch/indexer-core/internal/errors"
	"github.com/localsearch/indexer-core/internal/embedqueue"
	"github.com/localsearch/indexer-core/internal/fsutil"
	"github.com/localsearch/indexer-core/internal/ledger"
	"github.com/localsearch/indexer-core/internal/planner"
	"github.com/localsearch/indexer-core/internal/scanner"
	"github.com/localsearch/indexer-core/internal/shutdown"
	"github.com/localsearch/indexer-core/internal/startup"
	"github.com/localsearch/indexer-core/internal/supervisor"
	"github.com/localsearch/indexer-core/internal/vectorstore"
	"github.com/localsearch/indexer-core/internal/watcher"
)

// Config configures a Driver. Paths in WatchedRoots are resolved to
// absolute form by NewDriver, since the data model (§3) treats Path as an
// absolute canonical string.
type Config struct {
	WatchedRoots        []string
	ExcludePatterns     []string
	SupportedExtensions []string
	ChunkOptions        chunker.Options
	EmbedQueue          embedqueue.Config
	EmbedMaxRetries     int
	// DataDir is the index's own on-disk directory, excluded from every
	// scan/watch so the pipeline never reacts to its own ledger/vector
	// writes.
	DataDir string
	// Workers bounds concurrent IndexFile calls during a Sync pass. 0 uses
	// runtime.NumCPU().
	Workers int
}

type pathOutcome struct {
	chunkCount uint32
	hash       string
	err        error
}

// Driver is the indexing core's orchestrator: it owns no domain logic of
// its own, only the wiring described in §2's data-flow list.
type Driver struct {
	cfg      Config
	scanner  *scanner.Scanner
	ledger   *ledger.Ledger
	vstore   *vectorstore.Store
	table    *vectorstore.Table
	queue    *embedqueue.Queue
	embedder *supervisor.Supervisor
	parsers  *ParserRegistry
	logger   *slog.Logger

	mu       sync.Mutex
	outcomes map[string]*pathOutcome
}

// NewDriver assembles a Driver from its already-opened dependencies. The
// embedding queue is created here but not started: call Bootstrap first, so
// the queue's embedder is only wired up once the embedder child has
// completed its init handshake.
func NewDriver(cfg Config, sc *scanner.Scanner, led *ledger.Ledger, vstore *vectorstore.Store, table *vectorstore.Table, embedder *supervisor.Supervisor, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ChunkOptions.TargetTokens <= 0 {
		cfg.ChunkOptions = chunker.DefaultOptions()
	}

	roots := make([]string, len(cfg.WatchedRoots))
	for i, r := range cfg.WatchedRoots {
		abs, err := filepath.Abs(r)
		if err != nil {
			abs = r
		}
		roots[i] = abs
	}
	cfg.WatchedRoots = roots

	return &Driver{
		cfg:      cfg,
		scanner:  sc,
		ledger:   led,
		vstore:   vstore,
		table:    table,
		queue:    embedqueue.New(cfg.EmbedQueue, logger),
		embedder: embedder,
		parsers:  NewParserRegistry(),
		logger:   logger,
		outcomes: map[string]*pathOutcome{},
	}
}

// Parsers exposes the driver's parser registry so a caller (typically
// cmd/indexer-core, wiring a real pdf/docx parser, or a test) can register
// additional Parser<ext> implementations before Bootstrap runs.
func (d *Driver) Parsers() *ParserRegistry { return d.parsers }

// QueueStats reports the embedding queue's current depth, for status/
// dashboard reporting.
func (d *Driver) QueueStats() embedqueue.Stats { return d.queue.GetStats() }

// Bootstrap runs the staged startup sequence (§4.9) through cb: spawning the
// embedder child, wiring the embedding queue to it, and running the first
// full reindex pass before reporting READY.
func (d *Driver) Bootstrap(ctx context.Context, cb startup.Callbacks) error {
	events := make(chan startup.Progress, 8)
	coord := startup.New(cb)

	go func() {
		defer close(events)

		events <- startup.Progress{Stage: startup.StageWorkerSpawn, Message: "spawning embedder child", Progress: -1}
		if err := d.embedder.Initialize(ctx); err != nil {
			d.logger.Error("embedder child failed to initialize", slog.Any("error", err))
			return
		}
		d.queue.Initialize(newEmbedderAdapter(d.embedder, d.cfg.EmbedMaxRetries), d.onBatchProcessed)

		events <- startup.Progress{Stage: startup.StageModelDownload, Message: "model ready", Progress: 100}

		events <- startup.Progress{Stage: startup.StageDBInit, Message: "ledger and vector store open", Progress: -1}

		events <- startup.Progress{Stage: startup.StageDBLoad, Message: "running initial reindex pass", Progress: -1}
		if _, err := d.Sync(ctx, false); err != nil {
			d.logger.Error("initial sync failed", slog.Any("error", err))
			return
		}

		events <- startup.Progress{Stage: startup.StageReady, Message: "ready", Progress: 100}
	}()

	return coord.Coordinate(events)
}

// Sync runs one full plan-and-execute pass: scan every watched root, plan
// against the ledger's cache, remove files that fell out of scope, and
// (re)index everything the plan names. force is threaded to the planner's
// ReasonForceReindex path.
func (d *Driver) Sync(ctx context.Context, force bool) (planner.Plan, error) {
	allFiles, err := d.gatherAllFiles(ctx)
	if err != nil {
		return planner.Plan{}, coreerrors.TransientIOError("scan failed", err)
	}

	cache := d.ledger.LoadCache()
	plan := planner.Plan(d.cfg.WatchedRoots, allFiles, cache, planner.Options{
		SupportedExtensions: d.cfg.SupportedExtensions,
		Force:               force,
	})

	if ok, problems := planner.Validate(plan); !ok {
		return plan, coreerrors.ValidationError(strings.Join(problems, "; "), nil)
	}

	for _, path := range plan.FilesToRemove {
		d.removeFile(path)
	}
	d.processPlan(ctx, plan)

	return plan, nil
}

func (d *Driver) gatherAllFiles(ctx context.Context) ([]string, error) {
	var all []string
	for _, root := range d.cfg.WatchedRoots {
		results, err := d.scanner.Scan(ctx, scanner.Options{
			RootDir:             root,
			ExcludePatterns:     d.cfg.ExcludePatterns,
			SupportedExtensions: d.cfg.SupportedExtensions,
			DataDir:             d.cfg.DataDir,
		})
		if err != nil {
			return nil, err
		}
		for r := range results {
			if r.Error != nil {
				return nil, r.Error
			}
			all = append(all, r.File.AbsPath)
		}
	}
	return all, nil
}

// processPlan runs IndexFile over plan.FilesToIndex with bounded fan-out.
// A single file's failure is recorded in its own ledger row by IndexFile
// and never aborts the rest of the plan.
func (d *Driver) processPlan(ctx context.Context, plan planner.Plan) {
	workers := d.cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	sem := semaphore.NewWeighted(int64(workers))
	g, gctx := errgroup.WithContext(ctx)

	for _, path := range plan.FilesToIndex {
		path := path
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			if err := d.IndexFile(gctx, path); err != nil {
				d.logger.Error("index file failed", slog.String("path", path), slog.Any("error", err))
			}
			return nil
		})
	}
	_ = g.Wait()
}

// IndexFile extracts, chunks, embeds, and stores one file, then writes its
// final ledger row. Every return path ends in a ledger.Update call: the
// ledger always reflects the outcome of the most recent attempt.
func (d *Driver) IndexFile(ctx context.Context, path string) error {
	ext := fsutil.FileExtension(path)
	parser, ok := d.parsers.Lookup(ext)
	if !ok {
		return d.ledger.Update(path, ledger.StatusError, fmt.Sprintf("no parser registered for extension %q", ext), 0, 0)
	}

	text, err := parser.Parse(path)
	if err != nil {
		return d.ledger.Update(path, ledger.StatusError, err.Error(), 0, int(parser.Version()))
	}
	if text == "" {
		// Parser's unreadable/corrupt-input convention (§6): empty string
		// with a nil error means failed, not "zero chunks from real text".
		return d.ledger.Update(path, ledger.StatusFailed, "parser returned empty result", 0, int(parser.Version()))
	}

	// Delete-then-insert discipline (§3 lifecycle): drop this path's rows
	// before reinserting, whether or not anything new is produced.
	if err := d.table.Delete(pathPredicate(path)); err != nil {
		return d.ledger.Update(path, ledger.StatusError, coreerrors.Wrap(coreerrors.ErrCodeInternal, err).Error(), 0, int(parser.Version()))
	}

	chunks := chunker.ChunkText(text, d.cfg.ChunkOptions.TargetTokens, d.cfg.ChunkOptions.OverlapTokens)
	if len(chunks) == 0 {
		return d.ledger.Update(path, ledger.StatusIndexed, "", 0, int(parser.Version()))
	}

	hash, _ := fsutil.FileHash(path)
	items := make([]embedqueue.Item, len(chunks))
	for i, c := range chunks {
		items[i] = embedqueue.Item{Text: c.Text, Offset: c.Offset}
	}

	d.beginOutcome(path, hash)
	if err := d.queue.AddChunks(items, path, 0); err != nil {
		d.endOutcome(path)
		return d.ledger.Update(path, ledger.StatusError, err.Error(), 0, int(parser.Version()))
	}
	d.queue.WaitForCompletion(path)
	chunkCount, embedErr := d.endOutcome(path)

	if embedErr != nil {
		return d.ledger.Update(path, ledger.StatusFailed, embedErr.Error(), chunkCount, int(parser.Version()))
	}
	return d.ledger.Update(path, ledger.StatusIndexed, "", chunkCount, int(parser.Version()))
}

func (d *Driver) beginOutcome(path, hash string) {
	d.mu.Lock()
	d.outcomes[path] = &pathOutcome{hash: hash}
	d.mu.Unlock()
}

func (d *Driver) endOutcome(path string) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	o := d.outcomes[path]
	delete(d.outcomes, path)
	if o == nil {
		return 0, nil
	}
	return o.chunkCount, o.err
}

// onBatchProcessed is the embedqueue.OnBatchProcessed callback: it fans a
// completed batch's vectors back out to the vector store, grouped by path
// since a batch may mix chunks from several files (see DESIGN.md's
// cross-path batching decision).
func (d *Driver) onBatchProcessed(batch embedqueue.Batch, vectors [][]float32, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err != nil {
		for _, it := range batch.Items {
			if o := d.outcomes[it.Path]; o != nil && o.err == nil {
				o.err = err
			}
		}
		return
	}

	byPath := make(map[string][]vectorstore.Row)
	for i, it := range batch.Items {
		o := d.outcomes[it.Path]
		var hash string
		if o != nil {
			hash = o.hash
		}
		byPath[it.Path] = append(byPath[it.Path], vectorstore.Row{
			ID:     chunkID(it.Path, it.Offset),
			Text:   it.Text,
			Path:   it.Path,
			Page:   int(it.Page),
			Offset: it.Offset,
			Hash:   hash,
			Vector: vectors[i],
		})
	}

	for path, rows := range byPath {
		if err := d.table.Add(rows); err != nil {
			if o := d.outcomes[path]; o != nil && o.err == nil {
				o.err = err
			}
			continue
		}
		if o := d.outcomes[path]; o != nil {
			o.chunkCount += uint32(len(rows))
		}
	}
}

func (d *Driver) removeFile(path string) {
	if err := d.table.Delete(pathPredicate(path)); err != nil {
		d.logger.Error("failed to remove vectors for path", slog.String("path", path), slog.Any("error", err))
	}
	if err := d.ledger.Delete(path); err != nil {
		d.logger.Error("failed to remove ledger row", slog.String("path", path), slog.Any("error", err))
	}
}

// Watch starts w on root and processes its debounced event batches until
// ctx is cancelled or w's event channel closes.
func (d *Driver) Watch(ctx context.Context, w watcher.Watcher, root string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		absRoot = root
	}
	// Start blocks while the watcher runs, so it runs on its own goroutine.
	startErr := make(chan error, 1)
	go func() { startErr <- w.Start(ctx, absRoot) }()

	for {
		select {
		case <-ctx.Done():
			return w.Stop()
		case err := <-startErr:
			if err != nil && ctx.Err() == nil {
				return err
			}
			startErr = nil
		case events, ok := <-w.Events():
			if !ok {
				return nil
			}
			d.handleEvents(ctx, absRoot, events)
		case werr, ok := <-w.Errors():
			if !ok {
				continue
			}
			d.logger.Warn("watcher error", slog.Any("error", werr))
		}
	}
}

func (d *Driver) handleEvents(ctx context.Context, root string, events []watcher.FileEvent) {
	for _, ev := range events {
		abs := filepath.Join(root, ev.Path)

		switch ev.Operation {
		case watcher.OpDelete:
			d.removeFile(abs)
		case watcher.OpRename:
			if ev.OldPath != "" {
				d.removeFile(filepath.Join(root, ev.OldPath))
			}
			if ev.IsDir {
				continue
			}
			if err := d.IndexFile(ctx, abs); err != nil {
				d.logger.Error("index file failed", slog.String("path", abs), slog.Any("error", err))
			}
		default: // OpCreate, OpModify
			if ev.IsDir {
				continue
			}
			if err := d.IndexFile(ctx, abs); err != nil {
				d.logger.Error("index file failed", slog.String("path", abs), slog.Any("error", err))
			}
		}
	}
}

// Shutdown drains the embedding queue (bounded by timeoutMs, 0 meaning wait
// indefinitely), stops the embedder child, and closes the ledger and vector
// store handles.
func (d *Driver) Shutdown(timeoutMs int64) error {
	d.queue.Shutdown()

	drained := shutdown.WaitForQueueToDrain(shutdown.Options{
		QueueName: "embedqueue",
		GetStats:  func() any { return d.queue.GetStats() },
		IsQueueEmpty: func(s any) bool {
			st := s.(embedqueue.Stats)
			return st.QueueDepth == 0 && st.ProcessingBatches == 0
		},
		TimeoutMs:      timeoutMs,
		PollIntervalMs: 50,
	})
	if !drained {
		d.logger.Warn("embed queue did not drain before shutdown timeout")
	}

	if err := d.embedder.Shutdown(); err != nil {
		d.logger.Error("embedder shutdown failed", slog.Any("error", err))
	}
	if err := d.ledger.Close(); err != nil {
		return err
	}
	return d.vstore.Close()
}

func chunkID(path string, offset int) string {
	sum := sha256.Sum256([]byte(path + "\x00" + strconv.Itoa(offset)))
	return hex.EncodeToString(sum[:])[:16]
}

func pathPredicate(path string) string {
	return "path = '" + strings.ReplaceAll(path, "'", "''") + "'"
}
