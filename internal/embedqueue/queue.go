// Package embedqueue implements the dynamic token-budget batching queue
// that sits between the chunker and the isolated embedder: it accepts
// per-file chunk batches and greedily assembles them into batches bounded
// by both item count and estimated token budget.
package embedqueue

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
)

// Item is a single chunk enqueued for embedding.
type Item struct {
	Path   string
	Page   uint32
	Text   string
	Offset int
}

// Batch is a group of items submitted together as one embed call.
type Batch struct {
	Items []Item
}

// EstimatedTokens sums ceil(len(text)/4) over every item in the batch.
func (b Batch) EstimatedTokens() int {
	total := 0
	for _, it := range b.Items {
		total += estimateTokens(it.Text)
	}
	return total
}

func estimateTokens(text string) int {
	return int(math.Ceil(float64(len(text)) / 4))
}

// Embedder is the narrow interface the queue needs from the isolated
// embedder supervisor.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Config bounds batch formation.
type Config struct {
	MaxQueueSize      int
	BatchSize         int
	MaxTokensPerBatch int
}

// DefaultMaxTokensPerBatch matches the spec's documented default.
const DefaultMaxTokensPerBatch = 7000

func (c Config) normalized() Config {
	if c.MaxTokensPerBatch <= 0 {
		c.MaxTokensPerBatch = DefaultMaxTokensPerBatch
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 32
	}
	return c
}

// OnBatchProcessed is invoked once per completed batch, in the order
// batches were formed.
type OnBatchProcessed func(batch Batch, vectors [][]float32, err error)

// ErrQueueOverflow is returned by AddChunks when the queue has been closed
// or is shutting down; the error message deliberately contains "queue" per
// the wire-protocol convention tests rely on.
var ErrQueueOverflow = fmt.Errorf("embedqueue: queue is closed, rejecting add")

// Stats is the snapshot returned by GetStats.
type Stats struct {
	QueueDepth        int
	ProcessingBatches int
}

// Queue is the dynamic token-budget batching embedding queue.
type Queue struct {
	cfg Config

	mu   sync.Mutex
	cond *sync.Cond

	pending            []Item
	processingBatches  int
	pendingCountByPath map[string]int
	pathWaiters        map[string][]chan struct{}
	closed             bool
	started            bool

	embedder Embedder
	onBatch  OnBatchProcessed
	logger   *slog.Logger
}

// New creates a Queue with the given configuration and logger. Call
// Initialize before adding chunks. A nil logger falls back to slog.Default,
// matching pipeline.Driver's constructor-injection pattern.
func New(cfg Config, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		cfg:                cfg.normalized(),
		pendingCountByPath: make(map[string]int),
		pathWaiters:        make(map[string][]chan struct{}),
		logger:             logger,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Initialize wires the producer side and starts the background batching
// worker. Calling it more than once is a no-op.
func (q *Queue) Initialize(embedder Embedder, onBatchProcessed OnBatchProcessed) {
	q.mu.Lock()
	q.embedder = embedder
	q.onBatch = onBatchProcessed
	alreadyStarted := q.started
	q.started = true
	q.mu.Unlock()

	if !alreadyStarted {
		go q.run()
	}
}

// AddChunks enqueues chunks for path/page, blocking until pending_count <=
// max_queue_size. Returns ErrQueueOverflow only if the queue has been
// closed.
func (q *Queue) AddChunks(chunks []Item, path string, page uint32) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.cfg.MaxQueueSize > 0 && len(q.pending) > q.cfg.MaxQueueSize && !q.closed {
		q.cond.Wait()
	}
	if q.closed {
		return ErrQueueOverflow
	}

	for _, c := range chunks {
		q.pending = append(q.pending, Item{Path: path, Page: page, Text: c.Text, Offset: c.Offset})
	}
	q.pendingCountByPath[path] += len(chunks)
	q.cond.Broadcast()
	return nil
}

// WaitForCompletion blocks until every batch touching path has been
// processed (success or terminal failure).
func (q *Queue) WaitForCompletion(path string) {
	q.mu.Lock()
	if q.pendingCountByPath[path] <= 0 {
		q.mu.Unlock()
		return
	}
	ch := make(chan struct{})
	q.pathWaiters[path] = append(q.pathWaiters[path], ch)
	q.mu.Unlock()
	<-ch
}

// Clear drops all pending (not yet batched) items and releases any
// AddChunks/WaitForCompletion waiters. In-flight batches already handed to
// the embedder are not cancelled.
func (q *Queue) Clear() {
	q.mu.Lock()
	cleared := q.pending
	q.pending = nil
	for _, it := range cleared {
		if n := q.pendingCountByPath[it.Path] - 1; n <= 0 {
			delete(q.pendingCountByPath, it.Path)
			q.notifyPathLocked(it.Path)
		} else {
			q.pendingCountByPath[it.Path] = n
		}
	}
	q.cond.Broadcast()
	q.mu.Unlock()
}

// GetStats returns the current queue depth and number of batches currently
// being embedded.
func (q *Queue) GetStats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{QueueDepth: len(q.pending), ProcessingBatches: q.processingBatches}
}

// Shutdown marks the queue closed: further AddChunks calls are rejected and
// the worker goroutine exits once it drains remaining pending items.
func (q *Queue) Shutdown() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

func (q *Queue) notifyPathLocked(path string) {
	for _, ch := range q.pathWaiters[path] {
		close(ch)
	}
	delete(q.pathWaiters, path)
}

func (q *Queue) run() {
	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.pending) == 0 && q.closed {
			q.mu.Unlock()
			return
		}
		batch := q.formBatchLocked()
		q.processingBatches++
		q.mu.Unlock()

		texts := make([]string, len(batch.Items))
		for i, it := range batch.Items {
			texts[i] = it.Text
		}
		var vectors [][]float32
		var err error
		if q.embedder != nil {
			vectors, err = q.embedder.Embed(context.Background(), texts)
		}

		// Deliver results before releasing path waiters, so WaitForCompletion
		// returns only after onBatch has handled the path's last batch.
		if q.onBatch != nil {
			q.onBatch(batch, vectors, err)
		}

		q.mu.Lock()
		q.processingBatches--
		byPath := map[string]int{}
		for _, it := range batch.Items {
			byPath[it.Path]++
		}
		for path, n := range byPath {
			remaining := q.pendingCountByPath[path] - n
			if remaining <= 0 {
				delete(q.pendingCountByPath, path)
				q.notifyPathLocked(path)
			} else {
				q.pendingCountByPath[path] = remaining
			}
		}
		q.cond.Broadcast()
		q.mu.Unlock()
	}
}

// formBatchLocked must be called with q.mu held. It pops a greedily-formed
// batch off the front of q.pending.
func (q *Queue) formBatchLocked() Batch {
	first := q.pending[0]
	q.pending = q.pending[1:]

	firstTokens := estimateTokens(first.Text)
	if firstTokens > q.cfg.MaxTokensPerBatch {
		// A single oversized chunk forms its own singleton batch. Never
		// dropped, never split here.
		q.logger.Warn("chunk exceeds max tokens per batch, forming singleton batch",
			slog.String("path", first.Path),
			slog.Int("offset", first.Offset),
			slog.Int("estimated_tokens", firstTokens),
			slog.Int("max_tokens_per_batch", q.cfg.MaxTokensPerBatch))
		return Batch{Items: []Item{first}}
	}

	items := []Item{first}
	tokens := firstTokens
	for len(q.pending) > 0 {
		next := q.pending[0]
		nextTokens := estimateTokens(next.Text)
		if len(items)+1 > q.cfg.BatchSize {
			break
		}
		if tokens+nextTokens > q.cfg.MaxTokensPerBatch {
			break
		}
		items = append(items, next)
		tokens += nextTokens
		q.pending = q.pending[1:]
	}
	return Batch{Items: items}
}
