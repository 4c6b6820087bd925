// Package supervisor owns the isolated embedder child process: spawn,
// handshake, per-request IPC matching, restart-on-resource-budget, and a
// bound on the number of embed calls outstanding at once.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	coreerrors "github.com/localsearch/indexer-core/internal/errors"
	"github.com/localsearch/indexer-core/internal/ipc"
)

// Launcher starts a fresh child process and returns the messenger wired to
// its stdin/stdout. Swappable in tests for an in-memory ipc.ChanMessenger
// pair instead of a real OS process.
type Launcher func() (ipc.ProcessMessenger, error)

// ResourceSampler reports the child process's resident and external
// (e.g. GPU/native allocator) memory usage in megabytes. The supervisor
// treats a sampling error as "no restart needed this round" rather than
// fatal, since memory sampling is inherently best-effort across platforms.
type ResourceSampler func() (rssMB, externalMB float64, err error)

// Config configures restart thresholds, queueing, and timeouts.
type Config struct {
	Model string

	// MaxQueueSize bounds the number of Embed calls outstanding at once. A
	// call beyond it is rejected at once with an error containing "queue";
	// calls do not wait for a free slot.
	MaxQueueSize int

	// RequestTimeout bounds how long a single embed request waits for a
	// reply before rejecting with an error containing "timeout".
	RequestTimeout time.Duration

	// SpawnTimeout bounds the ipc-ready/ready handshake.
	SpawnTimeout time.Duration

	RSSThresholdMB      float64
	ExternalThresholdMB float64
	FilesSinceSpawnMax   int

	MaxRetries int
	RetryDelay time.Duration

	CircuitMaxFailures  int
	CircuitResetTimeout time.Duration
}

// DefaultConfig returns the spec's reference thresholds.
func DefaultConfig() Config {
	return Config{
		MaxQueueSize:        100,
		RequestTimeout:      5 * time.Second,
		SpawnTimeout:        30 * time.Second,
		RSSThresholdMB:      1500,
		ExternalThresholdMB: 300,
		FilesSinceSpawnMax:  500,
		MaxRetries:          3,
		RetryDelay:          500 * time.Millisecond,
		CircuitMaxFailures:  5,
		CircuitResetTimeout: 30 * time.Second,
	}
}

type pendingEmbed struct {
	resultCh chan embedResult
}

type embedResult struct {
	vectors [][]float32
	err     error
}

// Supervisor owns the child's lifecycle and the in-flight request map. The
// child IPC channel has a single writer and single reader: the supervisor.
type Supervisor struct {
	cfg      Config
	launcher Launcher
	sampler  ResourceSampler
	cb       *coreerrors.CircuitBreaker

	mu              sync.Mutex
	messenger       ipc.ProcessMessenger
	ready           bool
	initErr         error
	nextID          int64
	inFlight        map[int64]*pendingEmbed
	filesSinceSpawn int
	restartDeferred bool
	queueSlots      chan struct{}
	modelStatusCh   chan ipc.Message
}

// New creates a Supervisor. launcher spawns the child process; sampler
// reports its memory usage (pass a no-op sampler returning 0, 0, nil when
// resource-triggered restarts aren't needed, e.g. in tests).
func New(cfg Config, launcher Launcher, sampler ResourceSampler) *Supervisor {
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	if sampler == nil {
		sampler = func() (float64, float64, error) { return 0, 0, nil }
	}
	return &Supervisor{
		cfg:      cfg,
		launcher: launcher,
		sampler:  sampler,
		cb: coreerrors.NewCircuitBreaker("embedder-child",
			coreerrors.WithMaxFailures(orDefault(cfg.CircuitMaxFailures, 5)),
			coreerrors.WithResetTimeout(orDefaultDuration(cfg.CircuitResetTimeout, 30*time.Second)),
		),
		inFlight:   make(map[int64]*pendingEmbed),
		queueSlots: make(chan struct{}, orDefault(cfg.MaxQueueSize, 100)),
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func orDefaultDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

// Initialize spawns the child and performs the ipc-ready/init/ready
// handshake. Init failure propagates to the caller.
func (s *Supervisor) Initialize(ctx context.Context) error {
	return s.spawn(ctx)
}

func (s *Supervisor) spawn(ctx context.Context) error {
	messenger, err := s.launcher()
	if err != nil {
		return coreerrors.New(coreerrors.ErrCodeEmbedderFatal, "failed to spawn embedder child", err)
	}

	s.mu.Lock()
	s.messenger = messenger
	s.ready = false
	s.initErr = nil
	for id, p := range s.inFlight {
		p.resultCh <- embedResult{err: fmt.Errorf("embedder restarted: request %d aborted", id)}
	}
	s.inFlight = make(map[int64]*pendingEmbed)
	s.mu.Unlock()

	ipcReady := make(chan struct{}, 1)
	handshakeDone := make(chan struct{}, 1)

	messenger.OnMessage(func(msg ipc.Message) {
		s.handleMessage(msg, ipcReady, handshakeDone)
	})
	messenger.OnDisconnect(func(err error) {
		s.handleDisconnect(err)
	})

	timeout := s.cfg.SpawnTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	deadline := time.After(timeout)

	select {
	case <-ipcReady:
	case <-deadline:
		return coreerrors.New(coreerrors.ErrCodeEmbedderFatal, "embedder child did not report ipc-ready in time", nil)
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := messenger.Send(ipc.Message{Type: ipc.TypeInit, Model: s.cfg.Model}); err != nil {
		return coreerrors.New(coreerrors.ErrCodeEmbedderFatal, "failed to send init to embedder child", err)
	}

	select {
	case <-handshakeDone:
	case <-deadline:
		return coreerrors.New(coreerrors.ErrCodeEmbedderFatal, "embedder child did not become ready in time", nil)
	case <-ctx.Done():
		return ctx.Err()
	}

	s.mu.Lock()
	initErr := s.initErr
	ready := s.ready
	s.mu.Unlock()

	if !ready {
		if initErr != nil {
			return coreerrors.New(coreerrors.ErrCodeEmbedderFatal, "embedder child init failed", initErr)
		}
		return coreerrors.New(coreerrors.ErrCodeEmbedderFatal, "embedder child init failed", nil)
	}
	return nil
}

func (s *Supervisor) handleMessage(msg ipc.Message, ipcReady, handshakeDone chan struct{}) {
	switch msg.Type {
	case ipc.TypeIPCReady:
		select {
		case ipcReady <- struct{}{}:
		default:
		}
	case ipc.TypeReady:
		s.mu.Lock()
		s.ready = true
		s.mu.Unlock()
		select {
		case handshakeDone <- struct{}{}:
		default:
		}
	case ipc.TypeInitErr:
		s.mu.Lock()
		s.ready = false
		s.initErr = fmt.Errorf("%s", msg.Error)
		s.mu.Unlock()
		select {
		case handshakeDone <- struct{}{}:
		default:
		}
	case ipc.TypeEmbedOK, ipc.TypeEmbedErr:
		s.resolveEmbed(msg)
	case ipc.TypeModelStatus:
		s.mu.Lock()
		ch := s.modelStatusCh
		s.mu.Unlock()
		if ch != nil {
			select {
			case ch <- msg:
			default:
			}
		}
	}
}

func (s *Supervisor) resolveEmbed(msg ipc.Message) {
	s.mu.Lock()
	p, ok := s.inFlight[msg.ID]
	if ok {
		delete(s.inFlight, msg.ID)
	}
	s.mu.Unlock()
	if !ok {
		return // late/unknown id, drop
	}

	if msg.Type == ipc.TypeEmbedErr {
		p.resultCh <- embedResult{err: fmt.Errorf("%s", msg.Error)}
		return
	}
	if msg.Vectors == nil {
		p.resultCh <- embedResult{err: fmt.Errorf("malformed embed:ok response: nil vectors")}
		return
	}
	p.resultCh <- embedResult{vectors: msg.Vectors}
}

func (s *Supervisor) handleDisconnect(err error) {
	s.mu.Lock()
	s.ready = false
	pending := s.inFlight
	s.inFlight = make(map[int64]*pendingEmbed)
	s.mu.Unlock()

	reason := "embedder child disconnected"
	if err != nil {
		reason = fmt.Sprintf("embedder child disconnected: %v", err)
	}
	for id, p := range pending {
		p.resultCh <- embedResult{err: fmt.Errorf("%s (request %d)", reason, id)}
	}
	slog.Warn("embedder child disconnected", slog.Any("error", err))
}

// Embed sends texts to the child and waits for a response, honoring the
// supervisor's bounded waiting queue and per-request timeout.
func (s *Supervisor) Embed(ctx context.Context, texts []string, isQuery bool) ([][]float32, error) {
	select {
	case s.queueSlots <- struct{}{}:
	default:
		return nil, coreerrors.New(coreerrors.ErrCodeQueueOverflow, "embedder supervisor queue is full", nil)
	}
	defer func() { <-s.queueSlots }()

	if !s.cb.Allow() {
		return nil, coreerrors.New(coreerrors.ErrCodeEmbedderFatal, "embedder circuit breaker is open", nil)
	}

	s.mu.Lock()
	if !s.ready {
		s.mu.Unlock()
		if err := s.spawn(ctx); err != nil {
			s.cb.RecordFailure()
			return nil, err
		}
		s.mu.Lock()
	}

	s.nextID++
	id := s.nextID
	resultCh := make(chan embedResult, 1)
	s.inFlight[id] = &pendingEmbed{resultCh: resultCh}
	messenger := s.messenger
	s.mu.Unlock()

	if err := messenger.Send(ipc.Message{Type: ipc.TypeEmbed, ID: id, Texts: texts, IsQuery: isQuery}); err != nil {
		s.mu.Lock()
		delete(s.inFlight, id)
		s.mu.Unlock()
		s.cb.RecordFailure()
		return nil, coreerrors.New(coreerrors.ErrCodeEmbedderTransient, "failed to send embed request", err)
	}

	timeout := s.cfg.RequestTimeout
	select {
	case res := <-resultCh:
		if res.err != nil {
			s.cb.RecordFailure()
			return nil, coreerrors.New(coreerrors.ErrCodeEmbedderTransient, res.err.Error(), res.err)
		}
		s.cb.RecordSuccess()
		s.recordFileBoundary(ctx)
		return res.vectors, nil
	case <-time.After(timeout):
		s.mu.Lock()
		delete(s.inFlight, id)
		s.mu.Unlock()
		s.cb.RecordFailure()
		return nil, coreerrors.New(coreerrors.ErrCodeEmbedderTimeout, fmt.Sprintf("embed request %d timed out", id), nil)
	case <-ctx.Done():
		s.mu.Lock()
		delete(s.inFlight, id)
		s.mu.Unlock()
		return nil, ctx.Err()
	}
}

// EmbedWithRetry retries transient embedder errors with linear backoff,
// surfacing the last error once retries are exhausted.
func (s *Supervisor) EmbedWithRetry(ctx context.Context, texts []string, isQuery bool, maxRetries int) ([][]float32, error) {
	cfg := coreerrors.LinearBackoffConfig{
		MaxRetries: maxRetries,
		Delay:      s.cfg.RetryDelay,
	}
	if cfg.Delay <= 0 {
		cfg.Delay = 500 * time.Millisecond
	}
	return coreerrors.RetryLinear(ctx, cfg, func() ([][]float32, error) {
		return s.Embed(ctx, texts, isQuery)
	})
}

// recordFileBoundary evaluates the restart policy at a request boundary:
// in-flight must be empty for a restart to proceed immediately, otherwise
// it's deferred until the next boundary where in-flight is empty.
func (s *Supervisor) recordFileBoundary(ctx context.Context) {
	s.mu.Lock()
	s.filesSinceSpawn++
	needsRestart := s.filesSinceSpawn > s.cfg.FilesSinceSpawnMax
	inFlightCount := len(s.inFlight)
	s.mu.Unlock()

	if !needsRestart {
		rssMB, externalMB, err := s.sampler()
		if err == nil && (rssMB > s.cfg.RSSThresholdMB || externalMB > s.cfg.ExternalThresholdMB) {
			needsRestart = true
		}
	}
	if !needsRestart {
		return
	}

	s.mu.Lock()
	if inFlightCount > 0 {
		s.restartDeferred = true
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.restart(ctx)
}

func (s *Supervisor) restart(ctx context.Context) {
	s.mu.Lock()
	messenger := s.messenger
	s.mu.Unlock()
	if messenger != nil {
		_ = messenger.Exit(0)
	}
	if err := s.spawn(ctx); err != nil {
		slog.Error("embedder child restart failed", slog.Any("error", err))
		return
	}
	s.mu.Lock()
	s.filesSinceSpawn = 0
	s.restartDeferred = false
	s.mu.Unlock()
}

// CheckModel asks the child whether its model file is present, used by the
// startup coordinator's model-download stage.
func (s *Supervisor) CheckModel(ctx context.Context) (exists bool, path string, size int64, err error) {
	s.mu.Lock()
	messenger := s.messenger
	resultCh := make(chan ipc.Message, 1)
	s.modelStatusCh = resultCh
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.modelStatusCh = nil
		s.mu.Unlock()
	}()
	if messenger == nil {
		return false, "", 0, fmt.Errorf("embedder child not spawned")
	}

	if err := messenger.Send(ipc.Message{Type: ipc.TypeCheckModel}); err != nil {
		return false, "", 0, err
	}

	select {
	case msg := <-resultCh:
		if msg.Error != "" {
			return false, "", 0, fmt.Errorf("%s", msg.Error)
		}
		return msg.Exists, msg.Path, msg.Size, nil
	case <-ctx.Done():
		return false, "", 0, ctx.Err()
	}
}

// Shutdown sends the shutdown signal and exits the child.
func (s *Supervisor) Shutdown() error {
	s.mu.Lock()
	messenger := s.messenger
	s.mu.Unlock()
	if messenger == nil {
		return nil
	}
	_ = messenger.Send(ipc.Message{Type: ipc.TypeShutdown})
	return messenger.Exit(0)
}

// FilesSinceSpawn reports the current counter, exposed for tests and
// status reporting.
func (s *Supervisor) FilesSinceSpawn() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filesSinceSpawn
}

// IsReady reports whether the child has completed its init handshake.
func (s *Supervisor) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}
