// Package main is the isolated subsidiary process entry point hosting an
// embedmodel.EmbeddingModel. It speaks the wire protocol (§6) as newline-
// delimited JSON on stdin/stdout; stdout carries nothing else, per
// logging.SetupChild's file-only logging.
package main

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/localsearch/indexer-core/internal/embedmodel"
	"github.com/localsearch/indexer-core/internal/ipc"
	"github.com/localsearch/indexer-core/internal/logging"
)

func main() {
	cleanup, err := logging.SetupChild()
	if err != nil {
		// stderr is safe: only stdout is reserved for the wire protocol.
		os.Stderr.WriteString("embedder-child: failed to set up logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer cleanup()

	c := newChild(ipc.NewPipeMessenger(os.Stdin, os.Stdout, func() error { return nil }))
	c.run()
}

// child owns the embedder-child's half of the handshake and request loop:
// it sends ipc-ready immediately on start, waits for init to select and
// load a model, then answers embed/check-model/shutdown requests until the
// parent disconnects or sends shutdown.
type child struct {
	messenger ipc.ProcessMessenger
	model     embedmodel.EmbeddingModel
	modelPath string

	done chan struct{}
}

func newChild(messenger ipc.ProcessMessenger) *child {
	return &child{messenger: messenger, done: make(chan struct{})}
}

func (c *child) run() {
	c.messenger.OnMessage(c.handleMessage)
	c.messenger.OnDisconnect(func(err error) {
		slog.Warn("parent disconnected", slog.Any("error", err))
		close(c.done)
	})

	if err := c.messenger.Send(ipc.Message{Type: ipc.TypeIPCReady}); err != nil {
		slog.Error("failed to send ipc-ready", slog.Any("error", err))
		os.Exit(1)
	}

	<-c.done
}

func (c *child) handleMessage(msg ipc.Message) {
	switch msg.Type {
	case ipc.TypeInit:
		c.handleInit(msg)
	case ipc.TypeEmbed:
		c.handleEmbed(msg)
	case ipc.TypeCheckModel:
		c.handleCheckModel()
	case ipc.TypeShutdown:
		c.handleShutdown()
	default:
		slog.Warn("ignoring unrecognized message type", slog.String("type", string(msg.Type)))
	}
}

func (c *child) handleInit(msg ipc.Message) {
	model, modelPath, err := loadModel(msg.Model)
	if err != nil {
		slog.Error("model init failed", slog.String("model", msg.Model), slog.Any("error", err))
		_ = c.messenger.Send(ipc.Message{Type: ipc.TypeInitErr, Error: err.Error()})
		return
	}
	c.model = model
	c.modelPath = modelPath
	slog.Info("model ready", slog.String("model", msg.Model), slog.Int("dimensions", model.Dimensions()))
	_ = c.messenger.Send(ipc.Message{Type: ipc.TypeReady})
}

// loadModel selects StaticModel (default, or "static") or NativeModel
// ("native:<path>") per §10.8.
func loadModel(spec string) (embedmodel.EmbeddingModel, string, error) {
	if spec == "" || spec == "static" {
		return embedmodel.NewStaticModel(), "", nil
	}
	if path, ok := strings.CutPrefix(spec, "native:"); ok {
		m, err := embedmodel.LoadNativeModel(path)
		if err != nil {
			return nil, "", err
		}
		return m, path, nil
	}
	return nil, "", errUnknownModelSpec(spec)
}

type errUnknownModelSpec string

func (e errUnknownModelSpec) Error() string {
	return "unrecognized model spec " + string(e) + ` (expected "static" or "native:<path>")`
}

func (c *child) handleEmbed(msg ipc.Message) {
	if len(msg.Texts) == 0 || msg.ID == 0 {
		// Malformed embed request (§6): silently ignored, no state change.
		return
	}
	if c.model == nil {
		_ = c.messenger.Send(ipc.Message{Type: ipc.TypeEmbedErr, ID: msg.ID, Error: "embedder not initialized"})
		return
	}

	vectors, err := c.model.Embed(context.Background(), msg.Texts, msg.IsQuery)
	if err != nil {
		_ = c.messenger.Send(ipc.Message{Type: ipc.TypeEmbedErr, ID: msg.ID, Error: err.Error()})
		return
	}
	_ = c.messenger.Send(ipc.Message{Type: ipc.TypeEmbedOK, ID: msg.ID, Vectors: vectors})
}

func (c *child) handleCheckModel() {
	if c.modelPath == "" {
		// Static model needs no file on disk.
		_ = c.messenger.Send(ipc.Message{Type: ipc.TypeModelStatus, Exists: c.model != nil})
		return
	}
	info, err := os.Stat(c.modelPath)
	if err != nil {
		_ = c.messenger.Send(ipc.Message{Type: ipc.TypeModelStatus, Exists: false, Path: c.modelPath})
		return
	}
	_ = c.messenger.Send(ipc.Message{
		Type:   ipc.TypeModelStatus,
		Exists: true,
		Path:   c.modelPath,
		Size:   info.Size(),
	})
}

func (c *child) handleShutdown() {
	slog.Info("shutdown requested")
	if c.model != nil {
		_ = c.model.Close()
	}
	os.Exit(0)
}
