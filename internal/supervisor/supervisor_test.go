package supervisor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localsearch/indexer-core/internal/ipc"
)

// fakeChild drives the child side of an ipc.ChanPair, responding to
// messages the way the real embedder-child process would.
type fakeChild struct {
	messenger *ipc.ChanMessenger
	onEmbed   func(msg ipc.Message) ipc.Message
	initErr   string
}

func newFakeChild(onEmbed func(msg ipc.Message) ipc.Message) (Launcher, *fakeChild) {
	fc := &fakeChild{onEmbed: onEmbed}
	launcher := func() (ipc.ProcessMessenger, error) {
		parent, child := ipc.NewChanPair()
		fc.messenger = child
		child.OnMessage(func(msg ipc.Message) {
			switch msg.Type {
			case ipc.TypeInit:
				if fc.initErr != "" {
					_ = child.Send(ipc.Message{Type: ipc.TypeInitErr, Error: fc.initErr})
					return
				}
				_ = child.Send(ipc.Message{Type: ipc.TypeReady})
			case ipc.TypeEmbed:
				if fc.onEmbed != nil {
					resp := fc.onEmbed(msg)
					resp.ID = msg.ID
					_ = child.Send(resp)
				}
			case ipc.TypeCheckModel:
				_ = child.Send(ipc.Message{Type: ipc.TypeModelStatus, Exists: true, Path: "/models/fake.bin", Size: 1024})
			}
		})
		go func() {
			_ = child.Send(ipc.Message{Type: ipc.TypeIPCReady})
		}()
		return parent, nil
	}
	return launcher, fc
}

func okEmbed(msg ipc.Message) ipc.Message {
	vecs := make([][]float32, len(msg.Texts))
	for i := range vecs {
		vecs[i] = []float32{1, 2, 3}
	}
	return ipc.Message{Type: ipc.TypeEmbedOK, Vectors: vecs}
}

func TestSupervisor_InitializeAndEmbed(t *testing.T) {
	launcher, _ := newFakeChild(okEmbed)
	sup := New(DefaultConfig(), launcher, nil)

	ctx := context.Background()
	require.NoError(t, sup.Initialize(ctx))
	assert.True(t, sup.IsReady())

	vectors, err := sup.Embed(ctx, []string{"hello", "world"}, false)
	require.NoError(t, err)
	assert.Len(t, vectors, 2)
}

func TestSupervisor_InitErrPropagatesToCaller(t *testing.T) {
	launcher := func() (ipc.ProcessMessenger, error) {
		parent, child := ipc.NewChanPair()
		child.OnMessage(func(msg ipc.Message) {
			if msg.Type == ipc.TypeInit {
				_ = child.Send(ipc.Message{Type: ipc.TypeInitErr, Error: "model weights missing"})
			}
		})
		go func() { _ = child.Send(ipc.Message{Type: ipc.TypeIPCReady}) }()
		return parent, nil
	}

	sup := New(DefaultConfig(), launcher, nil)
	err := sup.Initialize(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model weights missing")
}

func TestSupervisor_EmbedErrSurfacesMessage(t *testing.T) {
	launcher, _ := newFakeChild(func(msg ipc.Message) ipc.Message {
		return ipc.Message{Type: ipc.TypeEmbedErr, Error: "tokenizer failure"}
	})
	sup := New(DefaultConfig(), launcher, nil)
	require.NoError(t, sup.Initialize(context.Background()))

	_, err := sup.Embed(context.Background(), []string{"x"}, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tokenizer failure")
}

func TestSupervisor_MalformedResponseNilVectorsRejected(t *testing.T) {
	launcher, _ := newFakeChild(func(msg ipc.Message) ipc.Message {
		return ipc.Message{Type: ipc.TypeEmbedOK, Vectors: nil}
	})
	sup := New(DefaultConfig(), launcher, nil)
	require.NoError(t, sup.Initialize(context.Background()))

	_, err := sup.Embed(context.Background(), []string{"x"}, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed")
}

func TestSupervisor_RequestTimeoutContainsTimeoutInMessage(t *testing.T) {
	launcher, _ := newFakeChild(func(msg ipc.Message) ipc.Message {
		time.Sleep(200 * time.Millisecond)
		return okEmbed(msg)
	})
	cfg := DefaultConfig()
	cfg.RequestTimeout = 20 * time.Millisecond
	sup := New(cfg, launcher, nil)
	require.NoError(t, sup.Initialize(context.Background()))

	_, err := sup.Embed(context.Background(), []string{"x"}, false)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "timeout"))
}

func TestSupervisor_QueueOverflowContainsQueueInMessage(t *testing.T) {
	launcher, _ := newFakeChild(func(msg ipc.Message) ipc.Message {
		time.Sleep(100 * time.Millisecond)
		return okEmbed(msg)
	})
	cfg := DefaultConfig()
	cfg.MaxQueueSize = 1
	sup := New(cfg, launcher, nil)
	require.NoError(t, sup.Initialize(context.Background()))

	done := make(chan struct{})
	go func() {
		_, _ = sup.Embed(context.Background(), []string{"a"}, false)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond) // let the first request occupy the only slot

	_, err := sup.Embed(context.Background(), []string{"b"}, false)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "queue"))
	<-done
}

func TestSupervisor_IsQueryDefaultsToFalse(t *testing.T) {
	var observedIsQuery bool
	launcher, _ := newFakeChild(func(msg ipc.Message) ipc.Message {
		observedIsQuery = msg.IsQuery
		return okEmbed(msg)
	})
	sup := New(DefaultConfig(), launcher, nil)
	require.NoError(t, sup.Initialize(context.Background()))

	_, err := sup.Embed(context.Background(), []string{"x"}, false)
	require.NoError(t, err)
	assert.False(t, observedIsQuery)
}

func TestSupervisor_IsQueryForwardedFaithfully(t *testing.T) {
	var observedIsQuery bool
	launcher, _ := newFakeChild(func(msg ipc.Message) ipc.Message {
		observedIsQuery = msg.IsQuery
		return okEmbed(msg)
	})
	sup := New(DefaultConfig(), launcher, nil)
	require.NoError(t, sup.Initialize(context.Background()))

	_, err := sup.Embed(context.Background(), []string{"x"}, true)
	require.NoError(t, err)
	assert.True(t, observedIsQuery)
}

func TestSupervisor_RestartResetsFilesSinceSpawnAfterThresholdExceeded(t *testing.T) {
	launcher, _ := newFakeChild(okEmbed)
	cfg := DefaultConfig()
	cfg.FilesSinceSpawnMax = 2
	sup := New(cfg, launcher, nil)
	require.NoError(t, sup.Initialize(context.Background()))

	for i := 0; i < 3; i++ {
		_, err := sup.Embed(context.Background(), []string{"x"}, false)
		require.NoError(t, err)
	}

	assert.Equal(t, 0, sup.FilesSinceSpawn())
}

func TestSupervisor_EmbedWithRetryExhaustsAndSurfacesLastError(t *testing.T) {
	launcher, _ := newFakeChild(func(msg ipc.Message) ipc.Message {
		return ipc.Message{Type: ipc.TypeEmbedErr, Error: "connection reset"}
	})
	cfg := DefaultConfig()
	cfg.RetryDelay = 5 * time.Millisecond
	sup := New(cfg, launcher, nil)
	require.NoError(t, sup.Initialize(context.Background()))

	_, err := sup.EmbedWithRetry(context.Background(), []string{"x"}, false, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestSupervisor_CheckModelReportsExistence(t *testing.T) {
	launcher, _ := newFakeChild(okEmbed)
	sup := New(DefaultConfig(), launcher, nil)
	require.NoError(t, sup.Initialize(context.Background()))

	exists, path, size, err := sup.CheckModel(context.Background())
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, "/models/fake.bin", path)
	assert.Equal(t, int64(1024), size)
}
