package embedmodel

import (
	"context"
	"fmt"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

// NativeModel loads a platform shared library (e.g. an ONNX Runtime or
// llama.cpp-style .so/.dylib/.dll) and calls into it through a small C ABI,
// without requiring cgo in the isolated child's build.
//
// Expected symbols in the library:
//
//	int32_t embed_dimensions(void)
//	int32_t embed_batch(const char** texts, int32_t n, int32_t is_query, float* out)
//
// out must have room for n * embed_dimensions() float32s, row-major.
type NativeModel struct {
	mu      sync.RWMutex
	handle  uintptr
	dims    int32
	closed  bool

	embedBatch func(texts **byte, n int32, isQuery int32, out *float32) int32
}

// LoadNativeModel dlopens path and resolves the embed_batch/embed_dimensions
// symbols.
func LoadNativeModel(path string) (*NativeModel, error) {
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("embedmodel: failed to load native library %s: %w", path, err)
	}

	var embedDimensions func() int32
	purego.RegisterLibFunc(&embedDimensions, handle, "embed_dimensions")
	dims := embedDimensions()
	if dims <= 0 {
		_ = purego.Dlclose(handle)
		return nil, fmt.Errorf("embedmodel: native library %s reported invalid dimensions %d", path, dims)
	}

	m := &NativeModel{handle: handle, dims: dims}
	purego.RegisterLibFunc(&m.embedBatch, handle, "embed_batch")
	return m, nil
}

// Embed marshals texts into a native char** array and calls embed_batch.
func (m *NativeModel) Embed(ctx context.Context, texts []string, isQuery bool) ([][]float32, error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, fmt.Errorf("embedmodel: native model is closed")
	}
	m.mu.RUnlock()

	if len(texts) == 0 {
		return nil, nil
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	cStrs := make([]*byte, len(texts))
	for i, t := range texts {
		b := append([]byte(t), 0)
		cStrs[i] = &b[0]
	}

	out := make([]float32, len(texts)*int(m.dims))
	isQueryInt := int32(0)
	if isQuery {
		isQueryInt = 1
	}

	rc := m.embedBatch((**byte)(unsafe.Pointer(&cStrs[0])), int32(len(texts)), isQueryInt, &out[0])
	if rc != int32(m.dims) {
		return nil, fmt.Errorf("embedmodel: embed_batch returned dimension %d, expected %d", rc, m.dims)
	}

	vectors := make([][]float32, len(texts))
	for i := range texts {
		row := make([]float32, m.dims)
		copy(row, out[i*int(m.dims):(i+1)*int(m.dims)])
		vectors[i] = row
	}
	return vectors, nil
}

// Dimensions returns the native model's reported embedding width.
func (m *NativeModel) Dimensions() int {
	return int(m.dims)
}

// Close dlcloses the underlying library.
func (m *NativeModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return purego.Dlclose(m.handle)
}
