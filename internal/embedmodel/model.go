// Package embedmodel defines the neural embedding model interface hosted
// inside the isolated embedder child process (cmd/embedder-child), plus a
// deterministic offline implementation and a loader for a native shared
// library model.
package embedmodel

import "context"

// EmbeddingModel produces vector embeddings for text, run entirely inside
// the isolated child process. isQuery selects the "query: " vs "passage: "
// prefix convention per the wire protocol (§4.8).
type EmbeddingModel interface {
	Embed(ctx context.Context, texts []string, isQuery bool) ([][]float32, error)
	Dimensions() int
	Close() error
}
