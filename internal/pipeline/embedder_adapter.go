package pipeline

import (
	"context"

	"github.com/localsearch/indexer-core/internal/supervisor"
)

// embedderAdapter narrows *supervisor.Supervisor's 3-argument Embed (which
// also carries the query/passage prefix flag, §4.8) down to the 2-argument
// shape embedqueue.Embedder expects. The pipeline only ever embeds passages
// during indexing — query-time embedding belongs to the out-of-scope search
// surface (§1) — so isQuery is pinned false here.
type embedderAdapter struct {
	sup        *supervisor.Supervisor
	maxRetries int
}

func newEmbedderAdapter(sup *supervisor.Supervisor, maxRetries int) *embedderAdapter {
	return &embedderAdapter{sup: sup, maxRetries: maxRetries}
}

func (e *embedderAdapter) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return e.sup.EmbedWithRetry(ctx, texts, false, e.maxRetries)
}
