// Package embed generates vectors for (span, profile) pairs missing an
// Embedding, from the enrichment summary when present or canonicalized
// span text otherwise.
package embed

import "context"

// Provider generates vector embeddings for text, grounded on the
// teacher's internal/embedding.EmbeddingEngine interface (Embed/
// EmbedBatch/Dimensions/Name), collapsed to the single Embed+EmbedBatch
// capability set the pipeline actually exercises.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Name() string
}

// HealthChecker is an optional interface a Provider may implement to
// report live reachability, mirroring the teacher's own optional
// HealthChecker on EmbeddingEngine.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
