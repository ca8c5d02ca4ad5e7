// Package embedder wraps an embedding backend with the guarantees the
// index relies on: bounded concurrency, input truncation, order
// preservation and L2-normalized output.
package embedder

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// ErrUnavailable reports that the embedding backend could not serve a
// request. Ingestion of the containing document fails with this error;
// documents already in the index are unaffected.
var ErrUnavailable = errors.New("embedder unavailable")

// Client is the minimal surface the gateway needs from an embedding
// backend. llm.Provider satisfies it.
type Client interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

const (
	// maxInputChars bounds the text sent to the model per request.
	// Small embedding models degrade past this point, and everything
	// useful for retrieval sits at the front of a chunk anyway.
	maxInputChars = 512

	defaultBatchSize = 20
)

// Gateway serializes access to an embedding backend. The first call
// probes the backend once (shared across concurrent callers) and
// caches the vector dimension; batch calls fan out up to the
// configured number of concurrent requests.
type Gateway struct {
	client    Client
	batchSize int

	initGroup singleflight.Group

	mu    sync.RWMutex
	ready bool
	dim   int
}

// New creates a gateway over the given client. batchSize caps
// concurrent requests in EmbedMany; zero or negative selects the
// default of 20.
func New(client Client, batchSize int) *Gateway {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Gateway{client: client, batchSize: batchSize}
}

// EmbedOne encodes a single text.
func (g *Gateway) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	if err := g.init(ctx); err != nil {
		return nil, err
	}
	return g.embedText(ctx, text)
}

// EmbedMany encodes a batch of texts, preserving input order in the
// output. Requests to the backend run concurrently, bounded by the
// gateway's batch size. The first failure cancels the remaining
// requests.
func (g *Gateway) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := g.init(ctx); err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	grp, ctx := errgroup.WithContext(ctx)
	grp.SetLimit(g.batchSize)
	for i, text := range texts {
		grp.Go(func() error {
			vec, err := g.embedText(ctx, text)
			if err != nil {
				return err
			}
			out[i] = vec
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Dim returns the embedding dimension, known after the first
// successful call. Zero means no embedding has been produced yet.
func (g *Gateway) Dim() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.dim
}

// init verifies the backend with a one-off probe. Concurrent first
// calls share a single probe; once it succeeds, later calls skip
// straight to the client. A failed probe is retried on the next call.
func (g *Gateway) init(ctx context.Context) error {
	g.mu.RLock()
	ready := g.ready
	g.mu.RUnlock()
	if ready {
		return nil
	}

	_, err, _ := g.initGroup.Do("init", func() (any, error) {
		vec, err := g.embedText(ctx, "warmup")
		if err != nil {
			return nil, err
		}
		g.mu.Lock()
		g.dim = len(vec)
		g.ready = true
		g.mu.Unlock()
		return nil, nil
	})
	return err
}

func (g *Gateway) embedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := g.client.Embed(ctx, []string{truncate(text)})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("%w: backend returned no embedding", ErrUnavailable)
	}
	return normalize(vecs[0]), nil
}

// truncate caps embedding input at maxInputChars characters,
// preferring to cut at a word boundary so the final token survives
// intact. Falls back to a hard cut when the tail has no spaces.
func truncate(text string) string {
	runes := []rune(text)
	if len(runes) <= maxInputChars {
		return text
	}
	cut := string(runes[:maxInputChars])
	if i := strings.LastIndexByte(cut, ' '); i > len(cut)/2 {
		return strings.TrimSpace(cut[:i])
	}
	return cut
}

// normalize scales a vector to unit L2 length in place. Zero vectors
// pass through unchanged.
func normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return vec
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}
