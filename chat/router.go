// Package chat routes a conversation turn to grounded (document-backed)
// or open-ended handling, assembles the retrieval context and citations,
// and keeps per-conversation history.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/avelis/ragchat/index"
	"github.com/avelis/ragchat/llm"
)

// Chat modes. ModeError marks a refused turn, not a transport failure.
const (
	ModeAuto    = "auto"
	ModeRAG     = "rag"
	ModeGeneral = "general"
	ModeError   = "error"
)

// ErrInvalidMode reports an unrecognized requested mode.
var ErrInvalidMode = errors.New("invalid chat mode")

const (
	groundedTemperature = 0.3
	generalTemperature  = 0.7

	sourcePreviewChars = 200
)

const groundedSystemPrompt = `You are a helpful assistant that answers questions about the user's documents.

Answer using ONLY the provided context. Cite the passages you rely on as [Source N]. If the context does not contain the answer, say so plainly instead of inventing one. Prefer short, direct answers.`

const generalSystemPrompt = "You are a helpful AI assistant. Provide accurate, helpful, and well-structured responses."

// Fixed answers for refused and degraded turns. Stable strings: the UI
// and the tests match on them.
const (
	noCorpusAnswer  = "No documents have been uploaded yet. Upload a document first, or switch to general mode."
	noResultsAnswer = "I couldn't find anything relevant to your question in the uploaded documents."

	degradedSuffix     = "\n\nNo language model is currently available, so the matching passages are shown as-is."
	degradedOpenFormat = "No language model is configured, so I can't answer \"%s\" right now. Start Ollama or set an API key for a hosted provider, then try again."
)

// docKeywordHints force auto mode to rag when any of them appears in
// the query (case-insensitive substring match).
var docKeywordHints = []string{
	"document", "file", "uploaded", "says", "mentioned",
	"according to", "in the", "from the", "based on",
	"what does", "find", "search", "look for", "locate",
	"extract", "summarize", "summary",
}

// Config tunes routing thresholds and windows.
type Config struct {
	// RelevanceThreshold is the minimum combined score for a chunk to
	// count as relevant in grounded mode.
	RelevanceThreshold float64

	// FallbackThreshold is the lower bound used when the primary
	// threshold yields nothing.
	FallbackThreshold float64

	// RetrievalK is the top-k passed to hybrid search.
	RetrievalK int

	// FallbackK caps how many chunks the fallback pass keeps.
	FallbackK int

	// HistoryWindow is how many trailing history messages go into the
	// prompt.
	HistoryWindow int
}

// DefaultConfig returns the standard routing configuration.
func DefaultConfig() Config {
	return Config{
		RelevanceThreshold: 0.15,
		FallbackThreshold:  0.10,
		RetrievalK:         8,
		FallbackK:          5,
		HistoryWindow:      6,
	}
}

// Retriever is the search surface the router needs.
type Retriever interface {
	HybridSearch(queryEmbedding []float32, queryKeywords []string, k int) []index.SearchResult
	HasDocuments() bool
}

// Embedder encodes queries for retrieval.
type Embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// Completer produces chat completions. *llm.Gateway satisfies it.
type Completer interface {
	Complete(ctx context.Context, system string, history []llm.Message, user string, opts llm.CompleteOptions) (string, error)
}

// Source is one citation entry in a grounded answer.
type Source struct {
	ID         int    `json:"id"`
	Content    string `json:"content"`
	Source     string `json:"source"`
	Score      string `json:"score"`
	ChunkIndex int    `json:"chunk_index"`
}

// Result is the outcome of routing one chat turn.
type Result struct {
	Answer            string   `json:"answer"`
	Mode              string   `json:"mode"`
	Sources           []Source `json:"sources"`
	RetrievedCount    int      `json:"retrievedCount,omitempty"`
	NoRelevantResults bool     `json:"noRelevantResults,omitempty"`
}

// Router resolves the mode for each turn and produces the answer.
type Router struct {
	cfg       Config
	retriever Retriever
	embedder  Embedder
	llm       Completer
}

// NewRouter wires a router over its retrieval and completion backends.
func NewRouter(cfg Config, r Retriever, e Embedder, c Completer) *Router {
	return &Router{cfg: cfg, retriever: r, embedder: e, llm: c}
}

// Route handles one chat turn. mode is one of auto, rag or general;
// empty means auto. Refusals (rag without documents, nothing relevant)
// come back as normal results, not errors.
func (rt *Router) Route(ctx context.Context, query, mode string, history []llm.Message) (*Result, error) {
	switch mode {
	case "", ModeAuto:
		resolved, err := rt.resolveAuto(ctx, query)
		if err != nil {
			return nil, err
		}
		mode = resolved
	case ModeRAG:
		if !rt.retriever.HasDocuments() {
			return &Result{
				Answer:  noCorpusAnswer,
				Mode:    ModeError,
				Sources: []Source{},
			}, nil
		}
	case ModeGeneral:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	if mode == ModeRAG {
		return rt.grounded(ctx, query, history)
	}
	return rt.general(ctx, query, history)
}

// resolveAuto picks rag or general for an auto-mode query: empty corpus
// means general, a document hint in the query means rag, otherwise a
// one-result search probe decides by score.
func (rt *Router) resolveAuto(ctx context.Context, query string) (string, error) {
	if !rt.retriever.HasDocuments() {
		return ModeGeneral, nil
	}

	lower := strings.ToLower(query)
	for _, hint := range docKeywordHints {
		if strings.Contains(lower, hint) {
			return ModeRAG, nil
		}
	}

	hits, err := rt.search(ctx, query, 1)
	if err != nil {
		return "", err
	}
	if len(hits) > 0 && hits[0].Score > rt.cfg.RelevanceThreshold {
		return ModeRAG, nil
	}
	return ModeGeneral, nil
}

func (rt *Router) grounded(ctx context.Context, query string, history []llm.Message) (*Result, error) {
	hits, err := rt.search(ctx, query, rt.cfg.RetrievalK)
	if err != nil {
		return nil, err
	}

	var relevant []index.SearchResult
	for _, h := range hits {
		if h.Score >= rt.cfg.RelevanceThreshold {
			relevant = append(relevant, h)
		}
	}
	if len(relevant) == 0 {
		// Second pass at the lower bound, keeping rank order.
		for _, h := range hits {
			if h.Score >= rt.cfg.FallbackThreshold {
				relevant = append(relevant, h)
				if len(relevant) == rt.cfg.FallbackK {
					break
				}
			}
		}
	}
	if len(relevant) == 0 {
		return &Result{
			Answer:            noResultsAnswer,
			Mode:              ModeRAG,
			Sources:           []Source{},
			NoRelevantResults: true,
		}, nil
	}

	contextText := buildContext(relevant)
	system := groundedSystemPrompt + "\n\nCONTEXT:\n" + contextText

	answer, err := rt.llm.Complete(ctx, system, rt.lastN(history), query,
		llm.CompleteOptions{Temperature: groundedTemperature})
	if err != nil {
		if !errors.Is(err, llm.ErrNoProvider) {
			return nil, err
		}
		answer = contextText + degradedSuffix
	}

	return &Result{
		Answer:         answer,
		Mode:           ModeRAG,
		Sources:        formatSources(relevant),
		RetrievedCount: len(relevant),
	}, nil
}

func (rt *Router) general(ctx context.Context, query string, history []llm.Message) (*Result, error) {
	answer, err := rt.llm.Complete(ctx, generalSystemPrompt, rt.lastN(history), query,
		llm.CompleteOptions{Temperature: generalTemperature})
	if err != nil {
		if !errors.Is(err, llm.ErrNoProvider) {
			return nil, err
		}
		answer = fmt.Sprintf(degradedOpenFormat, query)
	}
	return &Result{
		Answer:  answer,
		Mode:    ModeGeneral,
		Sources: []Source{},
	}, nil
}

// search embeds the query, extracts its keyword bag and runs hybrid
// retrieval.
func (rt *Router) search(ctx context.Context, query string, k int) ([]index.SearchResult, error) {
	qEmb, err := rt.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	qKw := index.ExtractKeywords(query)
	return rt.retriever.HybridSearch(qEmb, qKw, k), nil
}

func (rt *Router) lastN(history []llm.Message) []llm.Message {
	n := rt.cfg.HistoryWindow
	if n <= 0 || len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

// buildContext concatenates hits in rank order, each headed by a
// numbered source line matching the citation format the system prompt
// asks for.
func buildContext(hits []index.SearchResult) string {
	parts := make([]string, len(hits))
	for i, h := range hits {
		parts[i] = fmt.Sprintf("[Source %d - %s]\n%s", i+1, h.Metadata.Source, h.Content)
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// formatSources renders hits as citation entries: a 200-character
// preview, the origin name and the combined score as a percentage with
// one decimal. The percentage is intentionally not clamped.
func formatSources(hits []index.SearchResult) []Source {
	out := make([]Source, len(hits))
	for i, h := range hits {
		out[i] = Source{
			ID:         i + 1,
			Content:    preview(h.Content),
			Source:     h.Metadata.Source,
			Score:      fmt.Sprintf("%.1f%%", h.Score*100),
			ChunkIndex: h.Metadata.ChunkIndex,
		}
	}
	return out
}

func preview(content string) string {
	runes := []rune(content)
	if len(runes) > sourcePreviewChars {
		return string(runes[:sourcePreviewChars]) + "..."
	}
	return content + "..."
}
