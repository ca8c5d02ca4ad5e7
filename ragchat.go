// Package ragchat is a retrieval-augmented question-answering engine.
// Documents and web pages are parsed, chunked, embedded and indexed; chat
// queries run in grounded, open or auto mode against the indexed corpus.
package ragchat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/avelis/ragchat/chat"
	"github.com/avelis/ragchat/chunker"
	"github.com/avelis/ragchat/embedder"
	"github.com/avelis/ragchat/index"
	"github.com/avelis/ragchat/llm"
	"github.com/avelis/ragchat/parser"
	"github.com/avelis/ragchat/store"
)

// Engine is the main entry point: ingestion on one side, chat and search
// on the other.
type Engine interface {
	// IngestFile parses, chunks, embeds and indexes one document. name is
	// the filename as presented by the client and decides the format.
	IngestFile(ctx context.Context, path, name string) (*IngestResult, error)

	// IngestURL fetches a web page and ingests its readable text.
	IngestURL(ctx context.Context, url string) (*IngestResult, error)

	// Chat runs one conversation turn. The conversation is created lazily
	// when the ID is empty or unknown.
	Chat(ctx context.Context, req ChatRequest) (*ChatResult, error)

	// Search runs a hybrid query against the index without involving the LLM.
	Search(ctx context.Context, query string, k int) ([]index.SearchResult, error)

	// ListDocuments returns registry entries in insertion order.
	ListDocuments() []index.Document

	// DeleteDocument removes a document and all its chunks.
	DeleteDocument(id string) error

	// ClearDocuments empties the index and the registry.
	ClearDocuments()

	// Conversation returns a stored conversation by ID.
	Conversation(id string) (*chat.Conversation, bool)

	// DeleteConversation removes a conversation from memory.
	DeleteConversation(id string) bool

	// Models lists the providers able to serve completions right now.
	Models(ctx context.Context) ([]llm.ProviderInfo, string)

	// SetModel switches the active chat provider by provider name or
	// configured model id.
	SetModel(id string) error

	// Stats reports corpus and conversation counts.
	Stats() Stats

	// Close releases held resources.
	Close() error
}

// IngestResult reports one successful ingest.
type IngestResult struct {
	DocID  string `json:"docId"`
	Name   string `json:"name"`
	Chunks int    `json:"chunks"`
}

// ChatRequest is one conversation turn.
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId,omitempty"`
	Mode           string `json:"mode,omitempty"` // auto, rag, general; empty means auto
}

// ChatResult is the engine's answer to one turn.
type ChatResult struct {
	ConversationID    string        `json:"conversationId"`
	Answer            string        `json:"answer"`
	Mode              string        `json:"mode"`
	Sources           []chat.Source `json:"sources"`
	RetrievedCount    int           `json:"retrievedCount,omitempty"`
	NoRelevantResults bool          `json:"noRelevantResults,omitempty"`
}

// Stats is a point-in-time snapshot for health and stats endpoints.
type Stats struct {
	Documents     int    `json:"documents"`
	Chunks        int    `json:"chunks"`
	Conversations int    `json:"conversations"`
	CurrentModel  string `json:"currentModel"`
}

// Option adjusts engine construction. Used by tests to substitute
// deterministic backends for the embedder and the LLM.
type Option func(*engine)

// WithEmbedderClient replaces the embedding backend built from the
// configuration.
func WithEmbedderClient(c embedder.Client) Option {
	return func(e *engine) { e.embed = embedder.New(c, e.cfg.EmbedBatchSize) }
}

// WithCompleter replaces the chat completion backend built from the
// configuration.
func WithCompleter(c chat.Completer) Option {
	return func(e *engine) { e.completer = c }
}

// engine is the concrete implementation of Engine.
type engine struct {
	cfg       Config
	parsers   *parser.Registry
	web       *parser.WebParser
	chunkr    *chunker.Chunker
	idx       *index.Index
	embed     *embedder.Gateway
	llms      *llm.Gateway
	completer chat.Completer
	router    *chat.Router
	memory    *chat.Memory
	audit     *store.Store
}

// New creates an engine with the given configuration. The context bounds
// the initial availability probe of local LLM providers.
func New(ctx context.Context, cfg Config, opts ...Option) (Engine, error) {
	def := DefaultConfig()
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.ChunkOverlap <= 0 {
		cfg.ChunkOverlap = def.ChunkOverlap
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = def.EmbedBatchSize
	}
	if cfg.RetrievalK <= 0 {
		cfg.RetrievalK = def.RetrievalK
	}
	if cfg.FallbackK <= 0 {
		cfg.FallbackK = def.FallbackK
	}
	if cfg.RelevanceThreshold == 0 {
		cfg.RelevanceThreshold = def.RelevanceThreshold
	}
	if cfg.FallbackThreshold == 0 {
		cfg.FallbackThreshold = def.FallbackThreshold
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = def.HistoryWindow
	}

	e := &engine{
		cfg:     cfg,
		parsers: parser.NewRegistry(),
		web:     parser.NewWebParser(),
		chunkr:  chunker.New(chunker.Config{Size: cfg.ChunkSize, Overlap: cfg.ChunkOverlap}),
		idx:     index.New(),
		memory:  chat.NewMemory(),
	}

	e.llms = llm.NewGateway(ctx, providerConfig(cfg.Ollama), providerConfig(cfg.OpenAI), providerConfig(cfg.DeepSeek))
	e.completer = e.llms

	if cfg.Embedding.Provider != "" {
		embedProvider, err := llm.NewProvider(providerConfig(cfg.Embedding))
		if err != nil {
			return nil, fmt.Errorf("creating embedding provider: %w", err)
		}
		e.embed = embedder.New(embedProvider, cfg.EmbedBatchSize)
	}

	for _, o := range opts {
		o(e)
	}
	if e.embed == nil {
		return nil, errors.New("ragchat: no embedding backend configured")
	}

	e.router = chat.NewRouter(chat.Config{
		RelevanceThreshold: cfg.RelevanceThreshold,
		FallbackThreshold:  cfg.FallbackThreshold,
		RetrievalK:         cfg.RetrievalK,
		FallbackK:          cfg.FallbackK,
		HistoryWindow:      cfg.HistoryWindow,
	}, e.idx, e.embed, e.completer)

	if cfg.AuditDBPath != "" {
		audit, err := store.Open(cfg.AuditDBPath)
		if err != nil {
			return nil, fmt.Errorf("opening audit log: %w", err)
		}
		e.audit = audit
	}

	return e, nil
}

func providerConfig(c LLMConfig) llm.Config {
	return llm.Config{
		Provider: c.Provider,
		Model:    c.Model,
		BaseURL:  c.BaseURL,
		APIKey:   c.APIKey,
	}
}

// IngestFile runs the full pipeline for one on-disk document: parse by
// the extension of name, chunk, extract keyword bags, embed, then publish
// all chunks in one critical section so searches never see a partially
// ingested document.
func (e *engine) IngestFile(ctx context.Context, path, name string) (*IngestResult, error) {
	format := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	p, err := e.parsers.Get(format)
	if err != nil {
		return nil, fmt.Errorf("%w: .%s", ErrUnsupportedFormat, format)
	}

	parsed, err := p.Parse(ctx, path)
	if err != nil {
		e.logIngest(name, "file", nil, err)
		return nil, fmt.Errorf("parsing %s: %w", name, err)
	}

	res, err := e.ingestText(ctx, name, parsed)
	e.logIngest(name, "file", res, err)
	return res, err
}

// IngestURL fetches a page and ingests its readable text. The page title
// (or the URL itself) is stamped on every chunk.
func (e *engine) IngestURL(ctx context.Context, url string) (*IngestResult, error) {
	parsed, err := e.web.Fetch(ctx, url)
	if err != nil {
		e.logIngest(url, "url", nil, err)
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	res, err := e.ingestText(ctx, url, parsed)
	e.logIngest(url, "url", res, err)
	return res, err
}

// ingestText is the shared back half of ingestion: chunk, attach keyword
// bags, embed outside the index lock, then publish.
func (e *engine) ingestText(ctx context.Context, name string, parsed *parser.ParseResult) (*IngestResult, error) {
	start := time.Now()
	chunks := e.chunkr.Chunk(parsed.Text, index.ChunkMetadata{
		Source: name,
		Type:   parsed.Type,
		Title:  parsed.Title,
	})
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no extractable text in %q", ErrInvalidRequest, name)
	}

	texts := make([]string, len(chunks))
	for i := range chunks {
		chunks[i].Keywords = index.ExtractKeywords(chunks[i].Content)
		texts[i] = chunks[i].Content
	}

	embeddings, err := e.embed.EmbedMany(ctx, texts)
	if err != nil {
		if errors.Is(err, embedder.ErrUnavailable) {
			return nil, fmt.Errorf("%w: %v", ErrEmbedderUnavailable, err)
		}
		return nil, fmt.Errorf("embedding %s: %w", name, err)
	}
	for i := range chunks {
		chunks[i].Embedding = embeddings[i]
	}

	// A cancelled ingest must not expose a partial document.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	docID := uuid.NewString()
	e.idx.Add(docID, name, chunks)

	slog.Info("ingest complete",
		"name", name, "doc_id", docID, "chunks", len(chunks),
		"elapsed", time.Since(start).Round(time.Millisecond))

	return &IngestResult{DocID: docID, Name: name, Chunks: len(chunks)}, nil
}

// Chat runs one turn: record the user message, route, record the answer.
// A failed turn unwinds the user message so history only ever holds
// completed turns.
func (e *engine) Chat(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, fmt.Errorf("%w: empty message", ErrInvalidRequest)
	}

	convID := req.ConversationID
	if convID == "" {
		convID = uuid.NewString()
	}

	history := e.memory.LastN(convID, e.cfg.HistoryWindow)
	e.memory.AppendUser(convID, req.Message)

	result, err := e.router.Route(ctx, req.Message, req.Mode, history)
	if err != nil {
		e.memory.RemoveLast(convID)
		if errors.Is(err, chat.ErrInvalidMode) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		return nil, err
	}
	e.memory.AppendAssistant(convID, result.Answer, result.Mode, result.Sources)

	e.logChat(convID, req.Message, result)

	return &ChatResult{
		ConversationID:    convID,
		Answer:            result.Answer,
		Mode:              result.Mode,
		Sources:           result.Sources,
		RetrievedCount:    result.RetrievedCount,
		NoRelevantResults: result.NoRelevantResults,
	}, nil
}

// Search embeds the query, extracts its keyword bag and runs hybrid
// retrieval. k <= 0 selects the configured retrieval window.
func (e *engine) Search(ctx context.Context, query string, k int) ([]index.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query", ErrInvalidRequest)
	}
	if k <= 0 {
		k = e.cfg.RetrievalK
	}
	qEmb, err := e.embed.EmbedOne(ctx, query)
	if err != nil {
		if errors.Is(err, embedder.ErrUnavailable) {
			return nil, fmt.Errorf("%w: %v", ErrEmbedderUnavailable, err)
		}
		return nil, err
	}
	return e.idx.HybridSearch(qEmb, index.ExtractKeywords(query), k), nil
}

func (e *engine) ListDocuments() []index.Document {
	return e.idx.ListDocuments()
}

func (e *engine) DeleteDocument(id string) error {
	if !e.idx.Remove(id) {
		return fmt.Errorf("%w: %s", ErrUnknownDocument, id)
	}
	return nil
}

func (e *engine) ClearDocuments() {
	e.idx.Clear()
}

func (e *engine) Conversation(id string) (*chat.Conversation, bool) {
	return e.memory.Get(id)
}

func (e *engine) DeleteConversation(id string) bool {
	return e.memory.Delete(id)
}

func (e *engine) Models(ctx context.Context) ([]llm.ProviderInfo, string) {
	infos := e.llms.AvailableProviders(ctx)
	current := ""
	if active, ok := e.llms.Active(); ok {
		current = active.Model
	}
	return infos, current
}

func (e *engine) SetModel(id string) error {
	if err := e.llms.SetActive(id); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

func (e *engine) Stats() Stats {
	current := ""
	if active, ok := e.llms.Active(); ok {
		current = active.Model
	}
	return Stats{
		Documents:     e.idx.CountDocuments(),
		Chunks:        e.idx.CountChunks(),
		Conversations: e.memory.Count(),
		CurrentModel:  current,
	}
}

func (e *engine) Close() error {
	if e.audit != nil {
		return e.audit.Close()
	}
	return nil
}

// logIngest and logChat write to the audit log when one is configured.
// Audit failures are logged and never reach the user path.
func (e *engine) logIngest(name, kind string, res *IngestResult, ingestErr error) {
	if e.audit == nil {
		return
	}
	entry := store.IngestLog{Name: name, Kind: kind, Status: "ok"}
	if res != nil {
		entry.DocID = res.DocID
		entry.Chunks = res.Chunks
	}
	if ingestErr != nil {
		entry.Status = "error"
		entry.Error = ingestErr.Error()
	}
	if err := e.audit.LogIngest(context.Background(), entry); err != nil {
		slog.Warn("audit: ingest log write failed", "name", name, "error", err)
	}
}

func (e *engine) logChat(convID, question string, result *chat.Result) {
	if e.audit == nil {
		return
	}
	model := ""
	if active, ok := e.llms.Active(); ok {
		model = active.Model
	}
	err := e.audit.LogChat(context.Background(), store.ChatLog{
		ConversationID: convID,
		Question:       question,
		Answer:         result.Answer,
		Mode:           result.Mode,
		SourceCount:    len(result.Sources),
		RetrievedCount: result.RetrievedCount,
		ModelUsed:      model,
	})
	if err != nil {
		slog.Warn("audit: chat log write failed", "conversation", convID, "error", err)
	}
}
