package ragchat

// Config holds all configuration for the ragchat engine.
type Config struct {
	// LLM providers, tried in order for chat completions.
	Ollama   LLMConfig `json:"ollama" yaml:"ollama"`
	OpenAI   LLMConfig `json:"openai" yaml:"openai"`
	DeepSeek LLMConfig `json:"deepseek" yaml:"deepseek"`

	// Embedding backend. The engine only requires that it answer
	// embedding requests; by default it points at a local Ollama.
	Embedding LLMConfig `json:"embedding" yaml:"embedding"`

	// Chunking
	ChunkSize    int `json:"chunk_size" yaml:"chunk_size"`       // characters per chunk
	ChunkOverlap int `json:"chunk_overlap" yaml:"chunk_overlap"` // characters of overlap

	// Embedding fan-out: maximum concurrent requests per batch.
	EmbedBatchSize int `json:"embed_batch_size" yaml:"embed_batch_size"`

	// Retrieval
	RetrievalK         int     `json:"retrieval_k" yaml:"retrieval_k"`
	FallbackK          int     `json:"fallback_k" yaml:"fallback_k"`
	RelevanceThreshold float64 `json:"relevance_threshold" yaml:"relevance_threshold"`
	FallbackThreshold  float64 `json:"fallback_threshold" yaml:"fallback_threshold"`

	// Chat
	HistoryWindow int `json:"history_window" yaml:"history_window"` // trailing messages sent to the LLM

	// AuditDBPath enables the SQLite event log when non-empty.
	AuditDBPath string `json:"audit_db_path" yaml:"audit_db_path"`
}

// LLMConfig configures a single LLM provider endpoint.
type LLMConfig struct {
	Provider string `json:"provider" yaml:"provider"` // ollama, openai, deepseek
	Model    string `json:"model" yaml:"model"`
	BaseURL  string `json:"base_url" yaml:"base_url"`
	APIKey   string `json:"api_key" yaml:"api_key"`
}

// DefaultConfig returns a Config with sensible defaults for local inference.
func DefaultConfig() Config {
	return Config{
		Ollama: LLMConfig{
			Provider: "ollama",
			Model:    "llama3.2:1b",
			BaseURL:  "http://localhost:11434",
		},
		OpenAI: LLMConfig{
			Provider: "openai",
			Model:    "gpt-4o-mini",
		},
		DeepSeek: LLMConfig{
			Provider: "deepseek",
			Model:    "deepseek-chat",
		},
		Embedding: LLMConfig{
			Provider: "ollama",
			Model:    "nomic-embed-text",
			BaseURL:  "http://localhost:11434",
		},
		ChunkSize:          800,
		ChunkOverlap:       200,
		EmbedBatchSize:     20,
		RetrievalK:         8,
		FallbackK:          5,
		RelevanceThreshold: 0.15,
		FallbackThreshold:  0.10,
		HistoryWindow:      6,
	}
}
