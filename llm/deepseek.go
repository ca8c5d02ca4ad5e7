package llm

import "context"

// deepSeekProvider implements Provider for DeepSeek's inference API.
// DeepSeek uses the OpenAI-compatible API format.
type deepSeekProvider struct {
	base openAICompatClient
}

const (
	defaultDeepSeekBaseURL = "https://api.deepseek.com"
	defaultDeepSeekModel   = "deepseek-chat"
)

// NewDeepSeek creates a provider for DeepSeek.
func NewDeepSeek(cfg Config) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultDeepSeekBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultDeepSeekModel
	}
	return &deepSeekProvider{base: newOpenAICompatClient(cfg)}
}

func (p *deepSeekProvider) Name() string { return "deepseek" }

func (p *deepSeekProvider) Available(ctx context.Context) bool {
	return p.base.cfg.APIKey != ""
}

func (p *deepSeekProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return p.base.chat(ctx, req)
}

func (p *deepSeekProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return p.base.embed(ctx, texts)
}
