package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrNoProvider is returned by Complete when no provider is available.
// Callers treat it as a signal to degrade gracefully rather than as a
// request failure.
var ErrNoProvider = errors.New("no LLM provider available")

// historyWindow caps how much conversation history is forwarded to a
// provider. Keeps prompts small enough for local models.
const historyWindow = 6

// CompleteOptions tune a single completion request.
type CompleteOptions struct {
	Temperature float64
	MaxTokens   int
}

// ProviderInfo describes one configured provider.
type ProviderInfo struct {
	ID    string `json:"id"`
	Model string `json:"model"`
}

type gatewayEntry struct {
	provider Provider
	cfg      Config
}

// Gateway routes completions to one of several configured providers.
// Providers are held in preference order (local first, then hosted);
// the first available one becomes active and stays active until
// SetActive switches it. A gateway with no available provider runs
// degraded: Complete returns ErrNoProvider and the caller renders
// fallback output instead of an error.
type Gateway struct {
	mu      sync.RWMutex
	entries []gatewayEntry
	active  int // index into entries, -1 when degraded
}

// NewGateway builds a gateway over the given provider configurations,
// in preference order. Configurations that fail to construct are
// skipped with a warning. The context bounds the initial availability
// probe of local providers.
func NewGateway(ctx context.Context, cfgs ...Config) *Gateway {
	g := &Gateway{active: -1}
	for _, cfg := range cfgs {
		cfg = applyDefaults(cfg)
		p, err := NewProvider(cfg)
		if err != nil {
			slog.Warn("llm: skipping provider", "provider", cfg.Provider, "error", err)
			continue
		}
		g.entries = append(g.entries, gatewayEntry{provider: p, cfg: cfg})
	}
	if g.resolveActive(ctx) {
		info, _ := g.Active()
		slog.Info("llm: provider selected", "provider", info.ID, "model", info.Model)
	} else {
		slog.Warn("llm: no provider available, running degraded")
	}
	return g
}

// resolveActive picks the first available provider in preference order.
// Entries are immutable after construction, so probing happens without
// the lock held.
func (g *Gateway) resolveActive(ctx context.Context) bool {
	for i, e := range g.entries {
		if e.provider.Available(ctx) {
			g.mu.Lock()
			g.active = i
			g.mu.Unlock()
			return true
		}
	}
	return false
}

// Complete sends a completion request to the active provider. The
// system prompt (if non-empty) goes first, followed by the most recent
// history entries and the user message. History beyond the window is
// dropped.
func (g *Gateway) Complete(ctx context.Context, system string, history []Message, user string, opts CompleteOptions) (string, error) {
	g.mu.RLock()
	active := g.active
	g.mu.RUnlock()

	if active < 0 {
		// A provider may have come up since the last check, typically
		// Ollama being started after this server.
		if !g.resolveActive(ctx) {
			return "", ErrNoProvider
		}
		g.mu.RLock()
		active = g.active
		g.mu.RUnlock()
	}
	e := g.entries[active]

	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}

	msgs := make([]Message, 0, len(history)+2)
	if system != "" {
		msgs = append(msgs, Message{Role: "system", Content: system})
	}
	msgs = append(msgs, history...)
	msgs = append(msgs, Message{Role: "user", Content: user})

	resp, err := e.provider.Chat(ctx, ChatRequest{
		Model:       e.cfg.Model,
		Messages:    msgs,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", e.provider.Name(), err)
	}
	return resp.Content, nil
}

// AvailableProviders lists the providers that can serve requests right
// now, in preference order.
func (g *Gateway) AvailableProviders(ctx context.Context) []ProviderInfo {
	infos := make([]ProviderInfo, 0, len(g.entries))
	for _, e := range g.entries {
		if !e.provider.Available(ctx) {
			continue
		}
		infos = append(infos, ProviderInfo{ID: e.provider.Name(), Model: e.cfg.Model})
	}
	return infos
}

// SetActive switches the active provider. The id may be a provider
// name ("ollama") or a configured model id ("gpt-4o-mini"), matching
// how clients address models over the API. Switching to a provider
// that is configured but currently unreachable is allowed; errors
// surface on the next completion.
func (g *Gateway) SetActive(id string) error {
	for i, e := range g.entries {
		if e.provider.Name() == id || e.cfg.Model == id {
			g.mu.Lock()
			g.active = i
			g.mu.Unlock()
			return nil
		}
	}
	return fmt.Errorf("unknown provider: %s", id)
}

// Active returns the provider currently serving completions.
func (g *Gateway) Active() (ProviderInfo, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.active < 0 {
		return ProviderInfo{}, false
	}
	e := g.entries[g.active]
	return ProviderInfo{ID: e.provider.Name(), Model: e.cfg.Model}, true
}

// Degraded reports whether no provider is active. The chat router uses
// this for health reporting; request-time degradation is signaled by
// ErrNoProvider from Complete.
func (g *Gateway) Degraded() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.active < 0
}
