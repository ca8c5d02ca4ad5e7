package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// fakeProvider is a scriptable Provider for gateway tests.
type fakeProvider struct {
	name      string
	available bool
	reply     string
	err       error
	lastReq   ChatRequest
	calls     int
}

func (f *fakeProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &ChatResponse{Content: f.reply, Model: req.Model}, nil
}

func (f *fakeProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Available(ctx context.Context) bool { return f.available }

// testGateway builds a gateway directly over fakes, bypassing the
// config-driven constructor.
func testGateway(ctx context.Context, fakes ...*fakeProvider) *Gateway {
	g := &Gateway{active: -1}
	for _, f := range fakes {
		g.entries = append(g.entries, gatewayEntry{
			provider: f,
			cfg:      Config{Provider: f.name, Model: f.name + "-model"},
		})
	}
	g.resolveActive(ctx)
	return g
}

func TestGatewayPrefersFirstAvailable(t *testing.T) {
	ctx := context.Background()
	local := &fakeProvider{name: "ollama", available: false}
	hosted := &fakeProvider{name: "openai", available: true, reply: "hi"}

	g := testGateway(ctx, local, hosted)

	if g.Degraded() {
		t.Fatal("gateway degraded with an available provider")
	}
	info, ok := g.Active()
	if !ok {
		t.Fatal("Active() reported no provider")
	}
	if info.ID != "openai" {
		t.Errorf("active provider = %q, want %q", info.ID, "openai")
	}
	if info.Model != "openai-model" {
		t.Errorf("active model = %q, want %q", info.Model, "openai-model")
	}
}

func TestGatewayDegradedWithoutProviders(t *testing.T) {
	ctx := context.Background()
	g := testGateway(ctx)

	if !g.Degraded() {
		t.Fatal("empty gateway not degraded")
	}
	if _, ok := g.Active(); ok {
		t.Error("Active() reported a provider on an empty gateway")
	}

	_, err := g.Complete(ctx, "sys", nil, "hello", CompleteOptions{})
	if !errors.Is(err, ErrNoProvider) {
		t.Errorf("Complete error = %v, want ErrNoProvider", err)
	}
}

func TestGatewayCompleteBuildsMessages(t *testing.T) {
	ctx := context.Background()
	f := &fakeProvider{name: "ollama", available: true, reply: "answer"}
	g := testGateway(ctx, f)

	history := []Message{
		{Role: "user", Content: "first"},
		{Role: "assistant", Content: "second"},
	}
	got, err := g.Complete(ctx, "be brief", history, "third", CompleteOptions{Temperature: 0.3, MaxTokens: 512})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "answer" {
		t.Errorf("Complete = %q, want %q", got, "answer")
	}

	req := f.lastReq
	if req.Model != "ollama-model" {
		t.Errorf("request model = %q, want %q", req.Model, "ollama-model")
	}
	if req.Temperature != 0.3 {
		t.Errorf("temperature = %v, want 0.3", req.Temperature)
	}
	if req.MaxTokens != 512 {
		t.Errorf("max tokens = %d, want 512", req.MaxTokens)
	}

	want := []Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "first"},
		{Role: "assistant", Content: "second"},
		{Role: "user", Content: "third"},
	}
	if len(req.Messages) != len(want) {
		t.Fatalf("got %d messages, want %d: %+v", len(req.Messages), len(want), req.Messages)
	}
	for i, m := range want {
		if req.Messages[i] != m {
			t.Errorf("message[%d] = %+v, want %+v", i, req.Messages[i], m)
		}
	}
}

func TestGatewayCompleteOmitsEmptySystem(t *testing.T) {
	ctx := context.Background()
	f := &fakeProvider{name: "ollama", available: true, reply: "ok"}
	g := testGateway(ctx, f)

	if _, err := g.Complete(ctx, "", nil, "just this", CompleteOptions{}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if len(f.lastReq.Messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(f.lastReq.Messages))
	}
	if f.lastReq.Messages[0].Role != "user" {
		t.Errorf("message role = %q, want %q", f.lastReq.Messages[0].Role, "user")
	}
}

func TestGatewayCompleteTruncatesHistory(t *testing.T) {
	ctx := context.Background()
	f := &fakeProvider{name: "ollama", available: true, reply: "ok"}
	g := testGateway(ctx, f)

	var history []Message
	for i := 0; i < 10; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		history = append(history, Message{Role: role, Content: strings.Repeat("x", i+1)})
	}

	if _, err := g.Complete(ctx, "sys", history, "now", CompleteOptions{}); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	// system + most recent 6 of history + user
	msgs := f.lastReq.Messages
	if len(msgs) != 8 {
		t.Fatalf("got %d messages, want 8", len(msgs))
	}
	if msgs[1].Content != history[4].Content {
		t.Errorf("oldest forwarded history = %q, want %q", msgs[1].Content, history[4].Content)
	}
	if msgs[6].Content != history[9].Content {
		t.Errorf("newest forwarded history = %q, want %q", msgs[6].Content, history[9].Content)
	}
}

func TestGatewaySetActive(t *testing.T) {
	ctx := context.Background()
	a := &fakeProvider{name: "ollama", available: true, reply: "from a"}
	b := &fakeProvider{name: "deepseek", available: true, reply: "from b"}
	g := testGateway(ctx, a, b)

	// By provider name.
	if err := g.SetActive("deepseek"); err != nil {
		t.Fatalf("SetActive(deepseek): %v", err)
	}
	got, err := g.Complete(ctx, "", nil, "q", CompleteOptions{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "from b" {
		t.Errorf("Complete = %q, want %q", got, "from b")
	}

	// By model id.
	if err := g.SetActive("ollama-model"); err != nil {
		t.Fatalf("SetActive(ollama-model): %v", err)
	}
	info, _ := g.Active()
	if info.ID != "ollama" {
		t.Errorf("active = %q, want %q", info.ID, "ollama")
	}

	if err := g.SetActive("claude"); err == nil {
		t.Error("SetActive(claude) succeeded, want error")
	}
}

func TestGatewayRecoversWhenProviderComesUp(t *testing.T) {
	ctx := context.Background()
	f := &fakeProvider{name: "ollama", available: false, reply: "back"}
	g := testGateway(ctx, f)

	if _, err := g.Complete(ctx, "", nil, "q", CompleteOptions{}); !errors.Is(err, ErrNoProvider) {
		t.Fatalf("Complete error = %v, want ErrNoProvider", err)
	}

	f.available = true
	got, err := g.Complete(ctx, "", nil, "q", CompleteOptions{})
	if err != nil {
		t.Fatalf("Complete after recovery: %v", err)
	}
	if got != "back" {
		t.Errorf("Complete = %q, want %q", got, "back")
	}
	if g.Degraded() {
		t.Error("gateway still degraded after successful completion")
	}
}

func TestGatewayAvailableProviders(t *testing.T) {
	ctx := context.Background()
	g := testGateway(ctx,
		&fakeProvider{name: "ollama", available: false},
		&fakeProvider{name: "openai", available: true},
		&fakeProvider{name: "deepseek", available: true},
	)

	infos := g.AvailableProviders(ctx)
	if len(infos) != 2 {
		t.Fatalf("got %d providers, want 2: %+v", len(infos), infos)
	}
	if infos[0].ID != "openai" || infos[1].ID != "deepseek" {
		t.Errorf("providers = %+v, want openai then deepseek", infos)
	}
}

func TestGatewayCompleteWrapsProviderError(t *testing.T) {
	ctx := context.Background()
	f := &fakeProvider{name: "openai", available: true, err: errors.New("boom")}
	g := testGateway(ctx, f)

	_, err := g.Complete(ctx, "", nil, "q", CompleteOptions{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "openai") {
		t.Errorf("error %q does not name the provider", err)
	}
	if errors.Is(err, ErrNoProvider) {
		t.Error("provider failure mapped to ErrNoProvider")
	}
}

// TestNewGatewayHostedOnly exercises the config-driven constructor
// with hosted providers, whose availability checks stay off the
// network.
func TestNewGatewayHostedOnly(t *testing.T) {
	ctx := context.Background()
	g := NewGateway(ctx,
		Config{Provider: "openai"},                  // no key, not available
		Config{Provider: "deepseek", APIKey: "sk-x"},
	)

	infos := g.AvailableProviders(ctx)
	if len(infos) != 1 || infos[0].ID != "deepseek" {
		t.Fatalf("available = %+v, want deepseek only", infos)
	}
	if infos[0].Model != "deepseek-chat" {
		t.Errorf("model = %q, want default %q", infos[0].Model, "deepseek-chat")
	}

	info, ok := g.Active()
	if !ok || info.ID != "deepseek" {
		t.Errorf("active = %+v ok=%v, want deepseek", info, ok)
	}
}

func TestNewGatewaySkipsBadConfig(t *testing.T) {
	ctx := context.Background()
	g := NewGateway(ctx,
		Config{Provider: "not-a-thing"},
		Config{Provider: "openai", APIKey: "sk-x"},
	)
	info, ok := g.Active()
	if !ok || info.ID != "openai" {
		t.Errorf("active = %+v ok=%v, want openai", info, ok)
	}
}
