package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"github.com/avelis/ragchat"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	addr := flag.String("addr", envOr("RAGCHAT_ADDR", ":8080"), "Listen address")
	flag.Parse()

	// Structured JSON logging.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	cfg := configFromEnv()
	apiKey := os.Getenv("RAGCHAT_API_KEY")

	engine, err := ragchat.New(context.Background(), cfg)
	if err != nil {
		slog.Error("creating engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	h := newHandler(engine)
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", h.handleHealth)
	mux.HandleFunc("GET /api/models", h.handleModels)
	mux.HandleFunc("POST /api/models/set", h.handleSetModel)
	mux.HandleFunc("POST /api/documents/upload", h.handleUpload)
	mux.HandleFunc("POST /api/documents/url", h.handleIngestURL)
	mux.HandleFunc("GET /api/documents", h.handleListDocuments)
	mux.HandleFunc("DELETE /api/documents/{id}", h.handleDeleteDocument)
	mux.HandleFunc("POST /api/documents/clear", h.handleClearDocuments)
	mux.HandleFunc("POST /api/chat", h.handleChat)
	mux.HandleFunc("POST /api/search", h.handleSearch)
	mux.HandleFunc("GET /api/stats", h.handleStats)
	mux.HandleFunc("GET /api/conversations/{id}", h.handleGetConversation)
	mux.HandleFunc("DELETE /api/conversations/{id}", h.handleDeleteConversation)

	// Middleware chain: recovery -> cors -> auth -> logging -> mux
	var handler http.Handler = mux
	handler = logMiddleware(handler)
	handler = authMiddleware(apiKey, handler)
	handler = cors.AllowAll().Handler(handler)
	handler = recoveryMiddleware(handler)

	srv := &http.Server{
		Addr:         *addr,
		Handler:      handler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 0, // uploads and LLM calls can be long
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown on SIGTERM/SIGINT.
	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("server stopped")
}

// configFromEnv builds the engine configuration from defaults plus the
// environment variables the original deployment used.
func configFromEnv() ragchat.Config {
	cfg := ragchat.DefaultConfig()

	if v := os.Getenv("OLLAMA_BASE_URL"); v != "" {
		cfg.Ollama.BaseURL = v
		cfg.Embedding.BaseURL = v
	}
	if v := os.Getenv("OLLAMA_MODEL"); v != "" {
		cfg.Ollama.Model = v
	}
	cfg.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		cfg.OpenAI.Model = v
	}
	cfg.DeepSeek.APIKey = os.Getenv("DEEPSEEK_API_KEY")
	if v := os.Getenv("DEEPSEEK_MODEL"); v != "" {
		cfg.DeepSeek.Model = v
	}
	if v := os.Getenv("RAGCHAT_EMBED_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("RAGCHAT_DB"); v != "" {
		cfg.AuditDBPath = v
	}

	cfg.ChunkSize = envInt("RAGCHAT_CHUNK_SIZE", cfg.ChunkSize)
	cfg.ChunkOverlap = envInt("RAGCHAT_CHUNK_OVERLAP", cfg.ChunkOverlap)
	cfg.RelevanceThreshold = envFloat("RAGCHAT_RELEVANCE_THRESHOLD", cfg.RelevanceThreshold)

	return cfg
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("ignoring invalid numeric env var", "key", key, "value", v)
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("ignoring invalid numeric env var", "key", key, "value", v)
		return def
	}
	return f
}
