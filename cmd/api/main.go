package main

import (
	"context"
	"log"
	"net/http"
	"slices"

	"github.com/Ratheesh-2/jijnasaai/internal/chat"
	"github.com/Ratheesh-2/jijnasaai/internal/config"
	"github.com/Ratheesh-2/jijnasaai/internal/cost"
	"github.com/Ratheesh-2/jijnasaai/internal/db"
	"github.com/Ratheesh-2/jijnasaai/internal/embedding"
	apphttp "github.com/Ratheesh-2/jijnasaai/internal/http"
	"github.com/Ratheesh-2/jijnasaai/internal/llm"
	"github.com/Ratheesh-2/jijnasaai/internal/rag"
	"github.com/Ratheesh-2/jijnasaai/internal/vectorstore"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect to database: %v", err)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool, cfg.Catalog.Embedding.Dimension); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	store := rag.NewPgStore(pool)
	index := vectorstore.NewPgIndex(pool, cfg.Catalog.Embedding.Dimension)
	embedder := embedding.NewClient(
		cfg.Catalog.Embedding.BaseURL,
		cfg.OpenAIAPIKey,
		cfg.Catalog.Embedding.Model,
		cfg.Catalog.Embedding.BatchSize,
	)

	pipeline := rag.NewIngestionPipeline(store, index, embedder,
		cfg.Catalog.RAG.ChunkSize, cfg.Catalog.RAG.ChunkOverlap, cfg.Catalog.Embedding.BatchSize)
	augmenter := rag.NewAugmenter(embedder, index, store,
		cfg.Catalog.RAG.TopK, cfg.Catalog.RAG.SimilarityThreshold, cfg.DegradeOnStoreError)

	registry := llm.NewRegistry(cfg.Catalog)
	if cfg.OpenAIAPIKey != "" {
		registry.Register(llm.NewOpenAIProvider(cfg.OpenAIAPIKey))
	}
	if cfg.AnthropicAPIKey != "" {
		registry.Register(llm.NewAnthropicProvider(cfg.AnthropicAPIKey))
	}
	if cfg.GoogleAPIKey != "" {
		gemini, err := llm.NewGeminiProvider(ctx, cfg.GoogleAPIKey)
		if err != nil {
			log.Fatalf("init gemini provider: %v", err)
		}
		registry.Register(gemini)
	}

	accountant := cost.NewAccountant(cfg.Catalog.Pricing, cost.NewPgLedger(pool))
	repo := chat.NewPgRepository(pool)
	orchestrator := chat.NewOrchestrator(repo, registry, augmenter, accountant,
		cfg.Catalog.DefaultModel, cfg.Catalog.RAG.ContextTokenBudget, cfg.MaxDailySpendUSD)

	h := apphttp.NewHandler(store, pipeline, repo, orchestrator, accountant, registry)
	router := apphttp.NewRouter(h)

	handler := corsMiddleware(cfg.AllowedOrigins, router)

	addr := ":" + cfg.Port
	log.Printf("API listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, handler))
}

func corsMiddleware(allowed []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if origin != "" && slices.Contains(allowed, origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
