// Command ingest loads local files into the document store and runs the full
// chunk/embed/index pipeline over them, bypassing the HTTP API. Useful for
// seeding a knowledge base from a directory of docs.
package main

import (
	"context"
	"flag"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/Ratheesh-2/jijnasaai/internal/config"
	"github.com/Ratheesh-2/jijnasaai/internal/db"
	"github.com/Ratheesh-2/jijnasaai/internal/embedding"
	"github.com/Ratheesh-2/jijnasaai/internal/extract"
	"github.com/Ratheesh-2/jijnasaai/internal/rag"
	"github.com/Ratheesh-2/jijnasaai/internal/vectorstore"
)

func main() {
	pathFlag := flag.String("path", "", "file or directory to ingest (.pdf/.txt/.md/.html)")
	flag.Parse()

	if *pathFlag == "" {
		log.Fatal("required: --path")
	}

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

	var ingested, failed int
	err = filepath.WalkDir(*pathFlag, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		sourceType := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
		if sourceType == "htm" {
			sourceType = "html"
		}
		if !extract.Supported(sourceType) {
			return nil
		}

		if err := ingestFile(ctx, store, pipeline, path, sourceType); err != nil {
			log.Printf("failed %s: %v", path, err)
			failed++
			return nil
		}
		ingested++
		return nil
	})
	if err != nil {
		log.Fatalf("walk %s: %v", *pathFlag, err)
	}

	log.Printf("done: %d ingested, %d failed", ingested, failed)
	if failed > 0 {
		os.Exit(1)
	}
}

func ingestFile(ctx context.Context, store rag.DocumentStore, pipeline *rag.IngestionPipeline, path, sourceType string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	text, err := extract.Text(data, sourceType)
	if err != nil {
		return err
	}

	doc := &rag.Document{
		Filename:   filepath.Base(path),
		SourceType: sourceType,
		Status:     rag.StatusPending,
	}
	if err := store.CreateDocument(ctx, doc); err != nil {
		return err
	}

	log.Printf("ingesting %s (%s)", path, doc.ID)
	return pipeline.Ingest(ctx, doc.ID, text)
}
