// Command query runs a single ANN search against the vector store, for
// manual verification of a connector's indexed content.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cognixio/chunker/engine/embed"
	"github.com/cognixio/chunker/engine/vectorstore"
	"github.com/cognixio/chunker/pkg/config"
)

func main() {
	var (
		collection = flag.String("collection", "docs", "collection name")
		text       = flag.String("text", "", "query text")
		model      = flag.String("model", "text-embedding-3-small", "embedding model name")
		k          = flag.Int("k", 10, "number of results")
	)
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, nil))
	if *text == "" {
		log.Error("query: -text is required")
		os.Exit(1)
	}

	cfg := config.Load()

	embedder, err := embed.New(cfg.EmbedderAddr)
	if err != nil {
		log.Error("query: embed client dial failed", "error", err)
		os.Exit(1)
	}
	defer embedder.Close()

	vs, err := vectorstore.New(cfg.QdrantAddr, embedder)
	if err != nil {
		log.Error("query: vector store dial failed", "error", err)
		os.Exit(1)
	}
	defer vs.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	hits, err := vs.Query(ctx, *collection, *text, *model, *k)
	if err != nil {
		log.Error("query: search failed", "error", err)
		os.Exit(1)
	}

	for i, h := range hits {
		fmt.Printf("%2d. score=%.4f %s\n", i+1, h.Score, h.Content)
	}
}
