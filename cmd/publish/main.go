// Command publish enqueues a single job onto the work queue, for manual
// testing and backfill triggers.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/cognixio/chunker/engine/extract"
	"github.com/cognixio/chunker/engine/queue"
	"github.com/cognixio/chunker/pkg/config"
)

func main() {
	var (
		url            = flag.String("url", "", "source URL (FileType=URL)")
		blobRef        = flag.String("blob", "", "blob reference <scheme>:<bucket>:<object> (FileType=PDF/DOC/TXT/MD)")
		documentID     = flag.Int64("document-id", 0, "logical document id, must be > 0")
		connectorID    = flag.Int64("connector-id", 0, "owning connector id")
		fileType       = flag.String("type", "URL", "one of URL, PDF, DOC, TXT, MD, YT")
		collectionName = flag.String("collection", "docs", "vector store collection name")
		modelName      = flag.String("model", "text-embedding-3-small", "embedding model name")
		modelDimension = flag.Int("dimension", 1536, "embedding vector dimension")
		recursive      = flag.Bool("recursive", false, "recurse URL crawl")
	)
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, nil))
	cfg := config.Load()

	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		log.Error("publish: nats connect failed", "error", err)
		os.Exit(1)
	}
	defer nc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pub, err := queue.NewPublisher(ctx, nc, queue.Config{
		StreamName:  cfg.StreamName,
		Subject:     cfg.Subject,
		DurableName: cfg.DurableName,
		AckWait:     cfg.AckWait,
		MaxDeliver:  cfg.MaxDeliver,
	})
	if err != nil {
		log.Error("publish: subscriber setup failed", "error", err)
		os.Exit(1)
	}

	job := extract.Job{
		URL:            *url,
		BlobRef:        *blobRef,
		DocumentID:     *documentID,
		ConnectorID:    *connectorID,
		FileType:       extract.FileType(*fileType),
		URLRecursive:   *recursive,
		CollectionName: *collectionName,
		ModelName:      *modelName,
		ModelDimension: int32(*modelDimension),
	}

	if err := pub.Publish(ctx, job); err != nil {
		log.Error("publish: failed", "error", err)
		os.Exit(1)
	}
	log.Info("publish: job enqueued", "document_id", job.DocumentID, "subject", cfg.Subject)
}
