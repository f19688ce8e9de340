// Command worker is the chunking pipeline's supervisor: it attaches a
// durable JetStream consumer and runs every delivered job through the
// dispatch pipeline until told to stop.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"

	"github.com/cognixio/chunker/engine/chunk"
	"github.com/cognixio/chunker/engine/connector"
	"github.com/cognixio/chunker/engine/dispatch"
	"github.com/cognixio/chunker/engine/embed"
	"github.com/cognixio/chunker/engine/extract"
	"github.com/cognixio/chunker/engine/extract/markdown"
	"github.com/cognixio/chunker/engine/extract/render"
	"github.com/cognixio/chunker/engine/extract/transcript"
	"github.com/cognixio/chunker/engine/queue"
	"github.com/cognixio/chunker/engine/registry"
	"github.com/cognixio/chunker/engine/vectorstore"
	"github.com/cognixio/chunker/pkg/blobstore"
	"github.com/cognixio/chunker/pkg/config"
	"github.com/cognixio/chunker/pkg/logging"
	"github.com/cognixio/chunker/pkg/metrics"
	"github.com/cognixio/chunker/pkg/probe"
	"github.com/cognixio/chunker/pkg/resilience"
)

func main() {
	cfg := config.Load()
	log := logging.New(os.Getenv("LOG_LEVEL"))

	met := metrics.New()
	met.ServeAsync(cfg.MetricsPort)

	probeSrv := probe.New()
	go func() {
		if err := probeSrv.ListenAndServe(":" + strconv.Itoa(cfg.ProbePort)); err != nil {
			log.Error("probe: server exited", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	deps, closeDeps, err := buildDeps(ctx, cfg, log)
	if err != nil {
		log.Error("worker: failed to build dependencies", "error", err)
		os.Exit(1)
	}
	defer closeDeps()

	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		log.Error("worker: nats connect failed", "error", err)
		os.Exit(1)
	}
	defer nc.Close()

	queueCfg := queue.Config{
		StreamName:  cfg.StreamName,
		Subject:     cfg.Subject,
		DurableName: cfg.DurableName,
		AckWait:     cfg.AckWait,
		MaxDeliver:  cfg.MaxDeliver,
	}

	pipeline := dispatch.NewPipeline(deps)
	handler := func(hctx context.Context, job extract.Job) error {
		_, err := pipeline(hctx, job).Unwrap()
		return err
	}

	breaker := resilience.NewBreaker(resilience.BreakerOpts{FailThreshold: 5, Timeout: 30 * time.Second})

	probeSrv.SetReady(true)
	log.Info("worker: ready", "stream", cfg.StreamName, "subject", cfg.Subject)

	for ctx.Err() == nil {
		sub, err := queue.NewSubscriber(ctx, nc, queueCfg, log)
		if err != nil {
			log.Error("worker: subscriber attach failed, retrying", "error", err)
			sleep(ctx, 5*time.Second)
			continue
		}

		err = breaker.Call(ctx, func(runCtx context.Context) error {
			return sub.Run(runCtx, handler)
		})
		if err != nil && ctx.Err() == nil {
			log.Error("worker: subscriber run failed, reconnecting", "error", err)
			sleep(ctx, 5*time.Second)
		}
	}

	probeSrv.SetReady(false)
	log.Info("worker: shutting down")
}

// buildDeps wires every collaborator the dispatch pipeline needs and
// returns a cleanup function closing the ones with a connection to tear
// down.
func buildDeps(ctx context.Context, cfg config.Config, log *slog.Logger) (dispatch.Deps, func(), error) {
	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		return dispatch.Deps{}, nil, err
	}

	reg := registry.New(pool)
	if err := reg.InitSchema(ctx); err != nil {
		return dispatch.Deps{}, nil, err
	}
	conns := connector.New(pool)
	if err := conns.InitSchema(ctx); err != nil {
		return dispatch.Deps{}, nil, err
	}

	embedder, err := embed.New(cfg.EmbedderAddr)
	if err != nil {
		return dispatch.Deps{}, nil, err
	}

	vs, err := vectorstore.New(cfg.QdrantAddr, embedder)
	if err != nil {
		return dispatch.Deps{}, nil, err
	}

	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		return dispatch.Deps{}, nil, err
	}

	extractors := extract.Dispatch(extract.Deps{
		HTTPFetcher:  extract.NewDefaultHTTPFetcher(),
		Renderer:     render.NewRenderer(),
		Blobs:        extract.NewBlobFetcher(blobs),
		Markdown:     markdown.NewConverter(),
		Transcripts:  transcript.NewFetcher(),
		MaxDepth:     cfg.MaxCrawlDepth,
		MaxPages:     cfg.MaxCrawlPages,
		CrawlLimiter: resilience.NewLimiter(resilience.LimiterOpts{Rate: 2, Burst: 4}),
	})

	deps := dispatch.Deps{
		Registry:    reg,
		Connectors:  conns,
		Extractors:  extractors,
		VectorStore: vs,
		Embedder:    embedder,
		ChunkConfig: chunk.Config{MaxLen: 500, Overlap: 3},
		Logger:      log,
	}

	cleanup := func() {
		pool.Close()
		_ = embedder.Close()
		_ = vs.Close()
	}
	return deps, cleanup, nil
}

func newBlobStore(ctx context.Context, cfg config.Config) (*blobstore.S3Store, error) {
	awsOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3Region),
	}
	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		awsOpts = append(awsOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsOpts...)
	if err != nil {
		return nil, err
	}

	s3Opts := []func(*s3.Options){}
	if cfg.S3Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = aws.String(cfg.S3Endpoint) })
	}
	if cfg.S3UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)
	return blobstore.NewS3Store(client), nil
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

