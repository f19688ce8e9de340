// Package dispatch orchestrates one job end to end: look up its document
// row, extract content, chunk it, embed each chunk, replace prior vectors
// and child rows, then report status back to the connector. Deadlines are
// carried as a context deadline and checked between extractor items and
// between chunk/embed steps, matching a durable queue's redelivery window.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cognixio/chunker/engine/chunk"
	"github.com/cognixio/chunker/engine/connector"
	"github.com/cognixio/chunker/engine/extract"
	"github.com/cognixio/chunker/engine/registry"
	"github.com/cognixio/chunker/engine/vectorstore"
	"github.com/cognixio/chunker/pkg/fn"
)

// ErrBadJob marks a job as poison: invalid on its face, should be acked
// and dropped rather than retried.
var ErrBadJob = errors.New("dispatch: bad job")

// ErrDeadlineExceeded marks a job as having overrun its processing window.
var ErrDeadlineExceeded = errors.New("dispatch: deadline exceeded")

// Embedder is the subset of engine/embed.Client this package calls.
type Embedder interface {
	Embed(ctx context.Context, content, model string) ([]float32, error)
}

// Deps holds every collaborator the dispatcher calls.
type Deps struct {
	Registry    *registry.Store
	Connectors  *connector.Store
	Extractors  map[extract.FileType]extract.Extractor
	VectorStore *vectorstore.Store
	Embedder    Embedder
	ChunkConfig chunk.Config
	Logger      *slog.Logger
}

// Outcome summarizes a completed run for logging and for the connector
// status transition's entity count.
type Outcome struct {
	DocumentID       int64
	ConnectorID      int64
	EntitiesInserted int
	ChunkingSession  string
}

// state threads data between pipeline stages; each stage only reads the
// fields the previous stages have populated.
type state struct {
	job      extract.Job
	items    []extract.Item
	children []registry.Child
	records  []vectorstore.ChunkRecord
}

// NewPipeline builds the Validate->Lookup->Extract->Chunk/Embed->Replace/
// Insert->Status chain as a single fn.Stage, matching the composition style
// the rest of this codebase uses for multi-step transforms.
func NewPipeline(deps Deps) fn.Stage[extract.Job, Outcome] {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	validated := fn.Then(tap[extract.Job]("validate", log), validateStage())
	looked := fn.Then(validated, fn.Then(tap[extract.Job]("lookup", log), lookupStage(deps)))
	extracted := fn.Then(looked, fn.Then(tap[state]("extract", log), extractStage(deps)))
	processed := fn.Then(extracted, fn.Then(tap[state]("chunk-embed", log), processStage(deps)))
	finished := fn.Then(processed, fn.Then(tap[state]("replace-insert", log), writeStage(deps)))

	return func(ctx context.Context, job extract.Job) fn.Result[Outcome] {
		r := finished(ctx, job)
		v, err := r.Unwrap()
		if err != nil {
			// The pipeline's own ctx may already be canceled or past its
			// deadline; the failure transition still needs to land.
			cleanupCtx := context.WithoutCancel(ctx)
			if terr := transitionOnFailure(cleanupCtx, deps, job.DocumentID); terr != nil {
				log.Error("dispatch: connector transition on failure also failed", "error", terr, "document_id", job.DocumentID)
			}
			return fn.Err[Outcome](err)
		}
		return fn.Ok(v)
	}
}

func tap[T any](name string, log *slog.Logger) fn.Stage[T, T] {
	return func(ctx context.Context, t T) fn.Result[T] {
		log.Debug("dispatch.stage", "stage", name)
		if err := ctx.Err(); err != nil {
			return fn.Err[T](fmt.Errorf("%w: %v", ErrDeadlineExceeded, err))
		}
		return fn.Ok(t)
	}
}

func validateStage() fn.Stage[extract.Job, extract.Job] {
	return func(_ context.Context, job extract.Job) fn.Result[extract.Job] {
		if job.DocumentID <= 0 {
			return fn.Err[extract.Job](fmt.Errorf("%w: document_id %d is not positive", ErrBadJob, job.DocumentID))
		}
		return fn.Ok(job)
	}
}

func lookupStage(deps Deps) fn.Stage[extract.Job, state] {
	return func(ctx context.Context, job extract.Job) fn.Result[state] {
		doc, err := deps.Registry.Get(ctx, job.DocumentID)
		if err != nil {
			return fn.Err[state](fmt.Errorf("%w: document %d: %v", ErrBadJob, job.DocumentID, err))
		}
		job.ConnectorID = doc.ConnectorID
		if err := deps.Connectors.StartProcessing(ctx, doc.ConnectorID); err != nil {
			return fn.Err[state](fmt.Errorf("dispatch: start processing connector %d: %w", doc.ConnectorID, err))
		}
		return fn.Ok(state{job: job})
	}
}

func extractStage(deps Deps) fn.Stage[state, state] {
	return func(ctx context.Context, st state) fn.Result[state] {
		x, ok := extract.For(deps.Extractors, st.job.FileType)
		if !ok {
			return fn.Err[state](fmt.Errorf("%w: no extractor for file type %q", ErrBadJob, st.job.FileType))
		}
		items, err := x.Extract(ctx, st.job)
		if err != nil {
			return fn.Err[state](fmt.Errorf("dispatch: extract: %w", err))
		}
		st.items = items
		return fn.Ok(st)
	}
}

// processStage chunks and embeds every extracted item, checking the
// context deadline between items and between chunks. Each item becomes one
// child document row; each chunk becomes one vector record.
func processStage(deps Deps) fn.Stage[state, state] {
	return func(ctx context.Context, st state) fn.Result[state] {
		for _, item := range st.items {
			if err := ctx.Err(); err != nil {
				return fn.Err[state](fmt.Errorf("%w: %v", ErrDeadlineExceeded, err))
			}

			chunks := chunk.Split(item.Content, item.Reference, deps.ChunkConfig)
			st.children = append(st.children, registry.Child{
				SourceID:  item.Reference,
				URL:       item.Reference,
				Signature: signature(item.Content),
			})

			for _, c := range chunks {
				if err := ctx.Err(); err != nil {
					return fn.Err[state](fmt.Errorf("%w: %v", ErrDeadlineExceeded, err))
				}
				vec, err := deps.Embedder.Embed(ctx, c.Text, st.job.ModelName)
				if err != nil {
					return fn.Err[state](fmt.Errorf("dispatch: embed chunk %d of %s: %w", c.Index, item.Reference, err))
				}
				st.records = append(st.records, vectorstore.ChunkRecord{
					DocumentID: st.job.DocumentID,
					ParentID:   st.job.DocumentID,
					Content:    c.Text,
					Vector:     vec,
				})
			}
		}
		return fn.Ok(st)
	}
}

// writeStage performs the atomic-replace write path: ReplaceDocument,
// EnsureCollection, InsertChunks, InsertChildren, then transitions the
// connector to CompletedSuccessfully. Zero items is the success path with
// no vector activity, per the zero-extraction invariant.
func writeStage(deps Deps) fn.Stage[state, Outcome] {
	return func(ctx context.Context, st state) fn.Result[Outcome] {
		if len(st.items) == 0 {
			if _, err := deps.Registry.InsertChildren(ctx, st.job.DocumentID, st.job.ConnectorID, nil); err != nil {
				return fn.Err[Outcome](fmt.Errorf("dispatch: mark empty extraction: %w", err))
			}
			if err := deps.Connectors.CompleteSuccessfully(ctx, st.job.ConnectorID, 0); err != nil {
				return fn.Err[Outcome](fmt.Errorf("dispatch: complete successfully: %w", err))
			}
			return fn.Ok(Outcome{DocumentID: st.job.DocumentID, ConnectorID: st.job.ConnectorID})
		}

		if err := deps.VectorStore.ReplaceDocument(ctx, st.job.CollectionName, st.job.DocumentID); err != nil {
			return fn.Err[Outcome](fmt.Errorf("dispatch: replace document: %w", err))
		}
		if err := deps.VectorStore.EnsureCollection(ctx, st.job.CollectionName, int(st.job.ModelDimension)); err != nil {
			return fn.Err[Outcome](fmt.Errorf("dispatch: ensure collection: %w", err))
		}
		if err := deps.VectorStore.InsertChunks(ctx, st.job.CollectionName, st.records); err != nil {
			return fn.Err[Outcome](fmt.Errorf("dispatch: insert chunks: %w", err))
		}

		session, err := deps.Registry.InsertChildren(ctx, st.job.DocumentID, st.job.ConnectorID, st.children)
		if err != nil {
			return fn.Err[Outcome](fmt.Errorf("dispatch: insert children: %w", err))
		}

		if err := deps.Connectors.CompleteSuccessfully(ctx, st.job.ConnectorID, int64(len(st.records))); err != nil {
			return fn.Err[Outcome](fmt.Errorf("dispatch: complete successfully: %w", err))
		}

		return fn.Ok(Outcome{
			DocumentID:       st.job.DocumentID,
			ConnectorID:      st.job.ConnectorID,
			EntitiesInserted: len(st.records),
			ChunkingSession:  session.String(),
		})
	}
}

// transitionOnFailure best-efforts a CompletedWithErrors transition. A bad
// job (invalid document id or missing row) has no connector id to
// transition and is simply acked by the caller as poison.
func transitionOnFailure(ctx context.Context, deps Deps, documentID int64) error {
	doc, err := deps.Registry.Get(ctx, documentID)
	if err != nil {
		return nil // bad job: never resolved a connector id, nothing to transition
	}
	return deps.Connectors.CompleteWithErrors(ctx, doc.ConnectorID)
}

func signature(content string) string {
	const prime = 1099511628211
	var h uint64 = 14695981039346656037
	for i := 0; i < len(content); i++ {
		h ^= uint64(content[i])
		h *= prime
	}
	return fmt.Sprintf("%016x", h)
}

// Deadline computes a context deadline from a job's start time and its
// queue's ack_wait, for callers (engine/queue) to attach before invoking
// the pipeline.
func Deadline(start time.Time, ackWait time.Duration) time.Time {
	return start.Add(ackWait)
}
