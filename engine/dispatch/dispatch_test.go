package dispatch

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/cognixio/chunker/engine/chunk"
	"github.com/cognixio/chunker/engine/connector"
	"github.com/cognixio/chunker/engine/extract"
	"github.com/cognixio/chunker/engine/registry"
	"github.com/cognixio/chunker/engine/vectorstore"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
)

// --- registry.Pool fake ---

type docRow struct {
	doc registry.Document
	err error
}

func (r docRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*int64) = r.doc.ID
	*dest[1].(**int64) = r.doc.ParentID
	*dest[2].(*int64) = r.doc.ConnectorID
	*dest[3].(*string) = r.doc.SourceID
	*dest[4].(*string) = r.doc.URL
	*dest[5].(*string) = r.doc.Signature
	*dest[6].(*uuid.UUID) = r.doc.ChunkingSession
	*dest[7].(*bool) = r.doc.Analyzed
	*dest[8].(*time.Time) = r.doc.CreationDate
	*dest[9].(*time.Time) = r.doc.LastUpdate
	return nil
}

type fakeRegistryPool struct {
	docs     map[int64]*registry.Document
	children map[int64][]registry.Document
	nextID   int64
}

func newFakeRegistryPool(parent registry.Document) *fakeRegistryPool {
	return &fakeRegistryPool{
		docs:     map[int64]*registry.Document{parent.ID: &parent},
		children: map[int64][]registry.Document{},
		nextID:   parent.ID + 1,
	}
}

func (p *fakeRegistryPool) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	id := args[0].(int64)
	switch {
	case contains(sql, "DELETE FROM documents WHERE parent_id"):
		delete(p.children, id)
	case contains(sql, "SET analyzed="):
		p.docs[id].Analyzed = args[1].(bool)
	default:
		return pgconn.CommandTag{}, fmt.Errorf("fakeRegistryPool: unhandled exec: %s", sql)
	}
	return pgconn.CommandTag{}, nil
}

func (p *fakeRegistryPool) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	id := args[0].(int64)
	d, ok := p.docs[id]
	if !ok {
		return docRow{err: pgx.ErrNoRows}
	}
	return docRow{doc: *d}
}

func (p *fakeRegistryPool) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, fmt.Errorf("fakeRegistryPool: Query not supported")
}

func (p *fakeRegistryPool) Begin(context.Context) (registry.Tx, error) {
	return &fakeRegistryTx{pool: p}, nil
}

type fakeRegistryTx struct {
	pool    *fakeRegistryPool
	pending []func()
}

func (tx *fakeRegistryTx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	switch {
	case contains(sql, "DELETE FROM documents WHERE parent_id"):
		parentID := args[0].(int64)
		tx.pending = append(tx.pending, func() { delete(tx.pool.children, parentID) })
	case contains(sql, "INSERT INTO documents"):
		parentID := args[0].(int64)
		connectorID := args[1].(int64)
		c := registry.Child{SourceID: args[2].(string), URL: args[3].(string), Signature: args[4].(string)}
		session := args[5].(uuid.UUID)
		tx.pending = append(tx.pending, func() {
			id := tx.pool.nextID
			tx.pool.nextID++
			parent := parentID
			tx.pool.children[parentID] = append(tx.pool.children[parentID], registry.Document{
				ID: id, ParentID: &parent, ConnectorID: connectorID,
				SourceID: c.SourceID, URL: c.URL, Signature: c.Signature,
				ChunkingSession: session, Analyzed: true,
			})
		})
	case contains(sql, "SET chunking_session="):
		id := args[0].(int64)
		session := args[1].(uuid.UUID)
		tx.pending = append(tx.pending, func() {
			tx.pool.docs[id].ChunkingSession = session
			tx.pool.docs[id].Analyzed = true
		})
	default:
		return pgconn.CommandTag{}, fmt.Errorf("fakeRegistryTx: unhandled exec: %s", sql)
	}
	return pgconn.CommandTag{}, nil
}

func (tx *fakeRegistryTx) Commit(context.Context) error {
	for _, f := range tx.pending {
		f()
	}
	return nil
}

func (tx *fakeRegistryTx) Rollback(context.Context) error { return nil }

// --- connector.Pool fake ---

type fakeConnectorPool struct {
	status map[int64]connector.Status
	total  map[int64]int64
}

func newFakeConnectorPool(id int64) *fakeConnectorPool {
	return &fakeConnectorPool{
		status: map[int64]connector.Status{id: connector.ReadyToBeProcessed},
		total:  map[int64]int64{},
	}
}

func (p *fakeConnectorPool) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	id := args[0].(int64)
	switch {
	case contains(sql, "total_docs_analyzed=$3"):
		p.status[id] = connector.Status(args[1].(string))
		p.total[id] = args[2].(int64)
	case contains(sql, "SET status=$2"):
		p.status[id] = connector.Status(args[1].(string))
	default:
		return pgconn.CommandTag{}, fmt.Errorf("fakeConnectorPool: unhandled exec: %s", sql)
	}
	return pgconn.CommandTag{}, nil
}

type noRow struct{}

func (noRow) Scan(...any) error { return fmt.Errorf("noRow: not implemented") }

func (p *fakeConnectorPool) QueryRow(context.Context, string, ...any) pgx.Row { return noRow{} }

// --- vectorstore fakes ---

type fakeCollections struct{ created []string }

func (f *fakeCollections) List(context.Context, *pb.ListCollectionsRequest, ...grpc.CallOption) (*pb.ListCollectionsResponse, error) {
	return &pb.ListCollectionsResponse{}, nil
}

func (f *fakeCollections) Create(_ context.Context, in *pb.CreateCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	f.created = append(f.created, in.CollectionName)
	return &pb.CollectionOperationResponse{}, nil
}

type fakePoints struct {
	deletes int
	upserts []*pb.UpsertPoints
}

func (f *fakePoints) Upsert(_ context.Context, in *pb.UpsertPoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	f.upserts = append(f.upserts, in)
	return &pb.PointsOperationResponse{}, nil
}

func (f *fakePoints) Delete(context.Context, *pb.DeletePoints, ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	f.deletes++
	return &pb.PointsOperationResponse{}, nil
}

func (f *fakePoints) Search(context.Context, *pb.SearchPoints, ...grpc.CallOption) (*pb.SearchResponse, error) {
	return &pb.SearchResponse{}, nil
}

type fakeEmbedder struct{ calls int }

func (f *fakeEmbedder) Embed(_ context.Context, _, _ string) ([]float32, error) {
	f.calls++
	return []float32{0.1, 0.2}, nil
}

type failingExtractor struct{ err error }

func (f failingExtractor) Extract(context.Context, extract.Job) ([]extract.Item, error) {
	return nil, f.err
}

type fixedExtractor struct{ items []extract.Item }

func (f fixedExtractor) Extract(context.Context, extract.Job) ([]extract.Item, error) {
	return f.items, nil
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

func newDeps(t *testing.T, connectorID, documentID int64, extractor extract.Extractor) (Deps, *fakeConnectorPool, *fakeRegistryPool, *fakePoints, *fakeCollections) {
	t.Helper()
	regPool := newFakeRegistryPool(registry.Document{ID: documentID, ConnectorID: connectorID})
	connPool := newFakeConnectorPool(connectorID)
	points := &fakePoints{}
	cols := &fakeCollections{}
	emb := &fakeEmbedder{}

	return Deps{
		Registry:    registry.NewWithPool(regPool),
		Connectors:  connector.NewWithPool(connPool),
		Extractors:  map[extract.FileType]extract.Extractor{extract.FileTypeTXT: extractor},
		VectorStore: vectorstore.NewWithClients(points, cols, emb),
		Embedder:    emb,
		ChunkConfig: chunk.DefaultConfig(),
	}, connPool, regPool, points, cols
}

func TestPipeline_HappyPath(t *testing.T) {
	extractor := fixedExtractor{items: []extract.Item{{Content: "hello world", Reference: "doc://1"}}}
	deps, connPool, regPool, points, cols := newDeps(t, 1, 10, extractor)

	job := extract.Job{DocumentID: 10, FileType: extract.FileTypeTXT, CollectionName: "docs", ModelName: "m", ModelDimension: 2}
	pipeline := NewPipeline(deps)
	result := pipeline(context.Background(), job)
	outcome, err := result.Unwrap()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.EntitiesInserted != 1 {
		t.Fatalf("expected 1 entity inserted, got %d", outcome.EntitiesInserted)
	}
	if connPool.status[1] != connector.CompletedSuccessfully {
		t.Fatalf("expected CompletedSuccessfully, got %s", connPool.status[1])
	}
	if connPool.total[1] != 1 {
		t.Fatalf("expected total_docs_analyzed=1, got %d", connPool.total[1])
	}
	if len(regPool.children[10]) != 1 {
		t.Fatalf("expected 1 child row, got %d", len(regPool.children[10]))
	}
	if len(points.upserts) != 1 {
		t.Fatalf("expected 1 upsert call, got %d", len(points.upserts))
	}
	if len(cols.created) != 1 {
		t.Fatalf("expected collection to be created, got %v", cols.created)
	}
}

func TestPipeline_EmptyExtractionIsSuccessWithNoVectorActivity(t *testing.T) {
	extractor := fixedExtractor{items: nil}
	deps, connPool, regPool, points, _ := newDeps(t, 1, 10, extractor)

	job := extract.Job{DocumentID: 10, FileType: extract.FileTypeTXT, CollectionName: "docs"}
	result := NewPipeline(deps)(context.Background(), job)
	outcome, err := result.Unwrap()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.EntitiesInserted != 0 {
		t.Fatalf("expected 0 entities, got %d", outcome.EntitiesInserted)
	}
	if connPool.status[1] != connector.CompletedSuccessfully {
		t.Fatalf("expected CompletedSuccessfully on empty extraction, got %s", connPool.status[1])
	}
	if regPool.docs[10].Analyzed {
		t.Fatal("expected parent analyzed=false after zero-item extraction")
	}
	if len(regPool.children[10]) != 0 {
		t.Fatal("expected no children after zero-item extraction")
	}
	if len(points.upserts) != 0 {
		t.Fatal("expected no vector writes on empty extraction")
	}
}

func TestPipeline_BadJobRejectsNonPositiveDocumentID(t *testing.T) {
	extractor := fixedExtractor{}
	deps, _, _, _, _ := newDeps(t, 1, 10, extractor)

	job := extract.Job{DocumentID: 0, FileType: extract.FileTypeTXT}
	_, err := NewPipeline(deps)(context.Background(), job).Unwrap()
	if err == nil {
		t.Fatal("expected an error for a non-positive document id")
	}
}

func TestPipeline_MissingDocumentRowIsBadJob(t *testing.T) {
	extractor := fixedExtractor{}
	deps, _, _, _, _ := newDeps(t, 1, 10, extractor)

	job := extract.Job{DocumentID: 999, FileType: extract.FileTypeTXT}
	_, err := NewPipeline(deps)(context.Background(), job).Unwrap()
	if err == nil {
		t.Fatal("expected an error for a missing document row")
	}
}

func TestPipeline_ExtractorFailureTransitionsConnectorToCompletedWithErrors(t *testing.T) {
	extractor := failingExtractor{err: fmt.Errorf("boom")}
	deps, connPool, _, _, _ := newDeps(t, 1, 10, extractor)

	job := extract.Job{DocumentID: 10, FileType: extract.FileTypeTXT}
	_, err := NewPipeline(deps)(context.Background(), job).Unwrap()
	if err == nil {
		t.Fatal("expected extractor error to propagate")
	}
	if connPool.status[1] != connector.CompletedWithErrors {
		t.Fatalf("expected CompletedWithErrors, got %s", connPool.status[1])
	}
}

func TestPipeline_DeadlineExceededBetweenStagesFailsAndReportsErrors(t *testing.T) {
	extractor := fixedExtractor{items: []extract.Item{{Content: "hello", Reference: "doc://1"}}}
	deps, connPool, _, _, _ := newDeps(t, 1, 10, extractor)

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Nanosecond)
	defer cancel()
	time.Sleep(1 * time.Millisecond)

	job := extract.Job{DocumentID: 10, FileType: extract.FileTypeTXT}
	_, err := NewPipeline(deps)(ctx, job).Unwrap()
	if err == nil {
		t.Fatal("expected a deadline error")
	}
	if connPool.status[1] != connector.CompletedWithErrors {
		t.Fatalf("expected CompletedWithErrors after deadline overrun, got %s", connPool.status[1])
	}
}
