package embed

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/cognixio/chunker/engine/embed/embedpb"
	"google.golang.org/grpc"
)

type fakeEmbedRPC struct {
	vector []float32
	err    error
}

func (f *fakeEmbedRPC) GetEmbedding(_ context.Context, _ *embedpb.EmbedRequest, _ ...grpc.CallOption) (*embedpb.EmbedResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &embedpb.EmbedResponse{Vector: f.vector}, nil
}

func TestClient_Embed(t *testing.T) {
	c := NewWithClient(&fakeEmbedRPC{vector: []float32{0.1, 0.2, 0.3}})
	v, err := c.Embed(context.Background(), "hello", "text-embedding")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(v) != 3 {
		t.Fatalf("expected 3-dim vector, got %d", len(v))
	}
}

func TestClient_Embed_PropagatesError(t *testing.T) {
	c := NewWithClient(&fakeEmbedRPC{err: fmt.Errorf("embedder down")})
	if _, err := c.Embed(context.Background(), "hello", "m"); err == nil {
		t.Fatal("expected error to propagate")
	}
}

func TestClient_Embed_RejectsNonFiniteVector(t *testing.T) {
	c := NewWithClient(&fakeEmbedRPC{vector: []float32{0.1, float32(math.Inf(1))}})
	if _, err := c.Embed(context.Background(), "hello", "m"); err == nil {
		t.Fatal("expected error for non-finite vector component")
	}
}
