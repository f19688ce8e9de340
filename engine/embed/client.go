// Package embed provides the client side of the embedding RPC boundary:
// given content and a model name, return a dense vector.
package embed

import (
	"context"
	"fmt"
	"math"

	"github.com/cognixio/chunker/engine/embed/embedpb"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// MaxFrameSize is the max send/recv gRPC frame size, large enough for a
// single oversized chunk's embedding request.
const MaxFrameSize = 100 * 1024 * 1024

// Client embeds text by calling a remote embedding service over gRPC. One
// channel is dialed and reused for the client's lifetime; there is no retry
// at this layer, failures propagate to the caller as a job-level failure.
type Client struct {
	conn *grpc.ClientConn
	rpc  embedpb.EmbedServiceClient
}

// New dials addr and returns a ready Client.
func New(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallSendMsgSize(MaxFrameSize),
			grpc.MaxCallRecvMsgSize(MaxFrameSize),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("embed: dial %s: %w", addr, err)
	}
	return &Client{conn: conn, rpc: embedpb.NewEmbedServiceClient(conn)}, nil
}

// NewWithClient wraps an already-constructed embedpb.EmbedServiceClient,
// letting tests substitute a fake without dialing a real connection.
func NewWithClient(rpc embedpb.EmbedServiceClient) *Client {
	return &Client{rpc: rpc}
}

// Close closes the underlying gRPC connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Embed returns the dense vector for content under model.
func (c *Client) Embed(ctx context.Context, content, model string) ([]float32, error) {
	resp, err := c.rpc.GetEmbedding(ctx, &embedpb.EmbedRequest{Content: content, Model: model})
	if err != nil {
		return nil, fmt.Errorf("embed: get embedding: %w", err)
	}
	for _, v := range resp.Vector {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return nil, fmt.Errorf("embed: model %s returned a non-finite vector component", model)
		}
	}
	return resp.Vector, nil
}
