// Package blobstore fetches source-document bytes referenced by jobs from an
// S3-compatible object store (MinIO or AWS S3).
package blobstore

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Ref is a parsed blob reference of the wire form
// "<scheme>:<bucket>:<object>". The scheme is informational (the client is
// already configured with a concrete endpoint); bucket and object drive the
// actual fetch.
type Ref struct {
	Scheme string
	Bucket string
	Object string
}

// ParseRef splits a blob reference on ':'. The bucket is the second field;
// the object is everything after the last ':' so object keys containing
// colons survive. The filename is recovered as the suffix after the last
// '-' in the object key, matching the reference system's naming convention.
func ParseRef(ref string) (Ref, error) {
	parts := strings.Split(ref, ":")
	if len(parts) < 3 {
		return Ref{}, fmt.Errorf("blobstore: malformed reference %q", ref)
	}
	return Ref{
		Scheme: parts[0],
		Bucket: parts[1],
		Object: parts[len(parts)-1],
	}, nil
}

// Filename returns the object's file name, recovered as the suffix after
// the last '-' in the object key.
func (r Ref) Filename() string {
	if i := strings.LastIndexByte(r.Object, '-'); i >= 0 {
		return r.Object[i+1:]
	}
	return r.Object
}

// Store fetches object bytes by reference.
type Store interface {
	Fetch(ctx context.Context, ref string) ([]byte, Ref, error)
}

// S3Store is the default Store backed by an S3-compatible client.
type S3Store struct {
	client *s3.Client
}

// NewS3Store wraps an already-configured s3.Client (pointed at AWS S3 or a
// MinIO endpoint via aws.Config.BaseEndpoint).
func NewS3Store(client *s3.Client) *S3Store {
	return &S3Store{client: client}
}

// Fetch downloads the object named by ref and returns its bytes.
func (s *S3Store) Fetch(ctx context.Context, ref string) ([]byte, Ref, error) {
	parsed, err := ParseRef(ref)
	if err != nil {
		return nil, Ref{}, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(parsed.Bucket),
		Key:    aws.String(parsed.Object),
	})
	if err != nil {
		return nil, parsed, fmt.Errorf("blobstore: get object %s/%s: %w", parsed.Bucket, parsed.Object, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, parsed, fmt.Errorf("blobstore: read object %s/%s: %w", parsed.Bucket, parsed.Object, err)
	}
	return data, parsed, nil
}
