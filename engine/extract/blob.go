package extract

import (
	"context"

	"github.com/cognixio/chunker/pkg/blobstore"
)

// blobAdapter narrows a blobstore.Store down to the BlobFetcher shape this
// package depends on.
type blobAdapter struct {
	store *blobstore.S3Store
}

// NewBlobFetcher adapts a blobstore.S3Store into a BlobFetcher.
func NewBlobFetcher(store *blobstore.S3Store) BlobFetcher {
	return &blobAdapter{store: store}
}

func (b *blobAdapter) Fetch(ctx context.Context, ref string) ([]byte, error) {
	data, _, err := b.store.Fetch(ctx, ref)
	return data, err
}
