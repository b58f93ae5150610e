// Package artifacts stores and fetches content-addressed model
// artifacts (parameter files, serialized weights). Backends: a GCS
// bucket, an HTTP artifact server, and a local cache layered over
// either.
package artifacts

import "context"

// Info identifies an artifact by content hash.
type Info struct {
	Hash string
}

// Reader fetches artifacts. If no such artifact exists, Fetch returns
// an error for which errors.Is(err, os.ErrNotExist) is true.
type Reader interface {
	Fetch(ctx context.Context, info Info, destPath string) error
}

// Store is a Reader that also accepts uploads. Put must be a no-op
// when an artifact with the same hash already exists.
type Store interface {
	Reader
	Put(ctx context.Context, sourcePath string, info Info) error
}
