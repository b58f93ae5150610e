package artifacts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"k8s.io/klog/v2"
)

// Cache is a local directory of artifacts in front of an optional
// backing reader. A miss is filled from the backing reader; with no
// backing reader a miss is NotFound.
type Cache struct {
	// BaseDir is the local cache directory.
	BaseDir string
	// Backing fills cache misses; may be nil.
	Backing Reader
}

// Open returns an open file for the artifact, filling the cache from
// the backing reader on a miss. A missing artifact is reported with
// grpc code NotFound.
func (c *Cache) Open(ctx context.Context, hash string) (*os.File, error) {
	log := klog.FromContext(ctx)

	// The hash becomes a path component, so it must not escape BaseDir.
	if hash == "" || hash == "." || hash == ".." || filepath.Base(hash) != hash {
		return nil, status.Errorf(codes.InvalidArgument, "invalid artifact hash %q", hash)
	}

	localPath := filepath.Join(c.BaseDir, hash)
	f, err := os.Open(localPath)
	if err == nil {
		return f, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("opening artifact %q: %w", hash, err)
	}

	if c.Backing == nil {
		return nil, status.Errorf(codes.NotFound, "artifact %q not found", hash)
	}

	log.Info("cache miss, filling from backing store", "hash", hash)
	if err := c.Backing.Fetch(ctx, Info{Hash: hash}, localPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, status.Errorf(codes.NotFound, "artifact %q not found", hash)
		}
		return nil, fmt.Errorf("filling cache for %q: %w", hash, err)
	}

	f, err = os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("opening cached artifact %q: %w", hash, err)
	}
	return f, nil
}
