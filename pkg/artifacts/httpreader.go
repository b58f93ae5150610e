package artifacts

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"k8s.io/klog/v2"
)

// HTTPReader fetches artifacts from an artifact server (see
// cmd/artifact-store) that serves them by hash.
type HTTPReader struct {
	// BaseURL is the base URL of the artifact server.
	BaseURL *url.URL
	// Client is the HTTP client to use; nil means http.DefaultClient.
	Client *http.Client
}

var _ Reader = (*HTTPReader)(nil)

func (r *HTTPReader) Fetch(ctx context.Context, info Info, destPath string) error {
	log := klog.FromContext(ctx)

	u := r.BaseURL.JoinPath(info.Hash)
	log.Info("fetching artifact", "url", u.String(), "destination", destPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	httpClient := r.Client
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	startedAt := time.Now()
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetching from %q: %w", u, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return fmt.Errorf("artifact %q not found: %w", info.Hash, os.ErrNotExist)
	default:
		return fmt.Errorf("unexpected status fetching artifact: %v", resp.Status)
	}

	n, err := writeToFile(ctx, resp.Body, destPath)
	if err != nil {
		return fmt.Errorf("fetching from %q: %w", u, err)
	}

	log.Info("fetched artifact", "url", u.String(), "bytes", n, "duration", time.Since(startedAt))
	return nil
}
