package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"k8s.io/klog/v2"

	"github.com/modelbind/modelbind/pkg/artifacts"
)

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	log := klog.FromContext(ctx)

	listen := ":8080"
	cacheDir := os.Getenv("CACHE_DIR")
	if cacheDir == "" {
		// We expect CACHE_DIR to be set when running on kubernetes, but default sensibly for local dev
		cacheDir = "~/.cache/artifact-store/artifacts"
	}
	flag.StringVar(&listen, "listen", listen, "listen address")
	flag.StringVar(&cacheDir, "cache-dir", cacheDir, "cache directory")
	klog.InitFlags(nil)
	flag.Parse()

	if strings.HasPrefix(cacheDir, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("getting home directory: %w", err)
		}
		cacheDir = filepath.Join(homeDir, strings.TrimPrefix(cacheDir, "~/"))
	}

	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return fmt.Errorf("creating cache directory %q: %w", cacheDir, err)
	}

	cache := &artifacts.Cache{
		BaseDir: cacheDir,
	}

	if bucket := os.Getenv("ARTIFACT_BUCKET"); bucket != "" {
		if !strings.HasPrefix(bucket, "gs://") {
			return fmt.Errorf("ARTIFACT_BUCKET must be a GCS bucket URL (gs://<bucketName>)")
		}
		bucket = strings.TrimPrefix(bucket, "gs://")
		log.Info("using GCS backing store", "bucket", bucket)
		cache.Backing = &artifacts.GCSStore{Bucket: bucket}
	} else {
		log.Info("no ARTIFACT_BUCKET set, serving local cache only")
	}

	s := &httpServer{
		cache: cache,
	}

	klog.Infof("serving on %q", listen)
	if err := http.ListenAndServe(listen, s); err != nil {
		return fmt.Errorf("serving on %q: %w", listen, err)
	}

	return nil
}

type httpServer struct {
	cache *artifacts.Cache
}

func (s *httpServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tokens := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if len(tokens) == 1 {
		if r.Method == "GET" {
			hash := tokens[0]
			s.serveGETArtifact(w, r, hash)
			return
		}
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	http.Error(w, "not found", http.StatusNotFound)
}

func (s *httpServer) serveGETArtifact(w http.ResponseWriter, r *http.Request, hash string) {
	ctx := r.Context()

	log := klog.FromContext(ctx)

	if !isValidHash(hash) {
		http.Error(w, "invalid artifact hash", http.StatusBadRequest)
		return
	}

	f, err := s.cache.Open(ctx, hash)
	if err != nil {
		switch status.Code(err) {
		case codes.NotFound:
			http.Error(w, "not found", http.StatusNotFound)
			return
		case codes.InvalidArgument:
			http.Error(w, "invalid artifact hash", http.StatusBadRequest)
			return
		}
		log.Error(err, "error getting artifact")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	defer f.Close()
	p := f.Name()

	klog.Infof("serving artifact %q", p)
	http.ServeFile(w, r, p)
}

// isValidHash accepts lowercase hex content hashes only, so a request
// path can never name a file outside the cache directory.
func isValidHash(hash string) bool {
	if len(hash) < 6 || len(hash) > 128 {
		return false
	}
	for _, c := range hash {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
