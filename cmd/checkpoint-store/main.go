package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"k8s.io/examples/AI/scalargrad/pkg/blobs"
	"k8s.io/klog/v2"
)

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

type options struct {
	Listen   string
	CacheDir string
	// Upstream is gs://<bucket>[/prefix] or a directory that cache misses are
	// filled from. Without it only already-cached checkpoints are served.
	Upstream string
}

func run(ctx context.Context) error {
	opt := options{
		Listen:   ":8080",
		CacheDir: os.Getenv("CACHE_DIR"),
		Upstream: os.Getenv("CACHE_BUCKET"),
	}
	if opt.CacheDir == "" {
		opt.CacheDir = "~/.cache/checkpoint-store/blobs"
	}
	flag.StringVar(&opt.Listen, "listen", opt.Listen, "listen address")
	flag.StringVar(&opt.CacheDir, "cache-dir", opt.CacheDir, "directory checkpoints are cached in")
	flag.StringVar(&opt.Upstream, "upstream", opt.Upstream, "gs://bucket[/prefix] or directory to fill cache misses from")
	klog.InitFlags(nil)
	flag.Parse()

	log := klog.FromContext(ctx)

	cacheDir, err := expandHome(opt.CacheDir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return fmt.Errorf("creating cache directory %q: %w", cacheDir, err)
	}

	upstream, err := openUpstream(opt.Upstream)
	if err != nil {
		return err
	}
	if upstream == nil {
		log.Info("no upstream configured, serving cached checkpoints only")
	}

	s := &httpServer{
		blobCache: &blobCache{
			BaseDir:  cacheDir,
			upstream: upstream,
		},
	}

	log.Info("serving checkpoints", "listen", opt.Listen, "cacheDir", cacheDir, "upstream", opt.Upstream)
	if err := http.ListenAndServe(opt.Listen, s); err != nil {
		return fmt.Errorf("serving on %q: %w", opt.Listen, err)
	}
	return nil
}

func expandHome(p string) (string, error) {
	if !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(homeDir, strings.TrimPrefix(p, "~/")), nil
}

func openUpstream(location string) (blobs.BlobReader, error) {
	if location == "" {
		return nil, nil
	}
	if !strings.HasPrefix(location, "gs://") {
		dir, err := expandHome(location)
		if err != nil {
			return nil, err
		}
		return &blobs.FileBlobstore{Dir: dir}, nil
	}

	bucket, prefix, _ := strings.Cut(strings.TrimPrefix(location, "gs://"), "/")
	if bucket == "" {
		return nil, fmt.Errorf("upstream %q must be a GCS bucket URL (gs://<bucketName>[/prefix])", location)
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &blobs.GCSBlobstore{Bucket: bucket, Prefix: prefix}, nil
}

type httpServer struct {
	blobCache *blobCache
}

func (s *httpServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tokens := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if len(tokens) == 1 {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			hash := tokens[0]
			s.serveGETBlob(w, r, hash)
			return
		}
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	http.Error(w, "not found", http.StatusNotFound)
}

func (s *httpServer) serveGETBlob(w http.ResponseWriter, r *http.Request, hash string) {
	ctx := r.Context()

	log := klog.FromContext(ctx)

	if !blobs.ValidHash(hash) {
		http.Error(w, "invalid hash", http.StatusBadRequest)
		return
	}

	f, err := s.blobCache.GetBlob(ctx, hash)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		log.Error(err, "error getting blob")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	defer f.Close()
	p := f.Name()

	log.V(2).Info("serving blob", "path", p)
	w.Header().Set("Content-Type", "application/json")
	http.ServeContent(w, r, hash, fileModTime(f), f)
}

type blobCache struct {
	BaseDir string

	// upstream fills cache misses; optional.
	upstream blobs.BlobReader
}

func (c *blobCache) GetBlob(ctx context.Context, hash string) (*os.File, error) {
	log := klog.FromContext(ctx)

	localPath := filepath.Join(c.BaseDir, hash)
	f, err := os.Open(localPath)
	if err == nil {
		return f, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("opening blob %q: %w", hash, err)
	}

	if c.upstream == nil {
		return nil, status.Errorf(codes.NotFound, "blob %q not found", hash)
	}

	log.Info("blob not in cache, fetching from upstream", "hash", hash)
	if err := c.upstream.Download(ctx, blobs.BlobInfo{Hash: hash}, localPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, status.Errorf(codes.NotFound, "blob %q not found", hash)
		}
		return nil, fmt.Errorf("fetching blob %q from upstream: %w", hash, err)
	}

	got, err := blobs.HashFile(localPath)
	if err != nil {
		return nil, err
	}
	if got.Hash != hash {
		if err := os.Remove(localPath); err != nil {
			log.Error(err, "removing corrupt blob", "path", localPath)
		}
		return nil, fmt.Errorf("upstream blob %q has hash %q", hash, got.Hash)
	}

	return os.Open(localPath)
}

func fileModTime(f *os.File) time.Time {
	stat, err := f.Stat()
	if err != nil {
		return time.Time{}
	}
	return stat.ModTime()
}
