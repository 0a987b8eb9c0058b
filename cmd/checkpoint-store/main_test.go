package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"k8s.io/examples/AI/scalargrad/pkg/blobs"
)

func writeBlob(t *testing.T, store *blobs.FileBlobstore, contents string) blobs.BlobInfo {
	t.Helper()

	src := filepath.Join(t.TempDir(), "blob")
	if err := os.WriteFile(src, []byte(contents), 0644); err != nil {
		t.Fatalf("writing blob: %v", err)
	}
	info, err := blobs.HashFile(src)
	if err != nil {
		t.Fatalf("hashing blob: %v", err)
	}
	if err := store.Upload(context.Background(), src, info); err != nil {
		t.Fatalf("uploading blob: %v", err)
	}
	return info
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()

	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	return resp.StatusCode, string(body)
}

func TestServeFetchesThrough(t *testing.T) {
	upstream := &blobs.FileBlobstore{Dir: t.TempDir()}
	info := writeBlob(t, upstream, `{"step":3}`)

	cacheDir := t.TempDir()
	server := httptest.NewServer(&httpServer{blobCache: &blobCache{BaseDir: cacheDir, upstream: upstream}})
	defer server.Close()

	code, body := get(t, server.URL+"/"+info.Hash)
	if code != http.StatusOK || body != `{"step":3}` {
		t.Fatalf("unexpected response %d %q", code, body)
	}
	if _, err := os.Stat(filepath.Join(cacheDir, info.Hash)); err != nil {
		t.Errorf("expected blob to be cached: %v", err)
	}

	// Served from the cache once the upstream copy is gone.
	if err := os.Remove(filepath.Join(upstream.Dir, info.Hash)); err != nil {
		t.Fatalf("removing upstream blob: %v", err)
	}
	if code, _ := get(t, server.URL+"/"+info.Hash); code != http.StatusOK {
		t.Errorf("expected cached blob to be served, got %d", code)
	}
}

func TestServeErrors(t *testing.T) {
	upstream := &blobs.FileBlobstore{Dir: t.TempDir()}
	server := httptest.NewServer(&httpServer{blobCache: &blobCache{BaseDir: t.TempDir(), upstream: upstream}})
	defer server.Close()

	missing := "0000000000000000000000000000000000000000000000000000000000000000"
	grid := []struct {
		path string
		want int
	}{
		{path: "/" + missing, want: http.StatusNotFound},
		{path: "/not-a-hash", want: http.StatusBadRequest},
		{path: "/a/b", want: http.StatusNotFound},
	}
	for _, g := range grid {
		if code, _ := get(t, server.URL+g.path); code != g.want {
			t.Errorf("GET %s: got %d, want %d", g.path, code, g.want)
		}
	}

	resp, err := http.Post(server.URL+"/"+missing, "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 for POST, got %d", resp.StatusCode)
	}
}

func TestServeWithoutUpstream(t *testing.T) {
	server := httptest.NewServer(&httpServer{blobCache: &blobCache{BaseDir: t.TempDir()}})
	defer server.Close()

	missing := "1111111111111111111111111111111111111111111111111111111111111111"
	if code, _ := get(t, server.URL+"/"+missing); code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", code)
	}
}

func TestOpenUpstream(t *testing.T) {
	upstream, err := openUpstream("gs://checkpoints/moons")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gcs, ok := upstream.(*blobs.GCSBlobstore); !ok || gcs.Bucket != "checkpoints" || gcs.Prefix != "moons/" {
		t.Errorf("unexpected upstream %#v", upstream)
	}

	upstream, err = openUpstream("/var/lib/checkpoints")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fs, ok := upstream.(*blobs.FileBlobstore); !ok || fs.Dir != "/var/lib/checkpoints" {
		t.Errorf("unexpected upstream %#v", upstream)
	}

	if upstream, err := openUpstream(""); err != nil || upstream != nil {
		t.Errorf("expected no upstream, got %#v %v", upstream, err)
	}
	if _, err := openUpstream("gs:///prefix"); err == nil {
		t.Errorf("expected error for missing bucket")
	}
}
