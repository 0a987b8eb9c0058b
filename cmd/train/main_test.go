package main

import (
	"testing"

	"k8s.io/examples/AI/scalargrad/pkg/blobs"
)

func TestParseSizes(t *testing.T) {
	sizes, err := parseSizes("16, 8,4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sizes) != 3 || sizes[0] != 16 || sizes[1] != 8 || sizes[2] != 4 {
		t.Errorf("unexpected sizes %v", sizes)
	}

	if sizes, err := parseSizes(""); err != nil || len(sizes) != 0 {
		t.Errorf("expected no hidden layers, got %v %v", sizes, err)
	}
	for _, bad := range []string{"a", "4,-1", "0"} {
		if _, err := parseSizes(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestOpenBlobstore(t *testing.T) {
	store, err := openBlobstore("gs://bucket/models")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	gcs, ok := store.(*blobs.GCSBlobstore)
	if !ok || gcs.Bucket != "bucket" || gcs.Prefix != "models/" {
		t.Errorf("unexpected store %#v", store)
	}

	store, err = openBlobstore("/tmp/checkpoints")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fs, ok := store.(*blobs.FileBlobstore); !ok || fs.Dir != "/tmp/checkpoints" {
		t.Errorf("unexpected store %#v", store)
	}

	if store, err := openBlobstore(""); err != nil || store != nil {
		t.Errorf("expected no store, got %#v %v", store, err)
	}
	if _, err := openBlobstore("gs://"); err == nil {
		t.Errorf("expected error for empty bucket")
	}
}
