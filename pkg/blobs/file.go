package blobs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"k8s.io/klog/v2"
)

// writeToFile copies src to destinationPath through a temp file in the same
// directory, so readers never observe a partial blob.
func writeToFile(ctx context.Context, src io.Reader, destinationPath string) (int64, error) {
	log := klog.FromContext(ctx)

	dir := filepath.Dir(destinationPath)
	tempFile, err := os.CreateTemp(dir, "download")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}

	shouldDeleteTempFile := true
	defer func() {
		if shouldDeleteTempFile {
			if err := os.Remove(tempFile.Name()); err != nil {
				log.Error(err, "removing temp file", "path", tempFile.Name())
			}
		}
	}()

	shouldCloseTempFile := true
	defer func() {
		if shouldCloseTempFile {
			if err := tempFile.Close(); err != nil {
				log.Error(err, "closing temp file", "path", tempFile.Name())
			}
		}
	}()

	n, err := io.Copy(tempFile, src)
	if err != nil {
		return n, fmt.Errorf("copying blob: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return n, fmt.Errorf("closing temp file: %w", err)
	}
	shouldCloseTempFile = false

	if err := os.Rename(tempFile.Name(), destinationPath); err != nil {
		return n, fmt.Errorf("renaming temp file: %w", err)
	}
	shouldDeleteTempFile = false

	return n, nil
}

// FileBlobstore keeps blobs as files named by hash in a local directory.
type FileBlobstore struct {
	Dir string
}

var _ Blobstore = (*FileBlobstore)(nil)

func (s *FileBlobstore) path(info BlobInfo) (string, error) {
	if !ValidHash(info.Hash) {
		return "", fmt.Errorf("invalid blob hash %q", info.Hash)
	}
	return filepath.Join(s.Dir, info.Hash), nil
}

func (s *FileBlobstore) Upload(ctx context.Context, sourcePath string, info BlobInfo) error {
	log := klog.FromContext(ctx)

	p, err := s.path(info)
	if err != nil {
		return err
	}
	if _, err := os.Stat(p); err == nil {
		log.Info("blob already exists", "path", p)
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("checking for blob %q: %w", p, err)
	}

	src, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("opening source file: %w", err)
	}
	defer src.Close()

	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return fmt.Errorf("creating blob directory %q: %w", s.Dir, err)
	}
	n, err := writeToFile(ctx, src, p)
	if err != nil {
		return fmt.Errorf("storing blob %q: %w", info.Hash, err)
	}
	log.Info("stored blob", "path", p, "bytes", n)
	return nil
}

func (s *FileBlobstore) Download(ctx context.Context, info BlobInfo, destinationPath string) error {
	p, err := s.path(info)
	if err != nil {
		return err
	}
	src, err := os.Open(p)
	if err != nil {
		// os.Open errors already satisfy errors.Is(err, os.ErrNotExist)
		return fmt.Errorf("opening blob %q: %w", info.Hash, err)
	}
	defer src.Close()

	if _, err := writeToFile(ctx, src, destinationPath); err != nil {
		return fmt.Errorf("copying blob %q: %w", info.Hash, err)
	}
	return nil
}
