// Package checkpoint saves and restores MLP parameters as content-addressed
// blobs.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"slices"
	"time"

	"k8s.io/klog/v2"

	"k8s.io/examples/AI/scalargrad/pkg/blobs"
	"k8s.io/examples/AI/scalargrad/pkg/engine"
	"k8s.io/examples/AI/scalargrad/pkg/nn"
)

type Checkpoint struct {
	Inputs     int       `json:"inputs"`
	Outputs    []int     `json:"outputs"`
	Step       int       `json:"step"`
	Parameters []float64 `json:"parameters"`
}

// FromModel captures the current parameter values of m.
func FromModel(m *nn.MLP, step int) *Checkpoint {
	params := m.Parameters()
	c := &Checkpoint{
		Inputs:     m.Inputs(),
		Outputs:    m.Sizes(),
		Step:       step,
		Parameters: make([]float64, len(params)),
	}
	for i, p := range params {
		c.Parameters[i] = p.Data()
	}
	return c
}

// Restore overwrites the parameters of m, which must have the same shape.
func (c *Checkpoint) Restore(m *nn.MLP) error {
	if m.Inputs() != c.Inputs || !slices.Equal(m.Sizes(), c.Outputs) {
		return fmt.Errorf("checkpoint shape %d->%v does not match model %d->%v", c.Inputs, c.Outputs, m.Inputs(), m.Sizes())
	}
	params := m.Parameters()
	if len(params) != len(c.Parameters) {
		return fmt.Errorf("checkpoint has %d parameters, model has %d", len(c.Parameters), len(params))
	}
	for i, p := range params {
		p.SetData(c.Parameters[i])
		p.ZeroGrad()
	}
	return nil
}

// Build creates a model of the checkpoint's shape in g and restores it.
func (c *Checkpoint) Build(g *engine.Graph) (*nn.MLP, error) {
	// initial values are overwritten by Restore
	m := nn.NewMLP(g, rand.New(rand.NewSource(0)), c.Inputs, c.Outputs)
	if err := c.Restore(m); err != nil {
		return nil, err
	}
	return m, nil
}

// WriteFile writes c as JSON to path and returns its blob identity.
func WriteFile(path string, c *Checkpoint) (blobs.BlobInfo, error) {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return blobs.BlobInfo{}, fmt.Errorf("encoding checkpoint: %w", err)
	}
	if err := os.WriteFile(path, b, 0644); err != nil {
		return blobs.BlobInfo{}, fmt.Errorf("writing checkpoint %q: %w", path, err)
	}
	return blobs.HashFile(path)
}

func ReadFile(path string) (*Checkpoint, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint %q: %w", path, err)
	}
	c := &Checkpoint{}
	if err := json.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("decoding checkpoint %q: %w", path, err)
	}
	return c, nil
}

// Publish writes c to a temp file and uploads it to store.
func Publish(ctx context.Context, store blobs.Blobstore, c *Checkpoint) (blobs.BlobInfo, error) {
	dir, err := os.MkdirTemp("", "checkpoint")
	if err != nil {
		return blobs.BlobInfo{}, fmt.Errorf("creating temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	p := filepath.Join(dir, "checkpoint.json")
	info, err := WriteFile(p, c)
	if err != nil {
		return blobs.BlobInfo{}, err
	}
	if err := store.Upload(ctx, p, info); err != nil {
		return blobs.BlobInfo{}, fmt.Errorf("uploading checkpoint: %w", err)
	}
	return info, nil
}

type Loader struct {
	// Reader is the interface to fetch blobs
	Reader blobs.BlobReader

	// MaxDownloadAttempts is the number of times to attempt a download before failing
	MaxDownloadAttempts int

	// RetryInterval is the wait between attempts.
	RetryInterval time.Duration
}

// Fetch downloads the checkpoint identified by info to destPath, retrying
// transient failures, and decodes it. A missing blob is not retried.
func (l *Loader) Fetch(ctx context.Context, info blobs.BlobInfo, destPath string) (*Checkpoint, error) {
	log := klog.FromContext(ctx)

	attempt := 0
	for {
		attempt++

		err := l.Reader.Download(ctx, info, destPath)
		if err == nil {
			break
		}

		if attempt >= l.MaxDownloadAttempts || errors.Is(err, os.ErrNotExist) {
			return nil, err
		}

		log.Error(err, "downloading checkpoint, will retry", "hash", info.Hash, "attempt", attempt)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.RetryInterval):
		}
	}

	got, err := blobs.HashFile(destPath)
	if err != nil {
		return nil, err
	}
	if got.Hash != info.Hash {
		return nil, fmt.Errorf("checkpoint hash mismatch: expected %s, got %s", info.Hash, got.Hash)
	}
	return ReadFile(destPath)
}
