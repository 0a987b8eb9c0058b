package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"k8s.io/examples/AI/scalargrad/pkg/blobs"
	"k8s.io/examples/AI/scalargrad/pkg/checkpoint"
	"k8s.io/examples/AI/scalargrad/pkg/engine"
	"k8s.io/examples/AI/scalargrad/pkg/history"
	"k8s.io/examples/AI/scalargrad/pkg/nn"
	"k8s.io/examples/AI/scalargrad/pkg/train"
	"k8s.io/klog/v2"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

type options struct {
	Steps        int
	LearningRate float64
	Decay        bool
	Hidden       string
	Samples      int
	Noise        float64
	Seed         int64
	Loss         string
	Alpha        float64

	HistoryDB string
	RunName   string

	// CheckpointStore is gs://<bucket>[/prefix] or a local directory.
	CheckpointStore string
	// InitCheckpoint is the hash of a checkpoint to start from.
	InitCheckpoint string
	// CheckpointServer is the base URL of a checkpoint-store used to fetch
	// InitCheckpoint; CheckpointStore is used when empty.
	CheckpointServer string
}

func run(ctx context.Context) error {
	opt := options{
		Steps:        100,
		LearningRate: 1.0,
		Decay:        true,
		Hidden:       "16,16",
		Samples:      100,
		Noise:        0.1,
		Seed:         1337,
		Loss:         "max-margin",
		Alpha:        1e-4,
		RunName:      "moons",

		HistoryDB:        os.Getenv("HISTORY_DB"),
		CheckpointStore:  os.Getenv("CHECKPOINT_STORE"),
		CheckpointServer: os.Getenv("CHECKPOINT_SERVER"),
	}

	flag.IntVar(&opt.Steps, "steps", opt.Steps, "number of optimization steps")
	flag.Float64Var(&opt.LearningRate, "learning-rate", opt.LearningRate, "initial learning rate")
	flag.BoolVar(&opt.Decay, "decay", opt.Decay, "decay the learning rate linearly to 10% over the run")
	flag.StringVar(&opt.Hidden, "hidden", opt.Hidden, "comma-separated hidden layer sizes")
	flag.IntVar(&opt.Samples, "samples", opt.Samples, "number of two-moons training examples")
	flag.Float64Var(&opt.Noise, "noise", opt.Noise, "standard deviation of the dataset noise")
	flag.Int64Var(&opt.Seed, "seed", opt.Seed, "random seed for data and initialization")
	flag.StringVar(&opt.Loss, "loss", opt.Loss, "loss function (max-margin|mse)")
	flag.Float64Var(&opt.Alpha, "alpha", opt.Alpha, "L2 regularization strength for max-margin loss")
	flag.StringVar(&opt.HistoryDB, "history-db", opt.HistoryDB, "SQLite database to record the run in")
	flag.StringVar(&opt.RunName, "run-name", opt.RunName, "name of the run in the history database")
	flag.StringVar(&opt.CheckpointStore, "checkpoint-store", opt.CheckpointStore, "gs://bucket[/prefix] or directory to publish the trained checkpoint to")
	flag.StringVar(&opt.InitCheckpoint, "init-checkpoint", opt.InitCheckpoint, "hash of a checkpoint to initialize the model from")
	flag.StringVar(&opt.CheckpointServer, "checkpoint-server", opt.CheckpointServer, "base url of a checkpoint-store to fetch -init-checkpoint from")

	klog.InitFlags(nil)
	flag.Parse()

	log := klog.FromContext(ctx)

	hidden, err := parseSizes(opt.Hidden)
	if err != nil {
		return fmt.Errorf("parsing -hidden: %w", err)
	}
	var loss train.LossFunc
	switch opt.Loss {
	case "max-margin":
		loss = train.MaxMarginLoss(opt.Alpha)
	case "mse":
		loss = train.MSELoss
	default:
		return fmt.Errorf("unknown loss %q (expected max-margin or mse)", opt.Loss)
	}

	store, err := openBlobstore(opt.CheckpointStore)
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(opt.Seed))
	data := train.Moons(rng, opt.Samples, opt.Noise)

	g := engine.NewGraph()
	model := nn.NewMLP(g, rng, 2, append(hidden, 1))

	startStep := 0
	if opt.InitCheckpoint != "" {
		c, err := fetchCheckpoint(ctx, opt, store)
		if err != nil {
			return err
		}
		if err := c.Restore(model); err != nil {
			return fmt.Errorf("restoring checkpoint %s: %w", opt.InitCheckpoint, err)
		}
		startStep = c.Step
		log.Info("restored checkpoint", "hash", opt.InitCheckpoint, "step", c.Step)
	}

	trainer := &train.Trainer{
		Graph:        g,
		Model:        model,
		Loss:         loss,
		Data:         data,
		Steps:        opt.Steps,
		LearningRate: opt.LearningRate,
		Decay:        opt.Decay,
	}

	if opt.HistoryDB != "" {
		db, err := history.Open(ctx, opt.HistoryDB)
		if err != nil {
			return err
		}
		defer db.Close()

		historyRun, err := db.StartRun(ctx, opt.RunName, len(model.Parameters()))
		if err != nil {
			return err
		}
		trainer.Recorder = historyRun
	}

	last, err := trainer.Run(ctx)
	if err != nil {
		return fmt.Errorf("training: %w", err)
	}
	fmt.Printf("step %d loss %.6f accuracy %.1f%%\n", last.Step, last.Loss, last.Accuracy*100)

	if store != nil {
		info, err := checkpoint.Publish(ctx, store, checkpoint.FromModel(model, startStep+opt.Steps))
		if err != nil {
			return fmt.Errorf("publishing checkpoint: %w", err)
		}
		log.Info("published checkpoint", "hash", info.Hash)
		fmt.Printf("checkpoint %s\n", info.Hash)
	}

	return nil
}

func parseSizes(s string) ([]int, error) {
	var sizes []int
	for _, token := range strings.Split(s, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		n, err := strconv.Atoi(token)
		if err != nil {
			return nil, fmt.Errorf("invalid layer size %q: %w", token, err)
		}
		if n <= 0 {
			return nil, fmt.Errorf("layer size must be positive, got %d", n)
		}
		sizes = append(sizes, n)
	}
	return sizes, nil
}

func openBlobstore(location string) (blobs.Blobstore, error) {
	switch {
	case location == "":
		return nil, nil
	case strings.HasPrefix(location, "gs://"):
		bucket, prefix, _ := strings.Cut(strings.TrimPrefix(location, "gs://"), "/")
		if bucket == "" {
			return nil, fmt.Errorf("checkpoint store %q has no bucket", location)
		}
		if prefix != "" && !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
		return &blobs.GCSBlobstore{Bucket: bucket, Prefix: prefix}, nil
	default:
		if strings.HasPrefix(location, "~/") {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("getting home directory: %w", err)
			}
			location = filepath.Join(homeDir, strings.TrimPrefix(location, "~/"))
		}
		return &blobs.FileBlobstore{Dir: location}, nil
	}
}

func fetchCheckpoint(ctx context.Context, opt options, store blobs.Blobstore) (*checkpoint.Checkpoint, error) {
	var reader blobs.BlobReader
	if opt.CheckpointServer != "" {
		u, err := url.Parse(opt.CheckpointServer)
		if err != nil {
			return nil, fmt.Errorf("parsing checkpoint server url %q: %w", opt.CheckpointServer, err)
		}
		reader = &blobs.CheckpointServer{BaseURL: u}
	} else if store != nil {
		reader = store
	} else {
		return nil, fmt.Errorf("-init-checkpoint requires -checkpoint-server or -checkpoint-store")
	}

	loader := &checkpoint.Loader{
		Reader:              reader,
		MaxDownloadAttempts: 5,
		RetryInterval:       5 * time.Second,
	}
	dest := filepath.Join(os.TempDir(), "checkpoint-"+opt.InitCheckpoint+".json")
	c, err := loader.Fetch(ctx, blobs.BlobInfo{Hash: opt.InitCheckpoint}, dest)
	if err != nil {
		return nil, fmt.Errorf("fetching checkpoint %s: %w", opt.InitCheckpoint, err)
	}
	return c, nil
}
