// Package main loads a cleaned course CSV into the local course index.
//
// The source is a local path, or an object key when R2 is enabled; names
// ending in .zst are decompressed on the fly. With R2 enabled, an object
// lock keeps concurrent runs from interleaving upserts.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/garyellow/edu-advisor/internal/app"
	"github.com/garyellow/edu-advisor/internal/config"
	"github.com/garyellow/edu-advisor/internal/genai"
	"github.com/garyellow/edu-advisor/internal/ingest"
	"github.com/garyellow/edu-advisor/internal/logger"
	"github.com/garyellow/edu-advisor/internal/metrics"
	"github.com/garyellow/edu-advisor/internal/r2client"
	"github.com/garyellow/edu-advisor/internal/vectorstore"
)

const (
	lockKey = "locks/ingest.json"
	lockTTL = 10 * time.Minute
)

// CLI flags override the matching environment variables.
var (
	sourceFlag      = flag.String("source", "", "CSV path, or object key when R2 is enabled")
	batchFlag       = flag.Int("batch-size", 0, "Rows per embedding batch (0 = config default)")
	startFlag       = flag.Int("start-id", -1, "Id of the first row (-1 = config default)")
	concurrencyFlag = flag.Int("concurrency", 0, "Parallel embedding requests (0 = config default)")
)

func main() {
	flag.Parse()
	if *sourceFlag != "" {
		_ = os.Setenv(config.EnvIngestSource, *sourceFlag)
	}

	cfg, err := config.LoadForMode(config.IngestMode)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *batchFlag > 0 {
		cfg.IngestBatchSize = *batchFlag
	}
	if *startFlag >= 0 {
		cfg.IngestStartID = *startFlag
	}
	if *concurrencyFlag > 0 {
		cfg.IngestConcurrency = *concurrencyFlag
	}

	log := logger.New(cfg.LogLevel).WithModule("ingest_cli")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Error("Ingestion failed")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	var remote *r2client.Client
	if cfg.R2Enabled {
		var err error
		remote, err = r2client.New(ctx, r2client.Config{
			AccountID:   cfg.R2AccountID,
			AccessKeyID: cfg.R2AccessKeyID,
			SecretKey:   cfg.R2SecretAccessKey,
			BucketName:  cfg.R2BucketName,
		})
		if err != nil {
			return err
		}

		lock := r2client.NewLock(remote, lockKey, lockTTL)
		ok, err := lock.Acquire(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("another ingestion run holds the lock")
		}
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if err := lock.Release(releaseCtx); err != nil {
				log.WithError(err).Warn("Failed to release ingestion lock")
			}
		}()

		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(ctx)
		defer cancel()
		go lock.KeepAlive(ctx, lockTTL/3, func() {
			log.Error("Ingestion lock was taken over, stopping")
			cancel()
		})
		log.WithField("owner", lock.Owner()).WithField("bucket", remote.Bucket()).Info("Ingestion lock acquired")
	}

	table, err := readTable(ctx, cfg, remote)
	if err != nil {
		return err
	}

	embedder, err := genai.NewEmbedder(ctx, app.BuildEmbeddingConfig(cfg))
	if err != nil {
		return fmt.Errorf("embedder: %w", err)
	}

	index, err := vectorstore.Open(cfg.VectorPath(), cfg.VectorCompress, log)
	if err != nil {
		return fmt.Errorf("vector store: %w", err)
	}

	m := metrics.New(prometheus.NewRegistry())
	metrics.InitGlobal(m)

	in := ingest.New(embedder, index, ingest.Config{
		Collection:   cfg.CollectionName,
		BatchSize:    cfg.IngestBatchSize,
		StartID:      cfg.IngestStartID,
		Concurrency:  cfg.IngestConcurrency,
		BatchTimeout: config.IngestBatchTimeout,
	}, m, log)

	start := time.Now()
	res, err := in.Run(ctx, table)
	if err != nil {
		return err
	}

	log.WithFields(map[string]any{
		"rows":        res.Rows,
		"batches":     res.Batches,
		"vector_size": res.VectorSize,
		"total":       index.Count(cfg.CollectionName),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Course index updated")
	fmt.Println("Ingested " + strconv.Itoa(res.Rows) + " courses into " + cfg.CollectionName)
	return nil
}

func readTable(ctx context.Context, cfg *config.Config, remote *r2client.Client) (*ingest.Table, error) {
	ctx, cancel := context.WithTimeout(ctx, config.R2Download)
	defer cancel()

	// A nil *r2client.Client must not become a non-nil interface.
	var opener ingest.ObjectOpener
	if remote != nil {
		opener = remote
	}

	src, err := ingest.OpenSource(ctx, cfg.IngestSource, opener)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	table, err := ingest.ReadTable(src)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", cfg.IngestSource, err)
	}
	return table, nil
}
