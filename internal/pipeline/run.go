package pipeline

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/clinicalconnectome/phiup/internal/collection"
	"github.com/clinicalconnectome/phiup/internal/config"
	"github.com/clinicalconnectome/phiup/internal/history"
	"github.com/clinicalconnectome/phiup/internal/partition"
	"github.com/clinicalconnectome/phiup/internal/registry"
	"github.com/clinicalconnectome/phiup/internal/schema"
)

// RunOptions configures an upload run.
type RunOptions struct {
	BuildOptions

	// SkipBuild assumes the collection files already exist under {root}/API.
	SkipBuild bool
	// RetryFailed reads collections from the not-uploaded store instead, so a
	// retry pass resubmits only the most recent failure set.
	RetryFailed bool
}

// KindSummary is the per-kind result of an upload run.
type KindSummary struct {
	Kind      schema.Kind
	Total     int
	Succeeded int
	Failed    int
	// Skipped is true when no collection file existed for the kind.
	Skipped bool
}

// Run optionally builds, authenticates once, then uploads and partitions each
// kind sequentially: one kind finishes completely before the next begins.
// Authentication failure aborts before any upload attempt. A missing
// collection file skips its kind with a warning.
func Run(ctx context.Context, cfg *config.Config, opts RunOptions, log *slog.Logger) ([]KindSummary, error) {
	if !opts.SkipBuild && opts.hasTables() {
		if _, err := Build(ctx, cfg, opts.BuildOptions, log); err != nil {
			return nil, err
		}
	}

	apiDir := filepath.Join(cfg.Output.Root, "API")
	uploadedDir := filepath.Join(apiDir, "uploaded")
	notUploadedDir := filepath.Join(apiDir, "not_uploaded")
	sourceDir := apiDir
	if opts.RetryFailed {
		sourceDir = notUploadedDir
	}

	client, err := registry.Login(ctx, registry.Config{
		BaseURL:     cfg.Registry.BaseURL,
		Email:       cfg.Registry.Email,
		Password:    cfg.Registry.Password,
		Timeout:     time.Duration(cfg.Registry.Timeout),
		MaxRetries:  cfg.Upload.MaxRetries,
		BackoffBase: cfg.Upload.BackoffBase,
		Logger:      log,
	})
	if err != nil {
		return nil, err
	}

	ledger := openLedger(cfg, log)
	if ledger != nil {
		defer ledger.Close()
	}
	runID := history.NewRunID()

	var summaries []KindSummary
	for _, kind := range schema.Kinds() {
		file := collection.Path(sourceDir, opts.Dataset, kind)
		if _, err := os.Stat(file); err != nil {
			log.Warn("collection not found, skipping",
				"kind", kind,
				"path", file,
				"component", "run",
			)
			summaries = append(summaries, KindSummary{Kind: kind, Skipped: true})
			continue
		}

		payloads, err := collection.LoadPayloads(file, kind.ItemName())
		if err != nil {
			log.Error("could not load collection, skipping",
				"kind", kind,
				"path", file,
				"error", err,
				"component", "run",
			)
			summaries = append(summaries, KindSummary{Kind: kind, Skipped: true})
			continue
		}

		started := time.Now()
		log.Info("uploading",
			"kind", kind,
			"count", len(payloads),
			"component", "run",
		)

		outcomes := client.BulkUpload(ctx, kind.Endpoint(), payloads)

		summary, err := partition.Partition(kind, payloads, outcomes, partition.Stores{
			UploadedDir:    uploadedDir,
			NotUploadedDir: notUploadedDir,
			Dataset:        opts.Dataset,
			Logger:         log,
		})
		if err != nil {
			return summaries, err
		}

		summaries = append(summaries, KindSummary{
			Kind:      kind,
			Total:     len(payloads),
			Succeeded: summary.Succeeded,
			Failed:    summary.Failed,
		})
		log.Info("upload complete",
			"kind", kind,
			"succeeded", summary.Succeeded,
			"total", len(payloads),
			"component", "run",
		)

		if ledger != nil {
			err := ledger.RecordRun(ctx, history.RunRecord{
				RunID:      runID,
				Dataset:    opts.Dataset,
				Kind:       string(kind),
				Endpoint:   kind.Endpoint(),
				Total:      len(payloads),
				Succeeded:  summary.Succeeded,
				Failed:     summary.Failed,
				RetryMode:  opts.RetryFailed,
				StartedAt:  started,
				FinishedAt: time.Now(),
			})
			if err != nil {
				log.Warn("could not record run",
					"kind", kind,
					"error", err,
					"component", "run",
				)
			}
		}
	}
	return summaries, nil
}

// openLedger opens the run ledger when configured. The ledger is
// observational, so any failure here degrades to running without one.
func openLedger(cfg *config.Config, log *slog.Logger) *history.Ledger {
	if cfg.History.Path == "" {
		return nil
	}
	ledger, err := history.Open(cfg.History.Path)
	if err != nil {
		log.Warn("run ledger unavailable",
			"path", cfg.History.Path,
			"error", err,
			"component", "run",
		)
		return nil
	}
	return ledger
}
