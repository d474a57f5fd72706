// Package pipeline orchestrates the two phases of a transfer: building
// collection files from tabular input, and uploading persisted collections to
// the registry. Both the build and run commands call into the same build
// function here.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/clinicalconnectome/phiup/internal/archive"
	"github.com/clinicalconnectome/phiup/internal/collection"
	"github.com/clinicalconnectome/phiup/internal/config"
	"github.com/clinicalconnectome/phiup/internal/schema"
	"github.com/clinicalconnectome/phiup/internal/tabular"
)

// loginFragment names the fixed sign-in fragment appended to every
// collection.
const loginFragment = "Login"

// BuildOptions selects the input tables and batch-wide settings for a build.
type BuildOptions struct {
	Dataset string

	// Input table paths per kind; empty means the kind is not built.
	PatientTable     string
	AcquisitionTable string
	FeatureTable     string

	// NTest caps the number of rows per collection when positive.
	NTest int

	// Batch-wide patient flag overrides.
	Behavioral bool
	Clinical   bool
}

// tablePath returns the input table for a kind, or "" when absent.
func (o BuildOptions) tablePath(kind schema.Kind) string {
	switch kind {
	case schema.KindPatient:
		return o.PatientTable
	case schema.KindAcquisition:
		return o.AcquisitionTable
	case schema.KindFeature:
		return o.FeatureTable
	}
	return ""
}

// hasTables reports whether any input table was given.
func (o BuildOptions) hasTables() bool {
	return o.PatientTable != "" || o.AcquisitionTable != "" || o.FeatureTable != ""
}

// BuildResult reports which kinds built and which failed. Each kind's build
// is independent: one kind's failure never blocks the others.
type BuildResult struct {
	Built  []schema.Kind
	Failed map[schema.Kind]error
}

// Build produces one collection file per requested kind under
// {root}/API/{dataset}_add_{kind}_API.json, archiving each written file when
// an archive is configured. Template problems that affect every kind (an
// unreadable document, a missing login fragment) abort the whole build;
// per-kind validation and fragment errors are recorded in the result and the
// remaining kinds proceed.
func Build(ctx context.Context, cfg *config.Config, opts BuildOptions, log *slog.Logger) (*BuildResult, error) {
	tmpl, err := collection.LoadTemplate(cfg.Output.Template)
	if err != nil {
		return nil, err
	}
	login, err := tmpl.Fragment(loginFragment)
	if err != nil {
		return nil, err
	}
	arch, err := archive.NewUploader(cfg.Archive)
	if err != nil {
		return nil, fmt.Errorf("configure collection archive: %w", err)
	}

	apiDir := filepath.Join(cfg.Output.Root, "API")
	result := &BuildResult{Failed: make(map[schema.Kind]error)}

	for _, kind := range schema.Kinds() {
		tablePath := opts.tablePath(kind)
		if tablePath == "" {
			continue
		}
		if err := buildKind(ctx, kind, tablePath, tmpl, login, arch, apiDir, opts, log); err != nil {
			log.Error("build failed",
				"kind", kind,
				"error", err,
				"component", "build",
			)
			result.Failed[kind] = err
			continue
		}
		result.Built = append(result.Built, kind)
	}
	return result, nil
}

func buildKind(
	ctx context.Context,
	kind schema.Kind,
	tablePath string,
	tmpl *collection.Template,
	login collection.Fragment,
	arch archive.Uploader,
	apiDir string,
	opts BuildOptions,
	log *slog.Logger,
) error {
	rows, err := tabular.ReadTable(tablePath)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		log.Info("no rows, nothing to build",
			"kind", kind,
			"table", tablePath,
			"component", "build",
		)
		return nil
	}
	log.Info("building collection",
		"kind", kind,
		"rows", len(rows),
		"component", "build",
	)

	records, warnings, err := schema.NormalizeBatch(kind, rows, schema.Options{
		Behavioral: opts.Behavioral,
		Clinical:   opts.Clinical,
	})
	if err != nil {
		return err
	}
	for _, w := range warnings {
		log.Warn("adding missing column",
			"kind", w.Kind,
			"column", w.Column,
			"component", "build",
		)
	}

	frag, err := tmpl.Fragment(kind.ItemName())
	if err != nil {
		return err
	}
	col, err := collection.Build(frag, login, records, opts.NTest, "")
	if err != nil {
		return err
	}

	outPath := collection.Path(apiDir, opts.Dataset, kind)
	if err := col.Write(outPath); err != nil {
		return err
	}
	log.Info("wrote collection",
		"kind", kind,
		"path", outPath,
		"items", len(col.Items),
		"component", "build",
	)

	// Archival is best-effort; the local file is the source of truth.
	if err := arch.Upload(ctx, opts.Dataset, filepath.Base(outPath), outPath); err != nil {
		log.Error("could not archive collection",
			"path", outPath,
			"error", err,
			"component", "build",
		)
	}
	return nil
}
