// Package partition splits per-payload upload outcomes into succeeded and
// failed sets and maintains the durable uploaded / not-uploaded stores. The
// uploaded log only grows across runs; the not-uploaded log and its retry
// collection always reflect the most recent failure set only.
package partition

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/clinicalconnectome/phiup/internal/collection"
	"github.com/clinicalconnectome/phiup/internal/registry"
	"github.com/clinicalconnectome/phiup/internal/schema"
)

// Stores locates the durable outcome stores for one entity kind.
type Stores struct {
	// UploadedDir holds the append-only uploaded TSV log.
	UploadedDir string
	// NotUploadedDir holds the replace-on-write not-uploaded TSV log and the
	// resubmittable retry collection.
	NotUploadedDir string
	// Dataset names the retry collection file.
	Dataset string

	Logger *slog.Logger
}

// Summary reports the per-kind partition counts. Persistence failures are
// logged and never affect these counts.
type Summary struct {
	Succeeded int
	Failed    int
}

// Partition splits payloads by their parallel outcomes' success flags,
// appends the succeeded set to the uploaded log, and replaces the
// not-uploaded log and retry collection with the failed set. When the failed
// set is empty neither not-uploaded store is touched. The two sequences must
// be index-aligned and of equal length.
func Partition(kind schema.Kind, payloads []collection.Payload, outcomes []registry.Outcome, stores Stores) (Summary, error) {
	if len(payloads) != len(outcomes) {
		return Summary{}, fmt.Errorf("payload/outcome length mismatch: %d vs %d",
			len(payloads), len(outcomes))
	}
	log := stores.Logger
	if log == nil {
		log = slog.Default()
	}

	var succeeded, failed []collection.Payload
	for i, out := range outcomes {
		if out.OK {
			succeeded = append(succeeded, payloads[i])
		} else {
			failed = append(failed, payloads[i])
		}
	}

	if len(succeeded) > 0 {
		path := filepath.Join(stores.UploadedDir, kind.Basename()+"_uploaded.tsv")
		if err := appendLog(path, kind, succeeded); err != nil {
			log.Error("could not update uploaded log",
				"path", path,
				"error", err,
				"component", "partition",
			)
		}
	}

	if len(failed) > 0 {
		logPath := filepath.Join(stores.NotUploadedDir, kind.Basename()+"_not_uploaded.tsv")
		if err := replaceLog(logPath, kind, failed); err != nil {
			log.Error("could not write not-uploaded log",
				"path", logPath,
				"error", err,
				"component", "partition",
			)
		}
		colPath := collection.Path(stores.NotUploadedDir, stores.Dataset, kind)
		if err := writeRetryCollection(colPath, kind, failed); err != nil {
			log.Error("could not write retry collection",
				"path", colPath,
				"error", err,
				"component", "partition",
			)
		}
	}

	return Summary{Succeeded: len(succeeded), Failed: len(failed)}, nil
}

// appendLog concatenates rows after any existing readable log with a matching
// header. A prior log that cannot be read or whose columns differ is dropped
// in favor of the new rows; losing history beats losing the current batch.
func appendLog(path string, kind schema.Kind, payloads []collection.Payload) error {
	header := kind.RequiredFields()

	var prior [][]string
	if existing, err := readLog(path); err == nil && len(existing) > 0 && equalRow(existing[0], header) {
		prior = existing[1:]
	}

	rows := make([][]string, 0, len(prior)+len(payloads)+1)
	rows = append(rows, header)
	rows = append(rows, prior...)
	for _, pl := range payloads {
		rows = append(rows, payloadRow(pl, header))
	}
	return writeLog(path, rows)
}

// replaceLog overwrites the log with exactly the given payloads.
func replaceLog(path string, kind schema.Kind, payloads []collection.Payload) error {
	header := kind.RequiredFields()
	rows := make([][]string, 0, len(payloads)+1)
	rows = append(rows, header)
	for _, pl := range payloads {
		rows = append(rows, payloadRow(pl, header))
	}
	return writeLog(path, rows)
}

// writeRetryCollection persists the failed payloads as a resubmittable
// collection. The raw bodies are carried over verbatim and no login item is
// added: the retry pass authenticates on its own.
func writeRetryCollection(path string, kind schema.Kind, payloads []collection.Payload) error {
	items := make([]any, 0, len(payloads))
	for _, pl := range payloads {
		items = append(items, map[string]any{
			"name": kind.ItemName(),
			"request": map[string]any{
				"method": "POST",
				"body": map[string]any{
					"mode": "raw",
					"raw":  pl.Raw,
				},
			},
		})
	}
	col := collection.Collection{Items: items}
	return col.Write(path)
}

func readLog(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.Comma = '\t'
	return r.ReadAll()
}

func writeLog(path string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create log: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = '\t'
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

func payloadRow(pl collection.Payload, header []string) []string {
	row := make([]string, len(header))
	for i, col := range header {
		row[i] = formatCell(pl.Get(col))
	}
	return row
}

// formatCell renders a payload value as a TSV cell. Null becomes the empty
// cell, matching how the values read back in. Plain decimal only: a large
// numeric ID must not come back as scientific notation.
func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

func equalRow(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
