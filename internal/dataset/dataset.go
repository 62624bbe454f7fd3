// Package dataset loads source CSV files into normalized linkage datasets.
package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"reclink/internal/failure"
	"reclink/internal/linkage"
	"reclink/internal/logging"
	"reclink/internal/normalize"
)

// Source names one input file.
type Source struct {
	Path string
	// Name is the source identifier used in RecordIDs. Empty means the
	// cleaned path.
	Name string
}

// Options controls decoding and schema checks.
type Options struct {
	Encoding string
	// Fields must all appear in the header.
	Fields []linkage.FieldSpec
	Logger *slog.Logger
}

const cancelCheckInterval = 1024

// Load reads src into a Dataset.
func Load(ctx context.Context, src Source, opts Options) (*linkage.Dataset, error) {
	name := src.Name
	if name == "" {
		name = filepath.Clean(src.Path)
	}
	file, err := os.Open(src.Path)
	if err != nil {
		return nil, failure.Wrap(nil, "load", "open", name, err)
	}
	defer file.Close()
	return Read(ctx, name, file, opts)
}

// Read parses CSV from r into a Dataset identified by name.
func Read(ctx context.Context, name string, r io.Reader, opts Options) (*linkage.Dataset, error) {
	logger := logging.NewComponentLogger(opts.Logger, "loader")

	decoded, err := decodingReader(r, opts.Encoding)
	if err != nil {
		return nil, failure.Wrap(failure.ErrConfiguration, "load", "decode", name, err)
	}
	reader := csv.NewReader(decoded)
	reader.FieldsPerRecord = 0

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, failure.Wrap(failure.ErrMalformedInput, "load", "read header", name+": file is empty", nil)
	}
	if err != nil {
		return nil, failure.Wrap(failure.ErrMalformedInput, "load", "read header", name, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	if err := checkHeader(name, header, opts.Fields); err != nil {
		return nil, err
	}

	ds := linkage.NewDataset(name, header)
	for row := 0; ; row++ {
		if row%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		values, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, failure.Wrap(failure.ErrMalformedInput, "load", fmt.Sprintf("read row %d", row), name, err)
		}
		record := make(map[string]linkage.Value, len(header))
		for i, column := range header {
			if text, ok := normalize.Field(values[i]); ok {
				record[column] = linkage.Present(text)
			} else {
				record[column] = linkage.Absent()
			}
		}
		ds.Append(linkage.NewRecord(record), values)
	}

	logger.Info("dataset loaded",
		logging.String(logging.FieldSource, name),
		logging.Int("rows", ds.Len()),
		logging.Int("columns", len(header)),
		logging.String(logging.FieldEventType, "dataset_loaded"),
	)
	return ds, nil
}

func checkHeader(name string, header []string, fields []linkage.FieldSpec) error {
	seen := make(map[string]struct{}, len(header))
	for _, column := range header {
		if _, dup := seen[column]; dup {
			return failure.Wrap(failure.ErrMalformedInput, "load", "read header", fmt.Sprintf("%s: duplicate column %q", name, column), nil)
		}
		seen[column] = struct{}{}
	}
	var missing []string
	for _, spec := range fields {
		if _, ok := seen[spec.Field]; !ok {
			missing = append(missing, spec.Field)
		}
	}
	if len(missing) > 0 {
		return failure.Wrap(failure.ErrFieldSpecMismatch, "load", "check fields", fmt.Sprintf("%s: missing column(s) %s", name, strings.Join(missing, ", ")), nil)
	}
	return nil
}
