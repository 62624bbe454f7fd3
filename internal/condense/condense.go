// Package condense collapses a merged linkage table into one record per
// cluster.
//
// Rows are grouped by Cluster ID; every group and every unclustered row
// becomes a single record keyed by a fresh uuid. The first row of a group is
// the template, and later rows contribute distinct values to the merge
// columns joined with "; ".
package condense

import (
	"cmp"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"reclink/internal/assemble"
	"reclink/internal/failure"
	"reclink/internal/fileutil"
	"reclink/internal/logging"
)

const (
	idColumn   = "uuid"
	valueJoint = "; "
)

// Options configures condensing.
type Options struct {
	DropColumns []string
	// MergeColumns limits merging to these columns; empty merges all.
	MergeColumns []string
	NewID        func() string
	Logger       *slog.Logger
}

// Result is a condensed table.
type Result struct {
	Header      []string
	Records     [][]string
	Clusters    int
	Unclustered int
}

type group struct {
	clusterID int
	clustered bool
	rows      [][]string
}

// Condense groups rows by the Cluster ID column. Clusters come out in
// ascending id order, followed by unclustered rows in input order.
func Condense(header []string, rows [][]string, opts Options) (*Result, error) {
	clusterCol := slices.Index(header, assemble.ColumnClusterID)
	if clusterCol < 0 {
		return nil, failure.Wrap(failure.ErrMalformedInput, "condense", "read header", fmt.Sprintf("missing %q column", assemble.ColumnClusterID), nil)
	}
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	groups, err := groupRows(clusterCol, rows)
	if err != nil {
		return nil, err
	}

	drop := make(map[string]struct{}, len(opts.DropColumns)+1)
	drop[assemble.ColumnClusterID] = struct{}{}
	for _, name := range opts.DropColumns {
		drop[name] = struct{}{}
	}
	var keep []int
	out := &Result{Header: []string{idColumn}}
	for i, name := range header {
		if _, skip := drop[name]; skip {
			continue
		}
		keep = append(keep, i)
		out.Header = append(out.Header, name)
	}
	merge := make([]bool, len(keep))
	for k, col := range keep {
		merge[k] = len(opts.MergeColumns) == 0 || slices.Contains(opts.MergeColumns, header[col])
	}

	for _, g := range groups {
		out.Records = append(out.Records, condenseGroup(g.rows, keep, merge, newID()))
		if g.clustered {
			out.Clusters++
		} else {
			out.Unclustered++
		}
	}
	return out, nil
}

func groupRows(clusterCol int, rows [][]string) ([]group, error) {
	var clustered, loose []group
	index := make(map[int]int)
	for i, row := range rows {
		if clusterCol >= len(row) {
			return nil, failure.Wrap(failure.ErrMalformedInput, "condense", "read row", fmt.Sprintf("row %d is missing the %s column", i+1, assemble.ColumnClusterID), nil)
		}
		raw := strings.TrimSpace(row[clusterCol])
		if raw == "" {
			loose = append(loose, group{rows: [][]string{row}})
			continue
		}
		id, err := strconv.Atoi(raw)
		if err != nil {
			return nil, failure.Wrap(failure.ErrMalformedInput, "condense", "read row", fmt.Sprintf("row %d has invalid cluster id %q", i+1, raw), nil)
		}
		if at, ok := index[id]; ok {
			clustered[at].rows = append(clustered[at].rows, row)
			continue
		}
		index[id] = len(clustered)
		clustered = append(clustered, group{clusterID: id, clustered: true, rows: [][]string{row}})
	}
	slices.SortStableFunc(clustered, func(a, b group) int { return cmp.Compare(a.clusterID, b.clusterID) })
	return append(clustered, loose...), nil
}

func condenseGroup(rows [][]string, keep []int, merge []bool, id string) []string {
	record := make([]string, 1, len(keep)+1)
	record[0] = id
	for k, col := range keep {
		template := cell(rows[0], col)
		value := template
		if merge[k] {
			seen := map[string]struct{}{}
			if template != "" {
				seen[template] = struct{}{}
			}
			for _, row := range rows[1:] {
				v := cell(row, col)
				if v == "" {
					continue
				}
				if _, dup := seen[v]; dup {
					continue
				}
				seen[v] = struct{}{}
				if value == "" {
					value = v
				} else {
					value += valueJoint + v
				}
			}
		}
		record = append(record, value)
	}
	return record
}

func cell(row []string, col int) string {
	if col < len(row) {
		return row[col]
	}
	return ""
}

// ReadTable reads a merged CSV table.
func ReadTable(r io.Reader) ([]string, [][]string, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, failure.Wrap(failure.ErrMalformedInput, "condense", "read header", "file is empty", nil)
	}
	if err != nil {
		return nil, nil, failure.Wrap(failure.ErrMalformedInput, "condense", "read header", "", err)
	}
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, nil, failure.Wrap(failure.ErrMalformedInput, "condense", "read rows", "", err)
	}
	return header, rows, nil
}

// File condenses the merged table at inPath. The result is written
// atomically to outPath, or to w when outPath is empty.
func File(ctx context.Context, inPath, outPath string, w io.Writer, opts Options) (*Result, error) {
	logger := logging.NewComponentLogger(opts.Logger, "condense")
	file, err := os.Open(inPath)
	if err != nil {
		return nil, fmt.Errorf("open merged table: %w", err)
	}
	header, rows, err := ReadTable(file)
	file.Close()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := Condense(header, rows, opts)
	if err != nil {
		return nil, err
	}

	write := func(dst io.Writer) error {
		cw := csv.NewWriter(dst)
		if err := cw.Write(result.Header); err != nil {
			return err
		}
		if err := cw.WriteAll(result.Records); err != nil {
			return err
		}
		return cw.Error()
	}
	if outPath != "" {
		err = fileutil.WriteFileAtomic(outPath, 0o644, write)
	} else {
		err = write(w)
	}
	if err != nil {
		return nil, fmt.Errorf("write condensed table: %w", err)
	}

	logger.Info("table condensed",
		logging.String(logging.FieldSource, inPath),
		logging.Int("input_rows", len(rows)),
		logging.Int("records", len(result.Records)),
		logging.Int("clusters", result.Clusters),
		logging.Int("unclustered", result.Unclustered),
	)
	return result, nil
}
