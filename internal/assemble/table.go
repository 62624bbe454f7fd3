package assemble

import (
	"fmt"
	"strconv"

	"reclink/internal/failure"
	"reclink/internal/linkage"
)

// Annotation columns prepended to every output row.
const (
	ColumnClusterID  = "Cluster ID"
	ColumnLinkScore  = "Link Score"
	ColumnSourceFile = "source file"
)

// Annotation is the cluster a record belongs to.
type Annotation struct {
	ClusterID int
	Score     float64
}

// Row is one output row.
type Row struct {
	ClusterID   int
	Score       float64
	Clustered   bool
	SourceIndex int
	Values      []string
}

// Table is the merged output: annotation columns followed by the union of
// both input headers, left first.
type Table struct {
	Header []string
	Rows   []Row
}

// Clustered counts annotated rows.
func (t *Table) Clustered() int {
	n := 0
	for _, row := range t.Rows {
		if row.Clustered {
			n++
		}
	}
	return n
}

// Records renders the table as string rows, header first.
func (t *Table) Records() [][]string {
	out := make([][]string, 0, len(t.Rows)+1)
	out = append(out, append([]string(nil), t.Header...))
	for _, row := range t.Rows {
		out = append(out, row.strings())
	}
	return out
}

func (r Row) strings() []string {
	record := make([]string, 0, 3+len(r.Values))
	if r.Clustered {
		record = append(record, strconv.Itoa(r.ClusterID), FormatScore(r.Score))
	} else {
		record = append(record, "", "")
	}
	record = append(record, strconv.Itoa(r.SourceIndex))
	return append(record, r.Values...)
}

// FormatScore renders a score in its shortest round-trip form.
func FormatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', -1, 64)
}

// Membership assigns each cluster its emission index and maps every member
// to it. A record listed in two clusters is an error.
func Membership(result linkage.ClusterResult) (map[linkage.RecordID]Annotation, error) {
	members := make(map[linkage.RecordID]Annotation)
	for clusterID, cluster := range result {
		for _, id := range cluster.Members {
			if prev, dup := members[id]; dup {
				return nil, failure.Wrap(failure.ErrDuplicateMembership, "assemble", "membership",
					fmt.Sprintf("record %s appears in clusters %d and %d", id, prev.ClusterID, clusterID), nil)
			}
			members[id] = Annotation{ClusterID: clusterID, Score: cluster.Score}
		}
	}
	return members, nil
}

// Assemble builds the merged table from a cluster result and both datasets.
func Assemble(result linkage.ClusterResult, left, right *linkage.Dataset) (*Table, error) {
	if left == nil || right == nil {
		return nil, fmt.Errorf("assemble: both datasets are required")
	}
	members, err := Membership(result)
	if err != nil {
		return nil, err
	}
	for id := range members {
		_, inLeft := left.Record(id)
		_, inRight := right.Record(id)
		if !inLeft && !inRight {
			return nil, failure.Wrap(nil, "assemble", "membership", fmt.Sprintf("cluster member %s is not an input record", id), nil)
		}
	}

	columns := unionHeader(left.Header, right.Header)
	table := &Table{
		Header: append([]string{ColumnClusterID, ColumnLinkScore, ColumnSourceFile}, columns...),
		Rows:   make([]Row, 0, left.Len()+right.Len()),
	}
	for sourceIndex, ds := range []*linkage.Dataset{left, right} {
		project := projection(ds.Header, columns)
		for _, id := range ds.IDs() {
			raw, _ := ds.Raw(id)
			row := Row{SourceIndex: sourceIndex, Values: project(raw)}
			if ann, ok := members[id]; ok {
				row.Clustered = true
				row.ClusterID = ann.ClusterID
				row.Score = ann.Score
			}
			table.Rows = append(table.Rows, row)
		}
	}
	return table, nil
}

func unionHeader(left, right []string) []string {
	columns := append([]string(nil), left...)
	seen := make(map[string]struct{}, len(left)+len(right))
	for _, name := range left {
		seen[name] = struct{}{}
	}
	for _, name := range right {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		columns = append(columns, name)
	}
	return columns
}

// projection maps a row laid out by header onto columns, leaving columns
// the header lacks empty.
func projection(header, columns []string) func([]string) []string {
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[name] = i
	}
	return func(raw []string) []string {
		out := make([]string, len(columns))
		for i, name := range columns {
			if j, ok := index[name]; ok && j < len(raw) {
				out[i] = raw[j]
			}
		}
		return out
	}
}
