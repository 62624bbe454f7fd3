package linkage

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// FieldType selects the comparator a Linker applies to a field.
type FieldType string

const (
	FieldName        FieldType = "name"
	FieldString      FieldType = "string"
	FieldShortString FieldType = "short_string"
	FieldExact       FieldType = "exact"
)

// ParseFieldType accepts the canonical names plus the original CamelCase
// spellings ("Name", "String", "ShortString", "Exact").
func ParseFieldType(value string) (FieldType, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	switch normalized {
	case "name":
		return FieldName, nil
	case "string", "text":
		return FieldString, nil
	case "short_string", "shortstring":
		return FieldShortString, nil
	case "exact":
		return FieldExact, nil
	default:
		return "", fmt.Errorf("unknown field type %q", value)
	}
}

// FieldSpec declares one field participating in linkage.
type FieldSpec struct {
	Field      string    `json:"field"`
	Type       FieldType `json:"type"`
	HasMissing bool      `json:"has_missing,omitempty"`
}

// SameFields reports whether two field spec lists are identical, order
// included.
func SameFields(a, b []FieldSpec) bool {
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

// Judgment is a judge's answer for one candidate pair.
type Judgment string

const (
	JudgmentMatch    Judgment = "match"
	JudgmentDistinct Judgment = "distinct"
	JudgmentSkip     Judgment = "skip"
	JudgmentFinish   Judgment = "finish"
)

// Recordable reports whether the judgment belongs in the training set.
func (j Judgment) Recordable() bool {
	return j == JudgmentMatch || j == JudgmentDistinct
}

// Pair is a candidate left/right record pair.
type Pair struct {
	Left  RecordID `json:"left"`
	Right RecordID `json:"right"`
}

// LabeledExample is one recorded human decision. The record snapshots keep
// the training set usable even when source rows are later edited.
type LabeledExample struct {
	Left        RecordID  `json:"left"`
	Right       RecordID  `json:"right"`
	Judgment    Judgment  `json:"judgment"`
	LeftRecord  Record    `json:"left_record"`
	RightRecord Record    `json:"right_record"`
	LabeledAt   time.Time `json:"labeled_at"`
}

// Pair returns the example's record pair.
func (e LabeledExample) Pair() Pair {
	return Pair{Left: e.Left, Right: e.Right}
}

// Cluster is a group of records believed to be the same entity.
type Cluster struct {
	Members []RecordID
	Score   float64
}

// ClusterResult lists clusters in emission order. Singletons may be omitted.
type ClusterResult []Cluster

// TrainedModel is the opaque product of Linker.Train.
type TrainedModel interface {
	// Fields returns the field specs the model was trained with.
	Fields() []FieldSpec
	// Examples returns the number of labeled examples used in training.
	Examples() int
}

// ModelCodec converts trained models to and from their persisted form.
type ModelCodec interface {
	SerializeModel(TrainedModel) ([]byte, error)
	DeserializeModel([]byte) (TrainedModel, error)
}

// Linker is the similarity-learning, blocking, and clustering collaborator.
type Linker interface {
	ModelCodec

	// Configure fixes the field specs. It must be called before Prepare or
	// Train.
	Configure(fields []FieldSpec) error
	// Prepare samples candidate pairs for active learning. Pairs already in
	// examples are never offered again.
	Prepare(ctx context.Context, left, right *Dataset, examples []LabeledExample) error
	// NextPair pops the most informative unlabeled pair. It returns false
	// once the candidates are exhausted.
	NextPair() (Pair, bool)
	// RecordJudgment feeds a match or distinct decision back to the learner.
	RecordJudgment(pair Pair, judgment Judgment) error
	// Train builds a model from the full training set.
	Train(ctx context.Context, examples []LabeledExample) (TrainedModel, error)
	// Cluster links left and right with a trained model. Lower thresholds
	// favor recall.
	Cluster(ctx context.Context, model TrainedModel, left, right *Dataset, threshold float64) (ClusterResult, error)
}
