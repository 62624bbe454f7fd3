package linker

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"reclink/internal/linkage"
)

const (
	modelKind    = "reclink/logistic"
	modelVersion = 1
)

// Blocking records the blocking parameters a model was trained with so
// clustering reproduces the same candidate space.
type Blocking struct {
	MinTokenLength int `json:"min_token_length"`
	MaxBlockSize   int `json:"max_block_size"`
}

// Model is a logistic regression over comparison features. DistinctPairs
// holds the content keys of pairs a judge labeled distinct; Cluster never
// links them, whatever their score.
type Model struct {
	Kind          string              `json:"kind"`
	Version       int                 `json:"version"`
	FieldSpecs    []linkage.FieldSpec `json:"fields"`
	Weights       []float64           `json:"weights"`
	Bias          float64             `json:"bias"`
	Blocking      Blocking            `json:"blocking"`
	ExampleCount  int                 `json:"examples"`
	DistinctPairs []string            `json:"distinct_pairs,omitempty"`
}

func (m *Model) Fields() []linkage.FieldSpec {
	return append([]linkage.FieldSpec(nil), m.FieldSpecs...)
}

func (m *Model) Examples() int { return m.ExampleCount }

// Probability returns the match probability for a feature vector.
func (m *Model) Probability(features []float64) float64 {
	z := m.Bias
	for i, w := range m.Weights {
		if i < len(features) {
			z += w * features[i]
		}
	}
	return sigmoid(z)
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// priorModel scores a pair at 0.5 when its mean field similarity is 0.5 and
// ignores the presence indicators.
func priorModel(fields []linkage.FieldSpec, blocking Blocking) *Model {
	weights := make([]float64, featureCount(fields))
	for i := range fields {
		weights[i] = 6 / float64(len(fields))
	}
	return &Model{
		Kind:       modelKind,
		Version:    modelVersion,
		FieldSpecs: append([]linkage.FieldSpec(nil), fields...),
		Weights:    weights,
		Bias:       -3,
		Blocking:   blocking,
	}
}

func (m *Model) validate() error {
	if m.Kind != modelKind {
		return fmt.Errorf("unsupported model kind %q", m.Kind)
	}
	if m.Version != modelVersion {
		return fmt.Errorf("unsupported model version %d", m.Version)
	}
	if len(m.FieldSpecs) == 0 {
		return errors.New("model has no fields")
	}
	if want := featureCount(m.FieldSpecs); len(m.Weights) != want {
		return fmt.Errorf("model has %d weights, fields need %d", len(m.Weights), want)
	}
	for _, w := range append([]float64{m.Bias}, m.Weights...) {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return errors.New("model has non-finite weights")
		}
	}
	if m.Blocking.MinTokenLength < 1 || m.Blocking.MaxBlockSize < 1 {
		return errors.New("model has invalid blocking parameters")
	}
	if m.ExampleCount < 0 {
		return errors.New("model has negative example count")
	}
	if len(m.DistinctPairs) > m.ExampleCount {
		return fmt.Errorf("model has %d distinct pairs but %d examples", len(m.DistinctPairs), m.ExampleCount)
	}
	for _, key := range m.DistinctPairs {
		if !validPairKey(key) {
			return fmt.Errorf("model has malformed distinct pair key %q", key)
		}
	}
	return nil
}

// SerializeModel encodes a model produced by this linker.
func (l *Linker) SerializeModel(model linkage.TrainedModel) ([]byte, error) {
	m, ok := model.(*Model)
	if !ok || m == nil {
		return nil, fmt.Errorf("serialize model: unsupported model type %T", model)
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("serialize model: %w", err)
	}
	return json.MarshalIndent(m, "", "  ")
}

// DeserializeModel decodes and validates persisted model bytes.
func (l *Linker) DeserializeModel(data []byte) (linkage.TrainedModel, error) {
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	for i := range m.FieldSpecs {
		typ, err := linkage.ParseFieldType(string(m.FieldSpecs[i].Type))
		if err != nil {
			return nil, fmt.Errorf("decode model: %w", err)
		}
		m.FieldSpecs[i].Type = typ
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	return &m, nil
}
