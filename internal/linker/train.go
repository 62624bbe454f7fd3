package linker

import "reclink/internal/linkage"

const (
	trainIterations   = 600
	trainLearningRate = 0.5
	trainPriorPull    = 0.05
)

type sample struct {
	features []float64
	label    float64
}

// fit runs full-batch gradient descent on the log loss with an L2 penalty
// toward the prior. The result depends only on the samples and their order.
func fit(prior *Model, samples []sample) *Model {
	m := *prior
	m.Weights = append([]float64(nil), prior.Weights...)
	m.FieldSpecs = append([]linkage.FieldSpec(nil), prior.FieldSpecs...)
	m.ExampleCount = len(samples)
	if len(samples) == 0 {
		return &m
	}

	n := float64(len(samples))
	grad := make([]float64, len(m.Weights))
	for iter := 0; iter < trainIterations; iter++ {
		for i := range grad {
			grad[i] = trainPriorPull * (m.Weights[i] - prior.Weights[i])
		}
		gradBias := trainPriorPull * (m.Bias - prior.Bias)
		for _, s := range samples {
			residual := m.Probability(s.features) - s.label
			for i := range grad {
				grad[i] += residual * s.features[i] / n
			}
			gradBias += residual / n
		}
		for i := range m.Weights {
			m.Weights[i] -= trainLearningRate * grad[i]
		}
		m.Bias -= trainLearningRate * gradBias
	}
	return &m
}

func labelFor(j linkage.Judgment) (float64, bool) {
	switch j {
	case linkage.JudgmentMatch:
		return 1, true
	case linkage.JudgmentDistinct:
		return 0, true
	default:
		return 0, false
	}
}
