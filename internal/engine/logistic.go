package engine

import (
	"math"
)

// LogisticClassifier is a binary classifier producing P(fraud | features).
// Trained once by gradient descent at construction and read-only after.
type LogisticClassifier struct {
	weights []float64
	bias    float64
	fitted  bool
}

// LogisticConfig controls training.
type LogisticConfig struct {
	LearningRate float64
	Epochs       int
}

// NewLogisticClassifier creates an unfitted classifier for the given
// feature dimensionality.
func NewLogisticClassifier(dims int) *LogisticClassifier {
	return &LogisticClassifier{weights: make([]float64, dims)}
}

// Fit trains by full-batch gradient descent on log loss. Class weights are
// balanced so the minority fraud class is not drowned out.
func (c *LogisticClassifier) Fit(samples [][]float64, labels []float64, cfg LogisticConfig) {
	n := len(samples)
	if n == 0 || n != len(labels) {
		return
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = 0.1
	}
	if cfg.Epochs <= 0 {
		cfg.Epochs = 200
	}

	positives := 0.0
	for _, y := range labels {
		if y > 0.5 {
			positives++
		}
	}
	negatives := float64(n) - positives
	posWeight, negWeight := 1.0, 1.0
	if positives > 0 && negatives > 0 {
		posWeight = float64(n) / (2 * positives)
		negWeight = float64(n) / (2 * negatives)
	}

	dims := len(c.weights)
	grad := make([]float64, dims)

	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		for d := range grad {
			grad[d] = 0
		}
		gradBias := 0.0

		for i, x := range samples {
			p := c.Probability(x)
			w := negWeight
			if labels[i] > 0.5 {
				w = posWeight
			}
			err := w * (p - labels[i])
			for d := 0; d < dims; d++ {
				grad[d] += err * x[d]
			}
			gradBias += err
		}

		step := cfg.LearningRate / float64(n)
		for d := 0; d < dims; d++ {
			c.weights[d] -= step * grad[d]
		}
		c.bias -= step * gradBias
	}
	c.fitted = true
}

// Probability returns P(fraud | features) in [0,1].
func (c *LogisticClassifier) Probability(features []float64) float64 {
	z := c.bias
	for d, w := range c.weights {
		if d < len(features) {
			z += w * features[d]
		}
	}
	return sigmoid(z)
}

// Fitted reports whether the classifier has been trained.
func (c *LogisticClassifier) Fitted() bool {
	return c.fitted
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// Standardizer applies the zero-mean/unit-variance transform fitted on the
// training set. The same transform must be applied at scoring time.
type Standardizer struct {
	mean  []float64
	scale []float64
}

// FitStandardizer computes per-dimension mean and standard deviation.
// Zero-variance dimensions get unit scale so the transform stays finite.
func FitStandardizer(samples [][]float64) *Standardizer {
	if len(samples) == 0 {
		return &Standardizer{}
	}
	dims := len(samples[0])
	mean := make([]float64, dims)
	scale := make([]float64, dims)
	n := float64(len(samples))

	for _, s := range samples {
		for d := 0; d < dims; d++ {
			mean[d] += s[d]
		}
	}
	for d := 0; d < dims; d++ {
		mean[d] /= n
	}
	for _, s := range samples {
		for d := 0; d < dims; d++ {
			diff := s[d] - mean[d]
			scale[d] += diff * diff
		}
	}
	for d := 0; d < dims; d++ {
		scale[d] = math.Sqrt(scale[d] / n)
		if scale[d] == 0 {
			scale[d] = 1
		}
	}
	return &Standardizer{mean: mean, scale: scale}
}

// Transform standardizes a single vector into a fresh slice.
func (s *Standardizer) Transform(features []float64) []float64 {
	out := make([]float64, len(features))
	for d, v := range features {
		if d < len(s.mean) {
			out[d] = (v - s.mean[d]) / s.scale[d]
		} else {
			out[d] = v
		}
	}
	return out
}

// TransformAll standardizes a whole matrix.
func (s *Standardizer) TransformAll(samples [][]float64) [][]float64 {
	out := make([][]float64, len(samples))
	for i, row := range samples {
		out[i] = s.Transform(row)
	}
	return out
}
