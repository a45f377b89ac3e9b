package engine

import (
	"math/rand"
)

// Synthetic training defaults. Production deployments fit on historical
// data instead; the synthetic set keeps a fresh install scoring sensibly.
const (
	trainingSeed    = 42
	trainingSamples = 10000
	fraudFraction   = 0.1
)

// SyntheticTrainingSet generates a labeled training set: normal
// transactions drawn from N(0,1) and fraudulent outliers from N(3,2),
// shuffled with the same seeded source for reproducibility.
func SyntheticTrainingSet(seed int64, n, dims int) ([][]float64, []float64) {
	rng := rand.New(rand.NewSource(seed))

	fraud := int(float64(n) * fraudFraction)
	normal := n - fraud

	samples := make([][]float64, 0, n)
	labels := make([]float64, 0, n)

	for i := 0; i < normal; i++ {
		row := make([]float64, dims)
		for d := range row {
			row[d] = rng.NormFloat64()
		}
		samples = append(samples, row)
		labels = append(labels, 0)
	}
	for i := 0; i < fraud; i++ {
		row := make([]float64, dims)
		for d := range row {
			row[d] = 3 + 2*rng.NormFloat64()
		}
		samples = append(samples, row)
		labels = append(labels, 1)
	}

	rng.Shuffle(n, func(i, j int) {
		samples[i], samples[j] = samples[j], samples[i]
		labels[i], labels[j] = labels[j], labels[i]
	})
	return samples, labels
}
