package engine

import (
	"log/slog"
	"math/rand"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Scorer applies the fitted statistical models to a feature vector. Both
// sub-models and the standardization transform are fitted once at
// construction and read-only thereafter, so concurrent Score calls need
// no synchronization.
type Scorer struct {
	scaler     *Standardizer
	anomaly    *IsolationForest
	classifier *LogisticClassifier
	logger     *slog.Logger
}

// NewScorer fits the standardizer, the anomaly detector, and the
// classifier on a synthetic training set. Deterministic for a fixed seed.
func NewScorer(logger *slog.Logger) *Scorer {
	samples, labels := SyntheticTrainingSet(trainingSeed, trainingSamples, domain.FeatureLen)

	scaler := FitStandardizer(samples)
	scaled := scaler.TransformAll(samples)

	forest := NewIsolationForest(IsolationForestConfig{
		Trees:         100,
		SubsampleSize: 256,
	})
	forest.Fit(scaled, fraudFraction, rand.New(rand.NewSource(trainingSeed)))

	classifier := NewLogisticClassifier(domain.FeatureLen)
	classifier.Fit(scaled, labels, LogisticConfig{})

	logger.Info("statistical models fitted",
		"samples", len(samples),
		"features", domain.FeatureLen)

	return &Scorer{
		scaler:     scaler,
		anomaly:    forest,
		classifier: classifier,
		logger:     logger,
	}
}

// ModelCount reports the number of fitted sub-models.
func (s *Scorer) ModelCount() int {
	count := 0
	if s.anomaly != nil && s.anomaly.Fitted() {
		count++
	}
	if s.classifier != nil && s.classifier.Fitted() {
		count++
	}
	return count
}

// Score maps a feature vector to a 0-10 statistical score: the mean of
// the scaled anomaly decision and the scaled fraud probability.
//
// A model failure must never block rule-based detection, so any internal
// fault degrades to the neutral floor score 0.0 instead of propagating.
func (s *Scorer) Score(features domain.FeatureVector) (score float64) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("model inference failed, using neutral score", "panic", r)
			score = 0
		}
	}()

	if !features.IsFinite() || s.anomaly == nil || s.classifier == nil {
		return 0
	}
	if !s.anomaly.Fitted() || !s.classifier.Fitted() {
		return 0
	}

	scaled := s.scaler.Transform(features[:])

	// Lower (more negative) decision values mean more anomalous.
	decision := s.anomaly.Decision(scaled)
	anomalyScore := clamp((0.5-decision)*5, 0, 10)

	fraudProbability := s.classifier.Probability(scaled)
	classificationScore := fraudProbability * 10

	return (anomalyScore + classificationScore) / 2
}
