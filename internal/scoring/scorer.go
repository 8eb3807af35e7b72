package scoring

import (
	"context"
	"math"
	"time"

	"ListingRadar/internal/domain/models"
	drepo "ListingRadar/internal/domain/repository"
	domsvc "ListingRadar/internal/domain/service"
	"ListingRadar/pkg/logger"
)

// Weights controls the score combination. The exact mix is deliberately
// configuration, not code.
type Weights struct {
	Model         float64
	Corroboration float64
	Reliability   float64
}

// Result carries the combined confidence plus the degraded-mode flag.
type Result struct {
	Confidence      float64
	UnscoredByModel bool
}

// Scorer combines model inference, corroboration across distinct sources,
// and source reliability into one confidence value in [0,1].
type Scorer struct {
	inference domsvc.Inference
	rel       *ReliabilityTable
	weights   Weights
	floor     float64
	timeout   time.Duration
	metrics   drepo.Metrics
	log       *logger.Logger
}

func NewScorer(inference domsvc.Inference, rel *ReliabilityTable, weights Weights, floor float64, timeout time.Duration, metrics drepo.Metrics, log *logger.Logger) *Scorer {
	return &Scorer{
		inference: inference,
		rel:       rel,
		weights:   weights,
		floor:     floor,
		timeout:   timeout,
		metrics:   metrics,
		log:       log.With("scoring"),
	}
}

// Score computes confidence for an opportunity from its current signal set.
// Inference failures degrade to corroboration-only scoring; the result is
// flagged for audit, never rejected here.
func (s *Scorer) Score(ctx context.Context, o *models.Opportunity) Result {
	sources, meanRel := s.trustedSources(o)
	corr := corroborationBonus(len(sources))

	modelTerm, degraded := s.modelTerm(ctx, o)

	wm, wc, wr := s.weights.Model, s.weights.Corroboration, s.weights.Reliability
	total := wm + wc + wr
	if total <= 0 {
		return Result{UnscoredByModel: degraded}
	}
	if degraded {
		// Keep the full denominator: a missing model makes the score more
		// conservative, never inflated.
		wm = 0
	}

	conf := clamp01((wm*modelTerm + wc*corr + wr*meanRel) / total)
	return Result{Confidence: conf, UnscoredByModel: degraded}
}

// trustedSources returns the distinct sources at or above the reliability
// floor and their mean reliability. Sub-floor sources contribute nothing and
// cannot single-handedly validate an opportunity.
func (s *Scorer) trustedSources(o *models.Opportunity) ([]string, float64) {
	var trusted []string
	var sum float64
	for _, src := range o.Sources() {
		r := s.rel.Score(src)
		if r < s.floor {
			continue
		}
		trusted = append(trusted, src)
		sum += r
	}
	if len(trusted) == 0 {
		return nil, 0
	}
	return trusted, sum / float64(len(trusted))
}

func (s *Scorer) modelTerm(ctx context.Context, o *models.Opportunity) (float64, bool) {
	if s.inference == nil {
		return 0, true
	}
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.inference.Infer(cctx, FeatureVector(o))
	if err != nil {
		s.metrics.RecordError("inference")
		s.log.Warn("inference unavailable, corroboration-only scoring",
			logger.String("key", o.Key.String()),
			logger.Error(err))
		return 0, true
	}
	return clamp01(res.Probability), false
}

// corroborationBonus grows sub-linearly with the number of distinct trusted
// sources and saturates at the third one.
func corroborationBonus(n int) float64 {
	if n <= 1 {
		return 0
	}
	b := math.Sqrt(float64(n-1) / 2)
	if b > 1 {
		b = 1
	}
	return b
}

// FeatureVector derives the fixed inference contract input from an
// opportunity's signals.
func FeatureVector(o *models.Opportunity) map[string]float64 {
	var meanStrength float64
	maxPriority := 0
	for _, sig := range o.Signals {
		meanStrength += sig.Strength
		if p := sig.Kind.Priority(); p > maxPriority {
			maxPriority = p
		}
	}
	if len(o.Signals) > 0 {
		meanStrength /= float64(len(o.Signals))
	}

	f := map[string]float64{
		"distinct_sources": float64(o.DistinctSources()),
		"signal_count":     float64(len(o.Signals)),
		"mean_strength":    meanStrength,
		"max_priority":     float64(maxPriority),
		"age_minutes":      time.Since(o.CreatedAt).Minutes(),
	}
	for _, stage := range []models.Stage{models.StagePresale, models.StageDex, models.StageCex, models.StageSocial} {
		v := 0.0
		if o.Key.Stage == stage {
			v = 1.0
		}
		f["stage_"+string(stage)] = v
	}
	return f
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
