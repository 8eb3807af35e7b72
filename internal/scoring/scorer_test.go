package scoring

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"ListingRadar/internal/domain/models"
	domsvc "ListingRadar/internal/domain/service"
	internalrepo "ListingRadar/internal/repository"
	"ListingRadar/pkg/logger"
)

type nopMetrics struct{}

func (nopMetrics) RecordSignal(string, bool)         {}
func (nopMetrics) RecordRateLimited(string)          {}
func (nopMetrics) RecordTransition(string, string)   {}
func (nopMetrics) RecordOpenPositions(int)           {}
func (nopMetrics) RecordRealizedPnL(string, float64) {}
func (nopMetrics) RecordCircuitBreaker(bool)         {}
func (nopMetrics) RecordError(string)                {}
func (nopMetrics) RecordLatency(string, float64)     {}

type fakeInference struct {
	prob float64
	err  error
}

func (f *fakeInference) Infer(context.Context, map[string]float64) (domsvc.InferenceResult, error) {
	if f.err != nil {
		return domsvc.InferenceResult{}, f.err
	}
	return domsvc.InferenceResult{Probability: f.prob, Confidence: 0.9}, nil
}

var defaultWeights = Weights{Model: 0.4, Corroboration: 0.35, Reliability: 0.25}

func tableWith(t *testing.T, scores map[string]float64) *ReliabilityTable {
	t.Helper()
	store := internalrepo.NewMemoryStore()
	for src, score := range scores {
		err := store.SaveReliability(context.Background(), &models.ReliabilitySample{Source: src, Score: score, Samples: 10})
		if err != nil {
			t.Fatalf("seed reliability: %v", err)
		}
	}
	rel := NewReliabilityTable(0.2, store)
	if err := rel.Load(context.Background()); err != nil {
		t.Fatalf("load reliability: %v", err)
	}
	return rel
}

func opportunityFrom(sources ...string) *models.Opportunity {
	o := &models.Opportunity{
		Key:       models.OpportunityKey{Symbol: "ABC/USDT", Stage: models.StageCex},
		Status:    models.OpportunityScoring,
		CreatedAt: time.Now().UTC(),
	}
	for _, src := range sources {
		o.Signals = append(o.Signals, &models.Signal{
			Source: src, Symbol: "ABC/USDT", Stage: models.StageCex,
			Kind: models.KindAnnouncement, Strength: 0.8, Timestamp: time.Now(),
		})
	}
	return o
}

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestScoreSingleSourceStaysBelowThreshold(t *testing.T) {
	rel := tableWith(t, map[string]float64{"src_a": 0.9})
	s := NewScorer(&fakeInference{prob: 0.6}, rel, defaultWeights, 0.3, time.Second, nopMetrics{}, logger.Nop())

	res := s.Score(context.Background(), opportunityFrom("src_a"))
	want := 0.4*0.6 + 0.25*0.9 // no corroboration with one source
	if !almostEqual(res.Confidence, want) {
		t.Fatalf("confidence = %v, want %v", res.Confidence, want)
	}
	if res.Confidence >= 0.7 {
		t.Fatalf("single source crossed the threshold: %v", res.Confidence)
	}
}

func TestScoreSecondSourceCrossesThreshold(t *testing.T) {
	rel := tableWith(t, map[string]float64{"src_a": 0.9, "src_b": 0.9})
	s := NewScorer(&fakeInference{prob: 0.6}, rel, defaultWeights, 0.3, time.Second, nopMetrics{}, logger.Nop())

	res := s.Score(context.Background(), opportunityFrom("src_a", "src_b"))
	want := 0.4*0.6 + 0.35*math.Sqrt(0.5) + 0.25*0.9
	if !almostEqual(res.Confidence, want) {
		t.Fatalf("confidence = %v, want %v", res.Confidence, want)
	}
	if res.Confidence < 0.7 {
		t.Fatalf("corroborated opportunity should validate, got %v", res.Confidence)
	}
}

func TestScoreDegradedWhenInferenceFails(t *testing.T) {
	rel := tableWith(t, map[string]float64{"src_a": 0.9, "src_b": 0.9})
	s := NewScorer(&fakeInference{err: errors.New("connection refused")}, rel, defaultWeights, 0.3, time.Second, nopMetrics{}, logger.Nop())

	res := s.Score(context.Background(), opportunityFrom("src_a", "src_b"))
	if !res.UnscoredByModel {
		t.Fatal("expected unscored-by-model flag")
	}
	// The model weight drops out of the numerator but not the denominator;
	// degraded scores are strictly conservative.
	want := 0.35*math.Sqrt(0.5) + 0.25*0.9
	if !almostEqual(res.Confidence, want) {
		t.Fatalf("degraded confidence = %v, want %v", res.Confidence, want)
	}
}

func TestScoreIgnoresSubFloorSources(t *testing.T) {
	rel := tableWith(t, map[string]float64{"src_a": 0.9, "junk": 0.1})
	s := NewScorer(&fakeInference{prob: 0.6}, rel, defaultWeights, 0.3, time.Second, nopMetrics{}, logger.Nop())

	res := s.Score(context.Background(), opportunityFrom("src_a", "junk"))
	want := 0.4*0.6 + 0.25*0.9 // the sub-floor source neither corroborates nor contributes
	if !almostEqual(res.Confidence, want) {
		t.Fatalf("confidence = %v, want %v", res.Confidence, want)
	}
}

func TestCorroborationBonus(t *testing.T) {
	cases := []struct {
		n    int
		want float64
	}{
		{0, 0},
		{1, 0},
		{2, math.Sqrt(0.5)},
		{3, 1},
		{5, 1},
	}
	for _, tc := range cases {
		if got := corroborationBonus(tc.n); !almostEqual(got, tc.want) {
			t.Fatalf("corroborationBonus(%d) = %v, want %v", tc.n, got, tc.want)
		}
	}
}

func TestFeatureVector(t *testing.T) {
	o := opportunityFrom("src_a", "src_b")
	f := FeatureVector(o)
	if f["distinct_sources"] != 2 {
		t.Fatalf("distinct_sources = %v", f["distinct_sources"])
	}
	if f["signal_count"] != 2 {
		t.Fatalf("signal_count = %v", f["signal_count"])
	}
	if f["stage_cex"] != 1 || f["stage_dex"] != 0 {
		t.Fatalf("stage one-hot wrong: %v", f)
	}
}
