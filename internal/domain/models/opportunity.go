package models

import (
	"fmt"
	"time"
)

// OpportunityStatus is the lifecycle state of an opportunity.
type OpportunityStatus string

const (
	OpportunityNew       OpportunityStatus = "new"
	OpportunityScoring   OpportunityStatus = "scoring"
	OpportunityValidated OpportunityStatus = "validated"
	OpportunitySized     OpportunityStatus = "sized"
	OpportunityEntered   OpportunityStatus = "entered"
	OpportunityClosed    OpportunityStatus = "closed"
	OpportunityRejected  OpportunityStatus = "rejected"
	OpportunityExpired   OpportunityStatus = "expired"
)

// Terminal reports whether the status admits no further transitions.
func (s OpportunityStatus) Terminal() bool {
	switch s {
	case OpportunityClosed, OpportunityRejected, OpportunityExpired:
		return true
	}
	return false
}

// OpportunityKey uniquely identifies the candidate a signal stream refers to.
// At most one non-terminal opportunity exists per key.
type OpportunityKey struct {
	Symbol string `json:"symbol"`
	Stage  Stage  `json:"stage"`
}

func (k OpportunityKey) String() string {
	return fmt.Sprintf("%s:%s", k.Symbol, k.Stage)
}

// Opportunity is a candidate symbol/stage pair with its contributing signals
// inside the validity window.
type Opportunity struct {
	ID              string            `json:"id"`
	Key             OpportunityKey    `json:"key"`
	Signals         []*Signal         `json:"signals"`
	Confidence      float64           `json:"confidence"`
	Status          OpportunityStatus `json:"status"`
	CreatedAt       time.Time         `json:"created_at"`
	ExpiresAt       time.Time         `json:"expires_at"`
	UnscoredByModel bool              `json:"unscored_by_model,omitempty"`
	RejectReason    string            `json:"reject_reason,omitempty"`
}

// DistinctSources returns the number of distinct sources that contributed a
// signal within the window.
func (o *Opportunity) DistinctSources() int {
	seen := make(map[string]struct{}, len(o.Signals))
	for _, s := range o.Signals {
		seen[s.Source] = struct{}{}
	}
	return len(seen)
}

// Sources lists the distinct contributing source ids.
func (o *Opportunity) Sources() []string {
	seen := make(map[string]struct{}, len(o.Signals))
	out := make([]string, 0, len(o.Signals))
	for _, s := range o.Signals {
		if _, ok := seen[s.Source]; ok {
			continue
		}
		seen[s.Source] = struct{}{}
		out = append(out, s.Source)
	}
	return out
}
