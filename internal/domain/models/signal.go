package models

import "time"

// Stage identifies which listing stage a signal refers to.
type Stage string

const (
	StagePresale Stage = "presale"
	StageDex     Stage = "dex"
	StageCex     Stage = "cex"
	StageSocial  Stage = "social"
)

// Valid reports whether s is one of the recognized stages.
func (s Stage) Valid() bool {
	switch s {
	case StagePresale, StageDex, StageCex, StageSocial:
		return true
	}
	return false
}

// SignalKind orders signal types by priority; confirmed listings beat
// announcements, announcements beat social mentions.
type SignalKind string

const (
	KindListingConfirmed SignalKind = "listing_confirmed"
	KindAnnouncement     SignalKind = "announcement"
	KindPairCreated      SignalKind = "pair_created"
	KindPresaleLive      SignalKind = "presale_live"
	KindSocialMention    SignalKind = "social_mention"
)

// Priority returns the drop priority of the kind. Lower values are dropped
// first when a source exceeds its rate ceiling.
func (k SignalKind) Priority() int {
	switch k {
	case KindListingConfirmed:
		return 3
	case KindAnnouncement, KindPairCreated, KindPresaleLive:
		return 2
	case KindSocialMention:
		return 1
	}
	return 0
}

// Signal is a single normalized event from a source feed. Immutable once
// ingested.
type Signal struct {
	Source     string     `json:"source"`
	Symbol     string     `json:"symbol"`
	Stage      Stage      `json:"stage"`
	Kind       SignalKind `json:"kind"`
	Strength   float64    `json:"strength"` // sentiment/strength in [-1,1]
	Timestamp  time.Time  `json:"timestamp"`
	PayloadRef string     `json:"payload_ref,omitempty"`
}

// Key groups signals belonging to the same candidate.
func (s *Signal) Key() OpportunityKey {
	return OpportunityKey{Symbol: s.Symbol, Stage: s.Stage}
}
