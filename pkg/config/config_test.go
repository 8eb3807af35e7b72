package config

import (
	"strings"
	"testing"
	"time"

	"ListingRadar/internal/domain/models"
)

const minimalYAML = `
engine:
  monitor_sources:
    - binance_announcements
risk:
  equity: 100000
kafka:
  brokers:
    - localhost:9092
`

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if c.Server.Port != 8080 {
		t.Fatalf("server.port = %d, want 8080", c.Server.Port)
	}
	if c.Engine.ConfidenceThreshold != 0.7 {
		t.Fatalf("confidence_threshold = %v, want 0.7", c.Engine.ConfidenceThreshold)
	}
	if c.Engine.Weights.Model != 0.4 || c.Engine.Weights.Corroboration != 0.35 || c.Engine.Weights.Reliability != 0.25 {
		t.Fatalf("weights = %+v", c.Engine.Weights)
	}
	if c.ExitStrategy.TakeProfit != 2.0 || c.ExitStrategy.StopLoss != 0.5 || c.ExitStrategy.TimeBasedExit != 72*time.Hour {
		t.Fatalf("exit strategy = %+v", c.ExitStrategy)
	}
	if c.Risk.MaxDailyLossPct != 0.05 || c.Risk.MaxConcurrentPositions != 10 {
		t.Fatalf("risk = %+v", c.Risk)
	}
	if c.Kafka.SignalsTopic != "lr_signals_raw" || c.Kafka.Consumer.Workers != 4 {
		t.Fatalf("kafka = %+v", c.Kafka)
	}
}

func TestParseFillsStageTable(t *testing.T) {
	c, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	presale := c.Engine.Stages[models.StagePresale]
	if presale.TTL != 24*time.Hour || presale.MaxAmount != 1000 {
		t.Fatalf("presale = %+v", presale)
	}
	cex := c.Engine.Stages[models.StageCex]
	if cex.TTL != 10*time.Minute || cex.MaxAmount != 5000 {
		t.Fatalf("cex = %+v", cex)
	}
}

func TestParseKeepsExplicitStageOverrides(t *testing.T) {
	c, err := Parse([]byte(`
engine:
  monitor_sources:
    - binance_announcements
  stages:
    cex:
      ttl: 5m
      max_amount: 9000
risk:
  equity: 100000
kafka:
  brokers:
    - localhost:9092
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	cex := c.Engine.Stages[models.StageCex]
	if cex.TTL != 5*time.Minute || cex.MaxAmount != 9000 {
		t.Fatalf("cex = %+v", cex)
	}
	// Untouched stages still come from the table.
	if c.Engine.Stages[models.StageDex].TTL != time.Hour {
		t.Fatalf("dex = %+v", c.Engine.Stages[models.StageDex])
	}
}

func TestParseRejectsMissingBrokers(t *testing.T) {
	_, err := Parse([]byte(`
engine:
  monitor_sources:
    - binance_announcements
risk:
  equity: 100000
`))
	if err == nil || !strings.Contains(err.Error(), "brokers") {
		t.Fatalf("err = %v", err)
	}
}

func TestParseRejectsMissingSources(t *testing.T) {
	_, err := Parse([]byte(`
risk:
  equity: 100000
kafka:
  brokers:
    - localhost:9092
`))
	if err == nil {
		t.Fatal("expected validation error for empty monitor_sources")
	}
}

func TestParseRejectsUnknownStage(t *testing.T) {
	_, err := Parse([]byte(`
engine:
  monitor_sources:
    - binance_announcements
  stages:
    moonphase:
      ttl: 1h
      max_amount: 100
risk:
  equity: 100000
kafka:
  brokers:
    - localhost:9092
`))
	if err == nil || !strings.Contains(err.Error(), "unknown stage") {
		t.Fatalf("err = %v", err)
	}
}

func TestStageForFallback(t *testing.T) {
	c, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	c.Engine.Stages = map[models.Stage]StageConfig{}

	sc := c.StageFor(models.StageDex)
	if sc.TTL != time.Hour || sc.MaxAmount != c.Risk.MinTradeAmount {
		t.Fatalf("fallback = %+v", sc)
	}
}
