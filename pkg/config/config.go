package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"ListingRadar/internal/domain/models"
)

// StageConfig holds the table-driven per-stage parameters.
type StageConfig struct {
	TTL       time.Duration `yaml:"ttl" validate:"gt=0"`
	MaxAmount float64       `yaml:"max_amount" validate:"gt=0"` // sizing ceiling, quote currency
}

type ExitStrategy struct {
	TakeProfit    float64       `yaml:"take_profit" default:"2.0" validate:"gt=0"` // target price multiple
	StopLoss      float64       `yaml:"stop_loss" default:"0.5" validate:"gt=0,lte=1"`
	TimeBasedExit time.Duration `yaml:"time_based_exit" default:"72h" validate:"gt=0"`
}

type Config struct {
	Environment string `yaml:"environment" default:"dev" validate:"required"`

	Server struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	} `yaml:"server"`

	Logging struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"logging"`

	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`

	Engine struct {
		MonitorSources      []string      `yaml:"monitor_sources" validate:"min=1"`
		DedupBucket         time.Duration `yaml:"dedup_bucket" default:"60s" validate:"gt=0"`
		SourceRatePerMin    int           `yaml:"source_rate_per_min" default:"60" validate:"gt=0"`
		ConfidenceThreshold float64       `yaml:"confidence_threshold" default:"0.7" validate:"gt=0,lte=1"`
		ReliabilityFloor    float64       `yaml:"reliability_floor" default:"0.3" validate:"gte=0,lt=1"`
		ReliabilityAlpha    float64       `yaml:"reliability_alpha" default:"0.2" validate:"gt=0,lte=1"`
		TickInterval        time.Duration `yaml:"tick_interval" default:"15s" validate:"gt=0"`

		// Score combination weights. When inference is unavailable the
		// model term contributes zero while the denominator keeps its
		// weight, so degraded scores come out lower.
		Weights struct {
			Model         float64 `yaml:"model" default:"0.4" validate:"gte=0"`
			Corroboration float64 `yaml:"corroboration" default:"0.35" validate:"gte=0"`
			Reliability   float64 `yaml:"reliability" default:"0.25" validate:"gte=0"`
		} `yaml:"weights"`

		Stages map[models.Stage]StageConfig `yaml:"stages"`
	} `yaml:"engine"`

	Risk struct {
		Equity                 float64 `yaml:"equity" validate:"gt=0"`
		MaxDailyLossPct        float64 `yaml:"max_daily_loss_pct" default:"0.05" validate:"gt=0,lt=1"`
		MaxConcurrentPositions int     `yaml:"max_concurrent_positions" default:"10" validate:"gt=0"`
		MaxExposurePct         float64 `yaml:"max_exposure_pct" default:"0.25" validate:"gt=0,lte=1"`
		CorrelationLimit       float64 `yaml:"correlation_limit" default:"0.7" validate:"gte=0,lte=1"`
		MinTradeAmount         float64 `yaml:"min_trade_amount" default:"50" validate:"gt=0"`
	} `yaml:"risk"`

	ExitStrategy ExitStrategy `yaml:"exit_strategy"`

	Inference struct {
		BaseURL string        `yaml:"base_url"`
		Timeout time.Duration `yaml:"timeout" default:"3s"`
	} `yaml:"inference"`

	Execution struct {
		BaseURL     string        `yaml:"base_url"`
		Timeout     time.Duration `yaml:"timeout" default:"5s"`
		MaxAttempts int           `yaml:"max_attempts" default:"3" validate:"gt=0"`
		BackoffMin  time.Duration `yaml:"backoff_min" default:"200ms"`
		BackoffMax  time.Duration `yaml:"backoff_max" default:"5s"`
	} `yaml:"execution"`

	PriceFeed struct {
		BaseURL  string        `yaml:"base_url"`
		Timeout  time.Duration `yaml:"timeout" default:"2s"`
		CacheTTL time.Duration `yaml:"cache_ttl" default:"2s"`
	} `yaml:"pricefeed"`

	Feed struct {
		WebSocketURL   string        `yaml:"websocket_url"`
		APIKey         string        `yaml:"api_key"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
	} `yaml:"feed"`

	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		SignalsTopic string   `yaml:"signals_topic" default:"lr_signals_raw"`
		EventsTopic  string   `yaml:"events_topic" default:"lr_lifecycle_events"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"gzip"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"200ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async" default:"true"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"listingradar"`
			Workers    int           `yaml:"workers" default:"4"`
			BufferSize int           `yaml:"buffer_size" default:"1024"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`

	Redis struct {
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db" default:"0"`
		Prefix   string `yaml:"prefix" default:"listingradar"`
	} `yaml:"redis"`

	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"listingradar"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	} `yaml:"clickhouse"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes a YAML document, applies defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	c.fillStageDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := os.Getenv("FEED_API_KEY"); v != "" {
		c.Feed.APIKey = v
	}
	if v := os.Getenv("MONITOR_SOURCES"); v != "" {
		c.Engine.MonitorSources = strings.Split(v, ",")
	}
	if v := os.Getenv("PORTFOLIO_EQUITY"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			c.Risk.Equity = f
		}
	}

	return c, nil
}

// Stage-dependent validity windows and ceilings from the strategy defaults;
// presale windows are long, CEX announcements go stale in minutes.
func (c *Config) fillStageDefaults() {
	if c.Engine.Stages == nil {
		c.Engine.Stages = make(map[models.Stage]StageConfig, 4)
	}
	def := map[models.Stage]StageConfig{
		models.StagePresale: {TTL: 24 * time.Hour, MaxAmount: 1000},
		models.StageDex:     {TTL: time.Hour, MaxAmount: 2500},
		models.StageCex:     {TTL: 10 * time.Minute, MaxAmount: 5000},
		models.StageSocial:  {TTL: 30 * time.Minute, MaxAmount: 500},
	}
	for stage, sc := range def {
		if _, ok := c.Engine.Stages[stage]; !ok {
			c.Engine.Stages[stage] = sc
		}
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return err
	}
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty")
	}
	wsum := c.Engine.Weights.Model + c.Engine.Weights.Corroboration + c.Engine.Weights.Reliability
	if wsum <= 0 {
		return fmt.Errorf("engine.weights must sum to a positive value")
	}
	for stage := range c.Engine.Stages {
		if !stage.Valid() {
			return fmt.Errorf("engine.stages: unknown stage %q", stage)
		}
	}
	return nil
}

// StageFor returns the stage table entry, falling back to the DEX defaults
// for stages missing from the file.
func (c *Config) StageFor(stage models.Stage) StageConfig {
	if sc, ok := c.Engine.Stages[stage]; ok {
		return sc
	}
	return StageConfig{TTL: time.Hour, MaxAmount: c.Risk.MinTradeAmount}
}
