package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" validate:"required"`
	Server      struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"60s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		SlowThreshold   time.Duration `yaml:"slow_threshold" default:"2s"`
		JobTimeout      time.Duration `yaml:"job_timeout" default:"30m"`
		RateLimitRPS    float64       `yaml:"rate_limit_rps"`
		RateLimitBurst  int           `yaml:"rate_limit_burst" default:"20"`
		// CORSOrigins empty keeps the wildcard.
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Logging struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"console" validate:"oneof=json console"`
		Output string `yaml:"output" default:"stdout"`
		Digest struct {
			Enabled        bool          `yaml:"enabled"`
			Topic          string        `yaml:"topic" default:"corrpull.log_digest"`
			Interval       time.Duration `yaml:"interval" default:"30s"`
			CountThreshold int           `yaml:"count_threshold" default:"100"`
		} `yaml:"digest"`
	} `yaml:"logging"`
	Correlation struct {
		PrimarySymbols    []string      `yaml:"primary_symbols"`
		PrimaryKind       string        `yaml:"primary_kind" default:"security" validate:"oneof=security fred_series"`
		CandidateSymbols  []string      `yaml:"candidate_symbols"`
		Windows           []string      `yaml:"windows"`
		RankWindows       []string      `yaml:"rank_windows"`
		TopN              int           `yaml:"top_n" default:"40" validate:"gte=1,lte=500"`
		EndDate           string        `yaml:"end_date"`
		Source            string        `yaml:"source" default:"yahoo"`
		ForceDownload     bool          `yaml:"force_download"`
		UseAlternateStore bool          `yaml:"use_alternate_store"`
		Parallel          bool          `yaml:"parallel"`
		Workers           int           `yaml:"workers" validate:"gte=0"`
		DownloadWorkers   int           `yaml:"download_workers" default:"1" validate:"gte=1"`
		FetchTimeout      time.Duration `yaml:"fetch_timeout" default:"30s"`
	} `yaml:"correlation"`
	Provider struct {
		BaseURL string        `yaml:"base_url"`
		APIKey  string        `yaml:"api_key"`
		Timeout time.Duration `yaml:"timeout" default:"20s"`
		MaxRPS  float64       `yaml:"max_rps" default:"5"`
		Burst   int           `yaml:"burst" default:"1"`
		// Retries are extra attempts on 429, 5xx and transport errors.
		Retries      int           `yaml:"retries" default:"2" validate:"gte=0"`
		RetryBackoff time.Duration `yaml:"retry_backoff" default:"500ms"`
	} `yaml:"provider"`
	Cache struct {
		Enabled       bool          `yaml:"enabled"`
		Host          string        `yaml:"host" default:"localhost"`
		Port          int           `yaml:"port" default:"6379"`
		Password      string        `yaml:"password"`
		DB            int           `yaml:"db"`
		Prefix        string        `yaml:"prefix" default:"corrpull"`
		SeriesTTL     time.Duration `yaml:"series_ttl" default:"12h"`
		MemoryMaxSize int           `yaml:"memory_max_size" default:"2000"`
	} `yaml:"cache"`
	// Queue is the Redis-backed background job queue; it reuses the cache's Redis address.
	Queue struct {
		Enabled    bool          `yaml:"enabled"`
		Workers    int           `yaml:"workers" default:"1" validate:"gte=1"`
		RetryLimit int           `yaml:"retry_limit" default:"2" validate:"gte=0"`
		RetryDelay time.Duration `yaml:"retry_delay" default:"30s"`
		Prefix     string        `yaml:"prefix" default:"corrpull:queue"`
		StatusTTL  time.Duration `yaml:"status_ttl" default:"24h"`
	} `yaml:"queue"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"corrpull"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
	Postgres struct {
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"5432"`
		Database string `yaml:"database" default:"corrpull"`
		User     string `yaml:"user" default:"postgres"`
		Password string `yaml:"password"`
		SSLMode  string `yaml:"ssl_mode" default:"disable"`
	} `yaml:"postgres"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
		JobsTopic    string   `yaml:"jobs_topic" default:"corrpull.jobs"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"500ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"corrpull"`
			Workers    int           `yaml:"workers" default:"1"`
			RetryMax   int           `yaml:"retry_max" default:"1"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"200ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10000000"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Results struct {
		Backend string `yaml:"backend" default:"clickhouse" validate:"oneof=clickhouse postgres none"`
		Publish bool   `yaml:"publish"`
		Topic   string `yaml:"topic" default:"corrpull.rankings"`
	} `yaml:"results"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes, applies defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	c.applyWindowDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
// A .env file next to the process is honoured when present.
func LoadWithEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("PRIMARY_SYMBOLS"); v != "" {
		c.Correlation.PrimarySymbols = splitList(v)
	}
	if v := os.Getenv("CANDIDATE_SYMBOLS"); v != "" {
		c.Correlation.CandidateSymbols = splitList(v)
	}
	if v := os.Getenv("PROVIDER_API_KEY"); v != "" {
		c.Provider.APIKey = v
	}
	if v := os.Getenv("RESULTS_BACKEND"); v != "" {
		c.Results.Backend = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v, ok := envBool("FORCE_DOWNLOAD"); ok {
		c.Correlation.ForceDownload = v
	}
	if v, ok := envBool("USE_ALTERNATE_STORE"); ok {
		c.Correlation.UseAlternateStore = v
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyWindowDefaults() {
	if len(c.Correlation.Windows) == 0 {
		c.Correlation.Windows = []string{"2023"}
	}
	if len(c.Correlation.RankWindows) == 0 {
		c.Correlation.RankWindows = []string{"2010", "2018", "2021", "2022", "2023"}
	}
}

// Validate checks tag rules and the cross-section requirements.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Correlation.UseAlternateStore && !c.ClickHouse.Enabled {
		return errors.New("correlation.use_alternate_store requires clickhouse.enabled")
	}
	if c.Results.Backend == "clickhouse" && !c.ClickHouse.Enabled {
		return errors.New("results.backend 'clickhouse' requires clickhouse.enabled")
	}
	if (c.Results.Publish || c.Logging.Digest.Enabled) && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers required when publishing results or log digests")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers cannot be empty when kafka.enabled")
	}
	if !c.Correlation.UseAlternateStore && c.Provider.BaseURL == "" {
		return errors.New("provider.base_url is required unless correlation.use_alternate_store is set")
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}
