package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string           `yaml:"environment" default:"development"`
	Server      ServerConfig     `yaml:"server"`
	Logging     LoggingConfig    `yaml:"logging"`
	Metrics     MetricsConfig    `yaml:"metrics"`
	Models      ModelsConfig     `yaml:"models"`
	Features    FeaturesConfig   `yaml:"features"`
	GP          GPConfig         `yaml:"gp"`
	Training    TrainingConfig   `yaml:"training"`
	Prediction  PredictionConfig `yaml:"prediction"`
	Redis       RedisConfig      `yaml:"redis"`
	Kafka       KafkaConfig      `yaml:"kafka"`
	ClickHouse  ClickHouseConfig `yaml:"clickhouse"`
	Storage     StorageConfig    `yaml:"storage"`
	RateLimit   RateLimitConfig  `yaml:"ratelimit"`
}

type ServerConfig struct {
	Host            string        `yaml:"host" default:"0.0.0.0"`
	Port            int           `yaml:"port" default:"3020"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	CORS            bool          `yaml:"cors" default:"true"`
	WSPingInterval  time.Duration `yaml:"ws_ping_interval" default:"30s"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" default:"info"`
	Format string `yaml:"format" default:"json"`
	Output string `yaml:"output" default:"stdout"`
	// Collect aggregates error logs and ships digests to kafka.topics.logs.
	Collect         bool          `yaml:"collect"`
	CollectInterval time.Duration `yaml:"collect_interval" default:"30s"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"/metrics"`
}

type ModelsConfig struct {
	Dir      string        `yaml:"dir" default:"models"`
	Watch    bool          `yaml:"watch" default:"true"`
	Debounce time.Duration `yaml:"debounce" default:"500ms"`
}

type FeaturesConfig struct {
	ExpectedWidth     int     `yaml:"expected_width" default:"100"`
	VarianceThreshold float64 `yaml:"variance_threshold" default:"1e-10"`
}

// GPParams mirrors gp.Params; kept here so the config package has no
// dependency on the math code.
type GPParams struct {
	Kernel      string  `yaml:"kernel" default:"rbf"`
	Amplitude   float64 `yaml:"amplitude" default:"1"`
	LengthScale float64 `yaml:"length_scale"`
	Noise       float64 `yaml:"noise" default:"0.1"`
	Alpha       float64 `yaml:"alpha" default:"1e-6"`
	NormalizeY  bool    `yaml:"normalize_y" default:"true"`
}

type GPConfig struct {
	PnL        GPParams `yaml:"pnl"`
	Trajectory GPParams `yaml:"trajectory" default:"{\"kernel\":\"matern32\"}"`
	Risk       GPParams `yaml:"risk"`
	Workers    int      `yaml:"workers" default:"4"`
}

type TrainingConfig struct {
	DataDir              string  `yaml:"data_dir" default:"data"`
	Seed                 int64   `yaml:"seed" default:"42"`
	MinSamples           int     `yaml:"min_samples" default:"20"`
	MinPnLVariance       float64 `yaml:"min_pnl_variance" default:"1e-6"`
	HoldoutFraction      float64 `yaml:"holdout_fraction" default:"0.2"`
	MaxTrajectorySamples int     `yaml:"max_trajectory_samples" default:"500"`
	MinGroupSamples      int     `yaml:"min_group_samples" default:"10"`
	TrajectoryLength     int     `yaml:"trajectory_length" default:"50"`
	DefaultStopLoss      float64 `yaml:"default_stop_loss" default:"10"`
	DefaultTakeProfit    float64 `yaml:"default_take_profit" default:"18"`
	// AutoTrain trains every key from the record source when no bundle is
	// found on disk at startup.
	AutoTrain bool `yaml:"auto_train"`
}

type PredictionConfig struct {
	ConfidenceJitter bool        `yaml:"confidence_jitter" default:"true"`
	Cache            CacheConfig `yaml:"cache"`
}

type CacheConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Backend    string        `yaml:"backend" default:"memory"` // memory, redis or layered
	TTL        time.Duration `yaml:"ttl" default:"30s"`
	MaxEntries int           `yaml:"max_entries" default:"10000"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" default:"localhost:6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix" default:"gp"`
}

type KafkaConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Brokers      []string `yaml:"brokers"`
	RequiredAcks int      `yaml:"required_acks" default:"1"`
	Compression  string   `yaml:"compression" default:"snappy"`
	Topics       struct {
		Observations string `yaml:"observations" default:"gp.observations"`
		Summaries    string `yaml:"summaries" default:"gp.training.summaries"`
		Logs         string `yaml:"logs" default:"gp.logs"`
	} `yaml:"topics"`
	Producer struct {
		MaxAttempts  int           `yaml:"max_attempts" default:"3"`
		Linger       time.Duration `yaml:"linger" default:"10ms"`
		BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
		BatchSize    int           `yaml:"batch_size" default:"100"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		Async        bool          `yaml:"async"`
	} `yaml:"producer"`
	Consumer struct {
		GroupID    string        `yaml:"group_id" default:"gp-collector"`
		Workers    int           `yaml:"workers" default:"4"`
		BufferSize int           `yaml:"buffer_size" default:"256"`
		RetryMax   int           `yaml:"retry_max" default:"3"`
		BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
		BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
		DLQTopic   string        `yaml:"dlq_topic" default:"gp.observations.dlq"`
		MinBytes   int           `yaml:"min_bytes" default:"1"`
		MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		// InProcess runs the observations consumer inside the server
		// instead of a separate `trainer collect` process.
		InProcess bool `yaml:"in_process"`
	} `yaml:"consumer"`
}

type ClickHouseConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Host             string        `yaml:"host" default:"localhost"`
	Port             int           `yaml:"port" default:"9000"`
	Database         string        `yaml:"database" default:"default"`
	Table            string        `yaml:"table" default:"gp_observations"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	AsyncInsert      bool          `yaml:"async_insert"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
	WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
}

type StorageConfig struct {
	// Source of raw trade vectors for train-all and export: http, clickhouse or none.
	Source  string        `yaml:"source" default:"http"`
	URL     string        `yaml:"url" default:"http://localhost:3015"`
	Timeout time.Duration `yaml:"timeout" default:"30s"`
}

type RateLimitConfig struct {
	Enabled  bool    `yaml:"enabled" default:"true"`
	Capacity int     `yaml:"capacity" default:"5"`
	Refill   float64 `yaml:"refill_per_sec" default:"0.1"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var c Config
	if err := defaults.Set(&c); err != nil {
		// struct tags are static, a failure here is a programming error
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return &c
}

// Load reads and parses a YAML configuration file on top of the defaults.
// An empty path yields the defaults.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("PORT: %w", err)
		}
		c.Server.Port = p
	}
	if v := os.Getenv("MODELS_DIR"); v != "" {
		c.Models.Dir = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		c.Training.DataDir = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("CLICKHOUSE_ADDR"); v != "" {
		host, port, ok := strings.Cut(v, ":")
		c.ClickHouse.Host = host
		if ok {
			p, err := strconv.Atoi(port)
			if err != nil {
				return nil, fmt.Errorf("CLICKHOUSE_ADDR: %w", err)
			}
			c.ClickHouse.Port = p
		}
		c.ClickHouse.Enabled = true
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Models.Dir == "" {
		return fmt.Errorf("models.dir is required")
	}
	if c.Features.ExpectedWidth <= 0 {
		return fmt.Errorf("features.expected_width must be positive, got %d", c.Features.ExpectedWidth)
	}
	if c.Features.VarianceThreshold < 0 {
		return fmt.Errorf("features.variance_threshold cannot be negative")
	}
	for name, p := range map[string]GPParams{"pnl": c.GP.PnL, "trajectory": c.GP.Trajectory, "risk": c.GP.Risk} {
		if p.Kernel != "rbf" && p.Kernel != "matern32" {
			return fmt.Errorf("gp.%s.kernel must be 'rbf' or 'matern32', got '%s'", name, p.Kernel)
		}
		if p.Noise < 0 || p.Alpha < 0 {
			return fmt.Errorf("gp.%s: noise and alpha cannot be negative", name)
		}
	}
	if c.Training.MinSamples < 1 {
		return fmt.Errorf("training.min_samples must be at least 1")
	}
	if c.Training.HoldoutFraction < 0 || c.Training.HoldoutFraction >= 1 {
		return fmt.Errorf("training.holdout_fraction must be in [0, 1), got %g", c.Training.HoldoutFraction)
	}
	switch c.Prediction.Cache.Backend {
	case "memory", "redis", "layered":
	default:
		return fmt.Errorf("prediction.cache.backend must be 'memory', 'redis' or 'layered', got '%s'", c.Prediction.Cache.Backend)
	}
	switch c.Storage.Source {
	case "http", "clickhouse", "none":
	default:
		return fmt.Errorf("storage.source must be 'http', 'clickhouse' or 'none', got '%s'", c.Storage.Source)
	}
	if c.Storage.Source == "clickhouse" && !c.ClickHouse.Enabled {
		return fmt.Errorf("storage.source 'clickhouse' requires clickhouse.enabled")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Kafka.Consumer.InProcess && (!c.Kafka.Enabled || !c.ClickHouse.Enabled) {
		return fmt.Errorf("kafka.consumer.in_process requires kafka.enabled and clickhouse.enabled")
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
