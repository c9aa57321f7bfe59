package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Engine    Engine    `yaml:"engine"`
	Server    Server    `yaml:"server"`
	Database  Database  `yaml:"database"`
	Pricefeed Pricefeed `yaml:"pricefeed"`
	LogLevel  string    `yaml:"log_level"`
}

type Engine struct {
	QueueSize int `yaml:"queue_size"`
}

type Server struct {
	ListenAddr string `yaml:"listen_addr"`
}

type Database struct {
	// URL is empty when trade persistence is disabled.
	URL string `yaml:"url"`
}

type Pricefeed struct {
	Enabled  bool     `yaml:"enabled"`
	Markets  []string `yaml:"markets"` // "BASE/QUOTE" strings
	Interval Duration `yaml:"interval"`
}

// Duration accepts "30s"-style YAML values, which yaml.v3 will not decode
// into time.Duration directly.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func Default() Config {
	return Config{
		Engine:   Engine{QueueSize: 100},
		Server:   Server{ListenAddr: ":8080"},
		LogLevel: "info",
		Pricefeed: Pricefeed{
			Enabled:  false,
			Markets:  []string{"BTC/USD", "ETH/USD"},
			Interval: Duration(30 * time.Second),
		},
	}
}

// Load reads configuration in priority order: environment > YAML file >
// defaults. A .env file in the working directory is loaded first if present.
func Load(path string) (Config, error) {
	cfg := Default()

	_ = godotenv.Load() // optional

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	if v := os.Getenv("ENGINE_QUEUE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("ENGINE_QUEUE_SIZE: %w", err)
		}
		cfg.Engine.QueueSize = n
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("PRICEFEED_ENABLED"); v != "" {
		cfg.Pricefeed.Enabled = v == "true"
	}
	if v := os.Getenv("PRICEFEED_INTERVAL_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("PRICEFEED_INTERVAL_MS: %w", err)
		}
		cfg.Pricefeed.Interval = Duration(time.Duration(ms) * time.Millisecond)
	}

	if cfg.Engine.QueueSize <= 0 {
		return Config{}, fmt.Errorf("engine queue size must be positive, got %d", cfg.Engine.QueueSize)
	}
	return cfg, nil
}
