package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Gateway GatewayConfig `yaml:"gateway"`
	Extract ExtractConfig `yaml:"extract"`
	Agents  AgentsConfig  `yaml:"agents"`
	NATS    NATSConfig    `yaml:"nats"`
	Store   StoreConfig   `yaml:"store"`
	Web     WebConfig     `yaml:"web"`
	Sweep   SweepConfig   `yaml:"sweep"`
}

// GatewayConfig points at the OpenAI-compatible extraction gateway.
type GatewayConfig struct {
	Endpoint      string        `yaml:"endpoint"`
	APIKey        string        `yaml:"api_key"`
	Model         string        `yaml:"model"`
	Timeout       time.Duration `yaml:"timeout"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
}

type ExtractConfig struct {
	MaxBatches int           `yaml:"max_batches"`
	BatchDelay time.Duration `yaml:"batch_delay"`
}

type AgentsConfig struct {
	// IdleDelay is how long agents stay in completed/error before
	// auto-returning to idle.
	IdleDelay time.Duration `yaml:"idle_delay"`
}

type NATSConfig struct {
	Port    int    `yaml:"port"`
	DataDir string `yaml:"data_dir"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Auth    string `yaml:"auth"`
}

type SweepConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Schedule     string        `yaml:"schedule"`
	MaxAge       time.Duration `yaml:"max_age"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

func defaults() Config {
	return Config{
		Gateway: GatewayConfig{
			Endpoint:      "http://localhost:8080",
			Model:         "gpt-4-turbo-preview",
			Timeout:       60 * time.Second,
			RetryAttempts: 3,
			RetryDelay:    time.Second,
		},
		Extract: ExtractConfig{
			MaxBatches: 5,
			BatchDelay: 2 * time.Second,
		},
		Agents: AgentsConfig{
			IdleDelay: 3 * time.Second,
		},
		NATS: NATSConfig{
			Port:    4222,
			DataDir: "data/nats",
		},
		Store: StoreConfig{
			Path: "data/foliograph.db",
		},
		Web: WebConfig{
			Enabled: true,
			Port:    8090,
		},
		Sweep: SweepConfig{
			Enabled:      false,
			Schedule:     "0 3 * * *",
			MaxAge:       720 * time.Hour,
			PollInterval: time.Minute,
		},
	}
}

func Load() (*Config, error) {
	cfg := defaults()

	path := os.Getenv("FOLIOGRAPH_CONFIG")
	if path == "" {
		path = "config/foliograph.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found, use defaults + env
	} else {
		// Expand environment variables in YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	applyEnv(&cfg)

	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("FOLIOGRAPH_GATEWAY_URL"); v != "" {
		cfg.Gateway.Endpoint = v
	}
	if v := os.Getenv("FOLIOGRAPH_GATEWAY_API_KEY"); v != "" {
		cfg.Gateway.APIKey = v
	}
	if v := os.Getenv("FOLIOGRAPH_GATEWAY_MODEL"); v != "" {
		cfg.Gateway.Model = v
	}
	if v := os.Getenv("FOLIOGRAPH_WEB_PASSWORD"); v != "" {
		cfg.Web.Auth = v
	}
	if v := os.Getenv("FOLIOGRAPH_WEB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Web.Port = port
		}
	}
	if v := os.Getenv("FOLIOGRAPH_NATS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.NATS.Port = port
		}
	}
	if v := os.Getenv("FOLIOGRAPH_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
}
