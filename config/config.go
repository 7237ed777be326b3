package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so yaml values like "5m" decode directly.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration '%s': %w", s, err)
	}
	d.Duration = parsed
	return nil
}

type Config struct {
	Quantflow QuantflowConfig `yaml:"quantflow"`
	Logging   LoggingConfig   `yaml:"logging"`
	Data      DataConfig      `yaml:"data"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Feature   FeatureConfig   `yaml:"feature"`
	Strategy  StrategyConfig  `yaml:"strategy"`
	Signal    SignalConfig    `yaml:"signal"`
	Live      LiveConfig      `yaml:"live"`
	Storage   StorageConfig   `yaml:"storage"`
}

type QuantflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type LoggingConfig struct {
	Level   string `yaml:"level"`
	Format  string `yaml:"format"`
	Output  string `yaml:"output"`
	MaxAge  int    `yaml:"max_age"`
	Metrics bool   `yaml:"metrics"`
}

type DataConfig struct {
	RawDir      string `yaml:"raw_dir"`
	FeaturesDir string `yaml:"features_dir"`
	ModelsDir   string `yaml:"models_dir"`
}

type ArchiveConfig struct {
	Bucket    string          `yaml:"bucket"`
	Region    string          `yaml:"region"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

type FeatureConfig struct {
	VolatilityWindow int     `yaml:"volatility_window"`
	LabelHorizon     int     `yaml:"label_horizon"`
	LabelThreshold   float64 `yaml:"label_threshold"`
}

type StrategyConfig struct {
	BuyThreshold  float64       `yaml:"buy_threshold"`
	ExitThreshold float64       `yaml:"exit_threshold"`
	TakeProfit    float64       `yaml:"take_profit"`
	StopLoss      float64       `yaml:"stop_loss"`
	MaxHold       Duration      `yaml:"max_hold"`
	FeeRate       float64       `yaml:"fee_rate"`
	CashBuffer    float64       `yaml:"cash_buffer"`
	InitialCash   float64       `yaml:"initial_cash"`
	TestSplit     float64       `yaml:"test_split"`
}

type SignalConfig struct {
	Backend     string `yaml:"backend"`
	ONNXModel   string `yaml:"onnx_model"`
	ONNXLibrary string `yaml:"onnx_library"`
}

type LiveConfig struct {
	Feed     string              `yaml:"feed"`
	Coin     string              `yaml:"coin"`
	Interval Duration            `yaml:"interval"`
	Buffer   int                 `yaml:"buffer"`
	Hyper    HyperliquidWSConfig `yaml:"hyperliquid"`
	Binance  BinanceFeedConfig   `yaml:"binance"`
}

type HyperliquidWSConfig struct {
	URL string `yaml:"url"`
}

type BinanceFeedConfig struct {
	Symbol string `yaml:"symbol"`
	Levels string `yaml:"levels"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Prefix          string `yaml:"prefix"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := defaultConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override S3 settings from environment variables if available
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}
	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// defaultConfig carries the reference strategy constants. The thresholds are
// deliberately configuration rather than hard-coded so a run can override them.
func defaultConfig() Config {
	return Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Data: DataConfig{
			RawDir:      "data/raw",
			FeaturesDir: "data/features",
			ModelsDir:   "models",
		},
		Archive: ArchiveConfig{
			Bucket: "hyperliquid-archive",
			Region: "us-east-1",
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 5,
				BurstSize:         5,
			},
		},
		Feature: FeatureConfig{
			VolatilityWindow: 5,
			LabelHorizon:     5,
			LabelThreshold:   0.001,
		},
		Strategy: StrategyConfig{
			BuyThreshold:  0.6,
			ExitThreshold: 0.4,
			TakeProfit:    0.01,
			StopLoss:      0.005,
			MaxHold:       Duration{5 * time.Minute},
			FeeRate:       0.00025,
			CashBuffer:    0.99,
			InitialCash:   10000,
			TestSplit:     0.15,
		},
		Signal: SignalConfig{
			Backend: "logistic",
		},
		Live: LiveConfig{
			Feed:     "hyperliquid",
			Coin:     "SOL",
			Interval: Duration{time.Second},
			Buffer:   32,
			Hyper: HyperliquidWSConfig{
				URL: "wss://api.hyperliquid.xyz/ws",
			},
			Binance: BinanceFeedConfig{
				Levels: "5",
			},
		},
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Quantflow.Name == "" {
		return fmt.Errorf("quantflow.name is required")
	}
	if cfg.Quantflow.Version == "" {
		return fmt.Errorf("quantflow.version is required")
	}

	if cfg.Feature.VolatilityWindow <= 0 {
		return fmt.Errorf("feature.volatility_window must be greater than 0")
	}
	if cfg.Feature.LabelHorizon <= 0 {
		return fmt.Errorf("feature.label_horizon must be greater than 0")
	}

	if cfg.Strategy.BuyThreshold <= 0 || cfg.Strategy.BuyThreshold >= 1 {
		return fmt.Errorf("strategy.buy_threshold must be in (0, 1)")
	}
	if cfg.Strategy.ExitThreshold < 0 || cfg.Strategy.ExitThreshold >= cfg.Strategy.BuyThreshold {
		return fmt.Errorf("strategy.exit_threshold must be in [0, buy_threshold)")
	}
	if cfg.Strategy.TakeProfit <= 0 {
		return fmt.Errorf("strategy.take_profit must be greater than 0")
	}
	if cfg.Strategy.StopLoss <= 0 {
		return fmt.Errorf("strategy.stop_loss must be greater than 0")
	}
	if cfg.Strategy.MaxHold.Duration <= 0 {
		return fmt.Errorf("strategy.max_hold must be greater than 0")
	}
	if cfg.Strategy.FeeRate < 0 {
		return fmt.Errorf("strategy.fee_rate must not be negative")
	}
	if cfg.Strategy.CashBuffer <= 0 || cfg.Strategy.CashBuffer > 1 {
		return fmt.Errorf("strategy.cash_buffer must be in (0, 1]")
	}
	if cfg.Strategy.InitialCash <= 0 {
		return fmt.Errorf("strategy.initial_cash must be greater than 0")
	}
	if cfg.Strategy.TestSplit <= 0 || cfg.Strategy.TestSplit > 1 {
		return fmt.Errorf("strategy.test_split must be in (0, 1]")
	}

	switch cfg.Signal.Backend {
	case "logistic":
	case "onnx":
		if cfg.Signal.ONNXModel == "" {
			return fmt.Errorf("signal.onnx_model is required when backend is onnx")
		}
	default:
		return fmt.Errorf("signal.backend '%s' is invalid", cfg.Signal.Backend)
	}

	switch cfg.Live.Feed {
	case "hyperliquid":
		if cfg.Live.Hyper.URL == "" {
			return fmt.Errorf("live.hyperliquid.url is required")
		}
	case "binance":
		if cfg.Live.Binance.Symbol == "" {
			return fmt.Errorf("live.binance.symbol is required when feed is binance")
		}
	default:
		return fmt.Errorf("live.feed '%s' is invalid", cfg.Live.Feed)
	}
	if cfg.Live.Interval.Duration <= 0 {
		return fmt.Errorf("live.interval must be greater than 0")
	}
	if cfg.Live.Buffer < cfg.Feature.VolatilityWindow {
		return fmt.Errorf("live.buffer must be at least feature.volatility_window")
	}

	if cfg.Archive.Bucket == "" {
		return fmt.Errorf("archive.bucket is required")
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
	}

	return nil
}
