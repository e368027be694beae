package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	riskerrors "github.com/ducminhle1904/tpsl-guard/internal/errors"
	"github.com/ducminhle1904/tpsl-guard/internal/safety"
)

// Config is the effective process configuration. Values come from defaults,
// then an optional YAML file, then environment variables.
type Config struct {
	Safety      safety.SafetyConfig `yaml:"safety" json:"safety"`
	Calibration CalibrationConfig   `yaml:"calibration" json:"calibration"`
	Logging     LoggingConfig       `yaml:"logging" json:"logging"`
	Monitoring  MonitoringConfig    `yaml:"monitoring" json:"monitoring"`
	Exchange    ExchangeConfig      `yaml:"exchange" json:"exchange"`
}

// CalibrationConfig holds stop-loss calibration settings
type CalibrationConfig struct {
	OutcomePath string  `yaml:"outcome_path" json:"outcome_path"`
	Percentile  float64 `yaml:"percentile" json:"percentile"`
	DefaultBps  float64 `yaml:"default_bps" json:"default_bps"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	Dir   string `yaml:"dir" json:"dir"`
}

// MonitoringConfig holds metrics server settings
type MonitoringConfig struct {
	PrometheusPort int `yaml:"prometheus_port" json:"prometheus_port"`
}

// ExchangeConfig holds Bybit credentials and environment
type ExchangeConfig struct {
	APIKey    string `yaml:"api_key" json:"-"`
	APISecret string `yaml:"api_secret" json:"-"`
	Testnet   bool   `yaml:"testnet" json:"testnet"`
	Demo      bool   `yaml:"demo" json:"demo"`
	Category  string `yaml:"category" json:"category"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Safety: safety.DefaultSafetyConfig(),
		Calibration: CalibrationConfig{
			OutcomePath: "data/features/outcomes.jsonl",
			Percentile:  0.7,
			DefaultBps:  60,
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   "logs",
		},
		Monitoring: MonitoringConfig{
			PrometheusPort: 8080,
		},
		Exchange: ExchangeConfig{
			Category: "linear",
		},
	}
}

// Load builds the configuration from defaults and environment variables
func Load() *Config {
	cfg := Default()
	cfg.applyEnv()
	return cfg
}

// LoadFile reads a YAML file over the defaults and then applies environment
// overrides. An empty path behaves like Load.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, riskerrors.Wrap(err, riskerrors.ErrorCategoryConfiguration, "config", "LoadFile").
				WithContext("path", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, riskerrors.Wrap(fmt.Errorf("failed to parse config file: %w", err),
				riskerrors.ErrorCategoryConfiguration, "config", "LoadFile").WithContext("path", path)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// LoadEnvFile loads variables from a .env file if it exists. A missing file
// is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

func (c *Config) applyEnv() {
	c.Safety.AdoptExistingOrders = getEnvBool("TP_ADOPT_EXISTING", c.Safety.AdoptExistingOrders)
	c.Safety.CancelNonManagedOrders = getEnvBool("TP_CANCEL_NON_B44", c.Safety.CancelNonManagedOrders)
	c.Safety.DryRun = getEnvBool("TP_DRY_RUN", c.Safety.DryRun)
	c.Safety.GracePeriodSeconds = getEnvInt("TP_STARTUP_GRACE_SEC", c.Safety.GracePeriodSeconds)
	c.Safety.ManagedTag = getEnv("TP_MANAGED_TAG", c.Safety.ManagedTag)

	c.Calibration.OutcomePath = getEnv("OUTCOME_PATH", c.Calibration.OutcomePath)
	c.Calibration.Percentile = getEnvFloat("SL_MAE_PCT", c.Calibration.Percentile)
	c.Calibration.DefaultBps = getEnvFloat("SL_DEFAULT_BPS", c.Calibration.DefaultBps)

	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Dir = getEnv("LOG_DIR", c.Logging.Dir)

	c.Monitoring.PrometheusPort = getEnvInt("PROMETHEUS_PORT", c.Monitoring.PrometheusPort)

	c.Exchange.APIKey = getEnv("BYBIT_API_KEY", c.Exchange.APIKey)
	c.Exchange.APISecret = getEnv("BYBIT_API_SECRET", c.Exchange.APISecret)
	c.Exchange.Testnet = getEnvBool("BYBIT_TESTNET", c.Exchange.Testnet)
	c.Exchange.Demo = getEnvBool("BYBIT_DEMO", c.Exchange.Demo)
	c.Exchange.Category = getEnv("BYBIT_CATEGORY", c.Exchange.Category)
}

// SafetyConfig returns the guardrail settings with unsafe values replaced
func (c *Config) SafetyConfig() safety.SafetyConfig {
	return c.Safety.Sanitized()
}

// Validate checks the configuration for values the process cannot run with
func (c *Config) Validate() error {
	if err := c.Safety.Validate(); err != nil {
		return err
	}
	if c.Calibration.Percentile <= 0 || c.Calibration.Percentile > 1 {
		return riskerrors.NewConfigurationError("config", "Validate",
			fmt.Sprintf("calibration percentile must be in (0, 1], got: %v", c.Calibration.Percentile))
	}
	if c.Calibration.DefaultBps <= 0 {
		return riskerrors.NewConfigurationError("config", "Validate",
			fmt.Sprintf("calibration default_bps must be positive, got: %v", c.Calibration.DefaultBps))
	}
	if c.Monitoring.PrometheusPort < 0 || c.Monitoring.PrometheusPort > 65535 {
		return riskerrors.NewConfigurationError("config", "Validate",
			fmt.Sprintf("invalid prometheus port: %d", c.Monitoring.PrometheusPort))
	}
	switch c.Exchange.Category {
	case "linear", "inverse", "spot":
	default:
		return riskerrors.NewConfigurationError("config", "Validate",
			fmt.Sprintf("unsupported exchange category: %s", c.Exchange.Category))
	}
	return nil
}

// HasCredentials reports whether exchange API keys are set
func (c *Config) HasCredentials() bool {
	return c.Exchange.APIKey != "" && c.Exchange.APISecret != ""
}

func getEnv(key, defaultVal string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return ParseBool(val)
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

// ParseBool accepts 1, true, yes, y and on (any case); everything else is false
func ParseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}
