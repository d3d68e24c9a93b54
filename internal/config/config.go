// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Duration unmarshals YAML scalars like "30s" or "24h".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Filename string `yaml:"filename"`
}

type S3Config struct {
	Region   string `yaml:"region"`
	Bucket   string `yaml:"bucket"`
	Endpoint string `yaml:"endpoint"`
	// Loaded from environment
	AccessKeyID     string `yaml:"-"`
	SecretAccessKey string `yaml:"-"`
}

type CacheConfig struct {
	Dir string `yaml:"dir"`
	// Uploaded archives are attacker-controlled; extraction is bounded.
	MaxExtractedBytes int64    `yaml:"max_extracted_bytes"`
	ExtractTimeout    Duration `yaml:"extract_timeout"`
	SweepMaxAge       Duration `yaml:"sweep_max_age"`
	SweepCron         string   `yaml:"sweep_cron"`
}

type Config struct {
	App struct {
		Name        string `yaml:"name"`
		Environment string `yaml:"environment"`
		Port        int    `yaml:"port"`
		BearerToken string `yaml:"-"` // Loaded from environment
	} `yaml:"app"`

	Database DatabaseConfig `yaml:"database"`
	S3       S3Config       `yaml:"s3"`
	Cache    CacheConfig    `yaml:"cache"`

	Allowlist struct {
		Path string `yaml:"path"`
	} `yaml:"allowlist"`

	RateLimit struct {
		Window   Duration `yaml:"window"`
		Requests int      `yaml:"requests"`
	} `yaml:"rate_limit"`
}

// Load loads both .env and yaml configuration
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	// Load sensitive values from environment
	cfg.App.BearerToken = os.Getenv("BEARER_TOKEN")
	cfg.S3.AccessKeyID = os.Getenv("S3_KEY_ID")
	cfg.S3.SecretAccessKey = os.Getenv("S3_KEY")

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Cache.Dir == "" {
		c.Cache.Dir = "data/cache"
	}
	if c.Cache.MaxExtractedBytes == 0 {
		c.Cache.MaxExtractedBytes = 256 << 20
	}
	if c.Cache.ExtractTimeout == 0 {
		c.Cache.ExtractTimeout = Duration(30 * time.Second)
	}
	if c.Cache.SweepMaxAge == 0 {
		c.Cache.SweepMaxAge = Duration(24 * time.Hour)
	}
	if c.Cache.SweepCron == "" {
		c.Cache.SweepCron = "0 * * * *"
	}
	if c.RateLimit.Window == 0 {
		c.RateLimit.Window = Duration(time.Second)
	}
	if c.RateLimit.Requests == 0 {
		c.RateLimit.Requests = 10
	}
}

func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}
	if c.App.Port == 0 {
		return fmt.Errorf("app port is required")
	}
	if c.App.BearerToken == "" {
		return fmt.Errorf("BEARER_TOKEN is required")
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Filename == "" {
			return fmt.Errorf("database filename is required for sqlite")
		}
	case "":
		return fmt.Errorf("database driver is required")
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if c.S3.Bucket == "" {
		return fmt.Errorf("s3 bucket is required")
	}
	if c.S3.Region == "" {
		return fmt.Errorf("s3 region is required")
	}
	if c.S3.AccessKeyID == "" || c.S3.SecretAccessKey == "" {
		return fmt.Errorf("S3_KEY_ID and S3_KEY are required")
	}

	return nil
}
