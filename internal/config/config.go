package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"courtbook/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig         `yaml:"app"`
	Database   DatabaseConfig    `yaml:"database"`
	Redis      RedisConfig       `yaml:"redis"`
	RabbitMQ   RabbitMQConfig    `yaml:"rabbitmq"`
	Monitoring MonitoringConfig  `yaml:"monitoring"`
	Logging    LoggingConfig     `yaml:"logging"`
	API        APIConfig         `yaml:"api"`
	Exports    ExportConfig      `yaml:"exports"`
	Holds      HoldsConfig       `yaml:"holds"`
	Drafts     DraftsConfig      `yaml:"drafts"`
	CourtTypes map[string]int    `yaml:"court_types"`
	Facilities []models.Facility `yaml:"facilities"`
	Catalog    string            `yaml:"catalog"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIGRPCConfig struct {
	Enabled    bool         `yaml:"enabled"`
	Port       int          `yaml:"port"`
	Reflection bool         `yaml:"reflection"`
	TLS        APITLSConfig `yaml:"tls"`
}

type APITLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

// APIClientKey is a caller credential. Permissions gate staff-only actions
// such as editing locked vouchers ("staff") or settling invoices ("billing").
type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type RabbitMQConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

// HoldsConfig drives the job that cancels unpaid holds.
type HoldsConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Interval      time.Duration `yaml:"interval"`
	MaxRetries    int           `yaml:"max_retries"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
	MaxRetryDelay time.Duration `yaml:"max_retry_delay"`
}

type DraftsConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

func Load(configPath string) (*Config, error) {
	// Загружаем .env файл если существует
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	for name, minutes := range c.CourtTypes {
		if minutes <= 0 {
			return fmt.Errorf("court type %q: slot minutes must be positive", name)
		}
	}

	if c.RabbitMQ.Enabled && c.RabbitMQ.URL == "" {
		return errors.New("rabbitmq url is required when enabled")
	}

	return ValidateFacilities(c.Facilities)
}

func ValidateFacilities(facilities []models.Facility) error {
	ids := make(map[int64]bool)
	for _, f := range facilities {
		if f.ID == 0 {
			return fmt.Errorf("facility '%s' has invalid ID 0", f.Name)
		}
		if ids[f.ID] {
			return fmt.Errorf("duplicate facility ID found: %d", f.ID)
		}
		ids[f.ID] = true

		if f.Timezone != "" {
			if _, err := time.LoadLocation(f.Timezone); err != nil {
				return fmt.Errorf("facility %d: %w", f.ID, err)
			}
		}
		open, err := models.ParseClock(f.OpenTime)
		if err != nil {
			return fmt.Errorf("facility %d open_time: %w", f.ID, err)
		}
		closeAt, err := models.ParseClock(f.CloseTime)
		if err != nil {
			return fmt.Errorf("facility %d close_time: %w", f.ID, err)
		}
		if closeAt <= open {
			return fmt.Errorf("facility %d: close_time must be after open_time", f.ID)
		}
		if err := ValidatePricing(f.Pricing); err != nil {
			return fmt.Errorf("facility %d pricing: %w", f.ID, err)
		}
	}
	return nil
}

// ValidatePricing checks ratio fields are in 0..1 and money fields non-negative.
func ValidatePricing(p models.PricingRules) error {
	ratios := map[string]float64{
		"loyalty_point_rate":    p.LoyaltyPointRate,
		"cancel_fee_before_24h": p.CancelFeeBefore24h,
		"cancel_fee_within_24h": p.CancelFeeWithin24h,
		"no_show_fee":           p.NoShowFee,
	}
	for name, v := range ratios {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be between 0 and 1, got %v", name, v)
		}
	}

	amounts := map[string]int64{
		"max_hold_minutes":  int64(p.MaxHoldMinutes),
		"night_surcharge":   p.NightSurcharge,
		"weekend_surcharge": p.WeekendSurcharge,
		"holiday_surcharge": p.HolidaySurcharge,
	}
	for name, v := range amounts {
		if v < 0 {
			return fmt.Errorf("%s must not be negative, got %d", name, v)
		}
	}

	if _, err := models.ParseClock(p.NightStart); err != nil {
		return fmt.Errorf("night_start: %w", err)
	}
	for _, h := range p.Holidays {
		if _, err := time.Parse(models.DateLayout, h); err != nil {
			return fmt.Errorf("holiday %q: %w", h, err)
		}
	}
	return nil
}

// SlotMinutes resolves the slot length of a court type.
func (c *Config) SlotMinutes(courtType string) int {
	if m, ok := c.CourtTypes[courtType]; ok && m > 0 {
		return m
	}
	return models.DefaultSlotMinutes
}

func (c *Config) applyDefaults() {
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	// auth enabled by default when API is enabled
	if !c.API.Auth.Enabled {
		c.API.Auth.Enabled = true
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
	if c.RabbitMQ.Exchange == "" {
		c.RabbitMQ.Exchange = "courtbook.events"
	}

	if c.Holds.Interval == 0 {
		c.Holds.Interval = time.Minute
	}
	if c.Holds.MaxRetries == 0 {
		c.Holds.MaxRetries = 3
	}
	if c.Holds.RetryDelay == 0 {
		c.Holds.RetryDelay = time.Second
	}
	if c.Holds.MaxRetryDelay == 0 {
		c.Holds.MaxRetryDelay = 30 * time.Second
	}
	if c.Drafts.TTL == 0 {
		c.Drafts.TTL = models.DefaultDraftTTL * time.Second
	}

	if c.CourtTypes == nil {
		c.CourtTypes = map[string]int{"badminton": models.DefaultSlotMinutes}
	}

	for i := range c.Facilities {
		f := &c.Facilities[i]
		if f.Timezone == "" {
			f.Timezone = "UTC"
		}
		if f.Pricing.NightStart == "" {
			f.Pricing.NightStart = models.DefaultNightStart
		}
		if f.Pricing.MaxHoldMinutes == 0 {
			f.Pricing.MaxHoldMinutes = models.DefaultMaxHoldMinutes
		}
	}
}
