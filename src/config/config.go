package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"market-data-server/src/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// NewConfig creates a new Config from a YAML file, a .env file next to the
// working directory (if any) and the process environment, in that order.
func NewConfig(configPath string) (*Config, error) {
	// 1. Read the YAML file content
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	// 2. Unmarshal data into the models struct
	var modelConfig models.MConfig
	if err := yaml.Unmarshal(data, &modelConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
	}

	config := &Config{MConfig: &modelConfig}
	config.ApplyDefaults()

	// 3. Environment wins over YAML. A missing .env is fine.
	_ = godotenv.Load()
	config.ApplyEnvOverrides(os.Getenv)

	// 4. Validate the loaded configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

// Default returns a configuration with every default filled in
func Default() *Config {
	c := &Config{MConfig: &models.MConfig{}}
	c.ApplyDefaults()
	return c
}

// -----------------------------------------------------------------------------

// ApplyDefaults fills zero values
func (c *Config) ApplyDefaults() {
	setStr := func(p *string, v string) {
		if *p == "" {
			*p = v
		}
	}
	setInt := func(p *int, v int) {
		if *p == 0 {
			*p = v
		}
	}

	setStr(&c.Name, "data-server")
	setStr(&c.Host, "0.0.0.0")
	setInt(&c.Port, 8000)
	setStr(&c.LogLevel, "INFO")
	setStr(&c.GrpcHost, "0.0.0.0")
	setInt(&c.GrpcPort, 50051)

	setStr(&c.Storage.DBType, "sqlite")
	if c.Storage.DBType == "sqlite" {
		setStr(&c.Storage.DBPath, "data/data_server.db")
	}
	setInt(&c.Storage.RetentionDays, 7)

	setInt(&c.Network.RequestTimeout, 30)
	setStr(&c.Network.UserAgent, "market-data-server/1.0")

	setStr(&c.Upstream.BaseURL, "https://eodhd.com/api")
	setStr(&c.Upstream.RequestLogPath, "logs/eodhd_requests.log")
	setInt(&c.Upstream.NewsLimit, 100)
	setInt(&c.Upstream.IntradayDelayMinutes, 15)

	setStr(&c.Sec.BaseURL, "https://www.sec.gov")
	setStr(&c.Sec.DataURL, "https://data.sec.gov")
	setStr(&c.Sec.UserAgent, "FinalyzeApp admin@finalyze.local")
	setInt(&c.Sec.MinIntervalMs, 150)
	setInt(&c.Sec.TickerMapTTL, 86400)

	setStr(&c.Yahoo.BaseURL, "https://query2.finance.yahoo.com")
	setStr(&c.Yahoo.UserAgent, "Mozilla/5.0 (X11; Linux x86_64)")
	setInt(&c.Yahoo.MinIntervalMs, 250)

	setInt(&c.Cache.DailyPrices, 86400)
	setInt(&c.Cache.IntradayPrices, 60)
	setInt(&c.Cache.LivePrices, 15)
	setInt(&c.Cache.News, 900)
	setInt(&c.Cache.Fundamentals, 86400)
	setInt(&c.Cache.CompanyInfo, 604800)
	setInt(&c.Cache.Search, 3600)

	setInt(&c.Scheduler.PriceIntervalSeconds, 15)
	setInt(&c.Scheduler.NewsIntervalSeconds, 900)
	setInt(&c.Scheduler.ReconcileIntervalSeconds, 60)
	setStr(&c.Scheduler.DailyJobTime, "16:30")
	setStr(&c.Scheduler.DailyJobTimezone, "America/New_York")
	setStr(&c.Scheduler.FundamentalsJobTime, "10:00")

	setInt(&c.Tracking.PrefetchYears, 5)
	setStr(&c.Tracking.DefaultExchange, models.DefaultExchange)
}

// -----------------------------------------------------------------------------

// ApplyEnvOverrides reads overrides through getenv. Unset variables leave values alone.
func (c *Config) ApplyEnvOverrides(getenv func(string) string) {
	if v := getenv("EODHD_API_KEY"); v != "" {
		c.Upstream.APIKey = v
	}
	if v := getenv("DATABASE_URL"); v != "" {
		c.Storage.DBType = "postgres"
		c.Storage.DBConnectionString = v
	}
	if v := getenv("DATA_SERVER_HOST"); v != "" {
		c.Host = v
	}
	if v := getenv("DATA_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
	if v := getenv("SEC_USER_AGENT"); v != "" {
		c.Sec.UserAgent = v
	}
	if v := getenv("YAHOO_BASE_URL"); v != "" {
		c.Yahoo.BaseURL = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}

	if c.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Port <= 1024 || c.Port > 65535 {
		return fmt.Errorf("invalid server port number: %d (must be between 1025 and 65535)", c.Port)
	}
	if c.GrpcPort <= 1024 || c.GrpcPort > 65535 {
		return fmt.Errorf("invalid grpc port number: %d", c.GrpcPort)
	}

	// Validate Storage configuration
	switch c.Storage.DBType {
	case "sqlite":
		if c.Storage.DBPath == "" {
			return fmt.Errorf("database path cannot be empty for sqlite")
		}
	case "postgres":
		if c.Storage.DBConnectionString == "" {
			return fmt.Errorf("connection string cannot be empty for postgres")
		}
	case "":
		return fmt.Errorf("database type cannot be empty")
	default:
		return fmt.Errorf("unsupported database type: %s", c.Storage.DBType)
	}
	if c.Storage.RetentionDays <= 0 {
		return fmt.Errorf("retention days must be greater than 0")
	}

	if c.Network.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be greater than 0")
	}
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream base url cannot be empty")
	}
	if c.Sec.MinIntervalMs < 0 {
		return fmt.Errorf("sec min interval cannot be negative")
	}
	if c.Yahoo.MinIntervalMs < 0 {
		return fmt.Errorf("yahoo min interval cannot be negative")
	}

	ttls := map[string]int{
		"daily_prices":    c.Cache.DailyPrices,
		"intraday_prices": c.Cache.IntradayPrices,
		"live_prices":     c.Cache.LivePrices,
		"news":            c.Cache.News,
		"fundamentals":    c.Cache.Fundamentals,
		"company_info":    c.Cache.CompanyInfo,
		"search":          c.Cache.Search,
	}
	for name, ttl := range ttls {
		if ttl <= 0 {
			return fmt.Errorf("cache ttl %s must be greater than 0", name)
		}
	}

	if c.Scheduler.PriceIntervalSeconds <= 0 || c.Scheduler.NewsIntervalSeconds <= 0 || c.Scheduler.ReconcileIntervalSeconds <= 0 {
		return fmt.Errorf("scheduler intervals must be greater than 0")
	}
	if _, err := time.Parse("15:04", c.Scheduler.DailyJobTime); err != nil {
		return fmt.Errorf("invalid daily job time '%s': %w", c.Scheduler.DailyJobTime, err)
	}
	if _, err := time.Parse("15:04", c.Scheduler.FundamentalsJobTime); err != nil {
		return fmt.Errorf("invalid fundamentals job time '%s': %w", c.Scheduler.FundamentalsJobTime, err)
	}
	if _, err := time.LoadLocation(c.Scheduler.DailyJobTimezone); err != nil {
		return fmt.Errorf("invalid daily job timezone '%s': %w", c.Scheduler.DailyJobTimezone, err)
	}

	return nil
}

// -----------------------------------------------------------------------------

// TTL returns a cache TTL in seconds as a duration
func TTL(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}

// -----------------------------------------------------------------------------

// Save persists the current configuration to the specified YAML file path
func (c *Config) Save(configPath string) error {
	// 1. Marshal the struct to YAML
	data, err := yaml.Marshal(c.MConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	// 2. Write to file (0644 permissions)
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}
