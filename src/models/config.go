package models

// MConfig Structure
type MConfig struct {
	Name      string           `yaml:"name"`
	Host      string           `yaml:"host"`
	Port      int              `yaml:"port"`
	LogLevel  string           `yaml:"log_level"`
	GrpcHost  string           `yaml:"grpc_host"`
	GrpcPort  int              `yaml:"grpc_port"`
	Storage   MStorageConfig   `yaml:"storage"`
	Network   MNetworkConfig   `yaml:"network"`
	Upstream  MUpstreamConfig  `yaml:"upstream"`
	Sec       MSecConfig       `yaml:"sec"`
	Yahoo     MYahooConfig     `yaml:"yahoo"`
	Cache     MCacheConfig     `yaml:"cache"`
	Scheduler MSchedulerConfig `yaml:"scheduler"`
	Tracking  MTrackingConfig  `yaml:"tracking"`
}

type MStorageConfig struct {
	DBType             string `yaml:"db_type"`
	DBPath             string `yaml:"db_path"`
	DBConnectionString string `yaml:"db_connection_string"`
	RetentionDays      int    `yaml:"retention_days"`
}

type MNetworkConfig struct {
	RequestTimeout int    `yaml:"timeout"`
	UserAgent      string `yaml:"user_agent"`
}

type MUpstreamConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	RequestLogPath string `yaml:"request_log_path"`
	NewsLimit      int    `yaml:"news_limit"`
	// Minutes the upstream intraday feed lags behind real time
	IntradayDelayMinutes int `yaml:"intraday_delay_minutes"`
}

type MSecConfig struct {
	BaseURL       string `yaml:"base_url"`
	DataURL       string `yaml:"data_url"`
	UserAgent     string `yaml:"user_agent"`
	MinIntervalMs int    `yaml:"min_interval_ms"`
	TickerMapTTL  int    `yaml:"ticker_map_ttl"`
}

// MYahooConfig configures the fallback source for intraday bars and shares
type MYahooConfig struct {
	Disabled      bool   `yaml:"disabled"`
	BaseURL       string `yaml:"base_url"`
	UserAgent     string `yaml:"user_agent"`
	MinIntervalMs int    `yaml:"min_interval_ms"`
}

// MCacheConfig holds TTLs in seconds
type MCacheConfig struct {
	DailyPrices    int `yaml:"daily_prices"`
	IntradayPrices int `yaml:"intraday_prices"`
	LivePrices     int `yaml:"live_prices"`
	News           int `yaml:"news"`
	Fundamentals   int `yaml:"fundamentals"`
	CompanyInfo    int `yaml:"company_info"`
	Search         int `yaml:"search"`
}

type MSchedulerConfig struct {
	PriceIntervalSeconds     int    `yaml:"price_interval_seconds"`
	NewsIntervalSeconds      int    `yaml:"news_interval_seconds"`
	ReconcileIntervalSeconds int    `yaml:"reconcile_interval_seconds"`
	DailyJobTime             string `yaml:"daily_job_time"`
	DailyJobTimezone         string `yaml:"daily_job_timezone"`
	FundamentalsJobTime      string `yaml:"fundamentals_job_time"`
}

type MTrackingConfig struct {
	SeedSymbols     []string `yaml:"seed_symbols"`
	PrefetchYears   int      `yaml:"prefetch_years"`
	DefaultExchange string   `yaml:"default_exchange"`
}
