package config

// Config is the top-level YAML structure. Every field can be overridden by a
// TRADELEDGER_-prefixed environment variable, e.g. TRADELEDGER_STORE_DRIVER.
type Config struct {
	Server    ServerConf    `yaml:"server" envPrefix:"SERVER_"`
	Store     StoreConf     `yaml:"store" envPrefix:"STORE_"`
	Lifecycle LifecycleConf `yaml:"lifecycle" envPrefix:"LIFECYCLE_"`
	Listing   ListingConf   `yaml:"listing" envPrefix:"LISTING_"`
	Ingest    IngestConf    `yaml:"ingest" envPrefix:"INGEST_"`
	Auth      AuthConf      `yaml:"auth" envPrefix:"AUTH_"`
	Log       LogConf       `yaml:"log" envPrefix:"LOG_"`
}

// ServerConf holds HTTP listener settings.
type ServerConf struct {
	Addr              string `yaml:"addr" env:"ADDR"`
	ShutdownTimeoutMs int    `yaml:"shutdown_timeout_ms" env:"SHUTDOWN_TIMEOUT_MS"`
}

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// StoreConf selects and configures the event store backend.
type StoreConf struct {
	Driver string    `yaml:"driver" env:"DRIVER"`
	Path   string    `yaml:"path" env:"PATH"` // sqlite
	DSN    string    `yaml:"dsn" env:"DSN"`   // postgres
	Redis  RedisConf `yaml:"redis" envPrefix:"REDIS_"`
}

type RedisConf struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
	Prefix   string `yaml:"prefix" env:"PREFIX"`
}

// LifecycleConf maps onto lifecycle.Policy and is re-applied on hot reload.
type LifecycleConf struct {
	// TerminalCancellation rejects further events once a trade is cancelled.
	TerminalCancellation bool   `yaml:"terminal_cancellation" env:"TERMINAL_CANCELLATION"`
	RequireLatest        bool   `yaml:"require_latest" env:"REQUIRE_LATEST"`
	Currency             string `yaml:"currency" env:"CURRENCY"`
}

// ListingConf bounds the trade listing page size.
type ListingConf struct {
	DefaultPageSize int `yaml:"default_page_size" env:"DEFAULT_PAGE_SIZE"`
	MaxPageSize     int `yaml:"max_page_size" env:"MAX_PAGE_SIZE"`
}

// IngestConf sizes the external event worker pool.
type IngestConf struct {
	Workers    int `yaml:"workers" env:"WORKERS"`
	QueueDepth int `yaml:"queue_depth" env:"QUEUE_DEPTH"`
}

// AuthConf configures the service-token filter. An empty token disables it.
type AuthConf struct {
	ServiceToken string `yaml:"service_token" env:"SERVICE_TOKEN"`
}

type LogConf struct {
	Level string `yaml:"level" env:"LEVEL"`
}
