package config

import (
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks the config for:
//   - A known store driver and the settings that driver needs
//   - Positive page sizes with the default not above the maximum
//   - A usable ingest pool and log level
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.Store.Driver {
	case DriverMemory:
	case DriverSQLite:
		if cfg.Store.Path == "" {
			errs = append(errs, "store.path is required for the sqlite driver")
		}
	case DriverPostgres:
		if cfg.Store.DSN == "" {
			errs = append(errs, "store.dsn is required for the postgres driver")
		}
	case DriverRedis:
		if cfg.Store.Redis.Addr == "" {
			errs = append(errs, "store.redis.addr is required for the redis driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not one of memory, sqlite, postgres, redis", cfg.Store.Driver))
	}

	if cfg.Listing.DefaultPageSize < 1 {
		errs = append(errs, fmt.Sprintf("listing.default_page_size %d must be at least 1", cfg.Listing.DefaultPageSize))
	}
	if cfg.Listing.MaxPageSize < 1 {
		errs = append(errs, fmt.Sprintf("listing.max_page_size %d must be at least 1", cfg.Listing.MaxPageSize))
	}
	if cfg.Listing.DefaultPageSize > cfg.Listing.MaxPageSize {
		errs = append(errs, fmt.Sprintf("listing.default_page_size %d exceeds max_page_size %d", cfg.Listing.DefaultPageSize, cfg.Listing.MaxPageSize))
	}
	if cfg.Ingest.Workers < 1 {
		errs = append(errs, "ingest.workers must be at least 1")
	}
	if cfg.Ingest.QueueDepth < 1 {
		errs = append(errs, "ingest.queue_depth must be at least 1")
	}
	if len(cfg.Lifecycle.Currency) != 3 {
		errs = append(errs, fmt.Sprintf("lifecycle.currency %q must be a three-letter code", cfg.Lifecycle.Currency))
	}
	if _, err := ParseLevel(cfg.Log.Level); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ParseLevel maps log.level onto a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level %q: %w", s, err)
	}
	return lvl, nil
}
