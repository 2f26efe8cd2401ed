// Package config loads the datarest configuration from datarest.yaml and
// DATAREST_* environment variables
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/conduit-lang/datarest/internal/rest/event"
	"github.com/conduit-lang/datarest/internal/rest/mapping"
	"github.com/conduit-lang/datarest/internal/rest/repository"
)

// FileName is the config file name looked up in the working directory
const FileName = "datarest"

// EnvPrefix prefixes environment overrides, e.g. DATAREST_SERVER_ADDRESS
const EnvPrefix = "DATAREST"

// Storage and cache driver names
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"

	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Config represents the datarest configuration
type Config struct {
	Server    ServerConfig     `mapstructure:"server"`
	REST      RESTConfig       `mapstructure:"rest"`
	Storage   StorageConfig    `mapstructure:"storage"`
	Cache     CacheConfig      `mapstructure:"cache"`
	Events    EventsConfig     `mapstructure:"events"`
	Log       LogConfig        `mapstructure:"log"`
	Resources []ResourceConfig `mapstructure:"resources"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Address string `mapstructure:"address"`
	// BasePath is the mount point of the REST API
	BasePath string `mapstructure:"base_path"`
	// PublicURL prefixes generated links, e.g. https://api.example.com
	PublicURL string `mapstructure:"public_url"`

	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	MaxBodySize int64 `mapstructure:"max_body_size"`

	// CORSOrigins enables CORS for these origins; empty disables it
	CORSOrigins []string `mapstructure:"cors_origins"`

	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig throttles each client address. Requests of zero disables
// it. The limiter state lives in Redis when the cache driver is redis.
type RateLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
	FailOpen bool          `mapstructure:"fail_open"`
}

// RESTConfig represents dispatcher and query options
type RESTConfig struct {
	// ReturnBodyOnCreate and ReturnBodyOnUpdate force a response body on or
	// off; unset follows the request Accept header
	ReturnBodyOnCreate *bool `mapstructure:"return_body_on_create"`
	ReturnBodyOnUpdate *bool `mapstructure:"return_body_on_update"`

	DefaultPageSize int `mapstructure:"default_page_size"`
	MaxPageSize     int `mapstructure:"max_page_size"`
}

// StorageConfig selects the entity store
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// CacheConfig selects the collection cache
type CacheConfig struct {
	Driver   string        `mapstructure:"driver"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// EventsConfig configures lifecycle listeners
type EventsConfig struct {
	// Policy is "isolate" or "abort"
	Policy string `mapstructure:"policy"`
	Audit  bool   `mapstructure:"audit"`
	Feed   bool   `mapstructure:"feed"`
}

// LogConfig configures the zap logger
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// ResourceConfig declares one exposed collection
type ResourceConfig struct {
	Name string `mapstructure:"name"`
	// Path defaults to Name
	Path              string       `mapstructure:"path"`
	IDType            string       `mapstructure:"id_type"`
	CollectionMethods []string     `mapstructure:"collection_methods"`
	ItemMethods       []string     `mapstructure:"item_methods"`
	PutForCreation    bool         `mapstructure:"put_for_creation"`
	Search            SearchConfig `mapstructure:"search"`
}

// SearchConfig exports the search resource of a collection
type SearchConfig struct {
	Exported bool   `mapstructure:"exported"`
	Path     string `mapstructure:"path"`
	Rel      string `mapstructure:"rel"`
}

// Metadata converts the declaration into validated resource metadata
func (r ResourceConfig) Metadata() (*mapping.Metadata, error) {
	path := r.Path
	if path == "" {
		path = r.Name
	}

	meta := &mapping.Metadata{
		Path:           path,
		CollectionRel:  r.Name,
		IDType:         repository.IDType(strings.ToLower(r.IDType)),
		PutForCreation: r.PutForCreation,
		Search: mapping.SearchMapping{
			Exported: r.Search.Exported,
			Path:     r.Search.Path,
			Rel:      r.Search.Rel,
		},
	}
	if len(r.CollectionMethods) > 0 {
		meta.CollectionMethods = mapping.NewMethods(r.CollectionMethods...)
	}
	if len(r.ItemMethods) > 0 {
		meta.ItemMethods = mapping.NewMethods(r.ItemMethods...)
	}

	if err := meta.Validate(); err != nil {
		return nil, err
	}
	return meta, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.base_path", "/api")
	v.SetDefault("server.public_url", "")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.max_body_size", 10<<20)
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.rate_limit.requests", 0)
	v.SetDefault("server.rate_limit.window", time.Minute)
	v.SetDefault("server.rate_limit.fail_open", true)

	v.SetDefault("rest.default_page_size", 20)
	v.SetDefault("rest.max_page_size", 1000)

	v.SetDefault("storage.driver", StorageMemory)
	v.SetDefault("storage.dsn", "")

	v.SetDefault("cache.driver", CacheNone)
	v.SetDefault("cache.addr", "localhost:6379")
	v.SetDefault("cache.password", "")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.ttl", time.Minute)

	v.SetDefault("events.policy", "isolate")
	v.SetDefault("events.audit", true)
	v.SetDefault("events.feed", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Default returns the configuration used when no file or override is present
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	// defaults always decode
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Load loads the configuration. An empty path looks for datarest.yaml in the
// working directory and falls back to defaults when there is none; an
// explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Address == "" {
		errs = append(errs, errors.New("server.address is required"))
	}
	if c.Server.BasePath != "" {
		if !strings.HasPrefix(c.Server.BasePath, "/") {
			errs = append(errs, fmt.Errorf("server.base_path must start with '/', got: %s", c.Server.BasePath))
		}
		if len(c.Server.BasePath) > 1 && strings.HasSuffix(c.Server.BasePath, "/") {
			errs = append(errs, fmt.Errorf("server.base_path must not end with '/', got: %s", c.Server.BasePath))
		}
	}
	if c.Server.PublicURL != "" {
		u, err := url.Parse(c.Server.PublicURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("server.public_url must be an absolute URL, got: %s", c.Server.PublicURL))
		}
	}

	if c.Server.RateLimit.Requests < 0 {
		errs = append(errs, fmt.Errorf("server.rate_limit.requests must not be negative, got: %d", c.Server.RateLimit.Requests))
	}
	if c.Server.RateLimit.Requests > 0 && c.Server.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("server.rate_limit.window must be positive"))
	}

	if c.REST.DefaultPageSize < 1 {
		errs = append(errs, fmt.Errorf("rest.default_page_size must be positive, got: %d", c.REST.DefaultPageSize))
	}
	if c.REST.MaxPageSize < c.REST.DefaultPageSize {
		errs = append(errs, fmt.Errorf("rest.max_page_size (%d) must not be below rest.default_page_size (%d)",
			c.REST.MaxPageSize, c.REST.DefaultPageSize))
	}

	switch c.Storage.Driver {
	case StorageMemory:
	case StorageSQLite, StoragePostgres:
		if c.Storage.DSN == "" {
			errs = append(errs, fmt.Errorf("storage.dsn is required for driver %s", c.Storage.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver must be one of memory, sqlite, postgres, got: %s", c.Storage.Driver))
	}

	switch c.Cache.Driver {
	case CacheNone, CacheMemory:
	case CacheRedis:
		if c.Cache.Addr == "" {
			errs = append(errs, errors.New("cache.addr is required for driver redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.driver must be one of none, memory, redis, got: %s", c.Cache.Driver))
	}

	if _, err := event.ParsePolicy(c.Events.Policy); err != nil {
		errs = append(errs, fmt.Errorf("events.policy: %w", err))
	}

	var level zapcore.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	seen := make(map[string]bool, len(c.Resources))
	for i, res := range c.Resources {
		meta, err := res.Metadata()
		if err != nil {
			errs = append(errs, fmt.Errorf("resources[%d]: %w", i, err))
			continue
		}
		if seen[meta.Path] {
			errs = append(errs, fmt.Errorf("resources[%d]: duplicate path %s", i, meta.Path))
		}
		seen[meta.Path] = true
	}

	return errors.Join(errs...)
}

// Write saves cfg as YAML at path
func Write(cfg *Config, path string) error {
	v := viper.New()
	v.Set("server.address", cfg.Server.Address)
	v.Set("server.base_path", cfg.Server.BasePath)
	if cfg.Server.PublicURL != "" {
		v.Set("server.public_url", cfg.Server.PublicURL)
	}
	if cfg.Server.RateLimit.Requests > 0 {
		v.Set("server.rate_limit.requests", cfg.Server.RateLimit.Requests)
		v.Set("server.rate_limit.window", cfg.Server.RateLimit.Window.String())
	}
	v.Set("storage.driver", cfg.Storage.Driver)
	if cfg.Storage.DSN != "" {
		v.Set("storage.dsn", cfg.Storage.DSN)
	}
	v.Set("cache.driver", cfg.Cache.Driver)
	if cfg.Cache.Driver == CacheRedis {
		v.Set("cache.addr", cfg.Cache.Addr)
	}
	v.Set("cache.ttl", cfg.Cache.TTL.String())
	v.Set("events.policy", cfg.Events.Policy)
	v.Set("events.audit", cfg.Events.Audit)
	v.Set("events.feed", cfg.Events.Feed)
	v.Set("log.level", cfg.Log.Level)

	resources := make([]map[string]any, 0, len(cfg.Resources))
	for _, res := range cfg.Resources {
		entry := map[string]any{"name": res.Name}
		if res.Path != "" && res.Path != res.Name {
			entry["path"] = res.Path
		}
		if res.IDType != "" {
			entry["id_type"] = res.IDType
		}
		if len(res.CollectionMethods) > 0 {
			entry["collection_methods"] = res.CollectionMethods
		}
		if len(res.ItemMethods) > 0 {
			entry["item_methods"] = res.ItemMethods
		}
		if res.PutForCreation {
			entry["put_for_creation"] = true
		}
		if res.Search.Exported {
			entry["search"] = map[string]any{"exported": true}
		}
		resources = append(resources, entry)
	}
	v.Set("resources", resources)

	v.SetConfigType("yaml")
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
