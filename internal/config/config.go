// Package config loads subwatch's runtime configuration from defaults,
// an optional config file, environment variables, and caller-supplied
// runtime overrides, in that order of increasing precedence.
package config

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const envPrefix = "SUBWATCH"

// ServerConfig carries the health/metrics HTTP server's listen settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig controls the zap logger built by internal/observability.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Profile string `mapstructure:"profile"`
}

// MetricsConfig controls prometheus instrument registration and exposure.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// HealthConfig controls the /health* endpoint group.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// DebugConfig controls optional debug surfaces.
type DebugConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	PprofEnabled bool `mapstructure:"pprof_enabled"`
}

// WatcherConfig carries the subscription watcher's worker-count and
// backpressure knobs, defaults matching fa_search_bot's original
// subscription watcher.
type WatcherConfig struct {
	Enabled             bool   `mapstructure:"enabled"`
	NumDataFetchers     int    `mapstructure:"num_data_fetchers"`
	NumMediaDownloaders int    `mapstructure:"num_media_downloaders"`
	NumMediaUploaders   int    `mapstructure:"num_media_uploaders"`
	MaxReadyForUpload   int    `mapstructure:"max_ready_for_upload"`
	FetchRefreshLimit   int    `mapstructure:"fetch_refresh_limit"`
	CacheDBPath         string `mapstructure:"cache_db_path"`
	PersistPath         string `mapstructure:"persist_path"`
}

// Config is the fully resolved, top-level configuration tree.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Health  HealthConfig  `mapstructure:"health"`
	Debug   DebugConfig   `mapstructure:"debug"`
	Watcher WatcherConfig `mapstructure:"watcher"`
}

var (
	configMu  sync.Mutex
	appConfig *Config
)

// envSpec names one environment variable this package binds into viper,
// and the config path it feeds.
type envSpec struct {
	Name string
	Path string
}

func getEnvSpecs() []envSpec {
	return []envSpec{
		{Name: envPrefix + "_HOST", Path: "server.host"},
		{Name: envPrefix + "_PORT", Path: "server.port"},
		{Name: envPrefix + "_READ_TIMEOUT", Path: "server.read_timeout"},
		{Name: envPrefix + "_WRITE_TIMEOUT", Path: "server.write_timeout"},
		{Name: envPrefix + "_IDLE_TIMEOUT", Path: "server.idle_timeout"},
		{Name: envPrefix + "_SHUTDOWN_TIMEOUT", Path: "server.shutdown_timeout"},
		{Name: envPrefix + "_LOG_LEVEL", Path: "logging.level"},
		{Name: envPrefix + "_LOG_PROFILE", Path: "logging.profile"},
		{Name: envPrefix + "_METRICS_ENABLED", Path: "metrics.enabled"},
		{Name: envPrefix + "_METRICS_PORT", Path: "metrics.port"},
		{Name: envPrefix + "_HEALTH_ENABLED", Path: "health.enabled"},
		{Name: envPrefix + "_DEBUG_ENABLED", Path: "debug.enabled"},
		{Name: envPrefix + "_DEBUG_PPROF", Path: "debug.pprof_enabled"},
		{Name: envPrefix + "_WATCHER_ENABLED", Path: "watcher.enabled"},
		{Name: envPrefix + "_NUM_DATA_FETCHERS", Path: "watcher.num_data_fetchers"},
		{Name: envPrefix + "_NUM_MEDIA_DOWNLOADERS", Path: "watcher.num_media_downloaders"},
		{Name: envPrefix + "_NUM_MEDIA_UPLOADERS", Path: "watcher.num_media_uploaders"},
		{Name: envPrefix + "_MAX_READY_FOR_UPLOAD", Path: "watcher.max_ready_for_upload"},
		{Name: envPrefix + "_FETCH_REFRESH_LIMIT", Path: "watcher.fetch_refresh_limit"},
		{Name: envPrefix + "_CACHE_DB_PATH", Path: "watcher.cache_db_path"},
		{Name: envPrefix + "_PERSIST_PATH", Path: "watcher.persist_path"},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "STRUCTURED")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	v.SetDefault("health.enabled", true)

	v.SetDefault("debug.enabled", false)
	v.SetDefault("debug.pprof_enabled", false)

	v.SetDefault("watcher.enabled", true)
	v.SetDefault("watcher.num_data_fetchers", 2)
	v.SetDefault("watcher.num_media_downloaders", 2)
	v.SetDefault("watcher.num_media_uploaders", 1)
	v.SetDefault("watcher.max_ready_for_upload", 100)
	v.SetDefault("watcher.fetch_refresh_limit", 25)
	v.SetDefault("watcher.cache_db_path", "subwatch-cache.db")
	v.SetDefault("watcher.persist_path", "subwatch-subscriptions.json")
}

// Load resolves configuration from defaults, an optional subwatch.yaml in
// the current directory or /etc/subwatch, environment variables prefixed
// SUBWATCH_, and finally overrides, in increasing order of precedence.
// The result is cached and retrievable via GetConfig.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("subwatch")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/subwatch")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, spec := range getEnvSpecs() {
		if err := v.BindEnv(spec.Path, spec.Name); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", spec.Name, err)
		}
	}

	for _, override := range overrides {
		if err := v.MergeConfigMap(override); err != nil {
			return nil, fmt.Errorf("merge runtime override: %w", err)
		}
	}

	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook)); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	configMu.Lock()
	appConfig = &cfg
	configMu.Unlock()

	return &cfg, nil
}

// GetConfig returns the most recently loaded configuration, or nil if Load
// has never been called.
func GetConfig() *Config {
	configMu.Lock()
	defer configMu.Unlock()
	return appConfig
}
