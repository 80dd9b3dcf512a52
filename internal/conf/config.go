// Package conf loads and validates edgecache settings from a YAML file
// via Viper, with defaults matching the Beauty Care deployment.
package conf

import (
	"io/fs"

	"github.com/spf13/viper"

	"github.com/beautycare/edgecache/internal/errors"
	"github.com/beautycare/edgecache/internal/logger"
)

// Settings is the root configuration for the edge cache worker.
type Settings struct {
	Listen   string        `mapstructure:"listen"`
	Upstream string        `mapstructure:"upstream"`
	Log      LogSettings   `mapstructure:"log"`
	Cache    CacheSettings `mapstructure:"cache"`
	Fetch    FetchSettings `mapstructure:"fetch"`
	Push     PushSettings  `mapstructure:"push"`
}

// LogSettings controls structured log output.
type LogSettings struct {
	Level string `mapstructure:"level"`
}

// CacheSettings describes the cache generation and what belongs in it.
type CacheSettings struct {
	// Generation identifies the current cache version. Any cache under a
	// different generation is evicted when the worker activates.
	Generation string `mapstructure:"generation"`

	// OfflineURL is the origin-relative path of the offline fallback
	// document. It must appear in StaticAssets so it is available from
	// the cache when the network is down.
	OfflineURL string `mapstructure:"offline_url"`

	// StaticAssets are pre-cached at install time.
	StaticAssets []string `mapstructure:"static_assets"`

	// DynamicPatterns are regexp strings matched against request paths
	// to select network-first handling.
	DynamicPatterns []string `mapstructure:"dynamic_patterns"`

	// DefaultTTL bounds how long an entry stays cached; zero means no
	// expiry within a generation.
	DefaultTTL Duration `mapstructure:"default_ttl"`

	// CleanupInterval is how often expired entries are swept.
	CleanupInterval Duration `mapstructure:"cleanup_interval"`
}

// FetchSettings controls upstream fetches.
type FetchSettings struct {
	Timeout Duration `mapstructure:"timeout"`
}

// PushSettings configures the MQTT push subscription.
type PushSettings struct {
	Enabled        bool     `mapstructure:"enabled"`
	Broker         string   `mapstructure:"broker"`
	Topic          string   `mapstructure:"topic"`
	ClientID       string   `mapstructure:"client_id"`
	ConnectTimeout Duration `mapstructure:"connect_timeout"`
}

// DefaultStaticAssets is the Beauty Care deployment's pre-cache list.
var DefaultStaticAssets = []string{
	"/",
	"/index.html",
	"/demo.html",
	"/brand.html",
	"/offline.html",
	"/manifest.json",
	"/ui/theme/tokens.css",
	"/ui/theme/skins.css",
	"/ui/components/index.css",
	"/ui/icons/icons.svg",
	"/ui/brand/logo.svg",
	"/ui/brand/logo-dark.svg",
	"/ui/brand/stickers/palette.svg",
	"/ui/brand/stickers/drop.svg",
	"/ui/brand/stickers/heart-lipstick.svg",
	"/ui/icons/svg/palette.svg",
	"/ui/icons/svg/drop.svg",
	"/ui/icons/svg/cart.svg",
	"/ui/icons/svg/info.svg",
	"/ui/icons/svg/list.svg",
	"/ui/icons/svg/settings.svg",
}

// DefaultDynamicPatterns select report, card, and data resources for
// network-first handling.
var DefaultDynamicPatterns = []string{
	`/data/reports/.*\.pdf$`,
	`/data/reports/.*\.html$`,
	`/output/cards/.*\.svg$`,
	`/output/cards/.*\.png$`,
	`/assets/.*\.(json|yaml)$`,
	`/data/.*\.json$`,
}

// Load reads settings from the given config file path. An empty path
// falls back to edgecache.yaml in the working directory. Missing keys
// receive defaults; a missing file is an error only when a path was
// given explicitly.
func Load(path string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("edgecache")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			category := errors.CategoryConfiguration
			if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
				category = errors.CategoryNotFound
			}
			return nil, errors.Newf("reading config: %w", err).
				Component("conf").
				Category(category).
				Context("path", path).
				Build()
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings, viper.DecodeHook(DurationDecodeHook())); err != nil {
		return nil, errors.Newf("decoding config: %w", err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &settings, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", ":8844")
	v.SetDefault("log.level", "info")
	v.SetDefault("cache.generation", "beauty-care-v1.0.0")
	v.SetDefault("cache.offline_url", "/offline.html")
	v.SetDefault("cache.static_assets", DefaultStaticAssets)
	v.SetDefault("cache.dynamic_patterns", DefaultDynamicPatterns)
	v.SetDefault("cache.default_ttl", "0s")
	v.SetDefault("cache.cleanup_interval", "10m")
	v.SetDefault("fetch.timeout", "30s")
	v.SetDefault("push.enabled", false)
	v.SetDefault("push.topic", "beautycare/push")
	v.SetDefault("push.client_id", "edgecache")
	v.SetDefault("push.connect_timeout", "10s")
}

// Validate checks settings that have no usable zero value.
func (s *Settings) Validate() error {
	if s.Upstream == "" {
		return errors.Newf("upstream origin is required").
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}
	if s.Cache.Generation == "" {
		return errors.Newf("cache generation is required").
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}
	if s.Push.Enabled && s.Push.Broker == "" {
		return errors.Newf("push broker is required when push is enabled").
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

// LogLevel maps the configured level string onto the logger's levels.
// Unrecognized values fall back to info.
func (s *LogSettings) LogLevel() logger.LogLevel {
	switch s.Level {
	case "debug":
		return logger.LogLevelDebug
	case "warn":
		return logger.LogLevelWarn
	case "error":
		return logger.LogLevelError
	default:
		return logger.LogLevelInfo
	}
}
