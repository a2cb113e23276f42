// Package config loads the typed configuration record from the environment.
// It is constructed once in main and passed down; no other package reads
// process environment directly.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	// WebServer Configuration
	WebServerPort int    `mapstructure:"WEB_SERVER_PORT" validate:"min=1,max=65535"`
	PrefixPath    string `mapstructure:"PREFIX_PATH"`
	Debug         bool   `mapstructure:"DEBUG"`
	LogPath       string `mapstructure:"LOG_PATH"`

	// Library layout
	BasePath string `mapstructure:"BASE_PATH" validate:"required"`
	DataPath string `mapstructure:"DATA_PATH"`

	// Derivation pipeline
	FFmpegConcurrency   int    `mapstructure:"FFMPEG_CONCURRENCY" validate:"min=1"`
	BlurhashConcurrency int    `mapstructure:"BLURHASH_CONCURRENCY" validate:"min=1"`
	SpriteVersion       int    `mapstructure:"SPRITE_VERSION" validate:"min=1"`
	DisableAVIF         bool   `mapstructure:"DISABLE_AVIF"`
	AVIFQuality         int    `mapstructure:"AVIF_QUALITY" validate:"min=0,max=63"`
	AVIFSpeed           int    `mapstructure:"AVIF_SPEED" validate:"min=0,max=10"`
	PNGQuality          int    `mapstructure:"PNG_QUALITY" validate:"min=1,max=100"`
	FileServerNodeURL   string `mapstructure:"FILE_SERVER_NODE_URL"`

	// Scanner and enrichment
	ScanIntervalMinutes int    `mapstructure:"SCAN_INTERVAL_MINUTES" validate:"min=1"`
	RetryIntervalHours  int    `mapstructure:"RETRY_INTERVAL_HOURS" validate:"min=1"`
	TMDBToolPath        string `mapstructure:"TMDB_TOOL_PATH"`

	// Blurhash
	UseNativeBlurhash bool   `mapstructure:"USE_NATIVE_BLURHASH"`
	BlurhashCLIPath   string `mapstructure:"BLURHASH_CLI_PATH"`
}

// MoviesPath returns the movies library root.
func (c *Config) MoviesPath() string { return filepath.Join(c.BasePath, "movies") }

// TVPath returns the tv library root.
func (c *Config) TVPath() string { return filepath.Join(c.BasePath, "tv") }

// CachePath returns the parent of the four artifact cache roots.
func (c *Config) CachePath() string { return filepath.Join(c.DataPath, "cache") }

// DBPath returns the directory holding the SQLite database files.
func (c *Config) DBPath() string { return filepath.Join(c.DataPath, "db") }

// use reflect to bind environment variables based on mapstructure tags
func bindEnv(c Config) {
	val := reflect.ValueOf(c)
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		if tag := typ.Field(i).Tag.Get("mapstructure"); tag != "" {
			viper.BindEnv(tag)
		}
	}
}

func LoadConfig(ctx context.Context) (*Config, error) {
	bindEnv(Config{})
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("WEB_SERVER_PORT", 3000)
	viper.SetDefault("BASE_PATH", "/var/www/html")
	viper.SetDefault("FFMPEG_CONCURRENCY", 2)
	viper.SetDefault("BLURHASH_CONCURRENCY", 4)
	viper.SetDefault("SPRITE_VERSION", 1)
	viper.SetDefault("AVIF_QUALITY", 40)
	viper.SetDefault("AVIF_SPEED", 6)
	viper.SetDefault("PNG_QUALITY", 65)
	viper.SetDefault("SCAN_INTERVAL_MINUTES", 30)
	viper.SetDefault("RETRY_INTERVAL_HOURS", 24)
	viper.SetDefault("BLURHASH_CLI_PATH", "blurhash_cli")

	cfg := Config{}
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.DataPath == "" {
		cfg.DataPath = cfg.BasePath
	}

	slog.Info("Loaded configuration", "config", cfg)

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	if st, err := os.Stat(cfg.BasePath); err != nil || !st.IsDir() {
		return nil, fmt.Errorf("BASE_PATH %q is not a directory", cfg.BasePath)
	}

	return &cfg, nil
}
