package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/clrmeta/errors"
	"github.com/wippyai/clrmeta/intern"
	"github.com/wippyai/clrmeta/metadata"
)

// Config is the mdview configuration, read from mdview.yaml, MDVIEW_*
// environment variables and command line flags.
type Config struct {
	LogLevel      string   `mapstructure:"log_level"`
	CoreAssembly  string   `mapstructure:"core_assembly"`
	SearchPaths   []string `mapstructure:"search_paths"`
	BodyCacheSize int      `mapstructure:"body_cache_size"`
	NoColor       bool     `mapstructure:"no_color"`
	Probe         bool     `mapstructure:"probe"`
}

// New returns a viper instance with mdview defaults and lookup rules.
// Flags are bound by the caller.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("log_level", "warn")
	v.SetDefault("no_color", false)
	v.SetDefault("core_assembly", "")
	v.SetDefault("probe", true)
	v.SetDefault("body_cache_size", metadata.DefaultOptions().BodyCacheSize)
	v.SetDefault("search_paths", []string{})

	v.SetConfigName("mdview")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "mdview"))
	}

	v.SetEnvPrefix("MDVIEW")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file, if any, and decodes the merged settings.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrap(errors.PhaseCLI, errors.KindInvalidInput, err, "read config file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(errors.PhaseCLI, errors.KindInvalidInput, err, "decode config")
	}
	if cfg.BodyCacheSize < 0 {
		return nil, errors.New(errors.PhaseCLI, errors.KindInvalidInput).
			Entity("body_cache_size").
			Value(cfg.BodyCacheSize).
			Detail("must not be negative").
			Build()
	}
	if _, err := zapcore.ParseLevel(cfg.LogLevel); err != nil {
		return nil, errors.Wrap(errors.PhaseCLI, errors.KindInvalidInput, err, "log_level")
	}
	return &cfg, nil
}

// Logger builds a console logger writing to stderr at the configured level.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseCLI, errors.KindInvalidInput, err, "log_level")
	}
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.DisableStacktrace = true
	zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	if !c.NoColor {
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return zc.Build()
}

// HostOptions maps the configuration onto metadata host options. Every
// invocation gets its own intern table.
func (c *Config) HostOptions(log *zap.Logger) metadata.Options {
	opts := metadata.DefaultOptions()
	opts.Logger = log
	opts.Intern = intern.New()
	opts.CoreAssemblyName = c.CoreAssembly
	if c.BodyCacheSize > 0 {
		opts.BodyCacheSize = c.BodyCacheSize
	}
	return opts
}
