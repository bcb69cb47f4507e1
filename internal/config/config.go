// Package config loads bloomd's runtime configuration via viper.
// Environment variables override the config file, which overrides these
// defaults; the serve command then applies its --http-addr and --grpc-addr
// flags on top of the loaded Config.
package config

import (
	"time"

	"github.com/spf13/viper"
)

// FilterDefaults controls the sizing used when create is called without an
// explicit per-filter configuration.
type FilterDefaults struct {
	Capacity    uint64  `mapstructure:"capacity" yaml:"capacity"`
	Probability float64 `mapstructure:"probability" yaml:"probability"`
	InMemory    bool    `mapstructure:"in_memory" yaml:"in_memory"`
}

// Config is bloomd's effective runtime configuration.
type Config struct {
	DataDir    string `mapstructure:"data_dir" yaml:"data_dir"`
	HTTPAddr   string `mapstructure:"http_addr" yaml:"http_addr"`
	GRPCAddr   string `mapstructure:"grpc_addr" yaml:"grpc_addr"`
	MetricsPath string `mapstructure:"metrics_path" yaml:"metrics_path"`
	LogFile    string `mapstructure:"log_file" yaml:"log_file"`

	DefaultFilter FilterDefaults `mapstructure:"default_filter" yaml:"default_filter"`

	VersionCooldown    time.Duration `mapstructure:"version_cooldown" yaml:"version_cooldown"`
	ReaperInterval     time.Duration `mapstructure:"reaper_interval" yaml:"reaper_interval"`
	RateLimitPerSecond float64       `mapstructure:"rate_limit_per_second" yaml:"rate_limit_per_second"`

	FlushAllCron string `mapstructure:"flush_all_cron" yaml:"flush_all_cron"`
	ColdSweepCron string `mapstructure:"cold_sweep_cron" yaml:"cold_sweep_cron"`

	DiagBufferSize int `mapstructure:"diag_buffer_size" yaml:"diag_buffer_size"`
}

// Defaults returns the configuration used when no flag, environment
// variable, or file overrides a field.
func Defaults() Config {
	return Config{
		DataDir:     "./data",
		HTTPAddr:    ":8080",
		GRPCAddr:    ":9090",
		MetricsPath: "/metrics",
		DefaultFilter: FilterDefaults{
			Capacity:    100000,
			Probability: 0.01,
			InMemory:    false,
		},
		VersionCooldown:    15 * time.Second,
		ReaperInterval:     time.Second,
		RateLimitPerSecond: 5000,
		FlushAllCron:       "@every 1m",
		ColdSweepCron:      "@every 5m",
		DiagBufferSize:     256,
	}
}

// Load builds a viper instance seeded with Defaults, reads bloomd.yaml from
// configPath (if non-empty) or the current directory, and layers in
// BLOOMD_-prefixed environment variables. It does not bind cobra flags;
// callers apply flag overrides to the Config returned by FromViper.
func Load(configPath string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v, Defaults())

	v.SetEnvPrefix("bloomd")
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("bloomd")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}
	return v, nil
}

// FromViper unmarshals v's current state (defaults, file, env, flags) into
// a Config.
func FromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("http_addr", d.HTTPAddr)
	v.SetDefault("grpc_addr", d.GRPCAddr)
	v.SetDefault("metrics_path", d.MetricsPath)
	v.SetDefault("log_file", d.LogFile)
	v.SetDefault("default_filter.capacity", d.DefaultFilter.Capacity)
	v.SetDefault("default_filter.probability", d.DefaultFilter.Probability)
	v.SetDefault("default_filter.in_memory", d.DefaultFilter.InMemory)
	v.SetDefault("version_cooldown", d.VersionCooldown)
	v.SetDefault("reaper_interval", d.ReaperInterval)
	v.SetDefault("rate_limit_per_second", d.RateLimitPerSecond)
	v.SetDefault("flush_all_cron", d.FlushAllCron)
	v.SetDefault("cold_sweep_cron", d.ColdSweepCron)
	v.SetDefault("diag_buffer_size", d.DiagBufferSize)
}
