// Package config loads exchanged's runtime settings via viper:
// environment variables prefixed BOURSE_, then a config file (if
// present), and finally built-in defaults, in that order of precedence.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"bourse/internal/persistence"
)

// Config is the fully resolved set of knobs the server needs to boot.
type Config struct {
	ListenAddress string

	DBPath string

	FlushInterval time.Duration
	BatchSize     int

	RingCapacity int

	DefaultDepth  int
	DefaultWindow int

	WebhookTimeout time.Duration
}

// Load reads configFile (may be empty, meaning "none"); environment
// variables override it, and defaults fill any key neither sets.
func Load(configFile string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("bourse")
	v.AutomaticEnv()

	v.SetDefault("listen_address", "0.0.0.0:9001")
	v.SetDefault("db_path", "bourse.db")
	v.SetDefault("flush_interval_ms", persistence.DefaultFlushInterval.Milliseconds())
	v.SetDefault("batch_size", persistence.DefaultBatchSize)
	v.SetDefault("ring_capacity", 1000)
	v.SetDefault("default_depth", 10)
	v.SetDefault("default_window", 50)
	v.SetDefault("webhook_timeout_ms", 2000)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", configFile, err)
		}
	}

	return Config{
		ListenAddress:  v.GetString("listen_address"),
		DBPath:         v.GetString("db_path"),
		FlushInterval:  time.Duration(v.GetInt64("flush_interval_ms")) * time.Millisecond,
		BatchSize:      v.GetInt("batch_size"),
		RingCapacity:   v.GetInt("ring_capacity"),
		DefaultDepth:   v.GetInt("default_depth"),
		DefaultWindow:  v.GetInt("default_window"),
		WebhookTimeout: time.Duration(v.GetInt64("webhook_timeout_ms")) * time.Millisecond,
	}, nil
}
