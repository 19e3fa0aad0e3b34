package internal

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tuannm99/novapool/internal/bufferpool"
	"github.com/tuannm99/novapool/internal/logging"
	"github.com/tuannm99/novapool/internal/storage"
)

const EnvPrefix = "NOVAPOOL"

type NovaPoolConfig struct {
	AppName string `mapstructure:"app_name"`

	Storage struct {
		Mode    string `mapstructure:"mode"`
		Workdir string `mapstructure:"workdir"`
		Base    string `mapstructure:"base"`
	} `mapstructure:"storage"`

	Pool struct {
		Capacity     int           `mapstructure:"capacity"`
		Policy       string        `mapstructure:"policy"`
		FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	} `mapstructure:"pool"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "novapool")
	v.SetDefault("storage.mode", storage.File.String())
	v.SetDefault("storage.workdir", "./data")
	v.SetDefault("storage.base", "pages")
	v.SetDefault("pool.capacity", bufferpool.DefaultCapacity)
	v.SetDefault("pool.policy", string(bufferpool.PolicyLRU))
	v.SetDefault("pool.fetch_timeout", time.Duration(0))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", logging.FormatText)
}

// LoadConfig reads the YAML file at path on top of the defaults. An empty
// path uses defaults only. NOVAPOOL_* environment variables override both,
// e.g. NOVAPOOL_POOL_CAPACITY=256.
func LoadConfig(path string) (*NovaPoolConfig, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg NovaPoolConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *NovaPoolConfig) Validate() error {
	if _, err := storage.GetStorageMode(c.Storage.Mode); err != nil {
		return fmt.Errorf("config: storage.mode: %w", err)
	}
	if c.Storage.Base == "" {
		return fmt.Errorf("config: storage.base must not be empty")
	}
	if c.Pool.Capacity <= 0 {
		return fmt.Errorf("config: pool.capacity must be positive, got %d", c.Pool.Capacity)
	}
	if _, err := bufferpool.ParsePolicy(c.Pool.Policy); err != nil {
		return fmt.Errorf("config: pool.policy: %w", err)
	}
	if c.Pool.FetchTimeout < 0 {
		return fmt.Errorf("config: pool.fetch_timeout must not be negative")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: log.level: %w", err)
	}
	return nil
}

func (c *NovaPoolConfig) StorageMode() (storage.StorageMode, error) {
	return storage.GetStorageMode(c.Storage.Mode)
}

func (c *NovaPoolConfig) PoolOptions() (bufferpool.Options, error) {
	policy, err := bufferpool.ParsePolicy(c.Pool.Policy)
	if err != nil {
		return bufferpool.Options{}, err
	}
	return bufferpool.Options{
		Capacity:     c.Pool.Capacity,
		Policy:       policy,
		FetchTimeout: c.Pool.FetchTimeout,
	}, nil
}
