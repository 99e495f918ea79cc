// Package config loads the YAML configuration used by the recstore CLI and by
// services that build a Store from a file.
//
//	redis:
//	  addr: 127.0.0.1:6379
//	  db: 0
//	namespace: app:prod
//	client:
//	  chunk_size: 100
//	  max_concurrent_batches: 4
//	  max_attempts: 5
//	  base_delay: 10ms
//	  backoff_mode: exponential
//	  max_delay: 1s
//	  ttl: 0s
//	cache:
//	  kind: ristretto # none | ristretto | bigcache
//	  ttl: 1m
//	log:
//	  level: info
//	  format: console
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/unkn0wn-root/recstore"
)

var ErrInvalid = errors.New("config: invalid")

type Redis struct {
	Addr     string        `yaml:"addr"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Timeout  time.Duration `yaml:"timeout"` // dial/read/write; 0 => go-redis defaults
}

type Cache struct {
	Kind string        `yaml:"kind"` // none | ristretto | bigcache | redis
	TTL  time.Duration `yaml:"ttl"`
	// ristretto
	MaxCost int64 `yaml:"max_cost"`
	// bigcache
	HardMaxCacheSizeMB int `yaml:"hard_max_cache_size_mb"`
	// redis; empty => the store's own server
	Addr string `yaml:"addr"`
}

type Log struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // console | json
}

type File struct {
	Redis     Redis           `yaml:"redis"`
	Namespace string          `yaml:"namespace"`
	Client    recstore.Config `yaml:"client"`
	Cache     Cache           `yaml:"cache"`
	Log       Log             `yaml:"log"`
	// MaxValueBytes rejects larger field values on read; 0 disables the check.
	MaxValueBytes int `yaml:"max_value_bytes"`
}

// Default returns the configuration used when no file is given.
func Default() File {
	return File{
		Redis:  Redis{Addr: "127.0.0.1:6379"},
		Client: recstore.DefaultConfig(),
		Cache:  Cache{Kind: "none", TTL: time.Minute},
		Log:    Log{Level: "info", Format: "console"},
	}
}

// Parse decodes YAML over Default(), so omitted keys keep their defaults.
func Parse(data []byte) (File, error) {
	f := Default()
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	return f, f.Validate()
}

// Load reads path (Default() when empty) and applies RECSTORE_* environment
// overrides.
func Load(path string) (File, error) {
	f := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return File{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if f, err = Parse(b); err != nil {
			return File{}, err
		}
	}
	applyEnv(&f)
	return f, f.Validate()
}

func applyEnv(f *File) {
	if v := os.Getenv("RECSTORE_REDIS_ADDR"); v != "" {
		f.Redis.Addr = v
	}
	if v := os.Getenv("RECSTORE_REDIS_PASSWORD"); v != "" {
		f.Redis.Password = v
	}
	if v := os.Getenv("RECSTORE_NAMESPACE"); v != "" {
		f.Namespace = v
	}
	if v := os.Getenv("RECSTORE_LOG_LEVEL"); v != "" {
		f.Log.Level = v
	}
}

func (f File) Validate() error {
	if f.Redis.Addr == "" {
		return fmt.Errorf("%w: redis.addr is required", ErrInvalid)
	}
	if err := f.Client.Validate(); err != nil {
		return fmt.Errorf("%w: client: %w", ErrInvalid, err)
	}
	switch strings.ToLower(f.Cache.Kind) {
	case "", "none", "ristretto", "bigcache", "redis":
	default:
		return fmt.Errorf("%w: unknown cache.kind %q", ErrInvalid, f.Cache.Kind)
	}
	if f.MaxValueBytes < 0 {
		return fmt.Errorf("%w: max_value_bytes must be >= 0", ErrInvalid)
	}
	switch strings.ToLower(f.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log.level %q", ErrInvalid, f.Log.Level)
	}
	switch strings.ToLower(f.Log.Format) {
	case "", "console", "json":
	default:
		return fmt.Errorf("%w: unknown log.format %q", ErrInvalid, f.Log.Format)
	}
	return nil
}
