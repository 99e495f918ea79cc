// Package redis adapts a go-redis client as a provider.Provider, letting
// several replicas share one read cache.
//
// The cache often lives on the same server as the record store. The provider
// therefore only touches keys under its prefix ("rc:" unless configured), so a
// misrouted key can never overwrite or delete a record hash.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	pr "github.com/unkn0wn-root/recstore/provider"
)

// DefaultPrefix matches the keys written by transport/cached.
const DefaultPrefix = "rc:"

var (
	ErrNilClient  = errors.New("redis provider: nil client")
	ErrForeignKey = errors.New("redis provider: key outside the cache prefix")
)

type Redis struct {
	rdb         goredis.UniversalClient
	prefix      string
	closeClient bool
}

var _ pr.Provider = (*Redis)(nil)

type Config struct {
	Client      goredis.UniversalClient
	Prefix      string // every key must carry it; "" => DefaultPrefix
	CloseClient bool   // set true only if this provider exclusively owns the client
}

func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Redis{rdb: cfg.Client, prefix: prefix, closeClient: cfg.CloseClient}, nil
}

func (p *Redis) check(key string) error {
	if len(key) <= len(p.prefix) || !strings.HasPrefix(key, p.prefix) {
		return fmt.Errorf("%w: %q (want %q...)", ErrForeignKey, key, p.prefix)
	}
	return nil
}

func (p *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := p.check(key); err != nil {
		return nil, false, err
	}
	b, err := p.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// Set stores value with a PX expiry; non-positive TTLs mean no expiry. cost is
// ignored since Redis does its own memory accounting.
func (p *Redis) Set(ctx context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	if err := p.check(key); err != nil {
		return false, err
	}
	if err := p.rdb.Set(ctx, key, value, max(ttl, 0)).Err(); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Redis) Del(ctx context.Context, key string) error {
	if err := p.check(key); err != nil {
		return err
	}
	return p.rdb.Del(ctx, key).Err()
}

// Close releases the underlying redis client only when this provider owns it.
// Repeated calls are no-ops.
func (p *Redis) Close(context.Context) error {
	if p.closeClient {
		if err := p.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}
