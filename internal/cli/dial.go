package cli

import (
	"context"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/recstore/config"
	"github.com/unkn0wn-root/recstore/provider"
	bcp "github.com/unkn0wn-root/recstore/provider/bigcache"
	redisp "github.com/unkn0wn-root/recstore/provider/redis"
	rp "github.com/unkn0wn-root/recstore/provider/ristretto"
	"github.com/unkn0wn-root/recstore/transport"
	"github.com/unkn0wn-root/recstore/transport/cached"
	rt "github.com/unkn0wn-root/recstore/transport/redis"
)

func redisClient(ctx context.Context, addr string, r config.Redis) (*goredis.Client, error) {
	opts := &goredis.Options{
		Addr:     addr,
		Username: r.Username,
		Password: r.Password,
		DB:       r.DB,
	}
	if r.Timeout > 0 {
		opts.DialTimeout = r.Timeout
		opts.ReadTimeout = r.Timeout
		opts.WriteTimeout = r.Timeout
	}
	rdb := goredis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis %s: %w", addr, err)
	}
	return rdb, nil
}

func dialRedis(ctx context.Context, f config.File) (transport.Transport, error) {
	rdb, err := redisClient(ctx, f.Redis.Addr, f.Redis)
	if err != nil {
		return nil, err
	}
	tr, err := rt.New(rt.Config{Client: rdb, Namespace: f.Namespace, CloseClient: true})
	if err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return tr, nil
}

// withCache wraps inner with the configured read-through cache. The returned
// transport owns inner.
func withCache(ctx context.Context, f config.File, inner transport.Transport) (transport.Transport, error) {
	var (
		p   provider.Provider
		err error
	)
	switch strings.ToLower(f.Cache.Kind) {
	case "", "none":
		return inner, nil
	case "ristretto":
		maxCost := f.Cache.MaxCost
		if maxCost <= 0 {
			maxCost = 64 << 20
		}
		p, err = rp.New(rp.Config{NumCounters: maxCost / 100, MaxCost: maxCost, BufferItems: 64})
	case "bigcache":
		p, err = bcp.New(ctx, bcp.Config{LifeWindow: f.Cache.TTL, HardMaxCacheSizeMB: f.Cache.HardMaxCacheSizeMB})
	case "redis":
		addr := f.Cache.Addr
		if addr == "" {
			addr = f.Redis.Addr
		}
		var rdb *goredis.Client
		if rdb, err = redisClient(ctx, addr, f.Redis); err == nil {
			p, err = redisp.New(redisp.Config{Client: rdb, CloseClient: true})
		}
	default:
		return nil, fmt.Errorf("unknown cache kind %q", f.Cache.Kind)
	}
	if err != nil {
		return nil, err
	}
	tr, err := cached.New(cached.Config{
		Inner:         inner,
		Provider:      p,
		Namespace:     f.Namespace,
		TTL:           f.Cache.TTL,
		CloseInner:    true,
		CloseProvider: true,
	})
	if err != nil {
		_ = p.Close(ctx)
		return nil, err
	}
	return tr, nil
}
