// Package redis implements transport.Transport on top of Redis hashes.
//
// Each record is one hash at "rec:<ns>:<key>". User fields are stored as hash
// fields; the generation lives in the reserved "@gen" field. Conditional writes
// run as a Lua script so the generation check and the write are atomic.
package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/recstore/internal/util"
	"github.com/unkn0wn-root/recstore/transport"
)

const (
	genField   = "@gen"
	reservedCh = "@"
	keyPrefix  = "rec"

	unconditional = -1
	mismatch      = -1
	notFound      = -2
)

var ErrNilClient = errors.New("redis transport: nil client")

// KEYS[1]=record; ARGV: expected (-1 = unconditional), field, value, ttl ms.
var writeScript = goredis.NewScript(`
local gen = tonumber(redis.call('HGET', KEYS[1], '@gen') or '0')
local expected = tonumber(ARGV[1])
if expected >= 0 and gen ~= expected then
  return -1
end
redis.call('HSET', KEYS[1], ARGV[2], ARGV[3])
gen = redis.call('HINCRBY', KEYS[1], '@gen', 1)
local ttl = tonumber(ARGV[4])
if ttl > 0 then
  redis.call('PEXPIRE', KEYS[1], ttl)
else
  redis.call('PERSIST', KEYS[1])
end
return gen
`)

// KEYS[1]=record; ARGV: ttl ms.
var touchScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -2
end
local gen = redis.call('HINCRBY', KEYS[1], '@gen', 1)
local ttl = tonumber(ARGV[1])
if ttl > 0 then
  redis.call('PEXPIRE', KEYS[1], ttl)
else
  redis.call('PERSIST', KEYS[1])
end
return gen
`)

type Config struct {
	Client      goredis.UniversalClient
	Namespace   string // logical namespace; isolates keyspaces of different stores
	CloseClient bool   // set true only if this transport exclusively owns the client
}

type Transport struct {
	rdb         goredis.UniversalClient
	ns          string
	closeClient bool
}

var _ transport.Transport = (*Transport)(nil)

func New(cfg Config) (*Transport, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	return &Transport{rdb: cfg.Client, ns: cfg.Namespace, closeClient: cfg.CloseClient}, nil
}

func (t *Transport) key(k string) string { return util.StorageKey(keyPrefix, t.ns, k) }

func (t *Transport) Get(ctx context.Context, key string, fields []string) (transport.Record, error) {
	if err := checkFields(fields); err != nil {
		return transport.Record{}, err
	}
	var rec transport.Record
	var err error
	if len(fields) == 0 {
		rec, err = fromHash(key, t.rdb.HGetAll(ctx, t.key(key)))
	} else {
		rec, err = fromFields(key, fields, t.rdb.HMGet(ctx, t.key(key), hmgetArgs(fields)...))
	}
	if err != nil {
		return transport.Record{}, err
	}
	if !rec.Exists() {
		return transport.Record{}, transport.ErrNotFound
	}
	return rec, nil
}

// BatchGet pipelines one HGETALL/HMGET per key in a single round-trip.
func (t *Transport) BatchGet(ctx context.Context, keys []string, fields []string) ([]transport.Record, error) {
	if err := checkFields(fields); err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return []transport.Record{}, nil
	}
	all := make([]*goredis.MapStringStringCmd, len(keys))
	some := make([]*goredis.SliceCmd, len(keys))
	args := hmgetArgs(fields)
	skeys := util.StorageKeys(keyPrefix, t.ns, keys)
	_, err := t.rdb.Pipelined(ctx, func(p goredis.Pipeliner) error {
		for i, sk := range skeys {
			if len(fields) == 0 {
				all[i] = p.HGetAll(ctx, sk)
			} else {
				some[i] = p.HMGet(ctx, sk, args...)
			}
		}
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	out := make([]transport.Record, len(keys))
	for i, k := range keys {
		var rec transport.Record
		if len(fields) == 0 {
			rec, err = fromHash(k, all[i])
		} else {
			rec, err = fromFields(k, fields, some[i])
		}
		if err != nil {
			return nil, err
		}
		if !rec.Exists() {
			rec = transport.Record{Key: k}
		}
		out[i] = rec
	}
	return out, nil
}

func (t *Transport) ConditionalPut(ctx context.Context, key, field string, value []byte, expectedGen uint64, ttl time.Duration) (uint64, error) {
	return t.write(ctx, key, field, value, int64(expectedGen), ttl)
}

func (t *Transport) Put(ctx context.Context, key, field string, value []byte, ttl time.Duration) (uint64, error) {
	return t.write(ctx, key, field, value, unconditional, ttl)
}

func (t *Transport) write(ctx context.Context, key, field string, value []byte, expected int64, ttl time.Duration) (uint64, error) {
	if err := checkField(field); err != nil {
		return 0, err
	}
	res, err := writeScript.Run(ctx, t.rdb, []string{t.key(key)}, expected, field, value, ttlMillis(ttl)).Int64()
	if err != nil {
		return 0, classify(err)
	}
	if res == mismatch {
		return 0, transport.ErrGenerationMismatch
	}
	return uint64(res), nil
}

func (t *Transport) Touch(ctx context.Context, key string, ttl time.Duration) (uint64, error) {
	res, err := touchScript.Run(ctx, t.rdb, []string{t.key(key)}, ttlMillis(ttl)).Int64()
	if err != nil {
		return 0, classify(err)
	}
	if res == notFound {
		return 0, transport.ErrNotFound
	}
	return uint64(res), nil
}

func (t *Transport) Delete(ctx context.Context, key string) error {
	n, err := t.rdb.Del(ctx, t.key(key)).Result()
	if err != nil {
		return classify(err)
	}
	if n == 0 {
		return transport.ErrNotFound
	}
	return nil
}

// Close releases the underlying redis client only when this transport owns it.
func (t *Transport) Close(context.Context) error {
	if t.closeClient {
		if err := t.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}

func fromHash(key string, cmd *goredis.MapStringStringCmd) (transport.Record, error) {
	m, err := cmd.Result()
	if err != nil {
		return transport.Record{}, classify(err)
	}
	raw, ok := m[genField]
	if !ok {
		return transport.Record{Key: key}, nil
	}
	gen, err := parseGen(raw)
	if err != nil {
		return transport.Record{}, err
	}
	fields := make(map[string][]byte, len(m)-1)
	for k, v := range m {
		if k != genField {
			fields[k] = []byte(v)
		}
	}
	return transport.Record{Key: key, Generation: gen, Fields: fields}, nil
}

// fromFields decodes an HMGET reply whose first slot is the generation.
func fromFields(key string, fields []string, cmd *goredis.SliceCmd) (transport.Record, error) {
	vals, err := cmd.Result()
	if err != nil {
		return transport.Record{}, classify(err)
	}
	if len(vals) != len(fields)+1 {
		return transport.Record{}, fmt.Errorf("redis transport: HMGET returned %d values, want %d", len(vals), len(fields)+1)
	}
	if vals[0] == nil {
		return transport.Record{Key: key}, nil
	}
	gen, err := parseGen(fmt.Sprint(vals[0]))
	if err != nil {
		return transport.Record{}, err
	}
	out := make(map[string][]byte, len(fields))
	for i, f := range fields {
		switch v := vals[i+1].(type) {
		case nil:
		case string:
			out[f] = []byte(v)
		case []byte:
			out[f] = v
		default:
			return transport.Record{}, fmt.Errorf("%w: field %q has %T", transport.ErrTypeMismatch, f, v)
		}
	}
	return transport.Record{Key: key, Generation: gen, Fields: out}, nil
}

func parseGen(s string) (uint64, error) {
	g, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: redis gen parse: %v", transport.ErrTypeMismatch, err)
	}
	return g, nil
}

func hmgetArgs(fields []string) []string {
	if len(fields) == 0 {
		return nil
	}
	out := make([]string, 0, len(fields)+1)
	out = append(out, genField)
	return append(out, fields...)
}

func checkField(f string) error {
	if f == "" || strings.HasPrefix(f, reservedCh) {
		return fmt.Errorf("%w: %q", transport.ErrInvalidField, f)
	}
	return nil
}

func checkFields(fs []string) error {
	for _, f := range fs {
		if err := checkField(f); err != nil {
			return err
		}
	}
	return nil
}

func ttlMillis(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	ms := ttl.Milliseconds()
	if ms == 0 {
		ms = 1
	}
	return ms
}

// classify maps go-redis failures onto the transport error taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if strings.HasPrefix(err.Error(), "WRONGTYPE") {
		return fmt.Errorf("%w: %w", transport.ErrTypeMismatch, err)
	}
	if errors.Is(err, goredis.ErrClosed) {
		return fmt.Errorf("%w: %w", transport.ErrUnavailable, err)
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return fmt.Errorf("%w: %w", transport.ErrUnavailable, err)
	}
	return err
}
