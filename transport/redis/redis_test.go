package redis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/recstore/transport"
)

// newTestTransport connects to RECSTORE_REDIS_ADDR; tests are skipped without it.
func newTestTransport(t *testing.T) *Transport {
	t.Helper()
	addr := os.Getenv("RECSTORE_REDIS_ADDR")
	if addr == "" {
		t.Skip("RECSTORE_REDIS_ADDR not set")
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis not reachable at %s: %v", addr, err)
	}
	ns := fmt.Sprintf("test-%d", time.Now().UnixNano())
	tr, err := New(Config{Client: rdb, Namespace: ns, CloseClient: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = tr.Close(context.Background()) })
	return tr
}

func TestNewRequiresClient(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrNilClient) {
		t.Fatalf("want ErrNilClient, got %v", err)
	}
}

func TestReservedFieldRejected(t *testing.T) {
	tr := &Transport{}
	if _, err := tr.Put(context.Background(), "k", "@gen", nil, 0); !errors.Is(err, transport.ErrInvalidField) {
		t.Fatalf("want ErrInvalidField, got %v", err)
	}
}

func TestTTLMillis(t *testing.T) {
	cases := map[time.Duration]int64{
		0:                       0,
		-time.Second:            0,
		time.Microsecond:        1,
		1500 * time.Millisecond: 1500,
	}
	for in, want := range cases {
		if got := ttlMillis(in); got != want {
			t.Fatalf("ttlMillis(%v)=%d want %d", in, got, want)
		}
	}
}

func TestRedisConditionalPutFlow(t *testing.T) {
	ctx := context.Background()
	tr := newTestTransport(t)

	g, err := tr.ConditionalPut(ctx, "k", "f", []byte("a"), 0, time.Minute)
	if err != nil || g != 1 {
		t.Fatalf("create: gen=%d err=%v", g, err)
	}
	if _, err := tr.ConditionalPut(ctx, "k", "f", []byte("b"), 0, 0); !errors.Is(err, transport.ErrGenerationMismatch) {
		t.Fatalf("want mismatch, got %v", err)
	}
	g, err = tr.ConditionalPut(ctx, "k", "f", []byte("b"), 1, 0)
	if err != nil || g != 2 {
		t.Fatalf("update: gen=%d err=%v", g, err)
	}
	rec, err := tr.Get(ctx, "k", []string{"f"})
	if err != nil || rec.Generation != 2 || string(rec.Fields["f"]) != "b" {
		t.Fatalf("get: %+v err=%v", rec, err)
	}
	if g, err := tr.Touch(ctx, "k", time.Minute); err != nil || g != 3 {
		t.Fatalf("touch: gen=%d err=%v", g, err)
	}
	if err := tr.Delete(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.Get(ctx, "k", nil); !errors.Is(err, transport.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if _, err := tr.Touch(ctx, "k", 0); !errors.Is(err, transport.ErrNotFound) {
		t.Fatalf("touch missing: want ErrNotFound, got %v", err)
	}
}

func TestRedisBatchGetOrder(t *testing.T) {
	ctx := context.Background()
	tr := newTestTransport(t)
	_, _ = tr.Put(ctx, "a", "f", []byte("1"), 0)
	_, _ = tr.Put(ctx, "b", "f", []byte("2"), 0)

	for _, fields := range [][]string{nil, {"f"}} {
		recs, err := tr.BatchGet(ctx, []string{"b", "x", "a", "b"}, fields)
		if err != nil {
			t.Fatal(err)
		}
		want := []string{"b", "x", "a", "b"}
		for i, r := range recs {
			if r.Key != want[i] {
				t.Fatalf("fields=%v pos %d: %q want %q", fields, i, r.Key, want[i])
			}
		}
		if recs[1].Exists() {
			t.Fatalf("x should be missing")
		}
		if string(recs[0].Fields["f"]) != "2" || string(recs[2].Fields["f"]) != "1" {
			t.Fatalf("fields=%v unexpected %+v", fields, recs)
		}
	}
}
