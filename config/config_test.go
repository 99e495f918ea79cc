package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/unkn0wn-root/recstore"
	"github.com/unkn0wn-root/recstore/retry"
)

func TestParseOverridesDefaults(t *testing.T) {
	f, err := Parse([]byte(`
redis:
  addr: redis:6380
namespace: app:test
client:
  chunk_size: 25
  base_delay: 5ms
  backoff_mode: fixed
  max_delay: 1s
cache:
  kind: ristretto
  max_cost: 1048576
log:
  level: debug
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := Default()
	want.Redis.Addr = "redis:6380"
	want.Namespace = "app:test"
	want.Client = recstore.DefaultConfig().
		WithChunkSize(25).
		WithBaseDelay(5 * time.Millisecond).
		WithBackoffMode(retry.Fixed).
		WithMaxDelay(time.Second)
	want.Cache.Kind = "ristretto"
	want.Cache.MaxCost = 1 << 20
	want.Log.Level = "debug"
	if diff := cmp.Diff(want, f); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"bad mode":     "client:\n  backoff_mode: linear\n",
		"zero chunk":   "client:\n  chunk_size: 0\n",
		"bad cache":    "cache:\n  kind: memcached\n",
		"bad level":    "log:\n  level: loud\n",
		"empty redis":  "redis:\n  addr: \"\"\n",
		"bad duration": "client:\n  base_delay: soon\n",
		"neg max size": "max_value_bytes: -1\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc)); err == nil {
				t.Fatalf("expected error for %q", doc)
			}
		})
	}
	if _, err := Parse([]byte("cache:\n  kind: memcached\n")); !errors.Is(err, ErrInvalid) {
		t.Fatalf("want ErrInvalid, got %v", err)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recstore.yaml")
	if err := os.WriteFile(path, []byte("namespace: from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RECSTORE_REDIS_ADDR", "env:6379")

	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if f.Namespace != "from-file" || f.Redis.Addr != "env:6379" {
		t.Fatalf("got %+v", f)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}

	f, err = Load("")
	if err != nil || f.Client != recstore.DefaultConfig() {
		t.Fatalf("empty path should give defaults: %+v err=%v", f, err)
	}
}
