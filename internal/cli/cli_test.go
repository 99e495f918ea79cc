package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/unkn0wn-root/recstore"
	"github.com/unkn0wn-root/recstore/config"
	"github.com/unkn0wn-root/recstore/transport"
	"github.com/unkn0wn-root/recstore/transport/memory"
)

// run executes one command against mem and returns its stdout.
func run(t *testing.T, mem *memory.Store, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	dial := func(context.Context, config.File) (transport.Transport, error) { return nopClose{mem}, nil }
	root := NewRootCmd(&out, dial)
	root.SetArgs(args)
	root.SetErr(&bytes.Buffer{})
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// nopClose keeps the memory store alive across commands.
type nopClose struct{ *memory.Store }

func (nopClose) Close(context.Context) error { return nil }

func TestPutGetDelete(t *testing.T) {
	mem := memory.New(0)

	out, err := run(t, mem, "put", "user:1", "name", "ada")
	if err != nil || out != "gen=1\n" {
		t.Fatalf("put: %q err=%v", out, err)
	}
	out, err = run(t, mem, "get", "user:1", "name")
	if err != nil || out != "ada\tgen=1\n" {
		t.Fatalf("get: %q err=%v", out, err)
	}
	if _, err = run(t, mem, "put", "--if-gen", "0", "user:1", "name", "grace"); !errors.Is(err, recstore.ErrVersionConflict) {
		t.Fatalf("conditional put: want ErrVersionConflict, got %v", err)
	}
	out, err = run(t, mem, "put", "--if-gen", "1", "user:1", "name", "grace")
	if err != nil || out != "gen=2\n" {
		t.Fatalf("conditional put: %q err=%v", out, err)
	}
	out, err = run(t, mem, "touch", "--ttl", "1h", "user:1")
	if err != nil || out != "gen=3\n" {
		t.Fatalf("touch: %q err=%v", out, err)
	}
	if _, err = run(t, mem, "delete", "user:1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err = run(t, mem, "get", "user:1", "name"); !errors.Is(err, recstore.ErrNotFound) {
		t.Fatalf("get after delete: want ErrNotFound, got %v", err)
	}
}

func TestIncrAndBatch(t *testing.T) {
	mem := memory.New(0)
	for i := 0; i < 3; i++ {
		if _, err := run(t, mem, "incr", "--by", "2", "c", "n"); err != nil {
			t.Fatalf("incr: %v", err)
		}
	}
	out, err := run(t, mem, "get", "c", "n")
	if err != nil || out != "6\tgen=3\n" {
		t.Fatalf("get counter: %q err=%v", out, err)
	}

	if _, err := run(t, mem, "put", "d", "n", "x"); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, mem, "incr", "d", "n"); !errors.Is(err, recstore.ErrOperation) {
		t.Fatalf("incr on non-counter: want ErrOperation, got %v", err)
	}

	out, err = run(t, mem, "batch", "--chunk", "1", "--concurrency", "2", "n", "c", "missing", "c", "d")
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	want := "c\t6\tgen=3\nmissing\t(missing)\nc\t6\tgen=3\nd\tx\tgen=1\n"
	if out != want {
		t.Fatalf("batch output:\n%s\nwant:\n%s", out, want)
	}
}

func TestConfigFileAndCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recstore.yaml")
	doc := "namespace: cli\ncache:\n  kind: ristretto\n  max_cost: 1048576\nlog:\n  level: error\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	mem := memory.New(0)
	if _, err := run(t, mem, "-c", path, "put", "k", "f", "v"); err != nil {
		t.Fatalf("put: %v", err)
	}
	out, err := run(t, mem, "-c", path, "get", "k", "f")
	if err != nil || out != "v\tgen=1\n" {
		t.Fatalf("get through cache: %q err=%v", out, err)
	}

	if _, err := run(t, mem, "-c", filepath.Join(t.TempDir(), "nope.yaml"), "get", "k", "f"); err == nil {
		t.Fatalf("missing config file should fail")
	}
}

func TestMaxValueBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recstore.yaml")
	if err := os.WriteFile(path, []byte("max_value_bytes: 4\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	mem := memory.New(0)
	if _, err := run(t, mem, "-c", path, "put", "k", "f", "0123456789"); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := run(t, mem, "-c", path, "get", "k", "f"); !errors.Is(err, recstore.ErrTypeMismatch) {
		t.Fatalf("oversized value: want ErrTypeMismatch, got %v", err)
	}
	if out, err := run(t, mem, "get", "k", "f"); err != nil || out != "0123456789\tgen=1\n" {
		t.Fatalf("without a limit: %q err=%v", out, err)
	}
}

// countingClose records how often the CLI released its transport.
type countingClose struct {
	*memory.Store
	closes int
}

func (c *countingClose) Close(context.Context) error {
	c.closes++
	return nil
}

func TestTransportClosedOnEveryExit(t *testing.T) {
	cases := []struct {
		name    string
		args    []string
		wantErr error
	}{
		{"success", []string{"put", "k", "f", "v"}, nil},
		{"command fails", []string{"get", "missing", "f"}, recstore.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tr := &countingClose{Store: memory.New(0)}
			dial := func(context.Context, config.File) (transport.Transport, error) { return tr, nil }
			root := NewRootCmd(&bytes.Buffer{}, dial)
			root.SetArgs(tc.args)
			root.SetErr(&bytes.Buffer{})
			err := root.ExecuteContext(context.Background())
			if tc.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("want %v, got %v", tc.wantErr, err)
			}
			if tr.closes != 1 {
				t.Fatalf("transport closed %d times, want 1", tr.closes)
			}
		})
	}
}

func TestArgsValidation(t *testing.T) {
	_, err := run(t, memory.New(0), "get", "only-key")
	if err == nil || !strings.Contains(err.Error(), "accepts 2 arg") {
		t.Fatalf("want arg count error, got %v", err)
	}
}
