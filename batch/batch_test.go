package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func upper(_ context.Context, chunk []string) ([]string, error) {
	out := make([]string, len(chunk))
	for i, k := range chunk {
		out[i] = strings.ToUpper(k)
	}
	return out, nil
}

func keysN(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("k%03d", i)
	}
	return out
}

func TestFetchPreservesOrderAndDuplicates(t *testing.T) {
	keys := []string{"b", "a", "b", "c", "a"}
	got, err := Fetch(context.Background(), keys, upper, 2, 2)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	want := []Item[string]{
		{"b", "B"}, {"a", "A"}, {"b", "B"}, {"c", "C"}, {"a", "A"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("items mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchEmptyInput(t *testing.T) {
	called := false
	got, err := Fetch(context.Background(), nil, func(context.Context, []string) ([]string, error) {
		called = true
		return nil, nil
	}, 10, 2)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("want empty non-nil slice, got %#v", got)
	}
	if called {
		t.Fatalf("fetcher must not run for empty input")
	}
}

func TestFetchInvalidPlan(t *testing.T) {
	for _, p := range []Plan{{0, 1}, {1, 0}, {-3, 4}} {
		if _, err := Fetch(context.Background(), []string{"a"}, upper, p.ChunkSize, p.MaxConcurrent); !errors.Is(err, ErrInvalidPlan) {
			t.Fatalf("plan %+v: want ErrInvalidPlan, got %v", p, err)
		}
	}
}

func TestFetchChunkSizing(t *testing.T) {
	for _, conc := range []int{1, 3, 30} {
		t.Run(fmt.Sprintf("concurrency=%d", conc), func(t *testing.T) {
			var mu sync.Mutex
			var sizes []int
			fetch := func(ctx context.Context, chunk []string) ([]string, error) {
				mu.Lock()
				sizes = append(sizes, len(chunk))
				mu.Unlock()
				return upper(ctx, chunk)
			}
			keys := keysN(100)
			got, err := Fetch(context.Background(), keys, fetch, 10, conc)
			if err != nil {
				t.Fatalf("Fetch: %v", err)
			}
			if len(got) != 100 {
				t.Fatalf("len=%d want 100", len(got))
			}
			for i, it := range got {
				if it.Key != keys[i] || it.Value != strings.ToUpper(keys[i]) {
					t.Fatalf("pos %d: %+v", i, it)
				}
			}
			if len(sizes) != 10 {
				t.Fatalf("chunks=%d want 10", len(sizes))
			}
			for _, s := range sizes {
				if s != 10 {
					t.Fatalf("chunk size %d want 10", s)
				}
			}
		})
	}
}

func TestFetchLastChunkShort(t *testing.T) {
	var mu sync.Mutex
	var sizes []int
	fetch := func(ctx context.Context, chunk []string) ([]string, error) {
		mu.Lock()
		sizes = append(sizes, len(chunk))
		mu.Unlock()
		return upper(ctx, chunk)
	}
	if _, err := Fetch(context.Background(), keysN(7), fetch, 3, 1); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if diff := cmp.Diff([]int{3, 3, 1}, sizes); diff != "" {
		t.Fatalf("chunk sizes (-want +got):\n%s", diff)
	}
}

func TestFetchWaveBarrier(t *testing.T) {
	const conc = 3
	var inflight, peak atomic.Int32
	var mu sync.Mutex
	var events []string // "start:<chunk>" / "end:<chunk>"

	fetch := func(ctx context.Context, chunk []string) ([]string, error) {
		n := inflight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		mu.Lock()
		events = append(events, "start:"+chunk[0])
		mu.Unlock()

		// the first chunk of every wave is the slow one
		d := time.Millisecond
		if chunk[0] == "k000" || chunk[0] == "k030" || chunk[0] == "k060" {
			d = 20 * time.Millisecond
		}
		time.Sleep(d)

		mu.Lock()
		events = append(events, "end:"+chunk[0])
		mu.Unlock()
		inflight.Add(-1)
		return upper(ctx, chunk)
	}

	if _, err := Fetch(context.Background(), keysN(90), fetch, 10, conc); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if p := peak.Load(); p > conc {
		t.Fatalf("peak in-flight %d exceeds %d", p, conc)
	}

	wave := func(first string) int {
		var n int
		fmt.Sscanf(first, "k%03d", &n)
		return n / (10 * conc)
	}
	ended := map[int]int{}
	for _, ev := range events {
		kind, first, _ := strings.Cut(ev, ":")
		w := wave(first)
		switch kind {
		case "start":
			if w > 0 && ended[w-1] != conc {
				t.Fatalf("chunk %s of wave %d started before wave %d finished (%d/%d ended)", first, w, w-1, ended[w-1], conc)
			}
		case "end":
			ended[w]++
		}
	}
}

func TestFetchCanceledBeforeDispatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var calls atomic.Int32
	fetch := func(ctx context.Context, chunk []string) ([]string, error) {
		calls.Add(1)
		return upper(ctx, chunk)
	}
	_, err := Fetch(ctx, keysN(10), fetch, 2, 2)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("fetcher ran %d times after cancel", calls.Load())
	}
}

func TestFetchCancelBetweenWaves(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var calls atomic.Int32
	fetch := func(ctx context.Context, chunk []string) ([]string, error) {
		if calls.Add(1) == 2 {
			cancel()
		}
		return upper(ctx, chunk)
	}
	_, err := Fetch(ctx, keysN(10), fetch, 1, 2)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("fetcher ran %d times, want only the first wave (2)", n)
	}
}

func TestFetchFailureAbortsLaterWaves(t *testing.T) {
	boom := errors.New("boom")
	var calls atomic.Int32
	fetch := func(ctx context.Context, chunk []string) ([]string, error) {
		calls.Add(1)
		if chunk[0] == "k002" {
			return nil, boom
		}
		return upper(ctx, chunk)
	}
	got, err := Fetch(context.Background(), keysN(10), fetch, 1, 2)
	if !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}
	if got != nil {
		t.Fatalf("want no partial results, got %d items", len(got))
	}
	var ce *ChunkError
	if !errors.As(err, &ce) {
		t.Fatalf("want *ChunkError, got %T", err)
	}
	if ce.Wave != 1 || ce.Chunk != 2 || ce.Start != 2 || ce.Size != 1 {
		t.Fatalf("unexpected chunk error %+v", ce)
	}
	// waves 0 and 1 ran; nothing after.
	if n := calls.Load(); n != 4 {
		t.Fatalf("fetcher ran %d times, want 4", n)
	}
}

func TestFetchResultCountMismatch(t *testing.T) {
	fetch := func(_ context.Context, chunk []string) ([]string, error) {
		return make([]string, len(chunk)-1), nil
	}
	if _, err := Fetch(context.Background(), keysN(4), fetch, 2, 2); !errors.Is(err, ErrChunkResultMismatch) {
		t.Fatalf("want ErrChunkResultMismatch, got %v", err)
	}
}

func TestPlanCounts(t *testing.T) {
	p := Plan{ChunkSize: 10, MaxConcurrent: 3}
	cases := []struct{ n, chunks, waves int }{
		{0, 0, 0},
		{1, 1, 1},
		{10, 1, 1},
		{31, 4, 2},
		{100, 10, 4},
	}
	for _, tc := range cases {
		if c := p.Chunks(tc.n); c != tc.chunks {
			t.Fatalf("Chunks(%d)=%d want %d", tc.n, c, tc.chunks)
		}
		if w := p.Waves(tc.n); w != tc.waves {
			t.Fatalf("Waves(%d)=%d want %d", tc.n, w, tc.waves)
		}
	}
}
