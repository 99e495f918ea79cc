// Package batch reads an ordered key sequence in fixed-size chunks with
// bounded concurrency.
//
// Scheduling is wave-based: up to maxConcurrent chunks are launched together
// and the whole wave is joined before the next one starts. A slow chunk
// therefore stalls its wave even when other slots are idle. Output order always
// equals input order, duplicates included.
package batch

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

var (
	ErrInvalidPlan         = errors.New("batch: chunk size and concurrency must be >= 1")
	ErrChunkResultMismatch = errors.New("batch: fetcher returned wrong number of results")
)

// FetchFunc fetches one chunk and returns exactly one result per key, in the
// order of the chunk.
type FetchFunc[T any] func(ctx context.Context, chunk []string) ([]T, error)

// Item pairs an input key with its fetched result.
type Item[T any] struct {
	Key   string
	Value T
}

// ChunkError reports which chunk failed.
type ChunkError struct {
	Wave  int // zero-based wave index
	Chunk int // zero-based chunk index across the whole call
	Start int // offset of the chunk's first key in the input
	Size  int
	Err   error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("batch: chunk %d (wave %d, keys %d..%d): %v",
		e.Chunk, e.Wave, e.Start, e.Start+e.Size-1, e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }

// Plan sizes a batch call.
type Plan struct {
	ChunkSize     int
	MaxConcurrent int
}

func (p Plan) Validate() error {
	if p.ChunkSize < 1 || p.MaxConcurrent < 1 {
		return fmt.Errorf("%w (chunk=%d, concurrency=%d)", ErrInvalidPlan, p.ChunkSize, p.MaxConcurrent)
	}
	return nil
}

// Chunks returns how many chunks n keys split into.
func (p Plan) Chunks(n int) int {
	if p.ChunkSize < 1 || n <= 0 {
		return 0
	}
	return (n + p.ChunkSize - 1) / p.ChunkSize
}

// Waves returns how many waves n keys take.
func (p Plan) Waves(n int) int {
	c := p.Chunks(n)
	if c == 0 || p.MaxConcurrent < 1 {
		return 0
	}
	return (c + p.MaxConcurrent - 1) / p.MaxConcurrent
}

type chunk struct {
	index int
	start int
	keys  []string
}

// Fetch reads keys through fetch and returns one Item per input key in input
// order. The context is checked before every chunk dispatch. The first chunk
// failure cancels its wave, and Fetch returns that error after the wave is
// joined; no later wave starts and no partial results are returned.
func Fetch[T any](ctx context.Context, keys []string, fetch FetchFunc[T], chunkSize, maxConcurrent int) ([]Item[T], error) {
	plan := Plan{ChunkSize: chunkSize, MaxConcurrent: maxConcurrent}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	out := make([]Item[T], 0, len(keys))
	window := make([]chunk, 0, min(maxConcurrent, plan.Chunks(len(keys))))
	wave := 0

	for start, idx := 0, 0; start < len(keys); start, idx = start+chunkSize, idx+1 {
		end := min(start+chunkSize, len(keys))
		window = append(window, chunk{index: idx, start: start, keys: keys[start:end]})
		if len(window) < maxConcurrent {
			continue
		}
		var err error
		if out, err = runWave(ctx, wave, window, fetch, out); err != nil {
			return nil, err
		}
		window = window[:0]
		wave++
	}
	if len(window) > 0 {
		var err error
		if out, err = runWave(ctx, wave, window, fetch, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// runWave launches every chunk of the window, joins them all, then appends
// their results to out in chunk order.
func runWave[T any](ctx context.Context, wave int, window []chunk, fetch FetchFunc[T], out []Item[T]) ([]Item[T], error) {
	results := make([][]T, len(window))
	g, gctx := errgroup.WithContext(ctx)

	var dispatchErr error
	for i, c := range window {
		if err := ctx.Err(); err != nil {
			dispatchErr = err
			break
		}
		g.Go(func() error {
			res, err := fetch(gctx, c.keys)
			if err == nil && len(res) != len(c.keys) {
				err = fmt.Errorf("%w: got %d, want %d", ErrChunkResultMismatch, len(res), len(c.keys))
			}
			if err != nil {
				return &ChunkError{Wave: wave, Chunk: c.index, Start: c.start, Size: len(c.keys), Err: err}
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if dispatchErr != nil {
		return nil, dispatchErr
	}

	for i, c := range window {
		for j, k := range c.keys {
			out = append(out, Item[T]{Key: k, Value: results[i][j]})
		}
	}
	return out, nil
}
