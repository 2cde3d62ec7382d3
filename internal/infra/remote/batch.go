package remote

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/resync/internal/state/metrics"
)

// Split splits keys into contiguous chunks of at most size elements.
func Split[K any](keys []K, size int) [][]K {
	if size <= 0 || len(keys) <= size {
		return [][]K{keys}
	}

	chunks := make([][]K, 0, (len(keys)+size-1)/size)
	for start := 0; start < len(keys); start += size {
		end := min(start+size, len(keys))
		chunks = append(chunks, keys[start:end:end])
	}
	return chunks
}

// ExecuteBatched runs an ID-list query in concurrent chunks of batchSize keys.
// Every chunk goes through Execute. Data from successful chunks is concatenated in
// chunk order; the batch only fails when no chunk returned data.
// A batchSize <= 0 uses the configured default.
func ExecuteBatched[K, T any](
	ctx context.Context,
	ex *Executor,
	name string,
	keys []K,
	batchSize int,
	call func(ctx context.Context, chunk []K) ([]T, error),
	opts ...Option,
) Result[[]T] {
	if batchSize <= 0 {
		batchSize = ex.cfg.BatchSize
	}
	if len(keys) == 0 {
		return Result[[]T]{Data: []T{}, HasData: true}
	}
	if len(keys) <= batchSize {
		return Execute(ctx, ex, name, func(ctx context.Context) ([]T, error) {
			return call(ctx, keys)
		}, opts...)
	}

	chunks := Split(keys, batchSize)
	results := make([]Result[[]T], len(chunks))

	var g errgroup.Group
	if ex.cfg.BatchConcurrency > 0 {
		g.SetLimit(ex.cfg.BatchConcurrency)
	}
	for i, chunk := range chunks {
		chunkOpts := append(opts[:len(opts):len(opts)], withChunk(i))
		g.Go(func() error {
			// Chunk failures are merged below and never abort the group
			results[i] = Execute(ctx, ex, name, func(ctx context.Context) ([]T, error) {
				return call(ctx, chunk)
			}, chunkOpts...)
			return nil
		})
	}
	_ = g.Wait()

	return mergeChunks(ex, name, results)
}

func mergeChunks[T any](ex *Executor, name string, results []Result[[]T]) Result[[]T] {
	var (
		merged   []T
		firstErr *ClassifiedError
		hasData  bool
		failed   int
	)
	for i, r := range results {
		if r.HasData {
			metrics.BatchChunks.WithLabelValues(name, "success").Inc()
			hasData = true
			merged = append(merged, r.Data...)
			continue
		}
		metrics.BatchChunks.WithLabelValues(name, "error").Inc()
		failed++
		if firstErr == nil {
			firstErr = r.Err
		}
		ex.log.Warn("Batch chunk failed", "query", name, "chunk", i, "error", r.Err)
	}

	if !hasData {
		return Result[[]T]{Err: firstErr}
	}
	if merged == nil {
		merged = []T{}
	}
	return Result[[]T]{Data: merged, HasData: true, Partial: failed > 0}
}
