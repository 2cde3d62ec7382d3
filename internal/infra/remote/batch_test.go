package remote

import (
	"context"
	"errors"
	"reflect"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vietddude/resync/internal/infra/storage"
	"github.com/vietddude/resync/internal/state/metrics"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		keys []int
		size int
		want [][]int
	}{
		{[]int{1, 2, 3}, 5, [][]int{{1, 2, 3}}},
		{[]int{1, 2, 3, 4, 5, 6}, 3, [][]int{{1, 2, 3}, {4, 5, 6}}},
		{[]int{1, 2, 3, 4, 5, 6, 7}, 3, [][]int{{1, 2, 3}, {4, 5, 6}, {7}}},
	}
	for _, tt := range tests {
		if got := Split(tt.keys, tt.size); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Split(%v, %d) = %v, want %v", tt.keys, tt.size, got, tt.want)
		}
	}
}

// chunkStore records each chunk it was asked for and fails chunks containing a poisoned key.
type chunkStore struct {
	mu     sync.Mutex
	chunks [][]int
	poison map[int]error
}

func (s *chunkStore) fetch(ctx context.Context, chunk []int) ([]string, error) {
	s.mu.Lock()
	s.chunks = append(s.chunks, slices.Clone(chunk))
	s.mu.Unlock()

	out := make([]string, 0, len(chunk))
	for _, k := range chunk {
		if err, ok := s.poison[k]; ok {
			return nil, err
		}
		out = append(out, string(rune('a'+k)))
	}
	return out, nil
}

func TestExecuteBatchedEmpty(t *testing.T) {
	s := &chunkStore{}
	res := ExecuteBatched(context.Background(), testExecutor(), "profiles", []int{}, 3, s.fetch)

	if !res.HasData || res.Err != nil || len(res.Data) != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Data == nil {
		t.Error("expected present empty data, got nil slice")
	}
	if len(s.chunks) != 0 {
		t.Errorf("store called %d times for empty key list", len(s.chunks))
	}
}

func TestExecuteBatchedSingleChunk(t *testing.T) {
	s := &chunkStore{}
	res := ExecuteBatched(context.Background(), testExecutor(), "profiles", []int{0, 1, 2}, 3, s.fetch)

	if !res.HasData || res.Partial || !reflect.DeepEqual(res.Data, []string{"a", "b", "c"}) {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(s.chunks) != 1 {
		t.Errorf("chunks = %d, want 1", len(s.chunks))
	}
}

func TestExecuteBatchedDefaultSize(t *testing.T) {
	s := &chunkStore{}
	keys := []int{0, 1, 2, 3, 4, 5, 6}
	// testExecutor has BatchSize 3
	res := ExecuteBatched(context.Background(), testExecutor(), "profiles", keys, 0, s.fetch)

	if !res.HasData || len(res.Data) != len(keys) {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(s.chunks) != 3 {
		t.Errorf("chunks = %d, want 3", len(s.chunks))
	}
}

func TestExecuteBatchedPartialMerge(t *testing.T) {
	// chunks: {0,1}, {2,3}, {4,5}; the middle chunk fails terminally
	s := &chunkStore{poison: map[int]error{2: storage.PermissionDenied("denied")}}
	res := ExecuteBatched(context.Background(), testExecutor(), "profiles", []int{0, 1, 2, 3, 4, 5}, 2, s.fetch)

	if !res.HasData || res.Err != nil {
		t.Fatalf("expected data without error, got %+v", res)
	}
	if !res.Partial {
		t.Error("expected Partial to be set")
	}
	if want := []string{"a", "b", "e", "f"}; !reflect.DeepEqual(res.Data, want) {
		t.Errorf("data = %v, want %v", res.Data, want)
	}
}

func TestExecuteBatchedTotalFailure(t *testing.T) {
	s := &chunkStore{poison: map[int]error{
		0: storage.PermissionDenied("first"),
		2: errors.New("second is unknown"),
	}}
	res := ExecuteBatched(context.Background(), testExecutor(), "profiles", []int{0, 1, 2, 3}, 2, s.fetch)

	if res.HasData {
		t.Fatalf("expected no data, got %v", res.Data)
	}
	if res.Err == nil || res.Err.Code != storage.CodePermissionDenied {
		t.Errorf("err = %v, want the first chunk's error", res.Err)
	}
}

func TestExecuteBatchedRetriesChunkIndependently(t *testing.T) {
	var mu sync.Mutex
	failedOnce := false
	fetch := func(ctx context.Context, chunk []int) ([]int, error) {
		mu.Lock()
		defer mu.Unlock()
		if chunk[0] == 2 && !failedOnce {
			failedOnce = true
			return nil, errors.New("connection refused")
		}
		return chunk, nil
	}

	res := ExecuteBatched(context.Background(), testExecutor(), "ids", []int{0, 1, 2, 3, 4}, 2, fetch)
	if !res.HasData || res.Partial {
		t.Fatalf("unexpected result: %+v", res)
	}
	if want := []int{0, 1, 2, 3, 4}; !reflect.DeepEqual(res.Data, want) {
		t.Errorf("data = %v, want %v", res.Data, want)
	}
}

func TestExecuteBatchedRunsChunksConcurrently(t *testing.T) {
	const chunks = 4
	var arrived sync.WaitGroup
	arrived.Add(chunks)
	all := make(chan struct{})
	go func() {
		arrived.Wait()
		close(all)
	}()

	// Every chunk waits until all of them are in flight at once
	fetch := func(ctx context.Context, chunk []int) ([]int, error) {
		arrived.Done()
		select {
		case <-all:
			return chunk, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	ex := NewExecutor(Config{MaxRetries: -1, Timeouts: Timeouts{Standard: time.Second}})
	res := ExecuteBatched(context.Background(), ex, "barrier", []int{0, 1, 2, 3, 4, 5, 6, 7}, 2, fetch)
	if !res.HasData || res.Partial || res.Err != nil {
		t.Fatalf("chunks did not run together: %+v", res)
	}
	if want := []int{0, 1, 2, 3, 4, 5, 6, 7}; !reflect.DeepEqual(res.Data, want) {
		t.Errorf("data = %v, want %v", res.Data, want)
	}
}

func TestExecuteBatchedKeepsOneMetricSeries(t *testing.T) {
	before := testutil.CollectAndCount(metrics.QueryAttempts)

	fetch := func(ctx context.Context, chunk []int) ([]int, error) { return chunk, nil }
	keys := make([]int, 25)
	res := ExecuteBatched(context.Background(), testExecutor(), "series.check", keys, 5, fetch)
	if !res.HasData {
		t.Fatalf("unexpected result: %+v", res)
	}

	if got := testutil.CollectAndCount(metrics.QueryAttempts) - before; got != 1 {
		t.Errorf("new query series = %d, want 1 for 5 chunks", got)
	}
	if got := testutil.ToFloat64(metrics.QueryAttempts.WithLabelValues("series.check")); got != 5 {
		t.Errorf("attempts = %v, want 5", got)
	}
}
