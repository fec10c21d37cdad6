package tests

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/chris-alexander-pop/pktbus/pkg/concurrency"
)

func TestPipeline_TransformsAndSkipsErrors(t *testing.T) {
	ctx := context.Background()
	in := concurrency.Generator(ctx, 1, 2, 3, 4, 5)

	out := concurrency.Pipeline(ctx, in, func(_ context.Context, n int) (int, error) {
		if n%2 == 0 {
			return 0, errors.New("even")
		}
		return n * 10, nil
	})

	var got []int
	for v := range out {
		got = append(got, v)
	}
	want := []int{10, 30, 50}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestFanOutFanIn_PreservesMultiset(t *testing.T) {
	ctx := context.Background()
	items := make([]int, 100)
	for i := range items {
		items[i] = i
	}
	in := concurrency.Generator(ctx, items...)

	out := concurrency.FanOutFanIn(ctx, in, 4, func(_ context.Context, n int) (int, error) {
		return n, nil
	})

	var got []int
	for v := range out {
		got = append(got, v)
	}
	sort.Ints(got)
	if len(got) != len(items) {
		t.Fatalf("got %d items, want %d", len(got), len(items))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("missing or duplicated item at %d: %d", i, v)
		}
	}
}

func TestBatch_GroupsWithRemainder(t *testing.T) {
	ctx := context.Background()
	in := concurrency.Generator(ctx, 1, 2, 3, 4, 5)

	var batches [][]int
	for b := range concurrency.Batch(ctx, in, 2) {
		batches = append(batches, b)
	}
	if len(batches) != 3 {
		t.Fatalf("got %d batches, want 3", len(batches))
	}
	if len(batches[2]) != 1 {
		t.Fatalf("last batch should carry the remainder, got %v", batches[2])
	}
}

func TestTake_StopsEarly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	in := concurrency.Generator(ctx, 1, 2, 3, 4, 5)

	var got []int
	for v := range concurrency.Take(ctx, in, 2) {
		got = append(got, v)
	}
	if len(got) != 2 {
		t.Fatalf("got %v, want exactly 2 items", got)
	}
}
