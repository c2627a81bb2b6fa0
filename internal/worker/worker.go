// Package worker runs batch items in fixed-size waves: every wave is fully resolved before the next one starts
package worker

import (
	"context"
	"sync"
)

// StartFunc prepares one item. It runs on the caller's goroutine, one item after another in wave order.
// The returned CallFunc runs concurrently with the rest of the wave; nil means the item has nothing to do.
type StartFunc func(ctx context.Context, id string) CallFunc

// CallFunc is the concurrent part of an item. It must call issued right before its blocking call:
// the next item of the wave waits for that before issuing its own. It must not panic and records its own failure.
type CallFunc func(ctx context.Context, issued func())

// Chunks splits ids into consecutive slices of at most k elements. k < 1 is treated as 1.
func Chunks(ids []string, k int) [][]string {
	if k < 1 {
		k = 1
	}

	res := make([][]string, 0, (len(ids)+k-1)/k)
	for start := 0; start < len(ids); start += k {
		end := min(start+k, len(ids))
		res = append(res, ids[start:end])
	}
	return res
}

// RunWaves processes ids wave by wave. Inside a wave items are started and issued in ids order,
// then run concurrently; a failing item never cancels its siblings.
// Once ctx is done, waves not yet started are skipped and their items are left untouched.
// Returns the number of items that were handed to start.
func RunWaves(ctx context.Context, ids []string, k int, start StartFunc) int {
	started := 0

	for _, chunk := range Chunks(ids, k) {
		select {
		case <-ctx.Done():
			return started
		default:
		}

		runWave(ctx, chunk, start)
		started += len(chunk)
	}

	return started
}

func runWave(ctx context.Context, chunk []string, start StartFunc) {
	calls := make([]CallFunc, 0, len(chunk))
	for _, id := range chunk {
		if call := start(ctx, id); call != nil {
			calls = append(calls, call)
		}
	}

	var wg sync.WaitGroup
	wg.Add(len(calls))

	// эстафета: i-й вызов уходит только после (i-1)-го
	prev := make(chan struct{})
	close(prev)

	for _, call := range calls {
		turn := make(chan struct{})
		var once sync.Once
		issued := func() { once.Do(func() { close(turn) }) }

		go func(call CallFunc, wait <-chan struct{}, issued func()) {
			defer wg.Done()
			defer issued()

			<-wait
			call(ctx, issued)
		}(call, prev, issued)

		prev = turn
	}

	wg.Wait()
}
