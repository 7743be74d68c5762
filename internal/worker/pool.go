// Package worker implements the bounded concurrent segment fetch pool
// (§4.5): fetch, decrypt, validate, persist, and publish progress for every
// outstanding segment, retrying transient failures with backoff and
// jitter, and failing the whole task hard if any segment exhausts retries.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/haldenfox/m3u8dl/internal/crypto"
	"github.com/haldenfox/m3u8dl/internal/httpclient"
	"github.com/haldenfox/m3u8dl/internal/manifest"
	"github.com/haldenfox/m3u8dl/internal/store"
)

// Result is reported to OnSegment once per segment, when its download
// finally succeeds or fails.
type Result struct {
	Segment *manifest.Segment
	Bytes   int64
	Err     error // nil on success
}

// Pool drives up to Threads concurrent workers over a fixed segment list.
type Pool struct {
	Threads     int
	Client      *httpclient.Client
	Store       *store.Store
	Keys        *crypto.KeyCache
	Headers     map[string]string
	MaxRetries  int           // R in §4.5, default 6
	BaseBackoff time.Duration // default 500ms
	MaxBackoff  time.Duration // default 30s
	OnSegment   func(Result)

	jitter func() float64 // overridable for deterministic tests; defaults to math/rand
}

// ErrSegmentExhausted is returned by Run for the first segment that fails
// for good: its retries are exhausted, it hits a non-retryable error, or it
// observes cancellation mid-download. This fails the whole task, draining
// the other workers.
type ErrSegmentExhausted struct {
	Index int
	Err   error
}

func (e *ErrSegmentExhausted) Error() string {
	return fmt.Sprintf("segment %d exhausted retries: %v", e.Index, e.Err)
}
func (e *ErrSegmentExhausted) Unwrap() error { return e.Err }

// Run fetches every segment in segs not already present in done. Indices
// are pulled in ascending order (stable FIFO, §4.5 step 1). Run blocks
// until every segment succeeds, one fails permanently, or ctx is canceled.
func (p *Pool) Run(ctx context.Context, segs []*manifest.Segment, done map[int]bool) error {
	threads := p.Threads
	if threads < 1 {
		threads = 1
	}

	pending := make([]*manifest.Segment, 0, len(segs))
	for _, s := range segs {
		if !done[s.Index] {
			pending = append(pending, s)
		}
	}
	if len(pending) == 0 {
		return nil
	}
	if threads > len(pending) {
		threads = len(pending)
	}

	jobs := make(chan *manifest.Segment)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	var firstErr error
	var errOnce sync.Once

	for w := 0; w < threads; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for seg := range jobs {
				n, err := p.downloadOne(runCtx, seg)
				if p.OnSegment != nil {
					p.OnSegment(Result{Segment: seg, Bytes: n, Err: err})
				}
				if err != nil {
					errOnce.Do(func() {
						firstErr = &ErrSegmentExhausted{Index: seg.Index, Err: err}
						cancel()
					})
				}
			}
		}()
	}

feed:
	for _, seg := range pending {
		select {
		case jobs <- seg:
		case <-runCtx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}

// downloadOne runs the per-segment pipeline in §4.5 steps 2-6, retrying per
// the policy in §4.5. It returns the number of plaintext bytes persisted.
func (p *Pool) downloadOne(ctx context.Context, seg *manifest.Segment) (int64, error) {
	maxRetries := p.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 6
	}
	baseBackoff := p.BaseBackoff
	if baseBackoff <= 0 {
		baseBackoff = 500 * time.Millisecond
	}
	maxBackoff := p.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Second
	}

	var lastErr error
	paddingRetried := false
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			d := backoffDelay(baseBackoff, maxBackoff, attempt, p.jitter)
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		}

		if ctx.Err() != nil {
			return 0, ctx.Err()
		}

		data, err := p.Client.GetBytes(ctx, seg.URL, p.Headers)
		if err != nil {
			lastErr = err
			if retryable(err) {
				continue
			}
			return 0, err
		}

		if seg.Key != nil {
			key, kerr := p.Keys.Fetch(ctx, seg.Key.URI, p.Headers)
			if kerr != nil {
				lastErr = kerr
				if retryable(kerr) {
					continue
				}
				return 0, kerr
			}
			plain, derr := crypto.Decrypt(data, key, seg.Key.IV)
			if derr != nil {
				lastErr = derr
				// DecryptError(BadPadding) is retried once, as a likely
				// truncated body; any other decrypt error is fatal.
				if _, ok := derr.(*crypto.BadPaddingError); ok && !paddingRetried {
					paddingRetried = true
					continue
				}
				return 0, derr
			}
			data = plain
		}

		if ctx.Err() != nil {
			return 0, ctx.Err()
		}

		if !store.ValidateBytes(data) {
			lastErr = &ValidationError{Index: seg.Index}
			continue
		}

		if err := p.Store.WriteSegment(seg.Index, data); err != nil {
			lastErr = err
			continue
		}

		return int64(len(data)), nil
	}

	return 0, lastErr
}

// ValidationError mirrors store.Validate's verdict for in-memory bytes
// before they are written to disk; it is treated as a network-like
// transient failure per §7.
type ValidationError struct{ Index int }

func (e *ValidationError) Error() string {
	return fmt.Sprintf("segment %d failed validation", e.Index)
}

func retryable(err error) bool {
	return httpclient.IsRetryable(err)
}

// backoffDelay implements §4.5: min(30s, 500ms * 2^(attempt-1)) * (1 + U[-0.2, 0.2]),
// where attempt counts from 1 for the first retry (so the first retry waits 500ms).
func backoffDelay(base, max time.Duration, attempt int, jitter func() float64) time.Duration {
	d := base
	for i := 0; i < attempt-1 && d < max; i++ {
		d *= 2
		if d <= 0 { // overflow
			d = max
			break
		}
	}
	if d > max {
		d = max
	}

	j := defaultJitter()
	if jitter != nil {
		j = jitter()
	}
	return time.Duration(float64(d) * (1.0 + j))
}
