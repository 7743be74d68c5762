package worker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/haldenfox/m3u8dl/internal/crypto"
	"github.com/haldenfox/m3u8dl/internal/httpclient"
	"github.com/haldenfox/m3u8dl/internal/manifest"
	"github.com/haldenfox/m3u8dl/internal/store"
)

func TestBackoffDelayBounds(t *testing.T) {
	zeroJitter := func() float64 { return 0 }

	tests := []struct {
		name    string
		attempt int
		want    time.Duration
	}{
		{"attempt1", 1, 500 * time.Millisecond},
		{"attempt2", 2, time.Second},
		{"attempt6", 6, 16 * time.Second},
		{"attempt10_capped_at_max", 10, 30 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := backoffDelay(500*time.Millisecond, 30*time.Second, tt.attempt, zeroJitter)
			if got != tt.want {
				t.Errorf("backoffDelay(attempt=%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestBackoffDelayJitterWithinRange(t *testing.T) {
	for _, j := range []float64{-0.2, 0, 0.2} {
		jitter := func() float64 { return j }
		got := backoffDelay(500*time.Millisecond, 30*time.Second, 2, jitter)
		want := time.Duration(float64(time.Second) * (1 + j))
		if got != want {
			t.Errorf("backoffDelay jitter=%v = %v, want %v", j, got, want)
		}
	}
}

// TestRunRetriesTransientFailure exercises S4: segment 2 fails twice with
// 503 then succeeds; exactly 3 GETs occur and the segment is persisted.
func TestRunRetriesTransientFailure(t *testing.T) {
	var mu sync.Mutex
	attempts := 0

	segBytes := tsSegment(376)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write(segBytes)
	}))
	defer srv.Close()

	dir := t.TempDir()
	st := store.New(dir, "task1")
	if _, err := st.EnsureDir(); err != nil {
		t.Fatalf("EnsureDir: %v", err)
	}

	client := httpclient.New(httpclient.DefaultConfig(), nil, 0)
	pool := &Pool{
		Threads:     1,
		Client:      client,
		Store:       st,
		Keys:        crypto.NewKeyCache(client),
		MaxRetries:  6,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
		jitter:      func() float64 { return 0 },
	}

	segs := []*manifest.Segment{{Index: 2, URL: srv.URL, Duration: 2}}
	if err := pool.Run(context.Background(), segs, map[int]bool{}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	mu.Lock()
	got := attempts
	mu.Unlock()
	if got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
	if !store.Validate(st.SegmentPath(2)) {
		t.Errorf("segment 2 was not persisted validly")
	}
}

func tsSegment(n int) []byte {
	buf := make([]byte, n)
	for _, off := range []int{0, 188, 376} {
		if off < len(buf) {
			buf[off] = 0x47
		}
	}
	return buf
}
