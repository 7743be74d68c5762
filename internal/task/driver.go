package task

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/haldenfox/m3u8dl/internal/config"
	"github.com/haldenfox/m3u8dl/internal/crypto"
	"github.com/haldenfox/m3u8dl/internal/httpclient"
	"github.com/haldenfox/m3u8dl/internal/manifest"
	"github.com/haldenfox/m3u8dl/internal/muxer"
	"github.com/haldenfox/m3u8dl/internal/store"
	"github.com/haldenfox/m3u8dl/internal/worker"
)

// MuxFunc drives the final concat + ffmpeg invocation. It is a package
// variable, in the teacher's own pluggable-Muxer style, so tests can
// substitute a fake muxer without spawning a real ffmpeg process.
var MuxFunc = muxer.Mux

// Run drives a task end-to-end (§4.6 data flow): temp dir, manifest fetch,
// resume, concurrent segment fetch, mux, cleanup. It is the sole owner of
// t's status transitions and runs on one goroutine per task.
func Run(parentCtx context.Context, t *Task, cfg *config.Config, client *httpclient.Client) error {
	ctx, cancel := context.WithCancel(parentCtx)
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()
	defer close(t.done)
	defer cancel()

	t.setStatus(StatusDownloading)

	st := store.New(t.OutputDir, t.ID)
	created, err := st.EnsureDir()
	if err != nil {
		return t.fail(err)
	}
	t.emit(Event{Kind: EventCreateTempDirectory, ID: t.ID, IsCreatedTempDir: created})

	mf, err := manifest.Fetch(ctx, client, t.URL, t.Headers)
	if err != nil {
		return t.fail(err)
	}
	if len(mf.Segments) == 0 {
		return t.fail(&manifest.MalformedPlaylistError{Reason: "playlist has no segments"})
	}
	t.totalCount.Store(int64(len(mf.Segments)))

	resumed, err := st.Resume()
	if err != nil {
		return t.fail(err)
	}
	for i := range resumed {
		if info, statErr := os.Stat(st.SegmentPath(i)); statErr == nil {
			t.bytesTotal.Add(info.Size())
		}
	}
	t.doneCount.Store(int64(len(resumed)))
	t.emitProgress(-1)

	stopSampler := t.startSpeedSampler(ctx)
	defer stopSampler()

	keys := crypto.NewKeyCache(client)
	lastPercent := percent(int(t.doneCount.Load()), int(t.totalCount.Load()))
	pool := &worker.Pool{
		Threads:     t.ThreadCount,
		Client:      client,
		Store:       st,
		Keys:        keys,
		Headers:     t.Headers,
		MaxRetries:  cfg.Retries,
		BaseBackoff: cfg.BaseBackoff,
		MaxBackoff:  cfg.MaxBackoff,
		OnSegment: func(r worker.Result) {
			if r.Err != nil {
				return
			}
			t.doneCount.Add(1)
			t.bytesTotal.Add(r.Bytes)
			p := percent(int(t.doneCount.Load()), int(t.totalCount.Load()))
			if p != lastPercent {
				lastPercent = p
				t.emitProgress(p)
			}
		},
	}
	defer keys.Zeroize()

	if err := pool.Run(ctx, mf.Segments, resumed); err != nil {
		return t.cancelWithError(err)
	}

	t.setStatus(StatusDownloadComplete)
	t.emitProgress(100)

	t.setStatus(StatusMuxing)
	t.emit(Event{Kind: EventStartMergeVideo, ID: t.ID})

	outputPath := outputFilePath(t.OutputDir, t.Name)
	if err := MuxFunc(ctx, st, int(t.totalCount.Load()), outputPath); err != nil {
		t.setStatus(StatusMuxFailed)
		t.setLastError(err)
		t.emitProgress(-1)
		return err
	}

	if err := st.Remove(); err != nil {
		// Non-fatal: the mux already succeeded; leftover temp files are a
		// cleanup nuisance, not a correctness problem.
	}

	t.setStatus(StatusMuxed)
	t.emit(Event{Kind: EventMergeVideo, ID: t.ID, IsMerged: true, File: outputPath})
	return nil
}

func (t *Task) fail(err error) error {
	t.setStatus(StatusCancelled)
	t.setLastError(err)
	t.emitProgress(-1)
	return err
}

func (t *Task) cancelWithError(err error) error {
	t.setStatus(StatusCancelled)
	t.setLastError(err)
	t.emitProgress(-1)
	return err
}

// emitProgress sends a download_progress event. percent < 0 means "use the
// current computed percent" (used for non-percent-triggered emissions like
// startup and failure).
func (t *Task) emitProgress(percentOverride int) {
	done := int(t.doneCount.Load())
	total := int(t.totalCount.Load())
	p := percentOverride
	if p < 0 {
		p = percent(done, total)
	}
	t.emit(Event{
		Kind:       EventDownloadProgress,
		ID:         t.ID,
		Progress:   p,
		Speed:      t.currentSpeedLabel(),
		DoneCount:  done,
		TotalCount: total,
		Status:     t.Status(),
	})
}

func (t *Task) emit(e Event) {
	select {
	case t.events <- e:
	default:
		// Event channel is sized generously (4096 events); when it is full
		// the event is dropped rather than blocking the sender.
	}
}

// startSpeedSampler runs the 1 Hz sampler (§4.6) and returns a stop func.
func (t *Task) startSpeedSampler(ctx context.Context) (stop func()) {
	stopCh := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		var last int64
		for {
			select {
			case <-ticker.C:
				cur := t.bytesTotal.Load()
				t.storeSpeedBps(float64(cur - last))
				last = cur
				if t.Status() == StatusDownloading {
					t.emitProgress(-1)
				}
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			}
		}
	}()
	return func() { close(stopCh) }
}

func (t *Task) currentSpeedLabel() string {
	return speedLabel(t.loadSpeedBps())
}

func outputFilePath(outputDir, name string) string {
	if name == "" {
		name = "output"
	}
	if !strings.HasSuffix(strings.ToLower(name), ".mp4") {
		name += ".mp4"
	}
	return filepath.Join(outputDir, name)
}
