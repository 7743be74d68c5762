// Package m3u8dl is the public API for the HLS download engine: a
// multi-task registry fronted by the functional-options constructor style
// this project's teacher used for its single-download Downloader.
package m3u8dl

import (
	"context"
	"fmt"

	"github.com/haldenfox/m3u8dl/internal/command"
	"github.com/haldenfox/m3u8dl/internal/config"
	"github.com/haldenfox/m3u8dl/internal/httpclient"
	"github.com/haldenfox/m3u8dl/internal/registry"
	"github.com/haldenfox/m3u8dl/internal/sysinfo"
	"github.com/haldenfox/m3u8dl/internal/task"
)

// Option configures the Engine's process-wide defaults.
type Option func(*config.Config)

// WithThreads sets the default per-task thread count.
func WithThreads(n int) Option {
	return func(c *config.Config) { c.Threads = n }
}

// WithRetries sets the per-segment retry budget.
func WithRetries(n int) Option {
	return func(c *config.Config) { c.Retries = n }
}

// WithBandwidthLimit caps aggregate download throughput in bytes/sec; 0
// (the default) is unlimited.
func WithBandwidthLimit(bytesPerSec int64) Option {
	return func(c *config.Config) { c.MaxBandwidth = bytesPerSec }
}

// WithVerbose sets Config.Verbose. The engine itself does not read it and
// logs nothing either way; verbose output is left to the host program.
func WithVerbose(v bool) Option {
	return func(c *config.Config) { c.Verbose = v }
}

// Engine is a running instance of the download engine: one registry, one
// shared HTTP client, and the command surface (§6) built on top of them.
type Engine struct {
	cfg *config.Config
	reg *registry.Registry
	cmd *command.Surface
}

// New opens (or creates) the registry database at dbPath and returns a
// ready Engine. defaultHeaders are sent on every request unless a task
// overrides them per-call.
func New(dbPath string, defaultHeaders map[string]string, opts ...Option) (*Engine, error) {
	cfg := config.New()
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("m3u8dl: %w", err)
	}

	client := httpclient.FromConfig(cfg, defaultHeaders)
	reg, err := registry.New(dbPath, cfg, client)
	if err != nil {
		return nil, fmt.Errorf("m3u8dl: %w", err)
	}

	return &Engine{cfg: cfg, reg: reg, cmd: command.New(reg)}, nil
}

// Close releases the registry's database handle. In-flight tasks are not
// waited on; call CancelDownload on each first if a clean shutdown matters.
func (e *Engine) Close() error {
	return e.reg.Close()
}

// DownloadRequest is the payload for StartDownload, mirroring
// start_download's input fields (§6).
type DownloadRequest struct {
	ID          string
	URL         string
	Name        string
	OutputDir   string
	ThreadCount int
	Headers     map[string]string
}

// StartDownload begins one task and returns its live handle immediately;
// the download continues on its own goroutine. Use the returned Task's
// Events() or Snapshot() to observe progress, or Wait below to block.
func (e *Engine) StartDownload(ctx context.Context, req DownloadRequest) (*task.Task, error) {
	return e.cmd.StartDownload(ctx, command.StartDownloadInput{
		ID:          req.ID,
		URL:         req.URL,
		Name:        req.Name,
		OutputDir:   req.OutputDir,
		ThreadCount: req.ThreadCount,
		Headers:     req.Headers,
	})
}

// CancelDownload implements cancel_download (§6).
func (e *Engine) CancelDownload(id string) error {
	return e.cmd.CancelDownload(id)
}

// DeleteDownload implements delete_download (§6).
func (e *Engine) DeleteDownload(id, outputDir string) error {
	return e.cmd.DeleteDownload(id, outputDir)
}

// DeleteFile implements delete_file (§6).
func (e *Engine) DeleteFile(filePath string) error {
	return e.cmd.DeleteFile(filePath)
}

// CPUInfo implements get_cpu_info (§6).
func (e *Engine) CPUInfo() sysinfo.CPUInfo {
	return e.cmd.CPUInfo()
}

// GetTask implements get_task `[EXPANSION]`.
func (e *Engine) GetTask(id string) (command.TaskView, bool) {
	return e.cmd.GetTask(id)
}

// ListTasks implements list_tasks `[EXPANSION]`.
func (e *Engine) ListTasks() ([]command.TaskView, error) {
	return e.cmd.ListTasks()
}

// Wait blocks until the task's driver goroutine returns, draining its
// event channel concurrently so the driver never stalls on a full buffer.
// It returns the task's last error, if any.
func Wait(t *task.Task) error {
	done := t.Done()
	events := t.Events()
	for {
		select {
		case <-events:
		case <-done:
			return t.LastError()
		}
	}
}
