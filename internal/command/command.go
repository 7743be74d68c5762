// Package command implements the engine's command surface (§6): the
// fixed set of operations a UI collaborator drives the registry with.
// Each function here is a thin, synchronous wrapper — the real work
// (segment download, mux, status tracking) lives in internal/task and
// internal/registry; this package only validates inputs and translates
// registry/task state into the shapes §6 promises callers.
package command

import (
	"context"
	"fmt"
	"os"

	"github.com/haldenfox/m3u8dl/internal/registry"
	"github.com/haldenfox/m3u8dl/internal/sysinfo"
	"github.com/haldenfox/m3u8dl/internal/task"
)

// Surface binds the command set to one registry instance.
type Surface struct {
	reg *registry.Registry
}

// New returns a command surface backed by reg.
func New(reg *registry.Registry) *Surface {
	return &Surface{reg: reg}
}

// StartDownloadInput is the payload for start_download (§6).
type StartDownloadInput struct {
	ID          string
	URL         string
	Name        string
	OutputDir   string
	ThreadCount int
	Headers     map[string]string
}

// StartDownload implements start_download: validates inputs, creates the
// task, and starts its driver goroutine. The returned Task can be used to
// read Events()/Snapshot() immediately; StartDownload itself does not wait
// for completion.
func (s *Surface) StartDownload(ctx context.Context, in StartDownloadInput) (*task.Task, error) {
	if in.ID == "" {
		return nil, fmt.Errorf("start_download: id is required")
	}
	if in.URL == "" {
		return nil, fmt.Errorf("start_download: url is required")
	}
	if in.OutputDir == "" {
		return nil, fmt.Errorf("start_download: output_dir is required")
	}
	t, err := s.reg.Start(ctx, task.StartInput{
		ID:          in.ID,
		URL:         in.URL,
		Name:        in.Name,
		OutputDir:   in.OutputDir,
		ThreadCount: in.ThreadCount,
		Headers:     in.Headers,
	})
	if err != nil {
		return nil, fmt.Errorf("start_download: %w", err)
	}
	return t, nil
}

// CancelDownload implements cancel_download: idempotent, no-op on unknown
// or terminal tasks (§5).
func (s *Surface) CancelDownload(id string) error {
	return s.reg.Cancel(id)
}

// DeleteDownload implements delete_download: cancels if active, then
// removes the task's temp directory and metadata row.
func (s *Surface) DeleteDownload(id, outputDir string) error {
	return s.reg.Delete(id, outputDir)
}

// DeleteFile implements delete_file (§6): an unconditional, synchronous
// removal of a finalized output file. This is a policy-free primitive —
// any "also delete original" toggle belongs to the UI collaborator, not
// this engine.
func (s *Surface) DeleteFile(filePath string) error {
	if filePath == "" {
		return fmt.Errorf("delete_file: file_path is required")
	}
	if err := os.Remove(filePath); err != nil {
		return fmt.Errorf("delete_file: %w", err)
	}
	return nil
}

// CPUInfo implements get_cpu_info (§6).
func (s *Surface) CPUInfo() sysinfo.CPUInfo {
	return sysinfo.GetCPUInfo()
}

// TaskView is the result shape for get_task/list_tasks: a snapshot of a
// task's progress plus its identity, whether or not the process holds a
// live handle for it.
type TaskView struct {
	ID         string
	Status     task.Status
	DoneCount  int
	TotalCount int
	BytesTotal int64
	SpeedBps   float64
	LastError  error
}

// GetTask implements get_task `[EXPANSION]`: the current progress
// snapshot and status for id, or ok=false if this process holds no live
// handle for it. Rows persisted by a prior process are not consulted.
func (s *Surface) GetTask(id string) (TaskView, bool) {
	t, ok := s.reg.Get(id)
	if !ok {
		return TaskView{}, false
	}
	snap := t.Snapshot()
	return TaskView{
		ID:         id,
		Status:     snap.Status,
		DoneCount:  snap.DoneCount,
		TotalCount: snap.TotalCount,
		BytesTotal: snap.BytesTotal,
		SpeedBps:   snap.SpeedBps,
		LastError:  t.LastError(),
	}, true
}

// ListTasks implements list_tasks `[EXPANSION]`: every task this process
// holds a live handle for, plus any registry rows from a prior process
// that haven't been restarted yet, so the result survives a restart.
func (s *Surface) ListTasks() ([]TaskView, error) {
	live := s.reg.List()
	seen := make(map[string]struct{}, len(live))
	views := make([]TaskView, 0, len(live))
	for _, t := range live {
		snap := t.Snapshot()
		views = append(views, TaskView{
			ID:         t.ID,
			Status:     snap.Status,
			DoneCount:  snap.DoneCount,
			TotalCount: snap.TotalCount,
			BytesTotal: snap.BytesTotal,
			SpeedBps:   snap.SpeedBps,
			LastError:  t.LastError(),
		})
		seen[t.ID] = struct{}{}
	}

	persisted, err := s.reg.ListPersisted()
	if err != nil {
		return nil, fmt.Errorf("list_tasks: %w", err)
	}
	for _, p := range persisted {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		views = append(views, TaskView{ID: p.ID, Status: p.Status})
	}
	return views, nil
}
