package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/haldenfox/m3u8dl/internal/config"
	"github.com/haldenfox/m3u8dl/internal/httpclient"
	"github.com/haldenfox/m3u8dl/internal/store"
	"github.com/haldenfox/m3u8dl/internal/task"
)

// ErrTaskExists is returned by Start when id already has an active handle.
// The store is exclusive per task; concurrent access to the same id is
// undefined behavior the registry must prevent (§5).
var ErrTaskExists = fmt.Errorf("task already active")

// ErrTaskNotFound is returned by operations on an unknown id.
var ErrTaskNotFound = fmt.Errorf("task not found")

// Registry is the single process-wide task_id -> TaskHandle map (§4.8).
// Operations are serialized by mu; hot paths (segment work, progress
// emission) live entirely inside *task.Task and never touch this lock.
type Registry struct {
	cfg    *config.Config
	client *httpclient.Client

	mu    sync.Mutex
	tasks map[string]*task.Task

	db *sql.DB
}

// New opens the registry's metadata database at dbPath (create if absent)
// and returns an empty in-memory registry. Prior tasks are not
// resurrected as running handles on restart; ListPersisted surfaces their
// last known status for the UI collaborator.
func New(dbPath string, cfg *config.Config, client *httpclient.Client) (*Registry, error) {
	db, err := openDB(dbPath)
	if err != nil {
		return nil, err
	}
	return &Registry{
		cfg:    cfg,
		client: client,
		tasks:  make(map[string]*task.Task),
		db:     db,
	}, nil
}

// Close releases the metadata database handle.
func (r *Registry) Close() error {
	return r.db.Close()
}

// Start implements start_download (§6): creates or locates the task,
// persists its metadata row, and spawns its driver goroutine.
func (r *Registry) Start(ctx context.Context, in task.StartInput) (*task.Task, error) {
	r.mu.Lock()
	if existing, ok := r.tasks[in.ID]; ok && !existing.Status().Terminal() {
		r.mu.Unlock()
		return nil, ErrTaskExists
	}

	if in.ThreadCount <= 0 {
		in.ThreadCount = r.cfg.Threads
	}
	t := task.New(in)
	t.MarkQueued()
	r.tasks[in.ID] = t
	r.mu.Unlock()

	if err := r.persist(t, task.StatusQueued); err != nil {
		return nil, err
	}

	go func() {
		err := task.Run(ctx, t, r.cfg, r.client)
		status := t.Status()
		if perr := r.persist(t, status); perr != nil {
			_ = err // driver error already surfaced via Task.LastError
		}
	}()

	return t, nil
}

// Cancel implements cancel_download (§6). Idempotent; a no-op on unknown
// or terminal tasks.
func (r *Registry) Cancel(id string) error {
	r.mu.Lock()
	t, ok := r.tasks[id]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	t.Cancel()
	return nil
}

// Delete implements delete_download (§6): cancels if active, waits for the
// driver to exit, then removes the temp directory and forgets the task.
func (r *Registry) Delete(id, outputDir string) error {
	r.mu.Lock()
	t, ok := r.tasks[id]
	r.mu.Unlock()

	if ok {
		t.Cancel()
		<-t.Done()
		r.mu.Lock()
		delete(r.tasks, id)
		r.mu.Unlock()
	}

	if err := store.New(outputDir, id).Remove(); err != nil {
		return fmt.Errorf("remove temp dir: %w", err)
	}
	if _, err := r.db.Exec(`DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete task row: %w", err)
	}
	return nil
}

// Get returns the in-memory handle for id, if the process has one.
func (r *Registry) Get(id string) (*task.Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	return t, ok
}

// List returns every task handle currently known to this process.
func (r *Registry) List() []*task.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*task.Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t)
	}
	return out
}

// PersistedTask is a metadata row read back from the registry database,
// used for tasks the current process hasn't (re)started as a live handle.
type PersistedTask struct {
	ID          string
	URL         string
	Name        string
	OutputDir   string
	ThreadCount int
	Status      task.Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ListPersisted returns every task row, including ones from a prior
// process, so list_tasks survives a restart even before anything is
// resumed.
func (r *Registry) ListPersisted() ([]PersistedTask, error) {
	rows, err := r.db.Query(`SELECT id, url, name, output_dir, thread_count, status, created_at, updated_at FROM tasks ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []PersistedTask
	for rows.Next() {
		var p PersistedTask
		var status int
		var created, updated int64
		if err := rows.Scan(&p.ID, &p.URL, &p.Name, &p.OutputDir, &p.ThreadCount, &status, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan task row: %w", err)
		}
		p.Status = task.Status(status)
		p.CreatedAt = time.Unix(created, 0)
		p.UpdatedAt = time.Unix(updated, 0)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Registry) persist(t *task.Task, status task.Status) error {
	headers, err := json.Marshal(t.Headers)
	if err != nil {
		headers = []byte("{}")
	}
	now := time.Now().Unix()
	_, err = r.db.Exec(`
		INSERT INTO tasks (id, url, name, output_dir, thread_count, headers_json, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at
	`, t.ID, t.URL, t.Name, t.OutputDir, t.ThreadCount, string(headers), int(status), t.CreatedAt.Unix(), now)
	if err != nil {
		return fmt.Errorf("persist task: %w", err)
	}
	return nil
}
