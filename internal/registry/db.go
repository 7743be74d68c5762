// Package registry implements the process-wide task registry (§4.8):
// task id -> task handle, plus a durably persisted metadata row per task
// so identity and last-known status survive a process restart (§3, "Task
// identity ... stable across process restarts").
package registry

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// openDB opens (creating if needed) the sqlite database backing task
// metadata, in WAL mode with a busy timeout so the registry's coarse lock
// and sqlite's own locking don't deadlock under concurrent command calls.
func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open registry db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping registry db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create registry schema: %w", err)
	}
	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id           TEXT PRIMARY KEY,
	url          TEXT NOT NULL,
	name         TEXT NOT NULL,
	output_dir   TEXT NOT NULL,
	thread_count INTEGER NOT NULL,
	headers_json TEXT NOT NULL DEFAULT '{}',
	status       INTEGER NOT NULL,
	created_at   INTEGER NOT NULL,
	updated_at   INTEGER NOT NULL
);
`
