// Package store implements the per-task segment directory, its resume
// journal, and the validator that proves a segment file durable (§4.4).
package store

import (
	"bufio"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const journalName = "journal.log"

// Store owns one task's temp directory: <out>/.m3u8dl-<taskId>/
type Store struct {
	dir string
	mu  sync.Mutex // serializes journal writes; one writer per task (§5)
}

// New returns a Store rooted at <outputDir>/.m3u8dl-<taskID>. The directory
// is not created until EnsureDir is called.
func New(outputDir, taskID string) *Store {
	return &Store{dir: filepath.Join(outputDir, ".m3u8dl-"+taskID)}
}

// Dir returns the task's temp directory path.
func (s *Store) Dir() string { return s.dir }

// EnsureDir creates the temp directory if it does not already exist.
// Returns whether the directory was newly created, for the
// create_temp_directory event.
func (s *Store) EnsureDir() (created bool, err error) {
	if _, err := os.Stat(s.dir); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return false, fmt.Errorf("create temp dir: %w", err)
	}
	return true, nil
}

// SegmentPath returns the finalized path for segment index i.
func (s *Store) SegmentPath(i int) string {
	return filepath.Join(s.dir, fmt.Sprintf("seg-%06d.ts", i))
}

func (s *Store) partPath(i int) string {
	return s.SegmentPath(i) + ".part"
}

// JournalPath returns the journal file path.
func (s *Store) JournalPath() string { return filepath.Join(s.dir, journalName) }

// ConcatListPath returns the ffmpeg concat list path.
func (s *Store) ConcatListPath() string { return filepath.Join(s.dir, "concat.txt") }

// WriteSegment persists data as segment index i per the write protocol in
// §4.4: write to a .part file, fsync, rename, append a journal line, fsync
// the journal. Cancellation is checked by the caller before this call, not
// inside it, so a completed call always leaves the journal and
// file consistent together (§3 invariant on cancellation).
func (s *Store) WriteSegment(i int, data []byte) error {
	part := s.partPath(i)
	f, err := os.OpenFile(part, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open part file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(part)
		return fmt.Errorf("write part file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(part)
		return fmt.Errorf("fsync part file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(part)
		return fmt.Errorf("close part file: %w", err)
	}

	final := s.SegmentPath(i)
	if err := os.Rename(part, final); err != nil {
		os.Remove(part)
		return fmt.Errorf("rename segment: %w", err)
	}

	if err := s.appendJournal(i, int64(len(data)), shaPrefix(data)); err != nil {
		return err
	}
	return nil
}

func (s *Store) appendJournal(index int, size int64, shaPrefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.JournalPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("%d %d %s\n", index, size, shaPrefix)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("append journal: %w", err)
	}
	return f.Sync()
}

// journalEntry is one line of journal.log.
type journalEntry struct {
	index     int
	size      int64
	shaPrefix string
}

func readJournal(path string) ([]journalEntry, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	var entries []journalEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e journalEntry
		if _, err := fmt.Sscanf(sc.Text(), "%d %d %s", &e.index, &e.size, &e.shaPrefix); err != nil {
			// JournalCorruption (§7): this line is discarded, not fatal.
			continue
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return entries, fmt.Errorf("scan journal: %w", err)
	}
	return entries, nil
}

// Resume re-validates every journal-referenced segment file per §4.4's
// resume rule and returns the set of indices that are durably Done.
// Entries that fail validation have their file removed and are reported
// as not-done, so the caller re-downloads them.
func (s *Store) Resume() (done map[int]bool, err error) {
	entries, err := readJournal(s.JournalPath())
	if err != nil {
		return nil, err
	}
	done = make(map[int]bool, len(entries))
	for _, e := range entries {
		path := s.SegmentPath(e.index)
		info, statErr := os.Stat(path)
		if statErr != nil || info.Size() != e.size {
			os.Remove(path)
			continue
		}
		if !Validate(path) {
			os.Remove(path)
			continue
		}
		done[e.index] = true
	}
	return done, nil
}

// Remove deletes the entire temp directory, including journal and concat
// list (§4.7 step 4).
func (s *Store) Remove() error {
	return os.RemoveAll(s.dir)
}

func shaPrefix(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])[:12]
}
