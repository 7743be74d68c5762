package store

import (
	"os"
	"path/filepath"
	"testing"
)

func tsSegment(n int) []byte {
	buf := make([]byte, n)
	for _, off := range []int{0, 188, 376} {
		if off < len(buf) {
			buf[off] = tsSyncByte
		}
	}
	return buf
}

func TestWriteSegmentThenResume(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, "task1")
	if _, err := s.EnsureDir(); err != nil {
		t.Fatalf("EnsureDir: %v", err)
	}

	data := tsSegment(564)
	if err := s.WriteSegment(0, data); err != nil {
		t.Fatalf("WriteSegment: %v", err)
	}
	if err := s.WriteSegment(1, data); err != nil {
		t.Fatalf("WriteSegment: %v", err)
	}

	if _, err := os.Stat(s.partPath(0)); !os.IsNotExist(err) {
		t.Errorf("part file should be renamed away, stat err = %v", err)
	}

	done, err := s.Resume()
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if !done[0] || !done[1] {
		t.Errorf("Resume() = %v, want both 0 and 1 done", done)
	}
}

func TestResumeDiscardsCorruptedSegment(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, "task1")
	if _, err := s.EnsureDir(); err != nil {
		t.Fatalf("EnsureDir: %v", err)
	}

	data := tsSegment(564)
	if err := s.WriteSegment(0, data); err != nil {
		t.Fatalf("WriteSegment: %v", err)
	}

	// Corrupt the finalized file without updating the journal.
	if err := os.WriteFile(s.SegmentPath(0), []byte("not a ts file"), 0o644); err != nil {
		t.Fatalf("corrupt file: %v", err)
	}

	done, err := s.Resume()
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if done[0] {
		t.Errorf("Resume() should not mark corrupted segment 0 as done")
	}
	if _, err := os.Stat(s.SegmentPath(0)); !os.IsNotExist(err) {
		t.Errorf("corrupted segment file should have been removed")
	}
}

func TestResumeWithoutJournalIsEmpty(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, "task1")
	done, err := s.Resume()
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if len(done) != 0 {
		t.Errorf("Resume() on fresh dir = %v, want empty", done)
	}
}

func TestEnsureDirReportsCreation(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, "task1")

	created, err := s.EnsureDir()
	if err != nil {
		t.Fatalf("EnsureDir: %v", err)
	}
	if !created {
		t.Errorf("first EnsureDir() created = false, want true")
	}

	created, err = s.EnsureDir()
	if err != nil {
		t.Fatalf("EnsureDir: %v", err)
	}
	if created {
		t.Errorf("second EnsureDir() created = true, want false")
	}

	if filepath.Base(s.Dir()) != ".m3u8dl-task1" {
		t.Errorf("Dir() = %s, want suffix .m3u8dl-task1", s.Dir())
	}
}
