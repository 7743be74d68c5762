package muxer

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/haldenfox/m3u8dl/internal/store"
)

func TestWriteConcatListOrdersByIndex(t *testing.T) {
	dir := t.TempDir()
	s := store.New(dir, "task1")
	if _, err := s.EnsureDir(); err != nil {
		t.Fatalf("EnsureDir: %v", err)
	}

	if err := writeConcatList(s.ConcatListPath(), s, 3); err != nil {
		t.Fatalf("writeConcatList: %v", err)
	}

	want := "file 'seg-000000.ts'\nfile 'seg-000001.ts'\nfile 'seg-000002.ts'\n"
	got := readFile(t, s.ConcatListPath())
	if got != want {
		t.Errorf("concat list = %q, want %q", got, want)
	}
}

func TestMuxRequiresFFmpegOnPath(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err == nil {
		t.Skip("ffmpeg present on PATH; this test needs it absent")
	}

	dir := t.TempDir()
	s := store.New(dir, "task1")
	if _, err := s.EnsureDir(); err != nil {
		t.Fatalf("EnsureDir: %v", err)
	}

	err := Mux(context.Background(), s, 1, filepath.Join(dir, "out.mp4"))
	if err == nil {
		t.Fatalf("Mux() error = nil, want ffmpeg-not-found error")
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(b)
}
