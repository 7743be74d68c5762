// Package muxer drives the external ffmpeg process that concatenates
// finalized segment files into the output MP4 (§4.7).
package muxer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/haldenfox/m3u8dl/internal/store"
)

// MuxerError transitions the task to mux-failed(400) (§7). No retry: a
// non-zero ffmpeg exit is a deterministic failure.
type MuxerError struct {
	ExitCode  int
	StderrTail string
}

func (e *MuxerError) Error() string {
	return fmt.Sprintf("mux failed (exit %d): %s", e.ExitCode, e.StderrTail)
}

const stderrTailBytes = 4096

// FFmpegPath is resolved via exec.LookPath on every Mux call; overridable
// for tests.
var FFmpegPath = "ffmpeg"

// Mux implements §4.7's algorithm: write a concat list referencing
// segCount finalized files by index, spawn ffmpeg, and validate the
// output. Segment filenames are generated from indices, never from
// untrusted strings, so nothing but the fixed template ever reaches
// ffmpeg's argv or the concat list (§4.7 "Path safety").
func Mux(ctx context.Context, s *store.Store, segCount int, outputPath string) error {
	if _, err := exec.LookPath(FFmpegPath); err != nil {
		return fmt.Errorf("ffmpeg not found: %w", err)
	}

	concatPath := s.ConcatListPath()
	if err := writeConcatList(concatPath, s, segCount); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	args := []string{"-y", "-f", "concat", "-safe", "0", "-i", concatPath, "-c", "copy", outputPath}
	cmd := exec.CommandContext(ctx, FFmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		tail := tailBytes(stderr.Bytes(), stderrTailBytes)
		exitCode := -1
		if ee, ok := err.(*exec.ExitError); ok {
			exitCode = ee.ExitCode()
		}
		return &MuxerError{ExitCode: exitCode, StderrTail: tail}
	}

	info, err := os.Stat(outputPath)
	if err != nil || info.Size() == 0 {
		tail := tailBytes(stderr.Bytes(), stderrTailBytes)
		return &MuxerError{ExitCode: 0, StderrTail: tail}
	}

	return nil
}

func writeConcatList(path string, s *store.Store, segCount int) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	for i := 0; i < segCount; i++ {
		name := filepath.Base(s.SegmentPath(i))
		if _, err := fmt.Fprintf(f, "file '%s'\n", name); err != nil {
			return err
		}
	}
	return f.Sync()
}

func tailBytes(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[len(b)-n:])
}
