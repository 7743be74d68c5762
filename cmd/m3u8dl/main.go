// Command m3u8dl is a single-download CLI host over the engine's command
// surface (§6). It is not a UI: no interactive picker, no progress TUI —
// those are the out-of-scope UI collaborator's job. It exists so the
// engine has a runnable entry point that exercises start_download,
// cancel (on SIGINT/SIGTERM), and get_cpu_info end to end.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"

	"github.com/haldenfox/m3u8dl/internal/task"
	"github.com/haldenfox/m3u8dl/pkg/m3u8dl"
)

var (
	version = "1.0.0"
	commit  = "dev"
)

func main() {
	opts := parseFlags()

	if opts.showVersion {
		fmt.Printf("m3u8dl %s (%s)\n", version, commit)
		return
	}
	if opts.url == "" {
		fmt.Fprintln(os.Stderr, "Error: --url is required")
		flag.Usage()
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type cliOptions struct {
	url         string
	output      string
	threads     int
	retries     int
	bandwidth   int64
	headers     map[string]string
	dbPath      string
	verbose     bool
	showVersion bool
}

func parseFlags() cliOptions {
	var opts cliOptions
	opts.headers = make(map[string]string)
	var headers headerFlags

	flag.StringVar(&opts.url, "url", "", "")
	flag.StringVar(&opts.url, "u", "", "")
	flag.StringVar(&opts.output, "output", "output.mp4", "")
	flag.StringVar(&opts.output, "o", "output.mp4", "")
	flag.IntVar(&opts.threads, "threads", 16, "")
	flag.IntVar(&opts.threads, "n", 16, "")
	flag.IntVar(&opts.retries, "retries", 6, "")
	flag.Int64Var(&opts.bandwidth, "bandwidth", 0, "")
	flag.Var(&headers, "header", "")
	flag.Var(&headers, "H", "")
	flag.StringVar(&opts.dbPath, "db", "m3u8dl.db", "")
	flag.BoolVar(&opts.verbose, "verbose", false, "")
	flag.BoolVar(&opts.verbose, "v", false, "")
	flag.BoolVar(&opts.showVersion, "version", false, "")

	flag.Usage = printUsage
	flag.Parse()

	for _, h := range headers {
		parts := strings.SplitN(h, ":", 2)
		if len(parts) == 2 {
			opts.headers[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	return opts
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `m3u8dl - HLS segment downloader and muxer

Usage: m3u8dl [options] -u <URL>

Options:
  -u, --url <URL>         Media playlist URL [required]
  -o, --output <path>     Output MP4 path (default: output.mp4)
  -n, --threads <num>     Concurrent segment downloads (default: 16)
      --retries <num>     Per-segment retry budget (default: 6)
      --bandwidth <Bps>   Aggregate bandwidth cap in bytes/sec (default: unlimited)
  -H, --header <header>   Custom request header (repeatable)
      --db <path>         Task registry database path (default: m3u8dl.db)
  -v, --verbose           Verbose output
      --version           Show version
`)
}

func run(ctx context.Context, opts cliOptions) error {
	eng, err := m3u8dl.New(opts.dbPath, opts.headers,
		m3u8dl.WithThreads(opts.threads),
		m3u8dl.WithRetries(opts.retries),
		m3u8dl.WithBandwidthLimit(opts.bandwidth),
		m3u8dl.WithVerbose(opts.verbose),
	)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}
	defer eng.Close()

	if opts.verbose {
		info := eng.CPUInfo()
		fmt.Printf("host: %d physical / %d logical cores\n", info.PhysicalCores, info.LogicalCores)
	}

	outputDir := filepath.Dir(opts.output)
	name := filepath.Base(opts.output)
	id := name

	t, err := eng.StartDownload(ctx, m3u8dl.DownloadRequest{
		ID:        id,
		URL:       opts.url,
		Name:      name,
		OutputDir: outputDir,
		Headers:   opts.headers,
	})
	if err != nil {
		return fmt.Errorf("start download: %w", err)
	}

	if opts.verbose {
		go logEvents(t)
	}

	if err := m3u8dl.Wait(t); err != nil {
		return err
	}

	if opts.verbose {
		snap := t.Snapshot()
		fmt.Printf("downloaded %s across %d segments\n", humanize.Bytes(uint64(snap.BytesTotal)), snap.TotalCount)
	}
	saved := opts.output
	if !strings.HasSuffix(strings.ToLower(saved), ".mp4") {
		saved += ".mp4"
	}
	fmt.Printf("Saved to: %s\n", saved)
	return nil
}

func logEvents(t *task.Task) {
	for e := range t.Events() {
		switch e.Kind {
		case task.EventCreateTempDirectory:
			fmt.Printf("temp dir ready (created=%v)\n", e.IsCreatedTempDir)
		case task.EventDownloadProgress:
			fmt.Printf("progress: %d%% (%d/%d) %s\n", e.Progress, e.DoneCount, e.TotalCount, e.Speed)
		case task.EventStartMergeVideo:
			fmt.Println("muxing segments")
		case task.EventMergeVideo:
			fmt.Printf("merged: %s\n", e.File)
		}
	}
}

// headerFlags implements flag.Value for repeatable header flags.
type headerFlags []string

func (h *headerFlags) String() string { return strings.Join(*h, ", ") }

func (h *headerFlags) Set(value string) error {
	*h = append(*h, value)
	return nil
}
