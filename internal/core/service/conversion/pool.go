// Package conversion implements the C6 conversion pool: a bounded-
// concurrency subprocess pool that converts a merged DOCX to PDF.
//
// Grounded directly on the teacher's typst_renderer.go (exec.CommandContext
// with a context-based wall-clock timeout, stdout/stderr buffers,
// BinPath/Timeout/MaxConcurrent options), generalized from a fixed Typst
// binary to a configurable headless converter invocation, and extended
// with golang.org/x/sync/semaphore for the bounded-concurrency gate and
// process-group SIGTERM-then-SIGKILL on timeout — neither of which the
// teacher's renderer needed, since Typst has no long-lived external
// process to reap.
package conversion

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/docgen/docgen-sub000/internal/core/errkind"
	"github.com/docgen/docgen-sub000/internal/core/port"
)

// killGrace is how long a timed-out process group is given to exit after
// SIGTERM before SIGKILL is sent.
const killGrace = 3 * time.Second

// Options configures the pool.
type Options struct {
	BinPath       string
	Workdir       string
	MaxConcurrent int
}

// Pool is the C6 conversion pool.
type Pool struct {
	opts Options
	sem  *semaphore.Weighted

	mu        sync.Mutex
	active    int64
	queued    int64
	completed int64
	failed    int64

	monotonic atomic.Int64
}

func New(opts Options) *Pool {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}
	return &Pool{
		opts: opts,
		sem:  semaphore.NewWeighted(int64(opts.MaxConcurrent)),
	}
}

// Convert converts docxBytes to PDF, honoring opts.TimeoutMs as a
// wall-clock deadline and ctx cancellation.
func (p *Pool) Convert(ctx context.Context, docxBytes []byte, opts port.ConversionOptions) ([]byte, error) {
	atomic.AddInt64(&p.queued, 1)
	if err := p.sem.Acquire(ctx, 1); err != nil {
		atomic.AddInt64(&p.queued, -1)
		return nil, errkind.Wrap(errkind.Internal, err, "acquire conversion slot canceled")
	}
	atomic.AddInt64(&p.queued, -1)
	atomic.AddInt64(&p.active, 1)
	defer func() {
		p.sem.Release(1)
		atomic.AddInt64(&p.active, -1)
	}()

	timeout := time.Duration(opts.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	convertCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	workdir := filepath.Join(p.opts.Workdir, fmt.Sprintf("%s-%d", opts.CorrelationID, p.monotonic.Add(1)))
	if err := os.MkdirAll(workdir, 0o755); err != nil {
		atomic.AddInt64(&p.failed, 1)
		return nil, errkind.Wrap(errkind.ConversionFailed, err, "create conversion workdir")
	}
	defer func() {
		if err := os.RemoveAll(workdir); err != nil {
			// a removal failure is logged at warn level; it never fails
			// the conversion per §4.6 step 7.
			slog.WarnContext(ctx, "conversion: workdir removal failed",
				slog.String("workdir", workdir), slog.String("error", err.Error()))
		}
	}()

	inputPath := filepath.Join(workdir, "input.docx")
	if err := os.WriteFile(inputPath, docxBytes, 0o644); err != nil {
		atomic.AddInt64(&p.failed, 1)
		return nil, errkind.Wrap(errkind.ConversionFailed, err, "write conversion input")
	}

	pdfBytes, err := p.run(convertCtx, workdir, inputPath)
	if err != nil {
		if ctx.Err() != nil {
			// Caller canceled (e.g. client disconnected): §4.6 excludes this
			// from TotalFailed, unlike a timeout or a real converter failure.
			return nil, errkind.Wrap(errkind.Internal, ctx.Err(), "conversion canceled")
		}
		atomic.AddInt64(&p.failed, 1)
		if convertCtx.Err() != nil {
			return nil, errkind.New(errkind.ConversionTimeout, "conversion exceeded "+strconv.Itoa(opts.TimeoutMs)+"ms")
		}
		return nil, err
	}
	atomic.AddInt64(&p.completed, 1)
	return pdfBytes, nil
}

// run spawns the converter in its own process group so the whole group
// can be killed together, waits for exit within convertCtx's deadline,
// and escalates SIGTERM -> SIGKILL if the deadline is hit.
func (p *Pool) run(ctx context.Context, workdir, inputPath string) ([]byte, error) {
	binPath := p.opts.BinPath
	if binPath == "" {
		binPath = "soffice"
	}
	cmd := exec.Command(binPath, "--headless", "--convert-to", "pdf", "--outdir", workdir, inputPath)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, errkind.Wrap(errkind.ConversionFailed, err, "spawn converter")
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			return nil, errkind.New(errkind.ConversionFailed, "converter exited non-zero, stderr: "+lastLines(stderr.String(), 20))
		}
	case <-ctx.Done():
		p.killProcessGroup(cmd)
		<-done // reap regardless of outcome
		return nil, ctx.Err()
	}

	pdfPath := filepath.Join(workdir, "input.pdf")
	data, err := os.ReadFile(pdfPath)
	if err != nil {
		return nil, errkind.Wrap(errkind.ConversionFailed, err, "read converter output")
	}
	return data, nil
}

func (p *Pool) killProcessGroup(cmd *exec.Cmd) {
	pgid := -cmd.Process.Pid
	_ = syscall.Kill(pgid, syscall.SIGTERM)
	time.AfterFunc(killGrace, func() {
		_ = syscall.Kill(pgid, syscall.SIGKILL)
	})
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	s = strings.Join(lines, "\n")
	if len(s) <= 4096 {
		return s
	}
	return s[len(s)-4096:]
}

func (p *Pool) Stats() port.ConversionStats {
	return port.ConversionStats{
		Active:         atomic.LoadInt64(&p.active),
		Queued:         atomic.LoadInt64(&p.queued),
		TotalCompleted: atomic.LoadInt64(&p.completed),
		TotalFailed:    atomic.LoadInt64(&p.failed),
	}
}

var _ port.ConversionPool = (*Pool)(nil)
