package conversion

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docgen/docgen-sub000/internal/core/errkind"
	"github.com/docgen/docgen-sub000/internal/core/port"
)

// fakeConverterScript writes a tiny shell script standing in for soffice:
// it copies input.docx to input.pdf in the same --outdir, after an
// optional sleep, so tests don't depend on a real office suite.
func fakeConverterScript(t *testing.T, sleep time.Duration) string {
	t.Helper()
	dir := t.TempDir()
	scriptPath := filepath.Join(dir, "fake-soffice.sh")
	body := "#!/bin/sh\n"
	if sleep > 0 {
		body += "sleep " + sleep.String() + "\n"
	}
	body += `
outdir=""
input=""
while [ "$#" -gt 0 ]; do
  case "$1" in
    --outdir) outdir="$2"; shift 2 ;;
    --headless|--convert-to) shift ;;
    pdf) shift ;;
    *) input="$1"; shift ;;
  esac
done
cp "$input" "$outdir/input.pdf"
`
	require.NoError(t, os.WriteFile(scriptPath, []byte(body), 0o755))
	return scriptPath
}

func TestPool_ConvertSucceeds(t *testing.T) {
	workdir := t.TempDir()
	pool := New(Options{
		BinPath:       fakeConverterScript(t, 0),
		Workdir:       workdir,
		MaxConcurrent: 2,
	})

	out, err := pool.Convert(context.Background(), []byte("docx-bytes"), port.ConversionOptions{
		TimeoutMs:     5000,
		CorrelationID: "corr-1",
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("docx-bytes"), out)

	stats := pool.Stats()
	assert.EqualValues(t, 1, stats.TotalCompleted)
	assert.EqualValues(t, 0, stats.TotalFailed)
	assert.EqualValues(t, 0, stats.Active)
}

func TestPool_WorkdirRemovedAfterConversion(t *testing.T) {
	workdir := t.TempDir()
	pool := New(Options{
		BinPath:       fakeConverterScript(t, 0),
		Workdir:       workdir,
		MaxConcurrent: 1,
	})

	_, err := pool.Convert(context.Background(), []byte("x"), port.ConversionOptions{TimeoutMs: 5000, CorrelationID: "corr-2"})
	require.NoError(t, err)

	entries, err := os.ReadDir(workdir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPool_TimeoutKillsProcess(t *testing.T) {
	workdir := t.TempDir()
	pool := New(Options{
		BinPath:       fakeConverterScript(t, 2*time.Second),
		Workdir:       workdir,
		MaxConcurrent: 1,
	})

	_, err := pool.Convert(context.Background(), []byte("x"), port.ConversionOptions{TimeoutMs: 100, CorrelationID: "corr-3"})
	require.Error(t, err)
	e, ok := err.(*errkind.Error)
	require.True(t, ok)
	assert.Equal(t, errkind.ConversionTimeout, e.Kind)

	stats := pool.Stats()
	assert.EqualValues(t, 1, stats.TotalFailed)
}

func TestPool_CallerCancelDoesNotCountAsFailed(t *testing.T) {
	workdir := t.TempDir()
	pool := New(Options{
		BinPath:       fakeConverterScript(t, 2*time.Second),
		Workdir:       workdir,
		MaxConcurrent: 1,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := pool.Convert(ctx, []byte("x"), port.ConversionOptions{TimeoutMs: 5000, CorrelationID: "corr-4"})
	require.Error(t, err)

	assert.EqualValues(t, 0, pool.Stats().TotalFailed)
}

func TestPool_BoundsConcurrency(t *testing.T) {
	workdir := t.TempDir()
	pool := New(Options{
		BinPath:       fakeConverterScript(t, 150*time.Millisecond),
		Workdir:       workdir,
		MaxConcurrent: 1,
	})

	const n = 3
	done := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		go func() {
			_, _ = pool.Convert(context.Background(), []byte("x"), port.ConversionOptions{
				TimeoutMs: 5000, CorrelationID: "corr-conc",
			})
			done <- struct{}{}
		}()
	}

	// Shortly after launch, with MaxConcurrent=1, at most one conversion
	// may be active at a time regardless of how many were submitted.
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, pool.Stats().Active, int64(1))

	deadline := time.After(3 * time.Second)
	for received := 0; received < n; received++ {
		select {
		case <-done:
		case <-deadline:
			t.Fatal("conversions did not complete in time")
		}
	}
	assert.EqualValues(t, n, pool.Stats().TotalCompleted)
}
