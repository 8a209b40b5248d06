package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/docindex-mcp/pkg/types"
)

func TestScanFolder_MixedFiles(t *testing.T) {
	env := newTestEnv(t, nil)
	dir := env.idx.DocumentsDir("kb")
	writeFile(t, dir, "a.txt", sentences(2))
	writeFile(t, dir, "b.md", sentences(3))
	writeFile(t, dir, "c.xlsx", "not a document")
	rec := &progressRecorder{}

	result, err := env.idx.ScanFolder(context.Background(), "kb", rec.record)
	require.NoError(t, err)

	require.Len(t, result.Documents, 2)
	assert.Equal(t, "a.txt", result.Documents[0].Filename)
	assert.Equal(t, "b.md", result.Documents[1].Filename)
	assert.Zero(t, result.Skipped)

	require.Len(t, result.Failures, 1)
	assert.Equal(t, "c.xlsx", filepath.Base(result.Failures[0].Path))
	assert.ErrorIs(t, result.Failures[0].Err, types.ErrUnsupportedType)

	msgs := rec.messages()
	assert.Equal(t, fmt.Sprintf("Found 3 file(s) to evaluate in %s", dir), msgs[0])
	assert.Equal(t, "Folder scan complete", msgs[len(msgs)-1])

	var failures []string
	for _, m := range msgs {
		if strings.HasPrefix(m, "Failed to index") {
			failures = append(failures, m)
		}
	}
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0], "c.xlsx")

	rec.assertMonotonic(t)
	assert.Len(t, env.vectors.ids("kb"), 5)
}

func TestScanFolder_SecondRunSkips(t *testing.T) {
	env := newTestEnv(t, nil)
	dir := env.idx.DocumentsDir("kb")
	writeFile(t, dir, "a.txt", sentences(2))
	writeFile(t, dir, "b.txt", sentences(2))
	ctx := context.Background()

	_, err := env.idx.ScanFolder(ctx, "kb", nil)
	require.NoError(t, err)
	calls, _ := env.embedder.counts()

	result, err := env.idx.ScanFolder(ctx, "kb", nil)
	require.NoError(t, err)
	assert.Len(t, result.Documents, 2)
	assert.Equal(t, 2, result.Skipped)

	calls2, _ := env.embedder.counts()
	assert.Equal(t, calls, calls2)
}

func TestScanFolder_EmptyFolderIsCreated(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := &progressRecorder{}

	result, err := env.idx.ScanFolder(context.Background(), "new-base", rec.record)
	require.NoError(t, err)
	assert.Empty(t, result.Documents)
	assert.Empty(t, result.Failures)

	info, err := os.Stat(env.idx.DocumentsDir("new-base"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	require.Len(t, rec.events, 1)
	assert.True(t, strings.HasPrefix(rec.events[0].Message, "Found 0 file(s)"))
	assert.Equal(t, 1.0, rec.events[0].Fraction)
}

func TestScanFolder_IgnoresHiddenAndDirectories(t *testing.T) {
	env := newTestEnv(t, nil)
	dir := env.idx.DocumentsDir("kb")
	writeFile(t, dir, "visible.txt", sentences(1))
	writeFile(t, dir, ".hidden.txt", sentences(1))
	writeFile(t, filepath.Join(dir, "nested"), "inner.txt", sentences(1))

	result, err := env.idx.ScanFolder(context.Background(), "kb", nil)
	require.NoError(t, err)
	require.Len(t, result.Documents, 1)
	assert.Equal(t, "visible.txt", result.Documents[0].Filename)
}

func TestScanFolder_SupportedOnly(t *testing.T) {
	env := newTestEnv(t, &Config{ChunkSize: 10, SupportedOnly: true})
	dir := env.idx.DocumentsDir("kb")
	writeFile(t, dir, "a.txt", sentences(1))
	writeFile(t, dir, "b.bin", "binary")

	result, err := env.idx.ScanFolder(context.Background(), "kb", nil)
	require.NoError(t, err)
	assert.Len(t, result.Documents, 1)
	assert.Empty(t, result.Failures)
}

func TestScanFolder_Concurrent(t *testing.T) {
	env := newTestEnv(t, &Config{ChunkSize: 10, Workers: 4})
	dir := env.idx.DocumentsDir("kb")
	for i := range 6 {
		writeFile(t, dir, fmt.Sprintf("doc-%d.txt", i), sentences(i+1))
	}
	rec := &progressRecorder{}

	result, err := env.idx.ScanFolder(context.Background(), "kb", rec.record)
	require.NoError(t, err)
	require.Len(t, result.Documents, 6)
	for i, doc := range result.Documents {
		assert.Equal(t, fmt.Sprintf("doc-%d.txt", i), doc.Filename)
	}

	// 1+2+...+6 chunks
	assert.Len(t, env.vectors.ids("kb"), 21)
	rec.assertMonotonic(t)
	assert.Equal(t, "Folder scan complete", rec.messages()[len(rec.events)-1])
}

func TestScanFolder_InProgress(t *testing.T) {
	env := newTestEnv(t, nil)

	lock := env.idx.scanLock("kb")
	require.True(t, lock.TryAcquire())

	_, err := env.idx.ScanFolder(context.Background(), "kb", nil)
	assert.ErrorIs(t, err, types.ErrIndexingInProgress)

	// Other bases are not affected
	_, err = env.idx.ScanFolder(context.Background(), "other", nil)
	assert.NoError(t, err)

	lock.Release()
	_, err = env.idx.ScanFolder(context.Background(), "kb", nil)
	assert.NoError(t, err)
}

func TestScanFolder_Cancelled(t *testing.T) {
	env := newTestEnv(t, nil)
	dir := env.idx.DocumentsDir("kb")
	writeFile(t, dir, "a.txt", sentences(1))
	writeFile(t, dir, "b.txt", sentences(1))

	ctx, cancel := context.WithCancel(context.Background())
	var cancelled bool
	progress := func(e Event) {
		if e.Message == "Indexing complete" && !cancelled {
			cancelled = true
			cancel()
		}
	}

	result, err := env.idx.ScanFolder(ctx, "kb", progress)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	require.Len(t, result.Documents, 1)
	assert.Equal(t, "a.txt", result.Documents[0].Filename)
	assert.Empty(t, result.Failures)
}

func TestScanFolder_InvalidBase(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.idx.ScanFolder(context.Background(), "bad/name", nil)
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestProgressScaled(t *testing.T) {
	rec := &progressRecorder{}
	scaled := ProgressFunc(rec.record).scaled(1, 4)

	scaled(Event{Message: "half", Fraction: 0.5, Known: true})
	scaled(Event{Message: "unknown"})

	require.Len(t, rec.events, 2)
	assert.InDelta(t, 0.375, rec.events[0].Fraction, 1e-9)
	assert.InDelta(t, 0.25, rec.events[1].Fraction, 1e-9)
	assert.True(t, rec.events[1].Known)

	var nilFunc ProgressFunc
	assert.Nil(t, nilFunc.scaled(0, 1))
	assert.NotPanics(t, func() { nilFunc.report("x", 0.5) })
}
