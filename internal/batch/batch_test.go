package batch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestScanSkipsFilesWithCueSidecar(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.wav"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.wav"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.cue"), []byte("y"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("z"), 0o644))

	var processed []string
	err := Scan(dir, func(path string) error {
		processed = append(processed, filepath.Base(path))
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a.wav"}, processed)
}

func TestScanMissingDirReturnsError(t *testing.T) {
	err := Scan(filepath.Join(t.TempDir(), "nope"), func(string) error { return nil })
	require.Error(t, err)
}

func TestWatchProcessesNewFile(t *testing.T) {
	dir := t.TempDir()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	processed := make(chan string, 1)
	go Watch(ctx, dir, 20*time.Millisecond, func(path string) error {
		processed <- path
		return nil
	})

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.wav"), []byte("x"), 0o644))

	select {
	case path := <-processed:
		require.Equal(t, filepath.Join(dir, "new.wav"), path)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected Watch to process the new file")
	}
}
