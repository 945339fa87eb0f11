package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755))
}

func TestDirInstalledRequiresBothTools(t *testing.T) {
	root := t.TempDir()
	d := NewDir(root, WithoutPathFallback())
	assert.False(t, d.Installed())

	touch(t, filepath.Join(root, executableName(ADB)))
	assert.False(t, d.Refresh(), "fastboot still missing")

	touch(t, filepath.Join(root, executableName(Fastboot)))
	assert.True(t, d.Refresh())
	assert.Equal(t, filepath.Join(root, executableName(ADB)), d.Path(ADB))
}

func TestDirPathFallsBackToLookPath(t *testing.T) {
	root := t.TempDir()
	d := NewDir(root)
	d.lookPath = func(name string) (string, error) { return "/usr/bin/" + name, nil }
	assert.Equal(t, "/usr/bin/"+executableName(ADB), d.Path(ADB))

	d.allowPath = false
	assert.Equal(t, filepath.Join(root, executableName(ADB)), d.Path(ADB))
}

func TestDirWatchRefreshesInstalled(t *testing.T) {
	root := filepath.Join(t.TempDir(), "platform-tools")
	require.NoError(t, os.MkdirAll(root, 0o755))
	d := NewDir(root, WithoutPathFallback())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- d.Watch(ctx) }()
	time.Sleep(50 * time.Millisecond)

	touch(t, filepath.Join(root, executableName(ADB)))
	touch(t, filepath.Join(root, executableName(Fastboot)))
	assert.Eventually(t, d.Installed, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, os.Remove(filepath.Join(root, executableName(ADB))))
	assert.Eventually(t, func() bool { return !d.Installed() }, 2*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
