// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	state := t.TempDir()
	runtime := t.TempDir()
	t.Setenv("STATE_DIRECTORY", state)
	t.Setenv("RUNTIME_DIRECTORY", runtime)

	s, err := InitializeAsService(Options{})
	require.NoError(t, err)
	return s
}

func TestPathResolution(t *testing.T) {
	s := testStore(t)

	assert.Equal(t, filepath.Join(os.Getenv("STATE_DIRECTORY"), "profile.rules"), s.ProfileFilePath())
	assert.Equal(t, filepath.Join(os.Getenv("STATE_DIRECTORY"), "observed.rules"), s.ObservedFilePath())
	assert.Equal(t, filepath.Join(os.Getenv("RUNTIME_DIRECTORY"), "control.socket"), s.ControlSocketPath())
}

func TestEnvWinsOverOptions(t *testing.T) {
	state := t.TempDir()
	t.Setenv("STATE_DIRECTORY", state)
	t.Setenv("RUNTIME_DIRECTORY", t.TempDir())

	s, err := InitializeAsService(Options{StateDir: "/nonexistent/override"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(state, "profile.rules"), s.ProfileFilePath())
}

func TestServiceModeVerifiesDirectories(t *testing.T) {
	t.Setenv("STATE_DIRECTORY", "/nonexistent/midimind-test")
	t.Setenv("RUNTIME_DIRECTORY", t.TempDir())

	_, err := InitializeAsService(Options{})
	assert.Error(t, err)

	// Client mode does not check.
	s := InitializeAsClient(Options{})
	require.NotNil(t, s)
	assert.Contains(t, s.ProfileFilePath(), "midimind-test")
}

func TestAtomicWrite(t *testing.T) {
	s := testStore(t)
	path := s.ObservedFilePath()

	require.NoError(t, WriteFile(path, "a --> b\n"))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a --> b\n", got)

	// The temp file must not linger after a successful write.
	_, err = os.Stat(path + ".save")
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, WriteFile(path, "c --> d\n"))
	got, err = ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "c --> d\n", got)
}

func TestFileExists(t *testing.T) {
	s := testStore(t)

	ok, err := FileExists(s.ProfileFilePath())
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, WriteFile(s.ProfileFilePath(), ""))
	ok, err = FileExists(s.ProfileFilePath())
	require.NoError(t, err)
	assert.True(t, ok)
}
