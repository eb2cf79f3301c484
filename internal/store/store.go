// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package store resolves the daemon's state and runtime paths and reads
// and writes its rule files atomically.
package store

import (
	"io"
	"os"
	"path/filepath"

	"grimm.is/midimind/internal/errors"
	"grimm.is/midimind/internal/logging"
)

const (
	stateDirEnv   = "STATE_DIRECTORY"
	runtimeDirEnv = "RUNTIME_DIRECTORY"

	defaultStateDir   = "/var/lib/midimind"
	defaultRuntimeDir = "/run/midimind"

	profileFileName  = "profile.rules"
	observedFileName = "observed.rules"
	socketFileName   = "control.socket"
)

// Options allows configuration-file overrides of the default directories.
// Environment variables always win over these.
type Options struct {
	StateDir   string
	RuntimeDir string
}

// Store knows where the daemon's files live.
type Store struct {
	stateDir   string
	runtimeDir string
}

func resolveDir(envVar, override, fallback string, verify bool, log *logging.Logger) (string, error) {
	dir := os.Getenv(envVar)
	defaulted := dir == ""
	if defaulted {
		dir = override
	}
	if dir == "" {
		dir = fallback
	}

	if verify {
		log.Info("state directory", "var", envVar, "path", dir, "defaulted", defaulted)

		fi, err := os.Stat(dir)
		if err != nil {
			return "", errors.Wrapf(err, errors.KindUnavailable, "checking directory %s", dir)
		}
		if !fi.IsDir() {
			return "", errors.Errorf(errors.KindUnavailable, "checking directory %s: not a directory", dir)
		}
	}

	return dir, nil
}

func initialize(opts Options, verify bool) (*Store, error) {
	log := logging.WithComponent("store")

	stateDir, err := resolveDir(stateDirEnv, opts.StateDir, defaultStateDir, verify, log)
	if err != nil {
		return nil, err
	}
	runtimeDir, err := resolveDir(runtimeDirEnv, opts.RuntimeDir, defaultRuntimeDir, verify, log)
	if err != nil {
		return nil, err
	}

	return &Store{stateDir: stateDir, runtimeDir: runtimeDir}, nil
}

// InitializeAsService resolves paths and verifies the directories exist.
func InitializeAsService(opts Options) (*Store, error) {
	return initialize(opts, true)
}

// InitializeAsClient resolves paths without touching the filesystem.
func InitializeAsClient(opts Options) *Store {
	s, _ := initialize(opts, false)
	return s
}

// StateDir is the directory holding the daemon's persistent state.
func (s *Store) StateDir() string { return s.stateDir }

// ProfileFilePath is the user-authored rules file.
func (s *Store) ProfileFilePath() string { return filepath.Join(s.stateDir, profileFileName) }

// ObservedFilePath is the daemon-authored rules file.
func (s *Store) ObservedFilePath() string { return filepath.Join(s.stateDir, observedFileName) }

// ControlSocketPath is the daemon's control socket.
func (s *Store) ControlSocketPath() string { return filepath.Join(s.runtimeDir, socketFileName) }

// FileExists reports whether path names a regular file.
func FileExists(path string) (bool, error) {
	fi, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, errors.KindInternal, "checking for %s", path)
	}
	if !fi.Mode().IsRegular() {
		return false, errors.Errorf(errors.KindInternal, "checking for %s: not a regular file", path)
	}
	return true, nil
}

// ReadFile returns the contents of path.
func ReadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, errors.KindInternal, "could not read %s", path)
	}
	return string(data), nil
}

// WriteFile writes contents to path atomically: the bytes land in
// path.save, are synced, and the temp file is renamed over path.
func WriteFile(path, contents string) error {
	tempPath := path + ".save"

	f, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.Wrapf(err, errors.KindInternal, "could not write %s", tempPath)
	}

	if _, err := io.WriteString(f, contents); err != nil {
		f.Close()
		return errors.Wrapf(err, errors.KindInternal, "could not write %s", tempPath)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errors.Wrapf(err, errors.KindInternal, "could not sync %s", tempPath)
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, errors.KindInternal, "could not close %s", tempPath)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return errors.Wrapf(err, errors.KindInternal, "could not rename %s to %s", tempPath, path)
	}
	return nil
}

// ReadUserFile reads path, or stdin when path is "-".
func ReadUserFile(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", errors.Wrap(err, errors.KindInternal, "could not read stdin")
		}
		return string(data), nil
	}
	return ReadFile(path)
}

// WriteUserFile writes contents to path, or stdout when path is "-".
func WriteUserFile(path, contents string) error {
	if path == "-" {
		_, err := io.WriteString(os.Stdout, contents)
		return errors.Wrap(err, errors.KindInternal, "could not write stdout")
	}
	return WriteFile(path, contents)
}
