// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package ctl

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func acceptOne(t *testing.T, s *Server) *Conn {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, ok, err := s.Accept()
		require.NoError(t, err)
		if ok {
			return conn
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("no connection accepted")
	return nil
}

func TestCommandExchange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "control.socket")
	server, err := NewServer(path)
	require.NoError(t, err)
	defer server.Close()

	done := make(chan error, 1)
	go func() {
		client, err := Dial(path)
		if err != nil {
			done <- err
			return
		}
		defer client.Close()
		done <- client.SendCommand("reset", "keepObserved", "resetHard")
	}()

	conn := acceptOne(t, server)
	defer conn.Close()

	cmd, opts, err := conn.ReceiveCommand()
	require.NoError(t, err)
	assert.Equal(t, "reset", cmd)
	assert.Equal(t, []string{"keepObserved", "resetHard"}, opts)

	require.NoError(t, <-done)
}

func TestFileToServer(t *testing.T) {
	// The load shape: command, then a blob the client terminates by
	// closing its end.
	path := filepath.Join(t.TempDir(), "control.socket")
	server, err := NewServer(path)
	require.NoError(t, err)
	defer server.Close()

	profile := "Controller --> Synthesizer\n"

	done := make(chan error, 1)
	go func() {
		client, err := Dial(path)
		if err != nil {
			done <- err
			return
		}
		defer client.Close()

		if err := client.SendCommand("load"); err != nil {
			done <- err
			return
		}
		done <- client.SendFile(strings.NewReader(profile))
	}()

	conn := acceptOne(t, server)
	defer conn.Close()

	cmd, _, err := conn.ReceiveCommand()
	require.NoError(t, err)
	assert.Equal(t, "load", cmd)

	require.NoError(t, <-done)

	var buf bytes.Buffer
	require.NoError(t, conn.ReceiveFile(&buf))
	assert.Equal(t, profile, buf.String())
}

func TestFileToClient(t *testing.T) {
	// The save shape: command up, blob back, ended by the server's close.
	path := filepath.Join(t.TempDir(), "control.socket")
	server, err := NewServer(path)
	require.NoError(t, err)
	defer server.Close()

	reply := "# Profile rules:\nController --> Synthesizer\n"

	type result struct {
		got string
		err error
	}
	done := make(chan result, 1)
	go func() {
		client, err := Dial(path)
		if err != nil {
			done <- result{err: err}
			return
		}
		defer client.Close()

		if err := client.SendCommand("save"); err != nil {
			done <- result{err: err}
			return
		}
		var buf bytes.Buffer
		err = client.ReceiveFile(&buf)
		done <- result{got: buf.String(), err: err}
	}()

	conn := acceptOne(t, server)

	cmd, _, err := conn.ReceiveCommand()
	require.NoError(t, err)
	assert.Equal(t, "save", cmd)

	require.NoError(t, conn.SendFile(strings.NewReader(reply)))
	conn.Close()

	r := <-done
	require.NoError(t, r.err)
	assert.Equal(t, reply, r.got)
}

func TestOverlongCommandLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "control.socket")
	server, err := NewServer(path)
	require.NoError(t, err)
	defer server.Close()

	go func() {
		client, err := Dial(path)
		if err != nil {
			return
		}
		defer client.Close()
		_ = client.SendLine(strings.Repeat("x", 200))
	}()

	conn := acceptOne(t, server)
	defer conn.Close()

	_, _, err = conn.ReceiveCommand()
	require.Error(t, err)

	var se *SocketError
	assert.ErrorAs(t, err, &se)
}

func TestStaleSocketFileIsReplaced(t *testing.T) {
	path := filepath.Join(t.TempDir(), "control.socket")

	first, err := NewServer(path)
	require.NoError(t, err)
	first.Close()

	second, err := NewServer(path)
	require.NoError(t, err)
	second.Close()
}
