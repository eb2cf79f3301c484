// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package ctl implements the framed request/response protocol spoken on
// the daemon's unix-domain control socket. Two record kinds travel on one
// connection: a short comma-separated command line, and an opaque byte
// stream terminated by end-of-stream.
package ctl

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/sys/unix"
)

// maxCommandLine bounds the command line, newline excluded.
const maxCommandLine = 80

const optionsDelimiter = ","

// SocketError is a failed read or write on the control socket. It is
// caught at the top of the server's connection handler, which logs it
// and drops the client.
type SocketError struct {
	Op  string
	Err error
}

func (e *SocketError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op
}

func (e *SocketError) Unwrap() error { return e.Err }

// Conn is one accepted or dialed control connection.
type Conn struct {
	fd int
}

// Close releases the connection. Safe to call twice.
func (c *Conn) Close() {
	if c.fd >= 0 {
		unix.Close(c.fd)
		c.fd = -1
	}
}

func (c *Conn) write(buf []byte) error {
	for len(buf) > 0 {
		n, err := unix.Write(c.fd, buf)
		if err == unix.EAGAIN || err == unix.EINTR {
			continue
		}
		if err != nil {
			return &SocketError{Op: "socket write failed", Err: err}
		}
		buf = buf[n:]
	}
	return nil
}

// SendLine writes one newline-terminated line.
func (c *Conn) SendLine(s string) error {
	return c.write(append([]byte(s), '\n'))
}

// ReceiveLine reads one line, newline excluded. Lines longer than the
// protocol bound are an error.
func (c *Conn) ReceiveLine() (string, error) {
	var b strings.Builder
	buf := make([]byte, 1)

	for {
		n, err := unix.Read(c.fd, buf)
		if err == unix.EAGAIN || err == unix.EINTR {
			continue
		}
		if err != nil {
			return "", &SocketError{Op: "socket receive line failed", Err: err}
		}
		if n == 0 || buf[0] == '\n' {
			return b.String(), nil
		}
		if b.Len() >= maxCommandLine {
			return "", &SocketError{Op: "command line too long"}
		}
		b.WriteByte(buf[0])
	}
}

// SendCommand writes a command line with its options.
func (c *Conn) SendCommand(cmd string, opts ...string) error {
	line := cmd
	for _, o := range opts {
		line += optionsDelimiter + o
	}
	return c.SendLine(line)
}

// ReceiveCommand reads and splits a command line. Empty fields are
// dropped; the first field is the command.
func (c *Conn) ReceiveCommand() (cmd string, opts []string, err error) {
	line, err := c.ReceiveLine()
	if err != nil {
		return "", nil, err
	}

	for _, word := range strings.Split(line, optionsDelimiter) {
		if word == "" {
			continue
		}
		if cmd == "" {
			cmd = word
		} else {
			opts = append(opts, word)
		}
	}
	return cmd, opts, nil
}

// SendFile streams the reader's bytes to the peer. The file record has
// no framing of its own; the peer reads until end-of-stream.
func (c *Conn) SendFile(r io.Reader) error {
	buf := make([]byte, 1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if werr := c.write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return &SocketError{Op: "file read failed", Err: err}
		}
	}
}

// ReceiveFile reads the peer's byte stream until it closes its end.
func (c *Conn) ReceiveFile(w io.Writer) error {
	buf := make([]byte, 1024)
	for {
		n, err := unix.Read(c.fd, buf)
		if err == unix.EAGAIN || err == unix.EINTR {
			continue
		}
		if err != nil {
			return &SocketError{Op: "socket receive file failed", Err: err}
		}
		if n == 0 {
			return nil
		}
		if _, err := w.Write(buf[:n]); err != nil {
			return &SocketError{Op: "file write failed", Err: err}
		}
	}
}
