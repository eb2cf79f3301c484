// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package ctl

import (
	"os"

	"golang.org/x/sys/unix"

	"grimm.is/midimind/internal/errors"
	"grimm.is/midimind/internal/logging"
)

// Server owns the listening control socket. Accepting is non-blocking so
// the listener integrates with the daemon's poll loop.
type Server struct {
	fd   int
	path string
	log  *logging.Logger
}

// NewServer binds and listens on the control socket at path. The socket
// file is created group-accessible so members of the daemon's group
// (usually audio) can connect; any stale socket file is removed first.
func NewServer(path string) (*Server, error) {
	removeSocketFile(path)

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindSocket, "couldn't create control socket")
	}

	sa := &unix.SockaddrUnix{Name: path}

	oldmask := unix.Umask(0o007) // allow group access (usually audio)
	err = unix.Bind(fd, sa)
	unix.Umask(oldmask)
	if err != nil {
		unix.Close(fd)
		return nil, errors.Wrapf(err, errors.KindSocket, "couldn't bind socket to path %s", path)
	}

	if err := unix.Listen(fd, 2); err != nil { // don't need a long backlog
		unix.Close(fd)
		return nil, errors.Wrapf(err, errors.KindSocket, "couldn't listen to socket path %s", path)
	}

	return &Server{fd: fd, path: path, log: logging.WithComponent("ctl")}, nil
}

// Close shuts the listener down and removes the socket file.
func (s *Server) Close() {
	if s.fd >= 0 {
		unix.Close(s.fd)
		s.fd = -1
	}
	removeSocketFile(s.path)
}

// ScanFDs invokes fn once per descriptor to add to the poll set.
func (s *Server) ScanFDs(fn func(int)) {
	if s.fd >= 0 {
		fn(s.fd)
	}
}

// Accept takes one pending connection. ok is false when nothing is
// pending.
func (s *Server) Accept() (conn *Conn, ok bool, err error) {
	fd, _, aerr := unix.Accept(s.fd)
	if aerr == unix.EAGAIN || aerr == unix.EWOULDBLOCK || aerr == unix.EINTR {
		return nil, false, nil
	}
	if aerr != nil {
		return nil, false, errors.Wrap(aerr, errors.KindSocket, "accepting a connection failed")
	}
	return &Conn{fd: fd}, true, nil
}

func removeSocketFile(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logging.WithComponent("ctl").Error("couldn't remove socket", "path", path, "err", err)
		// Not fatal; bind will fail loudly if the file is truly stuck.
	}
}
