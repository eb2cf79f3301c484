// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package ctl

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"grimm.is/midimind/internal/errors"
)

// Dial connects to the daemon's control socket. The returned connection
// is blocking; client operations are bounded by the exchange and the
// user's interrupt.
func Dial(path string) (*Conn, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindSocket, "couldn't create control socket")
	}

	if err := unix.Connect(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		unix.Close(fd)
		fmt.Fprintf(os.Stderr,
			"Couldn't connect to the midimind daemon.\n"+
				"\n"+
				"Use systemctl to check or start it:\n"+
				"    systemctl status midimind.service\n"+
				"    systemctl start midimind.service\n"+
				"\n"+
				"(While trying to connect to the socket path:\n"+
				"    %s\n"+
				"    got the error: %v)\n", path, err)
		return nil, errors.Wrapf(err, errors.KindUnavailable, "couldn't connect to %s", path)
	}

	return &Conn{fd: fd}, nil
}
