// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"bytes"
	"os"
	"strings"

	"grimm.is/midimind/internal/ctl"
	"grimm.is/midimind/internal/errors"
	"grimm.is/midimind/internal/rules"
	"grimm.is/midimind/internal/store"
)

// dial opens the daemon's control socket using client-mode paths.
func dial() (*ctl.Conn, error) {
	st := store.InitializeAsClient(store.Options{})
	return ctl.Dial(st.ControlSocketPath())
}

// RunReset asks the daemon to rewire from its rules.
func RunReset(keepObserved, resetHard bool) error {
	conn, err := dial()
	if err != nil {
		return err
	}
	defer conn.Close()

	var opts []string
	if keepObserved {
		opts = append(opts, "keepObserved")
	}
	if resetHard {
		opts = append(opts, "resetHard")
	}
	return conn.SendCommand("reset", opts...)
}

// RunLoad parses a profile locally, then hands it to the daemon. The
// path "-" reads stdin.
func RunLoad(path string) error {
	contents, err := store.ReadUserFile(path)
	if err != nil {
		return err
	}

	if _, errs := rules.Parse(contents); len(errs) > 0 {
		for _, e := range errs {
			os.Stderr.WriteString(e.Error() + "\n")
		}
		return errors.New(errors.KindValidation, "did not load rules due to errors")
	}

	conn, err := dial()
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.SendCommand("load"); err != nil {
		return err
	}
	return conn.SendFile(strings.NewReader(contents))
}

// RunSave fetches the daemon's combined rules. The path "-" writes
// stdout.
func RunSave(path string) error {
	conn, err := dial()
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.SendCommand("save"); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := conn.ReceiveFile(&buf); err != nil {
		return err
	}
	return store.WriteUserFile(path, buf.String())
}

// RunStatus prints the daemon's status report.
func RunStatus() error {
	conn, err := dial()
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.SendCommand("status"); err != nil {
		return err
	}
	return conn.ReceiveFile(os.Stdout)
}
