// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package minder

import (
	"bytes"
	"fmt"
	"strings"

	"grimm.is/midimind/internal/ctl"
	"grimm.is/midimind/internal/rules"
	"grimm.is/midimind/internal/store"
)

// handleConnection services one client exchange on the control socket.
// Socket errors are logged and the client dropped; the daemon carries on.
func (m *Minder) handleConnection() {
	conn, ok, err := m.server.Accept()
	if err != nil {
		m.log.Error("accepting client connection failed", "err", err)
		return
	}
	if !ok {
		return
	}
	defer conn.Close()

	cmd, opts, err := conn.ReceiveCommand()
	if err != nil {
		m.log.Error("client connection failed, ignoring", "err", err)
		return
	}
	m.log.Info("received client command", "command", cmd, "options", strings.Join(opts, ","))
	if m.metrics != nil {
		m.metrics.Commands.WithLabelValues(cmd).Inc()
	}

	switch cmd {
	case "reset":
		err = m.handleResetCommand(opts)
	case "load":
		err = m.handleLoadCommand(conn)
	case "save":
		err = m.handleSaveCommand(conn)
	case "status":
		err = m.handleStatusCommand(conn)
	default:
		m.log.Error("unrecognized user command, ignoring", "command", cmd)
		return
	}
	if err != nil {
		m.log.Error("client connection failed, ignoring", "err", err)
	}
}

func (m *Minder) handleResetCommand(opts []string) error {
	keepObserved := false
	resetHard := false
	for _, o := range opts {
		switch o {
		case "keepObserved":
			keepObserved = true
		case "resetHard":
			resetHard = true
		default:
			m.log.Error("option to reset command not recognized, ignoring", "option", o)
		}
	}

	if !keepObserved {
		m.clearObserved()
	}

	if resetHard {
		m.resetConnectionsHard()
	} else {
		m.resetConnectionsSoft()
	}
	m.updateGauges()
	return nil
}

func (m *Minder) handleLoadCommand(conn *ctl.Conn) error {
	var buf bytes.Buffer
	if err := conn.ReceiveFile(&buf); err != nil {
		return err
	}

	m.loadProfile(buf.String())
	return nil
}

// loadProfile adopts new profile contents: persists them, replaces the
// profile rules, clears the observed rules, and rewires with a soft
// reset. Contents that do not parse are rejected whole.
func (m *Minder) loadProfile(newContents string) {
	newRules, errs := rules.Parse(newContents)
	if len(errs) > 0 {
		for _, e := range errs {
			m.log.Error("received profile parse error", "err", e)
		}
		m.log.Error("received profile rules didn't parse, ignoring")
		return
	}

	if err := store.WriteFile(m.store.ProfileFilePath(), newContents); err != nil {
		m.log.Error("couldn't write profile rules", "err", err)
		return
	}
	m.profileText = newContents
	m.profileRules = newRules

	m.log.Info("loading profile", "rules", len(m.profileRules))
	for _, r := range m.profileRules {
		m.log.Debug("    rule", "rule", r.String())
	}

	m.clearObserved()
	m.resetConnectionsSoft()
	m.updateGauges()
}

func (m *Minder) handleSaveCommand(conn *ctl.Conn) error {
	var combined strings.Builder
	if m.profileText != "" {
		combined.WriteString("# Profile rules:\n")
		combined.WriteString(m.profileText)
	}
	if m.observedText != "" {
		combined.WriteString("# Observed rules:\n")
		combined.WriteString(m.observedText)
	}
	if m.profileText == "" && m.observedText == "" {
		combined.WriteString("# No rules defined.\n")
	}

	return conn.SendFile(strings.NewReader(combined.String()))
}

func (m *Minder) handleStatusCommand(conn *ctl.Conn) error {
	var report strings.Builder
	report.WriteString("Daemon is running.\n")
	fmt.Fprintf(&report, "%4d profile rules.\n", len(m.profileRules))
	fmt.Fprintf(&report, "%4d observed rules.\n", len(m.observedRules))
	fmt.Fprintf(&report, "%4d active ports.\n", len(m.activePorts))
	fmt.Fprintf(&report, "%4d active connections\n", len(m.activeConnections))

	return conn.SendFile(strings.NewReader(report.String()))
}
