// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package minder

import (
	"grimm.is/midimind/internal/engine"
	"grimm.is/midimind/internal/seq"
)

// knownPort returns the tracked Address for a numeric pair, or the null
// Address.
func (m *Minder) knownPort(addr seq.Addr) seq.Address {
	return m.activePorts[addr]
}

// The computation of primary port status assumes that applications
// create their ports from zero, in order, and when they delete ports,
// they delete them all. Should an application create ports out of
// order, or delete low numbered ports and recreate them, the primary
// port would logically jump around. This code doesn't handle that case;
// a hard reset clears up any mess that was made.

func (m *Minder) addPort(addr seq.Addr, fromReset bool) {
	if m.knownPort(addr).Valid {
		return
	}

	a := m.seq.Address(addr)
	if !a.Valid {
		return
	}

	foundPrimarySender := false
	foundPrimaryDest := false
	for existing, b := range m.activePorts {
		if existing.Client == addr.Client {
			foundPrimarySender = foundPrimarySender || b.PrimarySender
			foundPrimaryDest = foundPrimaryDest || b.PrimaryDest
		}
		if foundPrimarySender && foundPrimaryDest {
			break
		}
	}
	if a.CanBeSender() && !foundPrimarySender {
		a.PrimarySender = true
	}
	if a.CanBeDest() && !foundPrimaryDest {
		a.PrimaryDest = true
	}

	m.activePorts[addr] = a
	if fromReset {
		m.log.Info("reviewing port", "port", a.String())
	} else {
		m.log.Info("system added port", "port", a.String())
	}
	if m.portDetails {
		m.log.Info("port details", "port", a.String(),
			"caps", a.CapsString(), "types", a.TypesString())
	}

	var candidates []engine.Candidate
	candidates = engine.ConnectByRule(a, m.profileRules, engine.SourceProfile, m.activePorts, candidates)
	candidates = engine.ConnectByRule(a, m.observedRules, engine.SourceObserved, m.activePorts, candidates)

	for _, cc := range candidates {
		conn := seq.Connect{Sender: cc.Sender.Addr, Dest: cc.Dest.Addr}
		if m.activeConnections[conn] {
			continue
		}
		m.seq.Connect(conn.Sender, conn.Dest)
		m.expectedConnects[conn]++
		m.activeConnections[conn] = true
		m.log.Info("connecting",
			"sender", cc.Sender.String(), "dest", cc.Dest.String(),
			"source", cc.Source.String(), "rule", cc.Rule.String())
		if m.metrics != nil {
			m.metrics.Connects.WithLabelValues(cc.Source.String()).Inc()
		}
	}
}

func (m *Minder) delPort(addr seq.Addr) {
	port := m.knownPort(addr)
	if !port.Valid {
		return
	}

	m.log.Info("system removed port", "port", port.String())

	var doomed []seq.Connect
	for c := range m.activeConnections {
		if c.Sender == addr || c.Dest == addr {
			doomed = append(doomed, c)

			sender := m.knownPort(c.Sender)
			dest := m.knownPort(c.Dest)
			if sender.Valid && dest.Valid {
				m.log.Debug("    disconnected", "sender", sender.String(), "dest", dest.String())
			}
		}
	}

	delete(m.activePorts, addr)
	// The kernel reports the dead subscriptions itself via UNSUBSCRIBED
	// events; no disconnect calls are needed here.
	for _, d := range doomed {
		delete(m.activeConnections, d)
	}
}
