// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package minder

import (
	"grimm.is/midimind/internal/rules"
	"grimm.is/midimind/internal/seq"
	"grimm.is/midimind/internal/store"
)

// saveObserved persists the observed rule list in canonical form.
func (m *Minder) saveObserved() {
	m.observedText = m.observedRules.Render()
	if err := store.WriteFile(m.store.ObservedFilePath(), m.observedText); err != nil {
		m.log.Error("couldn't write observed rules", "err", err)
		return
	}
	m.log.Debug("observed rules written")
	if m.metrics != nil {
		m.metrics.ObservedChanges.Inc()
	}
	m.updateGauges()
}

func (m *Minder) clearObserved() {
	m.observedText = ""
	m.observedRules = nil
	m.saveObserved()
}

// removeObservedAt drops one rule from the observed list by index.
func (m *Minder) removeObservedAt(i int) {
	m.observedRules = append(m.observedRules[:i], m.observedRules[i+1:]...)
}

// addConnection handles an observed subscription: one the daemon did not
// make itself. The observed rule list is updated so the user's action
// survives restarts and re-plugs.
func (m *Minder) addConnection(conn seq.Connect) {
	if m.activeConnections[conn] {
		// already know about this connection
		return
	}

	sender := m.knownPort(conn.Sender)
	dest := m.knownPort(conn.Dest)
	if !sender.Valid || !dest.Valid {
		return
	}

	m.log.Info("observed connection", "sender", sender.String(), "dest", dest.String())

	m.activeConnections[conn] = true

	oFind, oIdx := rules.FindRule(m.observedRules, sender, dest)
	pFind, pIdx := rules.FindRule(m.profileRules, sender, dest)

	removeObsRule := false
	addNewObsRule := false

	switch oFind {
	case rules.NoRule:
		if pFind == rules.ConnectRule {
			m.log.Info("    already have a profile rule", "rule", m.profileRules[pIdx].String())
		} else {
			addNewObsRule = true
		}

	case rules.ConnectRule:
		m.log.Info("    already have an observed rule", "rule", m.observedRules[oIdx].String())
		if pFind == rules.ConnectRule {
			m.log.Info("    removing, as also have a profile rule", "rule", m.profileRules[pIdx].String())
			removeObsRule = true
		}

	case rules.DisallowRule:
		m.log.Info("    removing observed disallow rule", "rule", m.observedRules[oIdx].String())
		removeObsRule = true
		switch pFind {
		case rules.NoRule:
			m.log.Info("    no expected profile rule found")
			addNewObsRule = true
		case rules.ConnectRule:
		case rules.DisallowRule:
			m.log.Info("    also have a profile disallow rule", "rule", m.profileRules[pIdx].String())
			addNewObsRule = true
		}
	}

	if removeObsRule {
		m.removeObservedAt(oIdx)
	}

	if addNewObsRule {
		c := rules.Exact(sender, dest)
		m.observedRules = append(m.observedRules, c)
		m.log.Info("    adding observed rule", "rule", c.String())
	}

	if removeObsRule || addNewObsRule {
		m.saveObserved()
	}
	m.updateGauges()
}

// delConnection handles an observed unsubscription.
func (m *Minder) delConnection(conn seq.Connect) {
	if !m.activeConnections[conn] {
		// don't know anything about this connection
		return
	}
	delete(m.activeConnections, conn)

	sender := m.knownPort(conn.Sender)
	dest := m.knownPort(conn.Dest)
	if !sender.Valid || !dest.Valid {
		return
	}

	m.log.Info("observed disconnection", "sender", sender.String(), "dest", dest.String())

	oFind, oIdx := rules.FindRule(m.observedRules, sender, dest)
	pFind, pIdx := rules.FindRule(m.profileRules, sender, dest)

	removeObsRule := false
	addNewObsRule := false

	switch oFind {
	case rules.NoRule:
		switch pFind {
		case rules.NoRule:
			m.log.Info("    no rules found, doing nothing")
		case rules.ConnectRule:
			addNewObsRule = true
		case rules.DisallowRule:
			m.log.Info("    already have a profile rule", "rule", m.profileRules[pIdx].String())
		}

	case rules.ConnectRule:
		m.log.Info("    removing observed rule", "rule", m.observedRules[oIdx].String())
		removeObsRule = true
		if pFind == rules.ConnectRule {
			m.log.Info("    also have a profile rule", "rule", m.profileRules[pIdx].String())
			addNewObsRule = true
		}

	case rules.DisallowRule:
		m.log.Info("    already have an observed rule", "rule", m.observedRules[oIdx].String())
		switch pFind {
		case rules.NoRule:
			m.log.Info("    but no profile rule, so removing")
			removeObsRule = true
		case rules.ConnectRule:
		case rules.DisallowRule:
			m.log.Info("    removing, as also have a profile rule", "rule", m.profileRules[pIdx].String())
			removeObsRule = true
		}
	}

	if removeObsRule {
		m.removeObservedAt(oIdx)
	}

	if addNewObsRule {
		c := rules.ExactBlock(sender, dest)
		m.observedRules = append(m.observedRules, c)
		m.log.Info("    adding observed rule", "rule", c.String())
	}

	if removeObsRule || addNewObsRule {
		m.saveObserved()
	}
	m.updateGauges()
}
