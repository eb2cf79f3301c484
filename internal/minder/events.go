// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package minder

import (
	"strings"

	"grimm.is/midimind/internal/seq"
)

// handleSeqEvent dispatches one announcement from the kernel.
func (m *Minder) handleSeqEvent(ev seq.Event) {
	m.log.Debug("sequencer event", "event", ev.String())
	if m.metrics != nil {
		m.metrics.SeqEvents.WithLabelValues(ev.Type.String()).Inc()
	}

	switch ev.Type {
	case seq.EventClientStart:
		name := m.seq.ClientName(ev.Addr.Client)
		if strings.HasPrefix(name, "Client-") {
			// The kernel assigns "Client-N" as the name of a new client.
			// Most clients immediately change the name to something more
			// useful before doing anything else. Some applications create
			// their ports first, then set their client name, so the
			// PORT_START may arrive before the final name is set. If the
			// client still carries the kernel-assigned name, nap briefly;
			// it should be updated by the time we're back.
			m.nap(clientRenameNap)
		}
		// Nothing else to do for the client itself; its ports announce
		// themselves.

	case seq.EventClientExit:
		// PORT_EXIT events have already arrived for all its ports, so
		// there is nothing left to do here.

	case seq.EventClientChange, seq.EventPortChange:
		// The kernel is known not to send these reliably. If it did,
		// this would re-resolve names and capabilities.

	case seq.EventPortStart:
		m.addPort(ev.Addr, false)
		m.updateGauges()

	case seq.EventPortExit:
		m.delPort(ev.Addr)
		m.updateGauges()

	case seq.EventPortSubscribed:
		if m.expectedConnects[ev.Conn] > 0 {
			m.consumeExpected(m.expectedConnects, ev.Conn)
			break
		}
		m.addConnection(ev.Conn)

	case seq.EventPortUnsubscribed:
		if m.expectedDisconnects[ev.Conn] > 0 {
			m.consumeExpected(m.expectedDisconnects, ev.Conn)
			break
		}
		m.delConnection(ev.Conn)

	default:
		m.log.Error("unknown sequencer event, ignoring", "type", int(ev.Type))
	}
}

// consumeExpected removes one entry from an expected-event multiset.
func (m *Minder) consumeExpected(set map[seq.Connect]int, c seq.Connect) {
	if set[c] <= 1 {
		delete(set, c)
	} else {
		set[c]--
	}
}
