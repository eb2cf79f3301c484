// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package minder

import (
	"sort"

	"grimm.is/midimind/internal/engine"
	"grimm.is/midimind/internal/seq"
)

// resetConnectionsHard rebuilds ports and connections from scratch,
// rescanning the kernel graph.
func (m *Minder) resetConnectionsHard() {
	if m.metrics != nil {
		m.metrics.Resets.WithLabelValues("hard").Inc()
	}

	// A little afraid to disconnect connections while scanning them.
	// Endpoints resolve through the gateway, not the port map: at
	// startup the map is empty, and manageable connections left over
	// from a previous run still have to be torn down.
	var doomed []seq.Connect
	m.activeConnections = make(map[seq.Connect]bool)
	m.seq.ScanConnections(func(c seq.Connect) {
		sender := m.seq.Address(c.Sender)
		dest := m.seq.Address(c.Dest)
		if sender.Valid && dest.Valid { // a connection we would manage
			doomed = append(doomed, c)
		}
	})
	for _, c := range doomed {
		// Generates UNSUB events that should be ignored.
		m.seq.Disconnect(c)
		m.expectedDisconnects[c]++
		if m.metrics != nil {
			m.metrics.Disconnects.Inc()
		}
	}

	m.activePorts = make(engine.PortMap)
	m.seq.ScanPorts(func(p seq.Addr) {
		m.addPort(p, true)
	})
}

// resetConnectionsSoft rebuilds connections from the cached port set
// without rescanning the kernel graph.
func (m *Minder) resetConnectionsSoft() {
	if m.metrics != nil {
		m.metrics.Resets.WithLabelValues("soft").Inc()
	}

	doomed := m.activeConnections
	m.activeConnections = make(map[seq.Connect]bool)
	for c := range doomed {
		// Generates UNSUB events that should be ignored.
		m.seq.Disconnect(c)
		m.expectedDisconnects[c]++
		if m.metrics != nil {
			m.metrics.Disconnects.Inc()
		}
	}

	ports := m.activePorts
	m.activePorts = make(engine.PortMap)

	// Re-add in ascending (client, port) order, the same order ScanPorts
	// delivers: the primary-port computation gives primacy to the first
	// capability-bearing port it sees, and the lowest-numbered one must
	// win.
	addrs := make([]seq.Addr, 0, len(ports))
	for p := range ports {
		addrs = append(addrs, p)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Less(addrs[j]) })
	for _, p := range addrs {
		// Regenerates the Address through the gateway and re-runs the
		// rule engine.
		m.addPort(p, true)
	}
}
