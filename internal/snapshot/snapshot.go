// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package snapshot captures a read-only picture of the kernel graph:
// every managed port and every subscription between managed ports. The
// list and view front ends render from it.
package snapshot

import (
	"sort"

	"grimm.is/midimind/internal/seq"
)

// Client is one live client in the graph.
type Client struct {
	ID      uint8
	Name    string
	Details string
}

// Connection is one subscription between two resolved ports.
type Connection struct {
	Sender seq.Address
	Dest   seq.Address
}

// Snapshot holds one refreshable picture of the graph.
type Snapshot struct {
	sq seq.Sequencer

	Clients     []Client
	Ports       []seq.Address
	Connections []Connection

	ClientWidth int
	PortWidth   int
}

// New begins the sequencer and takes a first picture.
func New(sq seq.Sequencer) (*Snapshot, error) {
	if err := sq.Begin(); err != nil {
		return nil, err
	}
	s := &Snapshot{sq: sq}
	s.Refresh()
	return s, nil
}

// Close releases the sequencer handle.
func (s *Snapshot) Close() { s.sq.End() }

// Sequencer exposes the underlying gateway, so a viewer can poll its
// descriptors for change announcements.
func (s *Snapshot) Sequencer() seq.Sequencer { return s.sq }

// Refresh re-enumerates the graph.
func (s *Snapshot) Refresh() {
	s.Clients = s.Clients[:0]
	s.sq.ScanClients(func(c uint8) {
		s.Clients = append(s.Clients, Client{
			ID:      c,
			Name:    s.sq.ClientName(c),
			Details: s.sq.ClientDetails(c),
		})
	})

	addrMap := make(map[seq.Addr]seq.Address)

	s.Ports = s.Ports[:0]
	s.sq.ScanPorts(func(p seq.Addr) {
		a := s.sq.Address(p)
		if !a.Valid {
			return
		}
		addrMap[p] = a
		s.Ports = append(s.Ports, a)
	})
	sort.Slice(s.Ports, func(i, j int) bool { return s.Ports[i].Addr.Less(s.Ports[j].Addr) })

	s.Connections = s.Connections[:0]
	s.sq.ScanConnections(func(c seq.Connect) {
		sender, ok1 := addrMap[c.Sender]
		dest, ok2 := addrMap[c.Dest]
		if ok1 && ok2 {
			s.Connections = append(s.Connections, Connection{Sender: sender, Dest: dest})
		}
	})

	s.ClientWidth = 0
	s.PortWidth = 0
	for _, p := range s.Ports {
		if len(p.Client) > s.ClientWidth {
			s.ClientWidth = len(p.Client)
		}
		if len(p.Port) > s.PortWidth {
			s.PortWidth = len(p.Port)
		}
	}
}

// DirStr renders a port's subscription directions for listings.
func DirStr(sender, dest bool) string {
	switch {
	case sender && dest:
		return "<->"
	case sender:
		return "-->"
	case dest:
		return "<--"
	default:
		return "   "
	}
}

// AddressDirStr renders the directions an address supports.
func AddressDirStr(a seq.Address) string {
	return DirStr(a.CanBeSender(), a.CanBeDest())
}
