// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package seq

import (
	"fmt"
	"sort"
	"sync"
)

// SimSeq is a stateful in-memory sequencer used by tests and the replay
// tooling. It maintains client, port, and subscription tables and queues
// announcement events the way the kernel does, including echoing the
// daemon's own subscribe/unsubscribe calls back as events.
type SimSeq struct {
	mu sync.Mutex

	begun   bool
	clients map[uint8]*simClient
	ports   map[Addr]*simPort
	subs    map[Connect]bool
	queue   []Event

	// Calls records each kernel call made through the Sequencer interface,
	// in order, for assertions on call sequences.
	Calls []string
}

type simClient struct {
	name    string
	details string
}

type simPort struct {
	name  string
	caps  uint32
	types uint32
}

// NewSimSeq creates an empty simulator.
func NewSimSeq() *SimSeq {
	return &SimSeq{
		clients: make(map[uint8]*simClient),
		ports:   make(map[Addr]*simPort),
		subs:    make(map[Connect]bool),
	}
}

// AddClient installs a client. Details is the descriptive string returned
// by ClientDetails.
func (s *SimSeq) AddClient(id uint8, name, details string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clients[id] = &simClient{name: name, details: details}
	s.emit(Event{Type: EventClientStart, Addr: Addr{Client: id}})
}

// RenameClient changes a client's name without emitting any event, the
// way clients that rename themselves after creation appear.
func (s *SimSeq) RenameClient(id uint8, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.clients[id]; ok {
		c.name = name
	}
}

// AddPort installs a port and queues its PORT_START announcement.
func (s *SimSeq) AddPort(addr Addr, name string, caps, types uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ports[addr] = &simPort{name: name, caps: caps, types: types}
	s.emit(Event{Type: EventPortStart, Addr: addr})
}

// DelPort removes a port, dropping its subscriptions the way the kernel
// does: one UNSUBSCRIBED event per dead subscription, then PORT_EXIT.
func (s *SimSeq) DelPort(addr Addr) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ports[addr]; !ok {
		return
	}
	for c := range s.subs {
		if c.Sender == addr || c.Dest == addr {
			delete(s.subs, c)
			s.emit(Event{Type: EventPortUnsubscribed, Conn: c})
		}
	}
	delete(s.ports, addr)
	s.emit(Event{Type: EventPortExit, Addr: addr})
}

// UserSubscribe simulates a subscription made by another client (user
// intent, not the daemon's own action).
func (s *SimSeq) UserSubscribe(c Connect) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subs[c] = true
	s.emit(Event{Type: EventPortSubscribed, Conn: c})
}

// UserUnsubscribe simulates an unsubscription made by another client.
func (s *SimSeq) UserUnsubscribe(c Connect) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.subs, c)
	s.emit(Event{Type: EventPortUnsubscribed, Conn: c})
}

// emit queues an announcement. Nothing is delivered before Begin: the
// watch port that receives announcements does not exist yet.
func (s *SimSeq) emit(ev Event) {
	if s.begun {
		s.queue = append(s.queue, ev)
	}
}

// Subscribed reports whether the subscription currently exists.
func (s *SimSeq) Subscribed(c Connect) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subs[c]
}

// Begin implements Sequencer.
func (s *SimSeq) Begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.begun = true
	return nil
}

// End implements Sequencer.
func (s *SimSeq) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.begun = false
}

// ClientName implements Sequencer.
func (s *SimSeq) ClientName(client uint8) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if client == SystemClient {
		return ""
	}
	if c, ok := s.clients[client]; ok {
		return c.name
	}
	return ""
}

// ClientDetails implements Sequencer.
func (s *SimSeq) ClientDetails(client uint8) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.clients[client]; ok {
		return c.details
	}
	return "???"
}

// Address implements Sequencer.
func (s *SimSeq) Address(addr Addr) Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address(addr)
}

func (s *SimSeq) address(addr Addr) Address {
	if addr.Client == SystemClient {
		return Address{}
	}
	c, ok := s.clients[addr.Client]
	if !ok {
		return Address{}
	}
	p, ok := s.ports[addr]
	if !ok {
		return Address{}
	}
	if p.caps&CapNoExport != 0 {
		return Address{}
	}
	if p.caps&(CapSubsRead|CapSubsWrite) == 0 {
		return Address{}
	}
	return newAddress(addr, p.caps, p.types, c.name, p.name)
}

// ScanClients implements Sequencer.
func (s *SimSeq) ScanClients(fn func(uint8)) {
	s.mu.Lock()
	ids := make([]int, 0, len(s.clients))
	for id := range s.clients {
		ids = append(ids, int(id))
	}
	s.mu.Unlock()

	sort.Ints(ids)
	for _, id := range ids {
		if id == SystemClient {
			continue
		}
		fn(uint8(id))
	}
}

// ScanPorts implements Sequencer. Ports are delivered in ascending
// (client, port) order, which the primary-port calculation relies on.
func (s *SimSeq) ScanPorts(fn func(Addr)) {
	s.mu.Lock()
	addrs := make([]Addr, 0, len(s.ports))
	for a := range s.ports {
		addrs = append(addrs, a)
	}
	s.mu.Unlock()

	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Less(addrs[j]) })
	for _, a := range addrs {
		if a.Client == SystemClient {
			continue
		}
		fn(a)
	}
}

// ScanConnections implements Sequencer.
func (s *SimSeq) ScanConnections(fn func(Connect)) {
	s.mu.Lock()
	conns := make([]Connect, 0, len(s.subs))
	for c := range s.subs {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	sort.Slice(conns, func(i, j int) bool { return conns[i].Less(conns[j]) })
	for _, c := range conns {
		fn(c)
	}
}

// EventInput implements Sequencer.
func (s *SimSeq) EventInput() (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return Event{}, false
	}
	ev := s.queue[0]
	s.queue = s.queue[1:]
	return ev, true
}

// Connect implements Sequencer. The kernel echoes the subscription back
// as a PORT_SUBSCRIBED announcement, which the simulator reproduces.
func (s *SimSeq) Connect(sender, dest Addr) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Calls = append(s.Calls, fmt.Sprintf("subscribe %s --> %s", sender, dest))
	c := Connect{Sender: sender, Dest: dest}
	if s.subs[c] {
		return nil // already subscribed
	}
	s.subs[c] = true
	s.emit(Event{Type: EventPortSubscribed, Conn: c})
	return nil
}

// Disconnect implements Sequencer.
func (s *SimSeq) Disconnect(conn Connect) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Calls = append(s.Calls, fmt.Sprintf("unsubscribe %s", conn))
	if !s.subs[conn] {
		return nil // connection not found
	}
	delete(s.subs, conn)
	s.emit(Event{Type: EventPortUnsubscribed, Conn: conn})
	return nil
}

// ScanFDs implements Sequencer. The simulator has no descriptors.
func (s *SimSeq) ScanFDs(fn func(int)) {}
