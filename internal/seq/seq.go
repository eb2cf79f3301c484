// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package seq provides an abstraction over the kernel's MIDI sequencer
// subsystem. On Linux, it wraps the raw sequencer device. In simulation
// mode, it provides a stateful in-memory implementation for tests.
package seq

import (
	"fmt"
	"strings"
)

// Port capability bits, as reported by the kernel.
const (
	CapRead      = 1 << 0
	CapWrite     = 1 << 1
	CapSyncRead  = 1 << 2
	CapSyncWrite = 1 << 3
	CapDuplex    = 1 << 4
	CapSubsRead  = 1 << 5
	CapSubsWrite = 1 << 6
	CapNoExport  = 1 << 7
)

// Port type bits, as reported by the kernel.
const (
	TypeSpecific     = 1 << 0
	TypeMidiGeneric  = 1 << 1
	TypeMidiGM       = 1 << 2
	TypeMidiGS       = 1 << 3
	TypeMidiXG       = 1 << 4
	TypeMidiMT32     = 1 << 5
	TypeMidiGM2      = 1 << 6
	TypeSynth        = 1 << 10
	TypeDirectSample = 1 << 11
	TypeSample       = 1 << 12
	TypeHardware     = 1 << 16
	TypeSoftware     = 1 << 17
	TypeSynthesizer  = 1 << 18
	TypePort         = 1 << 19
	TypeApplication  = 1 << 20
)

// The system client owns the announce port; its ports are never managed.
const (
	SystemClient       = 0
	SystemAnnouncePort = 1
)

// Addr is a numeric port handle: a client id and a port id.
type Addr struct {
	Client uint8
	Port   uint8
}

func (a Addr) String() string {
	return fmt.Sprintf("%d:%d", a.Client, a.Port)
}

// Less orders addresses by client, then port.
func (a Addr) Less(b Addr) bool {
	if a.Client != b.Client {
		return a.Client < b.Client
	}
	return a.Port < b.Port
}

// Connect is an ordered pair of port addresses along which events flow.
type Connect struct {
	Sender Addr
	Dest   Addr
}

func (c Connect) String() string {
	return fmt.Sprintf("%s --> %s", c.Sender, c.Dest)
}

// Less orders connections by sender, then dest.
func (c Connect) Less(d Connect) bool {
	if c.Sender != d.Sender {
		return c.Sender.Less(d.Sender)
	}
	return c.Dest.Less(d.Dest)
}

// Address is a valid handle to a live port: the numeric pair plus the
// names and bits needed for rule matching. The zero value is the null
// address.
type Address struct {
	Valid bool
	Addr  Addr
	Caps  uint32
	Types uint32

	Client   string
	Port     string // short form, trimmed
	PortLong string // as reported by the kernel

	PrimarySender bool
	PrimaryDest   bool
}

// CanBeSender reports whether the port can be the sending end of a
// subscription.
func (a Address) CanBeSender() bool { return a.Valid && a.Caps&CapSubsRead != 0 }

// CanBeDest reports whether the port can be the receiving end of a
// subscription.
func (a Address) CanBeDest() bool { return a.Valid && a.Caps&CapSubsWrite != 0 }

// Matches reports whether this address refers to the given numeric pair.
func (a Address) Matches(n Addr) bool { return a.Valid && a.Addr == n }

func (a Address) String() string {
	if !a.Valid {
		return "--:--"
	}
	primary := ""
	if a.PrimarySender || a.PrimaryDest {
		primary = "+"
	}
	return fmt.Sprintf("%s:%s [%s]%s", a.Client, a.Port, a.Addr, primary)
}

// CapsString renders the capability bits for detail listings.
func (a Address) CapsString() string {
	var parts []string
	caps := []struct {
		bit  uint32
		name string
	}{
		{CapRead, "read"},
		{CapWrite, "write"},
		{CapSyncRead, "sync read"},
		{CapSyncWrite, "sync write"},
		{CapDuplex, "duplex"},
		{CapSubsRead, "subs read"},
		{CapSubsWrite, "subs write"},
		{CapNoExport, "no export"},
	}
	for _, c := range caps {
		if a.Caps&c.bit != 0 {
			parts = append(parts, c.name)
		}
	}
	return strings.Join(parts, ", ")
}

// TypesString renders the type bits for detail listings.
func (a Address) TypesString() string {
	var parts []string
	types := []struct {
		bit  uint32
		name string
	}{
		{TypeSpecific, "specific"},
		{TypeMidiGeneric, "midi generic"},
		{TypeMidiGM, "midi gm"},
		{TypeMidiGS, "midi gs"},
		{TypeMidiXG, "midi xg"},
		{TypeMidiMT32, "midi mt32"},
		{TypeMidiGM2, "midi gm2"},
		{TypeSynth, "synth"},
		{TypeDirectSample, "direct sample"},
		{TypeSample, "sample"},
		{TypeHardware, "hardware"},
		{TypeSoftware, "software"},
		{TypeSynthesizer, "synthesizer"},
		{TypePort, "port"},
		{TypeApplication, "application"},
	}
	for _, t := range types {
		if a.Types&t.bit != 0 {
			parts = append(parts, t.name)
		}
	}
	return strings.Join(parts, ", ")
}

// newAddress builds an Address from raw kernel data, trimming the port
// name: leading whitespace, underscores, and leading copies of the client
// name are removed, as many hardware drivers repeat the client name in
// every port name. The untrimmed form is kept in PortLong.
func newAddress(addr Addr, caps, types uint32, client, port string) Address {
	a := Address{
		Valid:    true,
		Addr:     addr,
		Caps:     caps,
		Types:    types,
		Client:   client,
		Port:     port,
		PortLong: port,
	}

	const cutset = " _"
	trimmed := port
	for {
		if len(trimmed) > 0 && strings.ContainsAny(trimmed[:1], cutset) {
			trimmed = trimmed[1:]
			continue
		}
		// not >= as we want there to be something left
		if len(trimmed) > len(client) && strings.HasPrefix(trimmed, client) {
			trimmed = trimmed[len(client):]
			continue
		}
		break
	}
	trimmed = strings.TrimRight(trimmed, cutset)

	if len(trimmed) > 0 {
		a.Port = trimmed
	}
	return a
}

// Event types delivered on the announce port.
type EventType int

const (
	EventClientStart EventType = iota + 60
	EventClientExit
	EventClientChange
	EventPortStart
	EventPortExit
	EventPortChange
	EventPortSubscribed
	EventPortUnsubscribed
)

func (t EventType) String() string {
	switch t {
	case EventClientStart:
		return "CLIENT_START"
	case EventClientExit:
		return "CLIENT_EXIT"
	case EventClientChange:
		return "CLIENT_CHANGE"
	case EventPortStart:
		return "PORT_START"
	case EventPortExit:
		return "PORT_EXIT"
	case EventPortChange:
		return "PORT_CHANGE"
	case EventPortSubscribed:
		return "PORT_SUBSCRIBED"
	case EventPortUnsubscribed:
		return "PORT_UNSUBSCRIBED"
	default:
		return fmt.Sprintf("EVENT(%d)", int(t))
	}
}

// Event is one announcement from the kernel. Addr is set for client and
// port events; Conn for subscription events.
type Event struct {
	Type EventType
	Addr Addr
	Conn Connect
}

func (e Event) String() string {
	switch e.Type {
	case EventPortSubscribed, EventPortUnsubscribed:
		return fmt.Sprintf("%s %s", e.Type, e.Conn)
	default:
		return fmt.Sprintf("%s %s", e.Type, e.Addr)
	}
}

// Sequencer abstracts the kernel sequencer subsystem. Components interact
// with this interface instead of the raw device; the daemon uses the Linux
// provider, tests use the simulator.
type Sequencer interface {
	// Begin opens a duplex client handle, names it, creates the internal
	// announce-watching port, and subscribes it to the system announce port.
	Begin() error
	// End releases the handle. Safe to call when not begun.
	End()

	// ClientName returns the client's name, or "" for the system client or
	// a client that has already exited.
	ClientName(client uint8) string
	// ClientDetails returns a short description of the client for listings.
	ClientDetails(client uint8) string

	// Address resolves a numeric pair to a full Address. The zero Address
	// is returned when the port does not exist, is unexported, or has no
	// subscription capability.
	Address(addr Addr) Address

	// ScanClients enumerates live clients, excluding the system client.
	ScanClients(fn func(client uint8))
	// ScanPorts enumerates live ports in ascending (client, port) order.
	ScanPorts(fn func(Addr))
	// ScanConnections enumerates live subscriptions.
	ScanConnections(fn func(Connect))

	// EventInput dequeues one pending announcement event. ok is false when
	// the queue is empty.
	EventInput() (ev Event, ok bool)

	// Connect subscribes dest to sender. "Already subscribed" is not an
	// error.
	Connect(sender, dest Addr) error
	// Disconnect removes a subscription. "Not subscribed" is not an error.
	Disconnect(conn Connect) error

	// ScanFDs invokes fn once per file descriptor to add to the poll set.
	ScanFDs(fn func(fd int))
}
