// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux

package seq

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"grimm.is/midimind/internal/errors"
	"grimm.is/midimind/internal/logging"
)

const clientNameDefault = "midimind"
const watchPortName = "panopticon"

// AlsaSeq is the Linux provider: a thin typed wrapper over the kernel
// sequencer device. Only this type touches the device; everything else
// goes through the Sequencer interface.
type AlsaSeq struct {
	fd       int
	client   uint8
	port     uint8
	portOpen bool
	log      *logging.Logger

	pending []Event
}

// NewAlsaSeq returns an unopened gateway. Call Begin before use.
func NewAlsaSeq() *AlsaSeq {
	return &AlsaSeq{fd: -1, log: logging.WithComponent("seq")}
}

// Begin implements Sequencer. It opens the device, names the client,
// creates the internal watch port, and subscribes it to the system
// announce port.
func (s *AlsaSeq) Begin() error {
	if s.fd >= 0 {
		return nil
	}

	fd, err := unix.Open(seqDevice, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return errors.Wrapf(err, errors.KindSequencer, "open sequencer %s", seqDevice)
	}
	s.fd = fd

	var id int32
	if err := ioctl(s.fd, ioctlClientID, unsafe.Pointer(&id)); err != nil {
		s.End()
		return errors.Wrap(err, errors.KindSequencer, "client id")
	}
	s.client = uint8(id)

	var ci clientInfo
	ci.Client = id
	if err := ioctl(s.fd, ioctlGetClientInfo, unsafe.Pointer(&ci)); err != nil {
		s.End()
		return errors.Wrap(err, errors.KindSequencer, "get client info")
	}
	setCString(ci.Name[:], clientNameDefault)
	if err := ioctl(s.fd, ioctlSetClientInfo, unsafe.Pointer(&ci)); err != nil {
		s.End()
		return errors.Wrap(err, errors.KindSequencer, "name sequencer")
	}

	var pi portInfo
	pi.Addr = rawAddr{Client: s.client}
	setCString(pi.Name[:], watchPortName)
	pi.Capability = CapWrite | CapNoExport
	pi.Type = TypeApplication
	if err := ioctl(s.fd, ioctlCreatePort, unsafe.Pointer(&pi)); err != nil {
		s.End()
		return errors.Wrap(err, errors.KindSequencer, "create event port")
	}
	s.port = pi.Addr.Port
	s.portOpen = true

	var sub portSubscribe
	sub.Sender = rawAddr{Client: SystemClient, Port: SystemAnnouncePort}
	sub.Dest = rawAddr{Client: s.client, Port: s.port}
	if err := ioctl(s.fd, ioctlSubscribePort, unsafe.Pointer(&sub)); err != nil {
		s.End()
		return errors.Wrap(err, errors.KindSequencer, "connect to system announce port")
	}

	return nil
}

// End implements Sequencer.
func (s *AlsaSeq) End() {
	if s.fd < 0 {
		return
	}

	if s.portOpen {
		var pi portInfo
		pi.Addr = rawAddr{Client: s.client, Port: s.port}
		if err := ioctl(s.fd, ioctlDeletePort, unsafe.Pointer(&pi)); err != nil {
			s.errCheck(err, "delete event port")
		}
		s.portOpen = false
	}

	fd := s.fd
	s.fd = -1
	unix.Close(fd)
}

// errCheck logs a non-fatal kernel error and reports whether one occurred.
func (s *AlsaSeq) errCheck(err error, op string) bool {
	if err == nil {
		return false
	}
	s.log.Error("sequencer error", "op", op, "err", err)
	return true
}

func (s *AlsaSeq) getClientInfo(client uint8) (clientInfo, error) {
	var ci clientInfo
	ci.Client = int32(client)
	err := ioctl(s.fd, ioctlGetClientInfo, unsafe.Pointer(&ci))
	return ci, err
}

// ClientName implements Sequencer.
func (s *AlsaSeq) ClientName(client uint8) string {
	if client == SystemClient {
		return ""
	}

	ci, err := s.getClientInfo(client)
	if err == unix.ENOENT {
		return "" // client has already exited
	}
	if s.errCheck(err, "get client info") {
		return ""
	}
	return cString(ci.Name[:])
}

// ClientDetails implements Sequencer.
func (s *AlsaSeq) ClientDetails(client uint8) string {
	ci, err := s.getClientInfo(client)
	if s.errCheck(err, "get client info") {
		return "???"
	}

	// Client types per the uapi header: 1 kernel, 2 user.
	switch ci.Type {
	case 1:
		return fmt.Sprintf("kernel(card=%d)", ci.Card)
	case 2:
		return fmt.Sprintf("user(pid=%d)", ci.Pid)
	default:
		return "unknown type"
	}
}

// Address implements Sequencer.
func (s *AlsaSeq) Address(addr Addr) Address {
	if addr.Client == SystemClient {
		return Address{}
	}

	ci, err := s.getClientInfo(addr.Client)
	if err == unix.ENOENT {
		return Address{} // client has already exited
	}
	if s.errCheck(err, "get client info") {
		return Address{}
	}

	var pi portInfo
	pi.Addr = rawAddr{Client: addr.Client, Port: addr.Port}
	if err := ioctl(s.fd, ioctlGetPortInfo, unsafe.Pointer(&pi)); err != nil {
		s.errCheck(err, "get port info")
		return Address{}
	}

	caps := pi.Capability
	if caps&CapNoExport != 0 {
		return Address{}
	}
	if caps&(CapSubsRead|CapSubsWrite) == 0 {
		return Address{}
	}

	return newAddress(addr, caps, pi.Type, cString(ci.Name[:]), cString(pi.Name[:]))
}

// ScanClients implements Sequencer.
func (s *AlsaSeq) ScanClients(fn func(uint8)) {
	var ci clientInfo
	ci.Client = -1
	for ioctl(s.fd, ioctlQueryNextClient, unsafe.Pointer(&ci)) == nil {
		client := uint8(ci.Client)
		if client != SystemClient {
			fn(client)
		}
	}
}

// ScanPorts implements Sequencer. The kernel enumerates each client's
// ports in ascending numeric order; the primary-port computation relies
// on that.
func (s *AlsaSeq) ScanPorts(fn func(Addr)) {
	var ci clientInfo
	ci.Client = -1
	for ioctl(s.fd, ioctlQueryNextClient, unsafe.Pointer(&ci)) == nil {
		client := uint8(ci.Client)
		if client == SystemClient {
			continue
		}

		// QUERY_NEXT_PORT returns the first port numbered at or above the
		// queried port, so the scan starts at 0 and steps past each hit.
		// The kernel walks the port list in ascending numeric order.
		next := 0
		for next <= 255 {
			var pi portInfo
			pi.Addr = rawAddr{Client: client, Port: uint8(next)}
			if err := ioctl(s.fd, ioctlQueryNextPort, unsafe.Pointer(&pi)); err != nil {
				break
			}
			fn(Addr{Client: client, Port: pi.Addr.Port})
			next = int(pi.Addr.Port) + 1
		}
	}
}

// ScanConnections implements Sequencer: for every port, every read
// subscription rooted at it.
func (s *AlsaSeq) ScanConnections(fn func(Connect)) {
	s.ScanPorts(func(a Addr) {
		var q querySubs
		q.Root = rawAddr{Client: a.Client, Port: a.Port}
		q.Type = querySubsRead
		for index := int32(0); ; index++ {
			q.Index = index
			if err := ioctl(s.fd, ioctlQuerySubs, unsafe.Pointer(&q)); err != nil {
				break
			}
			fn(Connect{
				Sender: a,
				Dest:   Addr{Client: q.Addr.Client, Port: q.Addr.Port},
			})
		}
	})
}

// EventInput implements Sequencer. It drains the device into an internal
// queue and returns one event at a time; ok is false when nothing is
// pending.
func (s *AlsaSeq) EventInput() (Event, bool) {
	if len(s.pending) == 0 {
		s.fill()
	}
	if len(s.pending) == 0 {
		return Event{}, false
	}
	ev := s.pending[0]
	s.pending = s.pending[1:]
	return ev, true
}

func (s *AlsaSeq) fill() {
	buf := make([]byte, eventSize*64)
	n, err := unix.Read(s.fd, buf)
	if err != nil {
		if err != unix.EAGAIN && err != unix.EINTR {
			s.errCheck(err, "event input")
		}
		return
	}

	for off := 0; off+eventSize <= n; {
		cell := buf[off : off+eventSize]
		off += eventSize

		typ := EventType(cell[0])
		flags := cell[1]

		// Variable-length payloads occupy following cells; skip them.
		if flags&eventLengthMask == eventLengthVariable {
			length := int(binary.LittleEndian.Uint32(cell[16:20]))
			off += (length + eventSize - 1) / eventSize * eventSize
		}

		switch typ {
		case EventClientStart, EventClientExit, EventClientChange,
			EventPortStart, EventPortExit, EventPortChange:
			s.pending = append(s.pending, Event{
				Type: typ,
				Addr: Addr{Client: cell[16], Port: cell[17]},
			})
		case EventPortSubscribed, EventPortUnsubscribed:
			s.pending = append(s.pending, Event{
				Type: typ,
				Conn: Connect{
					Sender: Addr{Client: cell[16], Port: cell[17]},
					Dest:   Addr{Client: cell[18], Port: cell[19]},
				},
			})
		default:
			// Not an announcement; nothing is routed to the watch port
			// besides announcements, so just note it at debug level.
			s.log.Debug("ignoring sequencer event", "type", int(typ))
		}
	}
}

// Connect implements Sequencer.
func (s *AlsaSeq) Connect(sender, dest Addr) error {
	var sub portSubscribe
	sub.Sender = rawAddr{Client: sender.Client, Port: sender.Port}
	sub.Dest = rawAddr{Client: dest.Client, Port: dest.Port}

	err := ioctl(s.fd, ioctlSubscribePort, unsafe.Pointer(&sub))
	if err == unix.EBUSY {
		return nil // connection is already made
	}
	if err != nil {
		s.errCheck(err, "subscribe")
		return errors.Wrapf(err, errors.KindSequencer, "subscribe %s --> %s", sender, dest)
	}
	return nil
}

// Disconnect implements Sequencer.
func (s *AlsaSeq) Disconnect(conn Connect) error {
	var sub portSubscribe
	sub.Sender = rawAddr{Client: conn.Sender.Client, Port: conn.Sender.Port}
	sub.Dest = rawAddr{Client: conn.Dest.Client, Port: conn.Dest.Port}

	err := ioctl(s.fd, ioctlUnsubscribePort, unsafe.Pointer(&sub))
	if err == unix.ENOENT {
		return nil // connection not found
	}
	if err != nil {
		s.errCheck(err, "unsubscribe")
		return errors.Wrapf(err, errors.KindSequencer, "unsubscribe %s", conn)
	}
	return nil
}

// ScanFDs implements Sequencer.
func (s *AlsaSeq) ScanFDs(fn func(int)) {
	if s.fd >= 0 {
		fn(s.fd)
	}
}
