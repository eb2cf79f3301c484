// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux

package seq

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Raw ABI of the kernel sequencer device, mirrored from the uapi sound
// headers. Struct layouts must match the kernel byte for byte, including
// padding, as they are passed to ioctl directly.

const seqDevice = "/dev/snd/seq"

type clientInfo struct {
	Client          int32
	Type            int32
	Name            [64]byte
	Filter          uint32
	MulticastFilter [8]byte
	EventFilter     [32]byte
	NumPorts        int32
	EventLost       int32
	Card            int32
	Pid             int32
	Reserved        [56]byte
}

type portInfo struct {
	Addr         rawAddr
	Name         [64]byte
	_            [2]byte
	Capability   uint32
	Type         uint32
	MidiChannels int32
	MidiVoices   int32
	SynthVoices  int32
	ReadUse      int32
	WriteUse     int32
	Kernel       uint64
	Flags        uint32
	TimeQueue    uint8
	Reserved     [59]byte
}

type portSubscribe struct {
	Sender   rawAddr
	Dest     rawAddr
	Voices   uint32
	Flags    uint32
	Queue    uint8
	Pad      [3]byte
	Reserved [64]byte
}

type querySubs struct {
	Root     rawAddr
	_        [2]byte
	Type     int32
	Index    int32
	NumSubs  int32
	Addr     rawAddr
	Queue    uint8
	_        [1]byte
	Flags    uint32
	Reserved [64]byte
}

type rawAddr struct {
	Client uint8
	Port   uint8
}

// Fixed-size event cell as read from the device. Variable-length events
// carry their payload in following cells.
const eventSize = 28

const (
	querySubsRead  = 0
	querySubsWrite = 1
)

const (
	eventLengthVariable = 1 << 2
	eventLengthVarUsr   = 2 << 2
	eventLengthMask     = 3 << 2
)

// ioctl request encoding, 'S' is the sequencer ioctl type.
const (
	iocWrite = 1
	iocRead  = 2
)

func seqIoc(dir, nr, size uintptr) uintptr {
	return dir<<30 | size<<16 | 'S'<<8 | nr
}

var (
	ioctlClientID        = seqIoc(iocRead, 0x01, unsafe.Sizeof(int32(0)))
	ioctlGetClientInfo   = seqIoc(iocRead|iocWrite, 0x10, unsafe.Sizeof(clientInfo{}))
	ioctlSetClientInfo   = seqIoc(iocWrite, 0x11, unsafe.Sizeof(clientInfo{}))
	ioctlCreatePort      = seqIoc(iocRead|iocWrite, 0x20, unsafe.Sizeof(portInfo{}))
	ioctlDeletePort      = seqIoc(iocWrite, 0x21, unsafe.Sizeof(portInfo{}))
	ioctlGetPortInfo     = seqIoc(iocRead|iocWrite, 0x22, unsafe.Sizeof(portInfo{}))
	ioctlSubscribePort   = seqIoc(iocWrite, 0x30, unsafe.Sizeof(portSubscribe{}))
	ioctlUnsubscribePort = seqIoc(iocWrite, 0x31, unsafe.Sizeof(portSubscribe{}))
	ioctlQueryNextClient = seqIoc(iocRead|iocWrite, 0x51, unsafe.Sizeof(clientInfo{}))
	ioctlQueryNextPort   = seqIoc(iocRead|iocWrite, 0x52, unsafe.Sizeof(portInfo{}))
	ioctlQuerySubs       = seqIoc(iocRead|iocWrite, 0x53, unsafe.Sizeof(querySubs{}))
)

func ioctl(fd int, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func setCString(dst []byte, s string) {
	n := copy(dst, s)
	if n == len(dst) {
		n--
	}
	dst[n] = 0
}
