// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package minder is the daemon core: it owns the port map, the active
// connection set, the two rule lists, and the expected-event filters,
// and drives the event loop that keeps the kernel graph wired the way
// the rules say it should be.
package minder

import (
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"grimm.is/midimind/internal/ctl"
	"grimm.is/midimind/internal/engine"
	"grimm.is/midimind/internal/errors"
	"grimm.is/midimind/internal/logging"
	"grimm.is/midimind/internal/metrics"
	"grimm.is/midimind/internal/rules"
	"grimm.is/midimind/internal/seq"
	"grimm.is/midimind/internal/store"
)

// clientRenameNap is how long to wait for a client that still carries
// its kernel-assigned name to finish renaming itself.
const clientRenameNap = 100 * time.Millisecond

// Options configures a Minder.
type Options struct {
	Seq     seq.Sequencer
	Store   *store.Store
	Metrics *metrics.Registry

	// SafeMode starts the session with the observed rule list ignored.
	SafeMode bool
	// PortDetails dumps capability and type details for each reviewed port.
	PortDetails bool
}

// Minder owns all daemon state. Every mutation happens on the event
// loop; nothing here is safe for concurrent use.
type Minder struct {
	seq     seq.Sequencer
	store   *store.Store
	metrics *metrics.Registry
	server  *ctl.Server
	log     *logging.Logger

	profileText  string
	profileRules rules.ConnectionRules

	observedText  string
	observedRules rules.ConnectionRules

	activePorts       engine.PortMap
	activeConnections map[seq.Connect]bool

	// Single-shot filters: entries are inserted immediately before the
	// daemon asks the kernel for a (un)subscribe and consumed by the
	// first matching announcement, so the daemon does not interpret its
	// own actions as user intent.
	expectedConnects    map[seq.Connect]int
	expectedDisconnects map[seq.Connect]int

	caughtSignal atomic.Int32

	safeMode    bool
	portDetails bool

	// nap is replaceable so tests do not sleep.
	nap func(time.Duration)
}

// New builds a Minder. The sequencer must not yet be begun.
func New(opts Options) *Minder {
	m := &Minder{
		seq:                 opts.Seq,
		store:               opts.Store,
		metrics:             opts.Metrics,
		log:                 logging.WithComponent("minder"),
		activePorts:         make(engine.PortMap),
		activeConnections:   make(map[seq.Connect]bool),
		expectedConnects:    make(map[seq.Connect]int),
		expectedDisconnects: make(map[seq.Connect]int),
		safeMode:            opts.SafeMode,
		portDetails:         opts.PortDetails,
		nap:                 time.Sleep,
	}
	return m
}

// readRules loads one rules file. A missing file is not an error; parse
// failures are.
func (m *Minder) readRules(path string) (string, rules.ConnectionRules, error) {
	exists, err := store.FileExists(path)
	if err != nil {
		return "", nil, err
	}
	if !exists {
		m.log.Info("rules file doesn't exist, no rules read", "path", path)
		return "", nil, nil
	}

	contents, err := store.ReadFile(path)
	if err != nil {
		return "", nil, err
	}

	rs, errs := rules.Parse(contents)
	if len(errs) > 0 {
		for _, e := range errs {
			m.log.Error("rules parse error", "path", path, "err", e)
		}
		return "", nil, errors.Errorf(errors.KindValidation, "parse error reading rules file %s", path)
	}

	m.log.Info("rules file read", "path", path, "rules", len(rs))
	for _, r := range rs {
		m.log.Debug("    rule", "rule", r.String())
	}
	return contents, rs, nil
}

// Start loads both rule files and performs the initial hard reset. It is
// separate from Run so tests can drive the core without a poll loop.
func (m *Minder) Start() error {
	if err := m.seq.Begin(); err != nil {
		return err
	}

	var err error
	m.profileText, m.profileRules, err = m.readRules(m.store.ProfileFilePath())
	if err != nil {
		return err
	}

	if m.safeMode {
		m.log.Warn("safe mode: observed rules ignored for this session")
	} else {
		m.observedText, m.observedRules, err = m.readRules(m.store.ObservedFilePath())
		if err != nil {
			return err
		}
	}

	m.resetConnectionsHard()
	m.updateGauges()
	return nil
}

// Run starts the daemon and blocks in the event loop until a fatal
// signal arrives or something unrecoverable happens.
func (m *Minder) Run() error {
	if err := m.Start(); err != nil {
		return err
	}
	defer m.seq.End()

	server, err := ctl.NewServer(m.store.ControlSocketPath())
	if err != nil {
		return err
	}
	m.server = server
	defer server.Close()

	// Signals land on a channel; the handler records the signal and
	// wakes the poll through a self-pipe. A second INT or TERM gets the
	// default disposition, so it aborts.
	var pipeFDs [2]int
	if err := unix.Pipe2(pipeFDs[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return errors.Wrap(err, errors.KindInternal, "couldn't create signal pipe")
	}
	defer unix.Close(pipeFDs[0])
	defer unix.Close(pipeFDs[1])

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for s := range sigCh {
			m.caughtSignal.Store(int32(s.(syscall.Signal)))
			if s != syscall.SIGHUP {
				signal.Reset(s)
			}
			unix.Write(pipeFDs[1], []byte{0})
		}
	}()

	const (
		fdSourceSeq = iota
		fdSourceServer
		fdSourceSignal
	)

	var pollFDs []unix.PollFd
	var pollSrc []int
	addFD := func(src int) func(int) {
		return func(fd int) {
			pollFDs = append(pollFDs, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN | unix.POLLERR})
			pollSrc = append(pollSrc, src)
		}
	}
	m.seq.ScanFDs(addFD(fdSourceSeq))
	server.ScanFDs(addFD(fdSourceServer))
	addFD(fdSourceSignal)(pipeFDs[0])

	m.log.Info("daemon is running")

	for {
		switch sig := syscall.Signal(m.caughtSignal.Load()); sig {
		case 0:
		case syscall.SIGHUP:
			m.caughtSignal.Store(0)
			m.log.Info("reset requested by signal", "signal", sig)
			m.resetConnectionsHard()
			m.updateGauges()
		default:
			return errors.Errorf(errors.KindInternal, "interrupted by signal %v", sig)
		}

		n, err := unix.Poll(pollFDs, -1)
		if err == unix.EINTR {
			continue // this was a signal
		}
		if err != nil {
			return errors.Wrap(err, errors.KindInternal, "poll failed")
		}
		if n == 0 {
			continue
		}

		for i := range pollFDs {
			if pollFDs[i].Revents&(unix.POLLIN|unix.POLLERR) == 0 {
				continue
			}
			switch pollSrc[i] {
			case fdSourceSeq:
				m.DrainSeqEvents()
			case fdSourceServer:
				m.handleConnection()
			case fdSourceSignal:
				var drain [16]byte
				unix.Read(pipeFDs[0], drain[:])
			}
			pollFDs[i].Revents = 0
		}
	}
}

// DrainSeqEvents handles every pending announcement.
func (m *Minder) DrainSeqEvents() {
	for {
		ev, ok := m.seq.EventInput()
		if !ok {
			return
		}
		m.handleSeqEvent(ev)
	}
}

func (m *Minder) updateGauges() {
	if m.metrics == nil {
		return
	}
	m.metrics.ActivePorts.Set(float64(len(m.activePorts)))
	m.metrics.ActiveConnections.Set(float64(len(m.activeConnections)))
	m.metrics.ProfileRules.Set(float64(len(m.profileRules)))
	m.metrics.ObservedRules.Set(float64(len(m.observedRules)))
}

// Snapshot support for the status command and tests.

// Counts reports the sizes of the core state sets.
func (m *Minder) Counts() (profile, observed, ports, connections int) {
	return len(m.profileRules), len(m.observedRules), len(m.activePorts), len(m.activeConnections)
}

// ObservedRules returns the current observed rule list.
func (m *Minder) ObservedRules() rules.ConnectionRules { return m.observedRules }

// ProfileRules returns the current profile rule list.
func (m *Minder) ProfileRules() rules.ConnectionRules { return m.profileRules }

// ConnectionActive reports whether the daemon believes the connection is
// subscribed.
func (m *Minder) ConnectionActive(c seq.Connect) bool { return m.activeConnections[c] }
