// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package minder

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/midimind/internal/rules"
	"grimm.is/midimind/internal/seq"
	"grimm.is/midimind/internal/store"
)

var (
	portA = seq.Addr{Client: 150, Port: 0}
	portB = seq.Addr{Client: 200, Port: 0}
	aToB  = seq.Connect{Sender: portA, Dest: portB}
)

// newTestMinder builds a minder over a simulator holding the standard
// two-port fixture: a Controller with an "out" port and a Synthesizer
// with an "in" port, both hardware, no connections.
func newTestMinder(t *testing.T) (*Minder, *seq.SimSeq) {
	t.Helper()
	t.Setenv("STATE_DIRECTORY", t.TempDir())
	t.Setenv("RUNTIME_DIRECTORY", t.TempDir())

	st, err := store.InitializeAsService(store.Options{})
	require.NoError(t, err)

	sim := seq.NewSimSeq()
	sim.AddClient(150, "Controller", "user(pid=100)")
	sim.AddPort(portA, "out", seq.CapSubsRead|seq.CapSubsWrite, seq.TypeHardware)
	sim.AddClient(200, "Synthesizer", "user(pid=200)")
	sim.AddPort(portB, "in", seq.CapSubsRead|seq.CapSubsWrite, seq.TypeHardware)

	m := New(Options{Seq: sim, Store: st})
	m.nap = func(time.Duration) {}

	require.NoError(t, m.Start())
	m.DrainSeqEvents()

	require.Len(t, m.activePorts, 2)
	require.Empty(t, m.activeConnections)
	return m, sim
}

func setRules(t *testing.T, text string) rules.ConnectionRules {
	t.Helper()
	if text == "" {
		return nil
	}
	rs, errs := rules.Parse(text)
	require.Empty(t, errs)
	return rs
}

func observedStrings(m *Minder) []string {
	var out []string
	for _, r := range m.observedRules {
		out = append(out, r.String())
	}
	return out
}

func checkInvariants(t *testing.T, m *Minder) {
	t.Helper()

	// Every active connection endpoint is a known port.
	for c := range m.activeConnections {
		assert.True(t, m.knownPort(c.Sender).Valid, "connection %s has unknown sender", c)
		assert.True(t, m.knownPort(c.Dest).Valid, "connection %s has unknown dest", c)
	}

	// At most one primary per client per direction.
	type counts struct{ senders, dests int }
	perClient := map[uint8]*counts{}
	for a, addr := range m.activePorts {
		c := perClient[a.Client]
		if c == nil {
			c = &counts{}
			perClient[a.Client] = c
		}
		if addr.PrimarySender {
			c.senders++
		}
		if addr.PrimaryDest {
			c.dests++
		}
	}
	for client, c := range perClient {
		assert.LessOrEqual(t, c.senders, 1, "client %d has multiple primary senders", client)
		assert.LessOrEqual(t, c.dests, 1, "client %d has multiple primary dests", client)
	}

	// Expected filters are disjoint at rest.
	for c := range m.expectedConnects {
		_, both := m.expectedDisconnects[c]
		assert.False(t, both, "connection %s expected in both directions", c)
	}

	// The persisted observed file matches the canonical rendering.
	if exists, _ := store.FileExists(m.store.ObservedFilePath()); exists {
		onDisk, err := store.ReadFile(m.store.ObservedFilePath())
		require.NoError(t, err)
		assert.Equal(t, m.observedRules.Render(), onDisk)
	}
}

// Scenario 1: no rules at all; a user subscription is remembered.
func TestObserveSubscribeNoRules(t *testing.T) {
	m, sim := newTestMinder(t)

	sim.UserSubscribe(aToB)
	m.DrainSeqEvents()

	assert.Equal(t,
		[]string{`"Controller":"out" --> "Synthesizer":"in"`},
		observedStrings(m))
	assert.True(t, m.ConnectionActive(aToB))
	checkInvariants(t, m)
}

// Scenario 2: the profile already covers it; nothing is recorded.
func TestObserveSubscribeCoveredByProfile(t *testing.T) {
	m, sim := newTestMinder(t)
	m.profileRules = setRules(t, "Controller --> Synthesizer\n")

	sim.UserSubscribe(aToB)
	m.DrainSeqEvents()

	assert.Empty(t, observedStrings(m))
	assert.True(t, m.ConnectionActive(aToB))
	checkInvariants(t, m)
}

// Scenario 3: the profile blocks it; the user's override is recorded.
func TestObserveSubscribeAgainstProfileBlock(t *testing.T) {
	m, sim := newTestMinder(t)
	m.profileRules = setRules(t, "Controller -x-> Synthesizer\n")

	sim.UserSubscribe(aToB)
	m.DrainSeqEvents()

	assert.Equal(t,
		[]string{`"Controller":"out" --> "Synthesizer":"in"`},
		observedStrings(m))
	checkInvariants(t, m)
}

// Scenario 4: no rules; an unsubscription of an active connection leaves
// nothing behind.
func TestObserveUnsubscribeNoRules(t *testing.T) {
	m, sim := newTestMinder(t)

	sim.UserSubscribe(aToB)
	m.DrainSeqEvents()

	sim.UserUnsubscribe(aToB)
	m.DrainSeqEvents()

	// The observed rule recorded on subscribe is removed on unsubscribe.
	assert.Empty(t, observedStrings(m))
	assert.False(t, m.ConnectionActive(aToB))
	checkInvariants(t, m)
}

// Scenario 5: the profile wants the connection; the user's refusal is
// recorded as an exact block.
func TestObserveUnsubscribeAgainstProfileRule(t *testing.T) {
	m, sim := newTestMinder(t)
	m.profileRules = setRules(t, "Controller --> Synthesizer\n")

	// Make the connection active the way the daemon would have.
	m.activeConnections[aToB] = true
	sim.UserUnsubscribe(aToB)
	m.DrainSeqEvents()

	assert.Equal(t,
		[]string{`"Controller":"out" -x-> "Synthesizer":"in"`},
		observedStrings(m))
	checkInvariants(t, m)
}

// Scenario 6: an observed block exists alongside a profile block; a user
// subscription flips the observed rule to an exact connect.
func TestObserveSubscribeFlipsObservedBlock(t *testing.T) {
	m, sim := newTestMinder(t)
	m.profileRules = setRules(t, "Controller -x-> Synthesizer\n")
	m.observedRules = setRules(t, `"Controller":"out" -x-> "Synthesizer":"in"`+"\n")

	sim.UserSubscribe(aToB)
	m.DrainSeqEvents()

	assert.Equal(t,
		[]string{`"Controller":"out" --> "Synthesizer":"in"`},
		observedStrings(m))
	checkInvariants(t, m)
}

// Scenario 7: load replaces the profile, clears observed, and rewires.
func TestLoadReplacesProfileAndResets(t *testing.T) {
	m, sim := newTestMinder(t)

	// Pre-state: an observed rule and its active connection.
	sim.UserSubscribe(aToB)
	m.DrainSeqEvents()
	require.NotEmpty(t, m.observedRules)

	sim.Calls = nil
	m.loadProfile("Controller --> Synthesizer\n")
	m.DrainSeqEvents()

	assert.Len(t, m.profileRules, 1)
	assert.Empty(t, m.observedRules)

	onDisk, err := store.ReadFile(m.store.ObservedFilePath())
	require.NoError(t, err)
	assert.Empty(t, onDisk)

	profileOnDisk, err := store.ReadFile(m.store.ProfileFilePath())
	require.NoError(t, err)
	assert.Equal(t, "Controller --> Synthesizer\n", profileOnDisk)

	// The old connection was torn down and re-established by the new
	// profile.
	assert.True(t, m.ConnectionActive(aToB))
	require.GreaterOrEqual(t, len(sim.Calls), 2)
	assert.Contains(t, sim.Calls[0], "unsubscribe")
	assert.Contains(t, strings.Join(sim.Calls, "\n"), "subscribe 150:0 --> 200:0")
	checkInvariants(t, m)
}

// Scenario 8: a hard reset tears the managed graph down and rebuilds it,
// without disturbing the observed rules.
func TestHardResetRewires(t *testing.T) {
	m, sim := newTestMinder(t)
	m.profileRules = setRules(t, "Controller --> Synthesizer\n")

	// Arrive the connection via the rule by replaying the port.
	sim.DelPort(portB)
	m.DrainSeqEvents()
	sim.AddPort(portB, "in", seq.CapSubsRead|seq.CapSubsWrite, seq.TypeHardware)
	m.DrainSeqEvents()
	require.True(t, m.ConnectionActive(aToB))

	observedBefore := observedStrings(m)
	sim.Calls = nil

	m.resetConnectionsHard()
	m.DrainSeqEvents()

	assert.True(t, m.ConnectionActive(aToB))
	assert.Equal(t, observedBefore, observedStrings(m))

	joined := strings.Join(sim.Calls, "\n")
	unsubAt := strings.Index(joined, "unsubscribe 150:0 --> 200:0")
	subAt := strings.LastIndex(joined, "subscribe 150:0 --> 200:0")
	assert.GreaterOrEqual(t, unsubAt, 0, "hard reset must unsubscribe the managed connection")
	assert.Greater(t, subAt, unsubAt, "resubscribe must follow the unsubscribe")
	checkInvariants(t, m)
}

// Startup tears down manageable leftovers from a previous run without
// treating the kernel's echoes as user intent.
func TestStartupDisconnectsLeftovers(t *testing.T) {
	t.Setenv("STATE_DIRECTORY", t.TempDir())
	t.Setenv("RUNTIME_DIRECTORY", t.TempDir())
	st, err := store.InitializeAsService(store.Options{})
	require.NoError(t, err)

	sim := seq.NewSimSeq()
	sim.AddClient(150, "Controller", "")
	sim.AddPort(portA, "out", seq.CapSubsRead|seq.CapSubsWrite, seq.TypeHardware)
	sim.AddClient(200, "Synthesizer", "")
	sim.AddPort(portB, "in", seq.CapSubsRead|seq.CapSubsWrite, seq.TypeHardware)
	sim.UserSubscribe(aToB) // wired before the daemon started

	m := New(Options{Seq: sim, Store: st})
	m.nap = func(time.Duration) {}
	require.NoError(t, m.Start())
	m.DrainSeqEvents()

	assert.False(t, sim.Subscribed(aToB), "startup reset must disconnect manageable connections")
	assert.False(t, m.ConnectionActive(aToB))
	assert.Empty(t, observedStrings(m), "the daemon's own teardown must not be observed")
	checkInvariants(t, m)
}

// The daemon's own connects are consumed by the expected filter and do
// not produce observed rules.
func TestOwnActionsAreNotObserved(t *testing.T) {
	m, sim := newTestMinder(t)
	m.profileRules = setRules(t, "Controller --> Synthesizer\n")

	sim.DelPort(portB)
	m.DrainSeqEvents()
	sim.AddPort(portB, "in", seq.CapSubsRead|seq.CapSubsWrite, seq.TypeHardware)
	m.DrainSeqEvents()

	assert.True(t, m.ConnectionActive(aToB))
	assert.Empty(t, observedStrings(m), "rule-driven connects must not become observed rules")
	assert.Empty(t, m.expectedConnects, "the subscribe echo must consume the filter entry")
	checkInvariants(t, m)
}

func TestPortExitDropsConnections(t *testing.T) {
	m, sim := newTestMinder(t)

	sim.UserSubscribe(aToB)
	m.DrainSeqEvents()
	require.True(t, m.ConnectionActive(aToB))

	sim.DelPort(portA)
	m.DrainSeqEvents()

	assert.False(t, m.ConnectionActive(aToB))
	_, _, ports, conns := m.Counts()
	assert.Equal(t, 1, ports)
	assert.Equal(t, 0, conns)
	checkInvariants(t, m)
}

func TestPrimaryPortAssignment(t *testing.T) {
	m, sim := newTestMinder(t)

	sim.AddClient(60, "Piano", "")
	sim.AddPort(seq.Addr{Client: 60, Port: 0}, "a", seq.CapSubsRead|seq.CapSubsWrite, seq.TypeHardware)
	sim.AddPort(seq.Addr{Client: 60, Port: 1}, "b", seq.CapSubsRead|seq.CapSubsWrite, seq.TypeHardware)
	m.DrainSeqEvents()

	first := m.knownPort(seq.Addr{Client: 60, Port: 0})
	second := m.knownPort(seq.Addr{Client: 60, Port: 1})
	assert.True(t, first.PrimarySender)
	assert.True(t, first.PrimaryDest)
	assert.False(t, second.PrimarySender)
	assert.False(t, second.PrimaryDest)
	checkInvariants(t, m)
}

func TestSoftResetKeepsLowestPortPrimary(t *testing.T) {
	m, sim := newTestMinder(t)

	sim.AddClient(60, "Piano", "")
	sim.AddPort(seq.Addr{Client: 60, Port: 0}, "a", seq.CapSubsRead|seq.CapSubsWrite, seq.TypeHardware)
	sim.AddPort(seq.Addr{Client: 60, Port: 1}, "b", seq.CapSubsRead|seq.CapSubsWrite, seq.TypeHardware)
	m.DrainSeqEvents()

	// The cached port set is re-added from a map; the re-add must still
	// happen in ascending order so the lowest-numbered port keeps
	// primacy.
	m.resetConnectionsSoft()
	m.DrainSeqEvents()

	first := m.knownPort(seq.Addr{Client: 60, Port: 0})
	second := m.knownPort(seq.Addr{Client: 60, Port: 1})
	assert.True(t, first.PrimarySender)
	assert.True(t, first.PrimaryDest)
	assert.False(t, second.PrimarySender)
	assert.False(t, second.PrimaryDest)
	checkInvariants(t, m)
}

func TestResetCommandClearsObserved(t *testing.T) {
	m, sim := newTestMinder(t)

	sim.UserSubscribe(aToB)
	m.DrainSeqEvents()
	require.NotEmpty(t, m.observedRules)

	require.NoError(t, m.handleResetCommand(nil))
	m.DrainSeqEvents()

	assert.Empty(t, m.observedRules)
	assert.False(t, m.ConnectionActive(aToB), "soft reset with no rules leaves nothing wired")
	checkInvariants(t, m)
}

func TestResetCommandKeepObserved(t *testing.T) {
	m, sim := newTestMinder(t)

	sim.UserSubscribe(aToB)
	m.DrainSeqEvents()
	require.NotEmpty(t, m.observedRules)

	require.NoError(t, m.handleResetCommand([]string{"keepObserved", "bogusOption"}))
	m.DrainSeqEvents()

	assert.NotEmpty(t, m.observedRules)
	assert.True(t, m.ConnectionActive(aToB), "the kept observed rule rewires the connection")
	checkInvariants(t, m)
}

func TestClientRenameNap(t *testing.T) {
	m, sim := newTestMinder(t)

	napped := false
	m.nap = func(time.Duration) { napped = true }

	sim.AddClient(70, "Client-70", "")
	m.DrainSeqEvents()
	assert.True(t, napped, "a kernel-assigned name must trigger the rename nap")

	napped = false
	sim.AddClient(71, "PureData", "")
	m.DrainSeqEvents()
	assert.False(t, napped)
}

func TestBadProfileLoadIsRejectedWhole(t *testing.T) {
	m, sim := newTestMinder(t)
	m.profileRules = setRules(t, "Controller --> Synthesizer\n")
	m.profileText = "Controller --> Synthesizer\n"

	sim.Calls = nil
	m.loadProfile("utter garbage\n")

	assert.Len(t, m.profileRules, 1, "a bad profile must not replace the old one")
	assert.Empty(t, sim.Calls, "a rejected load must not rewire anything")
}
