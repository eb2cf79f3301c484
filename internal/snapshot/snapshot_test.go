// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/midimind/internal/seq"
)

func TestSnapshotRefresh(t *testing.T) {
	sim := seq.NewSimSeq()
	sim.AddClient(20, "Controller", "user(pid=100)")
	sim.AddPort(seq.Addr{Client: 20, Port: 0}, "out", seq.CapSubsRead, seq.TypeHardware)
	sim.AddClient(21, "Synthesizer", "kernel(card=0)")
	sim.AddPort(seq.Addr{Client: 21, Port: 0}, "in", seq.CapSubsWrite, seq.TypeHardware)
	sim.AddPort(seq.Addr{Client: 21, Port: 1}, "hidden", seq.CapSubsWrite|seq.CapNoExport, 0)

	snap, err := New(sim)
	require.NoError(t, err)
	defer snap.Close()

	require.Len(t, snap.Clients, 2)
	assert.Equal(t, "Controller", snap.Clients[0].Name)
	assert.Equal(t, "user(pid=100)", snap.Clients[0].Details)

	require.Len(t, snap.Ports, 2, "unexported ports are not listed")
	assert.Equal(t, "-->", AddressDirStr(snap.Ports[0]))
	assert.Equal(t, "<--", AddressDirStr(snap.Ports[1]))
	assert.Equal(t, len("Synthesizer"), snap.ClientWidth)

	assert.Empty(t, snap.Connections)

	conn := seq.Connect{
		Sender: seq.Addr{Client: 20, Port: 0},
		Dest:   seq.Addr{Client: 21, Port: 0},
	}
	sim.UserSubscribe(conn)
	snap.Refresh()

	require.Len(t, snap.Connections, 1)
	assert.Equal(t, "Controller", snap.Connections[0].Sender.Client)
	assert.Equal(t, "Synthesizer", snap.Connections[0].Dest.Client)
}
