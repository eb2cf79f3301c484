// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"fmt"

	"grimm.is/midimind/internal/seq"
	"grimm.is/midimind/internal/snapshot"
	"grimm.is/midimind/internal/tui"
)

// RunList prints a one-shot picture of the sequencer graph.
func RunList() error {
	snap, err := snapshot.New(seq.NewAlsaSeq())
	if err != nil {
		return err
	}
	defer snap.Close()

	fmt.Println("Clients:")
	for _, c := range snap.Clients {
		fmt.Printf("    %3d: %-*s  %s\n", c.ID, snap.ClientWidth, c.Name, c.Details)
	}

	fmt.Println("Ports:")
	for _, p := range snap.Ports {
		fmt.Printf("    %-*s : %-*s  [%s] %s\n",
			snap.ClientWidth, p.Client,
			snap.PortWidth, p.Port,
			p.Addr, snapshot.AddressDirStr(p))
	}

	fmt.Println("Connections:")
	for _, c := range snap.Connections {
		fmt.Printf("    %s:%s --> %s:%s\n",
			c.Sender.Client, c.Sender.Port,
			c.Dest.Client, c.Dest.Port)
	}
	return nil
}

// RunView starts the interactive read-only viewer.
func RunView() error {
	snap, err := snapshot.New(seq.NewAlsaSeq())
	if err != nil {
		return err
	}
	defer snap.Close()

	return tui.Run(snap)
}
