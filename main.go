// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// midimind keeps the kernel MIDI sequencer graph wired the way its
// rules say it should be: a daemon watches ports come and go, a small
// set of user commands drives it over a local control socket.
package main

import (
	"flag"
	"fmt"
	"os"

	"grimm.is/midimind/cmd"
	"grimm.is/midimind/internal/config"
)

const usage = `usage: midimind <command> [options]

service commands:
  daemon            run the minder daemon
  check PATH|-      parse a rules file and report errors

user commands:
  reset [--keep] [--hard]   rewire from the current rules
  load PATH|-               install a new profile and rewire
  save PATH|-               write out the daemon's combined rules
  status                    show daemon state counts
  list                      print the current sequencer graph
  view                      watch the sequencer graph interactively
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "daemon":
		fs := flag.NewFlagSet("daemon", flag.ExitOnError)
		configPath := fs.String("config", config.DefaultPath, "daemon configuration file")
		portDetails := fs.Bool("port-details", false, "log capability and type details for each port")
		fs.Parse(os.Args[2:])
		err = cmd.RunDaemon(cmd.DaemonOptions{ConfigPath: *configPath, PortDetails: *portDetails})

	case "check":
		fs := flag.NewFlagSet("check", flag.ExitOnError)
		fs.Parse(os.Args[2:])
		err = cmd.RunCheck(rulesPathArg(fs))

	case "reset":
		fs := flag.NewFlagSet("reset", flag.ExitOnError)
		keep := fs.Bool("keep", false, "keep the observed rules")
		hard := fs.Bool("hard", false, "rescan the kernel graph from scratch")
		fs.Parse(os.Args[2:])
		err = cmd.RunReset(*keep, *hard)

	case "load":
		fs := flag.NewFlagSet("load", flag.ExitOnError)
		fs.Parse(os.Args[2:])
		err = cmd.RunLoad(rulesPathArg(fs))

	case "save":
		fs := flag.NewFlagSet("save", flag.ExitOnError)
		fs.Parse(os.Args[2:])
		err = cmd.RunSave(rulesPathArg(fs))

	case "status":
		err = cmd.RunStatus()

	case "list":
		err = cmd.RunList()

	case "view":
		err = cmd.RunView()

	case "help", "-h", "--help":
		fmt.Print(usage)

	default:
		fmt.Fprintf(os.Stderr, "midimind: unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "midimind: %v\n", err)
		os.Exit(1)
	}
}

// rulesPathArg returns the single positional rules-file argument, or "-"
// when none is given.
func rulesPathArg(fs *flag.FlagSet) string {
	if fs.NArg() < 1 {
		return "-"
	}
	return fs.Arg(0)
}
