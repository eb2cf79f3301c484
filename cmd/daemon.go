// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package cmd holds the entry points behind each midimind subcommand.
package cmd

import (
	"os"

	"grimm.is/midimind/internal/config"
	"grimm.is/midimind/internal/logging"
	"grimm.is/midimind/internal/metrics"
	"grimm.is/midimind/internal/minder"
	"grimm.is/midimind/internal/seq"
	"grimm.is/midimind/internal/store"
	"grimm.is/midimind/internal/supervisor"
)

// DaemonOptions are the daemon subcommand's flags.
type DaemonOptions struct {
	ConfigPath  string
	PortDetails bool
}

// RunDaemon runs the minder core until a fatal signal.
func RunDaemon(opts DaemonOptions) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}

	logCfg := logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: os.Stderr}
	logging.SetDefault(logging.New(logCfg))

	if cfg.Syslog != nil && cfg.Syslog.Enabled {
		w, err := logging.NewSyslogWriter(*cfg.Syslog)
		if err != nil {
			logging.Error("syslog forwarding disabled", "err", err)
		} else {
			defer w.Close()
			logCfg.Output = w
			logging.SetDefault(logging.New(logCfg))
		}
	}

	st, err := store.InitializeAsService(store.Options{
		StateDir:   cfg.StateDir,
		RuntimeDir: cfg.RuntimeDir,
	})
	if err != nil {
		return err
	}

	safeMode := false
	var sup *supervisor.Supervisor
	if !supervisor.ShouldSkipDetection() {
		sup = supervisor.New(st.StateDir(), supervisor.DefaultConfig())
		safeMode = sup.ShouldEnterSafeMode()
		if safeMode {
			logging.Warn("repeated crashes detected, starting in safe mode")
		}
		sup.StartStabilityTimer()
	}

	reg := metrics.NewRegistry()
	if cfg.MetricsListen != "" {
		reg.Serve(cfg.MetricsListen)
	}

	m := minder.New(minder.Options{
		Seq:         seq.NewAlsaSeq(),
		Store:       st,
		Metrics:     reg,
		SafeMode:    safeMode,
		PortDetails: opts.PortDetails,
	})

	err = m.Run()
	if sup != nil {
		code := 0
		if err != nil {
			code = 1
		}
		_ = sup.RecordExit(code, 0, false)
	}
	return err
}
