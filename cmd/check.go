// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"fmt"

	"grimm.is/midimind/internal/errors"
	"grimm.is/midimind/internal/logging"
	"grimm.is/midimind/internal/rules"
	"grimm.is/midimind/internal/store"
)

// RunCheck parses a rules file and reports every error in it. The path
// "-" reads stdin.
func RunCheck(path string) error {
	contents, err := store.ReadUserFile(path)
	if err != nil {
		return err
	}

	rs, errs := rules.Parse(contents)
	if len(errs) > 0 {
		for _, e := range errs {
			logging.Error("rules parse error", "err", e)
		}
		return errors.New(errors.KindValidation, "rules had parse errors")
	}

	fmt.Printf("Parsed %d rule(s).\n", len(rs))
	for _, r := range rs {
		logging.Debug("    rule", "rule", r.String())
	}
	return nil
}
