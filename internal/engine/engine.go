// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package engine computes, for a newly arrived port, the set of
// connections that should exist given the live port map and the ordered
// rule lists.
package engine

import (
	"sort"

	"grimm.is/midimind/internal/rules"
	"grimm.is/midimind/internal/seq"
)

// RuleSource tags a candidate with the provenance of its rule.
type RuleSource int

const (
	SourceProfile RuleSource = iota
	SourceObserved
)

func (s RuleSource) String() string {
	switch s {
	case SourceProfile:
		return "profile"
	case SourceObserved:
		return "observed"
	default:
		return "???"
	}
}

// Candidate is one connection a rule wants established.
type Candidate struct {
	Sender seq.Address
	Dest   seq.Address
	Rule   rules.ConnectionRule
	Source RuleSource
}

// PortMap is the set of live managed ports keyed by numeric address.
type PortMap map[seq.Addr]seq.Address

// sorted returns the map's addresses in ascending (client, port) order,
// so candidate production is deterministic.
func (pm PortMap) sorted() []seq.Address {
	addrs := make([]seq.Addr, 0, len(pm))
	for a := range pm {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Less(addrs[j]) })

	out := make([]seq.Address, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, pm[a])
	}
	return out
}

// consider applies one matched rule to the candidate list: non-blocking
// rules append, blocking rules filter out every candidate they match.
func consider(sender, dest seq.Address, rule rules.ConnectionRule, source RuleSource, ccs []Candidate) []Candidate {
	if !rule.IsBlocking() {
		return append(ccs, Candidate{Sender: sender, Dest: dest, Rule: rule, Source: source})
	}

	filtered := ccs[:0]
	for _, cc := range ccs {
		if !rule.Match(cc.Sender, cc.Dest) {
			filtered = append(filtered, cc)
		}
	}
	return filtered
}

// ConnectByRule runs one rule list against the arrived address a and the
// live port map, extending the candidate list ccs. Blocking rules act on
// everything accumulated so far, including candidates from earlier lists,
// so the caller must run lists in profile, observed order on one shared
// list.
func ConnectByRule(a seq.Address, rs rules.ConnectionRules, source RuleSource, ports PortMap, ccs []Candidate) []Candidate {
	live := ports.sorted()

	for _, rule := range rs {
		if a.CanBeSender() && rule.SenderMatch(a) {
			for _, b := range live {
				if b.CanBeDest() && rule.DestMatch(b) {
					ccs = consider(a, b, rule, source, ccs)
				}
			}
		}

		if a.CanBeDest() && rule.DestMatch(a) {
			for _, b := range live {
				if b.CanBeSender() && rule.SenderMatch(b) {
					ccs = consider(b, a, rule, source, ccs)
				}
			}
		}
	}
	return ccs
}
