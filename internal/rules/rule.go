// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package rules implements the connection rule model: structured matcher
// values, the line-oriented text parser, and the canonical renderer.
package rules

import (
	"fmt"
	"strings"

	"grimm.is/midimind/internal/seq"
)

type clientKind int

const (
	clientWildcard clientKind = iota
	clientPartial
	clientExact
	clientNumeric
)

// ClientSpec matches the client half of an address.
type ClientSpec struct {
	kind clientKind
	name string
	num  uint8
}

func ClientWildcard() ClientSpec { return ClientSpec{kind: clientWildcard} }

func ClientPartial(s string) ClientSpec { return ClientSpec{kind: clientPartial, name: s} }

func ClientExact(s string) ClientSpec { return ClientSpec{kind: clientExact, name: s} }

func ClientNumeric(id uint8) ClientSpec { return ClientSpec{kind: clientNumeric, num: id} }

// Match reports whether the spec matches the address's client.
func (c ClientSpec) Match(a seq.Address) bool {
	switch c.kind {
	case clientPartial:
		return strings.Contains(a.Client, c.name)
	case clientExact:
		return a.Client == c.name
	case clientNumeric:
		return a.Addr.Client == c.num
	case clientWildcard:
		return true
	}
	return false // should never happen
}

// IsWildcard reports whether the spec matches every client.
func (c ClientSpec) IsWildcard() bool { return c.kind == clientWildcard }

func (c ClientSpec) String() string {
	switch c.kind {
	case clientPartial:
		return c.name
	case clientExact:
		return `"` + c.name + `"`
	case clientNumeric:
		return fmt.Sprintf("%d", c.num)
	case clientWildcard:
		return "*"
	}
	return ""
}

type portKind int

const (
	portDefaulted portKind = iota
	portPartial
	portExact
	portNumeric
	portType
	portWildcard
)

// PortSpec matches the port half of an address. Defaulted means "the
// primary port of that client in the direction implied by context".
type PortSpec struct {
	kind portKind
	name string
	num  uint8
	typ  uint32
}

func PortDefaulted() PortSpec { return PortSpec{kind: portDefaulted} }

func PortPartial(s string) PortSpec { return PortSpec{kind: portPartial, name: s} }

func PortExact(s string) PortSpec { return PortSpec{kind: portExact, name: s} }

func PortNumeric(n uint8) PortSpec { return PortSpec{kind: portNumeric, num: n} }

func PortType(typ uint32) PortSpec { return PortSpec{kind: portType, typ: typ} }

func PortWildcard() PortSpec { return PortSpec{kind: portWildcard} }

// IsDefaulted reports whether the spec is the primary-port default.
func (p PortSpec) IsDefaulted() bool { return p.kind == portDefaulted }

// IsType reports whether the spec is a port-type match.
func (p PortSpec) IsType() bool { return p.kind == portType }

// IsWildcard reports whether the spec matches every port.
func (p PortSpec) IsWildcard() bool { return p.kind == portWildcard }

// MatchAsSender reports whether the spec matches a as the sending end.
func (p PortSpec) MatchAsSender(a seq.Address) bool {
	return a.CanBeSender() && p.match(a, a.PrimarySender)
}

// MatchAsDest reports whether the spec matches a as the receiving end.
func (p PortSpec) MatchAsDest(a seq.Address) bool {
	return a.CanBeDest() && p.match(a, a.PrimaryDest)
}

func (p PortSpec) match(a seq.Address, primary bool) bool {
	switch p.kind {
	case portDefaulted:
		return primary
	case portPartial:
		return strings.Contains(a.Port, p.name) ||
			a.PortLong == p.name // just in case...
	case portExact:
		return a.Port == p.name || a.PortLong == p.name
	case portNumeric:
		return a.Addr.Port == p.num
	case portType:
		return a.Types&p.typ != 0
	case portWildcard:
		return true
	}
	return false // should never happen
}

func (p PortSpec) String() string {
	switch p.kind {
	case portDefaulted:
		return ""
	case portPartial:
		return p.name
	case portExact:
		return `"` + p.name + `"`
	case portNumeric:
		return fmt.Sprintf("%d", p.num)
	case portType:
		switch p.typ {
		case seq.TypeHardware:
			return ".hw"
		case seq.TypeApplication:
			return ".app"
		default:
			return fmt.Sprintf("%x", p.typ)
		}
	case portWildcard:
		return "*"
	}
	return ""
}

// AddressSpec pairs a client spec with a port spec.
type AddressSpec struct {
	Client ClientSpec
	Port   PortSpec
}

// ExactAddressSpec captures a live address as an exact spec, used for
// observed rules.
func ExactAddressSpec(a seq.Address) AddressSpec {
	return AddressSpec{Client: ClientExact(a.Client), Port: PortExact(a.Port)}
}

// MatchAsSender reports whether the spec matches a as the sending end.
func (s AddressSpec) MatchAsSender(a seq.Address) bool {
	return s.Client.Match(a) && s.Port.MatchAsSender(a)
}

// MatchAsDest reports whether the spec matches a as the receiving end.
func (s AddressSpec) MatchAsDest(a seq.Address) bool {
	return s.Client.Match(a) && s.Port.MatchAsDest(a)
}

func (s AddressSpec) String() string {
	switch {
	case s.Client.IsWildcard() && s.Port.IsType():
		return s.Port.String()
	case s.Port.IsDefaulted():
		return s.Client.String()
	default:
		return fmt.Sprintf("%s:%s", s.Client, s.Port)
	}
}

// ConnectionRule pairs a sender spec with a dest spec. A blocking rule
// removes matching candidates instead of adding them.
type ConnectionRule struct {
	Sender   AddressSpec
	Dest     AddressSpec
	blocking bool
}

// NewRule builds a rule from parts.
func NewRule(sender, dest AddressSpec, blocking bool) ConnectionRule {
	return ConnectionRule{Sender: sender, Dest: dest, blocking: blocking}
}

// Exact captures a live connection as an exact connect rule.
func Exact(sender, dest seq.Address) ConnectionRule {
	return ConnectionRule{Sender: ExactAddressSpec(sender), Dest: ExactAddressSpec(dest)}
}

// ExactBlock captures a live connection as an exact blocking rule.
func ExactBlock(sender, dest seq.Address) ConnectionRule {
	return ConnectionRule{
		Sender:   ExactAddressSpec(sender),
		Dest:     ExactAddressSpec(dest),
		blocking: true,
	}
}

// IsBlocking reports whether this is a blocking rule.
func (r ConnectionRule) IsBlocking() bool { return r.blocking }

// SenderMatch reports whether a matches the rule's sender end.
func (r ConnectionRule) SenderMatch(a seq.Address) bool { return r.Sender.MatchAsSender(a) }

// DestMatch reports whether a matches the rule's dest end.
func (r ConnectionRule) DestMatch(a seq.Address) bool { return r.Dest.MatchAsDest(a) }

// Match reports whether the rule matches the directed pair (s, d).
func (r ConnectionRule) Match(s, d seq.Address) bool {
	return r.Sender.MatchAsSender(s) && r.Dest.MatchAsDest(d)
}

func (r ConnectionRule) String() string {
	arrow := "-->"
	if r.blocking {
		arrow = "-x->"
	}
	return fmt.Sprintf("%s %s %s", r.Sender, arrow, r.Dest)
}

// ConnectionRules is an ordered rule list. Later rules override earlier
// ones during lookup.
type ConnectionRules []ConnectionRule

// Render produces the canonical text form, one rule per line.
func (rs ConnectionRules) Render() string {
	var b strings.Builder
	for _, r := range rs {
		b.WriteString(r.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// Found classifies the result of a rule lookup.
type Found int

const (
	NoRule Found = iota
	ConnectRule
	DisallowRule
)

// FindRule scans the list in reverse and returns the first match along
// with its classification and index. Reverse order implements "later
// rules win". The index is -1 when no rule matches.
func FindRule(rs ConnectionRules, sender, dest seq.Address) (Found, int) {
	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i].Match(sender, dest) {
			if rs[i].IsBlocking() {
				return DisallowRule, i
			}
			return ConnectRule, i
		}
	}
	return NoRule, -1
}
