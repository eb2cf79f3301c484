// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"grimm.is/midimind/internal/seq"
)

// ParseError is one rejected line of a rules file.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse error on line %d: %s", e.Line, e.Msg)
	}
	return e.Msg
}

func parseErrf(format string, args ...any) *ParseError {
	return &ParseError{Msg: fmt.Sprintf(format, args...)}
}

var (
	clientRE   = regexp.MustCompile(`^(?:(\*)|"([^"]+)"|'([^']+)'|([^*"'=.].*))$`)
	portRE     = regexp.MustCompile(`^(?:(\*)|"([^"]+)"|'([^']+)'|=(\d+)|([^*"'=.].*))$`)
	idsRE      = regexp.MustCompile(`^(\d+):(\d+)$`)
	portTypeRE = regexp.MustCompile(`^\.\w+$`)
	addressRE  = regexp.MustCompile(`^([^"':][^:]*|"[^"]+"|'[^']+')(:([^"':][^:]*|"[^"]+"|'[^']+'))?$`)
	ruleRE     = regexp.MustCompile(`^(.*?)\s+(-+(?:x-+)?>|<-+(?:x-+)?>?)\s+(.*)$`)
)

func parseClientSpec(s string) (ClientSpec, error) {
	m := clientRE.FindStringSubmatch(s)
	if m == nil {
		return ClientSpec{}, parseErrf("malformed client '%s'", s)
	}

	switch {
	case m[1] != "":
		return ClientWildcard(), nil
	case m[2] != "":
		return ClientExact(m[2]), nil
	case m[3] != "":
		return ClientExact(m[3]), nil
	case m[4] != "":
		return ClientPartial(m[4]), nil
	}
	return ClientSpec{}, parseErrf("client spec match failure with '%s'", s)
	// shouldn't ever happen!
}

func parsePortSpec(s string) (PortSpec, error) {
	m := portRE.FindStringSubmatch(s)
	if m == nil {
		return PortSpec{}, parseErrf("malformed port '%s'", s)
	}

	switch {
	case m[1] != "":
		return PortWildcard(), nil
	case m[2] != "":
		return PortExact(m[2]), nil
	case m[3] != "":
		return PortExact(m[3]), nil
	case m[4] != "":
		n, err := strconv.Atoi(m[4])
		if err != nil || n > 255 {
			return PortSpec{}, parseErrf("port number out of range '%s'", s)
		}
		return PortNumeric(uint8(n)), nil
	case m[5] != "":
		return PortPartial(m[5]), nil
	}
	return PortSpec{}, parseErrf("port spec match failure with '%s'", s)
	// shouldn't ever happen!
}

// ParseAddressSpec parses one endpoint. Numeric client:port pairs are
// only accepted when allowIDs is set; rule files never allow them.
func ParseAddressSpec(s string, allowIDs bool) (AddressSpec, error) {
	if m := idsRE.FindStringSubmatch(s); m != nil {
		if !allowIDs {
			return AddressSpec{}, parseErrf("client-id:port-id matches not allowed here")
		}
		c, err := strconv.Atoi(m[1])
		if err != nil || c > 255 {
			return AddressSpec{}, parseErrf("client number out of range '%s'", s)
		}
		p, err := strconv.Atoi(m[2])
		if err != nil || p > 255 {
			return AddressSpec{}, parseErrf("port number out of range '%s'", s)
		}
		return AddressSpec{Client: ClientNumeric(uint8(c)), Port: PortNumeric(uint8(p))}, nil
	}

	if portTypeRE.MatchString(s) {
		var typ uint32
		switch s {
		case ".hw":
			typ = seq.TypeHardware
		case ".app":
			typ = seq.TypeApplication
		default:
			return AddressSpec{}, parseErrf("invalid port type '%s'", s)
		}
		return AddressSpec{Client: ClientWildcard(), Port: PortType(typ)}, nil
	}

	m := addressRE.FindStringSubmatch(s)
	if m == nil {
		return AddressSpec{}, parseErrf("malformed address '%s'", s)
	}

	cs, err := parseClientSpec(m[1])
	if err != nil {
		return AddressSpec{}, err
	}

	var ps PortSpec
	if m[2] == "" {
		if cs.IsWildcard() {
			ps = PortWildcard()
		} else {
			ps = PortDefaulted()
		}
	} else {
		ps, err = parsePortSpec(m[3])
		if err != nil {
			return AddressSpec{}, err
		}
	}

	return AddressSpec{Client: cs, Port: ps}, nil
}

func parseConnectionRule(s string) (ConnectionRules, error) {
	m := ruleRE.FindStringSubmatch(s)
	if m == nil {
		return nil, parseErrf("malformed rule '%s'", s)
	}

	left, err := ParseAddressSpec(m[1], false)
	if err != nil {
		return nil, err
	}
	right, err := ParseAddressSpec(m[3], false)
	if err != nil {
		return nil, err
	}

	arrow := m[2]
	blocking := strings.Contains(arrow, "x")

	var out ConnectionRules
	if strings.HasSuffix(arrow, ">") {
		out = append(out, NewRule(left, right, blocking))
	}
	if strings.HasPrefix(arrow, "<") {
		out = append(out, NewRule(right, left, blocking))
	}
	return out, nil
}

// ParseLine parses one line: an optional rule, an optional comment. A
// trailing FAIL in the comment marks a line expected not to parse, used
// by rule-file test suites.
func ParseLine(line string) (ConnectionRules, error) {
	text := line
	expectFailure := false

	if i := strings.IndexByte(line, '#'); i >= 0 {
		text = line[:i]
		expectFailure = strings.Contains(line[i+1:], "FAIL")
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	rs, err := parseConnectionRule(text)
	if err != nil {
		if expectFailure {
			return nil, nil
		}
		return nil, err
	}

	if expectFailure {
		return nil, parseErrf("was not expected to parse")
	}
	return rs, nil
}

// Parse parses a whole rules file. Parsing continues past bad lines; all
// errors are returned, tagged with their line numbers. The parsed rules
// are only meaningful when errs is empty.
func Parse(input string) (ConnectionRules, []*ParseError) {
	var out ConnectionRules
	var errs []*ParseError

	lines := strings.Split(input, "\n")
	for i, line := range lines {
		rs, err := ParseLine(line)
		if err != nil {
			var pe *ParseError
			if e, ok := err.(*ParseError); ok {
				pe = e
			} else {
				pe = &ParseError{Msg: err.Error()}
			}
			pe.Line = i + 1
			errs = append(errs, pe)
			continue
		}
		out = append(out, rs...)
	}
	return out, errs
}
