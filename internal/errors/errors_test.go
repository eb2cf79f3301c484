// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package errors

import (
	"errors"
	"testing"
)

func TestError(t *testing.T) {
	err := New(KindValidation, "malformed rule")
	if err.Error() != "malformed rule" {
		t.Errorf("expected 'malformed rule', got '%s'", err.Error())
	}

	wrapped := Wrap(err, KindInternal, "failed to load profile")
	if wrapped.Error() != "failed to load profile: malformed rule" {
		t.Errorf("expected 'failed to load profile: malformed rule', got '%s'", wrapped.Error())
	}
}

func TestGetKind(t *testing.T) {
	err := New(KindSequencer, "subscribe failed")
	if GetKind(err) != KindSequencer {
		t.Errorf("expected KindSequencer, got %v", GetKind(err))
	}

	wrapped := Wrap(err, KindInternal, "failed")
	if GetKind(wrapped) != KindInternal {
		t.Errorf("expected KindInternal, got %v", GetKind(wrapped))
	}

	if GetKind(errors.New("std error")) != KindUnknown {
		t.Errorf("expected KindUnknown, got %v", GetKind(errors.New("std error")))
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, KindSocket, "ignored") != nil {
		t.Error("wrapping nil should stay nil")
	}
	if Wrapf(nil, KindSocket, "ignored %d", 1) != nil {
		t.Error("wrapping nil should stay nil")
	}
}

func TestAttr(t *testing.T) {
	err := New(KindSocket, "write failed")
	err = Attr(err, "command", "load")

	var e *Error
	if !As(err, &e) {
		t.Fatal("expected *Error")
	}
	if e.Attributes["command"] != "load" {
		t.Errorf("expected load, got %v", e.Attributes["command"])
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindValidation: "validation",
		KindSequencer:  "sequencer",
		KindSocket:     "socket",
		KindUnknown:    "unknown",
	}
	for k, want := range cases {
		if k.String() != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, k.String(), want)
		}
	}
}
