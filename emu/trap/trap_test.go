package trap

import (
	"errors"
	"testing"

	w "github.com/angry-goose-initiative/irve-sub000/emu/word"
)

func TestNewExceptionFields(t *testing.T) {
	tr := New(IllegalInstruction, w.Word(0xDEADBEEF))
	if tr.Cause != IllegalInstruction {
		t.Errorf("cause = %v, want IllegalInstruction", tr.Cause)
	}
	if tr.IsInterrupt {
		t.Error("New() should not produce an interrupt")
	}
	if tr.Tval != 0xDEADBEEF {
		t.Errorf("tval = %#x, want 0xDEADBEEF", tr.Tval.Uint32())
	}
}

func TestNewInterruptFields(t *testing.T) {
	tr := NewInterrupt(MTI)
	if !tr.IsInterrupt {
		t.Error("NewInterrupt() should set IsInterrupt")
	}
	if tr.Cause != MTI {
		t.Errorf("cause = %v, want MTI", tr.Cause)
	}
}

func TestTrapIsAnError(t *testing.T) {
	var err error = New(Breakpoint, 0)
	var tr *Trap
	if !errors.As(err, &tr) {
		t.Fatal("Trap should be type-assertable back from error")
	}
	if tr.Cause != Breakpoint {
		t.Errorf("cause = %v, want Breakpoint", tr.Cause)
	}
}

func TestExitRequestIsNotATrap(t *testing.T) {
	var err error = ExitRequest{}
	var tr *Trap
	if errors.As(err, &tr) {
		t.Error("ExitRequest must not satisfy *Trap")
	}
	if err.Error() == "" {
		t.Error("ExitRequest should have a non-empty error message")
	}
}

func TestPriorityOrder(t *testing.T) {
	order := []Cause{MEI, MSI, MTI, SEI, SSI, STI}
	for i := 1; i < len(order); i++ {
		if Priority(order[i-1]) >= Priority(order[i]) {
			t.Errorf("expected Priority(%v) < Priority(%v)", order[i-1], order[i])
		}
	}
}
