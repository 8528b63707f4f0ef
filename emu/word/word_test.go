package word

import "testing"

func TestSignExtend(t *testing.T) {
	cases := []struct {
		v      uint32
		signAt uint
		want   int32
	}{
		{0x7FF, 11, 0x7FF},
		{0x800, 11, -2048},
		{0xFFF, 11, -1},
		{0, 11, 0},
	}
	for _, c := range cases {
		got := SignExtend(c.v, c.signAt).Int32()
		if got != c.want {
			t.Errorf("SignExtend(%#x, %d) = %d, want %d", c.v, c.signAt, got, c.want)
		}
	}
}

func TestShifts(t *testing.T) {
	w := Word(0x80000000)
	if got := w.ShiftRightLogical(Word(4)).Uint32(); got != 0x08000000 {
		t.Errorf("ShiftRightLogical = %#x, want 0x08000000", got)
	}
	if got := w.ShiftRightArithmetic(Word(4)).Uint32(); got != 0xF8000000 {
		t.Errorf("ShiftRightArithmetic = %#x, want 0xF8000000", got)
	}
	if got := Word(1).ShiftLeft(Word(35)).Uint32(); got != (1 << 3) {
		t.Errorf("ShiftLeft with shamt>31 should mask to low 5 bits, got %#x", got)
	}
}

func TestBitsAndBit(t *testing.T) {
	w := Word(0b1011_0100)
	if !w.Bit(2) {
		t.Error("bit 2 should be set")
	}
	if w.Bit(0) {
		t.Error("bit 0 should be clear")
	}
	if got := w.Bits(7, 4); got.Uint32() != 0b1011 {
		t.Errorf("Bits(7,4) = %#x, want 0xB", got.Uint32())
	}
}

func TestMulHigh(t *testing.T) {
	a := FromInt32(-1)
	b := FromInt32(-1)
	if got := a.MulHighSigned(b); got.Uint32() != 0 {
		t.Errorf("(-1)*(-1) high word = %#x, want 0", got.Uint32())
	}
	if got := a.MulHighUnsigned(b); got.Uint32() != 0xFFFFFFFE {
		t.Errorf("0xFFFFFFFF*0xFFFFFFFF high word = %#x, want 0xFFFFFFFE", got.Uint32())
	}
}

func TestAddSubWraparound(t *testing.T) {
	max := Word(0xFFFFFFFF)
	if got := max.Add(1); got != 0 {
		t.Errorf("max+1 = %#x, want 0", got.Uint32())
	}
	if got := Word(0).Sub(1); got != 0xFFFFFFFF {
		t.Errorf("0-1 = %#x, want 0xFFFFFFFF", got.Uint32())
	}
}

func TestAlignedTo4(t *testing.T) {
	if !Word(0x1000).AlignedTo4() {
		t.Error("0x1000 should be 4-byte aligned")
	}
	if Word(0x1001).AlignedTo4() {
		t.Error("0x1001 should not be 4-byte aligned")
	}
}
