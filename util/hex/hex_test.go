package hex

import (
	"strings"
	"testing"
)

func TestFormatWord32(t *testing.T) {
	var b strings.Builder
	FormatWord32(&b, 0xCAFEBABE)
	if got, want := b.String(), "CAFEBABE"; got != want {
		t.Errorf("FormatWord32 = %q, want %q", got, want)
	}
}

func TestFormatWord32ZeroPads(t *testing.T) {
	var b strings.Builder
	FormatWord32(&b, 0x5)
	if got, want := b.String(), "00000005"; got != want {
		t.Errorf("FormatWord32 = %q, want %q", got, want)
	}
}

func TestFormatByte(t *testing.T) {
	var b strings.Builder
	FormatByte(&b, 0xAB)
	if got, want := b.String(), "AB"; got != want {
		t.Errorf("FormatByte = %q, want %q", got, want)
	}
}

func TestFormatByteZeroPads(t *testing.T) {
	var b strings.Builder
	FormatByte(&b, 0x0F)
	if got, want := b.String(), "0F"; got != want {
		t.Errorf("FormatByte = %q, want %q", got, want)
	}
}
