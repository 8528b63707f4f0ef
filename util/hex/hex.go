// Package hex formats register and memory words as fixed-width hex text,
// the same table-driven digit-at-a-time approach the teacher used for PSW
// and storage dumps, trimmed to the widths the monitor actually needs (32-bit words and single bytes) rather than the S/370
// halfword/displacement/packed-decimal field shapes.
package hex

import "strings"

var hexMap = "0123456789ABCDEF"

// FormatWord32 appends an 8-digit uppercase hex rendering of v to str.
func FormatWord32(str *strings.Builder, v uint32) {
	for shift := 28; shift >= 0; shift -= 4 {
		str.WriteByte(hexMap[(v>>uint(shift))&0xf])
	}
}

// FormatByte appends a 2-digit uppercase hex rendering of v to str.
func FormatByte(str *strings.Builder, v byte) {
	str.WriteByte(hexMap[(v>>4)&0xf])
	str.WriteByte(hexMap[v&0xf])
}
