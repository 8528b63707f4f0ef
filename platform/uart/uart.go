// Package uart implements the 16550-compatible byte-wide register block at
// physical offsets 0..7. Only the RX/TX data path and LSR bits 0 (RX ready)
// and 5 (TX empty) are modeled; the rest of the register set is storage
// that software can poke without effect, following the teacher's device.go
// convention of a small explicit register struct per device rather than a
// byte-array shim. RX is resolved non-blocking: a goroutine drains stdin
// into a mutex-guarded byte slice so the hart never stalls waiting for console
// input, the same shape the teacher uses for its telnet receive path.
package uart

import (
	"bufio"
	"io"
	"os"
	"sync"
)

// Register offsets within the 8-byte block.
const (
	RegRHRTHR = 0
	RegIERDLL = 1
	RegISRFCR = 2
	RegLCR    = 3
	RegMCR    = 4
	RegLSRPSD = 5
	RegMSR    = 6
	RegSPR    = 7
)

const (
	lsrRxReady = 1 << 0
	lsrTxEmpty = 1 << 5
	lcrDLAB    = 1 << 7
)

// UART is a single 16550-compatible serial port backed by the process's
// standard input and output.
type UART struct {
	mu  sync.Mutex
	ier byte
	lcr byte
	mcr byte
	msr byte
	spr byte
	dll byte
	dlm byte

	out io.Writer
	rx  []byte // pending RX bytes, guarded by mu; consumed from the front
}

// New starts the background stdin reader and returns a UART that writes to
// out (typically os.Stdout).
func New(out io.Writer) *UART {
	u := &UART{out: out}
	go u.pump(os.Stdin)
	return u
}

func (u *UART) pump(in io.Reader) {
	r := bufio.NewReader(in)
	for {
		b, err := r.ReadByte()
		if err != nil {
			return
		}
		u.mu.Lock()
		u.rx = append(u.rx, b)
		u.mu.Unlock()
	}
}

// ReadReg reads a byte-wide register.
func (u *UART) ReadReg(offset uint32) (byte, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()

	dlab := u.lcr&lcrDLAB != 0
	switch offset {
	case RegRHRTHR:
		if dlab {
			return u.dll, true
		}
		if len(u.rx) == 0 {
			return 0, true
		}
		b := u.rx[0]
		u.rx = u.rx[1:]
		return b, true
	case RegIERDLL:
		if dlab {
			return u.dlm, true
		}
		return u.ier, true
	case RegISRFCR:
		return 0x01, true // no interrupt pending, modeled as a no-op
	case RegLCR:
		return u.lcr, true
	case RegMCR:
		return u.mcr, true
	case RegLSRPSD:
		return u.lsr(), true
	case RegMSR:
		return u.msr, true
	case RegSPR:
		return u.spr, true
	}
	return 0, false
}

// WriteReg writes a byte-wide register.
func (u *UART) WriteReg(offset uint32, v byte) bool {
	u.mu.Lock()
	defer u.mu.Unlock()

	dlab := u.lcr&lcrDLAB != 0
	switch offset {
	case RegRHRTHR:
		if dlab {
			u.dll = v
			return true
		}
		_, _ = u.out.Write([]byte{v})
		return true
	case RegIERDLL:
		if dlab {
			u.dlm = v
			return true
		}
		u.ier = v
		return true
	case RegISRFCR:
		return true // FCR write: FIFO control is a no-op here
	case RegLCR:
		u.lcr = v
		return true
	case RegMCR:
		u.mcr = v
		return true
	case RegLSRPSD:
		return true // LSR is read-only from the guest's perspective
	case RegMSR:
		u.msr = v
		return true
	case RegSPR:
		u.spr = v
		return true
	}
	return false
}

func (u *UART) lsr() byte {
	v := byte(lsrTxEmpty)
	if len(u.rx) > 0 {
		v |= lsrRxReady
	}
	return v
}
