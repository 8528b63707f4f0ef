// Package loader reads memory images into a hart's physical RAM. Format is
// chosen by path extension per spec: ".elf" selects the ELF32 loader
// (stdlib debug/elf, LOAD segments only, PROGBITS/INIT_ARRAY sections),
// ".vhex8" selects 8-bit-per-token Verilog hex, anything else selects
// 32-bit-per-token Verilog hex. Progress is reported the way tinyrange-cc
// reports container layer extraction, via schollz/progressbar/v3, so
// loading a large kernel image gives the same kind of feedback a real
// systems tool would.
package loader

import (
	"bufio"
	"debug/elf"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/schollz/progressbar/v3"

	"github.com/angry-goose-initiative/irve-sub000/emu/memmap"
)

// Target is where loaded bytes land, addressed the same way the image
// declares them: a physical address (ELF segment Vaddr, Verilog-hex @addr
// token, or raw-binary base).
type Target interface {
	// WriteAt writes a single byte at a physical offset from the base of
	// the target's backing store.
	WriteAt(offset uint32, b byte) error
}

// sliceTarget adapts a plain byte slice to Target, addressed from zero.
// Used directly in tests; production code uses MemTarget, which spans the
// whole physical map instead of one flat buffer.
type sliceTarget struct{ buf []byte }

// NewSliceTarget wraps a backing byte slice as a loader Target.
func NewSliceTarget(buf []byte) Target { return sliceTarget{buf} }

func (t sliceTarget) WriteAt(offset uint32, b byte) error {
	if int(offset) >= len(t.buf) {
		return fmt.Errorf("loader: offset %#x beyond target size %#x", offset, len(t.buf))
	}
	t.buf[offset] = b
	return nil
}

// memTarget adapts a memmap.Memory to Target, dispatching each write across
// the full physical address space rather than one fixed region. This is
// what lets an image linked at Kernel RAM's base address (the conventional
// load address for a supervisor-mode kernel) land in Kernel RAM, while one
// linked at address zero lands in User RAM, in the same loader pass.
type memTarget struct{ mem *memmap.Memory }

// NewMemTarget wraps mem as a loader Target spanning its whole physical
// address space.
func NewMemTarget(mem *memmap.Memory) Target { return memTarget{mem} }

func (t memTarget) WriteAt(addr uint32, b byte) error {
	return t.mem.WriteRawByte(uint64(addr), b)
}

// Load reads the image at path into target, choosing a format from the
// path's extension. Relative paths with no slash are resolved under root.
func Load(path, root string, target Target, showProgress bool) error {
	resolved := path
	if root != "" && !strings.ContainsAny(path, "/\\") {
		resolved = filepath.Join(root, path)
	}

	switch {
	case strings.HasSuffix(path, ".elf"):
		return loadELF(resolved, target, showProgress)
	case strings.HasSuffix(path, ".vhex8"):
		return loadVerilogHex(resolved, target, 1, showProgress)
	default:
		return loadVerilogHex(resolved, target, 4, showProgress)
	}
}

func loadELF(path string, target Target, showProgress bool) error {
	f, err := elf.Open(path)
	if err != nil {
		return fmt.Errorf("loader: open ELF %s: %w", path, err)
	}
	defer f.Close()

	if f.Class != elf.ELFCLASS32 {
		return fmt.Errorf("loader: %s is not ELF32", path)
	}
	if f.Data != elf.ELFDATA2LSB {
		return fmt.Errorf("loader: %s is not little-endian", path)
	}
	if f.Machine != elf.EM_RISCV {
		return fmt.Errorf("loader: %s is not a RISC-V binary", path)
	}
	if f.Type != elf.ET_EXEC {
		return fmt.Errorf("loader: %s is not an executable ELF", path)
	}

	var bar *progressbar.ProgressBar
	if showProgress {
		bar = progressbar.Default(int64(len(f.Progs)), "loading "+filepath.Base(path))
	}

	for _, prog := range f.Progs {
		if bar != nil {
			_ = bar.Add(1)
		}
		if prog.Type != elf.PT_LOAD {
			continue
		}
		for _, sec := range f.Sections {
			if sec.Type != elf.SHT_PROGBITS && sec.Type != elf.SHT_INIT_ARRAY {
				continue
			}
			if sec.Addr < prog.Vaddr || sec.Addr+sec.Size > prog.Vaddr+prog.Filesz {
				continue
			}
			data, err := sec.Data()
			if err != nil {
				return fmt.Errorf("loader: read section %s: %w", sec.Name, err)
			}
			for i, b := range data {
				if err := target.WriteAt(uint32(sec.Addr)+uint32(i), b); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// loadVerilogHex implements both the 32-bit and 8-bit Verilog hex formats.
// tokenBytes is 4 for the 32-bit form, 1 for the 8-bit (.vhex8) form; the
// address unit scales the same way (@address is a word address for the
// 32-bit form, a byte address for the 8-bit form).
func loadVerilogHex(path string, target Target, tokenBytes int, showProgress bool) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("loader: open %s: %w", path, err)
	}
	defer f.Close()

	info, _ := f.Stat()
	var bar *progressbar.ProgressBar
	if showProgress && info != nil {
		bar = progressbar.DefaultBytes(info.Size(), "loading "+filepath.Base(path))
	}

	scanner := bufio.NewScanner(f)
	scanner.Split(bufio.ScanWords)

	var addr uint32
	for scanner.Scan() {
		tok := scanner.Text()
		if bar != nil {
			_ = bar.Add(len(tok) + 1)
		}
		if strings.HasPrefix(tok, "@") {
			v, err := strconv.ParseUint(tok[1:], 16, 32)
			if err != nil {
				return fmt.Errorf("loader: bad address token %q: %w", tok, err)
			}
			if tokenBytes == 4 {
				addr = uint32(v) * 4
			} else {
				addr = uint32(v)
			}
			continue
		}
		v, err := strconv.ParseUint(tok, 16, 32)
		if err != nil {
			return fmt.Errorf("loader: bad data token %q: %w", tok, err)
		}
		if tokenBytes == 4 {
			word := uint32(v)
			for i := 0; i < 4; i++ {
				if err := target.WriteAt(addr+uint32(i), byte(word>>(8*i))); err != nil {
					return err
				}
			}
			addr += 4
		} else {
			if err := target.WriteAt(addr, byte(v)); err != nil {
				return err
			}
			addr++
		}
	}
	return scanner.Err()
}

// LoadRawBinary loads a flat binary file at a caller-provided base offset
// with no format parsing.
func LoadRawBinary(path string, base uint32, target Target, showProgress bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("loader: open raw image %s: %w", path, err)
	}
	var bar *progressbar.ProgressBar
	if showProgress {
		bar = progressbar.DefaultBytes(int64(len(data)), "loading "+filepath.Base(path))
	}
	for i, b := range data {
		if bar != nil {
			_ = bar.Add(1)
		}
		if err := target.WriteAt(base+uint32(i), b); err != nil {
			return err
		}
	}
	return nil
}
