// Package emul is an in-memory stand-in for the machine: NOR flash with
// erase-state semantics and fault injection, the backup register bank, and
// the hardware capabilities the boot logic polls. The package tests and the
// bootsim tool run the real decision logic against it.
package emul

// PowerCut is panicked by a Flash configured to lose power mid-operation.
// Use CatchPowerCut around the operation under test.
type PowerCut struct{}

// CatchPowerCut runs fn and reports whether it ended in a simulated power
// cut. Any other panic propagates.
func CatchPowerCut(fn func()) (cut bool) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(PowerCut); ok {
				cut = true
				return
			}
			panic(r)
		}
	}()

	fn()
	return false
}

// Flash emulates one NOR flash chip. Erase sets a sector to 0xff; a program
// cycle can only clear bits, so writing unerased flash mangles data just
// like the hardware does.
type Flash struct {
	base       uint32
	mem        []byte
	sectorSize uint32

	cfiMode bool

	// CFIBroken makes the chip fail the identification query.
	CFIBroken bool

	// EraseFailures / WriteFailures fail that many upcoming operations.
	EraseFailures int
	WriteFailures int

	// PowerCutAfterWrites, when positive, panics PowerCut during the n-th
	// write call, after half the block has been programmed.
	PowerCutAfterWrites int

	Erases int
	Writes int
}

func NewFlash(base uint32, size int, sectorSize uint32) *Flash {
	f := &Flash{
		base:       base,
		mem:        make([]byte, size),
		sectorSize: sectorSize,
	}

	for i := range f.mem {
		f.mem[i] = 0xff
	}
	return f
}

/* extflash.Bus */

func (f *Flash) ReadBytes(addr uint32, p []byte) {
	if f.cfiMode {
		for i := range p {
			switch addr + uint32(i) {
			case 0x20:
				p[i] = 'Q'
			case 0x22:
				p[i] = 'R'
			case 0x24:
				p[i] = 'Y'
			default:
				p[i] = 0
			}
		}
		return
	}

	copy(p, f.mem[addr-f.base:])
}

func (f *Flash) WriteWord(addr uint32, v uint16) {
	switch v {
	case 0x98:
		f.cfiMode = !f.CFIBroken
	case 0xf0:
		f.cfiMode = false
	}
}

/* intflash.Driver */

func (f *Flash) SectorOf(addr uint32) (start, size uint32) {
	off := (addr - f.base) / f.sectorSize * f.sectorSize
	return f.base + off, f.sectorSize
}

func (f *Flash) EraseSector(addr uint32) bool {
	f.Erases++

	if f.EraseFailures > 0 {
		f.EraseFailures--
		return false
	}

	start, size := f.SectorOf(addr)
	off := start - f.base
	for i := off; i < off+size; i++ {
		f.mem[i] = 0xff
	}
	return true
}

func (f *Flash) Write(addr uint32, p []byte) bool {
	f.Writes++

	if f.WriteFailures > 0 {
		f.WriteFailures--
		return false
	}

	cut := -1
	if f.PowerCutAfterWrites > 0 {
		f.PowerCutAfterWrites--
		if f.PowerCutAfterWrites == 0 {
			cut = len(p) / 2
		}
	}

	off := addr - f.base
	for i, m := range p {
		if i == cut {
			panic(PowerCut{})
		}
		/* Programming can only clear bits. */
		f.mem[off+uint32(i)] &= m
	}
	return true
}

/* Test setup helpers, not part of the emulated hardware. */

// Program stores data directly, bypassing NOR semantics.
func (f *Flash) Program(addr uint32, data []byte) {
	copy(f.mem[addr-f.base:], data)
}

// Bytes returns a view of the flash contents at addr.
func (f *Flash) Bytes(addr uint32, length uint32) []byte {
	off := addr - f.base
	return f.mem[off : off+length]
}
