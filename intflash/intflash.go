// Package intflash erases and writes the MCU internal flash that execution
// jumps into. The engine is not reentrant and never retries; the retry policy
// lives in the boot decision logic.
package intflash

// Driver is the raw flash peripheral. SectorOf maps an address to the start
// and size of its sector (sector sizes are not uniform on this hardware).
// EraseSector and Write return false on any hardware-reported failure
// (timeout, verify error). ReadBytes reads back memory-mapped flash.
type Driver interface {
	SectorOf(addr uint32) (start, size uint32)
	EraseSector(addr uint32) bool
	Write(addr uint32, p []byte) bool
	ReadBytes(addr uint32, p []byte)
}

// ProgressFunc reports completed vs total units of work. Called once before
// the first unit and after every unit; done never decreases.
type ProgressFunc func(done, total int)

// Engine drives erase and write over a Driver.
type Engine struct {
	drv Driver

	LogFunc func(format string, params ...any)
}

func NewEngine(drv Driver) *Engine {
	return &Engine{drv: drv}
}

func (e *Engine) log(format string, params ...any) {
	if e.LogFunc != nil {
		e.LogFunc(format, params...)
	}
}

// Read copies length bytes of flash at addr into dst.
func (e *Engine) Read(dst []byte, addr uint32, length uint32) {
	e.drv.ReadBytes(addr, dst[:length])
}

// Erase erases every sector overlapping [addr, addr+length). Partial-sector
// erase is impossible on the hardware, so a sector is erased in full even if
// only one byte of it overlaps the range.
func (e *Engine) Erase(addr uint32, length uint32, onProgress ProgressFunc) bool {
	if length == 0 {
		return true
	}

	end := addr + length

	total := 0
	for a := addr; a < end; {
		start, size := e.drv.SectorOf(a)
		total++
		a = start + size
	}

	if onProgress != nil {
		onProgress(0, total)
	}

	done := 0
	for a := addr; a < end; {
		start, size := e.drv.SectorOf(a)

		if !e.drv.EraseSector(start) {
			e.log("erase failed at %#08x", start)
			return false
		}

		done++
		if onProgress != nil {
			onProgress(done, total)
		}

		a = start + size
	}

	return true
}

/* Write granularity for progress reporting. */
const writeBlock = 4096

// Write programs data into already-erased flash. The result is undefined if
// the destination was not erased first; the hardware cannot detect that and
// neither does this engine.
func (e *Engine) Write(addr uint32, data []byte, onProgress ProgressFunc) bool {
	total := (len(data) + writeBlock - 1) / writeBlock

	if onProgress != nil {
		onProgress(0, total)
	}

	done := 0
	for len(data) > 0 {
		n := writeBlock
		if n > len(data) {
			n = len(data)
		}

		if !e.drv.Write(addr, data[:n]) {
			e.log("write failed at %#08x", addr)
			return false
		}

		addr += uint32(n)
		data = data[n:]

		done++
		if onProgress != nil {
			onProgress(done, total)
		}
	}

	return true
}
