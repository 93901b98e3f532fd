// Package extflash reads the external NOR flash that holds the staging, safe
// firmware and MFG info windows.
package extflash

// Bus is the raw access the flash controller provides. ReadBytes copies
// len(p) bytes starting at addr with no bounds checking against the chip
// size; staying inside the chip is the caller's responsibility. WriteWord
// issues a single command cycle, used only for the CFI query sequence.
type Bus interface {
	ReadBytes(addr uint32, p []byte)
	WriteWord(addr uint32, v uint16)
}

type Flash struct {
	bus Bus

	LogFunc func(format string, params ...any)
}

func New(bus Bus) *Flash {
	return &Flash{bus: bus}
}

func (f *Flash) log(format string, params ...any) {
	if f.LogFunc != nil {
		f.LogFunc(format, params...)
	}
}

// Read copies length bytes at addr into dst. Infallible by construction, the
// bus reports no errors; a missing or hung chip is caught by SanityCheck.
func (f *Flash) Read(dst []byte, addr uint32, length uint32) {
	f.bus.ReadBytes(addr, dst[:length])
}

/* CFI query: one command write puts the chip in query mode, the "QRY" magic
 * appears at word offsets 0x10..0x12, a reset write returns it to array
 * mode. x16 chip, so each query word occupies two byte addresses. */
const (
	cfiQueryAddr uint32 = 0x55 * 2
	cfiQueryCmd  uint16 = 0x98
	cfiResetCmd  uint16 = 0xf0
	cfiMagicAddr uint32 = 0x10 * 2
)

// SanityCheck asks the chip to identify itself and reports whether it
// responds with the CFI magic. A false result means the flash is absent,
// miswired or hung.
func (f *Flash) SanityCheck() bool {
	f.bus.WriteWord(cfiQueryAddr, cfiQueryCmd)

	var qry [6]byte
	f.bus.ReadBytes(cfiMagicAddr, qry[:])

	f.bus.WriteWord(0, cfiResetCmd)

	ok := qry[0] == 'Q' && qry[2] == 'R' && qry[4] == 'Y'
	if !ok {
		f.log("flash sanity check failed: %02x %02x %02x", qry[0], qry[2], qry[4])
	}
	return ok
}

// Checksum streams the region [addr, addr+length) through the CRC.
func (f *Flash) Checksum(addr uint32, length uint32) uint32 {
	return ChecksumFunc(f.bus.ReadBytes, addr, length)
}
