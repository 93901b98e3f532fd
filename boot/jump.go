package boot

import (
	"encoding/binary"

	"github.com/quartzlabs/dualboot/flashmap"
)

/* An erased flash word. A running-firmware slot whose reset vector reads
 * back as this has nothing to jump into. */
const erasedVector = 0xffffffff

// vector reads the initial stack pointer and reset handler (words 0 and 1 of
// the vector table) from the running-firmware slot.
func (b *Boot) vector() (sp, pc uint32) {
	var words [8]byte
	b.run.Read(words[:], flashmap.RunningFirmware.Addr, uint32(len(words)))

	sp = binary.LittleEndian.Uint32(words[0:])
	pc = binary.LittleEndian.Uint32(words[4:])
	return sp, pc
}
