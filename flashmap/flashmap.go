// Package flashmap fixes the flash address space partitioning. The three
// external windows (staging, safe firmware, MFG info) and the single internal
// running-firmware window are a contract shared with the packaging tool and
// the firmware; the addresses are board-specific constants.
package flashmap

// Region is a fixed (address, length) window in flash address space.
type Region struct {
	Name   string
	Addr   uint32
	Length uint32
}

func (r Region) End() uint32 {
	return r.Addr + r.Length
}

// Contains reports whether [addr, addr+length) lies fully inside the region.
func (r Region) Contains(addr, length uint32) bool {
	return addr >= r.Addr && addr+length <= r.End() && addr+length >= addr
}

// Overlaps reports whether two regions share any byte.
func (r Region) Overlaps(o Region) bool {
	return r.Addr < o.End() && o.Addr < r.End()
}

/* External (parallel NOR) flash windows. */
var (
	Scratch      = Region{Name: "firmware scratch", Addr: 0x0020_0000, Length: 0x0010_0000}
	SafeFirmware = Region{Name: "safe firmware", Addr: 0x0030_0000, Length: 0x0010_0000}
	MfgInfo      = Region{Name: "mfg info", Addr: 0x000e_0000, Length: 0x0002_0000}
)

/* Internal (MCU) flash. The first two sectors hold this bootloader and are
 * never a copy destination. */
var (
	RunningFirmware = Region{Name: "running firmware", Addr: 0x0800_8000, Length: 0x000f_8000}
)

// ExternalRegions lists every external window, used by the non-overlap checks.
func ExternalRegions() []Region {
	return []Region{Scratch, SafeFirmware, MfgInfo}
}
