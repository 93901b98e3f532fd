// Package fwcopy validates, erases, copies and verifies a firmware image
// from an external flash window into the internal running-firmware slot.
//
// The sequence is not atomic. Between erase and verify the destination is
// not runnable; the NEW_FW_UPDATE_IN_PROGRESS boot bit set on entry is the
// only thing that makes a crash inside that window detectable on the next
// boot.
package fwcopy

import (
	"github.com/quartzlabs/dualboot/bootbits"
	"github.com/quartzlabs/dualboot/extflash"
	"github.com/quartzlabs/dualboot/flashmap"
	"github.com/quartzlabs/dualboot/fwimage"
	"github.com/quartzlabs/dualboot/intflash"
)

// Outcome is the result of one copy attempt, consumed immediately by the
// boot decision logic and never persisted.
type Outcome int

const (
	// Success: destination holds a verified copy of the source image.
	Success Outcome = iota

	// ErrorSourceUntouched: the source failed validation before anything
	// was erased; whatever was runnable before still is.
	ErrorSourceUntouched

	// ErrorDestinationMangled: the destination was erased or partially
	// written and did not verify. The running-firmware slot is corrupt and
	// the next boot must not jump into it.
	ErrorDestinationMangled
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case ErrorSourceUntouched:
		return "source untouched"
	case ErrorDestinationMangled:
		return "destination mangled"
	}
	return "unknown"
}

// Kind distinguishes a new firmware install from a switch to the recovery
// image.
type Kind int

const (
	KindUpdate Kind = iota
	KindRecovery
)

type Engine struct {
	bits bootbits.Store
	src  *extflash.Flash
	dst  *intflash.Engine

	// OnProgress receives an overall 0..100 percentage, erase mapped to
	// the first half and write to the second. Optional.
	OnProgress func(percent int)

	LogFunc func(format string, params ...any)
}

func New(bits bootbits.Store, src *extflash.Flash, dst *intflash.Engine) *Engine {
	return &Engine{
		bits: bits,
		src:  src,
		dst:  dst,
	}
}

func (e *Engine) log(format string, params ...any) {
	if e.LogFunc != nil {
		e.LogFunc(format, params...)
	}
}

func (e *Engine) progress(percent int) {
	if e.OnProgress != nil {
		e.OnProgress(percent)
	}
}

const copyChunk = 4096

// Copy runs the whole install sequence from source into dest.
//
// On Success and ErrorSourceUntouched the in-progress boot bit is cleared
// before returning. On ErrorDestinationMangled it stays set, so a reset
// before the caller reacts still leaves the next boot distrusting the
// destination slot.
func (e *Engine) Copy(kind Kind, source flashmap.Region, dest flashmap.Region) Outcome {
	e.bits.Set(bootbits.NewFWUpdateInProgress)

	desc := fwimage.ReadDescription(e.srcRead, source.Addr)
	if !desc.IsValid() {
		e.log("no valid firmware description in %s", source.Name)
		e.bits.Clear(bootbits.NewFWUpdateInProgress)
		return ErrorSourceUntouched
	}

	imageAddr := source.Addr + fwimage.DescriptionSize

	crc := e.src.Checksum(imageAddr, desc.FirmwareLength)
	if crc != desc.Checksum {
		e.log("source checksum mismatch: %08x != %08x", crc, desc.Checksum)
		e.bits.Clear(bootbits.NewFWUpdateInProgress)
		return ErrorSourceUntouched
	}

	/* Point of no return: the destination stops being runnable here. */
	if !e.dst.Erase(dest.Addr, desc.FirmwareLength, func(done, total int) {
		e.progress(done * 50 / total)
	}) {
		return ErrorDestinationMangled
	}

	if !e.copyImage(imageAddr, dest.Addr, desc.FirmwareLength) {
		return ErrorDestinationMangled
	}

	crc = extflash.ChecksumFunc(e.dstRead, dest.Addr, desc.FirmwareLength)
	if crc != desc.Checksum {
		e.log("destination checksum mismatch: %08x != %08x", crc, desc.Checksum)
		return ErrorDestinationMangled
	}

	if kind == KindUpdate {
		e.bits.Set(bootbits.NewFWInstalled)
	}
	e.bits.Clear(bootbits.NewFWUpdateInProgress)

	e.progress(100)
	e.log("firmware copy done: %d bytes into %s", desc.FirmwareLength, dest.Name)
	return Success
}

func (e *Engine) copyImage(srcAddr, dstAddr uint32, length uint32) bool {
	var buf [copyChunk]byte

	total := int((length + copyChunk - 1) / copyChunk)
	done := 0

	for length > 0 {
		n := uint32(copyChunk)
		if n > length {
			n = length
		}

		e.src.Read(buf[:n], srcAddr, n)
		if !e.dst.Write(dstAddr, buf[:n], nil) {
			return false
		}

		srcAddr += n
		dstAddr += n
		length -= n

		done++
		e.progress(50 + done*50/total)
	}

	return true
}

func (e *Engine) srcRead(addr uint32, p []byte) {
	e.src.Read(p, addr, uint32(len(p)))
}

func (e *Engine) dstRead(addr uint32, p []byte) {
	e.dst.Read(p, addr, uint32(len(p)))
}
