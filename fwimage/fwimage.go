// Package fwimage reads the fixed-layout descriptor prefixed to every
// firmware image stored in flash. The packed little-endian layout
// {description_length, firmware_length, checksum} is produced by the
// packaging tool and is frozen for on-flash compatibility.
package fwimage

import (
	"encoding/binary"
)

// DescriptionSize is the exact on-flash size of the descriptor.
const DescriptionSize = 12

// Description is the record in front of a firmware image. Checksum covers
// FirmwareLength bytes immediately following the descriptor.
type Description struct {
	DescriptionLength uint32
	FirmwareLength    uint32
	Checksum          uint32
}

// ReadDescription copies the descriptor at addr using the given read
// primitive. Raw byte copy, no interpretation.
func ReadDescription(read func(addr uint32, p []byte), addr uint32) Description {
	var buf [DescriptionSize]byte
	read(addr, buf[:])
	return Decode(buf[:])
}

// IsValid reports whether the descriptor looks like one this bootloader
// understands. Only the struct size is checked; FirmwareLength is
// deliberately not bounds-checked against any region, images from old
// packaging tools must keep loading.
func (d Description) IsValid() bool {
	return d.DescriptionLength == DescriptionSize
}

// Decode parses the packed descriptor. p must hold DescriptionSize bytes.
func Decode(p []byte) Description {
	return Description{
		DescriptionLength: binary.LittleEndian.Uint32(p[0:]),
		FirmwareLength:    binary.LittleEndian.Uint32(p[4:]),
		Checksum:          binary.LittleEndian.Uint32(p[8:]),
	}
}

// Encode writes the packed descriptor into p. Used by the packaging tool and
// the tests; the bootloader itself never writes descriptors.
func (d Description) Encode(p []byte) {
	binary.LittleEndian.PutUint32(p[0:], d.DescriptionLength)
	binary.LittleEndian.PutUint32(p[4:], d.FirmwareLength)
	binary.LittleEndian.PutUint32(p[8:], d.Checksum)
}
