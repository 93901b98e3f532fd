// Package mfginfo reads the manufacturing info record from its external
// flash window. The record is written once at the factory; a missing or
// corrupt record is reported but never fatal.
package mfginfo

import (
	"encoding/binary"
	"errors"

	"github.com/sigurn/crc8"

	"github.com/quartzlabs/dualboot/extflash"
	"github.com/quartzlabs/dualboot/flashmap"
)

/* Packed on-flash layout:
 *   magic      u32 (little endian)
 *   hwRevision u8
 *   serial     [12]byte, NUL padded
 *   color      u8
 *   crc        u8 over all preceding bytes
 */
const (
	recordMagic = 0x4d464721 // "!GFM"
	recordSize  = 4 + 1 + 12 + 1 + 1
)

var crcTable = crc8.MakeTable(crc8.CRC8_MAXIM)

var (
	ErrorBadMagic = errors.New("mfg record magic is not valid")
	ErrorBadCRC   = errors.New("mfg record CRC is not valid")
)

type Record struct {
	HWRevision uint8
	Serial     string
	Color      uint8
}

// Read parses the record at the start of the MFG info window.
func Read(flash *extflash.Flash) (Record, error) {
	var buf [recordSize]byte
	flash.Read(buf[:], flashmap.MfgInfo.Addr, recordSize)
	return decode(buf[:])
}

func decode(buf []byte) (Record, error) {
	if binary.LittleEndian.Uint32(buf[0:4]) != recordMagic {
		return Record{}, ErrorBadMagic
	}

	if crc8.Checksum(buf[:recordSize-1], crcTable) != buf[recordSize-1] {
		return Record{}, ErrorBadCRC
	}

	serial := buf[5 : 5+12]
	n := 0
	for n < len(serial) && serial[n] != 0 {
		n++
	}

	return Record{
		HWRevision: buf[4],
		Serial:     string(serial[:n]),
		Color:      buf[17],
	}, nil
}

// Encode builds the packed record including its CRC. Factory tool and test
// helper; the bootloader only reads.
func (r Record) Encode() []byte {
	buf := make([]byte, recordSize)

	binary.LittleEndian.PutUint32(buf[0:4], recordMagic)
	buf[4] = r.HWRevision
	copy(buf[5:5+12], r.Serial)
	buf[17] = r.Color
	buf[recordSize-1] = crc8.Checksum(buf[:recordSize-1], crcTable)

	return buf
}
