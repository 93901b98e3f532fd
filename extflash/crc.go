package extflash

import (
	"github.com/snksoft/crc"
)

var crcTable *crc.Table

func init() {
	crcTable = crc.NewTable(crc.CRC32)
}

// ChecksumBuffer computes the firmware checksum of an in-memory buffer.
func ChecksumBuffer(p []byte) uint32 {
	h := crc.NewHashWithTable(crcTable)
	h.Update(p)
	return h.CRC32()
}

// ChecksumFunc streams [addr, addr+length) through the CRC using the given
// read primitive, in small chunks so no image-sized buffer is needed.
func ChecksumFunc(read func(addr uint32, p []byte), addr uint32, length uint32) uint32 {
	h := crc.NewHashWithTable(crcTable)

	var buf [128]byte
	for length > 0 {
		n := uint32(len(buf))
		if n > length {
			n = length
		}

		read(addr, buf[:n])
		h.Update(buf[:n])

		addr += n
		length -= n
	}

	return h.CRC32()
}
