// Command mkfw packages a firmware binary for the staging or safe-firmware
// flash window: it prefixes the fixed firmware description (length and
// CRC) that the bootloader validates before copying the image.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/marcinbor85/gohex"

	"github.com/quartzlabs/dualboot/extflash"
	"github.com/quartzlabs/dualboot/fwimage"
)

func main() {
	out := flag.String("out", "", "output file (default: input with .fw suffix)")

	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: mkfw [-out FILE] FIRMWARE.bin|FIRMWARE.hex")
		os.Exit(1)
	}

	in := flag.Arg(0)

	var payload []byte
	var err error
	if strings.HasSuffix(in, ".hex") {
		payload, err = readIntelHex(in)
	} else {
		payload, err = os.ReadFile(in)
	}
	if err != nil {
		log.Fatalln(err)
	}
	if len(payload) == 0 {
		log.Fatalln("input image is empty")
	}

	desc := fwimage.Description{
		DescriptionLength: fwimage.DescriptionSize,
		FirmwareLength:    uint32(len(payload)),
		Checksum:          extflash.ChecksumBuffer(payload),
	}

	packaged := make([]byte, fwimage.DescriptionSize+len(payload))
	desc.Encode(packaged)
	copy(packaged[fwimage.DescriptionSize:], payload)

	path := *out
	if path == "" {
		path = in + ".fw"
	}

	if err := os.WriteFile(path, packaged, 0644); err != nil {
		log.Fatalln(err)
	}

	fmt.Printf("%s: %d bytes, checksum %08x\n", path, desc.FirmwareLength, desc.Checksum)
}

// readIntelHex flattens a HEX file into one contiguous image starting at its
// lowest address, with gaps filled with erased flash.
func readIntelHex(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(f); err != nil {
		return nil, err
	}

	segments := mem.GetDataSegments()
	if len(segments) == 0 {
		return nil, fmt.Errorf("%s: no data records", path)
	}

	base := segments[0].Address
	end := base
	for _, s := range segments {
		if s.Address < base {
			base = s.Address
		}
		if e := s.Address + uint32(len(s.Data)); e > end {
			end = e
		}
	}

	payload := make([]byte, end-base)
	for i := range payload {
		payload[i] = 0xff
	}
	for _, s := range segments {
		copy(payload[s.Address-base:], s.Data)
	}

	return payload, nil
}
