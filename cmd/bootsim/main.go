// Command bootsim runs the boot decision logic against the emulated machine
// for a number of consecutive boots, with faults injected from the command
// line. It exists to reproduce field failure sequences on a desk.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/quartzlabs/dualboot/boot"
	"github.com/quartzlabs/dualboot/bootbits"
	"github.com/quartzlabs/dualboot/emul"
	"github.com/quartzlabs/dualboot/extflash"
	"github.com/quartzlabs/dualboot/flashmap"
	"github.com/quartzlabs/dualboot/fwcopy"
	"github.com/quartzlabs/dualboot/fwimage"
	"github.com/quartzlabs/dualboot/intflash"
	"github.com/quartzlabs/dualboot/mfginfo"
)

const (
	extSize       = 8 * 1024 * 1024
	extSectorSize = 128 * 1024
	intBase       = 0x0800_0000
	intSize       = 1024 * 1024
	intSectorSize = 16 * 1024
)

func main() {
	boots := flag.Int("boots", 5, "number of consecutive boots to simulate")
	newFW := flag.Bool("new-fw", false, "stage an update and set NEW_FW_AVAILABLE")
	corruptStaging := flag.Bool("corrupt-staging", false, "flip one byte of the staged image")
	corruptRunning := flag.Bool("corrupt-running", false, "leave the running slot erased")
	fwCrashes := flag.Int("fw-crashes", 0, "number of boots on which the firmware crashes (watchdog reset)")
	forcePRF := flag.Bool("force-prf", false, "set FORCE_PRF before the first boot")
	noSafe := flag.Bool("no-safe", false, "leave the safe firmware window empty")
	cutWrites := flag.Int("cut-power-after", 0, "cut power during the n-th flash write of the first boot")

	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	logf := func(format string, params ...any) {
		logger.Info("boot", "msg", fmt.Sprintf(format, params...))
	}

	ext := emul.NewFlash(0, extSize, extSectorSize)
	internal := emul.NewFlash(intBase, intSize, intSectorSize)
	backup := emul.NewBackup(3)
	machine := &emul.Machine{}

	bits := bootbits.NewRegisterStore(backup.Word(0), backup.Word(1))
	bits.Init()
	buttons := bootbits.NewButtonCounter(backup.Word(2))

	image := testImage(0x4000, 0x42)
	if !*noSafe {
		ext.Program(flashmap.SafeFirmware.Addr, image)
	}
	if *newFW {
		staged := testImage(0x6000, 0x17)
		if *corruptStaging {
			staged[fwimage.DescriptionSize+100] ^= 0xff
		}
		ext.Program(flashmap.Scratch.Addr, staged)
		bits.Set(bootbits.NewFWAvailable)
	}
	if !*corruptRunning {
		internal.Program(flashmap.RunningFirmware.Addr, image[fwimage.DescriptionSize:])
	}
	if *forcePRF {
		bits.Set(bootbits.ForcePRF)
	}
	if *cutWrites > 0 {
		internal.PowerCutAfterWrites = *cutWrites
	}

	rec := mfginfo.Record{HWRevision: 3, Serial: "SIM000000001", Color: 1}
	ext.Program(flashmap.MfgInfo.Addr, rec.Encode())

	extFlash := extflash.New(ext)
	extFlash.LogFunc = logf
	engine := intflash.NewEngine(internal)
	engine.LogFunc = logf
	copier := fwcopy.New(bits, extFlash, engine)
	copier.LogFunc = logf
	copier.OnProgress = func(percent int) {
		logger.Debug("copy progress", "percent", percent)
	}

	if got, err := mfginfo.Read(extFlash); err != nil {
		logger.Warn("mfg info unreadable", "err", err)
	} else {
		logger.Info("mfg info", "serial", got.Serial, "hw", got.HWRevision, "color", got.Color)
	}

	opts := boot.DefaultOptions()
	b := boot.New(bits, buttons, extFlash, engine, copier, machine, opts)
	b.LogFunc = logf

	for n := 0; n < *boots; n++ {
		logger.Info("power on", "boot", n)

		var d boot.Decision
		cut := emul.CatchPowerCut(func() {
			d = b.Decide()
		})
		if cut {
			logger.Warn("power lost mid-boot", "boot", n)
			internal.PowerCutAfterWrites = 0
			continue
		}

		switch d.Kind {
		case boot.DecideReset:
			logger.Info("decision: reset", "boot", n)
		case boot.DecideHalt:
			logger.Error("decision: halt", "boot", n, "code", d.Code)
			return
		case boot.DecideJump:
			logger.Info("decision: jump", "boot", n,
				"sp", fmt.Sprintf("%08x", d.SP), "pc", fmt.Sprintf("%08x", d.PC))

			/* Simulate the firmware session that follows. */
			if *fwCrashes > 0 {
				*fwCrashes--
				machine.Watchdog = true
				logger.Warn("firmware crashed, watchdog reset", "boot", n)
			} else {
				bits.Set(bootbits.FWStable)
				bits.Clear(bootbits.RecoveryStartInProgress)
				logger.Info("firmware marked stable", "boot", n)
			}
		}
	}
}

func testImage(length int, fill byte) []byte {
	payload := make([]byte, length)
	for i := range payload {
		payload[i] = fill ^ byte(i)
	}

	desc := fwimage.Description{
		DescriptionLength: fwimage.DescriptionSize,
		FirmwareLength:    uint32(length),
		Checksum:          extflash.ChecksumBuffer(payload),
	}

	out := make([]byte, fwimage.DescriptionSize+length)
	desc.Encode(out)
	copy(out[fwimage.DescriptionSize:], payload)
	return out
}
