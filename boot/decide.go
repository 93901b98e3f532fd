package boot

import (
	"github.com/quartzlabs/dualboot/bootbits"
	"github.com/quartzlabs/dualboot/flashmap"
	"github.com/quartzlabs/dualboot/fwcopy"
)

// DecisionKind is the terminal action of one boot.
type DecisionKind int

const (
	// DecideReset: perform a full hardware reset and start over.
	DecideReset DecisionKind = iota

	// DecideHalt: enter the diagnostic halt loop with Code on the display.
	DecideHalt

	// DecideJump: hand the CPU to the firmware at SP/PC.
	DecideJump
)

type Decision struct {
	Kind DecisionKind
	Code uint32
	SP   uint32
	PC   uint32
}

func halt(code uint32) Decision {
	return Decision{Kind: DecideHalt, Code: code}
}

// Decide runs the boot decision sequence. It mutates the boot bits as it
// goes; the bit state it leaves behind is what the next boot observes.
//
// The ordering is load bearing. A standby wake is handled before any other
// peripheral is touched, and a previously crashed recovery start is fatal
// before a fresh forced-recovery request is even considered.
func (b *Boot) Decide() Decision {
	/* 1: peripherals are unreliable after a standby wake, get a clean
	 * reset before initializing anything beyond the power controller. */
	if b.hw.WokeFromStandby() {
		b.hw.ClearStandbyWake()
		return Decision{Kind: DecideReset}
	}

	bootbits.Dump(b.bits, b.LogFunc)

	/* 2: a firmware that marked itself stable earns a clean slate. */
	if b.bits.Test(bootbits.FWStable) {
		b.bits.Clear(bootbits.FWStable)
		fwStartStrikes.clear(b.bits)
		recoveryLoadStrikes.clear(b.bits)
		resetLoopStore(b.bits, 0)
	}

	/* 3: unrecoverable hardware faults. */
	if code, bad := b.selfTest(); bad {
		return halt(code)
	}

	/* 4: the recovery image itself crashed before it could clear this
	 * flag. The fallback path is exhausted; this wins over any fresh
	 * forced-recovery request. */
	if b.bits.Test(bootbits.RecoveryStartInProgress) {
		b.log("recovery firmware crashed on a previous boot")
		return halt(CodeCannotLoadFirmware)
	}

	/* 5: forced recovery, by external request, button combination or an
	 * erased running-firmware slot. */
	needRecovery := false
	if b.bits.Test(bootbits.ForcePRF) {
		b.bits.Clear(bootbits.ForcePRF)
		b.log("recovery forced by boot bit")
		needRecovery = true
	} else if b.comboHeld() {
		b.log("recovery forced by button combination")
		needRecovery = true
	}

	_, pc := b.vector()
	if pc == erasedVector {
		b.log("running firmware slot is erased")
		needRecovery = true
	}

	/* An update that never finished leaves this bit behind. The slot
	 * cannot be trusted, so recovery replaces it; counting strikes first
	 * would mean jumping into a possibly mangled image. */
	if b.bits.Test(bootbits.NewFWUpdateInProgress) {
		b.bits.Clear(bootbits.NewFWUpdateInProgress)
		b.log("previous firmware update was interrupted")
		needRecovery = true
	}

	/* 6: firmware-start failure bookkeeping, three strikes. */
	if !needRecovery {
		if !b.hw.WatchdogFired() && !b.bits.Test(bootbits.SoftwareFailureOccurred) {
			fwStartStrikes.clear(b.bits)
		} else {
			b.hw.ClearWatchdogFlag()
			b.bits.Clear(bootbits.SoftwareFailureOccurred)

			if fwStartStrikes.record(b.bits) {
				b.log("firmware failed to start three times")
				needRecovery = true
			}
		}
	}

	/* 7: dispatch. */
	if needRecovery {
		if d, done := b.loadRecovery(); done {
			return d
		}
	} else if b.bits.Test(bootbits.NewFWAvailable) {
		b.bits.Clear(bootbits.NewFWAvailable)

		outcome := b.copier.Copy(fwcopy.KindUpdate, flashmap.Scratch, flashmap.RunningFirmware)
		b.log("firmware update: %s", outcome)

		if outcome == fwcopy.ErrorDestinationMangled {
			/* The running slot is corrupt. Force the strike counter
			 * to maximum so the next boot goes straight to
			 * recovery. */
			fwStartStrikes.max(b.bits)
			return Decision{Kind: DecideReset}
		}
	}

	/* 8: reset-loop detector, independent of the strike counters. */
	v := resetLoopValue(b.bits) + 1
	if v >= 7 {
		resetLoopStore(b.bits, 0)
		b.log("reset loop detected")
		return halt(CodeResetLoop)
	}
	resetLoopStore(b.bits, v)

	/* 9: irreversible handoff. */
	if !b.opts.DisableWatchdog {
		b.hw.ArmWatchdog()
	}
	b.hw.ResetPeripherals()

	sp, pc := b.vector()
	b.log("booting firmware: sp=%08x pc=%08x", sp, pc)
	return Decision{Kind: DecideJump, SP: sp, PC: pc}
}

// loadRecovery copies the safe firmware into the running slot, applying its
// own three-strikes counter. Returns a terminal decision and true, or false
// to continue the sequence toward the jump.
func (b *Boot) loadRecovery() (Decision, bool) {
	outcome := b.copier.Copy(fwcopy.KindRecovery, flashmap.SafeFirmware, flashmap.RunningFirmware)
	b.log("recovery firmware load: %s", outcome)

	if outcome != fwcopy.Success {
		if recoveryLoadStrikes.record(b.bits) {
			b.log("recovery firmware failed to load three times")
			return halt(CodeCannotLoadFirmware), true
		}
		return Decision{Kind: DecideReset}, true
	}

	recoveryLoadStrikes.clear(b.bits)

	/* The recovery firmware clears this once it is up; finding it still
	 * set next boot means even recovery cannot run. */
	b.bits.Set(bootbits.RecoveryStartInProgress)
	return Decision{}, false
}

// selfTest runs the stuck-button and flash identification checks. Both are
// hardware faults an operator has to look at, not retryable conditions.
func (b *Boot) selfTest() (code uint32, bad bool) {
	held := b.hw.ButtonsHeld()

	for i := 0; i < NumButtons; i++ {
		if held&(1<<i) == 0 {
			b.buttons.Reset(i)
			continue
		}

		if b.buttons.Increment(i) >= b.opts.StuckThreshold {
			b.log("button %d held for %d consecutive boots", i, b.opts.StuckThreshold)
			return CodeStuckButton, true
		}
	}

	if !b.ext.SanityCheck() {
		return CodeBadFlash, true
	}

	return 0, false
}

// comboHeld polls the forced-recovery combination for the hold window,
// aborting the moment it is released.
func (b *Boot) comboHeld() bool {
	if b.hw.ButtonsHeld()&comboForceRecovery != comboForceRecovery {
		return false
	}

	iterations := int(b.opts.ComboHold / b.opts.PollInterval)
	for i := 0; i < iterations; i++ {
		b.hw.Delay(b.opts.PollInterval)

		if b.hw.ButtonsHeld()&comboForceRecovery != comboForceRecovery {
			return false
		}
	}

	return true
}
