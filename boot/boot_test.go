package boot_test

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/quartzlabs/dualboot/boot"
	"github.com/quartzlabs/dualboot/bootbits"
	"github.com/quartzlabs/dualboot/emul"
	"github.com/quartzlabs/dualboot/extflash"
	"github.com/quartzlabs/dualboot/flashmap"
	"github.com/quartzlabs/dualboot/fwcopy"
	"github.com/quartzlabs/dualboot/fwimage"
	"github.com/quartzlabs/dualboot/intflash"
)

const (
	runningSP = 0x2000_8000
	runningPC = 0x0800_8199

	recoverySP = 0x2000_4000
	recoveryPC = 0x0800_8355
)

type rig struct {
	bits     *bootbits.RegisterStore
	buttons  *bootbits.ButtonCounter
	ext      *emul.Flash
	internal *emul.Flash
	hw       *emul.Machine
	b        *boot.Boot
}

func newRig() *rig {
	backup := emul.NewBackup(3)
	bits := bootbits.NewRegisterStore(backup.Word(0), backup.Word(1))
	bits.Init()
	buttons := bootbits.NewButtonCounter(backup.Word(2))

	ext := emul.NewFlash(0, 8*1024*1024, 128*1024)
	internal := emul.NewFlash(0x0800_0000, 1024*1024, 16*1024)

	extF := extflash.New(ext)
	run := intflash.NewEngine(internal)
	copier := fwcopy.New(bits, extF, run)

	opts := boot.DefaultOptions()
	opts.ComboHold = 50 * time.Millisecond
	opts.StuckThreshold = 3

	hw := &emul.Machine{}

	return &rig{
		bits:     bits,
		buttons:  buttons,
		ext:      ext,
		internal: internal,
		hw:       hw,
		b:        boot.New(bits, buttons, extF, run, copier, hw, opts),
	}
}

/* decide runs one boot, clearing the per-boot machine outputs first so every
 * assertion sees only what this boot did. */
func (r *rig) decide() boot.Decision {
	r.hw.Jumped = false
	r.hw.WatchdogArmed = false
	r.hw.PeripheralsReset = false
	return r.b.Decide()
}

func payloadWith(sp, pc uint32, length int) []byte {
	p := make([]byte, length)
	binary.LittleEndian.PutUint32(p[0:], sp)
	binary.LittleEndian.PutUint32(p[4:], pc)
	for i := 8; i < length; i++ {
		p[i] = byte(i * 13)
	}
	return p
}

func imageWith(sp, pc uint32, length int) []byte {
	payload := payloadWith(sp, pc, length)

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

func (r *rig) installRunning() {
	r.internal.Program(flashmap.RunningFirmware.Addr, payloadWith(runningSP, runningPC, 20000))
}

func (r *rig) stageSafe() {
	r.ext.Program(flashmap.SafeFirmware.Addr, imageWith(recoverySP, recoveryPC, 24000))
}

func expectJump(t *testing.T, d boot.Decision, sp, pc uint32) {
	t.Helper()

	if d.Kind != boot.DecideJump {
		t.Fatalf("expected a jump, got kind %d code %d", d.Kind, d.Code)
	}
	if d.SP != sp || d.PC != pc {
		t.Fatalf("jumping to %08x/%08x, want %08x/%08x", d.SP, d.PC, sp, pc)
	}
}

func expectHalt(t *testing.T, d boot.Decision, code uint32) {
	t.Helper()

	if d.Kind != boot.DecideHalt {
		t.Fatalf("expected a halt, got kind %d", d.Kind)
	}
	if d.Code != code {
		t.Fatalf("halted with code %d, want %d", d.Code, code)
	}
}

func TestCleanBootJumps(t *testing.T) {
	r := newRig()
	r.installRunning()

	d := r.decide()
	expectJump(t, d, runningSP, runningPC)

	if r.internal.Erases != 0 || r.internal.Writes != 0 {
		t.Error("clean boot touched internal flash")
	}
	if !r.hw.WatchdogArmed {
		t.Error("watchdog not armed before the jump")
	}
	if !r.hw.PeripheralsReset {
		t.Error("peripherals not reset before the jump")
	}
}

func TestWatchdogStaysOffWhenDisabled(t *testing.T) {
	r := newRig()
	r.installRunning()

	opts := boot.DefaultOptions()
	opts.DisableWatchdog = true
	r.b = boot.New(r.bits, r.buttons, extflash.New(r.ext),
		intflash.NewEngine(r.internal), fwcopy.New(r.bits, extflash.New(r.ext), intflash.NewEngine(r.internal)),
		r.hw, opts)

	if d := r.decide(); d.Kind != boot.DecideJump {
		t.Fatal("expected a jump")
	}
	if r.hw.WatchdogArmed {
		t.Error("watchdog armed despite DisableWatchdog")
	}
}

func TestStandbyWakeResetsBeforeAnythingElse(t *testing.T) {
	r := newRig()
	r.installRunning()
	r.bits.Set(bootbits.NewFWAvailable)
	r.hw.StandbyWake = true

	if d := r.decide(); d.Kind != boot.DecideReset {
		t.Fatal("standby wake did not reset")
	}

	if r.hw.StandbyWake {
		t.Error("standby wake flag not cleared")
	}
	if r.internal.Erases != 0 {
		t.Error("flash touched on a standby wake")
	}
	/* The pending update must survive for the boot after the reset. */
	if !r.bits.Test(bootbits.NewFWAvailable) {
		t.Error("pending update lost across the standby reset")
	}
}

func TestStableFirmwareClearsFailureState(t *testing.T) {
	r := newRig()
	r.installRunning()

	r.bits.Set(bootbits.FWStable)
	r.bits.Set(bootbits.FWStartFailStrikeOne)
	r.bits.Set(bootbits.FWStartFailStrikeTwo)
	r.bits.Set(bootbits.RecoveryLoadFailStrikeOne)
	r.bits.Set(bootbits.ResetLoopDetectOne)
	r.bits.Set(bootbits.ResetLoopDetectThree)

	d := r.decide()
	expectJump(t, d, runningSP, runningPC)

	for _, b := range []bootbits.Bit{
		bootbits.FWStable,
		bootbits.FWStartFailStrikeOne,
		bootbits.FWStartFailStrikeTwo,
		bootbits.RecoveryLoadFailStrikeOne,
		bootbits.RecoveryLoadFailStrikeTwo,
	} {
		if r.bits.Test(b) {
			t.Errorf("%s still set after a stable boot", b)
		}
	}

	/* The loop counter was wiped, then counted this boot. */
	if !r.bits.Test(bootbits.ResetLoopDetectOne) ||
		r.bits.Test(bootbits.ResetLoopDetectTwo) ||
		r.bits.Test(bootbits.ResetLoopDetectThree) {
		t.Error("reset-loop counter not restarted by a stable boot")
	}
}

func TestRepeatedStableBootsStayClean(t *testing.T) {
	r := newRig()
	r.installRunning()

	for i := 0; i < 5; i++ {
		/* The firmware marks itself stable every session. */
		r.bits.Set(bootbits.FWStable)

		d := r.decide()
		expectJump(t, d, runningSP, runningPC)

		if r.bits.Test(bootbits.FWStartFailStrikeOne) || r.bits.Test(bootbits.FWStartFailStrikeTwo) {
			t.Fatalf("boot %d accumulated strikes", i)
		}
	}

	if r.internal.Erases != 0 {
		t.Error("stable boots touched internal flash")
	}
}

func TestSingleCrashDoesNotTriggerRecovery(t *testing.T) {
	r := newRig()
	r.installRunning()
	r.stageSafe()

	r.hw.Watchdog = true
	d := r.decide()
	expectJump(t, d, runningSP, runningPC)

	if !r.bits.Test(bootbits.FWStartFailStrikeOne) {
		t.Error("crash not recorded")
	}

	/* Next session comes up without a watchdog reset. */
	d = r.decide()
	expectJump(t, d, runningSP, runningPC)

	if r.bits.Test(bootbits.FWStartFailStrikeOne) || r.bits.Test(bootbits.FWStartFailStrikeTwo) {
		t.Error("strike not forgiven after a clean start")
	}
	if r.internal.Erases != 0 {
		t.Error("a transient crash reached recovery")
	}
}

func TestThreeCrashesLoadRecovery(t *testing.T) {
	r := newRig()
	r.installRunning()
	r.stageSafe()

	for i := 0; i < 2; i++ {
		r.hw.Watchdog = true
		d := r.decide()
		expectJump(t, d, runningSP, runningPC)
	}
	if r.internal.Erases != 0 {
		t.Fatal("recovery loaded before the third strike")
	}

	r.hw.Watchdog = true
	d := r.decide()
	expectJump(t, d, recoverySP, recoveryPC)

	if !r.bits.Test(bootbits.RecoveryStartInProgress) {
		t.Error("recovery start not flagged")
	}

	want := payloadWith(recoverySP, recoveryPC, 24000)
	if !bytes.Equal(r.internal.Bytes(flashmap.RunningFirmware.Addr, uint32(len(want))), want) {
		t.Error("running slot does not hold the safe firmware")
	}

	/* The recovery session comes up and behaves. */
	r.bits.Clear(bootbits.RecoveryStartInProgress)
	r.bits.Set(bootbits.FWStable)

	d = r.decide()
	expectJump(t, d, recoverySP, recoveryPC)
}

func TestInterruptedUpdateGoesToRecovery(t *testing.T) {
	r := newRig()
	r.installRunning()
	r.stageSafe()

	/* A previous boot lost power inside the copy window. */
	r.bits.Set(bootbits.NewFWUpdateInProgress)

	d := r.decide()
	expectJump(t, d, recoverySP, recoveryPC)

	if r.bits.Test(bootbits.NewFWUpdateInProgress) {
		t.Error("interrupted-update flag not consumed")
	}
	if r.bits.Test(bootbits.FWStartFailStrikeOne) || r.bits.Test(bootbits.FWStartFailStrikeTwo) {
		t.Error("interrupted update counted as a firmware-start strike")
	}
}

func TestUpdateInstall(t *testing.T) {
	r := newRig()
	r.installRunning()

	const newSP, newPC = 0x2000_c000, 0x0800_8401
	r.ext.Program(flashmap.Scratch.Addr, imageWith(newSP, newPC, 30000))
	r.bits.Set(bootbits.NewFWAvailable)

	d := r.decide()
	expectJump(t, d, newSP, newPC)

	if r.bits.Test(bootbits.NewFWAvailable) {
		t.Error("update request not consumed")
	}
	if !r.bits.Test(bootbits.NewFWInstalled) {
		t.Error("installed flag not left for the new firmware")
	}

	want := payloadWith(newSP, newPC, 30000)
	if !bytes.Equal(r.internal.Bytes(flashmap.RunningFirmware.Addr, uint32(len(want))), want) {
		t.Error("running slot does not hold the new firmware")
	}
}

func TestCorruptStagingKeepsRunningFirmware(t *testing.T) {
	r := newRig()
	r.installRunning()

	image := imageWith(0x2000_c000, 0x0800_8401, 30000)
	image[fwimage.DescriptionSize+100] ^= 0xff
	r.ext.Program(flashmap.Scratch.Addr, image)
	r.bits.Set(bootbits.NewFWAvailable)

	d := r.decide()
	expectJump(t, d, runningSP, runningPC)

	if r.internal.Erases != 0 {
		t.Error("running slot erased for a corrupt staged image")
	}
	/* Consumed even on failure, or every boot would retry forever. */
	if r.bits.Test(bootbits.NewFWAvailable) {
		t.Error("corrupt update request not consumed")
	}
}

func TestMangledUpdateRecoversNextBoot(t *testing.T) {
	r := newRig()
	r.installRunning()
	r.stageSafe()

	r.ext.Program(flashmap.Scratch.Addr, imageWith(0x2000_c000, 0x0800_8401, 30000))
	r.bits.Set(bootbits.NewFWAvailable)
	r.internal.EraseFailures = 1

	if d := r.decide(); d.Kind != boot.DecideReset {
		t.Fatal("mangled update did not reset")
	}
	if !r.bits.Test(bootbits.FWStartFailStrikeOne) || !r.bits.Test(bootbits.FWStartFailStrikeTwo) {
		t.Error("strike counter not forced to maximum")
	}

	d := r.decide()
	expectJump(t, d, recoverySP, recoveryPC)
}

func TestPowerCutMidUpdateDispatchesRecovery(t *testing.T) {
	r := newRig()
	r.installRunning()
	r.stageSafe()

	r.ext.Program(flashmap.Scratch.Addr, imageWith(0x2000_c000, 0x0800_8401, 30000))
	r.bits.Set(bootbits.NewFWAvailable)

	/* Power dies during the third block write: the vector table of the new
	 * image is already in place, the rest of the slot is not. */
	r.internal.PowerCutAfterWrites = 3

	cut := emul.CatchPowerCut(func() { r.decide() })
	if !cut {
		t.Fatal("power cut did not trigger")
	}
	if !r.bits.Test(bootbits.NewFWUpdateInProgress) {
		t.Fatal("interrupted update not flagged for the next boot")
	}

	/* Next power-on must not jump into the half-written slot, valid-looking
	 * vector or not. */
	d := r.decide()
	expectJump(t, d, recoverySP, recoveryPC)
}

func TestResetLoopHalts(t *testing.T) {
	r := newRig()
	r.installRunning()

	/* Six boots that all look individually fine. */
	for i := 0; i < 6; i++ {
		d := r.decide()
		expectJump(t, d, runningSP, runningPC)
	}

	d := r.decide()
	expectHalt(t, d, boot.CodeResetLoop)

	/* The counter restarts, a button-reset out of the halt gets a full new
	 * set of attempts. */
	if r.bits.Test(bootbits.ResetLoopDetectOne) ||
		r.bits.Test(bootbits.ResetLoopDetectTwo) ||
		r.bits.Test(bootbits.ResetLoopDetectThree) {
		t.Error("reset-loop counter not cleared at the halt")
	}
}

func TestRecoveryCrashHaltsEvenWhenForced(t *testing.T) {
	r := newRig()
	r.installRunning()
	r.stageSafe()

	r.bits.Set(bootbits.RecoveryStartInProgress)
	r.bits.Set(bootbits.ForcePRF)

	d := r.decide()
	expectHalt(t, d, boot.CodeCannotLoadFirmware)

	if r.internal.Erases != 0 {
		t.Error("recovery reloaded after the recovery image itself crashed")
	}
}

func TestRecoveryLoadThreeStrikesHalts(t *testing.T) {
	r := newRig()
	r.installRunning()
	/* Safe-firmware region left erased: every load attempt fails. */

	for i := 0; i < 2; i++ {
		r.bits.Set(bootbits.ForcePRF)
		if d := r.decide(); d.Kind != boot.DecideReset {
			t.Fatalf("attempt %d: expected a reset", i)
		}
	}

	r.bits.Set(bootbits.ForcePRF)
	d := r.decide()
	expectHalt(t, d, boot.CodeCannotLoadFirmware)
}

func TestForcedRecoveryByCombo(t *testing.T) {
	r := newRig()
	r.installRunning()
	r.stageSafe()

	r.hw.Buttons = boot.ButtonBack | boot.ButtonSelect

	d := r.decide()
	expectJump(t, d, recoverySP, recoveryPC)

	if r.hw.Delayed < 50*time.Millisecond {
		t.Error("hold window not waited out:", r.hw.Delayed)
	}
}

func TestComboReleaseAborts(t *testing.T) {
	r := newRig()
	r.installRunning()
	r.stageSafe()

	combo := boot.ButtonBack | boot.ButtonSelect
	/* Held through the self test and the first polls, then released. */
	r.hw.ButtonScript = []boot.ButtonMask{combo, combo, combo, 0}

	d := r.decide()
	expectJump(t, d, runningSP, runningPC)

	if r.internal.Erases != 0 {
		t.Error("released combination still forced recovery")
	}
}

func TestStuckButtonHalts(t *testing.T) {
	r := newRig()
	r.installRunning()

	r.hw.Buttons = boot.ButtonUp

	for i := 0; i < 2; i++ {
		if d := r.decide(); d.Kind != boot.DecideJump {
			t.Fatalf("boot %d: halted before the threshold", i)
		}
	}

	d := r.decide()
	expectHalt(t, d, boot.CodeStuckButton)
}

func TestReleasedButtonResetsItsCounter(t *testing.T) {
	r := newRig()
	r.installRunning()

	r.hw.Buttons = boot.ButtonUp
	r.decide()
	r.decide()

	r.hw.Buttons = 0
	r.decide()

	if r.buttons.Get(1) != 0 {
		t.Error("counter survived a release:", r.buttons.Get(1))
	}
}

func TestBadFlashHalts(t *testing.T) {
	r := newRig()
	r.installRunning()
	r.ext.CFIBroken = true

	d := r.decide()
	expectHalt(t, d, boot.CodeBadFlash)
}

func TestErasedRunningSlotLoadsRecovery(t *testing.T) {
	r := newRig()
	/* Running slot left erased, as shipped from the factory. */
	r.stageSafe()

	d := r.decide()
	expectJump(t, d, recoverySP, recoveryPC)
}

func TestSadWatchResetsOnButtonTransition(t *testing.T) {
	r := newRig()
	r.installRunning()
	r.bits.Set(bootbits.RecoveryStartInProgress)

	/* Idle when the halt starts, then the back button goes down. */
	r.hw.ButtonScript = []boot.ButtonMask{0, 0, boot.ButtonBack}

	r.b.Run()

	if len(r.hw.Codes) != 1 || r.hw.Codes[0] != boot.CodeCannotLoadFirmware {
		t.Error("wrong codes displayed:", r.hw.Codes)
	}
	if r.hw.Resets != 1 {
		t.Error("button transition did not reset:", r.hw.Resets)
	}
}

func TestRunExecutesReset(t *testing.T) {
	r := newRig()
	r.hw.StandbyWake = true

	r.b.Run()

	if r.hw.Resets != 1 {
		t.Error("reset decision not executed")
	}
}
