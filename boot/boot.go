// Package boot holds the boot decision state machine: the code that decides,
// on every reset, whether to run normal firmware, install an update, fall
// back to the recovery image, or halt with a diagnostic code.
package boot

import (
	"time"

	"github.com/quartzlabs/dualboot/bootbits"
	"github.com/quartzlabs/dualboot/extflash"
	"github.com/quartzlabs/dualboot/fwcopy"
	"github.com/quartzlabs/dualboot/intflash"
)

// Options tunes the timing and thresholds of the decision sequence. All
// waiting is bounded busy-wait polling; tests inject short intervals and an
// emulated Delay.
type Options struct {
	// DisableWatchdog skips arming the watchdog before the jump. Debug
	// builds only.
	DisableWatchdog bool

	// ComboHold is how long the forced-recovery button combination must be
	// held, polled every PollInterval and aborted the instant it is
	// released.
	ComboHold    time.Duration
	PollInterval time.Duration

	// StuckThreshold is the number of consecutive boots a button may be
	// seen held before it is declared stuck.
	StuckThreshold uint8
}

func DefaultOptions() Options {
	return Options{
		ComboHold:      5 * time.Second,
		PollInterval:   10 * time.Millisecond,
		StuckThreshold: 10,
	}
}

type Boot struct {
	bits    bootbits.Store
	buttons *bootbits.ButtonCounter
	ext     *extflash.Flash
	run     *intflash.Engine
	copier  *fwcopy.Engine
	hw      Hardware
	opts    Options

	LogFunc func(format string, params ...any)
}

func New(bits bootbits.Store, buttons *bootbits.ButtonCounter, ext *extflash.Flash,
	run *intflash.Engine, copier *fwcopy.Engine, hw Hardware, opts Options) *Boot {

	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultOptions().PollInterval
	}
	if opts.StuckThreshold == 0 {
		opts.StuckThreshold = DefaultOptions().StuckThreshold
	}

	return &Boot{
		bits:    bits,
		buttons: buttons,
		ext:     ext,
		run:     run,
		copier:  copier,
		hw:      hw,
		opts:    opts,
	}
}

func (b *Boot) log(format string, params ...any) {
	if b.LogFunc != nil {
		b.LogFunc(format, params...)
	}
}

// Run executes one boot: decide, then act. It returns only in emulation;
// on hardware every terminal action is a reset, a halt loop or the jump.
func (b *Boot) Run() {
	d := b.Decide()

	switch d.Kind {
	case DecideReset:
		b.hw.FullReset()
	case DecideHalt:
		b.sadWatch(d.Code)
	case DecideJump:
		b.hw.Jump(d.SP, d.PC)
	default:
		/* Exhaustiveness backstop: feed the failure back into the same
		 * taxonomy the machine handles. */
		b.log("invalid boot decision %d", d.Kind)
		b.bits.Set(bootbits.SoftwareFailureOccurred)
		b.hw.FullReset()
	}
}
