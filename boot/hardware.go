package boot

import "time"

// ButtonMask is the set of buttons currently held.
type ButtonMask uint8

const (
	ButtonBack ButtonMask = 1 << iota
	ButtonUp
	ButtonSelect
	ButtonDown

	NumButtons = 4
)

/* Holding this combination through the hold window forces recovery mode. */
const comboForceRecovery = ButtonBack | ButtonSelect

// Hardware is the capability surface the decision logic needs from the
// platform. The real implementation is a thin register shim; everything the
// state machine decides on flows through this interface so the decision
// logic stays pure and testable.
type Hardware interface {
	// WokeFromStandby reports whether the CPU came out of the low-power
	// standby state rather than a true reset. Peripheral state after a
	// standby wake is unreliable and must not be trusted.
	WokeFromStandby() bool
	ClearStandbyWake()

	// WatchdogFired reports whether the previous session ended with a
	// watchdog reset.
	WatchdogFired() bool
	ClearWatchdogFlag()

	// ArmWatchdog enables the hardware watchdog before the firmware jump.
	ArmWatchdog()

	ButtonsHeld() ButtonMask

	// DisplayCode shows a numeric error code on the display, if one is
	// attached. Best effort.
	DisplayCode(code uint32)

	Delay(d time.Duration)

	// ResetPeripherals returns every peripheral clock-enable register to
	// its power-on value and all GPIO to inputs. GPIO output state and the
	// backup/RTC domain are left alone so power rails don't glitch and
	// wall-clock time survives.
	ResetPeripherals()

	// FullReset performs a complete hardware reset. Never returns on real
	// hardware.
	FullReset()

	// Jump hands the CPU to the firmware image: interrupts off, SP and PC
	// loaded from the vector table, link register poisoned, interrupts
	// back on. Never returns on real hardware. Performs no validation;
	// an erased vector must have been caught before deciding to jump.
	Jump(sp, pc uint32)
}
