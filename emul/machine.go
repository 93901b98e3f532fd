package emul

import (
	"time"

	"github.com/quartzlabs/dualboot/boot"
)

// Machine implements boot.Hardware. Input state is set by the test or the
// simulator before a boot; the output fields record what the decision logic
// did.
type Machine struct {
	StandbyWake bool
	Watchdog    bool

	// Buttons is the mask reported by ButtonsHeld. If ButtonScript is
	// non-empty it is consumed first, one entry per poll, and the last
	// entry sticks.
	Buttons      boot.ButtonMask
	ButtonScript []boot.ButtonMask

	Codes            []uint32
	Resets           int
	WatchdogArmed    bool
	PeripheralsReset bool
	Jumped           bool
	SP, PC           uint32
	Delayed          time.Duration
}

func (m *Machine) WokeFromStandby() bool { return m.StandbyWake }
func (m *Machine) ClearStandbyWake()     { m.StandbyWake = false }

func (m *Machine) WatchdogFired() bool { return m.Watchdog }
func (m *Machine) ClearWatchdogFlag()  { m.Watchdog = false }
func (m *Machine) ArmWatchdog()        { m.WatchdogArmed = true }

func (m *Machine) ButtonsHeld() boot.ButtonMask {
	if len(m.ButtonScript) > 0 {
		m.Buttons = m.ButtonScript[0]
		if len(m.ButtonScript) > 1 {
			m.ButtonScript = m.ButtonScript[1:]
		}
	}
	return m.Buttons
}

func (m *Machine) DisplayCode(code uint32) {
	m.Codes = append(m.Codes, code)
}

func (m *Machine) Delay(d time.Duration) {
	m.Delayed += d
}

func (m *Machine) ResetPeripherals() {
	m.PeripheralsReset = true
}

func (m *Machine) FullReset() {
	m.Resets++
}

func (m *Machine) Jump(sp, pc uint32) {
	m.Jumped = true
	m.SP = sp
	m.PC = pc
}
