// Package bootbits stores the sticky boot flags that survive reset in a
// battery-backed register word. The bit positions are the wire format shared
// with the firmware and must not be renumbered.
package bootbits

// Bit is a flag position inside the backup register word.
type Bit uint8

const (
	FWStable                  Bit = 0
	SoftwareFailureOccurred   Bit = 1
	FWStartFailStrikeOne      Bit = 2
	FWStartFailStrikeTwo      Bit = 3
	RecoveryLoadFailStrikeOne Bit = 4
	RecoveryLoadFailStrikeTwo Bit = 5
	RecoveryStartInProgress   Bit = 6
	NewFWAvailable            Bit = 7
	NewFWUpdateInProgress     Bit = 8
	NewFWInstalled            Bit = 9
	ForcePRF                  Bit = 10
	ResetLoopDetectOne        Bit = 11
	ResetLoopDetectTwo        Bit = 12
	ResetLoopDetectThree      Bit = 13

	numBits = 14
)

var bitNames = [numBits]string{
	"FW_STABLE",
	"SOFTWARE_FAILURE_OCCURRED",
	"FW_START_FAIL_STRIKE_ONE",
	"FW_START_FAIL_STRIKE_TWO",
	"RECOVERY_LOAD_FAIL_STRIKE_ONE",
	"RECOVERY_LOAD_FAIL_STRIKE_TWO",
	"RECOVERY_START_IN_PROGRESS",
	"NEW_FW_AVAILABLE",
	"NEW_FW_UPDATE_IN_PROGRESS",
	"NEW_FW_INSTALLED",
	"FORCE_PRF",
	"RESET_LOOP_DETECT_ONE",
	"RESET_LOOP_DETECT_TWO",
	"RESET_LOOP_DETECT_THREE",
}

func (b Bit) String() string {
	if int(b) < len(bitNames) {
		return bitNames[b]
	}
	return "UNKNOWN"
}

// Store is the capability the boot logic uses to access the flag word. Every
// operation is a single register access and cannot fail or tear. The backing
// word survives reset and power loss only while backup power (coin cell or
// capacitor) is present; removing it loses all flags.
type Store interface {
	Test(b Bit) bool
	Set(b Bit)
	Clear(b Bit)
}

// Word is one backup-domain register.
type Word interface {
	Load() uint32
	Store(v uint32)
}

/* Written to the marker register once the bit word has been zeroed, so a
 * warm boot can be told apart from first use or backup-domain power loss. */
const initMagic = 0xb007b175

// RegisterStore is a Store over two backup registers: the flag word and an
// initialization marker.
type RegisterStore struct {
	bits   Word
	marker Word
}

func NewRegisterStore(bits, marker Word) *RegisterStore {
	return &RegisterStore{bits: bits, marker: marker}
}

// Init prepares the flag word for use. Idempotent: on a warm boot the existing
// flags are kept, only a register bank that lost backup power is cleared.
func (s *RegisterStore) Init() {
	if s.marker.Load() == initMagic {
		return
	}

	s.bits.Store(0)
	s.marker.Store(initMagic)
}

func (s *RegisterStore) Test(b Bit) bool {
	return s.bits.Load()&(1<<b) != 0
}

func (s *RegisterStore) Set(b Bit) {
	s.bits.Store(s.bits.Load() | 1<<b)
}

func (s *RegisterStore) Clear(b Bit) {
	s.bits.Store(s.bits.Load() &^ (1 << b))
}

// Dump logs every set flag. Read-only, diagnostic use.
func Dump(s Store, log func(format string, params ...any)) {
	if log == nil {
		return
	}

	for b := Bit(0); b < numBits; b++ {
		if s.Test(b) {
			log("boot bit set: %s", b)
		}
	}
}
