package boot

/* Display error codes. The numeric values are a protocol shared with the
 * support tooling; codes are frozen, new ones append. */
const (
	CodeStuckButton        uint32 = 1
	CodeBadFlash           uint32 = 2
	CodeCannotLoadFirmware uint32 = 3
	CodeResetLoop          uint32 = 4

	/* Reserved for the platform fault handler (hard fault / failed
	 * assertion); the decision sequence itself never raises it. */
	CodeAssertFailed uint32 = 5
)
