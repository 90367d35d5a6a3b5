// internal/status/constants.go
package status

// Status block layout. A published block is read by third-party HMIs and
// SCADA systems, so none of these values are configurable.
//
//	slot  0      health code
//	slot  1      last error code
//	slot  2      seconds in error
//	slots 3..10  reserved, always zero
//	slots 11..18 device name, two ASCII characters per register
//	slot  19     reserved, always zero
const (
	SlotsPerDevice = 20

	SlotHealthCode     = 0
	SlotLastErrorCode  = 1
	SlotSecondsInError = 2

	SlotReservedStart = 3
	SlotReservedEnd   = 10

	SlotDeviceNameStart = 11
	SlotDeviceNameSlots = 8
	SlotDeviceNameEnd   = SlotDeviceNameStart + SlotDeviceNameSlots - 1
)

const (
	DeviceNameMaxChars = 2 * SlotDeviceNameSlots

	// MaxSecondsInError is where the seconds counter stops.
	MaxSecondsInError = 1<<16 - 1
)

// Health codes written to SlotHealthCode.
const (
	HealthUnknown uint16 = iota // no transaction finished yet
	HealthOK
	HealthError
	// HealthSuspended: excluded from polling after repeated failures; its
	// channels keep their last values until the backoff elapses.
	HealthSuspended
	// HealthDisabled: configured for status but not registered on any bus.
	HealthDisabled
)
