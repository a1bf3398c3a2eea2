package cnc

import "fmt"

// DriverTimeoutError is raised when a handshake or liveness-check wait
// exceeds the configured driver timeout. Fatal in the default error
// handler; never retried by the connector itself.
type DriverTimeoutError struct {
	Reason string
}

func (e *DriverTimeoutError) Error() string {
	return fmt.Sprintf("driver timeout: %s", e.Reason)
}

// UnsupportedVersionError is raised when the CnC file's published
// version does not match the version this client was built against.
type UnsupportedVersionError struct {
	Observed int32
	Expected int32
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("unsupported cnc version: observed %d, expected %d", e.Observed, e.Expected)
}
