package aeronclient

import (
	"github.com/oriys/aeronclient/internal/cnc"
	"github.com/oriys/aeronclient/internal/conductor"
	"github.com/oriys/aeronclient/internal/driverproxy"
)

// Type aliases so callers can errors.As against a single aeronclient
// import instead of reaching into internal packages, mirroring
// spec.md §7's error-kind taxonomy (DriverTimeout, UnsupportedCncVersion,
// ClientClosed, Registration, InterServiceTimeout, Transport).
type (
	// DriverTimeoutError is raised during the initial CnC handshake; see
	// cnc.DriverTimeoutError. A registration call that times out waiting
	// for a response instead produces conductor.DriverTimeoutError,
	// intentionally a distinct type for the same reason — spec.md §7
	// treats handshake and per-call timeouts as the same error *kind*
	// but this client keeps them as two concrete types so a caller can
	// tell, via errors.As, which phase actually timed out.
	DriverTimeoutError           = cnc.DriverTimeoutError
	RegistrationDriverTimeoutError = conductor.DriverTimeoutError
	UnsupportedCncVersionError   = cnc.UnsupportedVersionError
	ClientClosedError            = conductor.ClientClosedError
	RegistrationError            = conductor.RegistrationError
	InterServiceTimeoutError     = conductor.InterServiceTimeoutError
	TransportError               = driverproxy.TransportError
)
