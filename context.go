// Package aeronclient is the top-level facade described by spec.md
// §4.6: fluent construction through a Context, a single client-wide
// lock guarding every public operation, and orchestration of the
// handshake, conductor, and harness lifecycle. Grounded on the
// teacher's functional-options New plus inflight-drain shutdown idiom
// (internal/executor.New/GracefulShutdown), adapted from a request
// pipeline to a connect/register/close lifecycle.
package aeronclient

import (
	"errors"
	"fmt"
	"time"

	"github.com/oriys/aeronclient/internal/auditlog"
	"github.com/oriys/aeronclient/internal/clock"
	"github.com/oriys/aeronclient/internal/cnc"
	"github.com/oriys/aeronclient/internal/conductor"
	"github.com/oriys/aeronclient/internal/idlestrategy"
	"github.com/oriys/aeronclient/internal/logging"
	"github.com/oriys/aeronclient/internal/metrics"
)

// defaults mirror spec.md §6's enumerated configuration surface.
const (
	defaultIdleSleep                  = 16 * time.Millisecond
	defaultKeepAliveInterval          = 500 * time.Millisecond
	defaultInterServiceTimeoutFloor   = 10 * time.Second
	defaultPublicationConnectTimeout  = 5 * time.Second
	defaultDriverTimeout              = 10 * time.Second
)

// ErrorHandler receives errors the conductor's Runner-mode duty cycle
// cannot return directly to an originating caller (inter-service
// timeout, client closed). Handshake failures (driver timeout, version
// mismatch) are returned from Connect instead. The zero-value default mirrors the
// teacher's "log loudly" operational logger usage; spec.md's default
// additionally exits the process, which this package leaves to the
// caller's own main rather than calling os.Exit from inside a library.
type ErrorHandler func(err error)

// DefaultErrorHandler logs the error via the operational logger at
// Error level. It does not terminate the process; embedders that want
// to exit on a fatal conductor error supply their own handler that
// does so explicitly.
func DefaultErrorHandler(err error) {
	logging.Op().Error("client error", "error", err)
}

// Context is the fluent, optional-field configuration record described
// by spec.md §9: every field has a documented default, and conclude()
// is the explicit finalize step that fills defaults, performs the CnC
// handshake, and makes the record effectively immutable thereafter
// (subsequent calls to conclude() are no-ops).
type Context struct {
	AeronDirectoryName string

	DriverTimeout                time.Duration
	KeepAliveInterval             time.Duration
	InterServiceTimeout           time.Duration // zero means "use CnC metadata value" (spec.md §9 Open Question)
	PublicationConnectionTimeout  time.Duration

	UseConductorAgentInvoker bool
	IdleStrategy             idlestrategy.IdleStrategy

	EpochClock clock.EpochClock
	NanoClock  clock.NanoClock

	ErrorHandler         ErrorHandler
	OnAvailableImage     conductor.ImageHandler
	OnUnavailableImage   conductor.ImageHandler
	OnRegistrationError  func(error)

	// Metrics, when non-nil, instruments the handshake and the
	// conductor's duty cycle (spec.md §4.9/§4.12's connect-latency,
	// conductor-work, keepalive, registration, backpressure, and
	// broadcast counters). Left nil by default: the library never
	// forces instrumentation on an embedder that hasn't asked for it.
	Metrics *metrics.Metrics

	// AuditLog, when non-nil, receives one Entry per registration and
	// release outcome (spec.md §4.13's durable trail). Left nil by
	// default; an embedder opts in by calling auditlog.Open itself and
	// assigning the result here.
	AuditLog *auditlog.Log

	// EventLogger records the same per-registration outcomes as a
	// console/file trail independent of AuditLog and the operational
	// Op() logger (spec.md §4.8). Defaulted by conclude() like every
	// other field here, since unlike AuditLog it owns no external
	// resource.
	EventLogger *logging.ClientEventLogger

	concluded bool
	clientID  int64
	cncResult cnc.Result
}

// conclude fills every zero-valued field with its documented default
// and runs the handshake against the CnC file AeronDirectoryName names;
// an empty AeronDirectoryName is an error.
// Idempotent: a second call is a no-op, matching spec.md §4.6 step 1.
func (c *Context) conclude() error {
	if c.concluded {
		return nil
	}

	if c.DriverTimeout <= 0 {
		c.DriverTimeout = defaultDriverTimeout
	}
	if c.KeepAliveInterval <= 0 {
		c.KeepAliveInterval = defaultKeepAliveInterval
	}
	if c.PublicationConnectionTimeout <= 0 {
		c.PublicationConnectionTimeout = defaultPublicationConnectTimeout
	}
	if c.IdleStrategy == nil {
		c.IdleStrategy = &idlestrategy.Sleeping{Duration: defaultIdleSleep}
	}
	if c.EpochClock == nil {
		c.EpochClock = clock.SystemEpochClock{}
	}
	if c.NanoClock == nil {
		c.NanoClock = clock.SystemNanoClock{}
	}
	if c.ErrorHandler == nil {
		c.ErrorHandler = DefaultErrorHandler
	}
	if c.EventLogger == nil {
		c.EventLogger = logging.NewClientEventLogger()
	}
	if c.AeronDirectoryName == "" {
		return fmt.Errorf("aeronclient: AeronDirectoryName is required")
	}

	connector := &cnc.Connector{
		Path:          c.AeronDirectoryName,
		DriverTimeout: c.DriverTimeout,
		Clock:         c.EpochClock,
	}
	connectStart := time.Now()
	result, err := connector.Connect()
	if c.Metrics != nil {
		c.Metrics.ObserveConnectDuration(time.Since(connectStart).Seconds())
	}
	if err != nil {
		var timeoutErr *cnc.DriverTimeoutError
		if c.Metrics != nil && errors.As(err, &timeoutErr) {
			c.Metrics.IncDriverTimeout()
		}
		return err
	}
	c.cncResult = result
	c.clientID = result.CommandRing.NextCorrelationID()

	// interServiceTimeout: honor an explicit user value; otherwise fall
	// back to what the driver published, per spec.md §9's resolved Open
	// Question, floored at a sane minimum if the driver published zero.
	if c.InterServiceTimeout <= 0 {
		driverValue := time.Duration(result.MetaData.ClientLivenessTimeoutNs())
		if driverValue <= 0 {
			driverValue = defaultInterServiceTimeoutFloor
		}
		c.InterServiceTimeout = driverValue
	}

	c.concluded = true
	return nil
}

// close releases the mapped CnC region. Safe to call multiple times;
// MappedCncRegion.Close is itself idempotent.
func (c *Context) close() error {
	if c.cncResult.Region == nil {
		return nil
	}
	return c.cncResult.Region.Close()
}
