// Package conductor implements the cooperative single-threaded agent
// that owns every interaction with the driver: it drains the broadcast
// response buffer, correlates responses back to the application thread
// that issued the matching command, sends periodic keepalives, and
// detects when its own application has gone catatonic (spec.md §4.3,
// §4.5). Its duty-cycle shape (drain → dispatch → keepalive,
// side-effects folded into the same pass) is grounded on the teacher's
// invocation pipeline; its explicit Running/Closed state machine follows
// the teacher's circuit breaker's documentation style.
//
// # State machine
//
//	Running ──(Close called, or inter-service timeout detected)──► Closed
//
// Once Closed, every typed entry point (AddPublication, AddSubscription,
// …) returns ClientClosedError immediately without touching the ring.
//
// # Concurrency
//
// DoWork must only ever be called from the single goroutine that owns
// this conductor (an agent.Runner's dedicated goroutine, or the one
// application goroutine driving an agent.Invoker). The typed entry
// points (AddPublication, …) are safe for concurrent use by many
// application goroutines — the spec's client-wide lock is expected to
// serialize them at the facade layer — but none of them ever calls
// DoWork themselves in Runner mode; they only claim ring space and wait.
package conductor

import (
	"errors"
	"sync"
	"time"

	"github.com/oriys/aeronclient/internal/broadcast"
	"github.com/oriys/aeronclient/internal/clock"
	"github.com/oriys/aeronclient/internal/driverproxy"
	"github.com/oriys/aeronclient/internal/logging"
	"github.com/oriys/aeronclient/internal/metrics"
	"github.com/oriys/aeronclient/internal/ringbuffer"
)

// Mode tells awaitPending whether it may drive DoWork itself while
// waiting (Invoker) or must leave that to a dedicated background
// goroutine and just watch for the response (Runner).
type Mode int

const (
	// ModeRunner is used when an agent.Runner owns a dedicated goroutine
	// calling DoWork in the background.
	ModeRunner Mode = iota
	// ModeInvoker is used when the calling application goroutine is
	// itself responsible for ticking DoWork.
	ModeInvoker
)

const awaitPollInterval = 1 * time.Millisecond

// DriverTimeoutError is the per-call counterpart of cnc.DriverTimeoutError:
// it fires when a registration call's response never arrives within the
// driver timeout, rather than during the initial handshake.
type DriverTimeoutError struct {
	Reason string
}

func (e *DriverTimeoutError) Error() string { return "driver timeout: " + e.Reason }

// Image describes an available or unavailable image, delivered
// unprompted by the driver whenever a subscription matches or loses a
// publisher.
type Image struct {
	RegistrationID int64
	SessionID      int32
	StreamID       int32
	Channel        string
}

// ImageHandler is invoked for AvailableImage/UnavailableImage events.
type ImageHandler func(Image)

// Closeable is implemented by the facade's Publication/Subscription
// handles so the conductor can close every open registration when it
// detects it has become a zombie.
type Closeable interface {
	CloseQuietly()
}

type pendingCall struct {
	done           chan struct{}
	once           sync.Once
	registrationID int64
	err            error
}

func (p *pendingCall) resolveSuccess(registrationID int64) {
	p.once.Do(func() {
		p.registrationID = registrationID
		close(p.done)
	})
}

func (p *pendingCall) resolveError(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

// Config bundles the conductor's timing and callback configuration.
type Config struct {
	ClientID               int64
	DriverTimeout          time.Duration
	InterServiceTimeout    time.Duration
	KeepAliveInterval      time.Duration
	Mode                   Mode
	OnAvailableImage       ImageHandler
	OnUnavailableImage     ImageHandler
	OnRegistrationError    func(error)
	EpochClock             clock.EpochClock
	NanoClock              clock.NanoClock
	Metrics                *metrics.Metrics // optional; nil disables all instrumentation
}

// Conductor is the ClientConductor described by spec.md §4.3.
type Conductor struct {
	cfg       Config
	proxy     *driverproxy.Proxy
	broadcast *broadcast.Receiver

	pendingMu sync.Mutex
	pending   map[int64]*pendingCall

	registryMu sync.Mutex
	registry   map[int64]Closeable

	lastWorkNanos      int64
	lastKeepaliveNanos int64

	stateMu sync.Mutex
	closed  bool
}

// New builds a Conductor. It does not start any background work; the
// caller wraps it in an agent.Runner or agent.Invoker.
func New(cfg Config, proxy *driverproxy.Proxy, receiver *broadcast.Receiver) *Conductor {
	if cfg.EpochClock == nil {
		cfg.EpochClock = clock.SystemEpochClock{}
	}
	if cfg.NanoClock == nil {
		cfg.NanoClock = clock.SystemNanoClock{}
	}
	if cfg.KeepAliveInterval <= 0 {
		cfg.KeepAliveInterval = time.Second
	}
	c := &Conductor{
		cfg:       cfg,
		proxy:     proxy,
		broadcast: receiver,
		pending:   make(map[int64]*pendingCall),
		registry:  make(map[int64]Closeable),
	}
	c.lastWorkNanos = cfg.NanoClock.NanoTime()
	return c
}

// RoleName identifies this agent for logging, matching agent.Agent.
func (c *Conductor) RoleName() string { return "aeronclient-conductor" }

// OnStart satisfies agent.Agent. The conductor has no setup beyond what
// New already did.
func (c *Conductor) OnStart() error { return nil }

// OnClose satisfies agent.Agent: it marks the conductor closed and
// releases every tracked registration exactly once.
func (c *Conductor) OnClose() {
	c.transitionClosed(nil)
}

// IsClosed reports whether the conductor has stopped serving requests.
func (c *Conductor) IsClosed() bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.closed
}

func (c *Conductor) transitionClosed(cause error) {
	c.stateMu.Lock()
	if c.closed {
		c.stateMu.Unlock()
		return
	}
	c.closed = true
	c.stateMu.Unlock()

	if cause != nil {
		logging.Op().Error("conductor closing on error", "clientId", c.cfg.ClientID, "error", cause)
	} else {
		logging.Op().Debug("conductor closing", "clientId", c.cfg.ClientID)
	}

	c.registryMu.Lock()
	registrations := c.registry
	c.registry = make(map[int64]Closeable)
	c.registryMu.Unlock()
	for _, closeable := range registrations {
		closeable.CloseQuietly()
	}

	c.pendingMu.Lock()
	pending := c.pending
	c.pending = make(map[int64]*pendingCall)
	c.pendingMu.Unlock()
	closedErr := cause
	if closedErr == nil {
		closedErr = &ClientClosedError{}
	}
	for _, pc := range pending {
		pc.resolveError(closedErr)
	}
}

// DoWork runs one duty cycle: inter-service timeout check, broadcast
// drain/dispatch, and keepalive scheduling. Satisfies agent.Agent.
func (c *Conductor) DoWork() (int, error) {
	if c.IsClosed() {
		return 0, &ClientClosedError{}
	}

	now := c.cfg.NanoClock.NanoTime()
	if c.cfg.InterServiceTimeout > 0 {
		elapsed := now - c.lastWorkNanos
		if elapsed > c.cfg.InterServiceTimeout.Nanoseconds() {
			err := &InterServiceTimeoutError{ElapsedNanos: elapsed, LimitNanos: c.cfg.InterServiceTimeout.Nanoseconds()}
			logging.Op().Error("inter-service timeout detected", "clientId", c.cfg.ClientID, "elapsedNanos", elapsed)
			if c.cfg.Metrics != nil {
				c.cfg.Metrics.IncInterServiceTimeout()
			}
			c.transitionClosed(err)
			return 0, err
		}
	}
	c.lastWorkNanos = now

	workCount := 0
	if c.broadcast != nil {
		workCount += c.broadcast.Receive(c.dispatch, 32)
	}

	if c.cfg.KeepAliveInterval > 0 && now-c.lastKeepaliveNanos >= c.cfg.KeepAliveInterval.Nanoseconds() {
		if err := c.proxy.ClientKeepalive(); err == nil {
			workCount++
			if c.cfg.Metrics != nil {
				c.cfg.Metrics.IncKeepalive()
			}
		}
		c.lastKeepaliveNanos = now
	}

	if c.cfg.Metrics != nil && workCount > 0 {
		c.cfg.Metrics.AddConductorWork(workCount)
	}

	return workCount, nil
}

func (c *Conductor) dispatch(msgTypeID int32, payload []byte) {
	switch msgTypeID {
	case RespOperationSuccess:
		c.incBroadcast("operation-success")
		resp := decodeOperationSuccess(payload)
		c.resolvePending(resp.CorrelationID, resp.RegistrationID, nil)
	case RespOperationError:
		c.incBroadcast("operation-error")
		resp := decodeOperationError(payload)
		err := &RegistrationError{CorrelationID: resp.CorrelationID, Code: resp.Code, Message: resp.Message}
		logging.Op().Warn("driver rejected registration", "correlationId", resp.CorrelationID, "code", resp.Code, "message", resp.Message)
		if c.cfg.OnRegistrationError != nil {
			c.cfg.OnRegistrationError(err)
		}
		c.resolvePending(resp.CorrelationID, 0, err)
	case RespAvailableImage:
		c.incBroadcast("available-image")
		if c.cfg.OnAvailableImage != nil {
			evt := decodeImageEvent(payload)
			c.cfg.OnAvailableImage(Image(evt))
		}
	case RespUnavailableImage:
		c.incBroadcast("unavailable-image")
		if c.cfg.OnUnavailableImage != nil {
			evt := decodeImageEvent(payload)
			c.cfg.OnUnavailableImage(Image(evt))
		}
	}
}

func (c *Conductor) incBroadcast(kind string) {
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.IncBroadcastMessage(kind)
	}
}

func (c *Conductor) resolvePending(correlationID, registrationID int64, err error) {
	c.pendingMu.Lock()
	pc, ok := c.pending[correlationID]
	if ok {
		delete(c.pending, correlationID)
	}
	c.pendingMu.Unlock()
	if !ok {
		return
	}
	if err != nil {
		pc.resolveError(err)
	} else {
		pc.resolveSuccess(registrationID)
	}
}

func (c *Conductor) registerPending(correlationID int64) *pendingCall {
	pc := &pendingCall{done: make(chan struct{})}
	c.pendingMu.Lock()
	c.pending[correlationID] = pc
	c.pendingMu.Unlock()
	return pc
}

func (c *Conductor) forgetPending(correlationID int64) {
	c.pendingMu.Lock()
	delete(c.pending, correlationID)
	c.pendingMu.Unlock()
}

func (c *Conductor) awaitPending(pc *pendingCall, reason string) (int64, error) {
	deadlineMillis := c.cfg.EpochClock.TimeMillis() + c.cfg.DriverTimeout.Milliseconds()
	for {
		select {
		case <-pc.done:
			return pc.registrationID, pc.err
		default:
		}
		if c.IsClosed() {
			return 0, &ClientClosedError{}
		}
		if c.cfg.EpochClock.TimeMillis() > deadlineMillis {
			logging.Op().Error("registration call timed out waiting for driver response", "reason", reason)
			if c.cfg.Metrics != nil {
				c.cfg.Metrics.IncDriverTimeout()
			}
			return 0, &DriverTimeoutError{Reason: reason}
		}
		if c.cfg.Mode == ModeInvoker {
			c.DoWork()
		} else {
			time.Sleep(awaitPollInterval)
		}
	}
}

// RegisterCloseable tracks a handle the conductor should close if it
// ever transitions to Closed on its own (inter-service timeout), so
// handles an application still holds report themselves closed. Because
// the conductor is already closed when it calls CloseQuietly, no remove
// command reaches the driver on this path.
func (c *Conductor) RegisterCloseable(registrationID int64, closeable Closeable) {
	c.registryMu.Lock()
	c.registry[registrationID] = closeable
	c.registryMu.Unlock()
}

// UnregisterCloseable removes a handle from the zombie-cleanup registry,
// called once a Publication/Subscription has released itself normally.
func (c *Conductor) UnregisterCloseable(registrationID int64) {
	c.registryMu.Lock()
	delete(c.registry, registrationID)
	c.registryMu.Unlock()
}

// AddPublication registers a shared publication and blocks (cooperatively,
// per Mode) until the driver confirms it or the driver timeout elapses.
func (c *Conductor) AddPublication(channel string, streamID int32) (int64, error) {
	return c.addPublicationLike("add-publication", c.proxy.AddPublication, channel, streamID)
}

// AddExclusivePublication registers a publication this client does not
// share with sibling clients in the same driver.
func (c *Conductor) AddExclusivePublication(channel string, streamID int32) (int64, error) {
	return c.addPublicationLike("add-exclusive-publication", c.proxy.AddExclusivePublication, channel, streamID)
}

func (c *Conductor) addPublicationLike(kind string, encode func(string, int32) (int64, error), channel string, streamID int32) (int64, error) {
	if c.IsClosed() {
		return 0, &ClientClosedError{}
	}
	correlationID, err := encode(channel, streamID)
	if err != nil {
		c.recordBackpressureAndOutcome(kind, err)
		return 0, err
	}
	pc := c.registerPending(correlationID)
	defer c.forgetPending(correlationID)
	registrationID, err := c.awaitPending(pc, "add publication: "+channel)
	c.recordOutcome(kind, err)
	return registrationID, err
}

// AddSubscription registers a subscription using the conductor's
// configured default image handlers.
func (c *Conductor) AddSubscription(channel string, streamID int32) (int64, error) {
	return c.addSubscription(channel, streamID)
}

// AddSubscriptionWithHandlers registers a subscription, accepting
// per-call availability callbacks to match spec.md §4.4's two-arity
// AddSubscription. The callbacks are not stored or invoked: image events
// for every subscription dispatch through the conductor's configured
// handlers.
func (c *Conductor) AddSubscriptionWithHandlers(channel string, streamID int32, _, _ ImageHandler) (int64, error) {
	return c.addSubscription(channel, streamID)
}

func (c *Conductor) addSubscription(channel string, streamID int32) (int64, error) {
	if c.IsClosed() {
		return 0, &ClientClosedError{}
	}
	correlationID, err := c.proxy.AddSubscription(channel, streamID)
	if err != nil {
		c.recordBackpressureAndOutcome("add-subscription", err)
		return 0, err
	}
	pc := c.registerPending(correlationID)
	defer c.forgetPending(correlationID)
	registrationID, err := c.awaitPending(pc, "add subscription: "+channel)
	c.recordOutcome("add-subscription", err)
	return registrationID, err
}

// recordBackpressureAndOutcome is called when the initial claim itself
// failed, before any correlation id was registered: it distinguishes a
// ring-full condition from any other transport error for the
// backpressure counter, then records the registration outcome.
func (c *Conductor) recordBackpressureAndOutcome(kind string, err error) {
	if c.cfg.Metrics == nil {
		return
	}
	var transportErr *driverproxy.TransportError
	if errors.As(err, &transportErr) && errors.Is(transportErr.Err, ringbuffer.ErrInsufficientCapacity) {
		c.cfg.Metrics.IncRingBackpressure()
	}
	c.recordOutcome(kind, err)
}

func (c *Conductor) recordOutcome(kind string, err error) {
	if c.cfg.Metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	c.cfg.Metrics.IncRegistration(kind, outcome)
}

// ReleasePublication tells the driver to release a previously
// registered publication. Fire-and-forget from the caller's
// perspective: spec.md does not require release to block on
// confirmation the way registration does.
func (c *Conductor) ReleasePublication(registrationID int64) error {
	if c.IsClosed() {
		return &ClientClosedError{}
	}
	_, err := c.proxy.RemovePublication(registrationID)
	return err
}

// ReleaseSubscription tells the driver to release a previously
// registered subscription.
func (c *Conductor) ReleaseSubscription(registrationID int64) error {
	if c.IsClosed() {
		return &ClientClosedError{}
	}
	_, err := c.proxy.RemoveSubscription(registrationID)
	return err
}
