package aeronclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oriys/aeronclient/internal/agent"
	"github.com/oriys/aeronclient/internal/auditlog"
	"github.com/oriys/aeronclient/internal/broadcast"
	"github.com/oriys/aeronclient/internal/conductor"
	"github.com/oriys/aeronclient/internal/counters"
	"github.com/oriys/aeronclient/internal/driverproxy"
	"github.com/oriys/aeronclient/internal/logging"
	"github.com/oriys/aeronclient/internal/observability"
)

// harness is the subset of agent.Runner/agent.Invoker the facade drives
// identically regardless of which one Connect picked.
type harness interface {
	Start() error
	Invoke() (int, error)
	Close()
}

// runnerHarness adapts agent.Runner to the harness interface: Start
// never fails and Invoke is never called (the dedicated goroutine
// drives DoWork itself).
type runnerHarness struct{ r *agent.Runner }

func (h runnerHarness) Start() error      { h.r.Start(); return nil }
func (h runnerHarness) Invoke() (int, error) { return 0, nil }
func (h runnerHarness) Close()            { h.r.Close() }

// invokerHarness adapts agent.Invoker to the harness interface.
type invokerHarness struct{ i *agent.Invoker }

func (h invokerHarness) Start() error        { return h.i.Start() }
func (h invokerHarness) Invoke() (int, error) { return h.i.Invoke() }
func (h invokerHarness) Close()              { h.i.Close() }

// ClientFacade is the top-level object owning the context, the
// conductor, and its harness (spec.md §4.6). Every public operation
// acquires a client-wide lock before delegating to the conductor.
type ClientFacade struct {
	ctx       *Context
	conductor *conductor.Conductor
	harness   harness
	counters  *counters.Reader

	mu sync.Mutex
}

// Connect runs ctx.conclude(), constructs the conductor, chooses and
// starts the harness per ctx.UseConductorAgentInvoker, and returns a
// ready-to-use facade. On any failure the context's CnC mapping is
// released before returning (spec.md §9 "scoped acquisition").
func Connect(ctx *Context) (facade *ClientFacade, err error) {
	_, span := observability.StartSpan(context.Background(), "aeronclient.Connect",
		observability.AttrDirectory.String(ctx.AeronDirectoryName))
	defer func() {
		if err != nil {
			observability.SetSpanError(span, err)
		} else {
			observability.SetSpanOK(span)
		}
		span.End()
	}()

	if err := ctx.conclude(); err != nil {
		return nil, err
	}
	span.SetAttributes(observability.AttrClientID.Int64(ctx.clientID))
	defer func() {
		if err != nil {
			ctx.close()
		}
	}()

	layout := ctx.cncResult.Layout
	regionBytes := ctx.cncResult.Region.Bytes()

	broadcastBuf := regionBytes[layout.ToClientBufferOffset : layout.ToClientBufferOffset+layout.ToClientBufferLength]
	broadcastCapacity := int32(layout.ToClientBufferLength - broadcast.TrailerLength())
	receiver, err := broadcast.NewReceiver(broadcastBuf, broadcastCapacity)
	if err != nil {
		return nil, fmt.Errorf("aeronclient: build broadcast receiver: %w", err)
	}

	countersMetadata := regionBytes[layout.CountersMetadataOffset : layout.CountersMetadataOffset+layout.CountersMetadataLength]
	countersValues := regionBytes[layout.CountersValuesOffset : layout.CountersValuesOffset+layout.CountersValuesLength]
	reader := counters.NewReader(countersMetadata, countersValues)

	proxy := driverproxy.New(ctx.cncResult.CommandRing, ctx.clientID)

	mode := conductor.ModeRunner
	if ctx.UseConductorAgentInvoker {
		mode = conductor.ModeInvoker
	}

	cond := conductor.New(conductor.Config{
		ClientID:            ctx.clientID,
		DriverTimeout:       ctx.DriverTimeout,
		InterServiceTimeout: ctx.InterServiceTimeout,
		KeepAliveInterval:   ctx.KeepAliveInterval,
		Mode:                mode,
		OnAvailableImage:    ctx.OnAvailableImage,
		OnUnavailableImage:  ctx.OnUnavailableImage,
		OnRegistrationError: ctx.OnRegistrationError,
		EpochClock:          ctx.EpochClock,
		NanoClock:           ctx.NanoClock,
		Metrics:             ctx.Metrics,
	}, proxy, receiver)

	var h harness
	if ctx.UseConductorAgentInvoker {
		inv := agent.NewInvoker(cond)
		h = invokerHarness{inv}
	} else {
		// conductor.DoWork only ever returns ClientClosedError or
		// InterServiceTimeoutError, and both mean the conductor has
		// already transitioned to Closed internally, so the runner loop
		// always stops after reporting — there is nothing left for it to
		// drive.
		errorHandler := func(a agent.Agent, agentErr error) bool {
			ctx.ErrorHandler(agentErr)
			return false
		}
		runner := agent.NewRunner(cond, ctx.IdleStrategy, errorHandler)
		h = runnerHarness{runner}
	}

	if err := h.Start(); err != nil {
		return nil, fmt.Errorf("aeronclient: start harness: %w", err)
	}

	return &ClientFacade{ctx: ctx, conductor: cond, harness: h, counters: reader}, nil
}

// ClientID returns the 64-bit client id claimed at construction.
func (f *ClientFacade) ClientID() int64 {
	return f.ctx.clientID
}

// Invoke drives one duty cycle when running under the invoker harness.
// It is a no-op under the dedicated-goroutine (Runner) harness, where a
// background goroutine already ticks DoWork.
func (f *ClientFacade) Invoke() (int, error) {
	return f.harness.Invoke()
}

// Counters returns a read-only view over the driver's counters store.
// Counter reads bypass the conductor and the client-wide lock entirely
// (spec.md §4.6: "Counter reads bypass the conductor and go directly
// to the counter buffers").
func (f *ClientFacade) Counters() *counters.Reader {
	return f.counters
}

// recordAudit reports one registration/release outcome to every sink the
// embedder configured: f.ctx.AuditLog (Postgres, optional) and
// f.ctx.EventLogger (console/file, always present after conclude()).
// registrationID doubles as the correlation id for every entry, since
// the conductor does not surface the per-call correlation id
// separately.
func (f *ClientFacade) recordAudit(kind, channel string, streamID int32, registrationID int64, err error, start time.Time) {
	durationMs := time.Since(start).Milliseconds()
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}

	if f.ctx.EventLogger != nil {
		f.ctx.EventLogger.Log(logging.ClientEvent{
			Kind:           kind,
			Channel:        channel,
			StreamID:       streamID,
			CorrelationID:  registrationID,
			RegistrationID: registrationID,
			Success:        err == nil,
			Error:          errMsg,
			DurationMs:     durationMs,
		})
	}

	if f.ctx.AuditLog == nil {
		return
	}
	f.ctx.AuditLog.Record(auditlog.Entry{
		ClientID:       f.ctx.clientID,
		Kind:           kind,
		Channel:        channel,
		StreamID:       streamID,
		CorrelationID:  registrationID,
		RegistrationID: registrationID,
		Success:        err == nil,
		Error:          errMsg,
		DurationMs:     durationMs,
	})
}

// registrationSpan starts a span for a registration call and returns a
// closure that reports the outcome and ends it; every Add* method defers
// the closure over its own named error return.
func registrationSpan(name, channel string, streamID int32) func(*error) {
	_, span := observability.StartSpan(context.Background(), name,
		observability.AttrChannel.String(channel),
		observability.AttrStreamID.Int(int(streamID)))
	return func(err *error) {
		if *err != nil {
			observability.SetSpanError(span, *err)
		} else {
			observability.SetSpanOK(span)
		}
		span.End()
	}
}

// AddPublication registers a shared publication, blocking until the
// driver confirms it or the driver timeout elapses.
func (f *ClientFacade) AddPublication(channel string, streamID int32) (pub *Publication, err error) {
	defer registrationSpan("aeronclient.AddPublication", channel, streamID)(&err)
	start := time.Now()
	f.mu.Lock()
	defer f.mu.Unlock()
	registrationID, err := f.conductor.AddPublication(channel, streamID)
	defer func() { f.recordAudit("add-publication", channel, streamID, registrationID, err, start) }()
	if err != nil {
		return nil, err
	}
	pub = &Publication{facade: f, channel: channel, streamID: streamID, registrationID: registrationID}
	f.conductor.RegisterCloseable(registrationID, pub)
	return pub, nil
}

// AddExclusivePublication registers a publication this client does not
// share with sibling clients of the same driver.
func (f *ClientFacade) AddExclusivePublication(channel string, streamID int32) (pub *Publication, err error) {
	defer registrationSpan("aeronclient.AddExclusivePublication", channel, streamID)(&err)
	start := time.Now()
	f.mu.Lock()
	defer f.mu.Unlock()
	registrationID, err := f.conductor.AddExclusivePublication(channel, streamID)
	defer func() {
		f.recordAudit("add-exclusive-publication", channel, streamID, registrationID, err, start)
	}()
	if err != nil {
		return nil, err
	}
	pub = &Publication{facade: f, channel: channel, streamID: streamID, registrationID: registrationID, exclusive: true}
	f.conductor.RegisterCloseable(registrationID, pub)
	return pub, nil
}

// AddSubscription registers a subscription using the context's
// configured default image handlers.
func (f *ClientFacade) AddSubscription(channel string, streamID int32) (sub *Subscription, err error) {
	defer registrationSpan("aeronclient.AddSubscription", channel, streamID)(&err)
	start := time.Now()
	f.mu.Lock()
	defer f.mu.Unlock()
	registrationID, err := f.conductor.AddSubscription(channel, streamID)
	defer func() { f.recordAudit("add-subscription", channel, streamID, registrationID, err, start) }()
	if err != nil {
		return nil, err
	}
	sub = &Subscription{facade: f, channel: channel, streamID: streamID, registrationID: registrationID}
	f.conductor.RegisterCloseable(registrationID, sub)
	return sub, nil
}

// AddSubscriptionWithHandlers registers a subscription, accepting
// per-call image handlers (spec.md §4.4's two-arity AddSubscription).
// The handlers are not stored or invoked; image events still go to the
// context's configured OnAvailableImage/OnUnavailableImage.
func (f *ClientFacade) AddSubscriptionWithHandlers(channel string, streamID int32, onAvailable, onUnavailable conductor.ImageHandler) (sub *Subscription, err error) {
	defer registrationSpan("aeronclient.AddSubscription", channel, streamID)(&err)
	start := time.Now()
	f.mu.Lock()
	defer f.mu.Unlock()
	registrationID, err := f.conductor.AddSubscriptionWithHandlers(channel, streamID, onAvailable, onUnavailable)
	defer func() { f.recordAudit("add-subscription", channel, streamID, registrationID, err, start) }()
	if err != nil {
		return nil, err
	}
	sub = &Subscription{facade: f, channel: channel, streamID: streamID, registrationID: registrationID}
	f.conductor.RegisterCloseable(registrationID, sub)
	return sub, nil
}

// Close stops the harness and releases the mapped CnC region.
// Idempotent: a second call is a safe no-op (spec.md §8).
func (f *ClientFacade) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.harness.Close()
	if f.ctx.EventLogger != nil {
		f.ctx.EventLogger.Close()
	}
	if err := f.ctx.close(); err != nil {
		logging.Op().Warn("error unmapping cnc region on close", "error", err)
		return err
	}
	return nil
}

