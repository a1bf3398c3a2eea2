package conductor

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/oriys/aeronclient/internal/broadcast"
	"github.com/oriys/aeronclient/internal/clock"
	"github.com/oriys/aeronclient/internal/driverproxy"
	"github.com/oriys/aeronclient/internal/metrics"
	"github.com/oriys/aeronclient/internal/ringbuffer"
)

type harness struct {
	conductor *Conductor
	ring      *ringbuffer.ManyToOneRingBuffer
	tx        *broadcast.Transmitter
	clock     *clock.Settable
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()

	cmdBuf := make([]byte, int64(512)+ringbuffer.TrailerLength())
	ring, err := ringbuffer.New(cmdBuf, 512)
	if err != nil {
		t.Fatalf("ringbuffer.New: %v", err)
	}
	proxy := driverproxy.New(ring, cfg.ClientID)

	bcBuf := make([]byte, int64(512)+broadcast.TrailerLength())
	tx, err := broadcast.NewTransmitter(bcBuf, 512)
	if err != nil {
		t.Fatalf("broadcast.NewTransmitter: %v", err)
	}
	rx, err := broadcast.NewReceiver(bcBuf, 512)
	if err != nil {
		t.Fatalf("broadcast.NewReceiver: %v", err)
	}

	settable := clock.NewSettable(1000, 1000)
	cfg.EpochClock = settable
	cfg.NanoClock = settable
	if cfg.DriverTimeout == 0 {
		cfg.DriverTimeout = 5 * time.Second
	}

	c := New(cfg, proxy, rx)
	return &harness{conductor: c, ring: ring, tx: tx, clock: settable}
}

func TestAddPublicationResolvesOnOperationSuccess(t *testing.T) {
	h := newHarness(t, Config{ClientID: 1, Mode: ModeInvoker})

	resultCh := make(chan struct {
		regID int64
		err   error
	}, 1)
	go func() {
		regID, err := h.conductor.AddPublication("aeron:ipc", 10)
		resultCh <- struct {
			regID int64
			err   error
		}{regID, err}
	}()

	// Drain the command ring ourselves to discover the correlation id,
	// standing in for the driver processing the request.
	var correlationID int64
	deadline := time.Now().Add(time.Second)
	for correlationID == 0 && time.Now().Before(deadline) {
		h.ring.Read(func(msgTypeID int32, payload []byte) {
			_, corr, _, _ := driverproxy.DecodeChannelCommand(payload)
			correlationID = corr
		}, 10)
		time.Sleep(time.Millisecond)
	}
	if correlationID == 0 {
		t.Fatalf("never observed the AddPublication command on the ring")
	}

	h.tx.Transmit(RespOperationSuccess, EncodeOperationSuccess(correlationID, 999))

	select {
	case r := <-resultCh:
		if r.err != nil {
			t.Fatalf("AddPublication error: %v", r.err)
		}
		if r.regID != 999 {
			t.Fatalf("registrationID = %d, want 999", r.regID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("AddPublication never resolved")
	}
}

func TestAddPublicationResolvesOnOperationError(t *testing.T) {
	h := newHarness(t, Config{ClientID: 1, Mode: ModeInvoker})

	resultCh := make(chan error, 1)
	go func() {
		_, err := h.conductor.AddPublication("aeron:ipc", 10)
		resultCh <- err
	}()

	var correlationID int64
	deadline := time.Now().Add(time.Second)
	for correlationID == 0 && time.Now().Before(deadline) {
		h.ring.Read(func(msgTypeID int32, payload []byte) {
			_, corr, _, _ := driverproxy.DecodeChannelCommand(payload)
			correlationID = corr
		}, 10)
		time.Sleep(time.Millisecond)
	}

	h.tx.Transmit(RespOperationError, EncodeOperationError(correlationID, 7, "channel unreachable"))

	select {
	case err := <-resultCh:
		regErr, ok := err.(*RegistrationError)
		if !ok {
			t.Fatalf("err = %v (%T), want *RegistrationError", err, err)
		}
		if regErr.Code != 7 || regErr.Message != "channel unreachable" {
			t.Fatalf("got %+v", regErr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("AddPublication never resolved")
	}
}

func TestDoWorkReturnsClientClosedAfterClose(t *testing.T) {
	h := newHarness(t, Config{ClientID: 1, Mode: ModeInvoker})
	h.conductor.OnClose()

	if !h.conductor.IsClosed() {
		t.Fatalf("expected conductor to report closed")
	}
	if _, err := h.conductor.DoWork(); err == nil {
		t.Fatalf("expected ClientClosedError")
	}
	if _, err := h.conductor.AddPublication("aeron:ipc", 1); err == nil {
		t.Fatalf("expected ClientClosedError from AddPublication")
	}
}

func TestInterServiceTimeoutClosesConductor(t *testing.T) {
	h := newHarness(t, Config{
		ClientID:            1,
		Mode:                ModeInvoker,
		InterServiceTimeout: 10 * time.Millisecond,
	})

	if _, err := h.conductor.DoWork(); err != nil {
		t.Fatalf("first DoWork: %v", err)
	}

	h.clock.Advance(time.Second)

	_, err := h.conductor.DoWork()
	if _, ok := err.(*InterServiceTimeoutError); !ok {
		t.Fatalf("err = %v, want *InterServiceTimeoutError", err)
	}
	if !h.conductor.IsClosed() {
		t.Fatalf("expected conductor closed after inter-service timeout")
	}
}

func TestZombieCloseReleasesTrackedRegistrations(t *testing.T) {
	h := newHarness(t, Config{ClientID: 1, Mode: ModeInvoker})

	closed := make(chan struct{}, 1)
	h.conductor.RegisterCloseable(42, closeableFunc(func() { closed <- struct{}{} }))

	h.conductor.OnClose()

	select {
	case <-closed:
	default:
		t.Fatalf("tracked registration was not closed")
	}
}

type closeableFunc func()

func (f closeableFunc) CloseQuietly() { f() }

func TestMetricsRecordRegistrationOutcomeAndKeepalive(t *testing.T) {
	m := metrics.New()
	h := newHarness(t, Config{ClientID: 1, Mode: ModeInvoker, KeepAliveInterval: time.Millisecond, Metrics: m})

	resultCh := make(chan error, 1)
	go func() {
		_, err := h.conductor.AddPublication("aeron:ipc", 10)
		resultCh <- err
	}()

	var correlationID int64
	deadline := time.Now().Add(time.Second)
	for correlationID == 0 && time.Now().Before(deadline) {
		h.ring.Read(func(msgTypeID int32, payload []byte) {
			_, corr, _, _ := driverproxy.DecodeChannelCommand(payload)
			correlationID = corr
		}, 10)
		time.Sleep(time.Millisecond)
	}
	h.tx.Transmit(RespOperationSuccess, EncodeOperationSuccess(correlationID, 999))

	select {
	case err := <-resultCh:
		if err != nil {
			t.Fatalf("AddPublication error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("AddPublication never resolved")
	}

	h.clock.Advance(time.Second)
	if _, err := h.conductor.DoWork(); err != nil {
		t.Fatalf("DoWork: %v", err)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()

	if !strings.Contains(body, `aeronc_registrations_total{kind="add-publication",outcome="success"} 1`) {
		t.Fatalf("missing registration-success counter, body:\n%s", body)
	}
	if !strings.Contains(body, `aeronc_broadcast_messages_total{kind="operation-success"} 1`) {
		t.Fatalf("missing broadcast-message counter, body:\n%s", body)
	}
	if !strings.Contains(body, "aeronc_keepalives_total 1") {
		t.Fatalf("missing keepalive counter, body:\n%s", body)
	}
}
