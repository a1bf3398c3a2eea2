package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandlerExposesRegisteredMetrics(t *testing.T) {
	m := New()
	m.ObserveConnectDuration(0.25)
	m.AddConductorWork(7)
	m.IncKeepalive()
	m.IncRegistration("add-publication", "success")
	m.IncRingBackpressure()
	m.IncBroadcastMessage("operation-success")
	m.IncDriverTimeout()
	m.IncInterServiceTimeout()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()

	for _, want := range []string{
		"aeronc_connect_duration_seconds",
		"aeronc_conductor_work_total 7",
		"aeronc_keepalives_total 1",
		`aeronc_registrations_total{kind="add-publication",outcome="success"} 1`,
		"aeronc_ring_backpressure_total 1",
		`aeronc_broadcast_messages_total{kind="operation-success"} 1`,
		"aeronc_driver_timeouts_total 1",
		"aeronc_inter_service_timeouts_total 1",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("body missing %q\nbody:\n%s", want, body)
		}
	}
}

func TestNewRegistersDistinctInstances(t *testing.T) {
	a := New()
	b := New()
	a.IncKeepalive()
	if a == b {
		t.Fatalf("New() returned shared instance")
	}

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, req)
	if strings.Contains(rec.Body.String(), "aeronc_keepalives_total 1") {
		t.Fatalf("second registry observed first registry's state")
	}
}
