package cnc

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oriys/aeronclient/internal/clock"
	"github.com/oriys/aeronclient/internal/ringbuffer"
)

const testRingCapacity = 256 // power of two

func writeFixtureCnc(t *testing.T, path string, heartbeatMillis int64) {
	t.Helper()

	toDriverLen := int64(testRingCapacity) + ringbuffer.TrailerLength()
	toClientLen := int64(64) + ringbuffer.TrailerLength()
	countersMetaLen := int64(1024)
	countersValuesLen := int64(1024)
	errorLogLen := int64(0)
	total := metaDataLength + toDriverLen + toClientLen + countersMetaLen + countersValuesLen + errorLogLen

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create fixture: %v", err)
	}
	if err := f.Truncate(total); err != nil {
		t.Fatalf("truncate fixture: %v", err)
	}
	f.Close()

	region, err := OpenAndMap(path, total)
	if err != nil {
		t.Fatalf("map fixture: %v", err)
	}
	defer region.Close()

	meta := NewMetaData(region.Bytes()[:metaDataLength])
	meta.SetToDriverBufferLength(int32(toDriverLen))
	meta.SetToClientBufferLength(int32(toClientLen))
	meta.SetCountersMetadataBufferLength(int32(countersMetaLen))
	meta.SetCountersValuesBufferLength(int32(countersValuesLen))
	meta.SetErrorLogBufferLength(int32(errorLogLen))
	meta.SetClientLivenessTimeoutNs(int64(10 * time.Second))

	layout := ComputeLayout(meta)
	ringBuf := region.Bytes()[layout.ToDriverBufferOffset : layout.ToDriverBufferOffset+layout.ToDriverBufferLength]
	ring, err := ringbuffer.New(ringBuf, testRingCapacity)
	if err != nil {
		t.Fatalf("ring fixture: %v", err)
	}
	if heartbeatMillis != 0 {
		ring.SetConsumerHeartbeatTime(heartbeatMillis)
	}

	// Version published last, with release semantics, per the driver's
	// documented publication order.
	meta.SetVersion(Version)
}

func TestConnectorHappyPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aeronc-cnc")

	now := time.Now().UnixMilli()
	writeFixtureCnc(t, path, now)

	c := NewConnector(path, 5*time.Second)
	c.Clock = clock.NewSettable(now, 0)

	result, err := c.Connect()
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer result.Region.Close()

	if result.Layout.ToDriverBufferLength == 0 {
		t.Fatalf("layout not populated")
	}
	if result.CommandRing.ConsumerHeartbeatTime() != now {
		t.Fatalf("heartbeat = %d, want %d", result.CommandRing.ConsumerHeartbeatTime(), now)
	}
}

func TestConnectorFileNeverAppears(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "does-not-exist")

	c := NewConnector(path, 50*time.Millisecond)
	_, err := c.Connect()
	if _, ok := err.(*DriverTimeoutError); !ok {
		t.Fatalf("err = %v, want *DriverTimeoutError", err)
	}
}

func TestConnectorRejectsUnsupportedVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aeronc-cnc")

	writeFixtureCnc(t, path, time.Now().UnixMilli())

	// Downgrade the published version after the fixture wrote it.
	region, err := OpenAndMap(path, metaDataLength)
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	NewMetaData(region.Bytes()).SetVersion(Version + 1)
	region.Close()

	c := NewConnector(path, 2*time.Second)
	_, err = c.Connect()
	verErr, ok := err.(*UnsupportedVersionError)
	if !ok {
		t.Fatalf("err = %v, want *UnsupportedVersionError", err)
	}
	if verErr.Observed != Version+1 || verErr.Expected != Version {
		t.Fatalf("got %+v", verErr)
	}
}

func TestConnectorTimesOutOnMissingHeartbeat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aeronc-cnc")

	writeFixtureCnc(t, path, 0) // never wrote a heartbeat

	c := NewConnector(path, 50*time.Millisecond)
	_, err := c.Connect()
	if _, ok := err.(*DriverTimeoutError); !ok {
		t.Fatalf("err = %v, want *DriverTimeoutError", err)
	}
}

// rewriteFixtureHeartbeat overwrites the heartbeat trailer field of an
// already-laid-out fixture without touching anything else, standing in
// for a driver that keeps publishing heartbeats between a client's
// retries.
func rewriteFixtureHeartbeat(t *testing.T, path string, heartbeatMillis int64) {
	t.Helper()

	header, err := OpenAndMap(path, metaDataLength)
	if err != nil {
		t.Fatalf("map header: %v", err)
	}
	layout := ComputeLayout(NewMetaData(header.Bytes()))
	header.Close()

	region, err := OpenAndMap(path, layout.TotalLength)
	if err != nil {
		t.Fatalf("map fixture: %v", err)
	}
	defer region.Close()

	ringBuf := region.Bytes()[layout.ToDriverBufferOffset : layout.ToDriverBufferOffset+layout.ToDriverBufferLength]
	ring, err := ringbuffer.New(ringBuf, testRingCapacity)
	if err != nil {
		t.Fatalf("ring: %v", err)
	}
	ring.SetConsumerHeartbeatTime(heartbeatMillis)
}

// TestConnectorRetriesStaleHeartbeatThenSucceeds covers spec.md §8
// scenario 4's first outcome: a stale-but-not-yet-timed-out heartbeat
// makes the first pass unmap and retry, and a driver that refreshes the
// heartbeat before the overall deadline lets the retry succeed.
func TestConnectorRetriesStaleHeartbeatThenSucceeds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aeronc-cnc")

	now := time.Now().UnixMilli()
	driverTimeout := 2 * time.Second
	writeFixtureCnc(t, path, now-3*driverTimeout.Milliseconds()) // well past stale

	c := NewConnector(path, driverTimeout)

	type connectResult struct {
		result Result
		err    error
	}
	done := make(chan connectResult, 1)
	go func() {
		result, err := c.Connect()
		done <- connectResult{result, err}
	}()

	// Give the first attempt time to observe the stale heartbeat and
	// enter its retry sleep, then have the "driver" refresh it before
	// the overall deadline elapses.
	time.Sleep(50 * time.Millisecond)
	rewriteFixtureHeartbeat(t, path, time.Now().UnixMilli())

	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("Connect: %v", r.err)
		}
		defer r.result.Region.Close()
		if r.result.CommandRing.ConsumerHeartbeatTime() == 0 {
			t.Fatalf("heartbeat not populated after retry")
		}
	case <-time.After(driverTimeout + time.Second):
		t.Fatalf("Connect did not return after heartbeat refresh")
	}
}

// TestConnectorStaleHeartbeatNeverRefreshedTimesOut covers spec.md §8
// scenario 4's second outcome: a heartbeat that stays stale across the
// whole driver timeout surfaces a *DriverTimeoutError, not a silent
// retry loop.
func TestConnectorStaleHeartbeatNeverRefreshedTimesOut(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aeronc-cnc")

	driverTimeout := 50 * time.Millisecond
	writeFixtureCnc(t, path, time.Now().Add(-time.Second).UnixMilli()) // always stale

	c := NewConnector(path, driverTimeout)
	_, err := c.Connect()
	if _, ok := err.(*DriverTimeoutError); !ok {
		t.Fatalf("err = %v, want *DriverTimeoutError", err)
	}
}
