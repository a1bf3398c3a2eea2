package cnc

import (
	"os"
	"time"

	"github.com/oriys/aeronclient/internal/clock"
	"github.com/oriys/aeronclient/internal/logging"
	"github.com/oriys/aeronclient/internal/ringbuffer"
)

// fileExistsPollInterval and versionPollInterval bound how often the
// connector re-checks filesystem/mapped state while waiting on the
// driver; they are deliberately short since the cost of a check is a
// stat(2) or a memory read, not a syscall round trip to another host.
const (
	fileExistsPollInterval = 16 * time.Millisecond
	versionPollInterval    = 1 * time.Millisecond
	staleRetryDelay        = 100 * time.Millisecond
)

// Result is what a successful Connect hands back to IpcBindings: a live
// mapping, its parsed metadata, the computed sub-region layout, and a
// ready-to-use view of the to-driver command ring.
type Result struct {
	Region      *MappedCncRegion
	MetaData    *MetaData
	Layout      Layout
	CommandRing *ringbuffer.ManyToOneRingBuffer
}

// Connector runs the bounded handshake algorithm described in spec.md
// §4.1: wait for the CnC file to appear, map it, wait for the driver to
// publish a supported version, wait for a first heartbeat, and reject a
// stale one. Every step is gated by DriverTimeout; every failure path
// unmaps before returning.
type Connector struct {
	Path          string
	DriverTimeout time.Duration
	Clock         clock.EpochClock
}

// NewConnector builds a Connector with the system epoch clock.
func NewConnector(path string, driverTimeout time.Duration) *Connector {
	return &Connector{Path: path, DriverTimeout: driverTimeout, Clock: clock.SystemEpochClock{}}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Connect runs the handshake to completion or returns a
// *DriverTimeoutError / *UnsupportedVersionError. On any error return,
// no mapping is left open.
func (c *Connector) Connect() (Result, error) {
	deadline := c.Clock.TimeMillis() + c.DriverTimeout.Milliseconds()
	logging.Op().Debug("cnc handshake starting", "path", c.Path, "driverTimeout", c.DriverTimeout)

	for {
		region, meta, layout, ring, err := c.attempt(deadline)
		if err == errStaleHeartbeatRetry {
			logging.Op().Warn("cnc heartbeat stale, retrying handshake", "path", c.Path)
			time.Sleep(staleRetryDelay)
			if c.Clock.TimeMillis() > deadline {
				err := &DriverTimeoutError{Reason: "no driver heartbeat detected"}
				logging.Op().Error("cnc handshake failed", "path", c.Path, "error", err)
				return Result{}, err
			}
			continue
		}
		if err != nil {
			logging.Op().Error("cnc handshake failed", "path", c.Path, "error", err)
			return Result{}, err
		}
		logging.Op().Debug("cnc handshake complete", "path", c.Path)
		return Result{Region: region, MetaData: meta, Layout: layout, CommandRing: ring}, nil
	}
}

// errStaleHeartbeatRetry is a sentinel the inner attempt uses to tell
// Connect to sleep and restart the whole handshake from step 1, as
// spec.md §4.1 step 7 requires on a stale-but-not-yet-timed-out
// heartbeat.
var errStaleHeartbeatRetry = &staleHeartbeatError{}

type staleHeartbeatError struct{}

func (*staleHeartbeatError) Error() string { return "cnc: stale heartbeat, retrying" }

func (c *Connector) attempt(deadline int64) (region *MappedCncRegion, meta *MetaData, layout Layout, ring *ringbuffer.ManyToOneRingBuffer, err error) {
	// Step 1: wait for the file to exist.
	logging.Op().Debug("cnc handshake: waiting for file", "path", c.Path)
	for !exists(c.Path) {
		if c.Clock.TimeMillis() > deadline {
			return nil, nil, Layout{}, nil, &DriverTimeoutError{Reason: "CnC file not found"}
		}
		time.Sleep(fileExistsPollInterval)
	}

	// Step 2: map just the metadata header first; we don't know the
	// sub-region lengths until the driver publishes them.
	logging.Op().Debug("cnc handshake: mapping metadata header", "path", c.Path)
	region, err = OpenAndMap(c.Path, metaDataLength)
	if err != nil {
		return nil, nil, Layout{}, nil, err
	}
	meta = NewMetaData(region.Bytes())

	// Step 3: wait for the version to publish (non-zero).
	logging.Op().Debug("cnc handshake: waiting for version", "path", c.Path)
	for meta.Version() == 0 {
		if c.Clock.TimeMillis() > deadline {
			region.Close()
			return nil, nil, Layout{}, nil, &DriverTimeoutError{Reason: "CnC file is created but not initialised"}
		}
		time.Sleep(versionPollInterval)
	}

	// Step 4: version check.
	if observed := meta.Version(); observed != Version {
		region.Close()
		return nil, nil, Layout{}, nil, &UnsupportedVersionError{Observed: observed, Expected: Version}
	}
	logging.Op().Debug("cnc handshake: version accepted", "path", c.Path, "version", meta.Version())

	// Now that lengths are published, remap the whole file and recompute
	// offsets against the fully sized region.
	layout = ComputeLayout(meta)
	if err := region.Close(); err != nil {
		return nil, nil, Layout{}, nil, err
	}
	region, err = OpenAndMap(c.Path, layout.TotalLength)
	if err != nil {
		return nil, nil, Layout{}, nil, err
	}
	meta = NewMetaData(region.Bytes()[layout.MetaDataOffset : layout.MetaDataOffset+layout.MetaDataLength])

	ringBuf := region.Bytes()[layout.ToDriverBufferOffset : layout.ToDriverBufferOffset+layout.ToDriverBufferLength]
	ringCapacity := int32(layout.ToDriverBufferLength - ringbuffer.TrailerLength())
	ring, err = ringbuffer.New(ringBuf, ringCapacity)
	if err != nil {
		region.Close()
		return nil, nil, Layout{}, nil, err
	}

	// Step 5: wait for a first heartbeat.
	logging.Op().Debug("cnc handshake: waiting for first heartbeat", "path", c.Path)
	for ring.ConsumerHeartbeatTime() == 0 {
		if c.Clock.TimeMillis() > deadline {
			region.Close()
			return nil, nil, Layout{}, nil, &DriverTimeoutError{Reason: "no driver heartbeat detected"}
		}
		time.Sleep(versionPollInterval)
	}

	// Step 6/7: freshness check. A heartbeat older than the driver
	// timeout means the driver that wrote it has since died; unmap and
	// retry the whole handshake rather than trusting a dead driver's
	// stale CnC file.
	heartbeatAge := c.Clock.TimeMillis() - ring.ConsumerHeartbeatTime()
	if heartbeatAge > c.DriverTimeout.Milliseconds() {
		region.Close()
		return nil, nil, Layout{}, nil, errStaleHeartbeatRetry
	}

	return region, meta, layout, ring, nil
}
