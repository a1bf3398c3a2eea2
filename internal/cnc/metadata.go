// Package cnc implements the pure descriptor and handshake logic for the
// memory-mapped Command-and-Control file shared between this client and
// the media driver process: offset/length computation (layout.go),
// atomic version/heartbeat reads over the mapped bytes (metadata.go,
// region.go), and the bounded handshake state machine (connector.go).
package cnc

import (
	"sync/atomic"
	"unsafe"
)

// Byte offsets within the fixed-size metadata sub-region. The layout is
// part of the wire ABI shared with the driver: a mismatched version is
// fatal (spec invariant (v)), so these offsets must never change without
// also bumping Version.
const (
	versionOffset                     = 0
	toDriverBufferLengthOffset        = 4
	toClientBufferLengthOffset        = 8
	countersMetadataLengthOffset      = 12
	countersValuesLengthOffset        = 16
	clientLivenessTimeoutNsOffset     = 24 // 8-byte aligned
	errorLogBufferLengthOffset        = 32
	metaDataLength                int64 = 4096 // page-aligned, room to grow without an ABI bump
)

// Version is the CNC_VERSION this client is compiled against. A CnC
// file whose published version differs is rejected outright.
const Version int32 = 4

// MetaData is a read-mostly view over the metadata sub-region of a
// mapped CnC file. All reads are direct over the shared bytes; Version
// is read with acquire semantics because the driver publishes it last,
// after populating every other metadata field (spec §4.1 step 3/4).
type MetaData struct {
	base []byte
}

// NewMetaData wraps the metadata sub-region of a mapped CnC file. base
// must be at least metaDataLength bytes and must remain valid for the
// lifetime of MetaData (it is a view, not a copy).
func NewMetaData(base []byte) *MetaData {
	if int64(len(base)) < metaDataLength {
		panic("cnc: metadata region shorter than metaDataLength")
	}
	return &MetaData{base: base}
}

func (m *MetaData) ptr32(offset int) *int32 {
	return (*int32)(unsafe.Pointer(&m.base[offset]))
}

func (m *MetaData) ptr64(offset int) *int64 {
	return (*int64)(unsafe.Pointer(&m.base[offset]))
}

// Version reads the published CnC version with acquire semantics: a
// non-zero read here is guaranteed to observe every metadata field the
// driver wrote before it, since the driver is expected to publish
// version last (release semantics on the writer side).
func (m *MetaData) Version() int32 {
	return atomic.LoadInt32(m.ptr32(versionOffset))
}

// SetVersion publishes the version field with release semantics. Only
// ever called by test fixtures standing in for the driver; production
// clients never write to the CnC file's metadata region.
func (m *MetaData) SetVersion(v int32) {
	atomic.StoreInt32(m.ptr32(versionOffset), v)
}

// ToDriverBufferLength returns the configured length of the to-driver
// command ring sub-region.
func (m *MetaData) ToDriverBufferLength() int32 {
	return atomic.LoadInt32(m.ptr32(toDriverBufferLengthOffset))
}

// SetToDriverBufferLength is a test-fixture helper; see SetVersion.
func (m *MetaData) SetToDriverBufferLength(v int32) {
	atomic.StoreInt32(m.ptr32(toDriverBufferLengthOffset), v)
}

// ToClientBufferLength returns the configured length of the to-client
// broadcast sub-region.
func (m *MetaData) ToClientBufferLength() int32 {
	return atomic.LoadInt32(m.ptr32(toClientBufferLengthOffset))
}

// SetToClientBufferLength is a test-fixture helper; see SetVersion.
func (m *MetaData) SetToClientBufferLength(v int32) {
	atomic.StoreInt32(m.ptr32(toClientBufferLengthOffset), v)
}

// CountersMetadataBufferLength returns the configured length of the
// counters-metadata sub-region.
func (m *MetaData) CountersMetadataBufferLength() int32 {
	return atomic.LoadInt32(m.ptr32(countersMetadataLengthOffset))
}

// SetCountersMetadataBufferLength is a test-fixture helper; see SetVersion.
func (m *MetaData) SetCountersMetadataBufferLength(v int32) {
	atomic.StoreInt32(m.ptr32(countersMetadataLengthOffset), v)
}

// CountersValuesBufferLength returns the configured length of the
// counters-values sub-region.
func (m *MetaData) CountersValuesBufferLength() int32 {
	return atomic.LoadInt32(m.ptr32(countersValuesLengthOffset))
}

// SetCountersValuesBufferLength is a test-fixture helper; see SetVersion.
func (m *MetaData) SetCountersValuesBufferLength(v int32) {
	atomic.StoreInt32(m.ptr32(countersValuesLengthOffset), v)
}

// ErrorLogBufferLength returns the configured length of the error-log
// sub-region (forwarded verbatim; this client treats error-log contents
// as opaque driver diagnostics it does not parse).
func (m *MetaData) ErrorLogBufferLength() int32 {
	return atomic.LoadInt32(m.ptr32(errorLogBufferLengthOffset))
}

// SetErrorLogBufferLength is a test-fixture helper; see SetVersion.
func (m *MetaData) SetErrorLogBufferLength(v int32) {
	atomic.StoreInt32(m.ptr32(errorLogBufferLengthOffset), v)
}

// ClientLivenessTimeoutNs returns the driver-configured inter-service
// timeout, in nanoseconds. IpcBindings falls back to this value when
// the caller did not explicitly set one (spec §9 Open Question).
func (m *MetaData) ClientLivenessTimeoutNs() int64 {
	return atomic.LoadInt64(m.ptr64(clientLivenessTimeoutNsOffset))
}

// SetClientLivenessTimeoutNs is a test-fixture helper; see SetVersion.
func (m *MetaData) SetClientLivenessTimeoutNs(v int64) {
	atomic.StoreInt64(m.ptr64(clientLivenessTimeoutNsOffset), v)
}

// MetaDataLength is the fixed size of the metadata sub-region.
func MetaDataLength() int64 { return metaDataLength }
