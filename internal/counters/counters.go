// Package counters reads the CnC file's counters-metadata and
// counters-values sub-regions (spec.md §3/§4.2 CountersReader). Both
// sub-regions are driver-owned and append-only from this client's
// perspective: the driver registers a counter by writing a metadata
// record and a value slot, and this client only ever reads them.
package counters

import (
	"sync/atomic"
	"unsafe"
)

const (
	metadataRecordLength = 128
	labelMaxLength       = metadataRecordLength - labelHeaderLength
	labelHeaderLength    = 16 // state(4) + typeId(4) + labelLength(4) + reserved(4)
	valuesSlotLength     = 64 // one cache line per counter

	stateOffset       = 0
	typeIDOffset      = 4
	labelLengthOffset = 8
	labelOffset       = labelHeaderLength
)

// Counter states, matching the registration lifecycle the driver drives
// this client only ever observes.
const (
	RecordUnused     int32 = 0
	RecordAllocated  int32 = 1
	RecordReclaimed  int32 = -1
)

// Reader is a read-only view over a driver-populated counters store.
type Reader struct {
	metadata []byte
	values   []byte
}

// NewReader wraps the counters-metadata and counters-values sub-regions
// of a mapped CnC file.
func NewReader(metadata, values []byte) *Reader {
	return &Reader{metadata: metadata, values: values}
}

func (r *Reader) maxCounters() int32 {
	n := int32(len(r.metadata) / metadataRecordLength)
	if byValues := int32(len(r.values) / valuesSlotLength); byValues < n {
		n = byValues
	}
	return n
}

// State returns the lifecycle state of counter id.
func (r *Reader) State(id int32) int32 {
	offset := int(id) * metadataRecordLength
	return atomic.LoadInt32((*int32)(unsafe.Pointer(&r.metadata[offset+stateOffset])))
}

// TypeID returns the application-defined type tag of counter id.
func (r *Reader) TypeID(id int32) int32 {
	offset := int(id) * metadataRecordLength
	return atomic.LoadInt32((*int32)(unsafe.Pointer(&r.metadata[offset+typeIDOffset])))
}

// Label returns the US-ASCII label of counter id, per spec.md's
// counters-metadata charset requirement.
func (r *Reader) Label(id int32) string {
	offset := int(id) * metadataRecordLength
	length := atomic.LoadInt32((*int32)(unsafe.Pointer(&r.metadata[offset+labelLengthOffset])))
	if length <= 0 || int(length) > labelMaxLength {
		return ""
	}
	start := offset + labelOffset
	return string(r.metadata[start : start+int(length)])
}

// Value returns the current 64-bit value of counter id.
func (r *Reader) Value(id int32) int64 {
	offset := int(id) * valuesSlotLength
	return atomic.LoadInt64((*int64)(unsafe.Pointer(&r.values[offset])))
}

// Snapshot is a point-in-time copy of one counter's observable state,
// returned by ForEach for callers (the CLI, the Redis mirror) that need
// a plain value rather than a live view.
type Snapshot struct {
	ID    int32
	TypeID int32
	Label string
	Value int64
}

// ForEach visits every allocated counter in ascending id order.
func (r *Reader) ForEach(visit func(Snapshot)) {
	for id := int32(0); id < r.maxCounters(); id++ {
		if r.State(id) != RecordAllocated {
			continue
		}
		visit(Snapshot{
			ID:     id,
			TypeID: r.TypeID(id),
			Label:  r.Label(id),
			Value:  r.Value(id),
		})
	}
}

// MetadataRecordLength is the fixed stride of one counter's metadata
// record.
func MetadataRecordLength() int32 { return metadataRecordLength }

// ValuesSlotLength is the fixed stride of one counter's value slot.
func ValuesSlotLength() int32 { return valuesSlotLength }
