// Package broadcast implements the single-producer/many-observer
// receiver side of the to-client broadcast buffer (spec.md §3's
// BroadcastResponse channel, §4.2 component CopyBroadcastReceiver). The
// driver is the sole producer; this client is purely an observer. A
// slow observer can be lapped by the producer, in which case it skips
// forward and accepts the loss rather than blocking the driver — the
// same tradeoff Aeron-style broadcast buffers make, and the reason
// responses are always correlation-keyed rather than relied on for
// delivery guarantees (a lapped caller simply times out and, per
// spec.md §7, surfaces a DriverTimeout rather than hanging forever).
package broadcast

import (
	"sync/atomic"
	"unsafe"
)

const (
	headerLength  = 8
	alignment     = 8
	paddingTypeID = int32(-1)
	trailerLength = 16 // seq (8) + tail (8)
)

func alignUp(v int32) int32 {
	return (v + alignment - 1) &^ (alignment - 1)
}

const (
	seqOffset  = 0
	tailOffset = 8
)

// Transmitter is the producer side. Nothing in this client's production
// path uses it; it exists so tests can stand in for the driver without
// depending on a second process.
type Transmitter struct {
	buf      []byte
	capacity int32
	mask     int32
	trailer  []byte
}

// NewTransmitter wraps buf (capacity bytes of message space followed by
// trailerLength bytes of trailer) as a broadcast producer.
func NewTransmitter(buf []byte, capacity int32) (*Transmitter, error) {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		return nil, errCapacity
	}
	return &Transmitter{
		buf:      buf[:capacity],
		capacity: capacity,
		mask:     capacity - 1,
		trailer:  buf[capacity : capacity+trailerLength],
	}, nil
}

func (t *Transmitter) trailerInt64(offset int) *int64 {
	return (*int64)(unsafe.Pointer(&t.trailer[offset]))
}

// Transmit appends one record, using a seqlock so a concurrent receiver
// can detect and discard a torn read.
func (t *Transmitter) Transmit(msgTypeID int32, payload []byte) {
	aligned := alignUp(int32(len(payload)) + headerLength)
	tail := atomic.LoadInt64(t.trailerInt64(tailOffset))
	index := int32(tail & int64(t.mask))
	toEnd := t.capacity - index

	atomic.AddInt64(t.trailerInt64(seqOffset), 1) // odd: write in progress

	if aligned > toEnd {
		if toEnd >= headerLength {
			writeHeader(t.buf, index, paddingTypeID, toEnd-headerLength)
		}
		index = 0
		tail += int64(toEnd)
	}

	writeHeader(t.buf, index, msgTypeID, int32(len(payload)))
	copy(t.buf[index+headerLength:index+headerLength+int32(len(payload))], payload)

	atomic.StoreInt64(t.trailerInt64(tailOffset), tail+int64(aligned))
	atomic.AddInt64(t.trailerInt64(seqOffset), 1) // even: stable
}

func writeHeader(buf []byte, index int32, msgTypeID int32, length int32) {
	lp := (*int32)(unsafe.Pointer(&buf[index]))
	tp := (*int32)(unsafe.Pointer(&buf[index+4]))
	atomic.StoreInt32(lp, length)
	atomic.StoreInt32(tp, msgTypeID)
}

// Receiver is the CopyBroadcastReceiver: it copies a record's bytes out
// before validating, via the seqlock, that the producer did not
// overwrite them mid-copy. On a torn read it retries the same record;
// it never blocks.
type Receiver struct {
	buf      []byte
	capacity int32
	mask     int32
	trailer  []byte
	cursor   int64
}

var errCapacity = capacityError{}

type capacityError struct{}

func (capacityError) Error() string { return "broadcast: capacity must be a positive power of two" }

// NewReceiver wraps buf as a broadcast observer starting at the
// producer's current tail (an observer never replays history written
// before it attached).
func NewReceiver(buf []byte, capacity int32) (*Receiver, error) {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		return nil, errCapacity
	}
	r := &Receiver{
		buf:      buf[:capacity],
		capacity: capacity,
		mask:     capacity - 1,
		trailer:  buf[capacity : capacity+trailerLength],
	}
	r.cursor = atomic.LoadInt64(r.trailerInt64(tailOffset))
	return r, nil
}

func (r *Receiver) trailerInt64(offset int) *int64 {
	return (*int64)(unsafe.Pointer(&r.trailer[offset]))
}

// Handler is invoked for each record the receiver successfully copies
// and validates.
type Handler func(msgTypeID int32, payload []byte)

// Receive drains up to limit new records, calling handler for each. It
// never blocks: if the producer is mid-write it stops for this call and
// retries on the next invocation.
func (r *Receiver) Receive(handler Handler, limit int) int {
	delivered := 0
	for delivered < limit {
		tail := atomic.LoadInt64(r.trailerInt64(tailOffset))
		if tail == r.cursor {
			return delivered
		}
		if tail-r.cursor > int64(r.capacity) {
			// Lapped: the producer has wrapped past us. Accept the loss
			// and resynchronize to the oldest record it still holds.
			r.cursor = tail - int64(r.capacity)
		}

		seqBefore := atomic.LoadInt64(r.trailerInt64(seqOffset))
		if seqBefore%2 != 0 {
			return delivered // producer mid-write; retry next call
		}

		index := int32(r.cursor & int64(r.mask))
		length := atomic.LoadInt32((*int32)(unsafe.Pointer(&r.buf[index])))
		msgTypeID := atomic.LoadInt32((*int32)(unsafe.Pointer(&r.buf[index+4])))
		aligned := alignUp(length + headerLength)

		var body []byte
		if msgTypeID != paddingTypeID {
			body = make([]byte, length)
			copy(body, r.buf[index+headerLength:index+headerLength+length])
		}

		seqAfter := atomic.LoadInt64(r.trailerInt64(seqOffset))
		if seqAfter != seqBefore {
			return delivered // torn read; retry this same record next call
		}

		r.cursor += int64(aligned)
		if msgTypeID != paddingTypeID {
			handler(msgTypeID, body)
			delivered++
		}
	}
	return delivered
}

// TrailerLength is the fixed trailer size appended after the
// message-carrying capacity.
func TrailerLength() int64 { return trailerLength }
