package ringbuffer

import "testing"

func newTestRing(t *testing.T, capacity int32) *ManyToOneRingBuffer {
	t.Helper()
	buf := make([]byte, int64(capacity)+TrailerLength())
	r, err := New(buf, capacity)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func TestTryClaimCommitRoundTrip(t *testing.T) {
	r := newTestRing(t, 256)

	claim, err := r.TryClaim(7, 5)
	if err != nil {
		t.Fatalf("TryClaim: %v", err)
	}
	copy(claim.Payload(), []byte("hello"))
	r.Commit(claim)

	var gotType int32
	var gotBody string
	n := r.Read(func(msgTypeID int32, payload []byte) {
		gotType = msgTypeID
		gotBody = string(payload)
	}, 10)

	if n != 1 {
		t.Fatalf("Read delivered %d records, want 1", n)
	}
	if gotType != 7 || gotBody != "hello" {
		t.Fatalf("got type=%d body=%q, want type=7 body=hello", gotType, gotBody)
	}
}

func TestReadStopsAtUncommittedRecord(t *testing.T) {
	r := newTestRing(t, 256)

	if _, err := r.TryClaim(1, 4); err != nil {
		t.Fatalf("TryClaim: %v", err)
	}
	// Left uncommitted on purpose: its header length stays negative.

	n := r.Read(func(int32, []byte) {}, 10)
	if n != 0 {
		t.Fatalf("Read delivered %d records past an uncommitted claim, want 0", n)
	}
}

func TestNextCorrelationIDIsMonotonic(t *testing.T) {
	r := newTestRing(t, 64)

	seen := map[int64]bool{}
	for i := 0; i < 100; i++ {
		id := r.NextCorrelationID()
		if seen[id] {
			t.Fatalf("correlation id %d reused", id)
		}
		seen[id] = true
	}
}

func TestConsumerHeartbeatTimeRoundTrip(t *testing.T) {
	r := newTestRing(t, 64)

	if got := r.ConsumerHeartbeatTime(); got != 0 {
		t.Fatalf("fresh ring heartbeat = %d, want 0", got)
	}
	r.SetConsumerHeartbeatTime(12345)
	if got := r.ConsumerHeartbeatTime(); got != 12345 {
		t.Fatalf("heartbeat = %d, want 12345", got)
	}
}

func TestTryClaimInsufficientCapacity(t *testing.T) {
	r := newTestRing(t, 32)

	if _, err := r.TryClaim(1, 1000); err != ErrInsufficientCapacity {
		t.Fatalf("err = %v, want ErrInsufficientCapacity", err)
	}
}

func TestTryClaimRejectsNonPositiveMsgTypeID(t *testing.T) {
	r := newTestRing(t, 64)

	if _, err := r.TryClaim(0, 4); err != ErrInvalidMsgTypeID {
		t.Fatalf("err = %v, want ErrInvalidMsgTypeID", err)
	}
	if _, err := r.TryClaim(-1, 4); err != ErrInvalidMsgTypeID {
		t.Fatalf("err = %v, want ErrInvalidMsgTypeID", err)
	}
}

func TestWraparoundPadsAndContinues(t *testing.T) {
	r := newTestRing(t, 64)

	// Fill most of the buffer with committed records, then force a claim
	// that must wrap around to the start.
	for i := 0; i < 3; i++ {
		claim, err := r.TryClaim(1, 8)
		if err != nil {
			t.Fatalf("TryClaim %d: %v", i, err)
		}
		r.Commit(claim)
	}

	var delivered int
	r.Read(func(int32, []byte) { delivered++ }, 10)
	if delivered != 3 {
		t.Fatalf("delivered = %d, want 3", delivered)
	}

	// tail sits at 48, leaving 16 bytes to the end; a 16-byte body needs
	// 24 aligned bytes, so this claim pads the tail and wraps to index 0.
	claim, err := r.TryClaim(2, 16)
	if err != nil {
		t.Fatalf("wrap TryClaim: %v", err)
	}
	copy(claim.Payload(), []byte("abcdefghijklmnop"))
	r.Commit(claim)

	var gotBody string
	var gotType int32
	n := r.Read(func(msgTypeID int32, payload []byte) {
		gotType = msgTypeID
		gotBody = string(payload)
	}, 10)
	if n != 1 || gotBody != "abcdefghijklmnop" || gotType != 2 {
		t.Fatalf("wrap read n=%d type=%d body=%q", n, gotType, gotBody)
	}
}
