// Package driverproxy encodes client-to-driver command records and
// claims space for them on the to-driver command ring. Each command
// carries the requesting client's id and a fresh correlation id so the
// conductor can match the eventual OperationSuccess/Error response back
// to the caller that issued it (spec.md §3, §4.3). Framing follows the
// same length-prefixed, big-endian convention the teacher's vsock
// transport uses for its own wire messages, adapted here to write
// directly into a claimed ring-buffer slot instead of a socket.
package driverproxy

import (
	"encoding/binary"
	"fmt"

	"github.com/oriys/aeronclient/internal/ringbuffer"
)

// Command message type ids, published on the to-driver ring.
const (
	MsgAddPublication          int32 = 1
	MsgAddExclusivePublication int32 = 2
	MsgRemovePublication       int32 = 3
	MsgAddSubscription         int32 = 4
	MsgRemoveSubscription      int32 = 5
	MsgClientKeepalive         int32 = 6
)

// TransportError wraps a ring-buffer backpressure failure. The
// conductor surfaces it to the caller immediately rather than retrying
// the claim itself; a backpressure-aware caller can retry the whole
// registration call.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("driverproxy: %s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// Proxy writes command records onto a CommandRing on behalf of the
// conductor. It holds no state of its own beyond the ring and the
// client id every command must carry.
type Proxy struct {
	ring     *ringbuffer.ManyToOneRingBuffer
	clientID int64
}

// New builds a Proxy that tags every command it encodes with clientID.
func New(ring *ringbuffer.ManyToOneRingBuffer, clientID int64) *Proxy {
	return &Proxy{ring: ring, clientID: clientID}
}

func (p *Proxy) claimAndWrite(msgTypeID int32, body []byte) error {
	claim, err := p.ring.TryClaim(msgTypeID, int32(len(body)))
	if err != nil {
		return &TransportError{Op: "claim", Err: err}
	}
	copy(claim.Payload(), body)
	p.ring.Commit(claim)
	return nil
}

// AddPublication encodes an add-publication command and returns the
// correlation id the caller should wait on.
func (p *Proxy) AddPublication(channel string, streamID int32) (correlationID int64, err error) {
	return p.addPublication(MsgAddPublication, channel, streamID)
}

// AddExclusivePublication is identical to AddPublication but requests a
// publication this client does not share with sibling clients.
func (p *Proxy) AddExclusivePublication(channel string, streamID int32) (correlationID int64, err error) {
	return p.addPublication(MsgAddExclusivePublication, channel, streamID)
}

func (p *Proxy) addPublication(msgTypeID int32, channel string, streamID int32) (int64, error) {
	correlationID := p.ring.NextCorrelationID()
	body := encodeChannelCommand(p.clientID, correlationID, streamID, channel)
	if err := p.claimAndWrite(msgTypeID, body); err != nil {
		return 0, err
	}
	return correlationID, nil
}

// RemovePublication encodes a remove-publication command for a
// previously registered registrationID.
func (p *Proxy) RemovePublication(registrationID int64) (correlationID int64, err error) {
	correlationID = p.ring.NextCorrelationID()
	body := encodeRegistrationCommand(p.clientID, correlationID, registrationID)
	if err := p.claimAndWrite(MsgRemovePublication, body); err != nil {
		return 0, err
	}
	return correlationID, nil
}

// AddSubscription encodes an add-subscription command.
func (p *Proxy) AddSubscription(channel string, streamID int32) (correlationID int64, err error) {
	correlationID = p.ring.NextCorrelationID()
	body := encodeChannelCommand(p.clientID, correlationID, streamID, channel)
	if err := p.claimAndWrite(MsgAddSubscription, body); err != nil {
		return 0, err
	}
	return correlationID, nil
}

// RemoveSubscription encodes a remove-subscription command for a
// previously registered registrationID.
func (p *Proxy) RemoveSubscription(registrationID int64) (correlationID int64, err error) {
	correlationID = p.ring.NextCorrelationID()
	body := encodeRegistrationCommand(p.clientID, correlationID, registrationID)
	if err := p.claimAndWrite(MsgRemoveSubscription, body); err != nil {
		return 0, err
	}
	return correlationID, nil
}

// ClientKeepalive encodes the periodic keepalive the conductor sends to
// tell the driver this client is still alive (spec.md §4.5).
func (p *Proxy) ClientKeepalive() error {
	body := make([]byte, 8)
	binary.BigEndian.PutUint64(body, uint64(p.clientID))
	return p.claimAndWrite(MsgClientKeepalive, body)
}

func encodeChannelCommand(clientID, correlationID int64, streamID int32, channel string) []byte {
	body := make([]byte, 8+8+4+4+len(channel))
	binary.BigEndian.PutUint64(body[0:8], uint64(clientID))
	binary.BigEndian.PutUint64(body[8:16], uint64(correlationID))
	binary.BigEndian.PutUint32(body[16:20], uint32(streamID))
	binary.BigEndian.PutUint32(body[20:24], uint32(len(channel)))
	copy(body[24:], channel)
	return body
}

func encodeRegistrationCommand(clientID, correlationID, registrationID int64) []byte {
	body := make([]byte, 8+8+8)
	binary.BigEndian.PutUint64(body[0:8], uint64(clientID))
	binary.BigEndian.PutUint64(body[8:16], uint64(correlationID))
	binary.BigEndian.PutUint64(body[16:24], uint64(registrationID))
	return body
}

// DecodeChannelCommand is exported for tests that want to assert the
// proxy wrote what it claims to have written.
func DecodeChannelCommand(body []byte) (clientID, correlationID int64, streamID int32, channel string) {
	clientID = int64(binary.BigEndian.Uint64(body[0:8]))
	correlationID = int64(binary.BigEndian.Uint64(body[8:16]))
	streamID = int32(binary.BigEndian.Uint32(body[16:20]))
	channelLen := binary.BigEndian.Uint32(body[20:24])
	channel = string(body[24 : 24+channelLen])
	return
}

// DecodeRegistrationCommand is exported for tests; see DecodeChannelCommand.
func DecodeRegistrationCommand(body []byte) (clientID, correlationID, registrationID int64) {
	clientID = int64(binary.BigEndian.Uint64(body[0:8]))
	correlationID = int64(binary.BigEndian.Uint64(body[8:16]))
	registrationID = int64(binary.BigEndian.Uint64(body[16:24]))
	return
}
