package conductor

import "encoding/binary"

// Response message type ids, published by the driver on the to-client
// broadcast buffer. Operation success/error responses are correlated
// back to a pending call by CorrelationID; image availability messages
// are unprompted and simply fan out to the configured callbacks.
const (
	RespOperationSuccess int32 = 1
	RespOperationError   int32 = 2
	RespAvailableImage   int32 = 3
	RespUnavailableImage int32 = 4
)

type operationSuccess struct {
	CorrelationID int64
	RegistrationID int64
}

func decodeOperationSuccess(body []byte) operationSuccess {
	return operationSuccess{
		CorrelationID:  int64(binary.BigEndian.Uint64(body[0:8])),
		RegistrationID: int64(binary.BigEndian.Uint64(body[8:16])),
	}
}

// EncodeOperationSuccess is exported so tests can act as a fake driver.
func EncodeOperationSuccess(correlationID, registrationID int64) []byte {
	body := make([]byte, 16)
	binary.BigEndian.PutUint64(body[0:8], uint64(correlationID))
	binary.BigEndian.PutUint64(body[8:16], uint64(registrationID))
	return body
}

type operationError struct {
	CorrelationID int64
	Code          int32
	Message       string
}

func decodeOperationError(body []byte) operationError {
	corr := int64(binary.BigEndian.Uint64(body[0:8]))
	code := int32(binary.BigEndian.Uint32(body[8:12]))
	msgLen := binary.BigEndian.Uint32(body[12:16])
	msg := string(body[16 : 16+msgLen])
	return operationError{CorrelationID: corr, Code: code, Message: msg}
}

// EncodeOperationError is exported so tests can act as a fake driver.
func EncodeOperationError(correlationID int64, code int32, message string) []byte {
	body := make([]byte, 16+len(message))
	binary.BigEndian.PutUint64(body[0:8], uint64(correlationID))
	binary.BigEndian.PutUint32(body[8:12], uint32(code))
	binary.BigEndian.PutUint32(body[12:16], uint32(len(message)))
	copy(body[16:], message)
	return body
}

type imageEvent struct {
	RegistrationID int64
	SessionID      int32
	StreamID       int32
	Channel        string
}

func decodeImageEvent(body []byte) imageEvent {
	regID := int64(binary.BigEndian.Uint64(body[0:8]))
	sessionID := int32(binary.BigEndian.Uint32(body[8:12]))
	streamID := int32(binary.BigEndian.Uint32(body[12:16]))
	chLen := binary.BigEndian.Uint32(body[16:20])
	channel := string(body[20 : 20+chLen])
	return imageEvent{RegistrationID: regID, SessionID: sessionID, StreamID: streamID, Channel: channel}
}

// EncodeImageEvent is exported so tests can act as a fake driver.
func EncodeImageEvent(registrationID int64, sessionID, streamID int32, channel string) []byte {
	body := make([]byte, 20+len(channel))
	binary.BigEndian.PutUint64(body[0:8], uint64(registrationID))
	binary.BigEndian.PutUint32(body[8:12], uint32(sessionID))
	binary.BigEndian.PutUint32(body[12:16], uint32(streamID))
	binary.BigEndian.PutUint32(body[16:20], uint32(len(channel)))
	copy(body[20:], channel)
	return body
}
