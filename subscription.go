package aeronclient

import (
	"sync"
	"time"
)

// Subscription is a handle to a registered subscription. Like
// Publication, it implements conductor.Closeable for the conductor's
// zombie-cleanup registry.
type Subscription struct {
	facade         *ClientFacade
	channel        string
	streamID       int32
	registrationID int64

	closeOnce sync.Once
	closed    bool
	closeMu   sync.Mutex
}

// Channel returns the subscription's channel string.
func (s *Subscription) Channel() string { return s.channel }

// StreamID returns the subscription's stream id.
func (s *Subscription) StreamID() int32 { return s.streamID }

// RegistrationID returns the id the driver assigned this registration.
func (s *Subscription) RegistrationID() int64 { return s.registrationID }

// Close releases the subscription. Idempotent.
func (s *Subscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		start := time.Now()
		s.facade.conductor.UnregisterCloseable(s.registrationID)
		err = s.facade.conductor.ReleaseSubscription(s.registrationID)
		s.facade.recordAudit("release-subscription", s.channel, s.streamID, s.registrationID, err, start)
		s.closeMu.Lock()
		s.closed = true
		s.closeMu.Unlock()
	})
	return err
}

// CloseQuietly implements conductor.Closeable; see Publication.CloseQuietly.
func (s *Subscription) CloseQuietly() {
	s.closeOnce.Do(func() {
		s.facade.conductor.ReleaseSubscription(s.registrationID)
		s.closeMu.Lock()
		s.closed = true
		s.closeMu.Unlock()
	})
}

// IsClosed reports whether Close or CloseQuietly has already run.
func (s *Subscription) IsClosed() bool {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	return s.closed
}
