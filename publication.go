package aeronclient

import (
	"sync"
	"time"
)

// Publication is a handle to a registered publication. It implements
// conductor.Closeable so the conductor can mark it closed automatically
// if it ever detects an inter-service timeout (spec.md §8 scenario 5).
type Publication struct {
	facade         *ClientFacade
	channel        string
	streamID       int32
	registrationID int64
	exclusive      bool

	closeOnce sync.Once
	closed    bool
	closeMu   sync.Mutex
}

// Channel returns the publication's channel string.
func (p *Publication) Channel() string { return p.channel }

// StreamID returns the publication's stream id.
func (p *Publication) StreamID() int32 { return p.streamID }

// RegistrationID returns the id the driver assigned this registration,
// as carried in the driver's success response to the AddPublication
// call that created it.
func (p *Publication) RegistrationID() int64 { return p.registrationID }

// IsExclusive reports whether this publication was registered via
// AddExclusivePublication.
func (p *Publication) IsExclusive() bool { return p.exclusive }

// Close releases the publication, asking the driver to tear it down.
// Idempotent.
func (p *Publication) Close() error {
	var err error
	p.closeOnce.Do(func() {
		start := time.Now()
		p.facade.conductor.UnregisterCloseable(p.registrationID)
		err = p.facade.conductor.ReleasePublication(p.registrationID)
		p.facade.recordAudit("release-publication", p.channel, p.streamID, p.registrationID, err, start)
		p.closeMu.Lock()
		p.closed = true
		p.closeMu.Unlock()
	})
	return err
}

// CloseQuietly implements conductor.Closeable: it attempts the release
// and swallows any error, since this path only runs when the conductor
// itself is shutting down every open registration and there is no
// caller left to hand an error to. The conductor is already closed at
// that point, so the release returns ClientClosedError without sending
// a remove command; the handle is only marked closed.
func (p *Publication) CloseQuietly() {
	p.closeOnce.Do(func() {
		p.facade.conductor.ReleasePublication(p.registrationID)
		p.closeMu.Lock()
		p.closed = true
		p.closeMu.Unlock()
	})
}

// IsClosed reports whether Close or CloseQuietly has already run.
func (p *Publication) IsClosed() bool {
	p.closeMu.Lock()
	defer p.closeMu.Unlock()
	return p.closed
}
