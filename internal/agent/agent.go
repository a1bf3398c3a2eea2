// Package agent provides the two harness shapes the conductor can run
// under (spec.md §4.6): AgentRunner, a dedicated background goroutine
// that loops DoWork itself, and AgentInvoker, an embeddable harness a
// caller ticks explicitly from its own loop. Both share one contract so
// the conductor's DoWork never needs to know which harness drives it.
// The Start/stopCh/wg shutdown shape mirrors the teacher's worker pool
// harness; the idle-strategy consultation and the log-and-stop-the-loop
// error default are this package's own, grounded in spec.md §4.6/§7.
package agent

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/oriys/aeronclient/internal/idlestrategy"
)

// Agent is the unit of cooperative work both harnesses drive. DoWork is
// called repeatedly and must never block for long; it returns the
// number of work items actually processed, which the idle strategy uses
// to decide whether to back off.
type Agent interface {
	OnStart() error
	DoWork() (int, error)
	OnClose()
	RoleName() string
}

// ErrorHandler is invoked whenever DoWork returns an error. Returning
// true tells the runner to keep looping; false tells it to stop.
type ErrorHandler func(agent Agent, err error) (keepGoing bool)

// DefaultErrorHandler logs the error and aborts the runner's loop,
// matching spec.md §7's policy that most conductor errors are fatal to
// the conductor's own thread. It does not terminate the process.
func DefaultErrorHandler(agent Agent, err error) bool {
	slog.Error("agent error, stopping", "role", agent.RoleName(), "error", err)
	return false
}

// Runner drives an Agent on a dedicated goroutine. Foreign callers must
// never invoke DoWork directly while a Runner owns the agent — the
// client-wide lock exists precisely so application threads only ever
// reach the conductor through its typed entry points, never through
// doWork itself (spec.md §4.7 invariant).
type Runner struct {
	agent        Agent
	idleStrategy idlestrategy.IdleStrategy
	errorHandler ErrorHandler

	startOnce sync.Once
	stopCh    chan struct{}
	done      chan struct{}
	started   atomic.Bool
}

// NewRunner builds a Runner with the given idle strategy and error
// handler. A nil idleStrategy defaults to idlestrategy.NewSleeping(); a
// nil errorHandler defaults to DefaultErrorHandler.
func NewRunner(a Agent, idleStrategy idlestrategy.IdleStrategy, errorHandler ErrorHandler) *Runner {
	if idleStrategy == nil {
		idleStrategy = idlestrategy.NewSleeping()
	}
	if errorHandler == nil {
		errorHandler = DefaultErrorHandler
	}
	return &Runner{
		agent:        a,
		idleStrategy: idleStrategy,
		errorHandler: errorHandler,
		stopCh:       make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Start launches the dedicated goroutine. Safe to call once; subsequent
// calls are no-ops.
func (r *Runner) Start() {
	r.startOnce.Do(func() {
		r.started.Store(true)
		go r.loop()
	})
}

func (r *Runner) loop() {
	defer close(r.done)

	if err := r.agent.OnStart(); err != nil {
		r.errorHandler(r.agent, err)
		r.agent.OnClose()
		return
	}

	for {
		select {
		case <-r.stopCh:
			r.agent.OnClose()
			return
		default:
		}

		workCount, err := r.agent.DoWork()
		if err != nil {
			if !r.errorHandler(r.agent, err) {
				r.agent.OnClose()
				return
			}
		}
		r.idleStrategy.Idle(workCount)
	}
}

// Close signals the loop to stop and blocks until it has fully exited,
// including OnClose having run.
func (r *Runner) Close() {
	if !r.started.Load() {
		return
	}
	select {
	case <-r.stopCh:
	default:
		close(r.stopCh)
	}
	<-r.done
}

// Invoker is the embeddable harness: callers drive it by calling Invoke
// from their own loop instead of handing the agent a dedicated
// goroutine. Used when an application wants to fold conductor work into
// an existing event loop rather than pay for another thread.
type Invoker struct {
	agent   Agent
	started bool
	closed  bool
	mu      sync.Mutex
}

// NewInvoker wraps an Agent for caller-driven ticking.
func NewInvoker(a Agent) *Invoker {
	return &Invoker{agent: a}
}

// Start runs the agent's OnStart exactly once. Calling Invoke before
// Start is a programmer error the same way calling doWork from a
// foreign thread would be; callers are expected to call Start before
// their first Invoke.
func (i *Invoker) Start() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.started {
		return nil
	}
	i.started = true
	return i.agent.OnStart()
}

// Invoke drives exactly one DoWork call. It is a no-op once Close has
// been called.
func (i *Invoker) Invoke() (int, error) {
	i.mu.Lock()
	closed := i.closed
	i.mu.Unlock()
	if closed {
		return 0, nil
	}
	return i.agent.DoWork()
}

// Close runs OnClose exactly once.
func (i *Invoker) Close() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return
	}
	i.closed = true
	i.agent.OnClose()
}
