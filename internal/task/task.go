// Package task runs single database calls on worker goroutines with
// poll/wait/cancel semantics. Each Op owns its connection for the duration of
// the call; the callers guarantee at most one running op per connection.
package task

import (
	"context"
	"sync"
	"time"

	"github.com/rebeliceyang/lazydb/internal/driver"
)

// State is the op lifecycle: Idle -> Running -> {Done | Failed | Cancelled}.
type State int

const (
	Idle State = iota
	Running
	Done
	Failed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Done:
		return "done"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Kind describes what an op does, for status display.
type Kind int

const (
	KindConnect Kind = iota
	KindListTables
	KindSchema
	KindCount
	KindPage
	KindQuery
)

// Outcome carries whatever a worker produced. Only the fields relevant to the
// op's kind are set.
type Outcome struct {
	Result *driver.ResultSet
	Count  int64
	Approx bool
	Tables []string
	Schema *driver.TableSchema
	Conn   driver.Conn
}

// Func is the worker body. It must honor ctx cancellation at whatever
// suspension points the driver offers.
type Func func(ctx context.Context) (*Outcome, error)

// Op is one asynchronous database call. A single mutex guards the state, the
// cancellation flag and the outcome; it is never held across the driver call.
type Op struct {
	kind Kind
	run  Func

	mu        sync.Mutex
	state     State
	cancelled bool
	outcome   *Outcome
	err       error

	done   chan struct{}
	cancel context.CancelFunc
}

// New creates an op in Idle.
func New(kind Kind, run Func) *Op {
	return &Op{kind: kind, run: run, done: make(chan struct{})}
}

func (o *Op) Kind() Kind { return o.kind }

// Start moves Idle to Running and spawns the worker. It reports false when
// the op already started.
func (o *Op) Start(ctx context.Context) bool {
	o.mu.Lock()
	if o.state != Idle {
		o.mu.Unlock()
		return false
	}
	o.state = Running
	ctx, o.cancel = context.WithCancel(ctx)
	o.mu.Unlock()

	go o.work(ctx)
	return true
}

func (o *Op) work(ctx context.Context) {
	out, err := o.run(ctx)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancelled {
		// The result, if any, is discarded under the lock and never observed.
		o.state = Cancelled
		if out != nil && out.Conn != nil {
			_ = out.Conn.Close()
		}
	} else if err != nil {
		o.state = Failed
		o.err = err
	} else {
		o.state = Done
		o.outcome = out
	}
	close(o.done)
}

// Poll returns the current state without blocking.
func (o *Op) Poll() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Cancel flags the op cancelled and interrupts the worker's context. The
// caller still sees Cancelled even when the backend cannot interrupt and the
// call runs to completion.
func (o *Op) Cancel() {
	o.mu.Lock()
	if o.state == Idle {
		o.state = Cancelled
		close(o.done)
		o.mu.Unlock()
		return
	}
	if o.state != Running || o.cancelled {
		o.mu.Unlock()
		return
	}
	o.cancelled = true
	cancel := o.cancel
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Cancelled reports whether Cancel was called on a running op.
func (o *Op) Cancelled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cancelled || o.state == Cancelled
}

// Wait blocks until the op leaves Running or the timeout elapses. A negative
// timeout waits forever. It returns the state at return time.
func (o *Op) Wait(timeout time.Duration) State {
	if timeout < 0 {
		<-o.done
		return o.Poll()
	}
	select {
	case <-o.done:
	case <-time.After(timeout):
	}
	return o.Poll()
}

// Take consumes the outcome or error. The first call transfers ownership;
// later calls return nil, nil.
func (o *Op) Take() (*Outcome, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	out, err := o.outcome, o.err
	o.outcome, o.err = nil, nil
	return out, err
}

// Join cancels an op and waits for the worker to observe it: a bounded wait
// first, then a short busy-poll. Any produced result is discarded. Safe on
// nil.
func Join(o *Op) {
	if o == nil {
		return
	}
	o.Cancel()
	if o.Wait(500*time.Millisecond) == Running {
		for o.Poll() == Running {
			time.Sleep(10 * time.Millisecond)
		}
	}
	_, _ = o.Take()
}
