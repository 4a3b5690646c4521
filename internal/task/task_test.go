package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rebeliceyang/lazydb/internal/driver"
)

func TestLifecycleDone(t *testing.T) {
	op := New(KindCount, func(ctx context.Context) (*Outcome, error) {
		return &Outcome{Count: 42}, nil
	})
	if op.Poll() != Idle {
		t.Fatalf("new op state = %v, want Idle", op.Poll())
	}
	if !op.Start(context.Background()) {
		t.Fatal("Start returned false")
	}
	if st := op.Wait(time.Second); st != Done {
		t.Fatalf("state = %v, want Done", st)
	}
	out, err := op.Take()
	if err != nil || out == nil || out.Count != 42 {
		t.Errorf("Take = %+v, %v", out, err)
	}
	// A second Take returns nothing.
	out, err = op.Take()
	if out != nil || err != nil {
		t.Errorf("second Take = %+v, %v; want nil, nil", out, err)
	}
}

func TestLifecycleFailed(t *testing.T) {
	boom := errors.New("boom")
	op := New(KindQuery, func(ctx context.Context) (*Outcome, error) {
		return nil, boom
	})
	op.Start(context.Background())
	if st := op.Wait(time.Second); st != Failed {
		t.Fatalf("state = %v, want Failed", st)
	}
	if _, err := op.Take(); !errors.Is(err, boom) {
		t.Errorf("Take err = %v, want boom", err)
	}
}

func TestStartTwice(t *testing.T) {
	op := New(KindCount, func(ctx context.Context) (*Outcome, error) {
		return nil, nil
	})
	if !op.Start(context.Background()) {
		t.Fatal("first Start returned false")
	}
	if op.Start(context.Background()) {
		t.Error("second Start should return false")
	}
}

func TestCancelIdle(t *testing.T) {
	op := New(KindPage, func(ctx context.Context) (*Outcome, error) {
		t.Error("worker must not run after idle cancel")
		return nil, nil
	})
	op.Cancel()
	if op.Poll() != Cancelled {
		t.Fatalf("state = %v, want Cancelled", op.Poll())
	}
	if op.Start(context.Background()) {
		t.Error("Start after cancel should return false")
	}
	// Wait must not block on a cancelled idle op.
	if st := op.Wait(time.Second); st != Cancelled {
		t.Errorf("Wait = %v, want Cancelled", st)
	}
}

func TestCancelRunning(t *testing.T) {
	started := make(chan struct{})
	op := New(KindPage, func(ctx context.Context) (*Outcome, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	op.Start(context.Background())
	<-started
	op.Cancel()
	if st := op.Wait(time.Second); st != Cancelled {
		t.Fatalf("state = %v, want Cancelled", st)
	}
	if !op.Cancelled() {
		t.Error("Cancelled() = false")
	}
	out, err := op.Take()
	if out != nil || err != nil {
		t.Errorf("cancelled op must yield nothing, got %+v, %v", out, err)
	}
}

func TestCancelledResultDiscardedAndConnClosed(t *testing.T) {
	conn := &closeConn{}
	started := make(chan struct{})
	release := make(chan struct{})
	op := New(KindConnect, func(ctx context.Context) (*Outcome, error) {
		close(started)
		<-release
		// The backend could not be interrupted and produced a connection
		// anyway; the runner must close it.
		return &Outcome{Conn: conn}, nil
	})
	op.Start(context.Background())
	<-started
	op.Cancel()
	close(release)
	if st := op.Wait(time.Second); st != Cancelled {
		t.Fatalf("state = %v, want Cancelled", st)
	}
	if !conn.closed {
		t.Error("orphaned connection was not closed")
	}
}

func TestWaitTimeout(t *testing.T) {
	release := make(chan struct{})
	op := New(KindPage, func(ctx context.Context) (*Outcome, error) {
		<-release
		return nil, nil
	})
	op.Start(context.Background())
	if st := op.Wait(10 * time.Millisecond); st != Running {
		t.Errorf("state = %v, want Running after timeout", st)
	}
	close(release)
	if st := op.Wait(-1); st != Done {
		t.Errorf("state = %v, want Done", st)
	}
}

func TestJoin(t *testing.T) {
	started := make(chan struct{})
	op := New(KindPage, func(ctx context.Context) (*Outcome, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	op.Start(context.Background())
	<-started
	Join(op)
	if op.Poll() != Cancelled {
		t.Errorf("state = %v, want Cancelled after Join", op.Poll())
	}
	Join(nil) // must not panic
}

// closeConn records Close calls; all other methods are unused by the runner.
type closeConn struct {
	driver.Conn
	closed bool
}

func (c *closeConn) Close() error {
	c.closed = true
	return nil
}
