// Package locator answers the UI shell's "where is the backend" question
// without ever handing out an address that is not yet serving.
package locator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/loykin/tether/internal/address"
	"github.com/loykin/tether/internal/supervisor"
)

// DefaultWait bounds how long ResolveAddress waits while the backend is starting.
const DefaultWait = 2 * time.Second

// ErrStillStarting means the backend was still starting when the wait bound
// ran out. Retrying later may succeed.
var ErrStillStarting = errors.New("backend still starting")

// UnavailableError means the backend is not serving and will not be without
// intervention. Reason is the supervisor's recorded failure.
type UnavailableError struct {
	State  supervisor.State
	Reason error
}

func (e *UnavailableError) Error() string {
	if e.Reason == nil {
		return fmt.Sprintf("backend unavailable (%s)", e.State)
	}
	return fmt.Sprintf("backend unavailable (%s): %v", e.State, e.Reason)
}

func (e *UnavailableError) Unwrap() error { return e.Reason }

// Source is the read-only view of a supervisor the locator needs.
type Source interface {
	Status() supervisor.Status
	Wait(ctx context.Context) (supervisor.Status, error)
	Address() address.Address
}

// Locator resolves the backend address on behalf of the UI. It only reads
// supervisor state and is safe for concurrent use.
type Locator struct {
	src  Source
	wait time.Duration
}

// New returns a locator over src. wait <= 0 uses DefaultWait.
func New(src Source, wait time.Duration) *Locator {
	if wait <= 0 {
		wait = DefaultWait
	}
	return &Locator{src: src, wait: wait}
}

// ResolveAddress returns the backend address once it is serving. While the
// backend is starting it waits up to the locator's bound (or ctx's deadline,
// whichever is sooner) and returns ErrStillStarting if it is still starting.
// NotStarted also goes through Wait, which returns at once unless a spawn is
// already underway.
func (l *Locator) ResolveAddress(ctx context.Context) (address.Address, error) {
	st := l.src.Status()
	if st.State == supervisor.Starting || st.State == supervisor.NotStarted {
		wctx, cancel := context.WithTimeout(ctx, l.wait)
		defer cancel()
		var err error
		st, err = l.src.Wait(wctx)
		if err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return address.Address{}, cerr
			}
			return address.Address{}, ErrStillStarting
		}
	}
	switch st.State {
	case supervisor.Ready:
		return l.src.Address(), nil
	case supervisor.Starting:
		return address.Address{}, ErrStillStarting
	case supervisor.NotStarted:
		return address.Address{}, &UnavailableError{State: st.State, Reason: supervisor.ErrNotStarted}
	default:
		return address.Address{}, &UnavailableError{State: st.State, Reason: st.Err}
	}
}

// BackendURL is ResolveAddress rendered as scheme://host:port.
func (l *Locator) BackendURL(ctx context.Context) (string, error) {
	a, err := l.ResolveAddress(ctx)
	if err != nil {
		return "", err
	}
	return a.String(), nil
}
