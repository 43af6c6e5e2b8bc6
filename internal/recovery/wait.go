// Package recovery implements the password-recovery flow: a bounded wait for
// the identity service's recovery event, then a policy-checked password
// update.
package recovery

import (
	"context"
	"time"

	"github.com/barangaylink/barangaylink/internal/identity"
)

// Outcome is the discriminated result of the bounded wait.
type Outcome int

const (
	// Recovered means the recovery event arrived in time.
	Recovered Outcome = iota
	// TimedOut means the link never produced the event: expired or garbled.
	TimedOut
)

// Await blocks until a PASSWORD_RECOVERY event arrives, the timeout lapses,
// or ctx is cancelled. Non-recovery events are ignored. On Recovered the
// event's session is returned.
func Await(ctx context.Context, events <-chan identity.Event, timeout time.Duration) (Outcome, *identity.Session, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return TimedOut, nil, ctx.Err()
		case <-timer.C:
			return TimedOut, nil, nil
		case event, ok := <-events:
			if !ok {
				return TimedOut, nil, nil
			}
			if event.Type == identity.EventPasswordRecovery && event.Session != nil {
				return Recovered, event.Session, nil
			}
		}
	}
}
