package daemon

import "github.com/kdalton/escrowd"

// newStartupError wraps a bind/listen/accept failure as a client-visible
// escrow.Error tagged ErrCodeStartup, so cmd/escrowd and any in-process
// caller of New/Serve see the same error shape the client package returns
// for its own failures.
func newStartupError(op string, err error) error {
	wrapped := escrow.WrapError(op, err)
	wrapped.Code = escrow.ErrCodeStartup
	return wrapped
}
