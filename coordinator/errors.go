package coordinator

import "errors"

// ErrLeaseNotHeld names the case of a lease renewal for a message the caller
// does not currently hold the lease on. ProcessWorkBatch does not return it:
// such a renewal simply updates no row and the batch carries on (spec.md
// §4.3 step 8). Nothing in this package returns this sentinel.
var ErrLeaseNotHeld = errors.New("coordinator: lease not held")

// ErrUnknownMessage names the case of a completion or failure for a message
// id the Work Coordinator has no record of. Like ErrLeaseNotHeld, it is not
// returned by ProcessWorkBatch: such a completion or failure is skipped
// without error, and nothing in this package returns this sentinel.
var ErrUnknownMessage = errors.New("coordinator: unknown message id")
