package pipeline

import "errors"

// ErrAlreadyRunning is returned when Run is invoked while a run is active.
// The orchestrator is not reentrant; the external scheduler must enforce
// at-most-one active run per item set.
var ErrAlreadyRunning = errors.New("a run is already in progress")

// ErrOutOfMemory marks a terminal resource failure. The run aborts and must
// not be retried.
var ErrOutOfMemory = errors.New("out of memory during processing")
