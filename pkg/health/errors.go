package health

import "errors"

// ErrCheckTimeout marks a check that failed because the shared evaluation
// timeout expired, as opposed to the dependency itself reporting a fault.
var ErrCheckTimeout = errors.New("health: check timeout")
