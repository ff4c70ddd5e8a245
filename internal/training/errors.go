package training

import "errors"

// ErrTrain is the failure kind for a training run: fit failures and caller
// imposed timeouts. Fatal to the run, recorded for audit, never fatal to
// the host process.
var ErrTrain = errors.New("training failed")
