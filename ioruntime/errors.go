package ioruntime

import "github.com/corenetio/corenet/errs"

// errDeadline and errAborted re-export the shared sentinel kinds so
// that reactor-internal code reads naturally while callers outside
// this package still branch on errs.ErrDeadlineExceeded / errs.ErrAborted.
var (
	errDeadline = errs.ErrDeadlineExceeded
	errAborted  = errs.ErrAborted
)
