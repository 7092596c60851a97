package reconcile

import "errors"

var (
	errNilBalance       = errors.New("reconcile: balance event missing Balance payload")
	errUnknownEventKind = errors.New("reconcile: unknown event kind")
	errNoMatchingOrder  = errors.New("reconcile: no open or close order matches event uuid")
)
