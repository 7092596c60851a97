package broker

import "errors"

var (
	errNonPositiveAmount  = errors.New("broker: quote amount must be positive")
	errNoOpenOrder        = errors.New("broker: trade has no open order to close")
	errUnsupportedInPaper = errors.New("broker: not supported in paper mode")
)
