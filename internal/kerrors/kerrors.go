// FILE: internal/kerrors/kerrors.go
// Package kerrors names the abstract error kinds the kernel's recovery
// policy switches on, per spec §7. The teacher's code uses plain
// fmt.Errorf/errors.New throughout; these wrap the same underlying errors
// with a kind so the Supervisor and Reconciler can errors.As() a decision
// instead of string-matching messages.
package kerrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the recovery policy in spec §7.
type Kind int

const (
	// KindConfig: malformed settings/symbol pair; fatal at boot.
	KindConfig Kind = iota
	// KindNetwork: transient HTTP/WS; retried with backoff at the Supervisor.
	KindNetwork
	// KindProtocol: unexpected JSON shape from a capability; logged and
	// surfaced, offending event dropped.
	KindProtocol
	// KindState: invariant violation inside the ledger; fatal, terminate
	// with a diagnostic snapshot.
	KindState
	// KindData: invalid OHLC row (non-monotone, NaN); drop the row, continue.
	KindData
	// KindCapacity: execution queue overflow; forces reconnect.
	KindCapacity
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "ConfigError"
	case KindNetwork:
		return "NetworkError"
	case KindProtocol:
		return "ProtocolError"
	case KindState:
		return "StateError"
	case KindData:
		return "DataError"
	case KindCapacity:
		return "CapacityError"
	default:
		return "UnknownError"
	}
}

// KernelError is a typed error carrying a Kind and the underlying cause.
type KernelError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *KernelError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *KernelError) Unwrap() error { return e.Err }

func New(kind Kind, op string, err error) *KernelError {
	return &KernelError{Kind: kind, Op: op, Err: err}
}

func Config(op string, err error) *KernelError   { return New(KindConfig, op, err) }
func Network(op string, err error) *KernelError  { return New(KindNetwork, op, err) }
func Protocol(op string, err error) *KernelError { return New(KindProtocol, op, err) }
func State(op string, err error) *KernelError    { return New(KindState, op, err) }
func Data(op string, err error) *KernelError     { return New(KindData, op, err) }
func Capacity(op string, err error) *KernelError { return New(KindCapacity, op, err) }

// Retryable reports whether the Supervisor should retry-with-backoff rather
// than treat the error as fatal.
func Retryable(err error) bool {
	var ke *KernelError
	if errors.As(err, &ke) {
		return ke.Kind == KindNetwork || ke.Kind == KindCapacity
	}
	return false
}

// Fatal reports whether the error should terminate the process with a
// diagnostic snapshot.
func Fatal(err error) bool {
	var ke *KernelError
	if errors.As(err, &ke) {
		return ke.Kind == KindConfig || ke.Kind == KindState
	}
	return false
}
