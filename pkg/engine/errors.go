package engine

import "fmt"

// Code classifies a rejection for API clients and logs.
type Code string

const (
	CodeValidation            Code = "VALIDATION"
	CodeInsufficientAvailable Code = "INSUFFICIENT_AVAILABLE"
	CodeInsufficientLocked    Code = "INSUFFICIENT_LOCKED"
	CodeNoLiquidity           Code = "NO_LIQUIDITY"
	CodeLedgerInconsistent    Code = "LEDGER_INCONSISTENT"
	CodeNotFound              Code = "NOT_FOUND"
	CodeUnavailable           Code = "UNAVAILABLE"
)

// Reject is a structured rejection: a machine code plus a human reason.
// Validation rejections happen before any state mutation.
type Reject struct {
	Code   Code
	Reason string
}

func (r *Reject) Error() string {
	return fmt.Sprintf("%s: %s", r.Code, r.Reason)
}

func rejectf(code Code, format string, args ...any) *Reject {
	return &Reject{Code: code, Reason: fmt.Sprintf(format, args...)}
}

// AsReject extracts a *Reject from an error chain.
func AsReject(err error) (*Reject, bool) {
	r, ok := err.(*Reject)
	return r, ok
}
