package ledger

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrUnsupported reports that the contract does not declare a function.
	ErrUnsupported = errors.New("ledger: function not declared by contract")
	// ErrEventMissing reports that a transaction receipt lacks the
	// confirmation event the caller needs to read an assigned id.
	ErrEventMissing = errors.New("ledger: confirmation event missing from receipt")
	// ErrArityMismatch marks a call whose argument count does not match the
	// declared function. It never leaves the payments package.
	ErrArityMismatch = errors.New("ledger: argument count mismatch")
)

// CallError wraps a failed contract call or transaction.
type CallError struct {
	Method   string
	Reason   string
	Reverted bool
	Err      error
}

func (e *CallError) Error() string {
	if e.Reverted {
		return fmt.Sprintf("%s reverted: %s", e.Method, e.Reason)
	}
	return fmt.Sprintf("%s: %v", e.Method, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// NewCallError classifies a raw client error.
func NewCallError(method string, err error) *CallError {
	msg := err.Error()
	reverted := strings.Contains(strings.ToLower(msg), "revert")
	ce := &CallError{Method: method, Reverted: reverted, Err: err}
	if reverted {
		ce.Reason = extractRevert(msg)
	}
	return ce
}

var revertPattern = regexp.MustCompile(`(?i)(?:VM Exception.*revert|execution reverted:?)(.*)`)

func extractRevert(msg string) string {
	if m := revertPattern.FindStringSubmatch(msg); m != nil {
		if reason := strings.TrimSpace(m[1]); reason != "" {
			return reason
		}
	}
	return msg
}

// RevertReason returns the contract's revert reason when one can be found,
// else the error text.
func RevertReason(err error) string {
	if err == nil {
		return ""
	}
	var ce *CallError
	if errors.As(err, &ce) && ce.Reason != "" {
		return ce.Reason
	}
	return extractRevert(err.Error())
}

var arityMarkers = []string{
	"invalid number of parameters",
	"wrong number of arguments",
	"argument count mismatch",
	"parameters",
}

// IsArityMismatch reports whether err means the call was made with the
// wrong parameter count.
func IsArityMismatch(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrArityMismatch) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range arityMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
