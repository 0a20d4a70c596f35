package award

import (
	"errors"
	"fmt"
)

// FailureKind classifies why a keyword query produced nothing.
type FailureKind string

// Fetch failure kinds.
const (
	FailureNetwork   FailureKind = "network"
	FailureTimeout   FailureKind = "timeout"
	FailureStatus    FailureKind = "status"
	FailureMalformed FailureKind = "malformed"
)

// Sentinel errors matched with errors.Is against a FetchError.
var (
	ErrNetwork   = errors.New("search request failed")
	ErrTimeout   = errors.New("search request timed out")
	ErrStatus    = errors.New("search returned non-success status")
	ErrMalformed = errors.New("search response malformed")
)

// FetchError describes a failed keyword query.
type FetchError struct {
	Keyword string
	Kind    FailureKind
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %q (%s): %v", e.Keyword, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the sentinel for the failure kind.
func (e *FetchError) Is(target error) bool {
	switch e.Kind {
	case FailureNetwork:
		return target == ErrNetwork
	case FailureTimeout:
		return target == ErrTimeout
	case FailureStatus:
		return target == ErrStatus
	case FailureMalformed:
		return target == ErrMalformed
	}
	return false
}

// FetchResult is the outcome of one keyword query. Awards is empty when Err is set.
type FetchResult struct {
	Keyword string
	Awards  []Raw
	Err     *FetchError
}

// Failed reports whether the query failed, as opposed to matching nothing.
func (r FetchResult) Failed() bool {
	return r.Err != nil
}
