package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a domain failure. Services only ever produce kinds;
// user-facing messages live in the HTTP layer.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindAlreadyExists
	KindAlreadyApproved
	KindInvalidCredentials
	KindAccountInactive
	KindAccountPendingApproval
	KindCurrentPasswordIncorrect
	KindRoleNotFound
	KindEmailAlreadyExists
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindAlreadyExists:
		return "already_exists"
	case KindAlreadyApproved:
		return "already_approved"
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindAccountInactive:
		return "account_inactive"
	case KindAccountPendingApproval:
		return "account_pending_approval"
	case KindCurrentPasswordIncorrect:
		return "current_password_incorrect"
	case KindRoleNotFound:
		return "role_not_found"
	case KindEmailAlreadyExists:
		return "email_already_exists"
	case KindForbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// DomainError is an expected, recoverable failure.
type DomainError struct {
	Kind Kind
	Err  error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind.String()
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// E builds a DomainError of the given kind.
func E(kind Kind) *DomainError {
	return &DomainError{Kind: kind}
}

// Wrap builds a DomainError of the given kind around err.
func Wrap(kind Kind, err error) *DomainError {
	return &DomainError{Kind: kind, Err: err}
}

// KindOf extracts the kind from err, or KindUnknown for unexpected errors
// (persistence failures, connectivity) that should surface as 5xx.
func KindOf(err error) Kind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
