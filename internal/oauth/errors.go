package oauth

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures of the login flow and the token lifecycle.
type ErrorKind int

const (
	// KindUnknown is never produced by this package; it is the zero value.
	KindUnknown ErrorKind = iota
	// KindPortInUse means the callback listener could not bind its fixed port.
	KindPortInUse
	// KindTimedOut means no callback arrived before the deadline.
	KindTimedOut
	// KindCancelled means the caller cancelled the flow.
	KindCancelled
	// KindUserDenied means the identity provider redirected back with an error.
	KindUserDenied
	// KindInvalidState means the callback state did not match the request.
	KindInvalidState
	// KindExchangeFailed means the token endpoint rejected the code exchange.
	KindExchangeFailed
	// KindRefreshFailed means the refresh token grant was rejected.
	KindRefreshFailed
	// KindStoreUnavailable means the token record could not be written.
	KindStoreUnavailable
)

// String returns the stable name of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindPortInUse:
		return "PortInUse"
	case KindTimedOut:
		return "TimedOut"
	case KindCancelled:
		return "Cancelled"
	case KindUserDenied:
		return "UserDenied"
	case KindInvalidState:
		return "InvalidState"
	case KindExchangeFailed:
		return "ExchangeFailed"
	case KindRefreshFailed:
		return "RefreshFailed"
	case KindStoreUnavailable:
		return "StoreUnavailable"
	default:
		return "Unknown"
	}
}

// Sentinel errors for use with errors.Is. An *AuthError matches the
// sentinel of the same kind.
var (
	ErrPortInUse        = &AuthError{Kind: KindPortInUse}
	ErrTimedOut         = &AuthError{Kind: KindTimedOut}
	ErrCancelled        = &AuthError{Kind: KindCancelled}
	ErrUserDenied       = &AuthError{Kind: KindUserDenied}
	ErrInvalidState     = &AuthError{Kind: KindInvalidState}
	ErrExchangeFailed   = &AuthError{Kind: KindExchangeFailed}
	ErrRefreshFailed    = &AuthError{Kind: KindRefreshFailed}
	ErrStoreUnavailable = &AuthError{Kind: KindStoreUnavailable}
)

// AuthError is returned by every failing operation of this package.
// Stage names the step that failed (listener, browser, callback, exchange,
// refresh, store) so messages tell the user where things went wrong.
type AuthError struct {
	Kind  ErrorKind
	Stage string
	Err   error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	msg := e.Kind.String()
	if e.Stage != "" {
		msg = e.Stage + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *AuthError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *AuthError of the same kind.
func (e *AuthError) Is(target error) bool {
	var t *AuthError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func newAuthError(kind ErrorKind, stage string, err error) *AuthError {
	return &AuthError{Kind: kind, Stage: stage, Err: err}
}

func newAuthErrorf(kind ErrorKind, stage, format string, args ...interface{}) *AuthError {
	return &AuthError{Kind: kind, Stage: stage, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first *AuthError in err's chain.
func KindOf(err error) ErrorKind {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}
