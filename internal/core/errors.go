package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure for retry and propagation decisions.
type ErrorKind string

const (
	KindNetwork        ErrorKind = "network"
	KindAuthentication ErrorKind = "authentication"
	KindValidation     ErrorKind = "validation"
	KindConfiguration  ErrorKind = "configuration"
	KindStorage        ErrorKind = "storage"
	KindAPI            ErrorKind = "api"
	KindUnknown        ErrorKind = "unknown"
)

// NetworkReason narrows a network-kind error for retry classification.
type NetworkReason string

const (
	ReasonTimeout NetworkReason = "timeout"
	ReasonDNS     NetworkReason = "dns"
	ReasonRefused NetworkReason = "refused"
	ReasonOther   NetworkReason = "other"
)

// Error is the typed error used across transport, retry and gateway layers.
type Error struct {
	Kind   ErrorKind
	Reason NetworkReason // set for network kind only
	Status int           // HTTP status for api/authentication kinds, 0 otherwise
	Msg    string
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

func NewError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func WrapError(kind ErrorKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

func NetworkError(reason NetworkReason, msg string, cause error) *Error {
	return &Error{Kind: KindNetwork, Reason: reason, Msg: msg, Cause: cause}
}

// KindOf extracts the ErrorKind from err, defaulting to unknown.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// ReasonOf extracts the network reason from err, or ReasonOther.
func ReasonOf(err error) NetworkReason {
	var e *Error
	if errors.As(err, &e) && e.Reason != "" {
		return e.Reason
	}
	return ReasonOther
}

func IsAuthentication(err error) bool { return KindOf(err) == KindAuthentication }
func IsValidation(err error) bool     { return KindOf(err) == KindValidation }
func IsNetwork(err error) bool        { return KindOf(err) == KindNetwork }
func IsStorage(err error) bool        { return KindOf(err) == KindStorage }
