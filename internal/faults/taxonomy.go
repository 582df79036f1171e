// Package faults is the Error Taxonomy & SOAP Fault Emitter (C10): the
// fixed reason-text table, the two error-body templates, and the set of
// respond_* emitters every error path in the pipeline funnels through.
package faults

import "fmt"

// Kind classifies an error for logging and propagation policy. None of
// these collapse into one another — a Security failure is never logged
// as a ProtocolHTTP failure, for instance, even though both might
// produce a 4xx response.
type Kind int

const (
	Transport Kind = iota
	ProtocolHTTP
	ProtocolSOAP
	ProtocolRM
	Security
	Configuration
	UserCrash
	Shutdown
)

func (k Kind) String() string {
	switch k {
	case Transport:
		return "Transport"
	case ProtocolHTTP:
		return "ProtocolHTTP"
	case ProtocolSOAP:
		return "ProtocolSOAP"
	case ProtocolRM:
		return "ProtocolRM"
	case Security:
		return "Security"
	case Configuration:
		return "Configuration"
	case UserCrash:
		return "UserCrash"
	case Shutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

// Error wraps an underlying cause with its taxonomy Kind, for logging
// without collapsing distinct failure categories into one string.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %v", e.Kind, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Wrap tags err with kind, for emitters that want to log a Kind
// alongside the underlying error without the caller pre-building an
// *Error.
func Wrap(kind Kind, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// reasonText is the fixed, abridged reason-text table. Status codes
// outside the table fall back to the reason string the caller passes in
// (see reasonOrText), not to this table.
var reasonText = map[int]string{
	200: "OK",
	204: "No info",
	301: "Moved",
	304: "Not modified since",
	400: "Invalid syntax",
	401: "Access denied",
	403: "Request forbidden",
	404: "URL/Object not found",
	405: "Method is not allowed",
	413: "Request body too large",
	414: "URI too long",
	415: "Unsupported media type",
	500: "Internal server error",
	501: "Not supported",
	503: "Temporarily overloaded",
}

// ReasonText returns the fixed reason text for status, or "" if status
// isn't in the table.
func ReasonText(status int) string {
	return reasonText[status]
}
