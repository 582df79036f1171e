// Package ports defines the narrow seams Marlin's core expects from its
// host process, without pulling a transport or schema library into the
// core packages themselves.
package ports

import (
	"net/http"

	"github.com/edwig/marlin/core/domain"
)

// MessageParser turns inbound transport bytes into a domain.Request.
// Nothing in this module implements or calls it: the reactor builds its
// domain.Request directly from net/http's parsed request.
type MessageParser interface {
	Parse(r *http.Request) (*domain.Request, error)
}

// ResponseSink writes a finished domain.Response back to the transport.
// A single successful Write extinguishes the Response (Response.Answer
// has already been called by the time Write runs).
type ResponseSink interface {
	Write(w http.ResponseWriter, resp *domain.Response) error
}

// SOAPCodec decodes enough of a SOAP 1.1 or 1.2 envelope to drive the RM and
// Security state machines: version, action, and the RM/WSSE header
// blocks, as raw XML fragments. It is deliberately not a general SOAP
// stack — schema validation and body-to-struct binding stay out of
// scope and are left to the application handler.
type SOAPCodec interface {
	// Decode parses body and reports whether it is a well-formed SOAP 1.1
	// or 1.2 envelope (Envelope.Version says which). A non-SOAP or malformed body returns ok == false with no
	// error — the caller distinguishes "not SOAP" from a decode bug.
	Decode(body []byte) (env Envelope, ok bool, err error)
}

// Envelope is the sliver of a SOAP envelope Marlin's core cares about.
type Envelope struct {
	Version      string // "1.1" | "1.2"
	Action       string // WS-Addressing wsa:Action, if present
	RMPresent    bool   // true if a wsrm-namespaced header item was seen, even an empty one
	RMHeader     []byte // raw <wsrm:Sequence>/<wsrm:CreateSequence>/... inner content, or nil
	SecurityHeader []byte // raw <wsse:Security> block, or nil
	Body         []byte // raw <soap:Body> contents
}
