package domain

import "strings"

// Verb is an HTTP method recognized by the reactor.
type Verb string

const (
	OPTIONS  Verb = "OPTIONS"
	GET      Verb = "GET"
	HEAD     Verb = "HEAD"
	POST     Verb = "POST"
	PUT      Verb = "PUT"
	DELETE   Verb = "DELETE"
	TRACE    Verb = "TRACE"
	CONNECT  Verb = "CONNECT"
	MOVE     Verb = "MOVE"
	COPY     Verb = "COPY"
	PROPFIND Verb = "PROPFIND"
	PROPPATCH Verb = "PROPPATCH"
	MKCOL    Verb = "MKCOL"
	LOCK     Verb = "LOCK"
	UNLOCK   Verb = "UNLOCK"
	SEARCH   Verb = "SEARCH"
	MERGE    Verb = "MERGE"
	PATCH    Verb = "PATCH"

	// VerbUnknown is returned by ParseVerb when the method token matches
	// none of the known verbs and isn't a case-insensitive MERGE/PATCH.
	VerbUnknown Verb = ""
)

var knownVerbs = map[string]Verb{
	"OPTIONS":   OPTIONS,
	"GET":       GET,
	"HEAD":      HEAD,
	"POST":      POST,
	"PUT":       PUT,
	"DELETE":    DELETE,
	"TRACE":     TRACE,
	"CONNECT":   CONNECT,
	"MOVE":      MOVE,
	"COPY":      COPY,
	"PROPFIND":  PROPFIND,
	"PROPPATCH": PROPPATCH,
	"MKCOL":     MKCOL,
	"LOCK":      LOCK,
	"UNLOCK":    UNLOCK,
	"SEARCH":    SEARCH,
	"MERGE":     MERGE,
	"PATCH":     PATCH,
}

// ParseVerb maps a raw method token to the verb enum. Unknown tokens are
// resolved by a case-insensitive match against MERGE/PATCH; anything else
// yields VerbUnknown, which the reactor turns into a 501.
func ParseVerb(method string) Verb {
	if v, ok := knownVerbs[method]; ok {
		return v
	}
	upper := strings.ToUpper(method)
	switch upper {
	case "MERGE":
		return MERGE
	case "PATCH":
		return PATCH
	}
	return VerbUnknown
}

// TunnelableVerbs is the set of verbs an X-HTTP-Method override may
// rewrite a POST into ("verb tunneling").
var TunnelableVerbs = map[Verb]bool{
	PUT:    true,
	DELETE: true,
	MERGE:  true,
	PATCH:  true,
}
