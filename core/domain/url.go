package domain

import (
	"net/url"
	"strings"
)

// CrackedURL is the parsed form of a request's target URL, split the way
// the reactor needs for routing and cache checks.
type CrackedURL struct {
	Scheme   string
	Secure   bool
	Host     string
	Port     int
	AbsPath  string
	Query    url.Values
	Fragment string
}

// lowerPath normalizes a path for case-insensitive site and session
// lookups. Windows URL matching in the original is case-insensitive on
// the path segment; callers relying on case-sensitive semantics should
// not use this helper.
func lowerPath(path string) string {
	return strings.ToLower(path)
}

// CrackURL splits a raw URL into its components. rawPath must already be
// absolute (no scheme/host), which is what net/http hands request handlers.
func CrackURL(scheme, host string, port int, rawPath string) CrackedURL {
	path := rawPath
	fragment := ""
	if idx := strings.IndexByte(path, '#'); idx >= 0 {
		fragment = path[idx+1:]
		path = path[:idx]
	}
	query := url.Values{}
	if idx := strings.IndexByte(path, '?'); idx >= 0 {
		if q, err := url.ParseQuery(path[idx+1:]); err == nil {
			query = q
		}
		path = path[:idx]
	}
	return CrackedURL{
		Scheme:   scheme,
		Secure:   scheme == "https",
		Host:     host,
		Port:     port,
		AbsPath:  path,
		Query:    query,
		Fragment: fragment,
	}
}
