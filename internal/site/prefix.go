package site

import (
	"strconv"
	"strings"
)

// PrefixType selects how the host portion of a registration prefix is
// written, mirroring the original's HTTP.SYS URL reservation styles.
type PrefixType int

const (
	PrefixStrong  PrefixType = iota // "+" - binds all addresses on the port
	PrefixWeak                      // "*" - binds all addresses, weak wildcard
	PrefixNamed                     // short hostname
	PrefixAddress                   // literal host/IP the caller supplies
	PrefixFQN                       // fully qualified hostname
)

// CreateURLPrefix composes the absolute URL prefix used both for
// registration keys and for Site.Prefix. host is consulted only for
// PrefixNamed/PrefixAddress/PrefixFQN; PrefixStrong/PrefixWeak ignore it
// in favor of the HTTP.SYS wildcard character.
func CreateURLPrefix(kind PrefixType, secure bool, host string, port int, path string) string {
	var b strings.Builder
	if secure {
		b.WriteString("https://")
	} else {
		b.WriteString("http://")
	}

	switch kind {
	case PrefixStrong:
		b.WriteString("+")
	case PrefixWeak:
		b.WriteString("*")
	case PrefixNamed, PrefixAddress, PrefixFQN:
		b.WriteString(host)
	default:
		return ""
	}

	b.WriteString(":")
	b.WriteString(strconv.Itoa(port))

	if path != "" {
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		if !strings.HasSuffix(path, "/") {
			path += "/"
		}
	}
	b.WriteString(path)
	return b.String()
}
