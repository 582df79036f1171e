package domain

import "time"

// SameSite mirrors http.SameSite but keeps the domain package free of a
// net/http dependency on its exported API surface where it isn't needed.
type SameSite int

const (
	SameSiteDefault SameSite = iota
	SameSiteNone
	SameSiteLax
	SameSiteStrict
)

// Cookie is an outbound cookie assembled by a site's response pipeline.
// Unlike http.Cookie, every attribute is explicit so the pipeline can
// apply site-wide defaults (Site.CookieSecure, Site.CookieSameSite) to
// cookies an application handler sets without naming them.
type Cookie struct {
	Name     string
	Value    string
	Path     string
	Domain   string
	MaxAge   int // seconds; 0 means "session cookie", negative means delete
	Expires  time.Time
	Secure   bool
	HTTPOnly bool
	SameSite SameSite
}
