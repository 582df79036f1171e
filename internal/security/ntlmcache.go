package security

import (
	"net/http"
	"time"

	"github.com/gorilla/sessions"
)

// ntlmCookieName is the cookie the NTLM handshake continuation state
// round-trips in, when a site enables Auth.NTLMCache. NTLM's challenge/
// response handshake spans two requests on what is ideally the same TCP
// connection; behind a load balancer that isn't guaranteed, so the
// partial state is carried in a short-lived signed-and-encrypted cookie
// rather than assumed to survive on the same backend.
const ntlmCookieName = "marlin_ntlm"

// NTLMCache persists in-flight NTLM handshake state across the two
// requests of a challenge/response exchange, via a gorilla/sessions
// CookieStore (authenticated + encrypted).
type NTLMCache struct {
	store *sessions.CookieStore
}

// NewNTLMCache builds a cache using keyPairs the same way
// sessions.NewCookieStore does (alternating hash/block keys).
func NewNTLMCache(keyPairs ...[]byte) *NTLMCache {
	store := sessions.NewCookieStore(keyPairs...)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   30, // seconds; a stalled handshake this old is abandoned
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	}
	return &NTLMCache{store: store}
}

// Save stashes the negotiated challenge blob for req's connection.
func (c *NTLMCache) Save(w http.ResponseWriter, req *http.Request, challenge []byte) error {
	session, err := c.store.Get(req, ntlmCookieName)
	if err != nil {
		session, err = c.store.New(req, ntlmCookieName)
		if err != nil {
			return err
		}
	}
	session.Values["challenge"] = challenge
	session.Values["issued"] = time.Now().Unix()
	return session.Save(req, w)
}

// Load retrieves a previously saved challenge blob, if any.
func (c *NTLMCache) Load(req *http.Request) ([]byte, bool) {
	session, err := c.store.Get(req, ntlmCookieName)
	if err != nil {
		return nil, false
	}
	challenge, ok := session.Values["challenge"].([]byte)
	if !ok {
		return nil, false
	}
	return challenge, true
}

// Clear ends the handshake, removing any cached challenge.
func (c *NTLMCache) Clear(w http.ResponseWriter, req *http.Request) error {
	session, err := c.store.Get(req, ntlmCookieName)
	if err != nil {
		return nil
	}
	session.Options.MaxAge = -1
	return session.Save(req, w)
}
