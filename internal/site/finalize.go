package site

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"strings"
	"time"

	"github.com/edwig/marlin/core/domain"
)

// Finalize applies the response-wide policies every site answer goes
// through regardless of which handler produced it: cookie default
// inheritance, Cache-Control stamping and optional gzip compression. The
// reactor calls this once, after Process returns, right before handing
// the response to the sink.
func Finalize(s *domain.Site, req *domain.Request, resp *domain.Response) {
	applyCookieDefaults(s, resp)
	applyCachePolicy(s, resp)

	if s.HTTPCompression && strings.Contains(req.AcceptEncoding, "gzip") && len(resp.Body) > 0 {
		if compressed, ok := gzipCompress(resp.Body); ok {
			resp.Body = compressed
			resp.SetHeader("Content-Encoding", "gzip")
		}
	}
}

// applyCachePolicy stamps Cache-Control per the site's registered policy.
// It never overwrites a value the handler already set explicitly.
func applyCachePolicy(s *domain.Site, resp *domain.Response) {
	if resp.Headers.Get("Cache-Control") != "" {
		return
	}
	switch s.Cache.Kind {
	case domain.CacheNocache:
		resp.SetHeader("Cache-Control", "no-store, no-cache, must-revalidate")
		resp.SetHeader("Pragma", "no-cache")
	case domain.CacheUserInvalidates:
		resp.SetHeader("Cache-Control", "no-cache")
	case domain.CacheTimeToLive:
		resp.SetHeader("Cache-Control", fmt.Sprintf("max-age=%d", s.Cache.TimeToLiveSecs))
	case domain.CacheMaximum:
		resp.SetHeader("Cache-Control", "public, max-age=31536000, immutable")
	}
}

func applyCookieDefaults(s *domain.Site, resp *domain.Response) {
	for _, c := range resp.Cookies {
		if c.Path == "" {
			c.Path = "/"
		}
		if c.Domain == "" {
			// leave empty: browsers default to the request host
		}
		if !c.Secure && s.CookieSecure {
			c.Secure = true
		}
		if !c.HTTPOnly && s.CookieHTTPOnly {
			c.HTTPOnly = true
		}
		if c.SameSite == domain.SameSiteDefault {
			c.SameSite = s.CookieSameSite
		}
		if c.Expires.IsZero() && c.MaxAge == 0 && s.CookieExpiresMinutes > 0 {
			c.Expires = time.Now().Add(time.Duration(s.CookieExpiresMinutes) * time.Minute)
		}
	}
}

func gzipCompress(body []byte) ([]byte, bool) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(body); err != nil {
		return nil, false
	}
	if err := w.Close(); err != nil {
		return nil, false
	}
	return buf.Bytes(), true
}
