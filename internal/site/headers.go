package site

import (
	"strconv"

	"github.com/edwig/marlin/core/domain"
	"github.com/edwig/marlin/internal/faults"
)

// applyAutoHeaders stamps the configured automatic response headers onto
// resp: frame options, HSTS, content-type sniffing, XSS protection and
// CORS, each toggled per site via domain.AutoHeaders rather than a
// single hardcoded policy.
func applyAutoHeaders(s *domain.Site, resp *domain.Response) {
	h := s.AutoHeaders

	if h.XFrameOptions != "" {
		resp.SetHeader("X-Frame-Options", h.XFrameOptions)
	}
	if h.HSTSMaxAgeSeconds > 0 {
		v := "max-age=" + strconv.Itoa(h.HSTSMaxAgeSeconds)
		if h.HSTSIncludeSubdomains {
			v += "; includeSubDomains"
		}
		resp.SetHeader("Strict-Transport-Security", v)
	}
	if h.NoSniff {
		resp.SetHeader("X-Content-Type-Options", "nosniff")
	}
	if h.XSSProtection {
		v := "1"
		if h.XSSProtectionBlock {
			v += "; mode=block"
		}
		resp.SetHeader("X-XSS-Protection", v)
	}
	if h.CacheBlock {
		resp.SetHeader("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0, post-check=0, pre-check=0")
		resp.SetHeader("Pragma", "no-cache")
		resp.SetHeader("Expires", "0")
	}
	if h.CORSAllowOrigin != "" {
		resp.SetHeader("Access-Control-Allow-Origin", h.CORSAllowOrigin)
	}
}

// errorBody renders a site's client/server error page template, or the
// fixed fallback template, filled with the error taxonomy's reason text
// for status.
func errorBody(s *domain.Site, status int, reason string) []byte {
	return faults.RenderErrorBody(s, status, reason)
}
