package faults

import (
	"fmt"
	"log/slog"

	"github.com/edwig/marlin/core/domain"
)

// clientErrorTemplate and serverErrorTemplate back the two fixed
// templates the contract calls for — 400..417 and 500..505 — each
// filled with (code, reason_text). A site overrides either via
// domain.Site.ClientErrorPage / ServerErrorPage.
func clientErrorTemplate(status int, reason string) []byte {
	return []byte(fmt.Sprintf(
		"<html>\n<head>\n<title>Client error</title>\n</head>\n"+
			"<body bgcolor=\"#00FFFF\" text=\"#FF0000\">\n"+
			"<p><font size=\"5\" face=\"Arial\"><strong>Client error: %d</strong></font></p>\n"+
			"<p><font size=\"5\" face=\"Arial\"><strong>%s</strong></font></p>\n"+
			"</body>\n</html>\n", status, reason))
}

func serverErrorTemplate(status int, reason string) []byte {
	return []byte(fmt.Sprintf(
		"<html>\n<head>\n<title>Webserver error</title>\n</head>\n"+
			"<body bgcolor=\"#00FFFF\" text=\"#FF0000\">\n"+
			"<p><font size=\"5\" face=\"Arial\"><strong>Server error: %d</strong></font></p>\n"+
			"<p><font size=\"5\" face=\"Arial\"><strong>%s</strong></font></p>\n"+
			"</body>\n</html>\n", status, reason))
}

// RenderErrorBody picks the site's custom page for status's range, or
// the fixed fallback template, and fills it with status and reason.
func RenderErrorBody(s *domain.Site, status int, reason string) []byte {
	var custom func(int, string) []byte
	if status >= 500 {
		if s != nil {
			custom = s.ServerErrorPage
		}
		if custom != nil {
			return custom(status, reason)
		}
		return serverErrorTemplate(status, reason)
	}
	if s != nil {
		custom = s.ClientErrorPage
	}
	if custom != nil {
		return custom(status, reason)
	}
	return clientErrorTemplate(status, reason)
}

// reasonOrText resolves the fixed table first, falling back to
// reason if the status isn't listed — callers usually already have a
// sensible default reason string for the status they're sending.
func reasonOrText(status int, fallback string) string {
	if r := ReasonText(status); r != "" {
		return r
	}
	return fallback
}

// Emitter is the single funnel every response in the pipeline goes
// through. Every method is a no-op (and logs) if resp is already
// answered, per the "answered flag" contract.
type Emitter struct {
	Logger *slog.Logger
}

// NewEmitter returns an Emitter; a nil logger falls back to slog.Default.
func NewEmitter(logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{Logger: logger}
}

func (e *Emitter) logDoubleSend(req *domain.Request, attempted string) {
	e.Logger.Warn("double-send suppressed", slog.String("request_id", req.ID), slog.String("attempted", attempted))
}

// RespondOK answers with 200 and body, Content-Type left to the caller.
func (e *Emitter) RespondOK(req *domain.Request, resp *domain.Response, body []byte) {
	if !resp.Answer(200, body) {
		e.logDoubleSend(req, "200 OK")
	}
}

// Respond304 answers with an empty 304 Not Modified.
func (e *Emitter) Respond304(req *domain.Request, resp *domain.Response) {
	if !resp.Answer(304, nil) {
		e.logDoubleSend(req, "304")
	}
}

// RespondClientError answers with a 4xx error page rendered from s's
// template (or the default), optionally attaching cookie.
func (e *Emitter) RespondClientError(s *domain.Site, req *domain.Request, resp *domain.Response, status int, reason string, cookie *domain.Cookie) {
	reason = reasonOrText(status, reason)
	if cookie != nil {
		resp.AddCookie(cookie)
	}
	if !resp.Answer(status, RenderErrorBody(s, status, reason)) {
		e.logDoubleSend(req, fmt.Sprintf("%d client error", status))
		return
	}
	resp.Reason = reason
}

// RespondServerError answers with a 5xx error page rendered from s's
// template (or the default), optionally attaching cookie.
func (e *Emitter) RespondServerError(s *domain.Site, req *domain.Request, resp *domain.Response, status int, reason string, cookie *domain.Cookie) {
	reason = reasonOrText(status, reason)
	if cookie != nil {
		resp.AddCookie(cookie)
	}
	if !resp.Answer(status, RenderErrorBody(s, status, reason)) {
		e.logDoubleSend(req, fmt.Sprintf("%d server error", status))
		return
	}
	resp.Reason = reason
}

// RespondSOAPFault answers 500 with a SOAP fault body. SOAP faults are
// always sent as HTTP 500 regardless of the fault's logical cause,
// matching the convention that a fault is a SOAP-level, not HTTP-level,
// error signal.
func (e *Emitter) RespondSOAPFault(req *domain.Request, resp *domain.Response, fault SOAPFault) {
	resp.SetHeader("Content-Type", "text/xml; charset=utf-8")
	if !resp.Answer(500, RenderSOAPFault(fault)) {
		e.logDoubleSend(req, "SOAP fault "+fault.Code)
	}
}

// RMSessionDestroyer is the narrow seam the RM Session Machine exposes
// so RespondRMFault can destroy a faulted session before replying.
type RMSessionDestroyer interface {
	Destroy(addr domain.SessionAddress)
}

// RespondRMFault destroys the RM session at addr, then answers with a
// SOAP fault exactly like RespondSOAPFault.
func (e *Emitter) RespondRMFault(destroyer RMSessionDestroyer, addr domain.SessionAddress, req *domain.Request, resp *domain.Response, fault SOAPFault) {
	if destroyer != nil {
		destroyer.Destroy(addr)
	}
	e.RespondSOAPFault(req, resp, fault)
}
