package faults

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edwig/marlin/core/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(nopWriter{}, nil))
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestRenderErrorBody_UsesSiteCustomTemplateForClientStatus(t *testing.T) {
	s := &domain.Site{ClientErrorPage: func(status int, reason string) []byte {
		return []byte("custom-client")
	}}
	assert.Equal(t, []byte("custom-client"), RenderErrorBody(s, 404, "not found"))
}

func TestRenderErrorBody_UsesSiteCustomTemplateForServerStatus(t *testing.T) {
	s := &domain.Site{ServerErrorPage: func(status int, reason string) []byte {
		return []byte("custom-server")
	}}
	assert.Equal(t, []byte("custom-server"), RenderErrorBody(s, 500, "boom"))
}

func TestRenderErrorBody_FallsBackToFixedTemplate(t *testing.T) {
	body := RenderErrorBody(nil, 403, "Request forbidden")
	assert.Contains(t, string(body), "Client error: 403")
	assert.Contains(t, string(body), "Request forbidden")

	body = RenderErrorBody(nil, 503, "Temporarily overloaded")
	assert.Contains(t, string(body), "Server error: 503")
}

func TestEmitter_RespondClientError_SetsReasonAndBody(t *testing.T) {
	e := NewEmitter(discardLogger())
	resp := domain.NewResponse()
	req := &domain.Request{ID: "req-1"}

	e.RespondClientError(nil, req, resp, 404, "ignored, table wins", nil)

	assert.Equal(t, 404, resp.Status)
	assert.Equal(t, "URL/Object not found", resp.Reason)
	assert.Contains(t, string(resp.Body), "404")
}

func TestEmitter_RespondClientError_AttachesCookie(t *testing.T) {
	e := NewEmitter(discardLogger())
	resp := domain.NewResponse()
	req := &domain.Request{ID: "req-2"}
	cookie := &domain.Cookie{Name: "sid", Value: "abc"}

	e.RespondClientError(nil, req, resp, 400, "bad", cookie)

	require.Len(t, resp.Cookies, 1)
	assert.Equal(t, "sid", resp.Cookies[0].Name)
}

func TestEmitter_DoubleSendIsNoOpAndLogged(t *testing.T) {
	e := NewEmitter(discardLogger())
	resp := domain.NewResponse()
	req := &domain.Request{ID: "req-3"}

	e.RespondOK(req, resp, []byte("first"))
	e.RespondServerError(nil, req, resp, 500, "second attempt", nil)

	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, []byte("first"), resp.Body)
}

func TestEmitter_RespondSOAPFault_Always500WithXMLContentType(t *testing.T) {
	e := NewEmitter(discardLogger())
	resp := domain.NewResponse()
	req := &domain.Request{ID: "req-4"}

	e.RespondSOAPFault(req, resp, SOAPFault{Code: "Client.NotRM", String: "out of sequence"})

	assert.Equal(t, 500, resp.Status)
	assert.Equal(t, "text/xml; charset=utf-8", resp.Headers.Get("Content-Type"))
	assert.Contains(t, string(resp.Body), "Client.NotRM")
}

type recordingDestroyer struct{ destroyed []domain.SessionAddress }

func (d *recordingDestroyer) Destroy(addr domain.SessionAddress) {
	d.destroyed = append(d.destroyed, addr)
}

func TestEmitter_RespondRMFault_DestroysSessionBeforeResponding(t *testing.T) {
	e := NewEmitter(discardLogger())
	resp := domain.NewResponse()
	req := &domain.Request{ID: "req-5"}
	destroyer := &recordingDestroyer{}
	addr := domain.SessionAddress{Path: "/rm"}

	e.RespondRMFault(destroyer, addr, req, resp, SOAPFault{Code: "Client.NotRM"})

	require.Len(t, destroyer.destroyed, 1)
	assert.Equal(t, addr, destroyer.destroyed[0])
	assert.Equal(t, 500, resp.Status)
}

func TestEmitter_RespondRMFault_NilDestroyerIsSafe(t *testing.T) {
	e := NewEmitter(discardLogger())
	resp := domain.NewResponse()
	req := &domain.Request{ID: "req-6"}

	assert.NotPanics(t, func() {
		e.RespondRMFault(nil, domain.SessionAddress{}, req, resp, SOAPFault{Code: "Client.NotRM"})
	})
}
