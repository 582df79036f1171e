// Package reactor implements the Reactor/Listener (C4): the
// echo.HandlerFunc mounted on the hosting Echo that turns an inbound
// *http.Request into a domain.Request, resolves its owning site,
// diverts SSE initiations to the Event Stream Registry, and otherwise
// submits the site pipeline to the worker pool and writes back its
// response.
package reactor

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf16"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/robfig/cron/v3"

	"github.com/edwig/marlin/core/domain"
	"github.com/edwig/marlin/internal/faults"
	"github.com/edwig/marlin/internal/site"
	"github.com/edwig/marlin/internal/sse"
)

// SiteFinder is the C5 seam the reactor dispatches through.
type SiteFinder interface {
	Find(port int, path string, parentHint *domain.Site) *domain.Site
}

// WorkSubmitter is the C1 seam the reactor runs pipeline work on.
type WorkSubmitter interface {
	Submit(fn func(payload any), payload any) error
}

// PipelineRunner is the C6 seam: runs the ten-step control flow for a
// resolved site and request.
type PipelineRunner interface {
	Process(s *domain.Site, req *domain.Request) site.Result
}

// Config wires a Reactor's collaborators.
type Config struct {
	Registry SiteFinder
	Pool     WorkSubmitter
	Pipeline PipelineRunner
	SSE      *sse.Registry
	Logger   *slog.Logger

	// StreamingLimit caps how much of a Content-Length-less body the
	// reactor buffers before giving up, matching the site pipeline's
	// own streaming-limit knob from §6.
	StreamingLimit int64

	// IdleThrottleAfter bounds how long a per-address throttle lock may
	// sit unused before the periodic cleaner purges it.
	IdleThrottleAfter time.Duration
}

// Reactor is the reusable HTTP entrypoint: one instance serves every
// site registered on a given Registry.
type Reactor struct {
	registry SiteFinder
	pool     WorkSubmitter
	pipeline PipelineRunner
	streams  *sse.Registry
	logger   *slog.Logger
	emitter  *faults.Emitter

	streamingLimit int64

	throttle *throttleMap
	cron     *cron.Cron
}

// New builds a Reactor from cfg, starting its periodic throttle-address
// cleaner.
func New(cfg Config) *Reactor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	idleAfter := cfg.IdleThrottleAfter
	if idleAfter <= 0 {
		idleAfter = 5 * time.Minute
	}
	limit := cfg.StreamingLimit
	if limit <= 0 {
		limit = 1 << 20 // 1 MiB floor, matching §6's Server.StreamingLimit default
	}

	r := &Reactor{
		registry:       cfg.Registry,
		pool:           cfg.Pool,
		pipeline:       cfg.Pipeline,
		streams:        cfg.SSE,
		logger:         logger,
		emitter:        faults.NewEmitter(logger),
		streamingLimit: limit,
		throttle:       newThrottleMap(idleAfter),
	}

	r.cron = cron.New()
	// Every minute is frequent enough to keep the throttle map bounded
	// without the cleaner itself becoming a hot lock.
	if _, err := r.cron.AddFunc("@every 1m", r.throttle.purgeIdle); err != nil {
		logger.Error("reactor: failed to schedule throttle cleaner", slog.String("error", err.Error()))
	} else {
		r.cron.Start()
	}

	return r
}

// Stop ends the periodic throttle cleaner. Safe to call once, at
// shutdown.
func (r *Reactor) Stop() {
	if r.cron != nil {
		ctx := r.cron.Stop()
		<-ctx.Done()
	}
}

// Handle is the echo.HandlerFunc mounted as e.Any("/*", reactor.Handle).
func (r *Reactor) Handle(c echo.Context) error {
	httpReq := c.Request()
	verb := domain.ParseVerb(httpReq.Method)
	if verb == domain.VerbUnknown {
		return c.NoContent(http.StatusNotImplemented)
	}

	req := r.buildRequest(httpReq, verb)

	port := schemePort(httpReq)
	s := r.registry.Find(port, req.URL.AbsPath, nil)
	if s == nil {
		resp := domain.NewResponse()
		r.emitter.RespondClientError(nil, req, resp, http.StatusNotFound, "", nil)
		return r.write(c, resp)
	}
	req.SetSite(s)

	if verb == domain.GET && !req.IfModifiedSince.IsZero() {
		if notModified, ok := r.checkNotModified(s, req); ok && notModified {
			resp := domain.NewResponse()
			r.emitter.Respond304(req, resp)
			return r.write(c, resp)
		}
	}

	if verb == domain.POST && s.VerbTunneling {
		applyVerbTunnel(req, httpReq.Header)
	}

	if s.IsEventStream && req.Verb == domain.GET {
		return r.handleEventStream(c, s, req)
	}

	if !req.BodyRead {
		if err := r.readBody(req, httpReq); err != nil {
			resp := domain.NewResponse()
			r.emitter.RespondClientError(s, req, resp, http.StatusRequestEntityTooLarge, "", nil)
			return r.write(c, resp)
		}
		req.BodyRead = true
	}

	resp := r.dispatch(s, req)
	site.Finalize(s, req, resp)
	return r.write(c, resp)
}

// dispatch runs the site pipeline on a pool worker, serializing per
// Session Address when the site requires throttling, and blocks the
// calling goroutine (the Echo request goroutine) until the worker
// finishes — HTTP demands a synchronous reply even though the work runs
// off-goroutine.
func (r *Reactor) dispatch(s *domain.Site, req *domain.Request) *domain.Response {
	var unlock func()
	if s.ThrottlingEnabled {
		unlock = r.throttle.lock(req.SessionAddress())
	}

	done := make(chan *domain.Response, 1)
	submitErr := r.pool.Submit(func(any) {
		defer func() {
			if unlock != nil {
				unlock()
			}
		}()
		result := r.pipeline.Process(s, req)
		done <- result.Response
		if result.Background != nil {
			if err := r.pool.Submit(func(any) { result.Background() }, nil); err != nil {
				r.logger.Error("reactor: failed to submit background continuation", slog.String("error", err.Error()))
			}
		}
	}, nil)

	if submitErr != nil {
		if unlock != nil {
			unlock()
		}
		resp := domain.NewResponse()
		r.emitter.RespondServerError(s, req, resp, http.StatusServiceUnavailable, "", nil)
		return resp
	}

	return <-done
}

// buildRequest copies the known headers net/http has already parsed and
// cracks the URL, per §4.4's "known headers" list.
func (r *Reactor) buildRequest(httpReq *http.Request, verb domain.Verb) *domain.Request {
	scheme := "http"
	if httpReq.TLS != nil {
		scheme = "https"
	}
	port := schemePortFromHost(httpReq.Host, scheme)

	req := &domain.Request{
		ID:             uuid.NewString(),
		Verb:           verb,
		RawURL:         httpReq.RequestURI,
		URL:            domain.CrackURL(scheme, stripPort(httpReq.Host), port, httpReq.RequestURI),
		ContentType:    httpReq.Header.Get("Content-Type"),
		Accept:         httpReq.Header.Get("Accept"),
		AcceptEncoding: httpReq.Header.Get("Accept-Encoding"),
		AcceptLanguage: httpReq.Header.Get("Accept-Language"),
		UserAgent:      httpReq.Header.Get("User-Agent"),
		Cookies:        httpReq.Cookies(),
		Authorization:  httpReq.Header.Get("Authorization"),
		ContentLength:  httpReq.ContentLength,
		RemoteAddr:     httpReq.RemoteAddr,
		Headers:        httpReq.Header,
	}
	if ims := httpReq.Header.Get("If-Modified-Since"); ims != "" {
		if t, err := http.ParseTime(ims); err == nil {
			req.IfModifiedSince = t
		}
	}
	return req
}

// applyVerbTunnel rewrites a POST's verb per an X-HTTP-Method override,
// restricted to the tunnelable set.
func applyVerbTunnel(req *domain.Request, h http.Header) {
	override := h.Get("X-HTTP-Method")
	if override == "" {
		override = h.Get("X-HTTP-Method-Override")
	}
	if override == "" {
		return
	}
	v := domain.ParseVerb(strings.ToUpper(override))
	if domain.TunnelableVerbs[v] {
		req.Verb = v
	}
}

// readBody pulls the body for delivery mode (b): read to EOF up to
// Content-Length (or the streaming limit if absent or larger), and apply
// the UTF-16 transcoding heuristic for POST bodies. No NUL terminator is
// appended.
func (r *Reactor) readBody(req *domain.Request, httpReq *http.Request) error {
	limit := r.streamingLimit
	if req.ContentLength > 0 && req.ContentLength < limit {
		limit = req.ContentLength
	}

	limited := io.LimitReader(httpReq.Body, limit+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return fmt.Errorf("reactor: read body: %w", err)
	}
	if int64(len(body)) > limit {
		return fmt.Errorf("reactor: body exceeds streaming limit of %d bytes", limit)
	}
	if req.ContentLength > 0 && int64(len(body)) < req.ContentLength {
		r.logger.Warn("reactor: short body read",
			slog.Int64("declared", req.ContentLength), slog.Int("actual", len(body)))
	}

	if req.Verb == domain.POST {
		body, req.SendBOMOnResponse = maybeTranscodeUTF16(body, req.ContentType)
	}
	req.Body = body
	return nil
}

// maybeTranscodeUTF16 detects a UTF-16 BOM and, when the Content-Type's
// charset parameter doesn't explicitly forbid it, transcodes body to
// UTF-8 in place, reporting whether the response should be BOM-prefixed
// in turn. Best-effort only, per §9's note that short-body detection is
// not guaranteed.
func maybeTranscodeUTF16(body []byte, contentType string) ([]byte, bool) {
	if strings.Contains(strings.ToLower(contentType), "charset=utf-8") {
		return body, false
	}

	var order bom
	switch {
	case bytes.HasPrefix(body, []byte{0xFF, 0xFE}):
		order = bomLittleEndian
	case bytes.HasPrefix(body, []byte{0xFE, 0xFF}):
		order = bomBigEndian
	default:
		return body, false
	}

	decoded := decodeUTF16(body[2:], order)
	return decoded, true
}

type bom int

const (
	bomLittleEndian bom = iota
	bomBigEndian
)

func decodeUTF16(b []byte, order bom) []byte {
	if len(b)%2 != 0 {
		b = b[:len(b)-1]
	}
	units := make([]uint16, len(b)/2)
	for i := range units {
		if order == bomLittleEndian {
			units[i] = uint16(b[2*i]) | uint16(b[2*i+1])<<8
		} else {
			units[i] = uint16(b[2*i+1]) | uint16(b[2*i])<<8
		}
	}
	return []byte(string(utf16.Decode(units)))
}

// checkNotModified resolves site.Webroot+absolute_path on the local
// filesystem and compares its mtime to the request's If-Modified-Since.
// A missing file is not a 404 at this layer — the request continues so
// an impersonated handler can still serve it.
func (r *Reactor) checkNotModified(s *domain.Site, req *domain.Request) (notModified bool, resolved bool) {
	if s.Webroot == "" {
		return false, false
	}
	path := s.Webroot + req.URL.AbsPath
	info, err := os.Stat(path)
	if err != nil {
		return false, false
	}
	return !info.ModTime().After(req.IfModifiedSince), true
}

// write sends resp back through Echo's response writer: headers, cookies,
// status and body as they are. It does not consult the request's
// SendBOMOnResponse flag and adds no BOM.
func (r *Reactor) write(c echo.Context, resp *domain.Response) error {
	w := c.Response()
	for k, vs := range resp.Headers {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	for _, ck := range resp.Cookies {
		http.SetCookie(w, toHTTPCookie(ck))
	}
	w.WriteHeader(resp.Status)
	if len(resp.Body) == 0 {
		return nil
	}
	_, err := w.Write(resp.Body)
	return err
}

func toHTTPCookie(c *domain.Cookie) *http.Cookie {
	return &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Path:     c.Path,
		Domain:   c.Domain,
		MaxAge:   c.MaxAge,
		Expires:  c.Expires,
		Secure:   c.Secure,
		HttpOnly: c.HTTPOnly,
		SameSite: toHTTPSameSite(c.SameSite),
	}
}

func toHTTPSameSite(s domain.SameSite) http.SameSite {
	switch s {
	case domain.SameSiteNone:
		return http.SameSiteNoneMode
	case domain.SameSiteLax:
		return http.SameSiteLaxMode
	case domain.SameSiteStrict:
		return http.SameSiteStrictMode
	default:
		return http.SameSiteDefaultMode
	}
}

func stripPort(host string) string {
	if idx := strings.LastIndexByte(host, ':'); idx >= 0 {
		return host[:idx]
	}
	return host
}

func schemePortFromHost(host, scheme string) int {
	if idx := strings.LastIndexByte(host, ':'); idx >= 0 {
		if p, err := strconv.Atoi(host[idx+1:]); err == nil {
			return p
		}
	}
	if scheme == "https" {
		return 443
	}
	return 80
}

func schemePort(httpReq *http.Request) int {
	return schemePortFromHost(httpReq.Host, schemeOf(httpReq))
}

func schemeOf(httpReq *http.Request) string {
	if httpReq.TLS != nil {
		return "https"
	}
	return "http"
}

// throttleMap serializes pipeline runs per Session Address, per §4.4's
// throttling gate, and purges entries idle longer than idleAfter.
type throttleMap struct {
	idleAfter time.Duration

	mu      sync.Mutex
	entries map[domain.SessionAddress]*throttleEntry
}

type throttleEntry struct {
	mu       sync.Mutex
	lastUsed time.Time
}

func newThrottleMap(idleAfter time.Duration) *throttleMap {
	return &throttleMap{idleAfter: idleAfter, entries: make(map[domain.SessionAddress]*throttleEntry)}
}

// lock acquires the address's lock and returns the unlock func, which
// also stamps lastUsed so the cleaner leaves active addresses alone.
func (t *throttleMap) lock(addr domain.SessionAddress) func() {
	t.mu.Lock()
	e, ok := t.entries[addr]
	if !ok {
		e = &throttleEntry{}
		t.entries[addr] = e
	}
	t.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.lastUsed = time.Now()
		e.mu.Unlock()
	}
}

// purgeIdle drops addresses whose entry lock is free and whose last use
// predates idleAfter. Entries currently held are skipped, not blocked on.
func (t *throttleMap) purgeIdle() {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := time.Now().Add(-t.idleAfter)
	for addr, e := range t.entries {
		if !e.mu.TryLock() {
			continue
		}
		idle := e.lastUsed.Before(cutoff)
		e.mu.Unlock()
		if idle {
			delete(t.entries, addr)
		}
	}
}

// handleEventStream diverts a GET on an event-stream site to the SSE
// registry instead of the pipeline/pool, per §4.4's routing rule.
func (r *Reactor) handleEventStream(c echo.Context, s *domain.Site, req *domain.Request) error {
	if r.streams == nil {
		return c.NoContent(http.StatusNotImplemented)
	}
	w := c.Response()
	port := schemePort(c.Request())
	stream := r.streams.Subscribe(s, port, s.Prefix, req.URL.AbsPath, req.ID, req.SID, w, req.SendBOMOnResponse)
	if stream == nil {
		return c.NoContent(http.StatusNotImplemented)
	}
	<-c.Request().Context().Done()
	stream.MarkDead()
	return nil
}
