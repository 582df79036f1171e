package site

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/edwig/marlin/core/domain"
	"github.com/edwig/marlin/internal/faults"
	"github.com/edwig/marlin/internal/rm"
)

// SecurityValidator is the seam the Security Validator (C9) implements.
// Invoked whenever a site's encryption level isn't Plain.
type SecurityValidator interface {
	Validate(site *domain.Site, req *domain.Request) error
}

// ReliabilityMachine is the seam the RM Session Machine (C7) implements.
// Invoked whenever a site requires WS-ReliableMessaging.
type ReliabilityMachine interface {
	Handle(site *domain.Site, req *domain.Request, resp *domain.Response) error
}

// BodyReader pulls a request's body when the reactor hasn't already done
// so — the Reactor collaborator step 2 of the pipeline delegates to.
type BodyReader interface {
	ReadBody(req *domain.Request) error
}

// ErrorReporter receives crashes recovered from user handlers. The
// default, if none is configured, logs via slog.
type ErrorReporter interface {
	ReportCrash(site *domain.Site, req *domain.Request, recovered any)
}

// RMSessionDestroyer lets the pipeline destroy a faulted RM session
// before replying; satisfied by *rm.Machine.
type RMSessionDestroyer = faults.RMSessionDestroyer

// MetricsRecorder is the seam the §10 metrics collaborator implements.
// A nil Metrics field on Pipeline simply skips recording.
type MetricsRecorder interface {
	RecordPipelineRequest(ctx context.Context, site string, status int, seconds float64)
	RecordSecurityResult(ctx context.Context, passed bool)
}

// Pipeline runs the ten-step per-request control flow on top of a
// resolved Site.
type Pipeline struct {
	Body      BodyReader
	Security  SecurityValidator
	Reliable  ReliabilityMachine
	RMFault   RMSessionDestroyer
	ErrReport ErrorReporter
	Metrics   MetricsRecorder
	Logger    *slog.Logger

	emitter *faults.Emitter
}

func (p *Pipeline) emit() *faults.Emitter {
	if p.emitter == nil {
		p.emitter = faults.NewEmitter(p.Logger)
	}
	return p.emitter
}

// Result is what Process hands back to the reactor: the response to
// write immediately, and — for async sites — a continuation to submit to
// the worker pool after the response has been sent.
type Result struct {
	Response   *domain.Response
	Background func()
}

// Process runs the full pipeline for one request against its resolved
// site and returns the response to send.
func (p *Pipeline) Process(s *domain.Site, req *domain.Request) Result {
	resp := domain.NewResponse()
	start := time.Now()

	savedToken := req.ImpersonationToken
	defer func() {
		req.ImpersonationToken = savedToken
		if r := recover(); r != nil {
			p.reportCrash(s, req, r)
			if !resp.Answered() {
				resp.Answer(http.StatusInternalServerError, errorBody(s, http.StatusInternalServerError, "Internal Server Error"))
			}
		}
		if p.Metrics != nil {
			p.Metrics.RecordPipelineRequest(context.Background(), siteLabel(s), resp.Status, time.Since(start).Seconds())
		}
	}()

	// Step 2: pull the body if the reactor hasn't already.
	if !req.BodyRead && p.Body != nil {
		if err := p.Body.ReadBody(req); err != nil {
			*req = domain.Request{} // reset, matching "reset the Request" on failure
			resp.Answer(http.StatusGone, errorBody(s, http.StatusGone, "Gone"))
			return Result{Response: resp}
		}
		req.BodyRead = true
	}

	// Step 3: CORS gate.
	if s.AutoHeaders.CORSAllowOrigin != "" {
		origin := req.Headers.Get("Origin")
		if origin != "" && !strings.EqualFold(origin, s.AutoHeaders.CORSAllowOrigin) {
			resp.Answer(http.StatusForbidden, errorBody(s, http.StatusForbidden, "Forbidden"))
			applyAutoHeaders(s, resp)
			return Result{Response: resp}
		}
	}

	// Step 4: async sites answer immediately and keep working in the
	// background; the background continuation runs against a separate,
	// discarded response, so nothing it writes reaches the client.
	if s.Async {
		resp.Answer(http.StatusOK, nil)
		applyAutoHeaders(s, resp)
		asyncReq := req
		background := func() {
			// The client already has its 200; this response only exists to
			// let the handler run to completion, nothing reads it.
			discard := domain.NewResponse()
			p.runSteps5Through10(s, asyncReq, discard)
		}
		return Result{Response: resp, Background: background}
	}

	p.runSteps5Through10(s, req, resp)
	applyAutoHeaders(s, resp)
	return Result{Response: resp}
}

func (p *Pipeline) runSteps5Through10(s *domain.Site, req *domain.Request, resp *domain.Response) {
	// Step 5: filter chain.
	for _, f := range s.SortedFilters() {
		if f.Run == nil {
			continue
		}
		if shortCircuit := f.Run(req, resp); shortCircuit {
			return
		}
	}

	// Step 6: resolve handler.
	handler := s.HandlerFor(req.Verb)
	if handler == nil {
		resp.Answer(http.StatusBadRequest, errorBody(s, http.StatusBadRequest, "Bad Request"))
		return
	}

	// Step 7: security validation.
	if s.EncryptionLevel != domain.EncryptionPlain && p.Security != nil {
		err := p.Security.Validate(s, req)
		if p.Metrics != nil {
			p.Metrics.RecordSecurityResult(context.Background(), err == nil)
		}
		if err != nil {
			p.emit().RespondSOAPFault(req, resp, faults.SOAPFault{
				Code:   "Client.Configuration",
				String: err.Error(),
			})
			return
		}
	}

	// Step 8: reliable messaging.
	if s.ReliabilityRequired && p.Reliable != nil {
		if err := p.Reliable.Handle(s, req, resp); err != nil {
			p.emit().RespondRMFault(p.RMFault, req.SessionAddress(), req, resp, faults.SOAPFault{
				Code:   rm.FaultCode(err),
				String: err.Error(),
			})
			return
		}
		if resp.Answered() {
			return
		}
	}

	// Step 9: call the handler. Panics are caught by Process's deferred
	// recover, which wraps this whole call chain.
	handler(req, resp)
}

// siteLabel picks the metrics/tracing label identifying s: its full
// registration prefix when set, else its bare base path.
func siteLabel(s *domain.Site) string {
	if s == nil {
		return ""
	}
	if s.Prefix != "" {
		return s.Prefix
	}
	return s.BasePath
}

func (p *Pipeline) reportCrash(s *domain.Site, req *domain.Request, recovered any) {
	if p.ErrReport != nil {
		p.ErrReport.ReportCrash(s, req, recovered)
		return
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Error("pipeline handler panicked", slog.Any("panic", recovered), slog.String("request_id", req.ID))
}
