package domain

import "net/http"

// Response is the outbound half of a request/response pair. A pipeline
// handler populates it and calls Answer exactly once; any further Answer
// call is a no-op that returns false, matching the "answered" idempotence
// guard in the pipeline's contract.
type Response struct {
	Status  int
	Reason  string
	Headers http.Header
	Cookies []*Cookie
	Body    []byte

	answered bool
}

// Answer marks the response as finalized. Idempotent: subsequent calls
// return false without modifying anything already set.
func (r *Response) Answer(status int, body []byte) bool {
	if r.answered {
		return false
	}
	r.Status = status
	r.Body = body
	r.answered = true
	return true
}

// Answered reports whether Answer has already been called.
func (r *Response) Answered() bool { return r.answered }

// SetHeader sets a response header, initializing the header map on first
// use. Calling it after Answer is allowed, matching the original's
// "headers may trail the status line until flush" behavior.
func (r *Response) SetHeader(key, value string) {
	if r.Headers == nil {
		r.Headers = http.Header{}
	}
	r.Headers.Set(key, value)
}

// AddCookie appends an outbound cookie to the response.
func (r *Response) AddCookie(c *Cookie) {
	r.Cookies = append(r.Cookies, c)
}

// NewResponse returns a Response with a 200 default, ready for a handler
// to mutate before calling Answer.
func NewResponse() *Response {
	return &Response{Status: http.StatusOK, Headers: http.Header{}}
}
