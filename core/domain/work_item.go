package domain

// WorkItem is opaque to the worker pool: a callback and its payload. The
// pool never inspects Payload; it exists purely to let callers avoid a
// closure allocation when the callback is reused across many submissions.
type WorkItem struct {
	Fn      func(payload any)
	Payload any
}

// Run invokes the item's callback with its payload.
func (w WorkItem) Run() { w.Fn(w.Payload) }
