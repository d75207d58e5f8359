package renewal

import "time"

// Reason describes why a renewal request was raised.
type Reason string

const (
	ReasonFileAdded       Reason = "file-added"
	ReasonFileChanged     Reason = "file-changed"
	ReasonFileRemoved     Reason = "file-removed"
	ReasonProactiveExpiry Reason = "proactive-expiry"
	ReasonHealthCheck     Reason = "health-check"
)

// Request signals that the proxy may need to re-authenticate.
// Requests are fire-and-forget: the producer raises one and moves on,
// and the consumer is free to coalesce or throttle them.
type Request struct {
	Reason   Reason
	Source   string // path or token identity that triggered the request
	RaisedAt time.Time
}

// Sink receives renewal requests. It must be safe to call from multiple
// goroutines.
type Sink interface {
	Request(req Request)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(req Request)

func (f SinkFunc) Request(req Request) { f(req) }
