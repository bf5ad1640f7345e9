// Package wire holds the envelope and identity types shared between the
// router, the auth gateway, and the queue pipeline.
package wire

// Status classifies every response produced by the engine.
type Status string

const (
	StatusSuccess         Status = "success"
	StatusError           Status = "error"
	StatusUnauthorized    Status = "unauthorized"
	StatusNotFound        Status = "notFound"
	StatusRestricted      Status = "restricted"
	StatusValidationError Status = "validationError"
)

// Response is the envelope returned to every caller, over HTTP and over the
// queue alike. The HTTP status code stays 200; Status carries the outcome.
type Response struct {
	Message string `json:"message"`
	Status  Status `json:"status"`
	Data    any    `json:"data,omitempty"`
}

// Result is the short form returned by validators.
type Result struct {
	Message string `json:"message"`
	Status  Status `json:"status"`
}

// OK reports whether the result allows the call to proceed.
func (r Result) OK() bool {
	return r.Status == StatusSuccess
}

// QueueMessage is the envelope exchanged over the broker for inter-service
// RPC and events. Delivery is at-most-once; nothing beyond the broker's own
// redelivery is kept.
type QueueMessage struct {
	Path    string `json:"path"`
	Data    any    `json:"data"`
	SrcPath string `json:"srcPath,omitempty"`
	Token   string `json:"token,omitempty"`
	IsEvent bool   `json:"isEvent,omitempty"`
}
