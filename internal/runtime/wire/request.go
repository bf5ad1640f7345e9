package wire

import (
	"mime/multipart"
	"net/http"
)

// Request is what a registered handler receives. Payload is the decoded
// `data` portion of the envelope; Context is nil unless the procedure
// declared an auth requirement. HTTP, Writer and Files are only set for
// calls that arrived over the HTTP mounts. A handler that writes to Writer
// itself must return a nil Response.
type Request struct {
	Payload any
	Context *CallContext
	Files   []*multipart.FileHeader
	HTTP    *http.Request
	Writer  http.ResponseWriter
}

// PayloadField reads a string-keyed field from a map payload. The second
// return is false when the payload is not a map or the field is absent.
func (r *Request) PayloadField(key string) (any, bool) {
	m, ok := r.Payload.(map[string]any)
	if !ok {
		return nil, false
	}
	v, ok := m[key]
	return v, ok
}
