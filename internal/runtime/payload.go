package runtime

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/pathcall/pathcall/internal/runtime/jsoncodec"
)

// maxMultipartMemory bounds how much of an upload is buffered in memory
// before spilling to disk.
const maxMultipartMemory = 32 << 20

// envelope is the body shape of POST/PUT calls on the main mount.
type envelope struct {
	Path string `json:"path"`
	Data any    `json:"data"`
}

// fetchPayload extracts {path, data} from the request. The extraction rule
// depends on the verb: GET/DELETE read query parameters (data JSON-decoded
// when present); POST/PUT read the body, and multipart bodies carry path as
// a form field with the remaining fields becoming data.
func fetchPayload(r *http.Request) (string, any, []*multipart.FileHeader, error) {
	switch r.Method {
	case http.MethodGet, http.MethodDelete:
		query := r.URL.Query()
		path := query.Get("path")
		var data any
		if raw := query.Get("data"); raw != "" {
			if err := jsoncodec.UnmarshalString(raw, &data); err != nil {
				return "", nil, nil, fmt.Errorf("decoding data query parameter: %w", err)
			}
		}
		return path, data, nil, nil

	case http.MethodPost, http.MethodPut:
		if strings.Contains(r.Header.Get("Content-Type"), "multipart/form-data") {
			return fetchMultipartPayload(r)
		}
		var env envelope
		if err := jsoncodec.Decode(r.Body, &env); err != nil {
			return "", nil, nil, fmt.Errorf("decoding request body: %w", err)
		}
		return env.Path, env.Data, nil, nil

	default:
		return "", nil, nil, fmt.Errorf("unsupported method %s", r.Method)
	}
}

func fetchMultipartPayload(r *http.Request) (string, any, []*multipart.FileHeader, error) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return "", nil, nil, fmt.Errorf("parsing multipart form: %w", err)
	}

	path := r.FormValue("path")
	data := make(map[string]any)
	for key, values := range r.MultipartForm.Value {
		if key == "path" || len(values) == 0 {
			continue
		}
		data[key] = values[0]
	}

	var files []*multipart.FileHeader
	for _, headers := range r.MultipartForm.File {
		files = append(files, headers...)
	}
	return path, data, files, nil
}

// fetchCallbackPayload reconstructs the procedure path from the URL of a
// callback mount (/{controller}/{endpoint}) and reads data from the query or
// body depending on the verb. No path field is expected in the payload.
func fetchCallbackPayload(service string, r *http.Request) (string, any, error) {
	segments := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(segments) < 2 {
		return "", nil, fmt.Errorf("callback URL must be /{controller}/{endpoint}")
	}
	path := service + "." + segments[0] + "." + segments[1]

	switch r.Method {
	case http.MethodGet, http.MethodDelete:
		data := make(map[string]any)
		for key, values := range r.URL.Query() {
			if len(values) > 0 {
				data[key] = values[0]
			}
		}
		return path, data, nil

	case http.MethodPost, http.MethodPut:
		var data any
		if err := jsoncodec.Decode(r.Body, &data); err != nil {
			return "", nil, fmt.Errorf("decoding callback body: %w", err)
		}
		return path, data, nil

	default:
		return "", nil, fmt.Errorf("unsupported method %s", r.Method)
	}
}

// proxiedHeaders is the curated set relayed to remote services. Everything
// else the client sent stays behind the gateway.
var proxiedHeaders = []string{
	"Authorization",
	"X-Forwarded-For",
	"X-Forwarded-Proto",
	"X-Forwarded-Host",
	"User-Agent",
	"Accept-Language",
	"Content-Type",
	"Accept",
	"Cookie",
}

func forwardedHeaders(r *http.Request) http.Header {
	out := http.Header{}
	for _, name := range proxiedHeaders {
		if v := r.Header.Get(name); v != "" {
			out.Set(name, v)
		}
	}
	if out.Get("X-Forwarded-For") == "" {
		out.Set("X-Forwarded-For", r.RemoteAddr)
	}
	if out.Get("X-Forwarded-Host") == "" && r.Host != "" {
		out.Set("X-Forwarded-Host", r.Host)
	}
	return out
}
