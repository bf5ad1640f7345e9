package runtime

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"

	errspkg "github.com/pathcall/pathcall/internal/runtime/errors"
	"github.com/pathcall/pathcall/internal/runtime/jsoncodec"
	"github.com/pathcall/pathcall/internal/runtime/logging"
	"github.com/pathcall/pathcall/internal/runtime/wire"
)

// buildMux wires the HTTP surface: the single envelope mount, the callback
// mount, the push channel, and the script-fetch endpoint.
func (e *Engine) buildMux() *chi.Mux {
	mux := chi.NewRouter()

	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete} {
		mux.MethodFunc(method, "/lrpc", e.processRequest)
		mux.MethodFunc(method, "/{controller}/{endpoint}", e.processCallback)
	}
	mux.Get("/client", e.fetchScript)
	mux.Get("/socket", e.sessions.HandleWS)

	return mux
}

// Handler returns the engine's HTTP entry point.
func (e *Engine) Handler() http.Handler {
	return e.mux
}

// processRequest is the single envelope mount. It extracts {path, data},
// decides local versus remote, and relays or dispatches accordingly. The
// HTTP status stays 200; the envelope's status field carries the outcome.
func (e *Engine) processRequest(w http.ResponseWriter, r *http.Request) {
	path, data, files, err := fetchPayload(r)
	if err != nil {
		e.writeResponse(w, &wire.Response{Message: err.Error(), Status: wire.StatusError})
		return
	}
	if path == "" {
		e.writeResponse(w, &wire.Response{
			Message: "Path not specified in payload",
			Status:  wire.StatusError,
		})
		return
	}

	if !e.IsLocal(path) {
		if resp, handled := e.forwardRemote(r, path, data); handled {
			e.writeResponse(w, resp)
			return
		}
		// No remote stub registered: fall through so the caller gets the
		// same notFound a missing local procedure would produce.
	}

	resp := e.invokeLocal(w, r, path, data, files)
	if resp != nil {
		e.writeResponse(w, resp)
	}
}

// forwardRemote relays the call to a registered remote client stub. The
// second return is false when no stub exists for the path.
func (e *Engine) forwardRemote(r *http.Request, path string, data any) (*wire.Response, bool) {
	e.remotesMu.RLock()
	remote, ok := e.remotes[path]
	e.remotesMu.RUnlock()
	if !ok {
		return nil, false
	}

	authHeader := r.Header.Get("Authorization")
	if remote.RequiresAuth() && authHeader == "" {
		return &wire.Response{Message: "Unauthorized Access", Status: wire.StatusUnauthorized}, true
	}

	if e.conf.Gateway && e.oauthAuthorize != nil {
		if result := e.oauthAuthorize(r.Context(), r, path, nil); result.Status != wire.StatusSuccess {
			return &wire.Response{Message: "Unauthorized Access", Status: wire.StatusUnauthorized}, true
		}
	}

	resp, err := remote.Call(r.Context(), data, forwardedHeaders(r))
	if err != nil {
		e.logger.Error("remote call failed", err, logging.LogFields{"path": path})
		return &wire.Response{Message: err.Error(), Status: wire.StatusError}, true
	}
	return resp, true
}

// processCallback serves the path-derived mount for callback-flagged
// handlers: /{controller}/{endpoint}. The contract is the same as the
// envelope mount minus the envelope step; auth and validation still apply.
func (e *Engine) processCallback(w http.ResponseWriter, r *http.Request) {
	path, data, err := fetchCallbackPayload(e.conf.Service, r)
	if err != nil {
		e.writeResponse(w, &wire.Response{Message: err.Error(), Status: wire.StatusError})
		return
	}

	proc, ok := e.registry.Lookup(path)
	if !ok || !proc.IsCallback {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = jsoncodec.Encode(w, &wire.Response{Message: "Resource not found", Status: wire.StatusNotFound})
		e.metrics.Requests.WithLabelValues(string(wire.StatusNotFound)).Inc()
		return
	}

	resp := e.invokeLocal(w, r, path, data, nil)
	if resp != nil {
		e.writeResponse(w, resp)
	}
}

// invokeLocal runs the full local dispatch chain: registry lookup, auth,
// validation, handler, success-event emission. Auth and validation failures
// never reach the handler body. A nil return means the handler wrote the
// response itself.
func (e *Engine) invokeLocal(w http.ResponseWriter, r *http.Request, path string, data any, files []*multipart.FileHeader) *wire.Response {
	ctx := r.Context()

	proc, ok := e.registry.Lookup(path)
	if !ok || proc.Handle == nil {
		// Socket-only procedures are reachable through the push channel, not
		// the envelope mount.
		return &wire.Response{Message: "Resource not found", Status: wire.StatusNotFound}
	}

	var callCtx *wire.CallContext
	if proc.AuthRequired {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			return &wire.Response{Message: "Unauthorized Access", Status: wire.StatusUnauthorized}
		}

		result := e.authorize(ctx, authHeader, path)
		if result.Status != wire.StatusSuccess {
			return &wire.Response{Message: result.Message, Status: result.Status}
		}
		callCtx = result.Data
		callCtx.Path = path

		if e.conf.Gateway && e.oauthAuthorize != nil {
			if oauthResult := e.oauthAuthorize(ctx, r, path, callCtx); oauthResult.Status != wire.StatusSuccess {
				return &wire.Response{Message: oauthResult.Message, Status: oauthResult.Status}
			}
		}
	}

	if resp := e.runValidator(ctx, proc, data); resp != nil {
		return resp
	}

	req := &wire.Request{Payload: data, Context: callCtx, Files: files, HTTP: r, Writer: w}
	resp := e.runHandler(ctx, proc, req)

	if resp != nil && resp.Status == wire.StatusSuccess {
		// Emission is detached from the request: the response is already on
		// its way and must not be affected by fan-out failures.
		go e.emitSuccessEvent(path, data, resp.Data)
	}
	return resp
}

func (e *Engine) runValidator(ctx context.Context, proc *Procedure, data any) *wire.Response {
	if proc.Validate == nil {
		return nil
	}

	result, err := func() (result wire.Result, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("validator panicked: %v", r)
			}
		}()
		return proc.Validate(ctx, data)
	}()
	if err != nil {
		return &wire.Response{Message: err.Error(), Status: wire.StatusValidationError}
	}
	if !result.OK() {
		return &wire.Response{Message: result.Message, Status: result.Status}
	}
	return nil
}

// runHandler invokes the procedure under a span, converting panics and
// errors into structured error responses so nothing crashes the process.
func (e *Engine) runHandler(ctx context.Context, proc *Procedure, req *wire.Request) (resp *wire.Response) {
	ctx, span := e.tracer.Start(ctx, "pathcall.handle")
	span.SetAttributes(attribute.String("rpc.path", proc.Path))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("handler panicked", fmt.Errorf("panic: %v", r),
				logging.LogFields{"path": proc.Path})
			resp = &wire.Response{Message: fmt.Sprintf("internal error: %v", r), Status: wire.StatusError}
		}
	}()

	resp, err := proc.Handle(ctx, req)
	if err != nil {
		return &wire.Response{Message: err.Error(), Status: wire.StatusError}
	}
	return resp
}

// emitSuccessEvent fires the path-named event carrying the request and
// response payloads. Runs on its own goroutine; failures are logged only.
func (e *Engine) emitSuccessEvent(path string, request, response any) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("event emission panicked", fmt.Errorf("panic: %v", r),
				logging.LogFields{"event": path})
		}
	}()

	payload := map[string]any{"request": request, "response": response}
	if err := e.events.Emit(context.Background(), path, payload, false); err != nil {
		e.logger.Error("event emission failed", err, logging.LogFields{"event": path})
	}
}

// fetchScript serves generated client bundles for tooling. It is gated by
// the static script secret, not a user token, and is the only endpoint that
// reports internal faults with a 500.
func (e *Engine) fetchScript(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			w.WriteHeader(http.StatusInternalServerError)
			_ = jsoncodec.Encode(w, map[string]string{"message": "internal server error"})
		}
	}()

	resource := r.URL.Query().Get("resource")
	if resource == "" {
		e.writeResponse(w, &wire.Response{Message: "api Resource not specified", Status: wire.StatusError})
		return
	}

	token := r.Header.Get("Authorization")
	if token == "" || e.conf.ScriptSecret == "" || token != e.conf.ScriptSecret {
		e.writeResponse(w, &wire.Response{Message: "Unauthorized Access", Status: wire.StatusUnauthorized})
		return
	}

	if e.scripts == nil {
		e.writeResponse(w, &wire.Response{Message: "Resource does not exist", Status: wire.StatusError})
		return
	}

	script, err := e.scripts.Fetch(r.Context(), e.conf.Environment, resource)
	if err != nil {
		if !errors.Is(err, errspkg.ErrScriptNotFound) {
			e.logger.Error("script fetch failed", err, logging.LogFields{"resource": resource})
		}
		e.writeResponse(w, &wire.Response{Message: "Resource does not exist", Status: wire.StatusError})
		return
	}

	e.writeResponse(w, &wire.Response{Message: "Fetched script", Status: wire.StatusSuccess, Data: script})
}

func (e *Engine) writeResponse(w http.ResponseWriter, resp *wire.Response) {
	e.metrics.Requests.WithLabelValues(string(resp.Status)).Inc()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := jsoncodec.Encode(w, resp); err != nil {
		e.logger.Error("writing response failed", err, nil)
	}
}
