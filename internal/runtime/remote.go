package runtime

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/pathcall/pathcall/internal/runtime/jsoncodec"
	"github.com/pathcall/pathcall/internal/runtime/wire"
)

// RemoteClient is a callable stub for a procedure owned by another service.
// Stubs are produced by the client generator tooling; the router only needs
// this surface to proxy a call and relay its response verbatim.
type RemoteClient interface {
	Call(ctx context.Context, data any, headers http.Header) (*wire.Response, error)

	// RequiresAuth marks targets that must not be forwarded without an
	// Authorization header; the router short-circuits with unauthorized.
	RequiresAuth() bool
}

// HTTPRemoteClient calls a remote service's envelope mount over HTTP.
type HTTPRemoteClient struct {
	// Endpoint is the remote service's mount URL, e.g. https://host/lrpc.
	Endpoint string
	// Path is the fully-qualified procedure path sent in the envelope.
	Path string
	// Auth marks the target as requiring gateway-level authorization.
	Auth bool

	// Client defaults to http.DefaultClient.
	Client *http.Client
}

func (c *HTTPRemoteClient) RequiresAuth() bool { return c.Auth }

func (c *HTTPRemoteClient) Call(ctx context.Context, data any, headers http.Header) (*wire.Response, error) {
	body, err := jsoncodec.Marshal(envelope{Path: c.Path, Data: data})
	if err != nil {
		return nil, fmt.Errorf("encoding remote envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building remote request: %w", err)
	}
	for name, values := range headers {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", c.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var out wire.Response
	if err := jsoncodec.Decode(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("decoding response from %s: %w", c.Path, err)
	}
	return &out, nil
}
