package runtime

import (
	"context"
	"sync"

	errspkg "github.com/pathcall/pathcall/internal/runtime/errors"
	"github.com/pathcall/pathcall/internal/runtime/wire"
)

// ValidateFunc checks the decoded payload before the handler runs. A nil
// ValidateFunc accepts everything. A returned error is reported to the caller
// as a validationError; a non-success Result short-circuits with its own
// message and status.
type ValidateFunc func(ctx context.Context, payload any) (wire.Result, error)

// HandlerFunc is the unit of work behind a procedure. A nil response means
// the handler already wrote to the underlying HTTP response (redirects,
// streamed media) and the router must not write the envelope.
type HandlerFunc func(ctx context.Context, req *wire.Request) (*wire.Response, error)

// SocketFunc receives push-channel lifecycle events for socket-flagged
// procedures: event is one of "connect", "message", "disconnect".
type SocketFunc func(ctx context.Context, id, event string, data any) error

// Registration describes a procedure at startup. It replaces the metadata
// that used to be attached at class-definition time: everything the router
// needs to know is declared here, once, explicitly.
type Registration struct {
	Controller string
	Name       string

	AuthRequired bool
	Roles        []string
	IsMedia      bool
	IsCallback   bool
	IsSocket     bool

	Validate ValidateFunc
	Handle   HandlerFunc
	OnSocket SocketFunc
}

// Procedure is the immutable descriptor stored in the registry. Created once
// at startup, never mutated afterwards.
type Procedure struct {
	Path       string
	Controller string
	Name       string

	AuthRequired bool
	Roles        []string
	IsMedia      bool
	IsCallback   bool
	IsSocket     bool

	Validate ValidateFunc
	Handle   HandlerFunc
	OnSocket SocketFunc
}

// Registry maps fully-qualified paths to procedures. Registration normally
// happens once at startup; lookups are concurrent.
type Registry struct {
	mu         sync.RWMutex
	procedures map[string]*Procedure
}

// NewRegistry returns an empty procedure registry.
func NewRegistry() *Registry {
	return &Registry{procedures: make(map[string]*Procedure)}
}

// Register installs a procedure under service.controller.name. Registering
// the same path twice overwrites the previous entry; the last registration
// wins deterministically.
func (r *Registry) Register(service string, reg Registration) (*Procedure, error) {
	if reg.Handle == nil && reg.OnSocket == nil {
		return nil, errspkg.ErrHandlerRequired
	}
	if service == "" || reg.Controller == "" || reg.Name == "" {
		return nil, errspkg.ErrPathRequired
	}

	p := &Procedure{
		Path:         service + "." + reg.Controller + "." + reg.Name,
		Controller:   reg.Controller,
		Name:         reg.Name,
		AuthRequired: reg.AuthRequired,
		Roles:        reg.Roles,
		IsMedia:      reg.IsMedia,
		IsCallback:   reg.IsCallback,
		IsSocket:     reg.IsSocket,
		Validate:     reg.Validate,
		Handle:       reg.Handle,
		OnSocket:     reg.OnSocket,
	}

	r.mu.Lock()
	r.procedures[p.Path] = p
	r.mu.Unlock()

	return p, nil
}

// Lookup resolves a procedure by its fully-qualified path.
func (r *Registry) Lookup(path string) (*Procedure, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.procedures[path]
	return p, ok
}

// Paths returns every registered path, for diagnostics and client tooling.
func (r *Registry) Paths() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	paths := make([]string, 0, len(r.procedures))
	for p := range r.procedures {
		paths = append(paths, p)
	}
	return paths
}
