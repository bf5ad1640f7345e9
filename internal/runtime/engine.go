package runtime

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/pathcall/pathcall/internal/runtime/auth"
	configpkg "github.com/pathcall/pathcall/internal/runtime/config"
	errspkg "github.com/pathcall/pathcall/internal/runtime/errors"
	"github.com/pathcall/pathcall/internal/runtime/logging"
	storepkg "github.com/pathcall/pathcall/internal/runtime/store"
	"github.com/pathcall/pathcall/internal/runtime/wire"
	transportpkg "github.com/pathcall/pathcall/transport"
)

// AuthorizeFunc turns a bearer token and a dot-path into an authorization
// result. The default implementation is Gateway.Authorize; replace it to
// plug in a different token scheme.
type AuthorizeFunc func(ctx context.Context, token, path string) auth.Result

// OAuthAuthorizeFunc is the optional gateway-side hook consulted after token
// authorization succeeds. It sees the raw request so it can inspect headers
// and cookies the token does not carry. call is nil for remote relays.
type OAuthAuthorizeFunc func(ctx context.Context, r *http.Request, path string, call *wire.CallContext) auth.Result

// ScriptRepository serves generated client bundles by environment and
// resource name. Fetch returns ErrScriptNotFound for unknown resources.
type ScriptRepository interface {
	Fetch(ctx context.Context, environment, resource string) (string, error)
}

// Dependencies holds the collaborators an Engine is wired with. Store is
// required; everything else is optional. Leave Transport nil to have the
// broker connection built from the configuration.
type Dependencies struct {
	Store          storepkg.Store
	Transport      *transportpkg.Transport
	Remotes        map[string]RemoteClient
	Authorize      AuthorizeFunc
	OAuthAuthorize OAuthAuthorizeFunc
	Scripts        ScriptRepository
}

// Engine is the per-process service node: the HTTP mounts, the queue inbox,
// the event bus, and the session manager, all sharing one registry and one
// shared-store connection.
type Engine struct {
	conf   *configpkg.Config
	logger logging.ServiceLogger

	registry *Registry
	gateway  *auth.Gateway
	store    storepkg.Store
	queue    *Queue
	events   *EventBus
	sessions *SessionManager
	metrics  *Metrics
	scripts  ScriptRepository

	authorize      AuthorizeFunc
	oauthAuthorize OAuthAuthorizeFunc

	remotesMu sync.RWMutex
	remotes   map[string]RemoteClient

	tracer trace.Tracer
	mux    *chi.Mux
}

// A process hosts exactly one Engine. Background consumers and the session
// forwarder assume a single inbox per service instance; a second engine
// would compete for the same queue and socket channel.
var engineCreated atomic.Bool

// resetEngineGuard clears the single-engine guard. Test use only.
func resetEngineGuard() {
	engineCreated.Store(false)
}

// NewEngine constructs the process engine or panics. Use TryNewEngine when
// the caller wants to handle construction errors itself.
func NewEngine(conf *configpkg.Config, log logging.ServiceLogger, ctx context.Context, deps Dependencies) *Engine {
	e, err := TryNewEngine(conf, log, ctx, deps)
	if err != nil {
		panic(err)
	}
	return e
}

// TryNewEngine constructs the process engine. Constructing a second engine
// in the same process fails with ErrEngineAlreadyCreated; a failed
// construction releases the guard so the caller may retry.
func TryNewEngine(conf *configpkg.Config, log logging.ServiceLogger, ctx context.Context, deps Dependencies) (e *Engine, err error) {
	if !engineCreated.CompareAndSwap(false, true) {
		return nil, errspkg.ErrEngineAlreadyCreated
	}
	defer func() {
		if err != nil {
			engineCreated.Store(false)
		}
	}()

	if err := configpkg.ValidateConfig(conf); err != nil {
		return nil, err
	}
	if deps.Store == nil {
		return nil, errspkg.ErrStoreRequired
	}
	if log == nil {
		log = logging.Nop()
	}

	log.Info("Creating engine", logging.LogFields{
		"service": conf.Service,
		"broker":  conf.Broker,
		"config":  conf,
	})

	e = &Engine{
		conf:     conf,
		logger:   log,
		registry: NewRegistry(),
		store:    deps.Store,
		scripts:  deps.Scripts,
		remotes:  make(map[string]RemoteClient),
		tracer:   otel.Tracer("pathcall"),
	}

	e.metrics = newMetrics(conf.Service)
	e.gateway = auth.NewGateway(conf.AppSecret, deps.Store, log)

	e.authorize = deps.Authorize
	if e.authorize == nil {
		e.authorize = e.gateway.Authorize
	}
	e.oauthAuthorize = deps.OAuthAuthorize

	for path, client := range deps.Remotes {
		e.remotes[path] = client
	}

	e.queue = newQueue(conf.InboxQueue(), log, e.metrics)
	e.queue.Process(e.consumeQueue)

	e.events = newEventBus(conf.Application, conf.Environment, conf.Service, deps.Store, e.queue, log, e.metrics)

	e.sessions = newSessionManager(
		e.authorize,
		e.registry.Lookup,
		deps.Store,
		storepkg.SocketChannel(conf.Application, conf.Environment),
		log,
		e.metrics,
	)

	e.mux = e.buildMux()

	t := deps.Transport
	if t == nil {
		built, err := transportpkg.Build(ctx, conf, logging.NewWatermillAdapter(log))
		if err != nil {
			return nil, fmt.Errorf("building transport: %w", err)
		}
		t = &built
	}
	if err := e.queue.attach(*t); err != nil {
		return nil, err
	}

	return e, nil
}

// Register adds a procedure under this service's namespace and returns the
// resolved procedure. Registering the same controller/name pair again
// replaces the earlier entry.
func (e *Engine) Register(reg Registration) (*Procedure, error) {
	if e == nil {
		return nil, errspkg.ErrEngineRequired
	}
	return e.registry.Register(e.conf.Service, reg)
}

// RegisterRemote installs a client stub for a foreign dot-path. Calls landing
// on the envelope mount for that path are relayed instead of dispatched.
func (e *Engine) RegisterRemote(path string, client RemoteClient) error {
	if e == nil {
		return errspkg.ErrEngineRequired
	}
	if path == "" {
		return errspkg.ErrPathRequired
	}
	if client == nil {
		return errspkg.ErrHandlerRequired
	}
	e.remotesMu.Lock()
	e.remotes[path] = client
	e.remotesMu.Unlock()
	return nil
}

// Subscribe attaches a local handler to a named event. The subscription is
// advertised in the shared registry when Start runs.
func (e *Engine) Subscribe(event, class, method string, fn EventHandler) error {
	if e == nil {
		return errspkg.ErrEngineRequired
	}
	return e.events.Subscribe(event, class, method, fn)
}

// DeclareEvent advertises an event this service emits.
func (e *Engine) DeclareEvent(event string) {
	e.events.DeclareEvent(event)
}

// Emit fans an event out to every registered subscriber, local and remote.
func (e *Engine) Emit(ctx context.Context, event string, payload any) error {
	return e.events.Emit(ctx, event, payload, false)
}

// Push delivers data to a connected session by identity, forwarding through
// the shared store channel when the session lives on another instance.
func (e *Engine) Push(ctx context.Context, id string, data any) error {
	return e.sessions.Push(ctx, id, data)
}

// Evict closes and removes the session for an identity, if any.
func (e *Engine) Evict(id string) {
	e.sessions.Evict(id)
}

// Auth exposes the token gateway for signing and custom verification.
func (e *Engine) Auth() *auth.Gateway {
	return e.gateway
}

// Sessions exposes the session manager.
func (e *Engine) Sessions() *SessionManager {
	return e.sessions
}

// Queue exposes the managed queue connection for direct publishes.
func (e *Engine) Queue() *Queue {
	return e.queue
}

// IsLocal reports whether the path's service segment names this service.
func (e *Engine) IsLocal(path string) bool {
	return wire.ServiceOf(path) == e.conf.Service
}

// consumeQueue is the inbox callback: events are replayed onto local
// subscribers, calls are dispatched straight to the handler. The queue path
// carries no HTTP context, so auth and validation do not apply here; the
// emitting side already ran them.
func (e *Engine) consumeQueue(ctx context.Context, msg wire.QueueMessage, done func(error)) {
	if msg.IsEvent {
		if !e.events.IsSubscribed(msg.Path) {
			done(nil)
			return
		}
		done(e.events.Emit(ctx, msg.Path, msg.Data, true))
		return
	}

	proc, ok := e.registry.Lookup(msg.Path)
	if !ok || proc.Handle == nil {
		done(fmt.Errorf("no procedure registered for %s", msg.Path))
		return
	}

	resp, err := proc.Handle(ctx, &wire.Request{Payload: msg.Data})
	if err != nil {
		done(err)
		return
	}
	if resp != nil && resp.Status != wire.StatusSuccess {
		done(fmt.Errorf("queued call %s finished with status %s: %s", msg.Path, resp.Status, resp.Message))
		return
	}
	done(nil)
}

// Start announces the service in the shared registry, flushes event
// subscriptions, and runs the HTTP surface and the queue router until ctx is
// cancelled.
func (e *Engine) Start(ctx context.Context) error {
	conf := e.conf

	if err := e.store.SAdd(ctx, storepkg.ServicesKey(conf.Application, conf.Environment), conf.Service); err != nil {
		return fmt.Errorf("announcing service: %w", err)
	}
	if conf.ServiceHost != "" {
		if err := e.store.Set(ctx, storepkg.HostKey(conf.Application, conf.Service), conf.ServiceHost); err != nil {
			return fmt.Errorf("announcing service host: %w", err)
		}
	}
	if err := e.events.flush(ctx); err != nil {
		return fmt.Errorf("flushing event subscriptions: %w", err)
	}

	if conf.SessionForwarding {
		go e.sessions.runForwarder(ctx)
	}

	if conf.MetricsEnabled {
		addr := fmt.Sprintf(":%d", conf.MetricsPort)
		mux := http.NewServeMux()
		mux.Handle("/metrics", e.metrics.Handler())
		e.logger.Info("Starting metrics server", logging.LogFields{"address": addr})
		go func() {
			if err := http.ListenAndServe(addr, mux); err != nil {
				e.logger.Error("Metrics server stopped", err, logging.LogFields{"address": addr})
			}
		}()
	}

	addr := fmt.Sprintf(":%d", conf.Port)
	e.logger.Info("Starting HTTP server", logging.LogFields{"address": addr})
	go func() {
		if err := http.ListenAndServe(addr, e.mux); err != nil {
			e.logger.Error("HTTP server stopped", err, logging.LogFields{"address": addr})
		}
	}()

	return e.queue.run(ctx)
}

// Close tears down the broker connection. The engine is not reusable after
// Close.
func (e *Engine) Close() error {
	return e.queue.Close()
}
