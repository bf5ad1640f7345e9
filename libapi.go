package pathcall

import (
	runtimepkg "github.com/pathcall/pathcall/internal/runtime"
	authpkg "github.com/pathcall/pathcall/internal/runtime/auth"
	configpkg "github.com/pathcall/pathcall/internal/runtime/config"
	errspkg "github.com/pathcall/pathcall/internal/runtime/errors"
	idspkg "github.com/pathcall/pathcall/internal/runtime/ids"
	jsoncodec "github.com/pathcall/pathcall/internal/runtime/jsoncodec"
	loggingpkg "github.com/pathcall/pathcall/internal/runtime/logging"
	storepkg "github.com/pathcall/pathcall/internal/runtime/store"
	wirepkg "github.com/pathcall/pathcall/internal/runtime/wire"
	transportpkg "github.com/pathcall/pathcall/transport"
)

type (
	Config       = configpkg.Config
	Engine       = runtimepkg.Engine
	Dependencies = runtimepkg.Dependencies

	Registration = runtimepkg.Registration
	Procedure    = runtimepkg.Procedure
	Registry     = runtimepkg.Registry
	HandlerFunc  = runtimepkg.HandlerFunc
	ValidateFunc = runtimepkg.ValidateFunc
	SocketFunc   = runtimepkg.SocketFunc
	CountFunc    = runtimepkg.CountFunc

	Status       = wirepkg.Status
	Response     = wirepkg.Response
	Result       = wirepkg.Result
	Request      = wirepkg.Request
	QueueMessage = wirepkg.QueueMessage
	Path         = wirepkg.Path

	CallContext     = wirepkg.CallContext
	Permission      = wirepkg.Permission
	ControllerGrant = wirepkg.ControllerGrant
	PermissionTable = wirepkg.PermissionTable

	AuthGateway        = authpkg.Gateway
	AuthResult         = authpkg.Result
	AuthorizeFunc      = runtimepkg.AuthorizeFunc
	OAuthAuthorizeFunc = runtimepkg.OAuthAuthorizeFunc

	RemoteClient     = runtimepkg.RemoteClient
	HTTPRemoteClient = runtimepkg.HTTPRemoteClient

	EventHandler     = runtimepkg.EventHandler
	ScriptRepository = runtimepkg.ScriptRepository
	ConsumeFunc      = runtimepkg.ConsumeFunc

	Queue          = runtimepkg.Queue
	SessionManager = runtimepkg.SessionManager
	SessionConn    = runtimepkg.SessionConn

	Store      = storepkg.Store
	RedisStore = storepkg.RedisStore

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	// Transport types
	Transport             = transportpkg.Transport
	TransportBuilder      = transportpkg.Builder
	TransportConfig       = transportpkg.Config
	TransportRegistry     = transportpkg.Registry
	TransportCapabilities = transportpkg.Capabilities
)

const (
	StatusSuccess         = wirepkg.StatusSuccess
	StatusError           = wirepkg.StatusError
	StatusUnauthorized    = wirepkg.StatusUnauthorized
	StatusNotFound        = wirepkg.StatusNotFound
	StatusRestricted      = wirepkg.StatusRestricted
	StatusValidationError = wirepkg.StatusValidationError

	SocketConnect    = runtimepkg.SocketConnect
	SocketMessage    = runtimepkg.SocketMessage
	SocketDisconnect = runtimepkg.SocketDisconnect
)

var (
	NewEngine      = runtimepkg.NewEngine
	TryNewEngine   = runtimepkg.TryNewEngine
	ValidateConfig = configpkg.ValidateConfig
	ConfigFromEnv  = configpkg.FromEnv

	ParsePath       = wirepkg.ParsePath
	ServiceOf       = wirepkg.ServiceOf
	FetchPermission = authpkg.FetchPermission
	NewAuthGateway  = authpkg.NewGateway

	QuotaGuard    = runtimepkg.QuotaGuard
	ResourceGuard = runtimepkg.ResourceGuard

	NewRedisStore           = storepkg.NewRedisStore
	NewRedisStoreFromClient = storepkg.NewRedisStoreFromClient

	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger
	NopLogger                 = loggingpkg.Nop

	// JSON helpers backed by the engine's codec.
	MarshalJSON         = jsoncodec.Marshal
	UnmarshalJSON       = jsoncodec.Unmarshal
	UnmarshalJSONString = jsoncodec.UnmarshalString

	NewID = idspkg.NewID

	// Sentinel errors
	ErrEngineRequired       = errspkg.ErrEngineRequired
	ErrEngineAlreadyCreated = errspkg.ErrEngineAlreadyCreated
	ErrHandlerRequired      = errspkg.ErrHandlerRequired
	ErrPathRequired         = errspkg.ErrPathRequired
	ErrStoreRequired        = errspkg.ErrStoreRequired
	ErrChannelNotReady      = errspkg.ErrChannelNotReady
	ErrQueueNameRequired    = errspkg.ErrQueueNameRequired
	ErrEventNameRequired    = errspkg.ErrEventNameRequired
	ErrScriptNotFound       = errspkg.ErrScriptNotFound

	// Transport registry helpers
	RegisterTransport = transportpkg.Register
	BuildTransport    = transportpkg.Build
)
