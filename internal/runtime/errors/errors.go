package errors

import sterrors "errors"

var (
	ErrEngineRequired       = sterrors.New("pathcall: engine is required")
	ErrEngineAlreadyCreated = sterrors.New("pathcall: engine has already been created for this process")
	ErrHandlerRequired      = sterrors.New("pathcall: handler function is required")
	ErrPathRequired         = sterrors.New("pathcall: procedure path is required")
	ErrStoreRequired        = sterrors.New("pathcall: shared registry store is required")
	ErrChannelNotReady      = sterrors.New("pathcall: queue channel is not ready")
	ErrQueueNameRequired    = sterrors.New("pathcall: target queue name is required")
	ErrEventNameRequired    = sterrors.New("pathcall: event name is required")
	ErrScriptNotFound       = sterrors.New("pathcall: script resource does not exist")
)
