package dispatching

import (
	"context"

	"github.com/renbou/tlxdispatch/tlxlog"
)

// ErrorHandler handles errors produced by an update listener. It is called
// by the dispatch loop, so long-running handlers delay dispatching.
type ErrorHandler interface {
	HandleError(ctx context.Context, err error)
}

// ErrorHandlerFunc allows using ordinary functions as an ErrorHandler.
type ErrorHandlerFunc func(ctx context.Context, err error)

func (f ErrorHandlerFunc) HandleError(ctx context.Context, err error) {
	f(ctx, err)
}

type loggingErrorHandler struct {
	logger tlxlog.Logger
	text   string
}

func (h loggingErrorHandler) HandleError(_ context.Context, err error) {
	h.logger.Error(err, h.text)
}

// LoggingErrorHandler returns an ErrorHandler which logs every error with the given text.
func LoggingErrorHandler(logger tlxlog.Logger, text string) ErrorHandler {
	return loggingErrorHandler{logger: tlxlog.WithDefault(logger), text: text}
}

// IgnoringErrorHandler returns an ErrorHandler which does nothing.
func IgnoringErrorHandler() ErrorHandler {
	return ErrorHandlerFunc(func(context.Context, error) {})
}
