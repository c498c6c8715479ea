package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrorResponse is the body of every failed canvas API call
type ErrorResponse struct {
	Error     bool                   `json:"error"`
	Type      string                 `json:"type"`
	Message   string                 `json:"message"`
	Code      string                 `json:"code,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Retryable bool                   `json:"retryable,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// statusTypes maps the statuses the API emits back to an error type
var statusTypes = map[int]ErrorType{
	http.StatusBadRequest:          ErrorTypeValidation,
	http.StatusUnauthorized:        ErrorTypeUnauthorized,
	http.StatusForbidden:           ErrorTypeForbidden,
	http.StatusNotFound:            ErrorTypeNotFound,
	http.StatusConflict:            ErrorTypeConflict,
	http.StatusTooManyRequests:     ErrorTypeRateLimit,
	http.StatusServiceUnavailable:  ErrorTypeStorage,
	http.StatusInternalServerError: ErrorTypeInternal,
}

// routineCodes are outcomes sync clients hit in normal operation. They are
// logged at debug level.
var routineCodes = map[string]bool{
	CodeStaleMutation: true,
	CodeMissingToken:  true,
}

// retryAfterSeconds is advertised on throttled and retryable responses
const retryAfterSeconds = 1

// ErrorHandler writes AppErrors as JSON responses
type ErrorHandler struct {
	logger *zap.Logger
	debug  bool
}

// NewErrorHandler creates a handler. In debug mode, stack traces and the
// text of unclassified errors are included in responses.
func NewErrorHandler(logger *zap.Logger, debug bool) *ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ErrorHandler{logger: logger, debug: debug}
}

// Handle writes err to w. Errors that are not AppErrors become opaque 500s.
func (h *ErrorHandler) Handle(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}

	appErr := GetAppError(err)
	if appErr == nil {
		h.logger.Error("Unhandled error",
			zap.Error(err),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", requestIDFrom(r)),
		)
		message := "An internal error occurred"
		if h.debug {
			message = err.Error()
		}
		appErr = NewInternalError(message)
		appErr.StackTrace = ""
	} else {
		h.logError(r, appErr)
	}

	h.write(w, r, appErr)
}

// HandleStatus writes a bare status with message, for router-level failures
// such as unknown routes
func (h *ErrorHandler) HandleStatus(w http.ResponseWriter, r *http.Request, status int, message string) {
	h.logger.Debug("Request rejected by router",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
	)
	h.write(w, r, FromResponse(status, ErrorResponse{Message: message}))
}

func (h *ErrorHandler) write(w http.ResponseWriter, r *http.Request, appErr *AppError) {
	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}

	body := ErrorResponse{
		Error:     true,
		Type:      string(appErr.Type),
		Message:   appErr.Message,
		Code:      appErr.Code,
		Details:   appErr.Details,
		Retryable: appErr.Retryable,
		RequestID: requestIDFrom(r),
	}
	if h.debug && appErr.StackTrace != "" {
		details := make(map[string]interface{}, len(appErr.Details)+1)
		for k, v := range appErr.Details {
			details[k] = v
		}
		details["stack_trace"] = appErr.StackTrace
		body.Details = details
	}

	if appErr.Retryable || appErr.Type == ErrorTypeRateLimit {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode error response", zap.Error(err), zap.String("code", body.Code))
	}
}

// logError logs at a level matching how alarming the error is: server-side
// failures at error, routine sync outcomes at debug, other client errors at
// warn
func (h *ErrorHandler) logError(r *http.Request, err *AppError) {
	level := zapcore.WarnLevel
	switch {
	case err.HTTPStatus >= 500 || err.HTTPStatus == 0:
		level = zapcore.ErrorLevel
	case routineCodes[err.Code]:
		level = zapcore.DebugLevel
	}
	ce := h.logger.Check(level, err.Message)
	if ce == nil {
		return
	}

	fields := []zap.Field{
		zap.String("error_type", string(err.Type)),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", err.HTTPStatus),
		zap.String("request_id", requestIDFrom(r)),
	}
	if err.Code != "" {
		fields = append(fields, zap.String("error_code", err.Code))
	}
	if err.Cause != nil {
		fields = append(fields, zap.Error(err.Cause))
	}
	if len(err.Details) > 0 {
		fields = append(fields, zap.Any("details", err.Details))
	}
	ce.Write(fields...)
}

// StatusToErrorType maps HTTP status to error type
func StatusToErrorType(status int) string {
	if t, ok := statusTypes[status]; ok {
		return string(t)
	}
	return string(ErrorTypeInternal)
}

// FromResponse rebuilds an AppError from a decoded error body. HTTP clients
// use it so callers can test errors with the same helpers as the server.
func FromResponse(status int, body ErrorResponse) *AppError {
	errType := ErrorType(body.Type)
	if errType == "" {
		errType = ErrorType(StatusToErrorType(status))
	}
	message := body.Message
	if message == "" {
		message = http.StatusText(status)
	}
	return &AppError{
		Type:       errType,
		Message:    message,
		Code:       body.Code,
		Details:    body.Details,
		Retryable:  body.Retryable || status == http.StatusServiceUnavailable,
		HTTPStatus: status,
	}
}

// Middleware turns panics in next into 500 responses
func (h *ErrorHandler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.Handle(w, r, NewInternalError(fmt.Sprintf("panic: %v", rec)))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func requestIDFrom(r *http.Request) string {
	if id := middleware.GetReqID(r.Context()); id != "" {
		return id
	}
	return r.Header.Get("X-Request-ID")
}
