package handlers

import (
	stderrors "errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/mroshb/rallypoint/pkg/errors"
	"github.com/mroshb/rallypoint/pkg/logger"
)

type errorBody struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

var statusByCode = map[string]int{
	errors.ErrCodeValidation:          http.StatusBadRequest,
	errors.ErrCodeUnauthorized:        http.StatusUnauthorized,
	errors.ErrCodeForbidden:           http.StatusForbidden,
	errors.ErrCodeNotFound:            http.StatusNotFound,
	errors.ErrCodeAlreadyExists:       http.StatusConflict,
	errors.ErrCodeInsufficientUnits:   http.StatusConflict,
	errors.ErrCodeRecallWindowExpired: http.StatusConflict,
	errors.ErrCodeInvalidTransition:   http.StatusConflict,
	errors.ErrCodeIdempotencyConflict: http.StatusConflict,
	errors.ErrCodeUnreachableArrival:  http.StatusUnprocessableEntity,
	errors.ErrCodeRateLimitExceeded:   http.StatusTooManyRequests,
}

// StatusFor maps an error code to its HTTP status.
func StatusFor(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// HTTPErrorHandler renders AppErrors, validation failures and echo errors as one JSON shape.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	body := errorBody{Code: errors.ErrCodeInternalError, Message: "internal error"}
	status := http.StatusInternalServerError

	var appErr *errors.AppError
	var verrs validator.ValidationErrors
	var httpErr *echo.HTTPError
	switch {
	case stderrors.As(err, &appErr):
		status = StatusFor(appErr.Code)
		body.Code, body.Details = appErr.Code, appErr.Details
		if status != http.StatusInternalServerError {
			body.Message = appErr.Message
		}
	case stderrors.As(err, &verrs):
		status = http.StatusBadRequest
		body.Code, body.Message = errors.ErrCodeValidation, "request validation failed"
		fields := make(map[string]interface{}, len(verrs))
		for _, fe := range verrs {
			fields[fe.Namespace()] = fe.Tag()
		}
		body.Details = map[string]interface{}{"fields": fields}
	case stderrors.As(err, &httpErr):
		status = httpErr.Code
		body.Code = http.StatusText(status)
		if msg, ok := httpErr.Message.(string); ok {
			body.Message = msg
		}
		if status == http.StatusBadRequest {
			body.Code = errors.ErrCodeValidation
		}
	}

	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", "method", c.Request().Method, "path", c.Path(), "error", err)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, map[string]errorBody{"error": body})
	}
	if err != nil {
		logger.Warn("Failed to write error response", "error", err)
	}
}

// RequestLogger logs one line per request through the package logger.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			logger.Debug("Request handled",
				"method", c.Request().Method,
				"path", c.Path(),
				"status", c.Response().Status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return nil
		}
	}
}
