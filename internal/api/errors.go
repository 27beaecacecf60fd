package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/discute/domain"
	"github.com/satriahrh/discute/internal/auth"
)

var statusByCode = map[string]int{
	domain.CodeLevelNotFound:        http.StatusNotFound,
	domain.CodeProgramNotFound:      http.StatusNotFound,
	domain.CodeSessionNotFound:      http.StatusNotFound,
	domain.CodeAudioNotFound:        http.StatusNotFound,
	domain.CodeNoProgram:            http.StatusNotFound,
	domain.CodeMissingAPIKey:        http.StatusBadRequest,
	domain.CodeNoAudio:              http.StatusBadRequest,
	domain.CodeProgramLevelMismatch: http.StatusBadRequest,
	domain.CodeAudioTooLarge:        http.StatusRequestEntityTooLarge,
	domain.CodeTurnInProgress:       http.StatusConflict,
	domain.CodeInvalidTransition:    http.StatusConflict,
	domain.CodeEmptyConversation:    http.StatusConflict,
	domain.CodeServiceAuth:          http.StatusBadGateway,
	domain.CodeServiceResponse:      http.StatusBadGateway,
	domain.CodeServiceNetwork:       http.StatusServiceUnavailable,
	domain.CodeMissingVariable:      http.StatusInternalServerError,
	domain.CodeInternal:             http.StatusInternalServerError,
}

// StatusFor maps an error to the HTTP status it is reported with
func StatusFor(err error) int {
	if status, ok := statusByCode[domain.ErrorCode(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// ErrorHandler renders every error as an ErrorResponse
func ErrorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var (
			status int
			body   ErrorResponse
			he     *echo.HTTPError
		)
		switch {
		case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrWrongSession):
			status = http.StatusUnauthorized
			body = ErrorResponse{Error: "invalid_token", Message: err.Error()}
		case errors.As(err, &he):
			status = he.Code
			body = ErrorResponse{Error: http.StatusText(he.Code), Message: errorMessage(he)}
		default:
			status = StatusFor(err)
			body = ErrorResponse{Error: domain.ErrorCode(err), Message: err.Error()}
		}

		if status >= http.StatusInternalServerError {
			logger.Error("Request failed",
				zap.String("path", c.Path()),
				zap.Int("status", status),
				zap.Error(err))
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
	}
}

func errorMessage(he *echo.HTTPError) string {
	if msg, ok := he.Message.(string); ok {
		return msg
	}
	return http.StatusText(he.Code)
}
