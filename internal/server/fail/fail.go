package fail

import (
	"errors"
	"fmt"
	"github.com/cirruslabs/tensorcraft/internal/cache"
	"github.com/cirruslabs/tensorcraft/internal/model"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"net/http"
)

type response struct {
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
}

func Fail(c echo.Context, status int, format string, args ...interface{}) error {
	message := fmt.Sprintf(format, args...)

	zap.S().Warnf("%s %s: %s", c.Request().Method, c.Request().URL.Path, message)

	return c.JSON(status, &response{
		Message: message,
	})
}

// Error responds with the status code corresponding to the kind of err.
func Error(c echo.Context, err error) error {
	status := StatusCode(err)

	if status >= http.StatusInternalServerError {
		zap.S().Errorf("%s %s: %v", c.Request().Method, c.Request().URL.Path, err)
	} else {
		zap.S().Debugf("%s %s: %v", c.Request().Method, c.Request().URL.Path, err)
	}

	resp := &response{
		Message: err.Error(),
	}

	if kind := model.KindOf(err); kind != nil {
		resp.Kind = kind.Error()
	}

	return c.JSON(status, resp)
}

func StatusCode(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrModelFormat):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrLoadTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, model.ErrResourceExhausted), errors.Is(err, cache.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		// Inference and storage failures
		return http.StatusInternalServerError
	}
}
