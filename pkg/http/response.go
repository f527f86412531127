package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// SuccessResponse writes data with 200.
func SuccessResponse(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, data)
}

// ErrorResponse writes the {error} body with the given status.
func ErrorResponse(c echo.Context, status int, message string) error {
	return c.JSON(status, ErrorBody{Error: message})
}

// BadRequestResponse writes a 400 {error}.
func BadRequestResponse(c echo.Context, message string) error {
	return ErrorResponse(c, http.StatusBadRequest, message)
}

// AppErrorResponse maps err through FromDomain and writes it.
func AppErrorResponse(c echo.Context, err error) error {
	appErr := FromDomain(err)
	if appErr == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return ErrorResponse(c, appErr.Status, appErr.Message)
}

// ErrorHandler renders errors escaping handlers, including echo's own 404
// and 405, as {error}.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	if he, ok := err.(*echo.HTTPError); ok {
		msg, ok := he.Message.(string)
		if !ok {
			msg = http.StatusText(he.Code)
		}
		_ = ErrorResponse(c, he.Code, msg)
		return
	}
	_ = AppErrorResponse(c, err)
}
