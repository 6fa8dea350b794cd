package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/furniture-storefront/internal/apperr"
)

// ErrorHandler is installed as echo's HTTPErrorHandler and is the single
// place errors become responses.  Classified errors keep their status and
// message; echo's own errors keep their status; anything else is a logged
// 500 with a generic message.
func ErrorHandler(log logrus.FieldLogger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		body := echo.Map{"success": false}

		var (
			ae *apperr.Error
			he *echo.HTTPError
		)
		switch {
		case errors.As(err, &ae):
			status = apperr.Status(ae.Kind)
			body["code"] = string(ae.Kind)
			for k, v := range ae.Fields {
				body[k] = v
			}
			if status == http.StatusInternalServerError {
				body["error"] = "internal server error"
			} else {
				body["error"] = ae.Message
			}
		case errors.As(err, &he):
			status = he.Code
			body["error"] = fmt.Sprint(he.Message)
			if status == http.StatusInternalServerError {
				body["error"] = "internal server error"
			}
		default:
			body["code"] = string(apperr.KindInternal)
			body["error"] = "internal server error"
		}

		if status >= http.StatusInternalServerError {
			log.WithError(err).WithFields(logrus.Fields{
				"method": c.Request().Method,
				"path":   c.Path(),
				"status": status,
			}).Errorf("request failed: %+v", err)
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, body)
		}
		if werr != nil {
			log.WithError(werr).Error("write error response")
		}
	}
}

// bind decodes the request body into v and reports malformed input as a
// validation error.
func bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return apperr.Validation("invalid request body")
	}
	return nil
}

func ok(c echo.Context, status int, body echo.Map) error {
	if body == nil {
		body = echo.Map{}
	}
	body["success"] = true
	return c.JSON(status, body)
}
