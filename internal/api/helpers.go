package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"
)

func writeBadRequest(c *echo.Context, param, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg, param)
}

func writeNotFound(c *echo.Context, msg string) error {
	return writeError(c, http.StatusNotFound, "not_found_error", msg, "")
}

func writeError(c *echo.Context, status int, errType, msg, param string) error {
	return c.JSON(status, map[string]any{
		"error": ResponseError{
			Message: msg,
			Type:    errType,
			Param:   param,
		},
	})
}

// writeFailure reports a generation error with the status its kind maps to.
func writeFailure(c *echo.Context, err error) error {
	status, errType := classify(err)
	var ire invalidRequestError
	param := ""
	if errors.As(err, &ire) {
		param = ire.param
	}
	return writeError(c, status, errType, err.Error(), param)
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		if errors.Is(err, io.EOF) {
			return out, fmt.Errorf("request body is empty")
		}
		return out, err
	}
	return out, nil
}

func newGenerationID() string {
	return "gen_" + uuid.NewString()
}
