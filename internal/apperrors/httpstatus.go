package apperrors

import (
	"errors"
	"net/http"
)

// HTTPStatus maps an error-kind sentinel to the HTTP status the
// Control-Plane API should return for it. It returns (0, false) when err
// does not match any recognized kind, letting the caller pick a default.
func HTTPStatus(err error) (status int, ok bool) {
	if err == nil {
		return 0, false
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, true
	case errors.Is(err, ErrPrecondition):
		return http.StatusConflict, true
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, true
	case errors.Is(err, ErrTransport):
		return http.StatusBadGateway, true
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout, true
	case errors.Is(err, ErrInternalInvariant):
		return http.StatusInternalServerError, true
	default:
		return 0, false
	}
}
