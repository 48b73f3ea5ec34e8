package api

import (
	"errors"
	"net/http"

	"github.com/GoCodeAlone/taskflow/internal/domain"
	"github.com/GoCodeAlone/taskflow/modules/notify"
	"github.com/GoCodeAlone/taskflow/modules/reminders"
)

var (
	ErrInvalidConfig = errors.New("invalid api configuration")
	ErrMissingToken  = errors.New("access denied, no token provided")
	ErrInvalidToken  = errors.New("invalid token")
	ErrAuthDisabled  = errors.New("authentication is not configured")
	ErrAdminRequired = errors.New("access denied, admin role required")
	ErrBadRequest    = errors.New("malformed request")
	ErrMissingField  = errors.New("required field missing")
	ErrUnavailable   = errors.New("feature not available")
)

// statusFor maps an error to its HTTP status. Every handler goes through
// here so the taxonomy is translated once.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, ErrMissingField):
		return http.StatusBadRequest
	case errors.Is(err, ErrMissingToken), errors.Is(err, ErrInvalidToken),
		errors.Is(err, ErrAuthDisabled), errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrAdminRequired), errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, reminders.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAmbiguous), errors.Is(err, domain.ErrRejected),
		errors.Is(err, reminders.ErrJobRunning):
		return http.StatusConflict
	case errors.Is(err, domain.ErrValidation), errors.Is(err, reminders.ErrNoPhone),
		errors.Is(err, reminders.ErrInvalidSpec):
		return http.StatusBadRequest
	case errors.Is(err, notify.ErrMissingSignature), errors.Is(err, notify.ErrInvalidSignature):
		return http.StatusUnauthorized
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
