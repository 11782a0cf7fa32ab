// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/roledir/roledir/internal/shared"
)

// RespondError maps core errors to HTTP responses using RFC7807. Each
// entry in the failure taxonomy keeps its own status and detail so
// callers can tell the denial reasons apart; anything unrecognized is a
// 500 with no internal detail leaked.
func RespondError(w http.ResponseWriter, err error) {
	var (
		validationErr *shared.ValidationError
		forbiddenErr  *shared.ForbiddenError
		authErr       *shared.AuthError
	)
	switch {
	case errors.Is(err, shared.ErrUnauthenticated):
		Problem(w, http.StatusUnauthorized, "Unauthenticated", "request carries no resolvable identity")
	case errors.Is(err, shared.ErrCredentialsNeeded):
		Problem(w, http.StatusUnauthorized, "Credentials Needed", err.Error())
	case errors.As(err, &authErr):
		Problem(w, http.StatusUnauthorized, "Authentication Failed", authErr.Error())
	case errors.As(err, &forbiddenErr):
		Problem(w, http.StatusForbidden, "Forbidden", forbiddenErr.Error())
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrDuplicate):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.As(err, &validationErr):
		Problem(w, http.StatusBadRequest, "Validation Failed", validationErr.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
