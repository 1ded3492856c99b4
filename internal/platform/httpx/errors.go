package httpx

import (
	"errors"
	"net/http"

	"github.com/voyagehq/voyage/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807. The status
// codes are part of the API contract: 422 marks a rejected mutation payload,
// 409 a concurrent or superseded save on the same scope key, 503 a store
// outage the client may retry with backoff.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrValidationFailed):
		Problem(w, http.StatusUnprocessableEntity, "Validation Failed", shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrInvalidSelection):
		Problem(w, http.StatusBadRequest, "Invalid Selection", shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrUnauthorized), errors.Is(err, shared.ErrInvalidCredentials):
		Problem(w, http.StatusUnauthorized, "Unauthorized", shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrSaveInProgress), errors.Is(err, shared.ErrSuperseded), errors.Is(err, shared.ErrReplayedMutation):
		Problem(w, http.StatusConflict, "Conflict", shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrUnavailable):
		Problem(w, http.StatusServiceUnavailable, "Unavailable", shared.UserSafeMessage(err))
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
