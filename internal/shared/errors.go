package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrValidationFailed indicates an unknown role/permission/program name or
	// a malformed selection in a mutation payload.
	ErrValidationFailed = errors.New("validation failed")
	// ErrUnauthorized indicates a missing or expired session.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden indicates the actor lacks the required permission.
	ErrForbidden = errors.New("forbidden")
	// ErrUnavailable indicates a store timeout or outage.
	ErrUnavailable = errors.New("store unavailable")
	// ErrInvalidSelection indicates a scoped operation attempted without a
	// complete scope key.
	ErrInvalidSelection = errors.New("invalid selection")
	// ErrSaveInProgress indicates a concurrent save on the same scope key.
	ErrSaveInProgress = errors.New("save already in progress")
	// ErrSuperseded indicates a write abandoned because a newer write to the
	// same scope key was issued before it could commit.
	ErrSuperseded = errors.New("write superseded")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// UserSafeMessage returns a message suitable for API consumers, hiding
// internals behind a generic text for unexpected errors.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrValidationFailed),
		errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrForbidden),
		errors.Is(err, ErrUnavailable),
		errors.Is(err, ErrInvalidSelection),
		errors.Is(err, ErrSaveInProgress),
		errors.Is(err, ErrSuperseded),
		errors.Is(err, ErrReplayedMutation):
		return err.Error()
	default:
		return "internal error"
	}
}
