package auth

import (
	"errors"

	"fives.org/internal/apperr"
)

// AppError maps auth failures onto the application error taxonomy. Errors
// it does not recognise pass through apperr.From.
func AppError(err error) *apperr.Error {
	var verr *ValidationError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &verr):
		details := make([]apperr.FieldError, 0, len(verr.Fields))
		for _, f := range verr.Fields {
			details = append(details, apperr.FieldError{Field: f.Field, Message: f.Message})
		}
		return apperr.Validation("Validation failed", details...)
	case errors.Is(err, ErrTokenExpired):
		return apperr.Authentication("Token expired").WithCode(apperr.CodeTokenExpired)
	case errors.Is(err, ErrTokenInvalid), errors.Is(err, ErrTokenWrongKind):
		return apperr.Authentication("Invalid token").WithCode(apperr.CodeTokenInvalid)
	case errors.Is(err, ErrInvalidCredentials):
		return apperr.Authentication("Invalid username or password")
	case errors.Is(err, ErrAccountInactive):
		return apperr.Authentication("User not found or inactive")
	case errors.Is(err, ErrUnauthenticated):
		return apperr.Authentication("Authentication required")
	case errors.Is(err, ErrUsernameTaken):
		return apperr.Conflict("Username already exists")
	case errors.Is(err, ErrNotFound):
		return apperr.NotFound("User not found")
	default:
		return apperr.From(err)
	}
}
