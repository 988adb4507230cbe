package auth

import "errors"

var (
	// ErrUnauthenticated is the parent of every credential or token failure.
	ErrUnauthenticated = errors.New("auth: unauthenticated")

	ErrTokenExpired   = &tokenError{msg: "token expired"}
	ErrTokenInvalid   = &tokenError{msg: "invalid token"}
	ErrTokenWrongKind = &tokenError{msg: "wrong token type"}

	// ErrInvalidCredentials covers unknown users, inactive users and wrong
	// passwords alike so callers cannot tell them apart.
	ErrInvalidCredentials = errors.New("auth: invalid username or password")
	ErrAccountInactive    = errors.New("auth: account missing or inactive")
	ErrUsernameTaken      = errors.New("auth: username already exists")
	ErrNotFound           = errors.New("auth: not found")
	ErrHashFailure        = errors.New("auth: password hashing failed")
	ErrMalformedHash      = errors.New("auth: malformed password hash")
	ErrListUnsupported    = errors.New("auth: user store cannot list accounts")
)

type tokenError struct{ msg string }

func (e *tokenError) Error() string { return e.msg }

func (e *tokenError) Is(target error) bool { return target == ErrUnauthenticated }

// ValidationError lists field-level input problems.
type ValidationError struct {
	Fields []FieldProblem
}

// FieldProblem is one invalid field.
type FieldProblem struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	return "validation failed: " + e.Fields[0].Field + ": " + e.Fields[0].Message
}

func (e *ValidationError) add(field, message string) {
	e.Fields = append(e.Fields, FieldProblem{Field: field, Message: message})
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}
