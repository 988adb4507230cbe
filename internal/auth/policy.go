package auth

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 128
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,50}$`)

// ValidatePasswordPolicy enforces length and character-class rules. It is a
// separate concern from hashing and runs at the input boundary.
func ValidatePasswordPolicy(password string) error {
	var v ValidationError
	checkPassword(&v, "password", password)
	return v.orNil()
}

func checkPassword(v *ValidationError, field, password string) {
	n := utf8.RuneCountInString(password)
	if n < minPasswordLength {
		v.add(field, "Password must be at least 8 characters long")
		return
	}
	if n > maxPasswordLength {
		v.add(field, "Password must be at most 128 characters long")
		return
	}
	var lower, upper, digit bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !lower || !upper || !digit {
		v.add(field, "Password must contain at least one lowercase letter, one uppercase letter, and one number")
	}
}

// RegisterInput is the payload accepted by Service.Register.
type RegisterInput struct {
	Username string
	Password string
	Name     string
	Email    string
	Role     string
	Team     string
	Zones    []string
}

// Validate checks every field and reports all problems at once.
func (in RegisterInput) Validate() error {
	var v ValidationError
	if !usernamePattern.MatchString(in.Username) {
		v.add("username", "Username must be 3-50 characters of letters, digits, '.', '_' or '-'")
	}
	checkPassword(&v, "password", in.Password)
	if name := strings.TrimSpace(in.Name); name == "" || utf8.RuneCountInString(name) > 100 {
		v.add("name", "Name is required and must be at most 100 characters")
	}
	if addr, err := mail.ParseAddress(strings.TrimSpace(in.Email)); err != nil || addr.Address != strings.TrimSpace(in.Email) {
		v.add("email", "Email must be a valid address")
	}
	if in.Role != "" {
		if _, ok := ParseRole(in.Role); !ok {
			v.add("role", "Role must be one of admin, auditor, supervisor, viewer")
		}
	}
	for _, z := range in.Zones {
		if strings.TrimSpace(z) == "" {
			v.add("zones", "Zone names must not be empty")
			break
		}
	}
	return v.orNil()
}
