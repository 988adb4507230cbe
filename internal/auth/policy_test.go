package auth

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePasswordPolicy(t *testing.T) {
	cases := map[string]bool{
		"Secret123":    true,
		"Abcdefg1":     true,
		"short1A":      false,
		"alllower1":    false,
		"ALLUPPER1":    false,
		"NoDigitsHere": false,
		"":             false,
	}
	for pw, valid := range cases {
		err := ValidatePasswordPolicy(pw)
		if valid {
			assert.NoError(t, err, pw)
			continue
		}
		var verr *ValidationError
		require.True(t, errors.As(err, &verr), pw)
		assert.Equal(t, "password", verr.Fields[0].Field)
	}
}

func TestRegisterInputValidate(t *testing.T) {
	valid := RegisterInput{
		Username: "jane.doe",
		Password: "Secret123",
		Name:     "Jane Doe",
		Email:    "jane@example.com",
		Role:     "auditor",
		Zones:    []string{"assembly"},
	}
	require.NoError(t, valid.Validate())

	bad := RegisterInput{
		Username: "j",
		Password: "weak",
		Name:     " ",
		Email:    "not-an-email",
		Role:     "owner",
		Zones:    []string{""},
	}
	err := bad.Validate()
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))

	fields := make([]string, 0, len(verr.Fields))
	for _, f := range verr.Fields {
		fields = append(fields, f.Field)
	}
	assert.ElementsMatch(t, []string{"username", "password", "name", "email", "role", "zones"}, fields)
}

func TestRegisterInputRejectsDisplayNameEmail(t *testing.T) {
	in := RegisterInput{Username: "jane", Password: "Secret123", Name: "Jane", Email: "Jane <jane@example.com>"}
	assert.Error(t, in.Validate())
}
