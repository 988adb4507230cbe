package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"fives.org/internal/apperr"
	"fives.org/internal/audit"
	"fives.org/internal/auth"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerRequest struct {
	Username string   `json:"username"`
	Password string   `json:"password"`
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	Role     string   `json:"role"`
	Team     string   `json:"team"`
	Zones    []string `json:"zones"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type tokenResponse struct {
	AccessToken  string     `json:"accessToken"`
	RefreshToken string     `json:"refreshToken"`
	User         *auth.User `json:"user,omitempty"`
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeAppError(w, r, badBody(err))
		return
	}
	var missing []apperr.FieldError
	if strings.TrimSpace(req.Username) == "" {
		missing = append(missing, apperr.FieldError{Field: "username", Message: "Username is required"})
	}
	if req.Password == "" {
		missing = append(missing, apperr.FieldError{Field: "password", Message: "Password is required"})
	}
	if len(missing) > 0 {
		a.writeAppError(w, r, apperr.Validation("Validation failed", missing...))
		return
	}

	audit.Attribute(r.Context(), audit.Actor{Username: req.Username})
	res, err := a.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		a.writeAppError(w, r, auth.AppError(err))
		return
	}
	audit.Attribute(r.Context(), audit.Actor{UserID: res.User.ID, Username: res.User.Username})
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  res.Tokens.AccessToken,
		RefreshToken: res.Tokens.RefreshToken,
		User:         &res.User,
	})
}

func (a *API) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeAppError(w, r, badBody(err))
		return
	}
	audit.Attribute(r.Context(), audit.Actor{Username: req.Username})
	user, err := a.auth.Register(r.Context(), auth.RegisterInput{
		Username: req.Username,
		Password: req.Password,
		Name:     req.Name,
		Email:    req.Email,
		Role:     req.Role,
		Team:     req.Team,
		Zones:    req.Zones,
	})
	if err != nil {
		a.writeAppError(w, r, auth.AppError(err))
		return
	}
	audit.Attribute(r.Context(), audit.Actor{UserID: user.ID, Username: user.Username})
	audit.AddDetail(r.Context(), "role", string(user.Role))
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "User registered successfully",
		"user":    user,
	})
}

func (a *API) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeAppError(w, r, badBody(err))
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		a.writeAppError(w, r, apperr.Validation("Validation failed",
			apperr.FieldError{Field: "refreshToken", Message: "Refresh token is required"}))
		return
	}
	pair, err := a.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		a.writeAppError(w, r, auth.AppError(err))
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

func (a *API) me(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())
	user, err := a.auth.Profile(r.Context(), id.ID)
	if err != nil {
		a.writeAppError(w, r, auth.AppError(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (a *API) changePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeAppError(w, r, badBody(err))
		return
	}
	id, _ := auth.IdentityFromContext(r.Context())
	if err := a.auth.ChangePassword(r.Context(), id.ID, req.CurrentPassword, req.NewPassword); err != nil {
		e := auth.AppError(err)
		if errors.Is(err, auth.ErrInvalidCredentials) {
			e = apperr.Authentication("Current password is incorrect")
		}
		a.writeAppError(w, r, e)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Password changed successfully"})
}

// logout only acknowledges; tokens stay valid until they expire.
func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"message": "Logged out successfully"})
}

func (a *API) session(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"username":      id.Username,
		"role":          id.Role,
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func badBody(err error) *apperr.Error {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		return apperr.Validation("Request body too large")
	}
	return apperr.Validation("Invalid request body", apperr.FieldError{Field: "body", Message: err.Error()})
}
