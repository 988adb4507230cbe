package apperr

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// Body is the JSON shape of every error response.
type Body struct {
	Error BodyError `json:"error"`
}

// BodyError is the inner object of Body.
type BodyError struct {
	Message   string       `json:"message"`
	Code      string       `json:"code"`
	Timestamp time.Time    `json:"timestamp"`
	Path      string       `json:"path"`
	Method    string       `json:"method"`
	Details   []FieldError `json:"details,omitempty"`
	Cause     string       `json:"cause,omitempty"`
	Stack     string       `json:"stack,omitempty"`
}

// Envelope builds the response body for e. Field details, the cause and the
// stack are only included when expose is true.
func Envelope(r *http.Request, e *Error, expose bool) Body {
	b := Body{Error: BodyError{
		Message:   e.Message,
		Code:      e.Code,
		Timestamp: time.Now().UTC(),
		Path:      r.URL.Path,
		Method:    r.Method,
	}}
	if expose {
		b.Error.Details = e.Details
		if e.Cause != nil {
			b.Error.Cause = e.Cause.Error()
		}
		b.Error.Stack = e.Stack
	}
	return b
}

// Write sends the envelope for err with its status code. 429 responses
// carry Retry-After when retryAfter is positive.
func Write(w http.ResponseWriter, r *http.Request, err error, expose bool, retryAfter time.Duration) {
	e := From(err)
	if e.Status == http.StatusTooManyRequests && retryAfter > 0 {
		secs := int(retryAfter.Round(time.Second) / time.Second)
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(e.Status)
	_ = json.NewEncoder(w).Encode(Envelope(r, e, expose))
}
