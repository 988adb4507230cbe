package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                          "/",
		"/metrics":                  "/metrics",
		"/health":                   "/health",
		"/ws?token=abc":             "/ws",
		"/api/auth/login":           "/api/auth/login",
		"/api/auth/me/":             "/api/auth/me",
		"/api/admin/sweeps/overdue": "/api/admin/sweeps/:kind",
		"/api/zones/7":              "/api/:unmatched",
		"/favicon.ico":              "/:other",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()
	RecordAuthEvent("login", true)
	RateLimited("auth")
	NotificationDispatched("email", "action_overdue")
	SetReady(true)
}
