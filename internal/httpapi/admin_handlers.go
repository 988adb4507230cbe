package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"fives.org/internal/apperr"
	"fives.org/internal/audit"
	"fives.org/internal/auth"
	"fives.org/internal/notify"
)

const (
	sweepOverdueActions = "overdue-actions"
	sweepLowScoreAudits = "low-score-audits"
)

type connectionInfo struct {
	Username      string   `json:"username"`
	Connections   int      `json:"connections"`
	Subscriptions []string `json:"subscriptions"`
}

func (a *API) auditLogs(w http.ResponseWriter, r *http.Request) {
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 100, 1, audit.DefaultCapacity)
	if err != nil {
		a.writeAppError(w, r, apperr.Validation("Invalid query",
			apperr.FieldError{Field: "limit", Message: err.Error()}))
		return
	}
	entries, err := a.audit.Recent(r.Context(), limit)
	if err != nil {
		a.writeAppError(w, r, apperr.Internal("Audit log unavailable", err))
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

func (a *API) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.auth.ListUsers(r.Context())
	if errors.Is(err, auth.ErrListUnsupported) {
		a.routeNotFound(w, r)
		return
	}
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"users": users,
		"count": len(users),
	})
}

func (a *API) connections(w http.ResponseWriter, r *http.Request) {
	users := []connectionInfo{}
	total := 0
	if a.registry != nil {
		for _, name := range a.registry.ConnectedUsers() {
			n := a.registry.ConnectionCount(name)
			total += n
			subs := a.registry.Subscriptions(name)
			if subs == nil {
				subs = []string{}
			}
			users = append(users, connectionInfo{Username: name, Connections: n, Subscriptions: subs})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"users": users,
		"total": total,
	})
}

func (a *API) runSweep(w http.ResponseWriter, r *http.Request) {
	if a.notify == nil {
		a.writeAppError(w, r, apperr.NotFound("Notifications are not configured"))
		return
	}
	kind := mux.Vars(r)["kind"]
	var (
		n   int
		err error
	)
	switch kind {
	case sweepOverdueActions:
		n, err = a.notify.SweepOverdueActions(r.Context(), a.now())
	case sweepLowScoreAudits:
		n, err = a.notify.SweepLowScoreAudits(r.Context())
	default:
		a.writeAppError(w, r, apperr.Validation("Unknown sweep", apperr.FieldError{
			Field:   "kind",
			Message: "kind must be one of " + strings.Join([]string{sweepOverdueActions, sweepLowScoreAudits}, ", "),
		}))
		return
	}
	if err != nil {
		if errors.Is(err, notify.ErrNoWorkSource) {
			a.writeAppError(w, r, apperr.NotFound("No work source configured"))
			return
		}
		a.writeAppError(w, r, apperr.Internal("Sweep failed", err))
		return
	}
	id, _ := auth.IdentityFromContext(r.Context())
	a.log.WithFields(logrus.Fields{
		"sweep":     kind,
		"triggered": n,
		"by":        id.Username,
	}).Info("manual sweep")
	writeJSON(w, http.StatusOK, map[string]any{
		"sweep":     kind,
		"triggered": n,
	})
}

func parsePositiveInt(raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("limit must be an integer")
	}
	if val < min || val > max {
		return 0, errors.New("limit must be between " + strconv.Itoa(min) + " and " + strconv.Itoa(max))
	}
	return val, nil
}
