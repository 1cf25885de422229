package audit

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/portalgate/pkg/contextkeys"
	"github.com/platinummonkey/portalgate/pkg/httputil"
)

// Handlers provides HTTP handlers for the audit query surface. Callers are
// expected to gate the routes on the audit read permission; the handlers
// additionally restrict a principal to its own organization.
type Handlers struct {
	store  Store
	logger logrus.FieldLogger
}

// NewHandlers creates new audit handlers
func NewHandlers(store Store, logger logrus.FieldLogger) *Handlers {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handlers{
		store:  store,
		logger: logger,
	}
}

// RegisterRoutes registers audit routes on router
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/orgs/{orgID}/audit", h.orgHistory).Methods("GET")
	router.HandleFunc("/orgs/{orgID}/audit/entities/{entityType}/{entityID}", h.entityHistory).Methods("GET")
	router.HandleFunc("/orgs/{orgID}/audit/users/{userID}/activity", h.userActivity).Methods("GET")
	router.HandleFunc("/orgs/{orgID}/audit/export", h.export).Methods("GET")
}

// orgFromPath returns the {orgID} path value when the principal belongs to it
func (h *Handlers) orgFromPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	orgID, ok := httputil.ParsePathStringOrError(w, r, "orgID")
	if !ok {
		return "", false
	}

	principal := contextkeys.GetPrincipal(r.Context())
	if principal == nil {
		httputil.WriteUnauthorized(w, "authentication_required")
		return "", false
	}
	if principal.OrgID != orgID {
		httputil.WriteForbidden(w, "insufficient_permissions")
		return "", false
	}
	return orgID, true
}

// orgHistory handles GET /orgs/{orgID}/audit
func (h *Handlers) orgHistory(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.orgFromPath(w, r)
	if !ok {
		return
	}

	filter, err := parseOrgHistoryFilter(r, orgID)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	page, err := h.store.OrgHistory(r.Context(), filter)
	if err != nil {
		h.logger.WithError(err).WithField("org_id", orgID).Error("Failed to query org audit history")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, page)
}

// entityHistory handles GET /orgs/{orgID}/audit/entities/{entityType}/{entityID}
func (h *Handlers) entityHistory(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.orgFromPath(w, r)
	if !ok {
		return
	}

	vars := mux.Vars(r)
	entityType := EntityType(vars["entityType"])
	if !entityType.Valid() {
		httputil.WriteBadRequest(w, "invalid entity type")
		return
	}

	limit, err := httputil.ParseQueryInt(r, "limit", DefaultQueryLimit)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	entries, err := h.store.EntityHistory(r.Context(), orgID, entityType, vars["entityID"], limit)
	if err != nil {
		h.logger.WithError(err).WithField("org_id", orgID).Error("Failed to query entity audit history")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

// userActivity handles GET /orgs/{orgID}/audit/users/{userID}/activity
func (h *Handlers) userActivity(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.orgFromPath(w, r)
	if !ok {
		return
	}

	start, end, err := parseRange(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	summary, err := h.store.UserActivity(r.Context(), orgID, mux.Vars(r)["userID"], start, end)
	if err != nil {
		h.logger.WithError(err).WithField("org_id", orgID).Error("Failed to query user audit activity")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, summary)
}

// export handles GET /orgs/{orgID}/audit/export?format=
func (h *Handlers) export(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.orgFromPath(w, r)
	if !ok {
		return
	}

	format := ExportFormat(httputil.ParseQueryString(r, "format", string(ExportFormatJSON)))
	if !format.Valid() {
		httputil.WriteBadRequest(w, "unsupported export format")
		return
	}

	filter, err := parseOrgHistoryFilter(r, orgID)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", "attachment; filename=audit-log."+string(format))
	w.WriteHeader(http.StatusOK)

	// Headers are already sent; a failure here can only be logged.
	if err := Export(r.Context(), h.store, filter, format, w); err != nil {
		h.logger.WithError(err).WithField("org_id", orgID).Error("Audit export aborted")
	}
}

func parseRange(r *http.Request) (*time.Time, *time.Time, error) {
	start, err := httputil.ParseQueryTime(r, "start")
	if err != nil {
		return nil, nil, err
	}
	end, err := httputil.ParseQueryTime(r, "end")
	if err != nil {
		return nil, nil, err
	}
	return start, end, nil
}

func parseOrgHistoryFilter(r *http.Request, orgID string) (OrgHistoryFilter, error) {
	filter := OrgHistoryFilter{OrgID: orgID}

	start, end, err := parseRange(r)
	if err != nil {
		return filter, err
	}
	filter.Start = start
	filter.End = end

	if actions := r.URL.Query().Get("action"); actions != "" {
		for _, a := range strings.Split(actions, ",") {
			if a = strings.TrimSpace(a); a != "" {
				filter.Actions = append(filter.Actions, Action(a))
			}
		}
	}

	filter.UserID = r.URL.Query().Get("user_id")

	if filter.Limit, err = httputil.ParseQueryInt(r, "limit", DefaultQueryLimit); err != nil {
		return filter, err
	}
	if filter.Offset, err = httputil.ParseQueryInt(r, "offset", 0); err != nil {
		return filter, err
	}

	return filter, nil
}
