package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/portalgate/pkg/contextkeys"
	"github.com/platinummonkey/portalgate/pkg/httputil"
	"github.com/platinummonkey/portalgate/pkg/portal"
	"github.com/platinummonkey/portalgate/pkg/render"
)

// PageHandlers serves rendered pages and guest submission checks
type PageHandlers struct {
	pipeline *render.Pipeline
	logger   logrus.FieldLogger
}

// NewPageHandlers creates page handlers
func NewPageHandlers(pipeline *render.Pipeline, logger logrus.FieldLogger) *PageHandlers {
	return &PageHandlers{
		pipeline: pipeline,
		logger:   logger,
	}
}

// RegisterRoutes registers page routes
func (h *PageHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/orgs/{orgID}/pages/{slug}", h.RenderPage).Methods("GET")
	router.HandleFunc("/pages/{pageID}/guest-submissions/validate", h.ValidateGuestSubmission).Methods("POST")
}

// GuestSubmissionRequest is the body of a guest submission check
type GuestSubmissionRequest struct {
	Email string `json:"email"`
}

// RenderPage handles GET /orgs/{orgID}/pages/{slug}
func (h *PageHandlers) RenderPage(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathStringOrError(w, r, "orgID")
	if !ok {
		return
	}
	slug, ok := httputil.ParsePathStringOrError(w, r, "slug")
	if !ok {
		return
	}

	outcome, err := h.pipeline.Render(r.Context(), render.Request{
		Principal: contextkeys.GetPrincipal(r.Context()),
		OrgID:     orgID,
		Slug:      slug,
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		requestLogger(r, h.logger).WithError(err).WithFields(logrus.Fields{
			"org_id": orgID,
			"slug":   slug,
		}).Error("Page render failed")
		httputil.WriteInternalError(w)
		return
	}

	if !outcome.Allowed() {
		writeReason(w, outcome.Reason, outcome.ResetAt)
		return
	}
	_ = httputil.WriteSuccess(w, outcome.Page)
}

// ValidateGuestSubmission handles POST /pages/{pageID}/guest-submissions/validate.
// A rate limited guest gets 429; every other result is a 200 carrying the
// result body.
func (h *PageHandlers) ValidateGuestSubmission(w http.ResponseWriter, r *http.Request) {
	pageID, ok := httputil.ParsePathStringOrError(w, r, "pageID")
	if !ok {
		return
	}

	var req GuestSubmissionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	result, err := h.pipeline.ValidateGuestSubmission(r.Context(), pageID, req.Email, clientIP(r))
	if err != nil {
		requestLogger(r, h.logger).WithError(err).WithField("page_id", pageID).Error("Guest submission check failed")
		httputil.WriteInternalError(w)
		return
	}

	if result.Reason == portal.ReasonRateLimited {
		writeReason(w, result.Reason, result.ResetAt)
		return
	}
	_ = httputil.WriteSuccess(w, result)
}

func clientIP(r *http.Request) string {
	if ip := contextkeys.GetClientIP(r.Context()); ip != "" {
		return ip
	}
	return httputil.ClientIP(r)
}

// reasonStatus maps a denial reason to its HTTP status
func reasonStatus(reason portal.Reason) int {
	switch reason {
	case portal.ReasonNotFound:
		return http.StatusNotFound
	case portal.ReasonAuthenticationRequired:
		return http.StatusUnauthorized
	case portal.ReasonInsufficientRole, portal.ReasonInsufficientPermissions:
		return http.StatusForbidden
	case portal.ReasonRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusBadRequest
	}
}

// writeReason writes only the reason code, never which role or permission
// was missing
func writeReason(w http.ResponseWriter, reason portal.Reason, resetAt time.Time) {
	if reason == portal.ReasonRateLimited {
		httputil.WriteTooManyRequests(w, string(reason), resetAt)
		return
	}
	httputil.WriteErrorMessage(w, reasonStatus(reason), string(reason))
}
