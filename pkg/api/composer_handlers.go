package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/portalgate/pkg/composer"
	"github.com/platinummonkey/portalgate/pkg/contextkeys"
	"github.com/platinummonkey/portalgate/pkg/httputil"
	"github.com/platinummonkey/portalgate/pkg/pages"
	"github.com/platinummonkey/portalgate/pkg/portal"
)

// ComposerHandlers exposes page, theme and datasource mutations. The
// organization is always the principal's own.
type ComposerHandlers struct {
	service *composer.Service
	logger  logrus.FieldLogger
}

// NewComposerHandlers creates composer handlers
func NewComposerHandlers(service *composer.Service, logger logrus.FieldLogger) *ComposerHandlers {
	return &ComposerHandlers{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers composer routes
func (h *ComposerHandlers) RegisterRoutes(router *mux.Router) {
	// Pages
	router.HandleFunc("/pages", h.CreatePage).Methods("POST")
	router.HandleFunc("/pages/{pageID}", h.UpdatePage).Methods("PUT")
	router.HandleFunc("/pages/{pageID}", h.pageTransition(h.service.DeletePage)).Methods("DELETE")
	router.HandleFunc("/pages/{pageID}/publish", h.pageTransition(h.service.PublishPage)).Methods("POST")
	router.HandleFunc("/pages/{pageID}/unpublish", h.pageTransition(h.service.UnpublishPage)).Methods("POST")
	router.HandleFunc("/pages/{pageID}/restore", h.pageTransition(h.service.RestorePage)).Methods("POST")

	// Themes
	router.HandleFunc("/themes", h.createResource(h.service.CreateTheme)).Methods("POST")
	router.HandleFunc("/themes/{id}", h.updateResource(h.service.UpdateTheme)).Methods("PUT")
	router.HandleFunc("/themes/{id}", h.resourceAction(h.service.DeleteTheme)).Methods("DELETE")
	router.HandleFunc("/themes/{id}/default", h.resourceAction(h.service.SetDefaultTheme)).Methods("POST")

	// Datasources
	router.HandleFunc("/datasources", h.createResource(h.service.CreateDatasource)).Methods("POST")
	router.HandleFunc("/datasources/{id}", h.updateResource(h.service.UpdateDatasource)).Methods("PUT")
	router.HandleFunc("/datasources/{id}", h.resourceAction(h.service.DeleteDatasource)).Methods("DELETE")
}

// CreatePage handles POST /pages
func (h *ComposerHandlers) CreatePage(w http.ResponseWriter, r *http.Request) {
	var in composer.PageInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}

	page, err := h.service.CreatePage(r.Context(), contextkeys.GetPrincipal(r.Context()), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	_ = httputil.WriteJSON(w, http.StatusCreated, page)
}

// UpdatePage handles PUT /pages/{pageID}
func (h *ComposerHandlers) UpdatePage(w http.ResponseWriter, r *http.Request) {
	pageID, ok := httputil.ParsePathStringOrError(w, r, "pageID")
	if !ok {
		return
	}
	var in composer.PageInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}

	page, err := h.service.UpdatePage(r.Context(), contextkeys.GetPrincipal(r.Context()), pageID, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, page)
}

type pageTransitionFunc func(ctx context.Context, principal *portal.Principal, pageID string) (*portal.Page, error)

func (h *ComposerHandlers) pageTransition(fn pageTransitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pageID, ok := httputil.ParsePathStringOrError(w, r, "pageID")
		if !ok {
			return
		}

		page, err := fn(r.Context(), contextkeys.GetPrincipal(r.Context()), pageID)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		_ = httputil.WriteSuccess(w, page)
	}
}

type createResourceFunc func(ctx context.Context, principal *portal.Principal, in composer.ResourceInput) (*pages.Resource, error)

func (h *ComposerHandlers) createResource(fn createResourceFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in composer.ResourceInput
		if !httputil.ParseJSONOrError(w, r, &in) {
			return
		}

		res, err := fn(r.Context(), contextkeys.GetPrincipal(r.Context()), in)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		_ = httputil.WriteJSON(w, http.StatusCreated, res)
	}
}

type updateResourceFunc func(ctx context.Context, principal *portal.Principal, id string, in composer.ResourceInput) (*pages.Resource, error)

func (h *ComposerHandlers) updateResource(fn updateResourceFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := httputil.ParsePathStringOrError(w, r, "id")
		if !ok {
			return
		}
		var in composer.ResourceInput
		if !httputil.ParseJSONOrError(w, r, &in) {
			return
		}

		res, err := fn(r.Context(), contextkeys.GetPrincipal(r.Context()), id, in)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		_ = httputil.WriteSuccess(w, res)
	}
}

// resourceAction serves delete and set-default, which answer 204
func (h *ComposerHandlers) resourceAction(fn func(ctx context.Context, principal *portal.Principal, id string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := httputil.ParsePathStringOrError(w, r, "id")
		if !ok {
			return
		}

		if err := fn(r.Context(), contextkeys.GetPrincipal(r.Context()), id); err != nil {
			h.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// writeError maps composer and store errors to HTTP statuses
func (h *ComposerHandlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, composer.ErrUnauthenticated):
		httputil.WriteUnauthorized(w, string(portal.ReasonAuthenticationRequired))
	case errors.Is(err, composer.ErrForbidden):
		httputil.WriteForbidden(w, string(portal.ReasonInsufficientPermissions))
	case errors.Is(err, pages.ErrNotFound):
		httputil.WriteNotFoundError(w, string(portal.ReasonNotFound))
	case errors.Is(err, composer.ErrInvalidInput):
		httputil.WriteBadRequest(w, err.Error())
	case errors.Is(err, pages.ErrSlugTaken):
		httputil.WriteErrorMessage(w, http.StatusConflict, err.Error())
	default:
		requestLogger(r, h.logger).WithError(err).Error("Composer mutation failed")
		httputil.WriteInternalError(w)
	}
}
