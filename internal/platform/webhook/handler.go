package webhook

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/hl7bridge/internal/platform/db"
	"github.com/ehr/hl7bridge/pkg/pagination"
)

// Handler exposes endpoint management under the tenant of the request.
type Handler struct {
	manager *Manager
}

func NewHandler(manager *Manager) *Handler {
	return &Handler{manager: manager}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("", h.RegisterEndpoint)
	g.GET("", h.ListEndpoints)
	g.GET("/:id", h.GetEndpoint)
	g.DELETE("/:id", h.DeleteEndpoint)
	g.POST("/:id/test", h.TestEndpoint)
	g.GET("/:id/deliveries", h.ListDeliveries)
}

type registerRequest struct {
	URL    string   `json:"url"`
	Secret string   `json:"secret"`
	Events []string `json:"events"`
}

func (h *Handler) RegisterEndpoint(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	ep, err := h.manager.RegisterEndpoint(ctx, db.TenantFromContext(ctx), req.URL, req.Secret, req.Events)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, ep)
}

func (h *Handler) ListEndpoints(c echo.Context) error {
	pg := pagination.FromContext(c)
	ctx := c.Request().Context()
	eps, total, err := h.manager.store.ListEndpoints(ctx, db.TenantFromContext(ctx), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	// Secrets are shown once, at registration.
	redacted := make([]Endpoint, len(eps))
	for i, ep := range eps {
		redacted[i] = *ep
		redacted[i].Secret = ""
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(redacted, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetEndpoint(c echo.Context) error {
	ctx := c.Request().Context()
	ep, err := h.manager.store.GetEndpoint(ctx, db.TenantFromContext(ctx), c.Param("id"))
	if err != nil {
		return notFoundOr500(err)
	}
	out := *ep
	out.Secret = ""
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) DeleteEndpoint(c echo.Context) error {
	ctx := c.Request().Context()
	if err := h.manager.store.DeleteEndpoint(ctx, db.TenantFromContext(ctx), c.Param("id")); err != nil {
		return notFoundOr500(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) TestEndpoint(c echo.Context) error {
	ctx := c.Request().Context()
	attempt, err := h.manager.TestEndpoint(ctx, db.TenantFromContext(ctx), c.Param("id"))
	if err != nil {
		return notFoundOr500(err)
	}
	return c.JSON(http.StatusOK, attempt)
}

func (h *Handler) ListDeliveries(c echo.Context) error {
	pg := pagination.FromContext(c)
	ctx := c.Request().Context()
	tenantID := db.TenantFromContext(ctx)
	if _, err := h.manager.store.GetEndpoint(ctx, tenantID, c.Param("id")); err != nil {
		return notFoundOr500(err)
	}
	items, total, err := h.manager.store.ListDeliveries(ctx, tenantID, c.Param("id"), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func notFoundOr500(err error) error {
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "endpoint not found")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
