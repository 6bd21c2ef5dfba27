package billing

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/justdick/hms-billing/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	clinical := api.Group("", auth.RequireRole("admin", "billing", "clinical"))
	clinical.POST("/charges", h.CreateCharge)
	clinical.GET("/charges/:id", h.GetCharge)
	clinical.GET("/checkins/:id/charges", h.ListCharges)
	clinical.GET("/checkins/:id/gate", h.Evaluate)

	billing := api.Group("", auth.RequireRole("admin", "billing"))
	billing.POST("/charges/:id/pay", h.MarkPaid)
	billing.POST("/charges/:id/void", h.Void)
	billing.GET("/gate-rules", h.ListGateRules)
	billing.POST("/gate-rules", h.CreateGateRule)
	billing.PUT("/gate-rules/:id", h.UpdateGateRule)

	supervisor := api.Group("", auth.RequireRole("admin", "supervisor"))
	supervisor.POST("/overrides", h.GrantOverride)
	supervisor.GET("/checkins/:id/overrides", h.ListOverrides)
	supervisor.POST("/overrides/:id/revoke", h.RevokeOverride)
}

func (h *Handler) CreateCharge(c echo.Context) error {
	var req NewCharge
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	charge, err := h.svc.CreateCharge(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, ErrAlreadyCharged) {
			// The existing charge is the response; the status signals
			// the duplicate.
			return c.JSON(http.StatusConflict, charge)
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, charge)
}

func (h *Handler) GetCharge(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	charge, err := h.svc.GetCharge(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "charge not found")
	}
	return c.JSON(http.StatusOK, charge)
}

func (h *Handler) ListCharges(c echo.Context) error {
	checkinID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid checkin id")
	}
	ctx := c.Request().Context()
	if serviceType := c.QueryParam("service_type"); serviceType != "" {
		charges, err := h.svc.ListPending(ctx, checkinID, serviceType, c.QueryParam("service_code"))
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return c.JSON(http.StatusOK, charges)
	}
	charges, err := h.svc.ListCharges(ctx, checkinID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, charges)
}

func (h *Handler) Evaluate(c echo.Context) error {
	checkinID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid checkin id")
	}
	serviceType := c.QueryParam("service_type")
	if serviceType == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "service_type is required")
	}
	d, err := h.svc.Evaluate(c.Request().Context(), checkinID, serviceType, c.QueryParam("service_code"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) MarkPaid(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.MarkPaid(c.Request().Context(), id); err != nil {
		if errors.Is(err, ErrNotPending) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Void(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Void(c.Request().Context(), id); err != nil {
		if errors.Is(err, ErrNotPending) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) GrantOverride(c echo.Context) error {
	var req GrantOverrideRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.AuthorizedBy == "" {
		req.AuthorizedBy = auth.UserIDFromContext(c.Request().Context())
	}
	o, err := h.svc.GrantOverride(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, ErrOverrideNotAllowed) {
			return echo.NewHTTPError(http.StatusForbidden, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, o)
}

func (h *Handler) ListOverrides(c echo.Context) error {
	checkinID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid checkin id")
	}
	out, err := h.svc.ActiveOverrides(c.Request().Context(), checkinID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) RevokeOverride(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.RevokeOverride(c.Request().Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "override not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) CreateGateRule(c echo.Context) error {
	var r ServiceChargeRule
	if err := c.Bind(&r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateGateRule(c.Request().Context(), &r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) UpdateGateRule(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var r ServiceChargeRule
	if err := c.Bind(&r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r.ID = id
	if err := h.svc.UpdateGateRule(c.Request().Context(), &r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) ListGateRules(c echo.Context) error {
	rules, err := h.svc.ListGateRules(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, rules)
}
