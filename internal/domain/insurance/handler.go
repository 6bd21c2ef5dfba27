package insurance

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/justdick/hms-billing/internal/platform/auth"
	"github.com/justdick/hms-billing/pkg/pagination"
)

type Handler struct {
	svc      *Service
	resolver *Resolver
	quoter   *Quoter
}

func NewHandler(svc *Service, resolver *Resolver, quoter *Quoter) *Handler {
	return &Handler{svc: svc, resolver: resolver, quoter: quoter}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	admin := api.Group("", auth.RequireRole("admin", "insurance"))
	admin.POST("/plans", h.CreatePlan)
	admin.GET("/plans", h.ListPlans)
	admin.GET("/plans/:id", h.GetPlan)
	admin.PUT("/plans/:id", h.UpdatePlan)
	admin.DELETE("/plans/:id", h.DeactivatePlan)
	admin.POST("/coverage-rules", h.CreateRule)
	admin.GET("/plans/:id/coverage-rules", h.ListRulesByPlan)
	admin.GET("/coverage-rules/:id", h.GetRule)
	admin.PUT("/coverage-rules/:id", h.UpdateRule)
	admin.DELETE("/coverage-rules/:id", h.DeactivateRule)
	admin.POST("/enrollments", h.Enroll)
	admin.GET("/enrollments/:id", h.GetEnrollment)
	admin.PUT("/enrollments/:id", h.UpdateEnrollment)

	read := api.Group("", auth.RequireRole("admin", "insurance", "billing"))
	read.GET("/patients/:id/enrollments", h.ListEnrollmentsByPatient)
	read.GET("/coverage/resolve", h.Resolve)
	read.POST("/coverage/quote", h.QuoteItem)
}

// -- Plans --

func (h *Handler) CreatePlan(c echo.Context) error {
	var p Plan
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreatePlan(c.Request().Context(), &p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPlan(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.GetPlan(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "plan not found")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPlans(c echo.Context) error {
	pg := pagination.FromContext(c)
	plans, total, err := h.svc.ListPlans(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(plans, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdatePlan(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var p Plan
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p.ID = id
	if err := h.svc.UpdatePlan(c.Request().Context(), &p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeactivatePlan(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeactivatePlan(c.Request().Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "plan not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Coverage rules --

func (h *Handler) CreateRule(c echo.Context) error {
	var r CoverageRule
	if err := c.Bind(&r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateRule(c.Request().Context(), &r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) GetRule(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	r, err := h.svc.GetRule(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "coverage rule not found")
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) ListRulesByPlan(c echo.Context) error {
	planID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid plan id")
	}
	pg := pagination.FromContext(c)
	rules, total, err := h.svc.ListRulesByPlan(c.Request().Context(), planID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(rules, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateRule(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var r CoverageRule
	if err := c.Bind(&r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r.ID = id
	if err := h.svc.UpdateRule(c.Request().Context(), &r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) DeactivateRule(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeactivateRule(c.Request().Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "coverage rule not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Enrollments --

func (h *Handler) Enroll(c echo.Context) error {
	var pi PatientInsurance
	if err := c.Bind(&pi); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.Enroll(c.Request().Context(), &pi); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, pi)
}

func (h *Handler) GetEnrollment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	pi, err := h.svc.GetEnrollment(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "enrollment not found")
	}
	return c.JSON(http.StatusOK, pi)
}

func (h *Handler) UpdateEnrollment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var pi PatientInsurance
	if err := c.Bind(&pi); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	pi.ID = id
	if err := h.svc.UpdateEnrollment(c.Request().Context(), &pi); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, pi)
}

func (h *Handler) ListEnrollmentsByPatient(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	out, err := h.svc.ListEnrollmentsByPatient(c.Request().Context(), patientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, out)
}

// -- Resolution & quoting --

func (h *Handler) Resolve(c echo.Context) error {
	category := c.QueryParam("category")
	itemCode := c.QueryParam("item_code")
	at := time.Now()
	if v := c.QueryParam("at"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid at timestamp")
		}
		at = parsed
	}

	ctx := c.Request().Context()
	if v := c.QueryParam("patient_id"); v != "" {
		patientID, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		rc, err := h.resolver.ResolveForPatient(ctx, patientID, category, itemCode, at)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return c.JSON(http.StatusOK, rc)
	}

	planID, err := uuid.Parse(c.QueryParam("plan_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "plan_id or patient_id is required")
	}
	rc, err := h.resolver.Resolve(ctx, planID, category, itemCode, at)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, rc)
}

func (h *Handler) QuoteItem(c echo.Context) error {
	var req QuoteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	quote, err := h.quoter.Quote(c.Request().Context(), req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, quote)
}
