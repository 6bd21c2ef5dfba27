package tariff

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/justdick/hms-billing/internal/platform/auth"
	"github.com/justdick/hms-billing/pkg/pagination"
)

type Handler struct {
	store *Store
}

func NewHandler(store *Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	admin := api.Group("", auth.RequireRole("admin", "insurance"))
	admin.POST("/tariffs", h.CreateTariff)
	admin.PUT("/tariffs/:id", h.UpdateTariff)
	admin.POST("/tariffs/import", h.ImportTariffs)
	admin.POST("/item-mappings", h.MapItem)
	admin.DELETE("/item-mappings/:item_type/:item_id", h.UnmapItem)

	read := api.Group("", auth.RequireRole("admin", "insurance", "billing"))
	read.GET("/tariffs", h.ListTariffs)
	read.GET("/tariffs/:id", h.GetTariff)
	read.GET("/item-mappings/:item_type/:item_id", h.GetMapping)
}

func (h *Handler) CreateTariff(c echo.Context) error {
	var t Tariff
	if err := c.Bind(&t); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.store.CreateTariff(c.Request().Context(), &t); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *Handler) GetTariff(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	t, err := h.store.GetTariff(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "tariff not found")
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) UpdateTariff(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var t Tariff
	if err := c.Bind(&t); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	t.ID = id
	if err := h.store.UpdateTariff(c.Request().Context(), &t); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) ListTariffs(c echo.Context) error {
	pg := pagination.FromContext(c)
	tariffs, total, err := h.store.ListTariffs(c.Request().Context(), c.QueryParam("category"), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(tariffs, total, pg.Limit, pg.Offset))
}

func (h *Handler) ImportTariffs(c echo.Context) error {
	var entries []*Tariff
	if err := c.Bind(&entries); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	applied, err := h.store.ImportTariffs(c.Request().Context(), entries)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"applied": applied,
			"error":   err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"applied": applied})
}

type mapItemRequest struct {
	ItemType string    `json:"item_type"`
	ItemID   uuid.UUID `json:"item_id"`
	Code     string    `json:"code"`
}

func (h *Handler) MapItem(c echo.Context) error {
	var req mapItemRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	m, err := h.store.MapItem(c.Request().Context(), req.ItemType, req.ItemID, req.Code)
	if err != nil {
		if errors.Is(err, ErrDuplicateMapping) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) GetMapping(c echo.Context) error {
	itemID, err := uuid.Parse(c.Param("item_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid item id")
	}
	m, err := h.store.FindMapping(c.Request().Context(), c.Param("item_type"), itemID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "mapping not found")
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) UnmapItem(c echo.Context) error {
	itemID, err := uuid.Parse(c.Param("item_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid item id")
	}
	if err := h.store.UnmapItem(c.Request().Context(), c.Param("item_type"), itemID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "mapping not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
