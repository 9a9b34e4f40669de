package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/repeatableai/Container-app-workflow-voice-sub001/internal/middleware"
	"github.com/repeatableai/Container-app-workflow-voice-sub001/internal/model"
	"github.com/repeatableai/Container-app-workflow-voice-sub001/internal/service"
	"github.com/repeatableai/Container-app-workflow-voice-sub001/internal/store"
	"github.com/repeatableai/Container-app-workflow-voice-sub001/pkg/logger"
)

// Handler serves the marketplace API
type Handler struct {
	svc           *service.Service
	hideForbidden bool
}

// New returns a Handler. With hideForbidden set, container reads answer
// 404 where the actor exists but may not see the container.
func New(svc *service.Service, hideForbidden bool) *Handler {
	return &Handler{svc: svc, hideForbidden: hideForbidden}
}

// Register mounts the API routes on an authenticated group. mutating
// wraps every route that changes state.
func (h *Handler) Register(api *echo.Group, mutating ...echo.MiddlewareFunc) {
	containers := api.Group("/containers")
	containers.GET("", h.ListContainers)
	containers.GET("/:id", h.GetContainer)
	containers.POST("", h.CreateContainer, mutating...)
	containers.PATCH("/:id", h.UpdateContainer, mutating...)
	containers.DELETE("/:id", h.DeleteContainer, mutating...)
	containers.POST("/:id/views", h.RecordView, mutating...)

	api.GET("/stats", h.GetStats)

	companies := api.Group("/companies")
	companies.POST("", h.CreateCompany, mutating...)
	companies.GET("/:id", h.GetCompany)
	companies.DELETE("/:id", h.DeleteCompany, mutating...)
	companies.GET("/:id/users", h.ListCompanyUsers)
	companies.GET("/:id/assignments", h.ListCompanyAssignments)
	companies.PUT("/:id/assignments/:containerId", h.AssignContainer, mutating...)
	companies.DELETE("/:id/assignments/:containerId", h.RevokeContainer, mutating...)

	users := api.Group("/users")
	users.POST("", h.CreateUser, mutating...)
	users.GET("/:id", h.GetUser)
	users.DELETE("/:id", h.DeleteUser, mutating...)
	users.GET("/:id/permissions", h.GetUserPermission)
	users.PATCH("/:id/permissions", h.SetUserPermission, mutating...)
}

// ListContainers handles GET /containers
func (h *Handler) ListContainers(c echo.Context) error {
	log := logger.FromContext(c)
	filter := store.ContainerFilter{
		Type:       model.ContainerType(c.QueryParam("type")),
		Search:     c.QueryParam("search"),
		Industry:   c.QueryParam("industry"),
		Department: c.QueryParam("department"),
	}
	if raw := c.QueryParam("marketplace"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			log.Warn("Invalid marketplace parameter", zap.String("value", raw))
			return badRequest(c, "marketplace must be true or false")
		}
		filter.Marketplace = &v
	}

	containers, err := h.svc.ListContainers(c.Request().Context(), middleware.UserID(c), filter)
	if err != nil {
		return h.fail(c, err, false)
	}
	log.Info("Containers listed", zap.Int("count", len(containers)))
	return c.JSON(http.StatusOK, containers)
}

// GetContainer handles GET /containers/:id
func (h *Handler) GetContainer(c echo.Context) error {
	container, err := h.svc.GetContainer(c.Request().Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		return h.fail(c, err, true)
	}
	return c.JSON(http.StatusOK, container)
}

// CreateContainer handles POST /containers
func (h *Handler) CreateContainer(c echo.Context) error {
	var draft service.ContainerDraft
	if err := c.Bind(&draft); err != nil {
		logger.FromContext(c).Warn("Invalid request data", zap.Error(err))
		return badRequest(c, "invalid request data")
	}
	container, err := h.svc.CreateContainer(c.Request().Context(), middleware.UserID(c), draft)
	if err != nil {
		return h.fail(c, err, false)
	}
	return c.JSON(http.StatusCreated, container)
}

// UpdateContainer handles PATCH /containers/:id
func (h *Handler) UpdateContainer(c echo.Context) error {
	var patch service.ContainerPatch
	if err := c.Bind(&patch); err != nil {
		logger.FromContext(c).Warn("Invalid request data", zap.Error(err))
		return badRequest(c, "invalid request data")
	}
	container, err := h.svc.UpdateContainer(c.Request().Context(), middleware.UserID(c), c.Param("id"), patch)
	if err != nil {
		return h.fail(c, err, true)
	}
	return c.JSON(http.StatusOK, container)
}

// DeleteContainer handles DELETE /containers/:id
func (h *Handler) DeleteContainer(c echo.Context) error {
	if err := h.svc.DeleteContainer(c.Request().Context(), middleware.UserID(c), c.Param("id")); err != nil {
		return h.fail(c, err, true)
	}
	return c.NoContent(http.StatusNoContent)
}

// RecordView handles POST /containers/:id/views
func (h *Handler) RecordView(c echo.Context) error {
	id := c.Param("id")
	views, err := h.svc.RecordView(c.Request().Context(), middleware.UserID(c), id)
	if err != nil {
		return h.fail(c, err, true)
	}
	return c.JSON(http.StatusOK, echo.Map{"id": id, "views": views})
}

// GetStats handles GET /stats
func (h *Handler) GetStats(c echo.Context) error {
	scope := model.StatsScope(c.QueryParam("scope"))
	stats, err := h.svc.GetStats(c.Request().Context(), middleware.UserID(c), scope)
	if err != nil {
		return h.fail(c, err, false)
	}
	return c.JSON(http.StatusOK, stats)
}

// CreateCompany handles POST /companies
func (h *Handler) CreateCompany(c echo.Context) error {
	var draft service.CompanyDraft
	if err := c.Bind(&draft); err != nil {
		return badRequest(c, "invalid request data")
	}
	company, err := h.svc.CreateCompany(c.Request().Context(), middleware.UserID(c), draft)
	if err != nil {
		return h.fail(c, err, false)
	}
	return c.JSON(http.StatusCreated, company)
}

// GetCompany handles GET /companies/:id
func (h *Handler) GetCompany(c echo.Context) error {
	company, err := h.svc.GetCompany(c.Request().Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		return h.fail(c, err, false)
	}
	return c.JSON(http.StatusOK, company)
}

// DeleteCompany handles DELETE /companies/:id
func (h *Handler) DeleteCompany(c echo.Context) error {
	if err := h.svc.DeleteCompany(c.Request().Context(), middleware.UserID(c), c.Param("id")); err != nil {
		return h.fail(c, err, false)
	}
	return c.NoContent(http.StatusNoContent)
}

// ListCompanyUsers handles GET /companies/:id/users
func (h *Handler) ListCompanyUsers(c echo.Context) error {
	users, err := h.svc.ListCompanyUsers(c.Request().Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		return h.fail(c, err, false)
	}
	return c.JSON(http.StatusOK, users)
}

// ListCompanyAssignments handles GET /companies/:id/assignments
func (h *Handler) ListCompanyAssignments(c echo.Context) error {
	rows, err := h.svc.ListCompanyAssignments(c.Request().Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		return h.fail(c, err, false)
	}
	return c.JSON(http.StatusOK, rows)
}

// AssignContainer handles PUT /companies/:id/assignments/:containerId
func (h *Handler) AssignContainer(c echo.Context) error {
	a, err := h.svc.AssignContainerToCompany(c.Request().Context(), middleware.UserID(c), c.Param("id"), c.Param("containerId"))
	if err != nil {
		return h.fail(c, err, true)
	}
	return c.JSON(http.StatusOK, a)
}

// RevokeContainer handles DELETE /companies/:id/assignments/:containerId
func (h *Handler) RevokeContainer(c echo.Context) error {
	err := h.svc.RevokeContainerFromCompany(c.Request().Context(), middleware.UserID(c), c.Param("id"), c.Param("containerId"))
	if err != nil {
		return h.fail(c, err, false)
	}
	return c.NoContent(http.StatusNoContent)
}

// CreateUser handles POST /users
func (h *Handler) CreateUser(c echo.Context) error {
	var draft service.UserDraft
	if err := c.Bind(&draft); err != nil {
		return badRequest(c, "invalid request data")
	}
	user, err := h.svc.CreateUser(c.Request().Context(), middleware.UserID(c), draft)
	if err != nil {
		return h.fail(c, err, false)
	}
	return c.JSON(http.StatusCreated, user)
}

// GetUser handles GET /users/:id
func (h *Handler) GetUser(c echo.Context) error {
	user, err := h.svc.GetUser(c.Request().Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		return h.fail(c, err, false)
	}
	return c.JSON(http.StatusOK, user)
}

// DeleteUser handles DELETE /users/:id
func (h *Handler) DeleteUser(c echo.Context) error {
	if err := h.svc.DeleteUser(c.Request().Context(), middleware.UserID(c), c.Param("id")); err != nil {
		return h.fail(c, err, false)
	}
	return c.NoContent(http.StatusNoContent)
}

// GetUserPermission handles GET /users/:id/permissions
func (h *Handler) GetUserPermission(c echo.Context) error {
	p, err := h.svc.GetUserPermission(c.Request().Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		return h.fail(c, err, false)
	}
	return c.JSON(http.StatusOK, p)
}

// SetUserPermission handles PATCH /users/:id/permissions
func (h *Handler) SetUserPermission(c echo.Context) error {
	var patch service.PermissionPatch
	if err := c.Bind(&patch); err != nil {
		return badRequest(c, "invalid request data")
	}
	p, err := h.svc.SetUserPermission(c.Request().Context(), middleware.UserID(c), c.Param("id"), patch)
	if err != nil {
		return h.fail(c, err, false)
	}
	return c.JSON(http.StatusOK, p)
}
