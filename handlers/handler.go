package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"bite-me-buddy/apperr"
	"bite-me-buddy/middleware"
	"bite-me-buddy/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Handler wires HTTP endpoints to the service layer
type Handler struct {
	orders  *services.OrderService
	catalog *services.CatalogService
	users   *services.UserService
	plans   *services.PlanService
	stats   *services.StatsService
	tokens  *middleware.TokenManager
	log     logrus.FieldLogger
}

type Deps struct {
	Orders  *services.OrderService
	Catalog *services.CatalogService
	Users   *services.UserService
	Plans   *services.PlanService
	Stats   *services.StatsService
	Tokens  *middleware.TokenManager
	Log     logrus.FieldLogger
}

func New(d Deps) *Handler {
	return &Handler{
		orders:  d.Orders,
		catalog: d.Catalog,
		users:   d.Users,
		plans:   d.Plans,
		stats:   d.Stats,
		tokens:  d.Tokens,
		log:     d.Log.WithField("component", "http"),
	}
}

// fail translates a service error into a JSON response
func (h *Handler) fail(c *gin.Context, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		h.log.WithError(err).WithField("path", c.FullPath()).Error("unexpected error")
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	status := http.StatusInternalServerError
	switch appErr.Kind {
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindValidation:
		status = http.StatusBadRequest
		if _, ok := appErr.Details["current_status"]; ok {
			status = http.StatusUnprocessableEntity
		}
	case apperr.KindUnauthorized:
		status = http.StatusUnauthorized
	case apperr.KindForbidden:
		status = http.StatusForbidden
	case apperr.KindConflict:
		status = http.StatusConflict
	}

	body := gin.H{"error": appErr.Message}
	for k, v := range appErr.Details {
		body[k] = v
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// paramID parses a positive numeric path parameter, writing a 400 when it is not one
func paramID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(id), true
}

func actorOf(c *gin.Context) services.Actor {
	return services.Actor{UserID: middleware.GetUserID(c), Role: middleware.GetRole(c)}
}
