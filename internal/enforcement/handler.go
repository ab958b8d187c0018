package enforcement

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bindery/internal/logger"
	"bindery/pkg/errors"
)

type Handler struct {
	service Service
	logger  logger.Logger
}

func NewHandler(service Service, log logger.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  log,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		enforcement := v1.Group("/enforcement")
		{
			enforcement.POST("/check", h.CheckAction)
			enforcement.POST("/track", h.TrackAction)
		}
	}
}

type CheckActionRequest struct {
	Action string `json:"action" binding:"required"`
	Caller Caller `json:"caller"`
}

type TrackActionRequest struct {
	Action string `json:"action" binding:"required"`
	Caller Caller `json:"caller"`
	Delta  int64  `json:"delta"`
}

// CheckAction godoc
// @Summary      Check whether an action is allowed
// @Description  Evaluates the enforcement rules governing the named action for the given caller
// @Tags         enforcement
// @Accept       json
// @Produce      json
// @Param        request  body      CheckActionRequest  true  "Action and caller context"
// @Success      200      {object}  Result
// @Failure      400      {object}  errors.ErrorResponse
// @Router       /enforcement/check [post]
func (h *Handler) CheckAction(c *gin.Context) {
	var req CheckActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	result := h.service.CheckAction(c.Request.Context(), req.Action, req.Caller)
	c.JSON(http.StatusOK, result)
}

// TrackAction godoc
// @Summary      Record consumption for an action
// @Description  Increments the usage counters of every rule governing the action; best-effort
// @Tags         enforcement
// @Accept       json
// @Produce      json
// @Param        request  body  TrackActionRequest  true  "Action, caller context and delta"
// @Success      202  "accepted"
// @Failure      400  {object}  errors.ErrorResponse
// @Router       /enforcement/track [post]
func (h *Handler) TrackAction(c *gin.Context) {
	var req TrackActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	delta := req.Delta
	if delta == 0 {
		delta = 1
	}

	h.service.TrackAction(c.Request.Context(), req.Action, req.Caller, delta)
	c.Status(http.StatusAccepted)
}
