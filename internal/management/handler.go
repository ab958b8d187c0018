package management

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"bindery/internal/logger"
	"bindery/pkg/errors"
	"bindery/pkg/logging"
)

type BaseHandler struct {
	Service Service
	Logger  logger.Logger
}

func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	h.Logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)

	status := errors.ToHTTPStatus(err)
	response := errors.ToErrorResponse(err)

	c.JSON(status, response)
}

type Handler struct {
	BaseHandler
}

func NewHandler(service Service, log logger.Logger) *Handler {
	return &Handler{
		BaseHandler: BaseHandler{
			Service: service,
			Logger:  log,
		},
	}
}

// ActorMiddleware lifts the authenticated identity headers into the request
// context. Identity verification itself happens at the edge; this service
// only reads the result.
func ActorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := Actor{
			UserID: c.GetHeader("X-User-ID"),
			Role:   c.GetHeader("X-User-Role"),
		}

		ctx := WithActor(c.Request.Context(), actor)
		if actor.UserID != "" {
			ctx = context.WithValue(ctx, logging.UserIDKey, actor.UserID)
		}
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		rules := v1.Group("/rules")
		{
			rules.GET("", h.ListRules)
			rules.POST("", h.CreateRule)
			rules.POST("/from-template", h.CreateRuleFromTemplate)
			rules.GET("/templates", h.ListTemplates)
			rules.GET("/:id", h.GetRule)
			rules.PUT("/:id", h.UpdateRule)
			rules.DELETE("/:id", h.DeleteRule)
			rules.PATCH("/:id/enabled", h.SetRuleEnabled)
			rules.GET("/:id/usage", h.GetRuleUsage)
			rules.GET("/:id/versions", h.GetRuleVersions)
			rules.GET("/:id/audit", h.GetRuleAuditLogs)
		}

		audit := v1.Group("/audit")
		{
			audit.GET("/logs", h.GetAuditLogs)
		}
	}
}

// ListRules godoc
// @Summary      List all enforcement rules
// @Description  Get every rule in the catalog, enabled or not
// @Tags         rules
// @Accept       json
// @Produce      json
// @Success      200  {array}   rules.Rule
// @Failure      403  {object}  errors.ErrorResponse
// @Failure      500  {object}  errors.ErrorResponse
// @Router       /rules [get]
func (h *Handler) ListRules(c *gin.Context) {
	listed, err := h.Service.ListRules(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, listed)
}

// CreateRule godoc
// @Summary      Create an enforcement rule
// @Description  Create a rule with an explicit typed config
// @Tags         rules
// @Accept       json
// @Produce      json
// @Param        rule  body      CreateRuleRequest  true  "Rule data"
// @Success      201   {object}  rules.Rule
// @Failure      400   {object}  errors.ErrorResponse
// @Failure      403   {object}  errors.ErrorResponse
// @Failure      409   {object}  errors.ErrorResponse
// @Router       /rules [post]
func (h *Handler) CreateRule(c *gin.Context) {
	var req CreateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	rule, err := h.Service.CreateRule(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, rule)
}

// CreateRuleFromTemplate godoc
// @Summary      Create a rule from a built-in template
// @Description  Instantiate a named template with optional overrides
// @Tags         rules
// @Accept       json
// @Produce      json
// @Param        request  body      CreateFromTemplateRequest  true  "Template key and overrides"
// @Success      201      {object}  rules.Rule
// @Failure      400      {object}  errors.ErrorResponse
// @Failure      403      {object}  errors.ErrorResponse
// @Router       /rules/from-template [post]
func (h *Handler) CreateRuleFromTemplate(c *gin.Context) {
	var req CreateFromTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	rule, err := h.Service.CreateRuleFromTemplate(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, rule)
}

// ListTemplates godoc
// @Summary      List rule templates
// @Tags         rules
// @Produce      json
// @Success      200  {array}  string
// @Router       /rules/templates [get]
func (h *Handler) ListTemplates(c *gin.Context) {
	c.JSON(http.StatusOK, h.Service.ListTemplates(c.Request.Context()))
}

// GetRule godoc
// @Summary      Get a rule by ID
// @Tags         rules
// @Produce      json
// @Param        id   path      string  true  "Rule ID"
// @Success      200  {object}  rules.Rule
// @Failure      403  {object}  errors.ErrorResponse
// @Failure      404  {object}  errors.ErrorResponse
// @Router       /rules/{id} [get]
func (h *Handler) GetRule(c *gin.Context) {
	rule, err := h.Service.GetRule(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

// UpdateRule godoc
// @Summary      Update a rule
// @Description  Partial update; omitted fields keep their values
// @Tags         rules
// @Accept       json
// @Produce      json
// @Param        id    path      string             true  "Rule ID"
// @Param        rule  body      UpdateRuleRequest  true  "Fields to update"
// @Success      200   {object}  rules.Rule
// @Failure      400   {object}  errors.ErrorResponse
// @Failure      403   {object}  errors.ErrorResponse
// @Failure      404   {object}  errors.ErrorResponse
// @Router       /rules/{id} [put]
func (h *Handler) UpdateRule(c *gin.Context) {
	var req UpdateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	rule, err := h.Service.UpdateRule(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, rule)
}

// DeleteRule godoc
// @Summary      Delete a rule
// @Description  Removes the rule and its accumulated usage counters
// @Tags         rules
// @Param        id  path  string  true  "Rule ID"
// @Success      204  "deleted"
// @Failure      403  {object}  errors.ErrorResponse
// @Failure      404  {object}  errors.ErrorResponse
// @Router       /rules/{id} [delete]
func (h *Handler) DeleteRule(c *gin.Context) {
	if err := h.Service.DeleteRule(c.Request.Context(), c.Param("id")); err != nil {
		h.HandleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SetRuleEnabled godoc
// @Summary      Enable or disable a rule
// @Tags         rules
// @Accept       json
// @Produce      json
// @Param        id       path      string             true  "Rule ID"
// @Param        request  body      SetEnabledRequest  true  "Desired state"
// @Success      200      {object}  rules.Rule
// @Failure      400      {object}  errors.ErrorResponse
// @Failure      403      {object}  errors.ErrorResponse
// @Failure      404      {object}  errors.ErrorResponse
// @Router       /rules/{id}/enabled [patch]
func (h *Handler) SetRuleEnabled(c *gin.Context) {
	var req SetEnabledRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithDetail("field", "enabled")))
		return
	}

	rule, err := h.Service.SetRuleEnabled(c.Request.Context(), c.Param("id"), *req.Enabled)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, rule)
}

// GetRuleUsage godoc
// @Summary      Aggregate usage for a rule
// @Description  Distinct users, total count and most recent activity
// @Tags         rules
// @Produce      json
// @Param        id   path      string  true  "Rule ID"
// @Success      200  {object}  usage.Stats
// @Failure      403  {object}  errors.ErrorResponse
// @Failure      404  {object}  errors.ErrorResponse
// @Router       /rules/{id}/usage [get]
func (h *Handler) GetRuleUsage(c *gin.Context) {
	stats, err := h.Service.GetRuleUsage(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetRuleVersions godoc
// @Summary      List versions of a rule
// @Tags         rules
// @Produce      json
// @Param        id   path      string  true  "Rule ID"
// @Success      200  {array}   RuleVersion
// @Failure      403  {object}  errors.ErrorResponse
// @Router       /rules/{id}/versions [get]
func (h *Handler) GetRuleVersions(c *gin.Context) {
	versions, err := h.Service.GetRuleVersions(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, versions)
}

// GetRuleAuditLogs godoc
// @Summary      Audit trail for a rule
// @Tags         rules
// @Produce      json
// @Param        id     path      string  true   "Rule ID"
// @Param        limit  query     int     false  "Max entries"
// @Success      200    {array}   AuditLog
// @Failure      403    {object}  errors.ErrorResponse
// @Router       /rules/{id}/audit [get]
func (h *Handler) GetRuleAuditLogs(c *gin.Context) {
	id := c.Param("id")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	logs, err := h.Service.GetAuditLogs(c.Request.Context(), &id, "", limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}

// GetAuditLogs godoc
// @Summary      Audit trail across rules
// @Tags         audit
// @Produce      json
// @Param        rule_type  query     string  false  "Filter by rule type"
// @Param        limit      query     int     false  "Max entries"
// @Success      200        {array}   AuditLog
// @Failure      403        {object}  errors.ErrorResponse
// @Router       /audit/logs [get]
func (h *Handler) GetAuditLogs(c *gin.Context) {
	ruleType := c.Query("rule_type")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	logs, err := h.Service.GetAuditLogs(c.Request.Context(), nil, ruleType, limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}
