package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
	"github.com/noah-isme/sma-gradebook-api/internal/service"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
	"github.com/noah-isme/sma-gradebook-api/pkg/response"
)

type gradingConfigService interface {
	Get(ctx context.Context, institutionID string) (*models.GradingConfig, error)
	Update(ctx context.Context, institutionID, actorID string, req service.UpdateGradingConfigRequest) (*models.GradingConfig, error)
	History(ctx context.Context, institutionID string, limit int) ([]models.GradingConfigRecord, error)
	CheckFormula(ctx context.Context, institutionID string, req service.FormulaCheckRequest) (*service.FormulaCheckResult, error)
}

// GradingConfigHandler exposes the institution grading configuration.
type GradingConfigHandler struct {
	configs gradingConfigService
}

// NewGradingConfigHandler constructs handler.
func NewGradingConfigHandler(configs gradingConfigService) *GradingConfigHandler {
	return &GradingConfigHandler{configs: configs}
}

// Get godoc
// @Summary Get the active grading configuration
// @Tags Grading Config
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /grading-config [get]
func (h *GradingConfigHandler) Get(c *gin.Context) {
	_, institutionID, err := institutionFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	cfg, err := h.configs.Get(c.Request.Context(), institutionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cfg, nil)
}

// Update godoc
// @Summary Replace the grading configuration
// @Description A configuration whose custom formula does not parse or references unknown variables is rejected with FORMULA_ERROR and nothing is stored.
// @Tags Grading Config
// @Accept json
// @Produce json
// @Param payload body service.UpdateGradingConfigRequest true "Grading configuration"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /grading-config [put]
func (h *GradingConfigHandler) Update(c *gin.Context) {
	claims, institutionID, err := institutionFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req service.UpdateGradingConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	cfg, err := h.configs.Update(c.Request.Context(), institutionID, claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cfg, nil)
}

// History godoc
// @Summary List stored grading configuration versions
// @Tags Grading Config
// @Produce json
// @Param limit query int false "Maximum versions" default(20)
// @Success 200 {object} response.Envelope
// @Router /grading-config/history [get]
func (h *GradingConfigHandler) History(c *gin.Context) {
	_, institutionID, err := institutionFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	records, err := h.configs.History(c.Request.Context(), institutionID, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// CheckFormula godoc
// @Summary Check a custom formula against the active configuration
// @Tags Grading Config
// @Accept json
// @Produce json
// @Param payload body service.FormulaCheckRequest true "Formula"
// @Success 200 {object} response.Envelope
// @Router /grading-config/formula/check [post]
func (h *GradingConfigHandler) CheckFormula(c *gin.Context) {
	_, institutionID, err := institutionFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req service.FormulaCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.configs.CheckFormula(c.Request.Context(), institutionID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
