package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-gradebook-api/internal/grading"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
	"github.com/noah-isme/sma-gradebook-api/internal/service"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
	"github.com/noah-isme/sma-gradebook-api/pkg/response"
)

type scoreService interface {
	Load(ctx context.Context, institutionID, studentID string) (models.RawScoreSet, error)
	Write(ctx context.Context, institutionID, studentID, periodID string, req service.WriteScoreRequest) (*service.ScoreWriteResponse, error)
	Fields(ctx context.Context, institutionID, studentID, periodID string) ([]grading.FieldContract, error)
}

// ScoreHandler exposes raw score entry.
type ScoreHandler struct {
	scores scoreService
}

// NewScoreHandler constructs handler.
func NewScoreHandler(scores scoreService) *ScoreHandler {
	return &ScoreHandler{scores: scores}
}

// List godoc
// @Summary Get the stored raw scores of a student
// @Tags Scores
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/scores [get]
func (h *ScoreHandler) List(c *gin.Context) {
	_, institutionID, err := institutionFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	raw, err := h.scores.Load(c.Request.Context(), institutionID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, raw, nil)
}

// Write godoc
// @Summary Write one raw component score
// @Description Values above the effective maximum are clamped and reported; values that are not numbers are rejected and the prior value is returned.
// @Tags Scores
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param periodId path string true "Period ID"
// @Param payload body service.WriteScoreRequest true "Raw value"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/scores/{periodId} [put]
func (h *ScoreHandler) Write(c *gin.Context) {
	_, institutionID, err := institutionFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req service.WriteScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.scores.Write(c.Request.Context(), institutionID, c.Param("id"), c.Param("periodId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Fields godoc
// @Summary Get the score form of one period
// @Tags Scores
// @Produce json
// @Param id path string true "Student ID"
// @Param periodId path string true "Period ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/periods/{periodId}/fields [get]
func (h *ScoreHandler) Fields(c *gin.Context) {
	_, institutionID, err := institutionFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	fields, err := h.scores.Fields(c.Request.Context(), institutionID, c.Param("id"), c.Param("periodId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, fields, nil)
}
