package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-gradebook-api/internal/grading"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
	"github.com/noah-isme/sma-gradebook-api/internal/service"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
	"github.com/noah-isme/sma-gradebook-api/pkg/response"
)

type summaryService interface {
	Summary(ctx context.Context, institutionID, studentID string, exams models.ExamInputs) (*models.AnnualSummary, error)
	ListSummaries(ctx context.Context, filter models.ScoreFilter) ([]models.StudentSummary, *models.Pagination, error)
}

type summaryExporter interface {
	Export(ctx context.Context, institutionID string, format service.ExportFormat) (*service.ExportFile, error)
}

// SummaryHandler exposes derived annual summaries.
type SummaryHandler struct {
	summaries summaryService
	exports   summaryExporter
}

// NewSummaryHandler constructs handler.
func NewSummaryHandler(summaries summaryService, exports summaryExporter) *SummaryHandler {
	return &SummaryHandler{summaries: summaries, exports: exports}
}

// Get godoc
// @Summary Compute the annual summary of a student
// @Description Exam scores default to the values stored in the final exam and recovery periods.
// @Tags Summaries
// @Produce json
// @Param id path string true "Student ID"
// @Param finalExam query string false "Final exam score"
// @Param recovery query string false "Recovery exam score"
// @Param councilBonus query string false "Class council bonus"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /students/{id}/summary [get]
func (h *SummaryHandler) Get(c *gin.Context) {
	_, institutionID, err := institutionFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	exams, err := examInputsFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	summary, err := h.summaries.Summary(c.Request.Context(), institutionID, c.Param("id"), exams)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// List godoc
// @Summary List annual summaries of the institution
// @Tags Summaries
// @Produce json
// @Param page query int false "Page" default(1)
// @Param pageSize query int false "Page size" default(100)
// @Success 200 {object} response.Envelope
// @Router /summaries [get]
func (h *SummaryHandler) List(c *gin.Context) {
	_, institutionID, err := institutionFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "100"))
	summaries, pagination, err := h.summaries.ListSummaries(c.Request.Context(), models.ScoreFilter{InstitutionID: institutionID, Page: page, PageSize: pageSize})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summaries, pagination)
}

// Export godoc
// @Summary Export the summary table
// @Tags Summaries
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Router /summaries/export [get]
func (h *SummaryHandler) Export(c *gin.Context) {
	_, institutionID, err := institutionFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	file, err := h.exports.Export(c.Request.Context(), institutionID, service.ExportFormat(c.DefaultQuery("format", "csv")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}

func examInputsFromQuery(c *gin.Context) (models.ExamInputs, error) {
	var exams models.ExamInputs
	fields := []struct {
		name string
		dest **float64
	}{
		{"finalExam", &exams.FinalExam},
		{"recovery", &exams.Recovery},
		{"councilBonus", &exams.CouncilBonus},
	}
	for _, f := range fields {
		value, present, err := grading.ParseScore(c.Query(f.name))
		if err != nil {
			return models.ExamInputs{}, appErrors.Clone(appErrors.ErrValidation, f.name+" must be a number")
		}
		if present {
			v := value
			*f.dest = &v
		}
	}
	return exams, nil
}
