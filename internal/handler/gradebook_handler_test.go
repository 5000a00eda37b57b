package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-gradebook-api/internal/grading"
	"github.com/noah-isme/sma-gradebook-api/internal/middleware"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
	"github.com/noah-isme/sma-gradebook-api/internal/service"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
)

type gradingConfigServiceMock struct {
	updateErr   error
	institution string
	actor       string
	checked     string
}

func (m *gradingConfigServiceMock) Get(ctx context.Context, institutionID string) (*models.GradingConfig, error) {
	m.institution = institutionID
	return grading.DefaultConfig(institutionID), nil
}

func (m *gradingConfigServiceMock) Update(ctx context.Context, institutionID, actorID string, req service.UpdateGradingConfigRequest) (*models.GradingConfig, error) {
	m.institution, m.actor = institutionID, actorID
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	cfg := grading.DefaultConfig(institutionID)
	cfg.Version = 1
	return cfg, nil
}

func (m *gradingConfigServiceMock) History(ctx context.Context, institutionID string, limit int) ([]models.GradingConfigRecord, error) {
	return []models.GradingConfigRecord{{InstitutionID: institutionID, Version: 1}}, nil
}

func (m *gradingConfigServiceMock) CheckFormula(ctx context.Context, institutionID string, req service.FormulaCheckRequest) (*service.FormulaCheckResult, error) {
	m.checked = req.Formula
	return &service.FormulaCheckResult{Valid: true}, nil
}

type scoreServiceMock struct {
	written service.WriteScoreRequest
	err     error
}

func (m *scoreServiceMock) Load(ctx context.Context, institutionID, studentID string) (models.RawScoreSet, error) {
	return models.RawScoreSet{"unit-1": {Values: map[string]float64{"P": 8}}}, nil
}

func (m *scoreServiceMock) Write(ctx context.Context, institutionID, studentID, periodID string, req service.WriteScoreRequest) (*service.ScoreWriteResponse, error) {
	m.written = req
	if m.err != nil {
		return nil, m.err
	}
	return &service.ScoreWriteResponse{StudentID: studentID, PeriodID: periodID, Result: grading.WriteResult{VariableCode: req.VariableCode, Outcome: grading.OutcomeRejected}}, nil
}

func (m *scoreServiceMock) Fields(ctx context.Context, institutionID, studentID, periodID string) ([]grading.FieldContract, error) {
	return []grading.FieldContract{{VariableCode: "P", Label: "Exam", EffectiveMax: 8}}, nil
}

type summaryServiceMock struct {
	exams  models.ExamInputs
	filter models.ScoreFilter
}

func (m *summaryServiceMock) Summary(ctx context.Context, institutionID, studentID string, exams models.ExamInputs) (*models.AnnualSummary, error) {
	m.exams = exams
	return &models.AnnualSummary{Status: models.StatusFinalPending}, nil
}

func (m *summaryServiceMock) ListSummaries(ctx context.Context, filter models.ScoreFilter) ([]models.StudentSummary, *models.Pagination, error) {
	m.filter = filter
	return []models.StudentSummary{{StudentID: "stu-1"}}, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: 1}, nil
}

type exporterMock struct {
	err error
}

func (m *exporterMock) Export(ctx context.Context, institutionID string, format service.ExportFormat) (*service.ExportFile, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &service.ExportFile{Filename: "summaries.csv", ContentType: "text/csv", Data: []byte("Student ID\nstu-1\n")}, nil
}

func newTestContext(method, target string, body []byte, claims *models.JWTClaims) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return c, w
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin, InstitutionID: "inst-1"}
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error.Code
}

func TestGradingConfigHandlerRequiresInstitution(t *testing.T) {
	h := NewGradingConfigHandler(&gradingConfigServiceMock{})
	c, w := newTestContext(http.MethodGet, "/grading-config", nil, nil)
	h.Get(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGradingConfigHandlerGetAndUpdate(t *testing.T) {
	mock := &gradingConfigServiceMock{}
	h := NewGradingConfigHandler(mock)

	c, w := newTestContext(http.MethodGet, "/grading-config", nil, adminClaims())
	h.Get(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "inst-1", mock.institution)

	body, _ := json.Marshal(map[string]interface{}{"calculation_type": "total_sum", "periods": []interface{}{}})
	c, w = newTestContext(http.MethodPut, "/grading-config", body, adminClaims())
	h.Update(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "admin-1", mock.actor)
}

func TestGradingConfigHandlerUpdateErrors(t *testing.T) {
	mock := &gradingConfigServiceMock{updateErr: appErrors.Clone(appErrors.ErrFormula, "formula error at offset 5: unknown variable \"Q99\"")}
	h := NewGradingConfigHandler(mock)

	c, w := newTestContext(http.MethodPut, "/grading-config", []byte(`{"calculation_type":"custom_formula"}`), adminClaims())
	h.Update(c)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "FORMULA_ERROR", errorCode(t, w))

	c, w = newTestContext(http.MethodPut, "/grading-config", []byte(`not json`), adminClaims())
	h.Update(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGradingConfigHandlerCheckFormula(t *testing.T) {
	mock := &gradingConfigServiceMock{}
	h := NewGradingConfigHandler(mock)

	c, w := newTestContext(http.MethodPost, "/grading-config/formula/check", []byte(`{"formula":"U1+U2"}`), adminClaims())
	h.CheckFormula(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "U1+U2", mock.checked)
}

func TestScoreHandlerWrite(t *testing.T) {
	mock := &scoreServiceMock{}
	h := NewScoreHandler(mock)

	c, w := newTestContext(http.MethodPut, "/students/stu-1/scores/unit-1", []byte(`{"variable_code":"P","value":"abc"}`), adminClaims())
	c.Params = gin.Params{{Key: "id", Value: "stu-1"}, {Key: "periodId", Value: "unit-1"}}
	h.Write(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abc", mock.written.Value)

	var body struct {
		Data service.ScoreWriteResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, grading.OutcomeRejected, body.Data.Result.Outcome)
	assert.Equal(t, "unit-1", body.Data.PeriodID)

	mock.err = appErrors.ErrUnknownPeriod
	c, w = newTestContext(http.MethodPut, "/students/stu-1/scores/x", []byte(`{"variable_code":"P","value":"1"}`), adminClaims())
	h.Write(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestScoreHandlerReads(t *testing.T) {
	h := NewScoreHandler(&scoreServiceMock{})

	c, w := newTestContext(http.MethodGet, "/students/stu-1/scores", nil, adminClaims())
	h.List(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"unit-1"`)

	c, w = newTestContext(http.MethodGet, "/students/stu-1/periods/unit-3/fields", nil, adminClaims())
	h.Fields(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"effective_max":8`)
}

func TestSummaryHandlerParsesExamInputs(t *testing.T) {
	mock := &summaryServiceMock{}
	h := NewSummaryHandler(mock, &exporterMock{})

	c, w := newTestContext(http.MethodGet, "/students/stu-1/summary?finalExam=7,5&councilBonus=1", nil, adminClaims())
	h.Get(c)
	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, mock.exams.FinalExam)
	assert.Equal(t, 7.5, *mock.exams.FinalExam)
	assert.Nil(t, mock.exams.Recovery)
	require.NotNil(t, mock.exams.CouncilBonus)
	assert.Equal(t, 1.0, *mock.exams.CouncilBonus)

	c, w = newTestContext(http.MethodGet, "/students/stu-1/summary?recovery=high", nil, adminClaims())
	h.Get(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, w))
}

func TestSummaryHandlerList(t *testing.T) {
	mock := &summaryServiceMock{}
	h := NewSummaryHandler(mock, &exporterMock{})

	c, w := newTestContext(http.MethodGet, "/summaries?page=2&pageSize=50", nil, adminClaims())
	h.List(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.ScoreFilter{InstitutionID: "inst-1", Page: 2, PageSize: 50}, mock.filter)
	assert.Contains(t, w.Body.String(), `"total_count":1`)
}

func TestSummaryHandlerExport(t *testing.T) {
	h := NewSummaryHandler(&summaryServiceMock{}, &exporterMock{})

	c, w := newTestContext(http.MethodGet, "/summaries/export?format=csv", nil, adminClaims())
	h.Export(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="summaries.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "Student ID\nstu-1\n", w.Body.String())

	h = NewSummaryHandler(&summaryServiceMock{}, &exporterMock{err: appErrors.ErrExportsDisabled})
	c, w = newTestContext(http.MethodGet, "/summaries/export", nil, adminClaims())
	h.Export(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetricsHandlerReady(t *testing.T) {
	h := NewMetricsHandler(service.NewMetricsService(), map[string]ReadinessCheck{
		"database": func(ctx context.Context) error { return nil },
	})
	c, w := newTestContext(http.MethodGet, "/ready", nil, nil)
	h.Ready(c)
	assert.Equal(t, http.StatusOK, w.Code)

	h = NewMetricsHandler(nil, map[string]ReadinessCheck{
		"redis": func(ctx context.Context) error { return errors.New("connection refused") },
	})
	c, w = newTestContext(http.MethodGet, "/ready", nil, nil)
	h.Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")

	c, w = newTestContext(http.MethodGet, "/metrics", nil, nil)
	h.Prometheus(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
