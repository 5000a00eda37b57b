package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-gradebook-api/internal/grading"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
	"github.com/noah-isme/sma-gradebook-api/internal/repository"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
)

func newConfigService(repo *fakeConfigRepo) (*GradingConfigService, *recordingInvalidator, *recordingScheduler) {
	cache := &recordingInvalidator{}
	scheduler := &recordingScheduler{}
	return NewGradingConfigService(repo, cache, scheduler, nil, nil, nil), cache, scheduler
}

func TestGradingConfigServiceGetFallsBackToDefault(t *testing.T) {
	svc, _, _ := newConfigService(&fakeConfigRepo{})

	cfg, err := svc.Get(context.Background(), "inst-1")
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Version)
	assert.Equal(t, "inst-1", cfg.InstitutionID)
	assert.Equal(t, models.CalculationTotalSum, cfg.CalculationType)
	assert.Len(t, cfg.RegularPeriods(), 3)
}

func TestGradingConfigServiceGetDecodesStoredVersion(t *testing.T) {
	stored := grading.DefaultConfig("inst-1")
	stored.CalculationType = models.CalculationSimpleAverage
	payload, err := json.Marshal(stored)
	require.NoError(t, err)

	svc, _, _ := newConfigService(&fakeConfigRepo{record: &models.GradingConfigRecord{InstitutionID: "inst-1", Payload: payload, Version: 3}})
	cfg, err := svc.Get(context.Background(), "inst-1")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Version)
	assert.Equal(t, models.CalculationSimpleAverage, cfg.CalculationType)
}

func TestGradingConfigServiceGetRepositoryError(t *testing.T) {
	svc, _, _ := newConfigService(&fakeConfigRepo{findErr: errors.New("db down")})

	_, err := svc.Get(context.Background(), "inst-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestGradingConfigServiceUpdate(t *testing.T) {
	repo := &fakeConfigRepo{}
	svc, cache, scheduler := newConfigService(repo)

	req := defaultUpdateRequest()
	req.CalculationType = models.CalculationCustomFormula
	req.CustomFormula = "(U1 + U2 + U3) / 3"

	cfg, err := svc.Update(context.Background(), "inst-1", "admin-1", req)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Version)
	assert.False(t, cfg.UpdatedAt.IsZero())

	require.Len(t, repo.saved, 1)
	assert.Equal(t, 1, repo.saved[0].Version)
	require.NotNil(t, repo.saved[0].UpdatedBy)
	assert.Equal(t, "admin-1", *repo.saved[0].UpdatedBy)

	var decoded models.GradingConfig
	require.NoError(t, json.Unmarshal(repo.saved[0].Payload, &decoded))
	assert.Equal(t, "(U1 + U2 + U3) / 3", decoded.CustomFormula)

	assert.Equal(t, []string{"summary:inst-1:*"}, cache.patterns)
	assert.Equal(t, []string{"inst-1"}, scheduler.institutions)

	again, err := svc.Update(context.Background(), "inst-1", "admin-1", defaultUpdateRequest())
	require.NoError(t, err)
	assert.Equal(t, 2, again.Version)
	assert.Empty(t, again.CustomFormula)
}

func TestGradingConfigServiceUpdateRejectsBrokenFormula(t *testing.T) {
	repo := &fakeConfigRepo{}
	svc, cache, scheduler := newConfigService(repo)

	req := defaultUpdateRequest()
	req.CalculationType = models.CalculationCustomFormula
	req.CustomFormula = "U1 + Q99"

	_, err := svc.Update(context.Background(), "inst-1", "admin-1", req)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrFormula.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "offset 5")
	assert.Contains(t, appErr.Message, "Q99")

	var formulaErr *grading.FormulaError
	require.True(t, errors.As(err, &formulaErr))
	assert.Equal(t, grading.FormulaMissingVariable, formulaErr.Kind)

	assert.Empty(t, repo.saved)
	assert.Empty(t, cache.patterns)
	assert.Empty(t, scheduler.institutions)
}

func TestGradingConfigServiceUpdateRejectsInvalidConfig(t *testing.T) {
	svc, _, _ := newConfigService(&fakeConfigRepo{})

	req := defaultUpdateRequest()
	req.Periods[1].Number = req.Periods[0].Number

	_, err := svc.Update(context.Background(), "inst-1", "admin-1", req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidConfig.Code, appErrors.FromError(err).Code)
}

func TestGradingConfigServiceUpdateValidation(t *testing.T) {
	svc, _, _ := newConfigService(&fakeConfigRepo{})

	req := defaultUpdateRequest()
	req.Periods = nil

	_, err := svc.Update(context.Background(), "inst-1", "admin-1", req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestGradingConfigServiceUpdateConflicts(t *testing.T) {
	svc, _, _ := newConfigService(&fakeConfigRepo{})

	stale := 4
	req := defaultUpdateRequest()
	req.ExpectedVersion = &stale
	_, err := svc.Update(context.Background(), "inst-1", "admin-1", req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	racing, _, _ := newConfigService(&fakeConfigRepo{saveErr: repository.ErrVersionConflict})
	_, err = racing.Update(context.Background(), "inst-1", "admin-1", defaultUpdateRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.ErrorIs(t, err, repository.ErrVersionConflict)
}

func TestGradingConfigServiceHistory(t *testing.T) {
	repo := &fakeConfigRepo{}
	svc, _, _ := newConfigService(repo)

	_, err := svc.Update(context.Background(), "inst-1", "admin-1", defaultUpdateRequest())
	require.NoError(t, err)
	_, err = svc.Update(context.Background(), "inst-1", "admin-2", defaultUpdateRequest())
	require.NoError(t, err)

	history, err := svc.History(context.Background(), "inst-1", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 2, history[0].Version)
}

func TestGradingConfigServiceCheckFormula(t *testing.T) {
	svc, _, _ := newConfigService(&fakeConfigRepo{})

	result, err := svc.CheckFormula(context.Background(), "inst-1", FormulaCheckRequest{Formula: "(U1 + U2 + U3) / 3"})
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, []string{"U1", "U2", "U3"}, result.Variables)
	assert.Contains(t, result.Scope, "P3")
	assert.Contains(t, result.Scope, "TS3")
	require.NotNil(t, result.MaxAnnual)
	assert.InDelta(t, 10.0, *result.MaxAnnual, 1e-9)
	assert.InDelta(t, 6.0, *result.PassFloor, 1e-9)

	result, err = svc.CheckFormula(context.Background(), "inst-1", FormulaCheckRequest{Formula: "U1 + Q99"})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	require.NotNil(t, result.Issue)
	assert.Equal(t, grading.FormulaMissingVariable, result.Issue.Kind)
	assert.Equal(t, 5, result.Issue.Offset)
	assert.Equal(t, "Q99", result.Issue.Variable)

	result, err = svc.CheckFormula(context.Background(), "inst-1", FormulaCheckRequest{Formula: "(U1 +"})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, grading.FormulaSyntax, result.Issue.Kind)

	_, err = svc.CheckFormula(context.Background(), "inst-1", FormulaCheckRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
