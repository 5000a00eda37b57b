package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-gradebook-api/internal/grading"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
	"github.com/noah-isme/sma-gradebook-api/internal/repository"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
)

type gradingConfigRepository interface {
	FindByInstitution(ctx context.Context, institutionID string) (*models.GradingConfigRecord, error)
	Save(ctx context.Context, record *models.GradingConfigRecord) error
	History(ctx context.Context, institutionID string, limit int) ([]models.GradingConfigRecord, error)
}

type summaryInvalidator interface {
	Invalidate(ctx context.Context, pattern string) error
}

type recomputeScheduler interface {
	ScheduleInstitution(ctx context.Context, institutionID string) error
}

// UpdateGradingConfigRequest is the payload of a configuration update. ExpectedVersion guards
// against overwriting a concurrent edit when it is set.
type UpdateGradingConfigRequest struct {
	CalculationType  models.CalculationType `json:"calculation_type" validate:"required,oneof=simple_average weighted_average total_sum custom_formula"`
	CustomFormula    string                 `json:"custom_formula" validate:"required_if=CalculationType custom_formula"`
	RoundingMode     models.RoundingMode    `json:"rounding_mode" validate:"omitempty,oneof=half_up half_down half_even floor ceil"`
	RoundingDecimals int                    `json:"rounding_decimals" validate:"gte=0,lte=6"`
	Periods          []models.PeriodConfig  `json:"periods" validate:"required,min=1,dive"`
	Approval         models.ApprovalRules   `json:"approval"`
	FinalExam        models.FinalExamRules  `json:"final_exam"`
	Recovery         models.RecoveryRules   `json:"recovery"`
	ExpectedVersion  *int                   `json:"expected_version,omitempty" validate:"omitempty,gte=0"`
}

// FormulaCheckRequest carries a formula to test against the active configuration.
type FormulaCheckRequest struct {
	Formula string `json:"formula" validate:"required"`
}

// FormulaIssue describes why a formula was rejected.
type FormulaIssue struct {
	Kind     grading.FormulaErrorKind `json:"kind"`
	Offset   int                      `json:"offset"`
	Variable string                   `json:"variable,omitempty"`
	Message  string                   `json:"message"`
}

// FormulaCheckResult reports whether a formula can replace the active aggregation.
type FormulaCheckResult struct {
	Valid     bool          `json:"valid"`
	Variables []string      `json:"variables"`
	Scope     []string      `json:"scope"`
	MaxAnnual *float64      `json:"max_annual,omitempty"`
	PassFloor *float64      `json:"pass_floor,omitempty"`
	Issue     *FormulaIssue `json:"issue,omitempty"`
}

// GradingConfigService owns the per-institution grading configuration.
type GradingConfigService struct {
	repo      gradingConfigRepository
	cache     summaryInvalidator
	recompute recomputeScheduler
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewGradingConfigService constructs the service. cache and recompute are optional.
func NewGradingConfigService(repo gradingConfigRepository, cache summaryInvalidator, recompute recomputeScheduler, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *GradingConfigService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradingConfigService{repo: repo, cache: cache, recompute: recompute, metrics: metrics, validator: validate, logger: logger}
}

// SetRecomputeScheduler attaches the recompute queue once it has been built.
func (s *GradingConfigService) SetRecomputeScheduler(recompute recomputeScheduler) {
	s.recompute = recompute
}

// Get returns the active configuration of an institution, or the built-in default when none
// has been stored yet.
func (s *GradingConfigService) Get(ctx context.Context, institutionID string) (*models.GradingConfig, error) {
	record, err := s.repo.FindByInstitution(ctx, institutionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return grading.DefaultConfig(institutionID), nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grading config")
	}
	return decodeConfig(record)
}

// Update validates and stores a new configuration version. A rejected configuration leaves
// the stored one untouched.
func (s *GradingConfigService) Update(ctx context.Context, institutionID, actorID string, req UpdateGradingConfigRequest) (*models.GradingConfig, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grading config payload")
	}

	cfg := &models.GradingConfig{
		InstitutionID:    institutionID,
		CalculationType:  req.CalculationType,
		CustomFormula:    req.CustomFormula,
		RoundingMode:     req.RoundingMode,
		RoundingDecimals: req.RoundingDecimals,
		Periods:          req.Periods,
		Approval:         req.Approval,
		FinalExam:        req.FinalExam,
		Recovery:         req.Recovery,
	}
	if cfg.CalculationType != models.CalculationCustomFormula {
		cfg.CustomFormula = ""
	}
	if err := grading.ValidateConfig(cfg); err != nil {
		return nil, s.engineError(err)
	}

	current, err := s.Get(ctx, institutionID)
	if err != nil {
		return nil, err
	}
	if req.ExpectedVersion != nil && *req.ExpectedVersion != current.Version {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("grading config is at version %d", current.Version))
	}
	cfg.Version = current.Version + 1

	payload, err := json.Marshal(cfg)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode grading config")
	}
	record := &models.GradingConfigRecord{
		InstitutionID: institutionID,
		Payload:       payload,
		Version:       cfg.Version,
	}
	if actorID != "" {
		record.UpdatedBy = &actorID
	}
	if err := s.repo.Save(ctx, record); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "grading config was changed concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save grading config")
	}
	cfg.UpdatedAt = record.UpdatedAt

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, InstitutionPattern(institutionID)); err != nil {
			s.logger.Warn("failed to invalidate summaries", zap.String("institution_id", institutionID), zap.Error(err))
		}
	}
	if s.recompute != nil {
		if err := s.recompute.ScheduleInstitution(ctx, institutionID); err != nil {
			s.logger.Warn("failed to schedule recompute", zap.String("institution_id", institutionID), zap.Error(err))
		}
	}

	s.logger.Info("grading config updated",
		zap.String("institution_id", institutionID),
		zap.Int("version", cfg.Version),
		zap.String("calculation_type", string(cfg.CalculationType)),
	)
	return cfg, nil
}

// History lists stored versions, newest first.
func (s *GradingConfigService) History(ctx context.Context, institutionID string, limit int) ([]models.GradingConfigRecord, error) {
	records, err := s.repo.History(ctx, institutionID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grading config history")
	}
	return records, nil
}

// CheckFormula tests a formula against the active configuration as if it replaced the
// aggregation. A broken formula is reported in the result, not as an error.
func (s *GradingConfigService) CheckFormula(ctx context.Context, institutionID string, req FormulaCheckRequest) (*FormulaCheckResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "formula is required")
	}
	active, err := s.Get(ctx, institutionID)
	if err != nil {
		return nil, err
	}

	candidate := *active
	candidate.CalculationType = models.CalculationCustomFormula
	candidate.CustomFormula = req.Formula
	return CheckFormula(&candidate), nil
}

// CheckFormula validates cfg's custom formula and, when it is sound, reports the annual bounds
// it produces.
func CheckFormula(cfg *models.GradingConfig) *FormulaCheckResult {
	result := &FormulaCheckResult{Variables: []string{}, Scope: scopeNames(cfg)}
	if formula, err := grading.ParseFormula(cfg.CustomFormula); err == nil {
		result.Variables = formula.Variables()
	}

	if err := grading.ValidateConfig(cfg); err != nil {
		var formulaErr *grading.FormulaError
		if errors.As(err, &formulaErr) {
			result.Issue = &FormulaIssue{
				Kind:     formulaErr.Kind,
				Offset:   formulaErr.Offset,
				Variable: formulaErr.Variable,
				Message:  formulaErr.Error(),
			}
			return result
		}
		result.Issue = &FormulaIssue{Kind: grading.FormulaSyntax, Message: err.Error()}
		return result
	}

	maxAnnual, passFloor, err := grading.AnnualBounds(cfg)
	if err != nil {
		result.Issue = &FormulaIssue{Kind: grading.FormulaSyntax, Message: err.Error()}
		return result
	}
	result.Valid = true
	result.MaxAnnual = &maxAnnual
	result.PassFloor = &passFloor
	return result
}

func (s *GradingConfigService) engineError(err error) error {
	var formulaErr *grading.FormulaError
	if errors.As(err, &formulaErr) {
		s.metrics.RecordFormulaError(string(formulaErr.Kind))
		return appErrors.Wrap(err, appErrors.ErrFormula.Code, appErrors.ErrFormula.Status, formulaErr.Error())
	}
	var configErr *grading.ConfigError
	if errors.As(err, &configErr) {
		return appErrors.Wrap(err, appErrors.ErrInvalidConfig.Code, appErrors.ErrInvalidConfig.Status, configErr.Error())
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate grading config")
}

func decodeConfig(record *models.GradingConfigRecord) (*models.GradingConfig, error) {
	var cfg models.GradingConfig
	if err := json.Unmarshal(record.Payload, &cfg); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "stored grading config is unreadable")
	}
	cfg.InstitutionID = record.InstitutionID
	cfg.Version = record.Version
	cfg.UpdatedAt = record.UpdatedAt
	return &cfg, nil
}

func scopeNames(cfg *models.GradingConfig) []string {
	scope := grading.BuildScope(cfg, nil, nil)
	names := make([]string, 0, len(scope))
	for name := range scope {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
