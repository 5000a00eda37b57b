package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-gradebook-api/internal/grading"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
	"github.com/noah-isme/sma-gradebook-api/internal/repository"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
)

var errScoreUnchanged = errors.New("score unchanged")

type scoreRepository interface {
	ListByStudent(ctx context.Context, institutionID, studentID string) ([]models.ScoreRecord, error)
	Mutate(ctx context.Context, institutionID, studentID, periodID string, fn repository.ScoreMutation) (*models.ScoreRecord, error)
}

type gradingConfigProvider interface {
	Get(ctx context.Context, institutionID string) (*models.GradingConfig, error)
}

// WriteScoreRequest carries one raw editor value. An empty value clears the component.
// Note replaces the period's annotation when set; it never enters the arithmetic.
type WriteScoreRequest struct {
	VariableCode string  `json:"variable_code" validate:"required,max=8"`
	Value        string  `json:"value" validate:"max=32"`
	Note         *string `json:"note,omitempty" validate:"omitempty,max=500"`
}

// ScoreWriteResponse is returned after every write, including rejected ones.
type ScoreWriteResponse struct {
	StudentID string                  `json:"student_id"`
	PeriodID  string                  `json:"period_id"`
	Result    grading.WriteResult     `json:"result"`
	Values    map[string]float64      `json:"values"`
	Note      string                  `json:"note,omitempty"`
	Total     float64                 `json:"period_total"`
	Fields    []grading.FieldContract `json:"fields"`
}

// ScoreService reads and writes raw component scores.
type ScoreService struct {
	repo      scoreRepository
	configs   gradingConfigProvider
	cache     summaryInvalidator
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewScoreService constructs the service.
func NewScoreService(repo scoreRepository, configs gradingConfigProvider, cache summaryInvalidator, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *ScoreService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScoreService{repo: repo, configs: configs, cache: cache, metrics: metrics, validator: validate, logger: logger}
}

// Load returns the stored raw scores of a student keyed by period.
func (s *ScoreService) Load(ctx context.Context, institutionID, studentID string) (models.RawScoreSet, error) {
	records, err := s.repo.ListByStudent(ctx, institutionID, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load scores")
	}
	raw := make(models.RawScoreSet, len(records))
	for _, record := range records {
		values, err := repository.DecodeScoreValues(record.Values)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "stored scores are unreadable")
		}
		raw[record.PeriodID] = models.PeriodScores{Values: values, Note: record.Note}
	}
	return raw, nil
}

// Write applies one raw value to a student's period. Rejected input is reported in the result
// and leaves the stored scores untouched.
func (s *ScoreService) Write(ctx context.Context, institutionID, studentID, periodID string, req WriteScoreRequest) (*ScoreWriteResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid score payload")
	}
	period, err := s.period(ctx, institutionID, periodID)
	if err != nil {
		return nil, err
	}

	var (
		result grading.WriteResult
		stored models.PeriodScores
	)
	record, err := s.repo.Mutate(ctx, institutionID, studentID, periodID, func(current models.PeriodScores) (models.PeriodScores, error) {
		stored = current
		next, res := grading.ApplyScore(period, current.Values, req.VariableCode, req.Value)
		result = res
		if res.Outcome == grading.OutcomeRejected {
			return models.PeriodScores{}, errScoreUnchanged
		}
		note := current.Note
		if req.Note != nil {
			note = strings.TrimSpace(*req.Note)
		}
		return models.PeriodScores{Values: next, Note: note}, nil
	})

	var (
		values map[string]float64
		note   string
	)
	switch {
	case errors.Is(err, errScoreUnchanged):
		values, note = stored.Values, stored.Note
	case err != nil:
		s.metrics.RecordScoreWrite("error", 0)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store score")
	default:
		values, err = repository.DecodeScoreValues(record.Values)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "stored scores are unreadable")
		}
		note = record.Note
		if s.cache != nil {
			if err := s.cache.Invalidate(ctx, StudentPattern(institutionID, studentID)); err != nil {
				s.logger.Warn("failed to invalidate student summaries", zap.String("student_id", studentID), zap.Error(err))
			}
		}
	}
	if values == nil {
		values = map[string]float64{}
	}
	s.metrics.RecordScoreWrite(string(result.Outcome), len(result.Clamps))

	if len(result.Clamps) > 0 {
		s.logger.Debug("score clamped",
			zap.String("student_id", studentID),
			zap.String("period_id", periodID),
			zap.String("variable_code", req.VariableCode),
			zap.Int("clamps", len(result.Clamps)),
		)
	}

	return &ScoreWriteResponse{
		StudentID: studentID,
		PeriodID:  periodID,
		Result:    result,
		Values:    values,
		Note:      note,
		Total:     grading.ComputeUnitTotal(values, period),
		Fields:    grading.Fields(period, values),
	}, nil
}

// Fields returns the form contract of one period for a student.
func (s *ScoreService) Fields(ctx context.Context, institutionID, studentID, periodID string) ([]grading.FieldContract, error) {
	period, err := s.period(ctx, institutionID, periodID)
	if err != nil {
		return nil, err
	}
	raw, err := s.Load(ctx, institutionID, studentID)
	if err != nil {
		return nil, err
	}
	return grading.Fields(period, raw[periodID].Values), nil
}

func (s *ScoreService) period(ctx context.Context, institutionID, periodID string) (models.PeriodConfig, error) {
	cfg, err := s.configs.Get(ctx, institutionID)
	if err != nil {
		return models.PeriodConfig{}, err
	}
	period, ok := cfg.Period(periodID)
	if !ok {
		return models.PeriodConfig{}, appErrors.Clone(appErrors.ErrUnknownPeriod, "grading period "+periodID+" not found")
	}
	return period, nil
}
