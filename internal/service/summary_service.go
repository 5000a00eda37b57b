package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-gradebook-api/internal/grading"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
)

type scoreLoader interface {
	Load(ctx context.Context, institutionID, studentID string) (models.RawScoreSet, error)
}

type studentLister interface {
	ListStudentIDs(ctx context.Context, filter models.ScoreFilter) ([]string, int, error)
}

type summaryCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// SummaryService derives annual summaries from stored scores. Summaries are never persisted,
// only memoised per config version and input fingerprint.
type SummaryService struct {
	configs  gradingConfigProvider
	scores   scoreLoader
	students studentLister
	cache    summaryCache
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewSummaryService constructs the service. cache may be nil.
func NewSummaryService(configs gradingConfigProvider, scores scoreLoader, students studentLister, cache summaryCache, metrics *MetricsService, logger *zap.Logger) *SummaryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SummaryService{configs: configs, scores: scores, students: students, cache: cache, metrics: metrics, logger: logger}
}

// Summary computes the annual summary of one student.
func (s *SummaryService) Summary(ctx context.Context, institutionID, studentID string, exams models.ExamInputs) (*models.AnnualSummary, error) {
	cfg, err := s.configs.Get(ctx, institutionID)
	if err != nil {
		return nil, err
	}
	raw, err := s.scores.Load(ctx, institutionID, studentID)
	if err != nil {
		return nil, err
	}
	return s.compute(ctx, cfg, studentID, raw, exams)
}

// Warm recomputes and memoises the summary of one student using the exam scores stored in the
// exam periods.
func (s *SummaryService) Warm(ctx context.Context, institutionID, studentID string) error {
	_, err := s.Summary(ctx, institutionID, studentID, models.ExamInputs{})
	return err
}

// ListSummaries computes a page of summaries for every student with stored scores. A student
// whose summary cannot be computed is listed with the error instead of failing the page.
func (s *SummaryService) ListSummaries(ctx context.Context, filter models.ScoreFilter) ([]models.StudentSummary, *models.Pagination, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 500 {
		filter.PageSize = 100
	}
	ids, total, err := s.students.ListStudentIDs(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	cfg, err := s.configs.Get(ctx, filter.InstitutionID)
	if err != nil {
		return nil, nil, err
	}

	summaries := make([]models.StudentSummary, 0, len(ids))
	for _, studentID := range ids {
		raw, err := s.scores.Load(ctx, filter.InstitutionID, studentID)
		if err != nil {
			return nil, nil, err
		}
		entry := models.StudentSummary{StudentID: studentID}
		summary, err := s.compute(ctx, cfg, studentID, raw, models.ExamInputs{})
		if err != nil {
			entry.Error = appErrors.FromError(err).Message
		} else {
			entry.Summary = *summary
		}
		summaries = append(summaries, entry)
	}

	return summaries, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

func (s *SummaryService) compute(ctx context.Context, cfg *models.GradingConfig, studentID string, raw models.RawScoreSet, exams models.ExamInputs) (*models.AnnualSummary, error) {
	fingerprint, err := summaryFingerprint(cfg.Version, raw, exams)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fingerprint scores")
	}
	key := SummaryKey(cfg.InstitutionID, cfg.Version, studentID, fingerprint)

	if s.cache != nil {
		var cached models.AnnualSummary
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	start := time.Now()
	summary, err := grading.Summarize(raw, exams, cfg)
	if err != nil {
		var formulaErr *grading.FormulaError
		if errors.As(err, &formulaErr) {
			s.metrics.RecordFormulaError(string(formulaErr.Kind))
			return nil, appErrors.Wrap(err, appErrors.ErrFormula.Code, appErrors.ErrFormula.Status, formulaErr.Error())
		}
		var configErr *grading.ConfigError
		if errors.As(err, &configErr) {
			return nil, appErrors.Wrap(err, appErrors.ErrInvalidConfig.Code, appErrors.ErrInvalidConfig.Status, configErr.Error())
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute summary")
	}
	s.metrics.ObserveSummary(summary.Status, time.Since(start))

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, summary, 0); err != nil {
			s.logger.Debug("summary not memoised", zap.String("key", key), zap.Error(err))
		}
	}
	return &summary, nil
}

// summaryFingerprint hashes everything a summary depends on besides the config body, which is
// covered by its version. encoding/json writes map keys sorted, so equal inputs hash equally.
func summaryFingerprint(version int, raw models.RawScoreSet, exams models.ExamInputs) (string, error) {
	payload, err := json.Marshal(struct {
		Version int                `json:"version"`
		Raw     models.RawScoreSet `json:"raw"`
		Exams   models.ExamInputs  `json:"exams"`
	}{Version: version, Raw: raw, Exams: exams})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:16]), nil
}
