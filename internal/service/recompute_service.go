package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
	"github.com/noah-isme/sma-gradebook-api/pkg/jobs"
)

const (
	jobRecomputeInstitution = "recompute_institution"
	jobRecomputeStudent     = "recompute_student"
	recomputePageSize       = 200
)

type jobQueue interface {
	Enqueue(job jobs.Job) error
}

type summaryWarmer interface {
	Warm(ctx context.Context, institutionID, studentID string) error
}

// RecomputePayload identifies the summaries a recompute job refreshes. An empty StudentID
// fans out to every student of the institution.
type RecomputePayload struct {
	InstitutionID string
	StudentID     string
}

// RecomputeService refreshes memoised summaries in the background after a config change.
type RecomputeService struct {
	students studentLister
	warmer   summaryWarmer
	queue    jobQueue
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewRecomputeService constructs the service. AttachQueue must be called before scheduling.
func NewRecomputeService(students studentLister, warmer summaryWarmer, metrics *MetricsService, logger *zap.Logger) *RecomputeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecomputeService{students: students, warmer: warmer, metrics: metrics, logger: logger}
}

// AttachQueue sets the queue that runs Handle.
func (s *RecomputeService) AttachQueue(queue jobQueue) {
	s.queue = queue
}

// ScheduleInstitution enqueues the fan-out job of one institution.
func (s *RecomputeService) ScheduleInstitution(ctx context.Context, institutionID string) error {
	if s.queue == nil {
		return fmt.Errorf("recompute queue not attached")
	}
	return s.queue.Enqueue(jobs.Job{
		ID:      "institution:" + institutionID,
		Type:    jobRecomputeInstitution,
		Payload: RecomputePayload{InstitutionID: institutionID},
	})
}

// Handle processes a recompute job. It is the queue handler.
func (s *RecomputeService) Handle(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(RecomputePayload)
	if !ok {
		s.logger.Error("unexpected recompute payload", zap.String("job_id", job.ID), zap.String("type", job.Type))
		return nil
	}

	switch job.Type {
	case jobRecomputeInstitution:
		return s.fanOut(ctx, payload.InstitutionID)
	case jobRecomputeStudent:
		err := s.warmer.Warm(ctx, payload.InstitutionID, payload.StudentID)
		s.metrics.RecordRecomputeJob(err == nil)
		return err
	default:
		s.logger.Error("unknown recompute job type", zap.String("type", job.Type))
		return nil
	}
}

func (s *RecomputeService) fanOut(ctx context.Context, institutionID string) error {
	scheduled := 0
	for page := 1; ; page++ {
		ids, total, err := s.students.ListStudentIDs(ctx, models.ScoreFilter{InstitutionID: institutionID, Page: page, PageSize: recomputePageSize})
		if err != nil {
			return fmt.Errorf("list students for recompute: %w", err)
		}
		for _, studentID := range ids {
			job := jobs.Job{
				ID:      fmt.Sprintf("student:%s:%s", institutionID, studentID),
				Type:    jobRecomputeStudent,
				Payload: RecomputePayload{InstitutionID: institutionID, StudentID: studentID},
			}
			if err := s.queue.Enqueue(job); err != nil {
				return fmt.Errorf("enqueue recompute for %s: %w", studentID, err)
			}
			scheduled++
		}
		if len(ids) == 0 || page*recomputePageSize >= total {
			break
		}
	}
	s.logger.Info("recompute scheduled", zap.String("institution_id", institutionID), zap.Int("students", scheduled))
	return nil
}
