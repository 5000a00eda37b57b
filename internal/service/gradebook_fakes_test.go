package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/noah-isme/sma-gradebook-api/internal/grading"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
	"github.com/noah-isme/sma-gradebook-api/internal/repository"
	"github.com/noah-isme/sma-gradebook-api/pkg/jobs"
)

type fakeConfigRepo struct {
	record  *models.GradingConfigRecord
	saved   []models.GradingConfigRecord
	saveErr error
	findErr error
}

func (f *fakeConfigRepo) FindByInstitution(ctx context.Context, institutionID string) (*models.GradingConfigRecord, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	if f.record == nil {
		return nil, sql.ErrNoRows
	}
	record := *f.record
	return &record, nil
}

func (f *fakeConfigRepo) Save(ctx context.Context, record *models.GradingConfigRecord) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	record.UpdatedAt = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	f.saved = append(f.saved, *record)
	stored := *record
	f.record = &stored
	return nil
}

func (f *fakeConfigRepo) History(ctx context.Context, institutionID string, limit int) ([]models.GradingConfigRecord, error) {
	out := make([]models.GradingConfigRecord, 0, len(f.saved))
	for i := len(f.saved) - 1; i >= 0; i-- {
		out = append(out, f.saved[i])
	}
	return out, nil
}

type staticConfigs struct {
	cfg *models.GradingConfig
	err error
}

func (s staticConfigs) Get(ctx context.Context, institutionID string) (*models.GradingConfig, error) {
	return s.cfg, s.err
}

type recordingInvalidator struct {
	patterns []string
}

func (r *recordingInvalidator) Invalidate(ctx context.Context, pattern string) error {
	r.patterns = append(r.patterns, pattern)
	return nil
}

type recordingScheduler struct {
	institutions []string
}

func (r *recordingScheduler) ScheduleInstitution(ctx context.Context, institutionID string) error {
	r.institutions = append(r.institutions, institutionID)
	return nil
}

// memoryScores is an in-memory score store keyed by student then period.
type memoryScores struct {
	mu        sync.Mutex
	rows      map[string]map[string]map[string]float64
	notes     map[string]string
	mutateErr error
	mutations int
}

func newMemoryScores() *memoryScores {
	return &memoryScores{rows: map[string]map[string]map[string]float64{}, notes: map[string]string{}}
}

func (m *memoryScores) put(studentID, periodID string, values map[string]float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rows[studentID] == nil {
		m.rows[studentID] = map[string]map[string]float64{}
	}
	m.rows[studentID][periodID] = values
}

func (m *memoryScores) ListByStudent(ctx context.Context, institutionID, studentID string) ([]models.ScoreRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var records []models.ScoreRecord
	for periodID, values := range m.rows[studentID] {
		payload, _ := json.Marshal(values)
		records = append(records, models.ScoreRecord{InstitutionID: institutionID, StudentID: studentID, PeriodID: periodID, Values: payload, Note: m.notes[studentID+"/"+periodID]})
	}
	return records, nil
}

func (m *memoryScores) Mutate(ctx context.Context, institutionID, studentID, periodID string, fn repository.ScoreMutation) (*models.ScoreRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mutateErr != nil {
		return nil, m.mutateErr
	}
	current := map[string]float64{}
	for k, v := range m.rows[studentID][periodID] {
		current[k] = v
	}
	key := studentID + "/" + periodID
	next, err := fn(models.PeriodScores{Values: current, Note: m.notes[key]})
	if err != nil {
		return nil, err
	}
	if m.rows[studentID] == nil {
		m.rows[studentID] = map[string]map[string]float64{}
	}
	m.rows[studentID][periodID] = next.Values
	m.notes[key] = next.Note
	m.mutations++
	payload, _ := json.Marshal(next.Values)
	return &models.ScoreRecord{InstitutionID: institutionID, StudentID: studentID, PeriodID: periodID, Values: payload, Note: next.Note}, nil
}

func (m *memoryScores) ListStudentIDs(ctx context.Context, filter models.ScoreFilter) ([]string, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.rows))
	for id := range m.rows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	total := len(ids)
	start := (filter.Page - 1) * filter.PageSize
	if start >= total {
		return []string{}, total, nil
	}
	end := start + filter.PageSize
	if end > total {
		end = total
	}
	return ids[start:end], total, nil
}

type recordingQueue struct {
	jobs []jobs.Job
	err  error
}

func (q *recordingQueue) Enqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func defaultUpdateRequest() UpdateGradingConfigRequest {
	cfg := grading.DefaultConfig("inst-1")
	return UpdateGradingConfigRequest{
		CalculationType:  cfg.CalculationType,
		RoundingMode:     cfg.RoundingMode,
		RoundingDecimals: cfg.RoundingDecimals,
		Periods:          cfg.Periods,
		Approval:         cfg.Approval,
		FinalExam:        cfg.FinalExam,
		Recovery:         cfg.Recovery,
	}
}

func floatPtr(v float64) *float64 {
	return &v
}

type mapCache struct {
	entries map[string][]byte
	hits    int
}

func newMapCache() *mapCache {
	return &mapCache{entries: map[string][]byte{}}
}

func (m *mapCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	payload, ok := m.entries[key]
	if !ok {
		return false, nil
	}
	m.hits++
	return true, json.Unmarshal(payload, dest)
}

func (m *mapCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.entries[key] = payload
	return nil
}

func fullUnit() map[string]float64 {
	return map[string]float64{"Q": 2, "S": 2, "T": 4, "G": 2, "P": 10}
}
