package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-gradebook-api/pkg/jobs"
)

type recordingWarmer struct {
	students []string
	err      error
}

func (w *recordingWarmer) Warm(ctx context.Context, institutionID, studentID string) error {
	w.students = append(w.students, institutionID+"/"+studentID)
	return w.err
}

func TestRecomputeServiceFansOutPerStudent(t *testing.T) {
	store := newMemoryScores()
	store.put("stu-1", "unit-1", fullUnit())
	store.put("stu-2", "unit-1", fullUnit())
	warmer := &recordingWarmer{}
	queue := &recordingQueue{}

	svc := NewRecomputeService(store, warmer, NewMetricsService(), nil)
	svc.AttachQueue(queue)

	require.NoError(t, svc.ScheduleInstitution(context.Background(), "inst-1"))
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, jobRecomputeInstitution, queue.jobs[0].Type)

	require.NoError(t, svc.Handle(context.Background(), queue.jobs[0]))
	require.Len(t, queue.jobs, 3)
	assert.Equal(t, "student:inst-1:stu-1", queue.jobs[1].ID)
	assert.Equal(t, "student:inst-1:stu-2", queue.jobs[2].ID)

	for _, job := range queue.jobs[1:] {
		require.NoError(t, svc.Handle(context.Background(), job))
	}
	assert.Equal(t, []string{"inst-1/stu-1", "inst-1/stu-2"}, warmer.students)
}

func TestRecomputeServiceErrors(t *testing.T) {
	svc := NewRecomputeService(newMemoryScores(), &recordingWarmer{err: errors.New("db down")}, nil, nil)
	assert.Error(t, svc.ScheduleInstitution(context.Background(), "inst-1"))

	svc.AttachQueue(&recordingQueue{})
	err := svc.Handle(context.Background(), jobs.Job{Type: jobRecomputeStudent, Payload: RecomputePayload{InstitutionID: "inst-1", StudentID: "stu-1"}})
	assert.Error(t, err)

	assert.NoError(t, svc.Handle(context.Background(), jobs.Job{Type: jobRecomputeStudent, Payload: "garbage"}))
}

func TestRecomputeServiceWithQueue(t *testing.T) {
	store := newMemoryScores()
	store.put("stu-1", "unit-1", fullUnit())
	done := make(chan struct{}, 1)
	warmer := &channelWarmer{done: done}

	svc := NewRecomputeService(store, warmer, nil, nil)
	queue := jobs.NewQueue("recompute", svc.Handle, jobs.QueueConfig{Workers: 2})
	svc.AttachQueue(queue)
	queue.Start(context.Background())
	defer queue.Stop()

	require.NoError(t, svc.ScheduleInstitution(context.Background(), "inst-1"))
	<-done
}

type channelWarmer struct {
	done chan struct{}
}

func (w *channelWarmer) Warm(ctx context.Context, institutionID, studentID string) error {
	w.done <- struct{}{}
	return nil
}
