package scheduler_test

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ashllll/loganalyzer/scheduler"
)

type MockImportJob struct {
	mock.Mock
}

func (m *MockImportJob) Run() {
	m.Called()
}

func TestNewScheduler(t *testing.T) {
	logger := zerolog.New(zerolog.NewTestWriter(t))
	s := scheduler.NewScheduler(scheduler.SchedulerParams{
		Logger: logger,
	})

	assert.NotNil(t, s, "Scheduler should not be nil")
}

func TestScheduler_AddImportJob(t *testing.T) {
	logger := zerolog.New(zerolog.NewTestWriter(t))
	s := scheduler.NewScheduler(scheduler.SchedulerParams{
		Logger: logger,
	})

	mockJob := new(MockImportJob)

	err := s.AddImportJob("* * * * *", mockJob)
	assert.NoError(t, err, "Should add job without error")

	// Test with invalid schedule.
	err = s.AddImportJob("invalid-schedule", mockJob)
	assert.Error(t, err, "Should return error with invalid schedule")
}

func TestScheduler_StartStop(t *testing.T) {
	logger := zerolog.New(zerolog.NewTestWriter(t))
	s := scheduler.NewScheduler(scheduler.SchedulerParams{
		Logger: logger,
	})

	mockJob := new(MockImportJob)
	mockJob.On("Run").Return()

	err := s.AddImportJob("* * * * *", mockJob)
	assert.NoError(t, err)

	// Start the scheduler.
	s.Start()

	// Stop the scheduler after a short delay.
	time.Sleep(100 * time.Millisecond)
	s.Stop()

	// No assertions here as we're just testing that Start and Stop don't panic.
}

func TestScheduler_RemoveJobs(t *testing.T) {
	logger := zerolog.New(zerolog.NewTestWriter(t))
	s := scheduler.NewScheduler(scheduler.SchedulerParams{
		Logger: logger,
	})

	mockJob1 := new(MockImportJob)
	mockJob2 := new(MockImportJob)

	err := s.AddImportJob("* * * * *", mockJob1)
	assert.NoError(t, err)

	err = s.AddImportJob("*/5 * * * *", mockJob2)
	assert.NoError(t, err)

	// Remove all jobs.
	s.RemoveJobs()

	// Adding the same jobs again must still work after removal.
	err = s.AddImportJob("* * * * *", mockJob1)
	assert.NoError(t, err, "Should be able to add job again after removal")
}
