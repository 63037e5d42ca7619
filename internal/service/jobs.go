package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"entity-learning-service/internal/model"
	"entity-learning-service/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrJobNotRunning is returned when cancelling a job that already finished
var ErrJobNotRunning = errors.New("job is not running")

// Notifier delivers a short text to operators
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

type runningJob struct {
	id         string
	scenarioID int64
	cancel     context.CancelFunc
}

// Jobs runs TrainIncremental in the background, at most one job per scenario
type Jobs struct {
	learner  *Learner
	store    Store
	notifier Notifier
	logger   *zap.Logger

	mu         sync.Mutex
	byID       map[string]*runningJob
	byScenario map[int64]*runningJob
	wg         sync.WaitGroup
}

// NewJobs creates the training job runner. notifier may be nil.
func NewJobs(learner *Learner, store Store, notifier Notifier, logger *zap.Logger) *Jobs {
	return &Jobs{
		learner:    learner,
		store:      store,
		notifier:   notifier,
		logger:     logger,
		byID:       make(map[string]*runningJob),
		byScenario: make(map[int64]*runningJob),
	}
}

// Start validates the scenario, records a pending job and trains asynchronously
func (j *Jobs) Start(scenarioID int64, params model.Params) (*models.TrainingJob, error) {
	if _, err := j.store.GetScenario(scenarioID); err != nil {
		return nil, err
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if _, busy := j.byScenario[scenarioID]; busy || j.learner.IsTraining(scenarioID) {
		return nil, ErrTrainingInProgress
	}

	job := &models.TrainingJob{
		ID:         uuid.New().String(),
		ScenarioID: scenarioID,
		Status:     models.JobPending,
		Stage:      StageIdle,
		CreatedAt:  time.Now().UTC(),
	}
	if err := j.store.CreateJob(job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	rj := &runningJob{id: job.ID, scenarioID: scenarioID, cancel: cancel}
	j.byID[job.ID] = rj
	j.byScenario[scenarioID] = rj

	snapshot := *job
	j.wg.Add(1)
	go j.run(ctx, job, params)

	j.logger.Info("Training job started", zap.String("job_id", job.ID), zap.Int64("scenario_id", scenarioID))
	return &snapshot, nil
}

func (j *Jobs) run(ctx context.Context, job *models.TrainingJob, params model.Params) {
	defer j.wg.Done()
	defer j.release(job)

	job.Status = models.JobProcessing
	j.update(job)

	lastStage := ""
	progress := func(p model.Progress) {
		if p.Stage == lastStage {
			return
		}
		lastStage = p.Stage
		job.Stage = p.Stage
		job.Message = p.Message
		j.update(job)
	}

	res := j.learner.TrainIncremental(ctx, job.ScenarioID, params, progress)

	completedAt := time.Now().UTC()
	job.CompletedAt = &completedAt
	job.Outcome = res.Outcome
	job.Message = res.Message
	if res.Session != nil {
		id := res.Session.ID
		job.SessionID = &id
	}

	switch res.Outcome {
	case OutcomeCancelled:
		job.Status = models.JobCancelled
		job.Stage = StageCancelled
	case OutcomeFailed:
		job.Status = models.JobFailed
		job.Stage = StageFailed
		job.ErrorMessage = res.Message
	case OutcomePromoted:
		job.Status = models.JobCompleted
		job.Stage = StagePromoted
	case OutcomeRejected:
		job.Status = models.JobCompleted
		job.Stage = StageRejected
	default:
		job.Status = models.JobCompleted
		job.Stage = StageIdle
	}
	j.update(job)

	j.logger.Info("Training job completed",
		zap.String("job_id", job.ID),
		zap.String("outcome", res.Outcome),
		zap.Int64("duration_ms", res.DurationMs))

	j.notify(job, res)
}

func (j *Jobs) update(job *models.TrainingJob) {
	if err := j.store.UpdateJob(job); err != nil {
		j.logger.Error("Failed to update job", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func (j *Jobs) release(job *models.TrainingJob) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if rj, ok := j.byID[job.ID]; ok {
		rj.cancel()
		delete(j.byID, job.ID)
		delete(j.byScenario, rj.scenarioID)
	}
}

func (j *Jobs) notify(job *models.TrainingJob, res *TrainResult) {
	if j.notifier == nil {
		return
	}
	text := fmt.Sprintf("Training job %s (scenario %d): %s\n%s\nF1 %.4f -> %.4f",
		job.ID, job.ScenarioID, res.Outcome, res.Message, res.MetricsBefore.F1, res.MetricsAfter.F1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := j.notifier.Notify(ctx, text); err != nil {
		j.logger.Warn("Failed to send notification", zap.String("job_id", job.ID), zap.Error(err))
	}
}

// Cancel requests cooperative cancellation of a running job
func (j *Jobs) Cancel(jobID string) error {
	j.mu.Lock()
	rj, ok := j.byID[jobID]
	j.mu.Unlock()
	if !ok {
		if _, err := j.store.GetJob(jobID); err != nil {
			return err
		}
		return ErrJobNotRunning
	}
	rj.cancel()
	j.logger.Info("Training job cancel requested", zap.String("job_id", jobID))
	return nil
}

// Get returns the stored job status
func (j *Jobs) Get(jobID string) (*models.TrainingJob, error) {
	return j.store.GetJob(jobID)
}

// List returns jobs of a scenario, newest first
func (j *Jobs) List(scenarioID int64) ([]*models.TrainingJob, error) {
	return j.store.ListJobs(scenarioID)
}

// Shutdown cancels running jobs and waits for them to finish or for ctx to expire
func (j *Jobs) Shutdown(ctx context.Context) error {
	j.mu.Lock()
	for _, rj := range j.byID {
		rj.cancel()
	}
	j.mu.Unlock()

	done := make(chan struct{})
	go func() {
		j.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until all started jobs finish
func (j *Jobs) Wait() {
	j.wg.Wait()
}
