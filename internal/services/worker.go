package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"microcred/assessment-engine/internal/repositories"
)

const (
	defaultWorkerCount  = 4
	defaultPollInterval = 5 * time.Second
	defaultQueueSize    = 100
	pollBatchSize       = 50
)

// PipelineWorkerPool drives the async pipeline. Submissions enqueue their
// assessment directly for low latency; a background poller sweeps the
// database for runnable work so crashed or missed runs are picked up.
type PipelineWorkerPool struct {
	runner       *JobPipelineRunner
	assessments  repositories.AssessmentRepository
	logger       *zap.Logger
	queue        chan uuid.UUID
	workers      int
	pollInterval time.Duration

	mu       sync.Mutex
	inFlight map[uuid.UUID]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPipelineWorkerPool(
	runner *JobPipelineRunner,
	assessments repositories.AssessmentRepository,
	workers int,
	pollInterval time.Duration,
	logger *zap.Logger,
) *PipelineWorkerPool {
	if workers <= 0 {
		workers = defaultWorkerCount
	}
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &PipelineWorkerPool{
		runner:       runner,
		assessments:  assessments,
		logger:       logger,
		queue:        make(chan uuid.UUID, defaultQueueSize),
		workers:      workers,
		pollInterval: pollInterval,
		inFlight:     make(map[uuid.UUID]struct{}),
		ctx:          ctx,
		cancel:       cancel,
	}
}

func (p *PipelineWorkerPool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work(i)
	}
	p.wg.Add(1)
	go p.poll()

	p.logger.Info("pipeline worker pool started",
		zap.Int("workers", p.workers),
		zap.Duration("poll_interval", p.pollInterval),
	)
}

// Stop drains the pool. Blocks until in-flight runs finish.
func (p *PipelineWorkerPool) Stop() {
	p.cancel()
	p.wg.Wait()
	p.logger.Info("pipeline worker pool stopped")
}

// Enqueue schedules a pipeline run. Returns false when the assessment is
// already in flight or the queue is full; the poller catches it later.
func (p *PipelineWorkerPool) Enqueue(assessmentID uuid.UUID) bool {
	if !p.claim(assessmentID) {
		return false
	}
	select {
	case p.queue <- assessmentID:
		return true
	default:
		p.release(assessmentID)
		p.logger.Warn("pipeline queue full", zap.String("assessment_id", assessmentID.String()))
		return false
	}
}

func (p *PipelineWorkerPool) work(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case assessmentID := <-p.queue:
			if err := p.runner.Run(p.ctx, assessmentID); err != nil {
				p.logger.Error("pipeline run failed",
					zap.Int("worker", id),
					zap.String("assessment_id", assessmentID.String()),
					zap.Error(err),
				)
			}
			p.release(assessmentID)
		}
	}
}

func (p *PipelineWorkerPool) poll() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			ids, err := p.assessments.FindRunnable(pollBatchSize)
			if err != nil {
				p.logger.Error("failed to poll for runnable assessments", zap.Error(err))
				continue
			}
			for _, id := range ids {
				p.Enqueue(id)
			}
		}
	}
}

func (p *PipelineWorkerPool) claim(assessmentID uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.inFlight[assessmentID]; busy {
		return false
	}
	p.inFlight[assessmentID] = struct{}{}
	return true
}

func (p *PipelineWorkerPool) release(assessmentID uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inFlight, assessmentID)
}
