package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nimasrn/sms-credits/internal/queue"
	"github.com/nimasrn/sms-credits/pkg/logger"
	"github.com/nimasrn/sms-credits/pkg/redis"
	"github.com/nimasrn/sms-credits/pkg/worker"
)

const ProcessingTimeout = time.Second * 5
const HealthInterval = time.Second * 30
const ShutdownTimeout = time.Minute

type ServiceConfig struct {
	Queue queue.QueueConfig
	// Consumers is the number of stream consumers in the group; each gets
	// its own consumer name.
	Consumers int
	Workers   int
	// WorkerBuffer bounds jobs waiting for a free worker.
	WorkerBuffer int
	// LagWarning is the pending count above which the health check warns.
	LagWarning     int64
	MetricsEvery   time.Duration
	ProcessTimeout time.Duration
}

// ProcessorService fans stream entries from several consumers into a
// worker pool and waits for each job's result before acking.
type ProcessorService struct {
	adapter    redis.RedisAdapter
	config     ServiceConfig
	queues     []*queue.Queue
	processors Processor
	metrics    *ReplayMetrics
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	worker     *worker.WorkerManager
}

// Processor interface for different message processors
type Processor interface {
	Process(ctx context.Context, message *queue.Message) error
	GetType() string
}

func NewProcessorService(adapter redis.RedisAdapter, config ServiceConfig) (*ProcessorService, error) {
	if config.Queue.Name == "" {
		return nil, fmt.Errorf("queue name is required")
	}
	if config.Consumers <= 0 {
		config.Consumers = 1
	}
	if config.Workers <= 0 {
		config.Workers = config.Consumers
	}
	if config.WorkerBuffer <= 0 {
		config.WorkerBuffer = 1000
	}
	if config.LagWarning <= 0 {
		config.LagWarning = 10_000
	}
	if config.MetricsEvery <= 0 {
		config.MetricsEvery = 30 * time.Second
	}
	if config.ProcessTimeout <= 0 {
		config.ProcessTimeout = ProcessingTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	service := &ProcessorService{
		adapter:    adapter,
		config:     config,
		queues:     make([]*queue.Queue, 0, config.Consumers),
		processors: nil,
		metrics:    NewReplayMetrics(),
		ctx:        ctx,
		cancel:     cancel,
		worker:     worker.NewWorkerManager(config.WorkerBuffer, config.Workers, nil),
	}
	return service, nil
}

// RegisterProcessor registers a new processor
func (s *ProcessorService) RegisterProcessor(processor Processor) {
	s.processors = processor
	logger.Info("Registered processor", "type", processor.GetType())
}

// Start starts the processor service
func (s *ProcessorService) Start() error {
	if s.processors == nil {
		return fmt.Errorf("no processor registered")
	}
	logger.Info("Starting Processor Service...")

	s.worker.SetWorker(s.workerHandler)

	// Start worker pool in background
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.worker.Start(); err != nil {
			logger.Error("Worker manager stopped", "error", err)
		}
	}()

	// one consumer name per instance so pending entries stay attributable
	for i := 0; i < s.config.Consumers; i++ {
		queueConfig := s.config.Queue
		queueConfig.ConsumerName = fmt.Sprintf("%s-instance-%d", queueConfig.ConsumerName, i)

		q, err := queue.NewQueue(s.adapter, queueConfig)
		if err != nil {
			return fmt.Errorf("failed to create queue %d: %w", i, err)
		}

		if err := q.Consume(s.messageHandler); err != nil {
			return fmt.Errorf("failed to start consumer %d: %w", i, err)
		}

		s.queues = append(s.queues, q)
		logger.Info("Started consumer instance", "instance", i)
	}

	// Start background tasks
	s.wg.Add(2)
	go s.metricsReporter()
	go s.healthChecker()

	logger.Info("Processor Service started", "consumers", len(s.queues), "workers", s.config.Workers)
	return nil
}

// metricsReporter periodically reports metrics
func (s *ProcessorService) metricsReporter() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.MetricsEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.reportMetrics()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *ProcessorService) reportMetrics() {
	stats := s.metrics.Snapshot()
	logger.Info("inbox replay stats",
		"replayed", stats.Replayed,
		"failed", stats.Failed,
		"rate_per_second", stats.RatePerSecond,
		"avg_duration_ms", stats.AvgDuration.Milliseconds(),
		"uptime", stats.Uptime.Round(time.Second).String())

	// all consumers read the same stream, one stats call covers them
	if len(s.queues) > 0 {
		if qStats, err := s.queues[0].GetStats(context.Background()); err == nil {
			logger.Info("Queue stats",
				"queue", s.queues[0].Name(),
				"total", qStats.TotalMessages,
				"pending", qStats.PendingMessages,
				"dead_letters", qStats.DeadLetters,
				"consumers", qStats.ConsumerCount)
		}
	}
}

func (s *ProcessorService) healthChecker() {
	defer s.wg.Done()

	ticker := time.NewTicker(HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.performHealthCheck()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *ProcessorService) performHealthCheck() {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()

	if err := s.adapter.Ping(ctx); err != nil {
		logger.Error("HEALTH CHECK FAILED: Redis connection error", "error", err)
		return
	}

	if len(s.queues) > 0 {
		stats, err := s.queues[0].GetStats(ctx)
		if err != nil {
			logger.Warn("HEALTH CHECK WARNING: Queue stats unavailable", "error", err)
			return
		}
		if stats.PendingMessages > s.config.LagWarning {
			logger.Warn("HEALTH CHECK WARNING: Queue has high lag", "pending_messages", stats.PendingMessages)
		}
		if stats.DeadLetters > 0 {
			logger.Warn("HEALTH CHECK WARNING: callbacks in dead letter queue", "dead_letters", stats.DeadLetters)
		}
	}

	logger.Debug("HEALTH CHECK: OK - Service healthy")
}

// Stop gracefully stops the service
func (s *ProcessorService) Stop() {
	logger.Info("Shutting down Processor Service...")

	s.cancel()

	// Stop all queues
	timeout := ShutdownTimeout
	stopChan := make(chan bool, len(s.queues))

	for i, q := range s.queues {
		go func(index int, queue *queue.Queue) {
			if err := queue.Stop(timeout); err != nil {
				logger.Error("Error stopping queue", "queue", index, "error", err)
			}
			stopChan <- true
		}(i, q)
	}

	// Wait for all queues
	for range s.queues {
		select {
		case <-stopChan:
		case <-time.After(timeout + 5*time.Second):
			logger.Warn("Timeout waiting for queues to stop")
		}
	}

	// Stop worker manager
	s.worker.Exit()

	// Wait for background tasks
	s.wg.Wait()

	// Final metrics
	s.reportMetrics()

	logger.Info("Processor Service stopped")
}

type replayJob struct {
	ctx    context.Context
	msg    *queue.Message
	result chan error
}

// messageHandler hands an entry to the worker pool and waits for its result,
// so the queue acks only entries that were replayed.
func (s *ProcessorService) messageHandler(ctx context.Context, msg *queue.Message) error {
	jobCtx, cancel := context.WithTimeout(ctx, s.config.ProcessTimeout+time.Second)
	defer cancel()

	job := &replayJob{ctx: jobCtx, msg: msg, result: make(chan error, 1)}
	if err := s.worker.Enqueue(job); err != nil {
		return err
	}

	select {
	case err := <-job.result:
		return err
	case <-jobCtx.Done():
		return fmt.Errorf("waiting for replay of %s: %w", msg.ID, jobCtx.Err())
	}
}

func (s *ProcessorService) workerHandler(workerIndex int, j interface{}) {
	job, ok := j.(*replayJob)
	if !ok {
		logger.Error("unexpected job type", "worker", workerIndex)
		return
	}
	if job.ctx.Err() != nil {
		logger.Warn("replay job expired before it started", "worker", workerIndex, "entry", job.msg.ID)
		return
	}

	start := time.Now()
	err := s.processors.Process(job.ctx, job.msg)
	switch {
	case errors.Is(err, ErrLockHeld):
		// the holder acks or fails the reference; this entry is looked at again later
		logger.Debug("replay in progress elsewhere", "worker", workerIndex, "entry", job.msg.ID)
	case err != nil:
		s.metrics.RecordFailure(time.Since(start))
		logger.Warn("replay failed", "worker", workerIndex, "entry", job.msg.ID, "attempts", job.msg.Attempts, "error", err)
	default:
		s.metrics.RecordReplay(time.Since(start))
	}

	// the handler may have timed out and gone
	select {
	case job.result <- err:
	case <-job.ctx.Done():
	}
}

// Run starts the service and stops it once ctx is done.
func (s *ProcessorService) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}
