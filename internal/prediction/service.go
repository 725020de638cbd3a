package prediction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/fleetgazer/internal/models"
	"github.com/langchou/fleetgazer/pkg/metrics"
)

// 错误类型
var (
	ErrUnknownKind = errors.New("unknown prediction kind")
	ErrTimeout     = errors.New("prediction timed out")
	ErrJobNotFound = errors.New("prediction job not found")
	ErrNotPending  = errors.New("prediction job is not pending")
	ErrClosed      = errors.New("prediction service closed")
)

const defaultTimeout = 10 * time.Second

// VehicleLookup 按 ID 查询车辆
type VehicleLookup interface {
	Get(id string) (models.Vehicle, error)
}

type jobKey struct {
	vehicleID string
	kind      Kind
}

// Service 管理预测任务
// 同一辆车同一类型的预测同时最多只有一个在进行。
type Service struct {
	predictor Predictor
	vehicles  VehicleLookup
	logger    *zap.Logger
	timeout   time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	jobs   map[jobKey]*Job
	closed bool
}

// NewService 创建预测服务，timeout 为单次调用的超时时间
func NewService(predictor Predictor, vehicles VehicleLookup, logger *zap.Logger, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		predictor: predictor,
		vehicles:  vehicles,
		logger:    logger,
		timeout:   timeout,
		ctx:       ctx,
		cancel:    cancel,
		jobs:      make(map[jobKey]*Job),
	}
}

// Request 发起预测
// 已在进行中的任务直接返回；已结束的任务重新开始一轮。
func (s *Service) Request(vehicleID string, kind Kind) (*Job, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	// 持锁查询车辆，删除车辆后的 Forget 只能排在本次登记之后
	vehicle, err := s.vehicles.Get(vehicleID)
	if err != nil {
		return nil, err
	}

	key := jobKey{vehicleID: vehicleID, kind: kind}
	job, ok := s.jobs[key]
	if !ok {
		job = newJob(vehicleID, kind, s.onStateChange)
		s.jobs[key] = job
	} else if job.State() == StatePending {
		return job, nil
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	attempt, err := job.begin(cancel)
	if err != nil {
		cancel()
		return nil, err
	}

	s.wg.Add(1)
	go s.run(ctx, job, attempt, vehicle)
	return job, nil
}

func (s *Service) run(ctx context.Context, job *Job, attempt int, vehicle models.Vehicle) {
	defer s.wg.Done()

	start := time.Now()
	result, err := predict(ctx, s.predictor, job.kind, vehicle)
	elapsed := time.Since(start).Seconds()

	switch {
	case err == nil:
		if job.finish(attempt, EventSucceed, result, nil) {
			metrics.RecordPrediction(string(job.kind), StateSucceeded, elapsed)
		}
	case errors.Is(err, context.DeadlineExceeded):
		err = fmt.Errorf("%w after %s", ErrTimeout, s.timeout)
		if job.finish(attempt, EventFail, nil, err) {
			metrics.RecordPrediction(string(job.kind), "timeout", elapsed)
		}
	case errors.Is(err, context.Canceled):
		if job.finish(attempt, EventCancel, nil, err) {
			metrics.RecordPrediction(string(job.kind), StateCancelled, elapsed)
		}
	default:
		if job.finish(attempt, EventFail, nil, err) {
			metrics.RecordPrediction(string(job.kind), StateFailed, elapsed)
		}
	}

	if err != nil {
		s.logger.Warn("Prediction did not succeed",
			zap.String("job_id", job.id),
			zap.String("vehicle_id", job.vehicleID),
			zap.String("kind", string(job.kind)),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}
}

// Get 获取任务
func (s *Service) Get(vehicleID string, kind Kind) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobKey{vehicleID: vehicleID, kind: kind}]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrJobNotFound, vehicleID, kind)
	}
	return job, nil
}

// Await 等待任务当前一轮结束，或 ctx 结束
func (s *Service) Await(ctx context.Context, job *Job) (JobStatus, error) {
	select {
	case <-job.Done():
		return job.Status(), nil
	case <-ctx.Done():
		return job.Status(), ctx.Err()
	}
}

// Cancel 取消进行中的任务
func (s *Service) Cancel(vehicleID string, kind Kind) (*Job, error) {
	job, err := s.Get(vehicleID, kind)
	if err != nil {
		return nil, err
	}
	if !job.finish(job.currentAttempt(), EventCancel, nil, context.Canceled) {
		return job, ErrNotPending
	}
	metrics.RecordPrediction(string(kind), StateCancelled, 0)
	return job, nil
}

// Forget 丢弃车辆的全部任务（车辆被删除时调用），进行中的任务会被取消
func (s *Service) Forget(vehicleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, job := range s.jobs {
		if key.vehicleID != vehicleID {
			continue
		}
		job.finish(job.currentAttempt(), EventCancel, nil, context.Canceled)
		delete(s.jobs, key)
	}
}

// Close 取消所有进行中的任务并等待其退出
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

func (s *Service) onStateChange(j *Job, from, to string) {
	s.logger.Debug("Prediction state changed",
		zap.String("job_id", j.id),
		zap.String("vehicle_id", j.vehicleID),
		zap.String("kind", string(j.kind)),
		zap.String("from", from),
		zap.String("to", to))
}
