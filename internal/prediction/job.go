package prediction

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
)

// 任务状态常量
const (
	StateIdle      = "idle"
	StatePending   = "pending"
	StateSucceeded = "succeeded"
	StateFailed    = "failed"
	StateCancelled = "cancelled"
)

// 事件常量
const (
	EventStart   = "start"
	EventSucceed = "succeed"
	EventFail    = "fail"
	EventCancel  = "cancel"
	EventRetry   = "retry"
)

// JobStatus 任务快照
type JobStatus struct {
	ID         string     `json:"id"`
	VehicleID  string     `json:"vehicleId"`
	Kind       Kind       `json:"kind"`
	State      string     `json:"state"`
	Attempts   int        `json:"attempts"`
	Result     any        `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// Done 任务是否已结束
func (s JobStatus) Done() bool {
	return s.State != StatePending && s.State != StateIdle
}

// Job 一辆车一种预测的生命周期
// 每次重试 attempts 加一，旧一轮的结果会被丢弃。
type Job struct {
	mu        sync.RWMutex
	id        string
	vehicleID string
	kind      Kind
	fsm       *fsm.FSM

	attempts   int
	result     any
	err        error
	startedAt  time.Time
	finishedAt time.Time
	done       chan struct{}
	cancel     context.CancelFunc
}

func newJob(vehicleID string, kind Kind, onStateChange func(j *Job, from, to string)) *Job {
	j := &Job{
		id:        uuid.NewString(),
		vehicleID: vehicleID,
		kind:      kind,
		done:      make(chan struct{}),
	}

	j.fsm = fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: EventStart, Src: []string{StateIdle}, Dst: StatePending},
			{Name: EventSucceed, Src: []string{StatePending}, Dst: StateSucceeded},
			{Name: EventFail, Src: []string{StatePending}, Dst: StateFailed},
			{Name: EventCancel, Src: []string{StatePending}, Dst: StateCancelled},

			// 失败、取消后允许手动重试；成功后允许刷新
			{Name: EventRetry, Src: []string{StateFailed, StateCancelled, StateSucceeded}, Dst: StatePending},
		},
		fsm.Callbacks{
			"after_event": func(_ context.Context, e *fsm.Event) {
				if onStateChange != nil && e.Src != e.Dst {
					onStateChange(j, e.Src, e.Dst)
				}
			},
		},
	)
	return j
}

// ID 任务 ID
func (j *Job) ID() string { return j.id }

// State 当前状态
func (j *Job) State() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.fsm.Current()
}

// Done 当前一轮结束时关闭
func (j *Job) Done() <-chan struct{} {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.done
}

// Status 返回任务快照
func (j *Job) Status() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()

	s := JobStatus{
		ID:        j.id,
		VehicleID: j.vehicleID,
		Kind:      j.kind,
		State:     j.fsm.Current(),
		Attempts:  j.attempts,
		Result:    j.result,
		StartedAt: j.startedAt,
	}
	if j.err != nil {
		s.Error = j.err.Error()
	}
	if !j.finishedAt.IsZero() {
		finished := j.finishedAt
		s.FinishedAt = &finished
	}
	return s
}

// begin 开始新一轮，返回轮次编号
func (j *Job) begin(cancel context.CancelFunc) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	event := EventRetry
	if j.fsm.Current() == StateIdle {
		event = EventStart
	}
	if err := j.fsm.Event(context.Background(), event); err != nil {
		return 0, fmt.Errorf("trigger event %s: %w", event, err)
	}

	if j.attempts > 0 {
		j.done = make(chan struct{})
	}
	j.attempts++
	j.result = nil
	j.err = nil
	j.startedAt = time.Now()
	j.finishedAt = time.Time{}
	j.cancel = cancel
	return j.attempts, nil
}

// finish 结束指定轮次；轮次已过期或任务不在进行中时返回 false
func (j *Job) finish(attempt int, event string, result any, err error) bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	if attempt != j.attempts || j.fsm.Current() != StatePending {
		return false
	}
	if fsmErr := j.fsm.Event(context.Background(), event); fsmErr != nil {
		return false
	}

	j.result = result
	j.err = err
	j.finishedAt = time.Now()
	if j.cancel != nil {
		j.cancel()
		j.cancel = nil
	}
	close(j.done)
	return true
}

func (j *Job) currentAttempt() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.attempts
}
