// Package ingest 车队状态的唯一写入口
// 所有对 state.Store 的修改都经由 Ingester 的单一写协程按到达顺序串行执行。
package ingest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/fleetgazer/internal/models"
	"github.com/langchou/fleetgazer/internal/state"
	"github.com/langchou/fleetgazer/pkg/metrics"
)

// 错误类型
var (
	ErrDecode       = errors.New("decode failed")
	ErrBackpressure = errors.New("ingest queue full")
	ErrStopped      = errors.New("ingester stopped")
)

const (
	defaultQueueSize     = 256
	subscriberBufferSize = 64
)

// EventType 事件类型
type EventType string

// 事件类型常量
const (
	EventFleetLoaded    EventType = "fleet_loaded"
	EventVehicleUpdate  EventType = "vehicle_update"
	EventVehicleRemoved EventType = "vehicle_removed"
)

// Event 一次成功的状态变更
type Event struct {
	Type      EventType
	Vehicle   models.Vehicle   // vehicle_update
	VehicleID string           // vehicle_update / vehicle_removed
	Vehicles  []models.Vehicle // fleet_loaded
	Location  *models.Location // vehicle_update，仅当更新带位置
}

type opKind int

const (
	opLoad opKind = iota
	opUpdate
	opRemove
)

// 请求状态，写协程与调用方通过 CAS 决定谁先处置请求
const (
	reqQueued int32 = iota
	reqClaimed
	reqAbandoned
)

type request struct {
	ctx      context.Context
	op       opKind
	source   string
	vehicles []models.Vehicle
	update   models.VehicleUpdate
	id       string
	state    *atomic.Int32
	reply    chan result
}

type result struct {
	vehicle models.Vehicle
	err     error
}

// Option 配置项
type Option func(*Ingester)

// WithQueueSize 设置写队列容量
func WithQueueSize(n int) Option {
	return func(i *Ingester) {
		if n > 0 {
			i.queueSize = n
		}
	}
}

// Ingester 串行化写入的 actor
type Ingester struct {
	store  *state.Store
	logger *zap.Logger

	queueSize int
	queue     chan request
	done      chan struct{}
	runOnce   sync.Once

	mu          sync.RWMutex
	subscribers []chan Event
}

// New 创建 Ingester，需要调用 Run 才开始处理
func New(store *state.Store, logger *zap.Logger, opts ...Option) *Ingester {
	i := &Ingester{
		store:     store,
		logger:    logger,
		queueSize: defaultQueueSize,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(i)
	}
	i.queue = make(chan request, i.queueSize)
	return i
}

// Run 运行写协程，直到 ctx 结束
// 退出后所有订阅 channel 被关闭，新的请求返回 ErrStopped。
func (i *Ingester) Run(ctx context.Context) {
	i.runOnce.Do(func() {
		defer i.shutdown()
		i.logger.Info("Ingester started", zap.Int("queue_size", i.queueSize))

		for {
			select {
			case <-ctx.Done():
				i.logger.Info("Ingester stopped", zap.Int("pending", len(i.queue)))
				return
			case req := <-i.queue:
				metrics.SetIngestQueueLength(len(i.queue))
				i.handle(req)
			}
		}
	})
}

// Done 写协程退出后关闭
func (i *Ingester) Done() <-chan struct{} {
	return i.done
}

func (i *Ingester) shutdown() {
	close(i.done)

	i.mu.Lock()
	defer i.mu.Unlock()
	for _, ch := range i.subscribers {
		close(ch)
	}
	i.subscribers = nil
}

// Subscribe 订阅状态变更
// 慢消费者会丢失事件，不会阻塞写协程。
func (i *Ingester) Subscribe() <-chan Event {
	ch := make(chan Event, subscriberBufferSize)

	i.mu.Lock()
	defer i.mu.Unlock()
	select {
	case <-i.done:
		close(ch)
	default:
		i.subscribers = append(i.subscribers, ch)
	}
	return ch
}

// Ingest 解析 JSON 载荷并合并到车队
func (i *Ingester) Ingest(ctx context.Context, raw []byte) (models.Vehicle, error) {
	return i.ingestDecoded(ctx, "payload", raw, Decode)
}

// IngestFor 解析指定车辆的 JSON 载荷并合并，载荷中的 id 被忽略
func (i *Ingester) IngestFor(ctx context.Context, id string, raw []byte) (models.Vehicle, error) {
	return i.ingestDecoded(ctx, "payload", raw, func(b []byte) (models.VehicleUpdate, error) {
		return DecodeFor(id, b)
	})
}

// IngestTelemetry 解析车载遥测数据并合并到车队
func (i *Ingester) IngestTelemetry(ctx context.Context, raw []byte) (models.Vehicle, error) {
	return i.ingestDecoded(ctx, "telemetry", raw, DecodeTelemetry)
}

func (i *Ingester) ingestDecoded(ctx context.Context, source string, raw []byte, decode func([]byte) (models.VehicleUpdate, error)) (models.Vehicle, error) {
	u, err := decode(raw)
	if err != nil {
		metrics.RecordIngest(source, resultLabel(err))
		i.logger.Warn("Dropped undecodable payload",
			zap.String("source", source),
			zap.Int("size", len(raw)),
			zap.Error(err))
		return models.Vehicle{}, err
	}
	res := i.submit(ctx, request{op: opUpdate, source: source, update: u})
	return res.vehicle, res.err
}

// Apply 合并一个已解析的增量更新
func (i *Ingester) Apply(ctx context.Context, u models.VehicleUpdate) (models.Vehicle, error) {
	res := i.submit(ctx, request{op: opUpdate, source: "update", update: u})
	return res.vehicle, res.err
}

// LoadAll 整体替换车队
func (i *Ingester) LoadAll(ctx context.Context, vehicles []models.Vehicle) error {
	return i.submit(ctx, request{op: opLoad, source: "load", vehicles: vehicles}).err
}

// Remove 删除车辆
func (i *Ingester) Remove(ctx context.Context, id string) error {
	return i.submit(ctx, request{op: opRemove, source: "remove", id: id}).err
}

// submit 非阻塞入队并等待写协程结果
// 写协程取走请求前 ctx 结束则请求作废，不会再修改车队；
// 已被取走的请求一定等到结果，返回的错误与车队是否变化始终一致。
func (i *Ingester) submit(ctx context.Context, req request) result {
	select {
	case <-i.done:
		metrics.RecordIngest(req.source, resultLabel(ErrStopped))
		return result{err: ErrStopped}
	default:
	}

	req.ctx = ctx
	req.state = new(atomic.Int32)
	req.reply = make(chan result, 1)
	select {
	case i.queue <- req:
		metrics.SetIngestQueueLength(len(i.queue))
	default:
		metrics.RecordIngest(req.source, resultLabel(ErrBackpressure))
		i.logger.Warn("Ingest queue full", zap.String("source", req.source), zap.Int("capacity", i.queueSize))
		return result{err: ErrBackpressure}
	}

	select {
	case res := <-req.reply:
		return res
	case <-i.done:
		return i.abandon(req, ErrStopped)
	case <-ctx.Done():
		return i.abandon(req, ctx.Err())
	}
}

// abandon 尝试作废尚未被取走的请求，失败说明写协程已在执行，等待其结果
func (i *Ingester) abandon(req request, err error) result {
	if req.state.CompareAndSwap(reqQueued, reqAbandoned) {
		return result{err: err}
	}
	return <-req.reply
}

func (i *Ingester) handle(req request) {
	start := time.Now()
	var res result

	if req.ctx.Err() != nil {
		req.state.CompareAndSwap(reqQueued, reqAbandoned)
	}
	if !req.state.CompareAndSwap(reqQueued, reqClaimed) {
		res.err = req.ctx.Err()
		if res.err == nil {
			res.err = context.Canceled
		}
		metrics.RecordIngest(req.source, resultLabel(res.err))
		i.logger.Debug("Skipped abandoned fleet mutation",
			zap.String("source", req.source),
			zap.String("vehicle_id", requestVehicleID(req)),
			zap.Error(res.err))
		req.reply <- res
		return
	}

	switch req.op {
	case opLoad:
		res.err = i.store.LoadAll(req.vehicles)
		if res.err == nil {
			i.logger.Info("Fleet loaded", zap.Int("vehicles", len(req.vehicles)))
			i.publish(Event{Type: EventFleetLoaded, Vehicles: i.store.List()})
		}
	case opUpdate:
		res.vehicle, res.err = i.store.ApplyUpdate(req.update)
		if res.err == nil {
			ev := Event{Type: EventVehicleUpdate, VehicleID: res.vehicle.ID, Vehicle: res.vehicle}
			if req.update.Position != nil {
				if h, err := i.store.History(res.vehicle.ID, 1); err == nil && len(h) == 1 {
					ev.Location = &h[0]
				}
			}
			i.publish(ev)
		}
	case opRemove:
		res.err = i.store.Remove(req.id)
		if res.err == nil {
			i.publish(Event{Type: EventVehicleRemoved, VehicleID: req.id})
		}
	}

	metrics.ObserveIngestApply(time.Since(start).Seconds())
	metrics.RecordIngest(req.source, resultLabel(res.err))
	metrics.SetFleetVehicles(i.store.Len())

	if res.err != nil {
		i.logger.Warn("Dropped fleet mutation",
			zap.String("source", req.source),
			zap.String("vehicle_id", requestVehicleID(req)),
			zap.Error(res.err))
	}
	req.reply <- res
}

func (i *Ingester) publish(e Event) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	for _, ch := range i.subscribers {
		select {
		case ch <- e:
		default:
			// 跳过慢消费者
		}
	}
}

func requestVehicleID(req request) string {
	if req.op == opRemove {
		return req.id
	}
	return req.update.ID
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "applied"
	case errors.Is(err, ErrDecode):
		return "decode_error"
	case errors.Is(err, state.ErrNotFound):
		return "not_found"
	case errors.Is(err, state.ErrValidation):
		return "invalid"
	case errors.Is(err, ErrBackpressure):
		return "backpressure"
	case errors.Is(err, ErrStopped):
		return "stopped"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	}
	return "error"
}
