package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/fleetgazer/internal/ingest"
	"github.com/langchou/fleetgazer/internal/models"
	"github.com/langchou/fleetgazer/internal/prediction"
	"github.com/langchou/fleetgazer/internal/seed"
	"github.com/langchou/fleetgazer/internal/state"
	"github.com/langchou/fleetgazer/internal/views"
	"github.com/langchou/fleetgazer/pkg/metrics"
	"github.com/langchou/fleetgazer/pkg/ws"
)

// Broadcaster 推送消息给前端
type Broadcaster interface {
	BroadcastMessage(msgType string, data interface{})
}

// StaleVehicle 心跳超时通知
type StaleVehicle struct {
	VehicleID string    `json:"vehicleId"`
	LastSeen  time.Time `json:"lastSeen"`
	Silent    string    `json:"silentFor"`
}

// PositionStore 历史位置的持久化存储
type PositionStore interface {
	Create(ctx context.Context, loc *models.Location) error
	ListByVehicleID(ctx context.Context, vehicleID string, limit int) ([]models.Location, error)
}

// Options 服务配置
type Options struct {
	StaleAfter         time.Duration
	StaleCheckInterval time.Duration

	// 不为 nil 时历史位置写入并读取自该存储，否则只保留在内存中
	Positions PositionStore
}

const positionWriteTimeout = 5 * time.Second

// FleetService 车队服务
// 负责启动时的批量加载、把写入口的变更推送给前端，以及心跳检测。
type FleetService struct {
	logger      *zap.Logger
	store       *state.Store
	ingester    *ingest.Ingester
	predictions *prediction.Service
	broadcaster Broadcaster
	opts        Options
	now         func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	staleMu sync.Mutex
	stale   map[string]bool // 已通知过的失联车辆
}

// NewFleetService 创建车队服务
func NewFleetService(
	logger *zap.Logger,
	store *state.Store,
	ingester *ingest.Ingester,
	predictions *prediction.Service,
	broadcaster Broadcaster,
	opts Options,
) *FleetService {
	return &FleetService{
		logger:      logger,
		store:       store,
		ingester:    ingester,
		predictions: predictions,
		broadcaster: broadcaster,
		opts:        opts,
		now:         time.Now,
		stale:       make(map[string]bool),
	}
}

// Start 启动写协程、事件转发和心跳检测，并从 source 批量加载车队
func (s *FleetService) Start(ctx context.Context, source seed.Source) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("fleet service already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	events := s.ingester.Subscribe()
	if s.opts.Positions != nil {
		positions := s.ingester.Subscribe()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.recordPositions(positions)
		}()
	}

	s.wg.Add(3)
	go func() {
		defer s.wg.Done()
		s.ingester.Run(ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.forwardEvents(events)
	}()
	go func() {
		defer s.wg.Done()
		s.monitorHeartbeats(ctx)
	}()

	vehicles, err := source.Load(ctx)
	if err != nil {
		s.Stop()
		return fmt.Errorf("load fleet: %w", err)
	}
	if err := s.ingester.LoadAll(ctx, vehicles); err != nil {
		s.Stop()
		return fmt.Errorf("load fleet: %w", err)
	}

	s.logger.Info("Fleet service started", zap.Int("vehicles", len(vehicles)))
	return nil
}

// Stop 停止服务并等待后台协程退出
func (s *FleetService) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.logger.Info("Fleet service stopped")
}

// forwardEvents 把写入口的变更推送给前端，直到订阅被关闭
func (s *FleetService) forwardEvents(events <-chan ingest.Event) {
	for ev := range events {
		switch ev.Type {
		case ingest.EventFleetLoaded:
			s.resetStale()
			s.broadcast(ws.MsgTypeFleetLoaded, ws.InitData{
				Vehicles: ev.Vehicles,
				Summary:  views.Summarize(ev.Vehicles),
			})
		case ingest.EventVehicleUpdate:
			s.clearStale(ev.VehicleID)
			s.broadcast(ws.MsgTypeVehicleUpdate, ev.Vehicle)
		case ingest.EventVehicleRemoved:
			s.clearStale(ev.VehicleID)
			if s.predictions != nil {
				s.predictions.Forget(ev.VehicleID)
			}
			s.broadcast(ws.MsgTypeVehicleRemoved, map[string]string{"id": ev.VehicleID})
		}
	}
}

// recordPositions 把带位置的更新写入历史位置存储，直到订阅被关闭
func (s *FleetService) recordPositions(events <-chan ingest.Event) {
	for ev := range events {
		if ev.Type != ingest.EventVehicleUpdate || ev.Location == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), positionWriteTimeout)
		if err := s.opts.Positions.Create(ctx, ev.Location); err != nil {
			s.logger.Warn("Failed to record position",
				zap.String("vehicle_id", ev.VehicleID),
				zap.Error(err))
		}
		cancel()
	}
}

func (s *FleetService) broadcast(msgType string, data interface{}) {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.BroadcastMessage(msgType, data)
}

// monitorHeartbeats 定期检查长时间没有数据的车辆
func (s *FleetService) monitorHeartbeats(ctx context.Context) {
	if s.opts.StaleAfter <= 0 || s.opts.StaleCheckInterval <= 0 {
		return
	}

	ticker := time.NewTicker(s.opts.StaleCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.CheckHeartbeats()
		}
	}
}

// CheckHeartbeats 执行一次心跳检查，返回本次新发现的失联车辆
// 每辆车失联只通知一次，再次收到数据后重新计时。
func (s *FleetService) CheckHeartbeats() []StaleVehicle {
	now := s.now()
	cutoff := now.Add(-s.opts.StaleAfter)
	ids := s.store.StaleSince(cutoff)
	metrics.SetStaleVehicles(len(ids))

	fresh := s.markStale(ids, cutoff, now)
	for _, sv := range fresh {
		s.logger.Warn("Vehicle may be offline",
			zap.String("vehicle_id", sv.VehicleID),
			zap.Time("last_seen", sv.LastSeen))
		s.broadcast(ws.MsgTypeVehicleStale, sv)
	}
	return fresh
}

// markStale 标记扫描到的失联车辆
// 扫描之后才上报的车辆 LastSeen 已不早于 cutoff，不会被标记。
func (s *FleetService) markStale(ids []string, cutoff, now time.Time) []StaleVehicle {
	s.staleMu.Lock()
	defer s.staleMu.Unlock()

	var fresh []StaleVehicle
	for _, id := range ids {
		if s.stale[id] {
			continue
		}
		lastSeen, ok := s.store.LastSeen(id)
		if !ok || !lastSeen.Before(cutoff) {
			continue
		}
		s.stale[id] = true
		fresh = append(fresh, StaleVehicle{
			VehicleID: id,
			LastSeen:  lastSeen,
			Silent:    now.Sub(lastSeen).Truncate(time.Second).String(),
		})
	}
	return fresh
}

func (s *FleetService) clearStale(id string) {
	s.staleMu.Lock()
	delete(s.stale, id)
	s.staleMu.Unlock()
}

func (s *FleetService) resetStale() {
	s.staleMu.Lock()
	s.stale = make(map[string]bool)
	s.staleMu.Unlock()
}

// Vehicles 车辆列表，query 非空时按 ID、类型、状态搜索
func (s *FleetService) Vehicles(query string) []models.Vehicle {
	return views.FilterBySearch(s.store.List(), query)
}

// Locations 车辆历史位置，按时间先后排列
func (s *FleetService) Locations(ctx context.Context, id string, limit int) ([]models.Location, error) {
	if s.opts.Positions == nil {
		return s.store.History(id, limit)
	}
	if _, err := s.store.Get(id); err != nil {
		return nil, err
	}
	locations, err := s.opts.Positions.ListByVehicleID(ctx, id, limit)
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	return locations, nil
}

// Vehicle 获取单辆车
func (s *FleetService) Vehicle(id string) (models.Vehicle, error) {
	return s.store.Get(id)
}

// Selected 默认选中的车辆
func (s *FleetService) Selected() (models.Vehicle, bool) {
	return views.SelectDefault(s.store.List())
}

// Summary 仪表盘汇总
func (s *FleetService) Summary() views.Summary {
	return views.Summarize(s.store.List())
}

// InitData WebSocket 新连接的初始数据
func (s *FleetService) InitData() *ws.InitData {
	vehicles := s.store.List()
	return &ws.InitData{
		Vehicles: vehicles,
		Summary:  views.Summarize(vehicles),
	}
}

// Ingest 写入一条车辆增量更新
func (s *FleetService) Ingest(ctx context.Context, raw []byte) (models.Vehicle, error) {
	return s.ingester.Ingest(ctx, raw)
}

// Update 写入指定车辆的增量更新
func (s *FleetService) Update(ctx context.Context, id string, raw []byte) (models.Vehicle, error) {
	return s.ingester.IngestFor(ctx, id, raw)
}

// IngestTelemetry 写入一条车载遥测数据
func (s *FleetService) IngestTelemetry(ctx context.Context, raw []byte) (models.Vehicle, error) {
	return s.ingester.IngestTelemetry(ctx, raw)
}

// Load 整体替换车队
func (s *FleetService) Load(ctx context.Context, vehicles []models.Vehicle) error {
	return s.ingester.LoadAll(ctx, vehicles)
}

// Remove 删除车辆
func (s *FleetService) Remove(ctx context.Context, id string) error {
	return s.ingester.Remove(ctx, id)
}
