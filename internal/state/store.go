package state

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/langchou/fleetgazer/internal/models"
)

// DefaultHistoryLimit 每辆车默认保留的历史位置点数量
const DefaultHistoryLimit = 100

// 错误类型
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("vehicle not found")
)

// Store 车队状态存储
// 按 ID 保存全部车辆，并保留首次出现的顺序。
// 写操作应只由 ingest 的单一写协程发起，读锁保证读取方看到完整快照。
type Store struct {
	mu       sync.RWMutex
	order    []string
	vehicles map[string]*models.Vehicle
	seenAt   map[string]time.Time // 最后一次收到数据的时间（心跳）
	history  map[string][]models.Location
	limit    int
	now      func() time.Time
}

// Option 存储配置项
type Option func(*Store)

// WithClock 设置时间来源（测试用）
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithHistoryLimit 设置每辆车保留的历史位置点数量
func WithHistoryLimit(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.limit = n
		}
	}
}

// NewStore 创建空的车队存储
func NewStore(opts ...Option) *Store {
	s := &Store{
		vehicles: make(map[string]*models.Vehicle),
		seenAt:   make(map[string]time.Time),
		history:  make(map[string][]models.Location),
		limit:    DefaultHistoryLimit,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadAll 用给定车辆列表整体替换存储内容
// 输入中存在重复 ID 或非法字段时返回 ErrValidation，原有状态保持不变。
func (s *Store) LoadAll(vehicles []models.Vehicle) error {
	order := make([]string, 0, len(vehicles))
	byID := make(map[string]*models.Vehicle, len(vehicles))

	for i := range vehicles {
		v := vehicles[i]
		if err := v.Validate(); err != nil {
			return fmt.Errorf("%w: index %d: %v", ErrValidation, i, err)
		}
		if _, dup := byID[v.ID]; dup {
			return fmt.Errorf("%w: duplicate vehicle id %q", ErrValidation, v.ID)
		}
		byID[v.ID] = &v
		order = append(order, v.ID)
	}

	now := s.now()
	seenAt := make(map[string]time.Time, len(order))
	for _, id := range order {
		seenAt[id] = now
	}

	s.mu.Lock()
	s.order = order
	s.vehicles = byID
	s.seenAt = seenAt
	s.history = make(map[string][]models.Location, len(order))
	s.mu.Unlock()
	return nil
}

// ApplyUpdate 将增量更新合并到已存在的车辆
// 未知 ID 返回 ErrNotFound，不会创建新车辆；字段越界返回 ErrValidation。
// 合并后 LastUpdate 总是被置为 "just now"；带位置的更新同时追加一条历史位置。
func (s *Store) ApplyUpdate(u models.VehicleUpdate) (models.Vehicle, error) {
	if err := u.Validate(); err != nil {
		return models.Vehicle{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.vehicles[u.ID]
	if !ok {
		return models.Vehicle{}, fmt.Errorf("%w: %s", ErrNotFound, u.ID)
	}

	merged := current.Merge(u)
	merged.LastUpdate = models.LastUpdateJustNow
	*current = merged
	now := s.now()
	s.seenAt[u.ID] = now

	if u.Position != nil {
		s.record(merged, u, now)
	}
	return merged, nil
}

// record 追加历史位置，超出上限时丢弃最旧的点
func (s *Store) record(v models.Vehicle, u models.VehicleUpdate, now time.Time) {
	loc := models.Location{
		ID:        uuid.NewString(),
		VehicleID: v.ID,
		Lat:       v.Position.Lat,
		Lng:       v.Position.Lng,
		Timestamp: now,
		Speed:     v.Speed,
	}
	if u.RecordedAt != nil {
		loc.Timestamp = *u.RecordedAt
	}
	if u.Heading != nil {
		loc.Heading = math.Mod(math.Mod(*u.Heading, 360)+360, 360)
	}

	h := s.history[v.ID]
	if len(h) >= s.limit {
		h = append(h[:0:0], h[len(h)-s.limit+1:]...)
	}
	s.history[v.ID] = append(h, loc)
}

// Remove 删除车辆
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.vehicles[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.vehicles, id)
	delete(s.seenAt, id)
	delete(s.history, id)
	for i, vid := range s.order {
		if vid == id {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Get 获取车辆副本
func (s *Store) Get(id string) (models.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.vehicles[id]
	if !ok {
		return models.Vehicle{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *v, nil
}

// List 按存储顺序返回全部车辆副本
func (s *Store) List() []models.Vehicle {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Vehicle, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.vehicles[id])
	}
	return out
}

// Len 车辆数量
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// StaleSince 返回在 cutoff 之后没有收到过数据的车辆 ID（按存储顺序）
func (s *Store) StaleSince(cutoff time.Time) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stale []string
	for _, id := range s.order {
		if seen, ok := s.seenAt[id]; ok && seen.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	return stale
}

// LastSeen 最后一次收到数据的时间
func (s *Store) LastSeen(id string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.seenAt[id]
	return t, ok
}

// History 按时间先后返回车辆的历史位置，limit 大于 0 时只返回最近的 limit 条
func (s *Store) History(id string, limit int) ([]models.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.vehicles[id]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	h := s.history[id]
	if limit > 0 && len(h) > limit {
		h = h[len(h)-limit:]
	}
	out := make([]models.Location, len(h))
	copy(out, h)
	return out, nil
}
