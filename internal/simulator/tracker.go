// Package simulator 模拟车载追踪设备，定期向服务端上报遥测数据
package simulator

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/langchou/fleetgazer/internal/models"
)

const (
	jitterDegrees  = 0.02 // 位置在基准点附近的抖动范围
	maxSpeed       = 100  // km/h
	maxFuelBurn    = 0.2  // 每次读数最多消耗的油量 %
	defaultFuel    = 75.0 // 未知油量时的初始值
	minRPM         = 700
	rpmRange       = 2000
	baseEngineTemp = 80.0
	baseOilPress   = 40.0
)

// Tracker 单辆车的模拟设备
type Tracker struct {
	vehicleID string
	base      models.Position

	mu   sync.Mutex
	fuel float64
	rng  *rand.Rand
}

// NewTracker 创建模拟设备
// fuel 为 nil 表示油量未知，使用默认油量；已知油量会被限制在 0 到 100 之间。
func NewTracker(vehicleID string, base models.Position, fuel *float64, seed int64) *Tracker {
	level := defaultFuel
	if fuel != nil {
		level = clamp(*fuel, 0, 100)
	}
	return &Tracker{
		vehicleID: vehicleID,
		base:      base,
		fuel:      level,
		rng:       rand.New(rand.NewSource(seed)),
	}
}

// VehicleID 车辆 ID
func (t *Tracker) VehicleID() string { return t.vehicleID }

// Read 采集一次读数
// 位置在基准点附近随机抖动，油量单调下降到 0 为止。
func (t *Tracker) Read(now time.Time) models.Telemetry {
	t.mu.Lock()
	defer t.mu.Unlock()

	lat := clamp(t.base.Lat+(t.rng.Float64()-0.5)*jitterDegrees, -90, 90)
	lng := clamp(t.base.Lng+(t.rng.Float64()-0.5)*jitterDegrees, -180, 180)
	altitude := 10 + t.rng.Float64()*50
	speed := t.rng.Float64() * maxSpeed
	heading := t.rng.Float64() * 360

	t.fuel = math.Max(0, t.fuel-t.rng.Float64()*maxFuelBurn)
	fuel := t.fuel

	rpm := float64(minRPM + t.rng.Intn(rpmRange))
	temp := baseEngineTemp + t.rng.Float64()*20
	oil := baseOilPress + t.rng.Float64()*10

	ts := now.UnixMilli()
	return models.Telemetry{
		VehicleID: t.vehicleID,
		Timestamp: &ts,
		Location: &models.TelemetryLocation{
			Latitude:  &lat,
			Longitude: &lng,
			Altitude:  &altitude,
			Speed:     &speed,
			Heading:   &heading,
		},
		FuelLevel: &fuel,
		Engine: &models.TelemetryEngine{
			RPM:         &rpm,
			Temperature: &temp,
			OilPressure: &oil,
		},
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
