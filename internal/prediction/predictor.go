// Package prediction 车辆预测（路线、驾驶行为、保养）
// Predictor 是外部的、可能失败也可能很慢的调用；Service 为每次调用提供超时、取消和生命周期管理。
package prediction

import (
	"context"
	"fmt"
	"time"

	"github.com/langchou/fleetgazer/internal/models"
)

// Kind 预测类型
type Kind string

// 预测类型常量
const (
	KindRoute       Kind = "route"
	KindDriving     Kind = "driving"
	KindMaintenance Kind = "maintenance"
)

// Kinds 全部预测类型
var Kinds = []Kind{KindRoute, KindDriving, KindMaintenance}

// ParseKind 解析预测类型
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Predictor 预测服务
type Predictor interface {
	PredictRoute(ctx context.Context, v models.Vehicle) (*models.RoutePrediction, error)
	AnalyzeDriving(ctx context.Context, v models.Vehicle) (*models.DrivingAnalysis, error)
	PredictMaintenance(ctx context.Context, v models.Vehicle) (*models.MaintenancePrediction, error)
}

// StubPredictor 返回固定结果的预测器，用于演示和测试
type StubPredictor struct {
	Latency time.Duration
}

// NewStubPredictor 创建 StubPredictor
func NewStubPredictor(latency time.Duration) *StubPredictor {
	return &StubPredictor{Latency: latency}
}

func (p *StubPredictor) wait(ctx context.Context) error {
	if p.Latency <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(p.Latency)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PredictRoute 路线预测，路线从车辆当前位置出发
func (p *StubPredictor) PredictRoute(ctx context.Context, v models.Vehicle) (*models.RoutePrediction, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	return &models.RoutePrediction{
		VehicleID:            v.ID,
		PredictedDestination: "San Francisco Downtown",
		EstimatedArrival:     "14:30",
		RoutePoints: []models.Position{
			v.Position,
			{Lat: 37.7833, Lng: -122.4167},
			{Lat: 37.7879, Lng: -122.4074},
		},
		Confidence: 0.87,
	}, nil
}

// AnalyzeDriving 驾驶行为分析
func (p *StubPredictor) AnalyzeDriving(ctx context.Context, v models.Vehicle) (*models.DrivingAnalysis, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	return &models.DrivingAnalysis{
		VehicleID:      v.ID,
		SafetyScore:    85,
		FuelEfficiency: "Good",
		MaintenanceRecommendations: []string{
			"Check brake pads in next 1000 km",
			"Oil change recommended within 2 weeks",
		},
		DrivingHabits: models.DrivingHabits{
			HarshAcceleration: "Low",
			HarshBraking:      "Medium",
			SpeedingInstances: 3,
		},
	}, nil
}

// PredictMaintenance 保养预测
func (p *StubPredictor) PredictMaintenance(ctx context.Context, v models.Vehicle) (*models.MaintenancePrediction, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	return &models.MaintenancePrediction{
		VehicleID:       v.ID,
		NextServiceDate: time.Now().AddDate(0, 0, 30).Format("2006-01-02"),
		PredictedIssues: []models.PredictedIssue{
			{Component: "Battery", Probability: 0.72, Timeframe: "2-3 weeks", Severity: "Medium"},
			{Component: "Brake System", Probability: 0.45, Timeframe: "1-2 months", Severity: "Low"},
		},
		EstimatedCosts: models.CostEstimate{Low: 150, Medium: 300, High: 500},
	}, nil
}

// predict 按类型分发
func predict(ctx context.Context, p Predictor, kind Kind, v models.Vehicle) (any, error) {
	switch kind {
	case KindRoute:
		return p.PredictRoute(ctx, v)
	case KindDriving:
		return p.AnalyzeDriving(ctx, v)
	case KindMaintenance:
		return p.PredictMaintenance(ctx, v)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}
