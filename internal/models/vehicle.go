package models

import (
	"fmt"
	"math"
	"time"
)

// Status 车辆状态
type Status string

// 车辆状态常量
const (
	StatusActive Status = "active"
	StatusIdle   Status = "idle"
	StatusAlert  Status = "alert"
)

// Statuses 全部合法状态，按展示顺序排列
var Statuses = []Status{StatusActive, StatusIdle, StatusAlert}

// Valid 检查状态是否合法
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusIdle, StatusAlert:
		return true
	}
	return false
}

// LastUpdateJustNow 合并更新后写入的最近更新标签
const LastUpdateJustNow = "just now"

// Position 经纬度（度）
type Position struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Validate 检查经纬度范围
func (p Position) Validate() error {
	if math.IsNaN(p.Lat) || p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("latitude %v out of range", p.Lat)
	}
	if math.IsNaN(p.Lng) || p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("longitude %v out of range", p.Lng)
	}
	return nil
}

// Vehicle 被追踪的车辆
type Vehicle struct {
	ID         string   `json:"id" yaml:"id"`
	Kind       string   `json:"type" yaml:"type"`
	Status     Status   `json:"status" yaml:"status"`
	Position   Position `json:"location" yaml:"location"`
	Speed      float64  `json:"speed" yaml:"speed"`           // km/h
	FuelLevel  float64  `json:"fuel" yaml:"fuel"`             // 0-100 %
	LastUpdate string   `json:"lastUpdate" yaml:"lastUpdate"` // 人类可读的更新时间
	Driver     string   `json:"driver,omitempty" yaml:"driver,omitempty"`
}

// Validate 检查车辆字段是否满足约束
func (v *Vehicle) Validate() error {
	if v.ID == "" {
		return fmt.Errorf("missing vehicle id")
	}
	if !v.Status.Valid() {
		return fmt.Errorf("vehicle %s: invalid status %q", v.ID, v.Status)
	}
	if err := validateSpeed(v.Speed); err != nil {
		return fmt.Errorf("vehicle %s: %w", v.ID, err)
	}
	if err := validateFuel(v.FuelLevel); err != nil {
		return fmt.Errorf("vehicle %s: %w", v.ID, err)
	}
	if err := v.Position.Validate(); err != nil {
		return fmt.Errorf("vehicle %s: %w", v.ID, err)
	}
	return nil
}

// VehicleUpdate 车辆增量更新，nil 字段表示未提供
type VehicleUpdate struct {
	ID         string
	Kind       *string
	Status     *Status
	Position   *Position
	Speed      *float64
	FuelLevel  *float64
	LastUpdate *string
	Driver     *string

	// 只随位置记录进入历史轨迹，不属于车辆字段
	Heading    *float64
	RecordedAt *time.Time
}

// Validate 检查已提供字段是否满足约束
func (u *VehicleUpdate) Validate() error {
	if u.ID == "" {
		return fmt.Errorf("missing vehicle id")
	}
	if u.Status != nil && !u.Status.Valid() {
		return fmt.Errorf("invalid status %q", *u.Status)
	}
	if u.Speed != nil {
		if err := validateSpeed(*u.Speed); err != nil {
			return err
		}
	}
	if u.FuelLevel != nil {
		if err := validateFuel(*u.FuelLevel); err != nil {
			return err
		}
	}
	if u.Position != nil {
		if err := u.Position.Validate(); err != nil {
			return err
		}
	}
	if u.Heading != nil && (math.IsNaN(*u.Heading) || math.IsInf(*u.Heading, 0)) {
		return fmt.Errorf("heading %v must be a finite number", *u.Heading)
	}
	return nil
}

// Empty 是否没有携带任何字段
func (u *VehicleUpdate) Empty() bool {
	return u.Kind == nil && u.Status == nil && u.Position == nil && u.Speed == nil &&
		u.FuelLevel == nil && u.LastUpdate == nil && u.Driver == nil
}

// Merge 浅合并：已提供的字段覆盖，未提供的保持不变
func (v Vehicle) Merge(u VehicleUpdate) Vehicle {
	if u.Kind != nil {
		v.Kind = *u.Kind
	}
	if u.Status != nil {
		v.Status = *u.Status
	}
	if u.Position != nil {
		v.Position = *u.Position
	}
	if u.Speed != nil {
		v.Speed = *u.Speed
	}
	if u.FuelLevel != nil {
		v.FuelLevel = *u.FuelLevel
	}
	if u.LastUpdate != nil {
		v.LastUpdate = *u.LastUpdate
	}
	if u.Driver != nil {
		v.Driver = *u.Driver
	}
	return v
}

func validateSpeed(speed float64) error {
	if math.IsNaN(speed) || math.IsInf(speed, 0) || speed < 0 {
		return fmt.Errorf("speed %v must be a non-negative number", speed)
	}
	return nil
}

func validateFuel(fuel float64) error {
	if math.IsNaN(fuel) || fuel < 0 || fuel > 100 {
		return fmt.Errorf("fuel level %v out of range [0,100]", fuel)
	}
	return nil
}
