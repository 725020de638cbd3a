package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/langchou/fleetgazer/internal/models"
)

type wirePosition struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

type wireUpdate struct {
	ID         *string        `json:"id"`
	Kind       *string        `json:"type"`
	Status     *models.Status `json:"status"`
	Position   *wirePosition  `json:"location"`
	Speed      *float64       `json:"speed"`
	FuelLevel  *float64       `json:"fuel"`
	LastUpdate *string        `json:"lastUpdate"`
	Driver     *string        `json:"driver"`
}

// Decode 将 JSON 载荷解析为车辆增量更新
// 载荷必须是对象且带非空 id；location 出现时必须同时包含 lat 和 lng。
func Decode(raw []byte) (models.VehicleUpdate, error) {
	return decode(raw, "")
}

// DecodeFor 与 Decode 相同，但以给定 id 为准，载荷中的 id 可以省略
func DecodeFor(id string, raw []byte) (models.VehicleUpdate, error) {
	if id == "" {
		return models.VehicleUpdate{}, fmt.Errorf("%w: missing id", ErrDecode)
	}
	return decode(raw, id)
}

func decode(raw []byte, id string) (models.VehicleUpdate, error) {
	var w wireUpdate
	if err := json.Unmarshal(raw, &w); err != nil {
		return models.VehicleUpdate{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if raw := bytes.TrimSpace(raw); len(raw) == 0 || raw[0] != '{' {
		return models.VehicleUpdate{}, fmt.Errorf("%w: payload is not an object", ErrDecode)
	}
	if id != "" {
		w.ID = &id
	}
	if w.ID == nil || *w.ID == "" {
		return models.VehicleUpdate{}, fmt.Errorf("%w: missing id", ErrDecode)
	}

	u := models.VehicleUpdate{
		ID:         *w.ID,
		Kind:       w.Kind,
		Status:     w.Status,
		Speed:      w.Speed,
		FuelLevel:  w.FuelLevel,
		LastUpdate: w.LastUpdate,
		Driver:     w.Driver,
	}
	if w.Position != nil {
		if w.Position.Lat == nil || w.Position.Lng == nil {
			return models.VehicleUpdate{}, fmt.Errorf("%w: location requires lat and lng", ErrDecode)
		}
		u.Position = &models.Position{Lat: *w.Position.Lat, Lng: *w.Position.Lng}
	}

	if err := u.Validate(); err != nil {
		return models.VehicleUpdate{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return u, nil
}

// DecodeTelemetry 将车载设备遥测数据转换为增量更新
// vehicleId、timestamp、location.latitude/longitude 为必填。
// heading 与 timestamp 只用于历史轨迹。
func DecodeTelemetry(raw []byte) (models.VehicleUpdate, error) {
	var t models.Telemetry
	if err := json.Unmarshal(raw, &t); err != nil {
		return models.VehicleUpdate{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if t.VehicleID == "" {
		return models.VehicleUpdate{}, fmt.Errorf("%w: missing vehicleId", ErrDecode)
	}
	if t.Timestamp == nil {
		return models.VehicleUpdate{}, fmt.Errorf("%w: missing timestamp", ErrDecode)
	}
	if t.Location == nil || t.Location.Latitude == nil || t.Location.Longitude == nil {
		return models.VehicleUpdate{}, fmt.Errorf("%w: location requires latitude and longitude", ErrDecode)
	}

	recordedAt := time.UnixMilli(*t.Timestamp).UTC()
	u := models.VehicleUpdate{
		ID:         t.VehicleID,
		Position:   &models.Position{Lat: *t.Location.Latitude, Lng: *t.Location.Longitude},
		Speed:      t.Location.Speed,
		FuelLevel:  t.FuelLevel,
		Heading:    t.Location.Heading,
		RecordedAt: &recordedAt,
	}
	if err := u.Validate(); err != nil {
		return models.VehicleUpdate{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return u, nil
}
