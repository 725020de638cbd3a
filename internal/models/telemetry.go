package models

// Telemetry 车载设备上报的遥测数据
// 字段为指针，用于区分缺失与零值
type Telemetry struct {
	VehicleID string             `json:"vehicleId"`
	Timestamp *int64             `json:"timestamp"` // 毫秒
	Location  *TelemetryLocation `json:"location"`
	FuelLevel *float64           `json:"fuelLevel,omitempty"`
	Engine    *TelemetryEngine   `json:"engine,omitempty"`
}

// TelemetryLocation GPS 数据
type TelemetryLocation struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Altitude  *float64 `json:"altitude,omitempty"`
	Speed     *float64 `json:"speed,omitempty"` // km/h
	Heading   *float64 `json:"heading,omitempty"`
}

// TelemetryEngine 发动机数据
type TelemetryEngine struct {
	RPM         *float64 `json:"rpm,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	OilPressure *float64 `json:"oilPressure,omitempty"`
}
