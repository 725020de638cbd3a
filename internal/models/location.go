package models

import "time"

// Location 车辆历史位置点
type Location struct {
	ID        string    `json:"id"`
	VehicleID string    `json:"vehicleId"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Timestamp time.Time `json:"timestamp"`
	Speed     float64   `json:"speed"`   // km/h
	Heading   float64   `json:"heading"` // 0-360°，正北为 0
}
