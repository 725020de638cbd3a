package models

// RoutePrediction 路线预测结果
type RoutePrediction struct {
	VehicleID            string     `json:"vehicleId"`
	PredictedDestination string     `json:"predictedDestination"`
	EstimatedArrival     string     `json:"estimatedArrival"`
	RoutePoints          []Position `json:"routePoints"`
	Confidence           float64    `json:"confidence"`
}

// DrivingHabits 驾驶习惯
type DrivingHabits struct {
	HarshAcceleration string `json:"harshAcceleration"`
	HarshBraking      string `json:"harshBraking"`
	SpeedingInstances int    `json:"speedingInstances"`
}

// DrivingAnalysis 驾驶模式分析结果
type DrivingAnalysis struct {
	VehicleID                  string        `json:"vehicleId"`
	SafetyScore                int           `json:"safetyScore"`
	FuelEfficiency             string        `json:"fuelEfficiency"`
	MaintenanceRecommendations []string      `json:"maintenanceRecommendations"`
	DrivingHabits              DrivingHabits `json:"drivingHabits"`
}

// PredictedIssue 预测的故障项
type PredictedIssue struct {
	Component   string  `json:"component"`
	Probability float64 `json:"probability"`
	Timeframe   string  `json:"timeframe"`
	Severity    string  `json:"severity"`
}

// CostEstimate 维修费用估算
type CostEstimate struct {
	Low    float64 `json:"low"`
	Medium float64 `json:"medium"`
	High   float64 `json:"high"`
}

// MaintenancePrediction 保养预测结果
type MaintenancePrediction struct {
	VehicleID       string           `json:"vehicleId"`
	NextServiceDate string           `json:"nextServiceDate"`
	PredictedIssues []PredictedIssue `json:"predictedIssues"`
	EstimatedCosts  CostEstimate     `json:"estimatedCosts"`
}
