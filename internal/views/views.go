// Package views 从车队快照计算只读投影（统计、直方图、搜索、默认选中）
// 所有函数都是纯函数：相同输入得到相同输出，不持有状态也不做 I/O。
package views

import (
	"strings"

	"github.com/langchou/fleetgazer/internal/models"
)

// Bucket 直方图的一个区间
type Bucket struct {
	Label string `json:"name"`
	Count int    `json:"value"`
}

// 油量区间标签
const (
	FuelBucketLow      = "0-25%"
	FuelBucketMidLow   = "26-50%"
	FuelBucketMidHigh  = "51-75%"
	FuelBucketHigh     = "76-100%"
	SpeedBucketStopped = "0 km/h"
	SpeedBucketSlow    = "1-30 km/h"
	SpeedBucketMedium  = "31-60 km/h"
	SpeedBucketFast    = "61-90 km/h"
	SpeedBucketExtreme = "91+ km/h"
)

// CountByStatus 按状态计数，三种状态都会出现（没有车辆时为 0）
func CountByStatus(vehicles []models.Vehicle) map[models.Status]int {
	counts := make(map[models.Status]int, len(models.Statuses))
	for _, s := range models.Statuses {
		counts[s] = 0
	}
	for _, v := range vehicles {
		counts[v.Status]++
	}
	return counts
}

// FuelHistogram 油量分布
// 区间: [0,25] (25,50] (50,75] (75,100]
func FuelHistogram(vehicles []models.Vehicle) []Bucket {
	buckets := []Bucket{
		{Label: FuelBucketLow},
		{Label: FuelBucketMidLow},
		{Label: FuelBucketMidHigh},
		{Label: FuelBucketHigh},
	}
	for _, v := range vehicles {
		switch {
		case v.FuelLevel <= 25:
			buckets[0].Count++
		case v.FuelLevel <= 50:
			buckets[1].Count++
		case v.FuelLevel <= 75:
			buckets[2].Count++
		default:
			buckets[3].Count++
		}
	}
	return buckets
}

// SpeedHistogram 速度分布
// 区间: {0} (0,30] (30,60] (60,90] (90,∞)
func SpeedHistogram(vehicles []models.Vehicle) []Bucket {
	buckets := []Bucket{
		{Label: SpeedBucketStopped},
		{Label: SpeedBucketSlow},
		{Label: SpeedBucketMedium},
		{Label: SpeedBucketFast},
		{Label: SpeedBucketExtreme},
	}
	for _, v := range vehicles {
		switch {
		case v.Speed == 0:
			buckets[0].Count++
		case v.Speed <= 30:
			buckets[1].Count++
		case v.Speed <= 60:
			buckets[2].Count++
		case v.Speed <= 90:
			buckets[3].Count++
		default:
			buckets[4].Count++
		}
	}
	return buckets
}

// FilterBySearch 按 ID、类型、状态做大小写不敏感的子串匹配
// 空查询返回全部车辆，保持原顺序。
func FilterBySearch(vehicles []models.Vehicle, query string) []models.Vehicle {
	out := make([]models.Vehicle, 0, len(vehicles))
	if query == "" {
		return append(out, vehicles...)
	}

	q := strings.ToLower(query)
	for _, v := range vehicles {
		if strings.Contains(strings.ToLower(v.ID), q) ||
			strings.Contains(strings.ToLower(v.Kind), q) ||
			strings.Contains(strings.ToLower(string(v.Status)), q) {
			out = append(out, v)
		}
	}
	return out
}

// SelectDefault 返回第一辆车作为默认选中，空列表返回 false
func SelectDefault(vehicles []models.Vehicle) (models.Vehicle, bool) {
	if len(vehicles) == 0 {
		return models.Vehicle{}, false
	}
	return vehicles[0], true
}

// Summary 仪表盘汇总数据
type Summary struct {
	Total    int                   `json:"total"`
	Active   int                   `json:"active"`
	Alerts   int                   `json:"alerts"`
	ByStatus map[models.Status]int `json:"byStatus"`
	Fuel     []Bucket              `json:"fuel"`
	Speed    []Bucket              `json:"speed"`
}

// Summarize 计算仪表盘所需的全部统计
func Summarize(vehicles []models.Vehicle) Summary {
	byStatus := CountByStatus(vehicles)
	return Summary{
		Total:    len(vehicles),
		Active:   byStatus[models.StatusActive],
		Alerts:   byStatus[models.StatusAlert],
		ByStatus: byStatus,
		Fuel:     FuelHistogram(vehicles),
		Speed:    SpeedHistogram(vehicles),
	}
}
