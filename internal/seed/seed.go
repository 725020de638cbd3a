// Package seed 车队的批量加载来源
package seed

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/langchou/fleetgazer/internal/models"
)

// Source 批量加载来源，启动时调用一次
type Source interface {
	Load(ctx context.Context) ([]models.Vehicle, error)
}

// FixtureSource 内置演示车队
type FixtureSource struct{}

// Load 返回内置车队的副本
func (FixtureSource) Load(context.Context) ([]models.Vehicle, error) {
	return Fixtures(), nil
}

// Fixtures 内置演示车队
func Fixtures() []models.Vehicle {
	return []models.Vehicle{
		{ID: "VH-001", Kind: "Truck", Status: models.StatusActive, Position: models.Position{Lat: 37.7749, Lng: -122.4194}, Speed: 65, FuelLevel: 78, LastUpdate: "2 min ago", Driver: "USR-001"},
		{ID: "VH-002", Kind: "Van", Status: models.StatusIdle, Position: models.Position{Lat: 37.7833, Lng: -122.4167}, Speed: 0, FuelLevel: 45, LastUpdate: "5 min ago", Driver: "USR-002"},
		{ID: "VH-003", Kind: "Car", Status: models.StatusAlert, Position: models.Position{Lat: 37.7694, Lng: -122.4862}, Speed: 0, FuelLevel: 12, LastUpdate: "1 min ago"},
		{ID: "VH-004", Kind: "Truck", Status: models.StatusActive, Position: models.Position{Lat: 37.8044, Lng: -122.2711}, Speed: 72, FuelLevel: 65, LastUpdate: "3 min ago"},
		{ID: "VH-005", Kind: "Van", Status: models.StatusActive, Position: models.Position{Lat: 37.7575, Lng: -122.4376}, Speed: 45, FuelLevel: 89, LastUpdate: models.LastUpdateJustNow},
		{ID: "VH-006", Kind: "Car", Status: models.StatusIdle, Position: models.Position{Lat: 37.7749, Lng: -122.4194}, Speed: 0, FuelLevel: 32, LastUpdate: "10 min ago"},
		{ID: "VH-007", Kind: "Truck", Status: models.StatusAlert, Position: models.Position{Lat: 37.7833, Lng: -122.4167}, Speed: 15, FuelLevel: 8, LastUpdate: "4 min ago"},
	}
}

// FileSource 从 YAML（或 JSON）文件加载车队
// 文件可以是车辆列表，也可以是带 vehicles 键的对象。
type FileSource struct {
	Path string
}

type fleetFile struct {
	Vehicles []models.Vehicle `yaml:"vehicles"`
}

// Load 读取并解析文件
func (s FileSource) Load(ctx context.Context) ([]models.Vehicle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return Parse(data)
}

// Parse 解析车队文件内容
func Parse(data []byte) ([]models.Vehicle, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	if len(node.Content) == 0 {
		return nil, nil
	}

	root := node.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		var vehicles []models.Vehicle
		if err := root.Decode(&vehicles); err != nil {
			return nil, fmt.Errorf("decode vehicles: %w", err)
		}
		return vehicles, nil
	case yaml.MappingNode:
		var f fleetFile
		if err := root.Decode(&f); err != nil {
			return nil, fmt.Errorf("decode vehicles: %w", err)
		}
		return f.Vehicles, nil
	}
	return nil, fmt.Errorf("parse seed file: expected a list or a vehicles mapping")
}
