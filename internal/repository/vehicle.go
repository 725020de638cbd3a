package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/langchou/fleetgazer/internal/models"
)

// VehicleRepository 车辆数据仓库，作为车队的批量加载来源
type VehicleRepository struct {
	db *DB
}

// NewVehicleRepository 创建车辆仓库
func NewVehicleRepository(db *DB) *VehicleRepository {
	return &VehicleRepository{db: db}
}

// Load 实现 seed.Source
func (r *VehicleRepository) Load(ctx context.Context) ([]models.Vehicle, error) {
	return r.List(ctx)
}

// List 按加载顺序获取全部车辆
func (r *VehicleRepository) List(ctx context.Context) ([]models.Vehicle, error) {
	query := `
		SELECT id, kind, status, latitude, longitude, speed, fuel_level, last_update, driver
		FROM vehicles ORDER BY sort_order, id
	`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	defer rows.Close()

	var vehicles []models.Vehicle
	for rows.Next() {
		var (
			v      models.Vehicle
			driver *string
		)
		err := rows.Scan(
			&v.ID,
			&v.Kind,
			&v.Status,
			&v.Position.Lat,
			&v.Position.Lng,
			&v.Speed,
			&v.FuelLevel,
			&v.LastUpdate,
			&driver,
		)
		if err != nil {
			return nil, fmt.Errorf("scan vehicle: %w", err)
		}
		if driver != nil {
			v.Driver = *driver
		}
		vehicles = append(vehicles, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vehicles: %w", err)
	}

	return vehicles, nil
}

// Count 车辆数量
func (r *VehicleRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM vehicles`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count vehicles: %w", err)
	}
	return n, nil
}

// ReplaceAll 在一个事务中用给定车辆替换整张表，顺序写入 sort_order
func (r *VehicleRepository) ReplaceAll(ctx context.Context, vehicles []models.Vehicle) error {
	return pgx.BeginFunc(ctx, r.db.Pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM vehicles`); err != nil {
			return fmt.Errorf("clear vehicles: %w", err)
		}

		query := `
			INSERT INTO vehicles (id, kind, status, latitude, longitude, speed, fuel_level, last_update, driver, sort_order)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`
		batch := &pgx.Batch{}
		for i, v := range vehicles {
			var driver *string
			if v.Driver != "" {
				d := v.Driver
				driver = &d
			}
			batch.Queue(query,
				v.ID,
				v.Kind,
				string(v.Status),
				v.Position.Lat,
				v.Position.Lng,
				v.Speed,
				v.FuelLevel,
				v.LastUpdate,
				driver,
				i,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert vehicles: %w", err)
		}
		return nil
	})
}
