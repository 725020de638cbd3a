package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/langchou/fleetgazer/internal/models"
)

// PositionRepository 位置数据仓库，保存每辆车最近的历史轨迹
type PositionRepository struct {
	db    *DB
	limit int // 每辆车保留的记录数
}

// NewPositionRepository 创建位置仓库
func NewPositionRepository(db *DB, limit int) *PositionRepository {
	if limit <= 0 {
		limit = 100
	}
	return &PositionRepository{db: db, limit: limit}
}

// Create 创建位置记录，并删除超出保留数量的旧记录
func (r *PositionRepository) Create(ctx context.Context, loc *models.Location) error {
	return pgx.BeginFunc(ctx, r.db.Pool, func(tx pgx.Tx) error {
		query := `
			INSERT INTO positions (id, vehicle_id, latitude, longitude, heading, speed, recorded_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`
		_, err := tx.Exec(ctx, query,
			loc.ID,
			loc.VehicleID,
			loc.Lat,
			loc.Lng,
			loc.Heading,
			loc.Speed,
			loc.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("insert position: %w", err)
		}

		prune := `
			DELETE FROM positions
			WHERE vehicle_id = $1 AND id NOT IN (
				SELECT id FROM positions WHERE vehicle_id = $1
				ORDER BY recorded_at DESC, created_at DESC LIMIT $2
			)
		`
		if _, err := tx.Exec(ctx, prune, loc.VehicleID, r.limit); err != nil {
			return fmt.Errorf("prune positions: %w", err)
		}
		return nil
	})
}

// ListByVehicleID 按时间先后获取车辆最近的 limit 条位置，limit 不大于 0 时返回全部保留记录
func (r *PositionRepository) ListByVehicleID(ctx context.Context, vehicleID string, limit int) ([]models.Location, error) {
	if limit <= 0 || limit > r.limit {
		limit = r.limit
	}
	query := `
		SELECT id, vehicle_id, latitude, longitude, heading, speed, recorded_at
		FROM positions WHERE vehicle_id = $1
		ORDER BY recorded_at DESC, created_at DESC LIMIT $2
	`
	rows, err := r.db.Pool.Query(ctx, query, vehicleID, limit)
	if err != nil {
		return nil, fmt.Errorf("list positions by vehicle: %w", err)
	}
	defer rows.Close()

	var locations []models.Location
	for rows.Next() {
		var loc models.Location
		err := rows.Scan(
			&loc.ID,
			&loc.VehicleID,
			&loc.Lat,
			&loc.Lng,
			&loc.Heading,
			&loc.Speed,
			&loc.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		locations = append(locations, loc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate positions: %w", err)
	}

	// 查询按新到旧，返回按旧到新
	for i, j := 0, len(locations)-1; i < j; i, j = i+1, j-1 {
		locations[i], locations[j] = locations[j], locations[i]
	}
	return locations, nil
}
