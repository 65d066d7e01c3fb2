package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/netobunobi/taxis-zorro-manager/internal/models"
)

// VehicleRepository 车辆仓库
type VehicleRepository struct {
	db *DB
}

// NewVehicleRepository 创建车辆仓库
func NewVehicleRepository(db *DB) *VehicleRepository {
	return &VehicleRepository{db: db}
}

const vehicleColumns = `id, unit_number, status, current_location_id, last_moved_at, registered_at, decommissioned_at`

func scanVehicle(row interface{ Scan(...any) error }) (*models.Vehicle, error) {
	v := &models.Vehicle{}
	err := row.Scan(
		&v.ID,
		&v.UnitNumber,
		&v.Status,
		&v.CurrentLocationID,
		&v.LastMovedAt,
		&v.RegisteredAt,
		&v.DecommissionedAt,
	)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Create 登记新车辆；新车一律从停运位起步
func (r *VehicleRepository) Create(ctx context.Context, unitNumber string, startLocationID int64) (*models.Vehicle, error) {
	row := r.db.Pool.QueryRow(ctx, `
		INSERT INTO vehicles (unit_number, status, current_location_id)
		VALUES ($1, 'active', $2)
		RETURNING `+vehicleColumns,
		unitNumber, startLocationID,
	)
	v, err := scanVehicle(row)
	if err != nil {
		return nil, fmt.Errorf("insert vehicle: %w", err)
	}
	return v, nil
}

// GetByID 获取车辆
func (r *VehicleRepository) GetByID(ctx context.Context, id int64) (*models.Vehicle, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE id = $1`, id)
	v, err := scanVehicle(row)
	if err != nil {
		return nil, err // 可能是车辆不存在
	}
	return v, nil
}

// GetByUnitNumber 按编号查车
func (r *VehicleRepository) GetByUnitNumber(ctx context.Context, unitNumber string) (*models.Vehicle, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE unit_number = $1`, unitNumber)
	return scanVehicle(row)
}

// ListActive 获取全部在册车辆（画调度板用）
func (r *VehicleRepository) ListActive(ctx context.Context) ([]*models.Vehicle, error) {
	return r.list(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE status = 'active' ORDER BY unit_number ASC`)
}

// ListAll 获取全部车辆（含已停用，管理页用）
func (r *VehicleRepository) ListAll(ctx context.Context) ([]*models.Vehicle, error) {
	return r.list(ctx, `SELECT `+vehicleColumns+` FROM vehicles ORDER BY unit_number ASC`)
}

func (r *VehicleRepository) list(ctx context.Context, query string) ([]*models.Vehicle, error) {
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	defer rows.Close()

	var vehicles []*models.Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vehicle: %w", err)
		}
		vehicles = append(vehicles, v)
	}
	return vehicles, nil
}

// SetStatus 启用/停用车辆（软删除，历史台账保留）
func (r *VehicleRepository) SetStatus(ctx context.Context, id int64, status string, ts time.Time) error {
	var decommissionedAt *time.Time
	if status == models.VehicleInactive {
		decommissionedAt = &ts
	}
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE vehicles SET status = $1, decommissioned_at = $2 WHERE id = $3`,
		status, decommissionedAt, id,
	)
	if err != nil {
		return fmt.Errorf("set vehicle status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("vehicle %d not found", id)
	}
	return nil
}

// Delete 物理删除车辆；存在历史台账时拒绝
func (r *VehicleRepository) Delete(ctx context.Context, id int64) error {
	var refs int64
	err := r.db.Pool.QueryRow(ctx, `
		SELECT (SELECT COUNT(*) FROM shifts WHERE vehicle_id = $1)
		     + (SELECT COUNT(*) FROM trips WHERE vehicle_id = $1)
		     + (SELECT COUNT(*) FROM incidents WHERE vehicle_id = $1)`,
		id,
	).Scan(&refs)
	if err != nil {
		return fmt.Errorf("count vehicle references: %w", err)
	}
	if refs > 0 {
		return fmt.Errorf("vehicle %d has %d ledger rows, refuse to delete", id, refs)
	}

	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM vehicles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete vehicle: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("vehicle %d not found", id)
	}
	return nil
}
