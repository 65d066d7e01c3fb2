package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/netobunobi/taxis-zorro-manager/internal/models"
)

// ShiftRepository 班次台账仓库
type ShiftRepository struct {
	db *DB
}

// NewShiftRepository 创建班次仓库
func NewShiftRepository(db *DB) *ShiftRepository {
	return &ShiftRepository{db: db}
}

// GetOpen 获取未结束的班次
func (r *ShiftRepository) GetOpen(ctx context.Context, vehicleID int64) (*models.Shift, error) {
	shift := &models.Shift{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, vehicle_id, start_time, end_time
		FROM shifts WHERE vehicle_id = $1 AND end_time IS NULL
		ORDER BY start_time DESC LIMIT 1`,
		vehicleID,
	).Scan(&shift.ID, &shift.VehicleID, &shift.StartTime, &shift.EndTime)
	if err != nil {
		return nil, err // 可能是没有进行中的班次
	}
	return shift, nil
}

// ListOnDate 获取起始于某个日历日的班次
// 日期边界按 loc 时区解析
func (r *ShiftRepository) ListOnDate(ctx context.Context, vehicleID int64, date time.Time, loc *time.Location) ([]*models.Shift, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)
	dayEnd := dayStart.Add(24 * time.Hour)

	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, vehicle_id, start_time, end_time
		FROM shifts
		WHERE vehicle_id = $1 AND start_time >= $2 AND start_time < $3
		ORDER BY start_time ASC`,
		vehicleID, dayStart, dayEnd,
	)
	if err != nil {
		return nil, fmt.Errorf("list shifts on date: %w", err)
	}
	defer rows.Close()

	var shifts []*models.Shift
	for rows.Next() {
		shift := &models.Shift{}
		if err := rows.Scan(&shift.ID, &shift.VehicleID, &shift.StartTime, &shift.EndTime); err != nil {
			return nil, fmt.Errorf("scan shift: %w", err)
		}
		shifts = append(shifts, shift)
	}
	return shifts, nil
}

// ListByVehicle 获取车辆的班次列表
func (r *ShiftRepository) ListByVehicle(ctx context.Context, vehicleID int64, limit, offset int) ([]*models.Shift, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, vehicle_id, start_time, end_time
		FROM shifts WHERE vehicle_id = $1
		ORDER BY start_time DESC LIMIT $2 OFFSET $3`,
		vehicleID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list shifts: %w", err)
	}
	defer rows.Close()

	var shifts []*models.Shift
	for rows.Next() {
		shift := &models.Shift{}
		if err := rows.Scan(&shift.ID, &shift.VehicleID, &shift.StartTime, &shift.EndTime); err != nil {
			return nil, fmt.Errorf("scan shift: %w", err)
		}
		shifts = append(shifts, shift)
	}
	return shifts, nil
}
