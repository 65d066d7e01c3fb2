package repository

import (
	"context"
	"fmt"

	"github.com/netobunobi/taxis-zorro-manager/internal/models"
)

// TripRepository 行程台账仓库
type TripRepository struct {
	db *DB
}

// NewTripRepository 创建行程仓库
func NewTripRepository(db *DB) *TripRepository {
	return &TripRepository{db: db}
}

const tripColumns = `id, vehicle_id, service_kind, origin_location_id, destination, fare, start_time, end_time`

func scanTrip(row interface{ Scan(...any) error }) (*models.Trip, error) {
	trip := &models.Trip{}
	err := row.Scan(
		&trip.ID,
		&trip.VehicleID,
		&trip.ServiceKind,
		&trip.OriginLocationID,
		&trip.Destination,
		&trip.Fare,
		&trip.StartTime,
		&trip.EndTime,
	)
	if err != nil {
		return nil, err
	}
	return trip, nil
}

// GetOpen 获取进行中的行程
func (r *TripRepository) GetOpen(ctx context.Context, vehicleID int64) (*models.Trip, error) {
	row := r.db.Pool.QueryRow(ctx,
		`SELECT `+tripColumns+` FROM trips WHERE vehicle_id = $1 AND end_time IS NULL ORDER BY start_time DESC LIMIT 1`,
		vehicleID,
	)
	return scanTrip(row) // err 可能是没有进行中的行程
}

// GetByID 获取行程
func (r *TripRepository) GetByID(ctx context.Context, id int64) (*models.Trip, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+tripColumns+` FROM trips WHERE id = $1`, id)
	return scanTrip(row)
}

// List 按过滤条件获取行程（带时间窗与可选车辆过滤）
func (r *TripRepository) List(ctx context.Context, filter TripFilter, limit, offset int) ([]*models.Trip, error) {
	where, args := filter.clause("start_time", "vehicle_id")
	args = append(args, limit, offset)
	query := fmt.Sprintf(
		`SELECT `+tripColumns+` FROM trips %s ORDER BY start_time DESC LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args),
	)

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list trips: %w", err)
	}
	defer rows.Close()

	var trips []*models.Trip
	for rows.Next() {
		trip, err := scanTrip(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trip: %w", err)
		}
		trips = append(trips, trip)
	}
	return trips, nil
}

// Update 修正行程（调度员改价/改目的地/改服务类型）
func (r *TripRepository) Update(ctx context.Context, trip *models.Trip) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE trips SET service_kind = $1, destination = $2, fare = $3 WHERE id = $4`,
		trip.ServiceKind, trip.Destination, trip.Fare, trip.ID,
	)
	if err != nil {
		return fmt.Errorf("update trip: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("trip %d not found", trip.ID)
	}
	return nil
}

// Delete 删除误录的行程
func (r *TripRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM trips WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete trip: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("trip %d not found", id)
	}
	return nil
}
