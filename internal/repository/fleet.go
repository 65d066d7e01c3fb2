package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/netobunobi/taxis-zorro-manager/internal/models"
)

// MovePlan 一次移动在各台账上的全部效果
// 由调度服务按状态机裁决填写，这里只负责原子落账
type MovePlan struct {
	VehicleID        int64
	TargetLocationID int64
	Now              time.Time

	CloseShiftID *int64       // 结束该班次
	OpenShift    bool         // 开启新班次
	CloseTripID  *int64       // 结束该行程
	OpenTrip     *models.Trip // 开启新行程（ID 由插入回填）
}

// FleetRepository 调度板落账仓库
// 负责把移动的台账效果与位置写入放进同一个数据库事务
type FleetRepository struct {
	db *DB
}

// NewFleetRepository 创建调度落账仓库
func NewFleetRepository(db *DB) *FleetRepository {
	return &FleetRepository{db: db}
}

// ApplyMove 原子落账一次移动
// 要么全部生效，要么全部回滚；不会出现位置已变而班次/行程没动的中间态
func (r *FleetRepository) ApplyMove(ctx context.Context, plan *MovePlan) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin move: %w", err)
	}
	defer tx.Rollback(ctx)

	if plan.CloseShiftID != nil {
		tag, err := tx.Exec(ctx,
			`UPDATE shifts SET end_time = $1 WHERE id = $2 AND end_time IS NULL`,
			plan.Now, *plan.CloseShiftID,
		)
		if err != nil {
			return fmt.Errorf("close shift: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("shift %d already closed", *plan.CloseShiftID)
		}
	}

	if plan.OpenShift {
		// 部分唯一索引兜底：同车已有未结束班次时这里会报错
		if _, err := tx.Exec(ctx,
			`INSERT INTO shifts (vehicle_id, start_time) VALUES ($1, $2)`,
			plan.VehicleID, plan.Now,
		); err != nil {
			return fmt.Errorf("open shift: %w", err)
		}
	}

	if plan.CloseTripID != nil {
		tag, err := tx.Exec(ctx,
			`UPDATE trips SET end_time = $1 WHERE id = $2 AND end_time IS NULL`,
			plan.Now, *plan.CloseTripID,
		)
		if err != nil {
			return fmt.Errorf("close trip: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("trip %d already closed", *plan.CloseTripID)
		}
	}

	if plan.OpenTrip != nil {
		trip := plan.OpenTrip
		if err := tx.QueryRow(ctx, `
			INSERT INTO trips (vehicle_id, service_kind, origin_location_id, destination, fare, start_time)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			trip.VehicleID, trip.ServiceKind, trip.OriginLocationID, trip.Destination, trip.Fare, trip.StartTime,
		).Scan(&trip.ID); err != nil {
			return fmt.Errorf("open trip: %w", err)
		}
	}

	tag, err := tx.Exec(ctx,
		`UPDATE vehicles SET current_location_id = $1, last_moved_at = $2 WHERE id = $3`,
		plan.TargetLocationID, plan.Now, plan.VehicleID,
	)
	if err != nil {
		return fmt.Errorf("update vehicle location: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("vehicle %d not found", plan.VehicleID)
	}

	return tx.Commit(ctx)
}
