package service

import (
	"context"
	"time"

	"github.com/netobunobi/taxis-zorro-manager/internal/models"
	"github.com/netobunobi/taxis-zorro-manager/internal/repository"
)

// 持久层按消费侧最小接口注入，repository 里的仓库直接满足这些接口
// 测试时换成内存假件即可，不需要数据库

// VehicleStore 车辆查询
type VehicleStore interface {
	GetByID(ctx context.Context, id int64) (*models.Vehicle, error)
	ListActive(ctx context.Context) ([]*models.Vehicle, error)
}

// LocationStore 位置目录查询
type LocationStore interface {
	GetByID(ctx context.Context, id int64) (*models.Location, error)
	GetByCategory(ctx context.Context, category models.Category) (*models.Location, error)
	List(ctx context.Context) ([]*models.Location, error)
}

// ShiftStore 班次台账查询
type ShiftStore interface {
	GetOpen(ctx context.Context, vehicleID int64) (*models.Shift, error)
	ListOnDate(ctx context.Context, vehicleID int64, date time.Time, loc *time.Location) ([]*models.Shift, error)
}

// TripStore 行程台账查询
type TripStore interface {
	GetOpen(ctx context.Context, vehicleID int64) (*models.Trip, error)
}

// MoveStore 移动的原子落账
type MoveStore interface {
	ApplyMove(ctx context.Context, plan *repository.MovePlan) error
}

// AuditStore 稽核批次持久化
type AuditStore interface {
	HasRun(ctx context.Context, dateStr string) (bool, error)
	CommitRun(ctx context.Context, run *models.AuditRun, incidents []*models.Incident) error
}

// ReportStore 报表聚合查询
type ReportStore interface {
	TripTotals(ctx context.Context, filter repository.TripFilter) (int64, float64, error)
	WorkedHours(ctx context.Context, filter repository.TripFilter) (float64, error)
	IncidentTotalsByKind(ctx context.Context, filter repository.TripFilter) ([]repository.IncidentKindTotal, error)
	TopLocationsByTrips(ctx context.Context, window repository.Window, limit int) ([]repository.LocationCount, error)
	TopVehiclesByFare(ctx context.Context, window repository.Window, limit int) ([]repository.VehicleTotal, error)
	TopVehiclesByTrips(ctx context.Context, window repository.Window, limit int) ([]repository.VehicleTotal, error)
	TopVehiclesByHours(ctx context.Context, window repository.Window, limit int) ([]repository.VehicleTotal, error)
	PeakHours(ctx context.Context, window repository.Window) ([24]int64, error)
	DailySeries(ctx context.Context, vehicleID int64, days int) ([]repository.DayStat, error)
}
