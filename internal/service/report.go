package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/netobunobi/taxis-zorro-manager/internal/models"
	"github.com/netobunobi/taxis-zorro-manager/internal/repository"
)

// Period 报表统计口径
type Period string

const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
	PeriodAll   Period = "all"
)

// Valid 判断口径是否合法
func (p Period) Valid() bool {
	switch p {
	case PeriodDay, PeriodMonth, PeriodYear, PeriodAll:
		return true
	}
	return false
}

// ResolveWindow 把口径和参考时刻换算成时区内的半开时间窗 [start, end)
// all 返回零值窗口，表示不过滤
func ResolveWindow(period Period, ref time.Time, tz *time.Location) (repository.Window, error) {
	local := ref.In(tz)
	switch period {
	case PeriodDay:
		start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, tz)
		return repository.Window{Start: start, End: start.AddDate(0, 0, 1)}, nil
	case PeriodMonth:
		start := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, tz)
		return repository.Window{Start: start, End: start.AddDate(0, 1, 0)}, nil
	case PeriodYear:
		start := time.Date(local.Year(), 1, 1, 0, 0, 0, 0, tz)
		return repository.Window{Start: start, End: start.AddDate(1, 0, 0)}, nil
	case PeriodAll:
		return repository.Window{}, nil
	}
	return repository.Window{}, fmt.Errorf("invalid report period %q", period)
}

// CompanyReport 全公司汇总报表
type CompanyReport struct {
	Period       Period                         `json:"period"`
	Trips        int64                          `json:"trips"`
	Revenue      float64                        `json:"revenue"`
	HoursWorked  float64                        `json:"hours_worked"`
	Incidents    []repository.IncidentKindTotal `json:"incidents"`
	TopLocations []repository.LocationCount     `json:"top_locations"`
	TopByFare    []repository.VehicleTotal      `json:"top_by_fare"`
	TopByTrips   []repository.VehicleTotal      `json:"top_by_trips"`
	TopByHours   []repository.VehicleTotal      `json:"top_by_hours"`
	PeakHours    [24]int64                      `json:"peak_hours"`
}

// VehicleReport 单车报表
type VehicleReport struct {
	Vehicle     *models.Vehicle                `json:"vehicle"`
	Period      Period                         `json:"period"`
	Trips       int64                          `json:"trips"`
	Revenue     float64                        `json:"revenue"`
	HoursWorked float64                        `json:"hours_worked"`
	Incidents   []repository.IncidentKindTotal `json:"incidents"`
	Daily       []repository.DayStat           `json:"daily"`
}

const (
	topLocationsLimit = 5
	topVehiclesLimit  = 3
	dailySeriesDays   = 7
)

// ReportService 报表聚合
type ReportService struct {
	reports  ReportStore
	vehicles VehicleStore
	tz       *time.Location
	logger   *zap.Logger
}

// NewReportService 创建报表服务
func NewReportService(reports ReportStore, vehicles VehicleStore, tz *time.Location, logger *zap.Logger) *ReportService {
	return &ReportService{reports: reports, vehicles: vehicles, tz: tz, logger: logger}
}

// CompanySummary 按口径生成全公司报表
func (s *ReportService) CompanySummary(ctx context.Context, period Period, ref time.Time) (*CompanyReport, error) {
	window, err := ResolveWindow(period, ref, s.tz)
	if err != nil {
		return nil, err
	}
	filter := repository.TripFilter{Window: window}

	report := &CompanyReport{Period: period}
	if report.Trips, report.Revenue, err = s.reports.TripTotals(ctx, filter); err != nil {
		return nil, err
	}
	if report.HoursWorked, err = s.reports.WorkedHours(ctx, filter); err != nil {
		return nil, err
	}
	if report.Incidents, err = s.reports.IncidentTotalsByKind(ctx, filter); err != nil {
		return nil, err
	}
	if report.TopLocations, err = s.reports.TopLocationsByTrips(ctx, window, topLocationsLimit); err != nil {
		return nil, err
	}
	if report.TopByFare, err = s.reports.TopVehiclesByFare(ctx, window, topVehiclesLimit); err != nil {
		return nil, err
	}
	if report.TopByTrips, err = s.reports.TopVehiclesByTrips(ctx, window, topVehiclesLimit); err != nil {
		return nil, err
	}
	if report.TopByHours, err = s.reports.TopVehiclesByHours(ctx, window, topVehiclesLimit); err != nil {
		return nil, err
	}
	if report.PeakHours, err = s.reports.PeakHours(ctx, window); err != nil {
		return nil, err
	}
	return report, nil
}

// VehicleSummary 按口径生成单车报表
func (s *ReportService) VehicleSummary(ctx context.Context, vehicleID int64, period Period, ref time.Time) (*VehicleReport, error) {
	vehicle, err := s.vehicles.GetByID(ctx, vehicleID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVehicleNotFound
		}
		return nil, fmt.Errorf("load vehicle: %w", err)
	}

	window, err := ResolveWindow(period, ref, s.tz)
	if err != nil {
		return nil, err
	}
	filter := repository.TripFilter{Window: window, VehicleID: &vehicleID}

	report := &VehicleReport{Vehicle: vehicle, Period: period}
	if report.Trips, report.Revenue, err = s.reports.TripTotals(ctx, filter); err != nil {
		return nil, err
	}
	if report.HoursWorked, err = s.reports.WorkedHours(ctx, filter); err != nil {
		return nil, err
	}
	if report.Incidents, err = s.reports.IncidentTotalsByKind(ctx, filter); err != nil {
		return nil, err
	}
	if report.Daily, err = s.reports.DailySeries(ctx, vehicleID, dailySeriesDays); err != nil {
		return nil, err
	}
	return report, nil
}
