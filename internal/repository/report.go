package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/netobunobi/taxis-zorro-manager/internal/models"
)

// Window 半开时间窗 [Start, End)；零值表示该侧无界
type Window struct {
	Start time.Time
	End   time.Time
}

// bounds 把无界侧归一化为具体时间，方便参数化查询
func (w Window) bounds(now time.Time) (time.Time, time.Time) {
	start, end := w.Start, w.End
	if start.IsZero() {
		start = time.Unix(0, 0)
	}
	if end.IsZero() || end.After(now) {
		end = now
	}
	return start, end
}

// TripFilter 类型化查询过滤器（时间窗 + 可选车辆）
// 取代按字符串拼接日期子句的做法
type TripFilter struct {
	Window    Window
	VehicleID *int64
}

func (f TripFilter) clause(timeCol, vehicleCol string) (string, []any) {
	var conds []string
	var args []any
	if !f.Window.Start.IsZero() {
		args = append(args, f.Window.Start)
		conds = append(conds, fmt.Sprintf("%s >= $%d", timeCol, len(args)))
	}
	if !f.Window.End.IsZero() {
		args = append(args, f.Window.End)
		conds = append(conds, fmt.Sprintf("%s < $%d", timeCol, len(args)))
	}
	if f.VehicleID != nil {
		args = append(args, *f.VehicleID)
		conds = append(conds, fmt.Sprintf("%s = $%d", vehicleCol, len(args)))
	}
	if len(conds) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

// VehicleTotal 按车辆聚合的排名行
type VehicleTotal struct {
	VehicleID  int64   `json:"vehicle_id"`
	UnitNumber string  `json:"unit_number"`
	Value      float64 `json:"value"`
}

// LocationCount 按候客点聚合的排名行
type LocationCount struct {
	LocationID int64  `json:"location_id"`
	Name       string `json:"name"`
	Trips      int64  `json:"trips"`
}

// IncidentKindTotal 按事务类型聚合
type IncidentKindTotal struct {
	Kind   models.IncidentKind `json:"kind"`
	Count  int64               `json:"count"`
	Amount float64             `json:"amount"`
}

// DayStat 按日聚合（近 N 个活跃日序列）
type DayStat struct {
	Date  string  `json:"date"` // YYYY-MM-DD
	Trips int64   `json:"trips"`
	Fare  float64 `json:"fare"`
	Hours float64 `json:"hours"`
}

// ReportRepository 报表聚合仓库（纯读，不改动任何台账）
type ReportRepository struct {
	db *DB
	tz *time.Location
}

// NewReportRepository 创建报表仓库
func NewReportRepository(db *DB, tz *time.Location) *ReportRepository {
	return &ReportRepository{db: db, tz: tz}
}

// TripTotals 行程数与营收合计
func (r *ReportRepository) TripTotals(ctx context.Context, filter TripFilter) (int64, float64, error) {
	where, args := filter.clause("start_time", "vehicle_id")
	var count int64
	var fare float64
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(fare), 0) FROM trips `+where, args...,
	).Scan(&count, &fare)
	if err != nil {
		return 0, 0, fmt.Errorf("trip totals: %w", err)
	}
	return count, fare, nil
}

// WorkedHours 窗口内工时合计
// 已结束班次按与窗口的重叠部分计；未结束班次只在窗口触及当前时刻时按 now 截止计入
func (r *ReportRepository) WorkedHours(ctx context.Context, filter TripFilter) (float64, error) {
	query, args := workedHoursQuery(filter, time.Now())

	var hours float64
	if err := r.db.Pool.QueryRow(ctx, query, args...).Scan(&hours); err != nil {
		return 0, fmt.Errorf("worked hours: %w", err)
	}
	return hours, nil
}

func workedHoursQuery(filter TripFilter, now time.Time) (string, []any) {
	start, end := filter.Window.bounds(now)

	query := `
		SELECT COALESCE(SUM(EXTRACT(EPOCH FROM (
			LEAST(COALESCE(end_time, NOW()), $2) - GREATEST(start_time, $1)
		)) / 3600.0), 0)
		FROM shifts
		WHERE start_time < $2 AND COALESCE(end_time, NOW()) > $1`
	// 历史窗口里还开着的班次是悬账，不算工时
	if end.Before(now) {
		query += ` AND end_time IS NOT NULL`
	}
	args := []any{start, end}
	if filter.VehicleID != nil {
		query += ` AND vehicle_id = $3`
		args = append(args, *filter.VehicleID)
	}
	return query, args
}

// IncidentTotalsByKind 按类型统计事务数量与金额
func (r *ReportRepository) IncidentTotalsByKind(ctx context.Context, filter TripFilter) ([]IncidentKindTotal, error) {
	where, args := filter.clause("created_at", "vehicle_id")
	rows, err := r.db.Pool.Query(ctx, `
		SELECT kind, COUNT(*), COALESCE(SUM(amount), 0)
		FROM incidents `+where+`
		GROUP BY kind ORDER BY kind ASC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("incident totals: %w", err)
	}
	defer rows.Close()

	var totals []IncidentKindTotal
	for rows.Next() {
		var t IncidentKindTotal
		if err := rows.Scan(&t.Kind, &t.Count, &t.Amount); err != nil {
			return nil, fmt.Errorf("scan incident total: %w", err)
		}
		totals = append(totals, t)
	}
	return totals, nil
}

// TopLocationsByTrips 最繁忙候客点排名（只计实体候客点的出车数）
// 并列时按位置 id 升序，保证结果可复现
func (r *ReportRepository) TopLocationsByTrips(ctx context.Context, window Window, limit int) ([]LocationCount, error) {
	where, args := TripFilter{Window: window}.clause("t.start_time", "t.vehicle_id")
	cond := "l.category = 'physical_base'"
	if where == "" {
		where = "WHERE " + cond
	} else {
		where += " AND " + cond
	}
	args = append(args, limit)

	rows, err := r.db.Pool.Query(ctx, fmt.Sprintf(`
		SELECT l.id, l.name, COUNT(t.id) AS trips
		FROM trips t
		JOIN locations l ON t.origin_location_id = l.id
		%s
		GROUP BY l.id, l.name
		ORDER BY trips DESC, l.id ASC
		LIMIT $%d`, where, len(args)),
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("top locations: %w", err)
	}
	defer rows.Close()

	var ranks []LocationCount
	for rows.Next() {
		var lc LocationCount
		if err := rows.Scan(&lc.LocationID, &lc.Name, &lc.Trips); err != nil {
			return nil, fmt.Errorf("scan location rank: %w", err)
		}
		ranks = append(ranks, lc)
	}
	return ranks, nil
}

// TopVehiclesByFare 营收前 N 车辆
func (r *ReportRepository) TopVehiclesByFare(ctx context.Context, window Window, limit int) ([]VehicleTotal, error) {
	return r.topVehiclesFromTrips(ctx, window, limit, "COALESCE(SUM(t.fare), 0)")
}

// TopVehiclesByTrips 出车数前 N 车辆
func (r *ReportRepository) TopVehiclesByTrips(ctx context.Context, window Window, limit int) ([]VehicleTotal, error) {
	return r.topVehiclesFromTrips(ctx, window, limit, "COUNT(t.id)")
}

func (r *ReportRepository) topVehiclesFromTrips(ctx context.Context, window Window, limit int, metric string) ([]VehicleTotal, error) {
	where, args := TripFilter{Window: window}.clause("t.start_time", "t.vehicle_id")
	args = append(args, limit)

	rows, err := r.db.Pool.Query(ctx, fmt.Sprintf(`
		SELECT v.id, v.unit_number, %s AS value
		FROM trips t
		JOIN vehicles v ON t.vehicle_id = v.id
		%s
		GROUP BY v.id, v.unit_number
		ORDER BY value DESC, v.id ASC
		LIMIT $%d`, metric, where, len(args)),
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("top vehicles: %w", err)
	}
	defer rows.Close()
	return scanVehicleTotals(rows)
}

// TopVehiclesByHours 工时前 N 车辆（只计已结束班次）
func (r *ReportRepository) TopVehiclesByHours(ctx context.Context, window Window, limit int) ([]VehicleTotal, error) {
	where, args := TripFilter{Window: window}.clause("s.start_time", "s.vehicle_id")
	cond := "s.end_time IS NOT NULL"
	if where == "" {
		where = "WHERE " + cond
	} else {
		where += " AND " + cond
	}
	args = append(args, limit)

	rows, err := r.db.Pool.Query(ctx, fmt.Sprintf(`
		SELECT v.id, v.unit_number,
			COALESCE(SUM(EXTRACT(EPOCH FROM (s.end_time - s.start_time)) / 3600.0), 0) AS value
		FROM shifts s
		JOIN vehicles v ON s.vehicle_id = v.id
		%s
		GROUP BY v.id, v.unit_number
		ORDER BY value DESC, v.id ASC
		LIMIT $%d`, where, len(args)),
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("top vehicles by hours: %w", err)
	}
	defer rows.Close()
	return scanVehicleTotals(rows)
}

func scanVehicleTotals(rows interface {
	Next() bool
	Scan(...any) error
}) ([]VehicleTotal, error) {
	var ranks []VehicleTotal
	for rows.Next() {
		var vt VehicleTotal
		if err := rows.Scan(&vt.VehicleID, &vt.UnitNumber, &vt.Value); err != nil {
			return nil, fmt.Errorf("scan vehicle rank: %w", err)
		}
		ranks = append(ranks, vt)
	}
	return ranks, nil
}

// PeakHours 24 小时出车分布（车队本地时区的小时桶）
func (r *ReportRepository) PeakHours(ctx context.Context, window Window) ([24]int64, error) {
	var buckets [24]int64
	where, args := TripFilter{Window: window}.clause("start_time", "vehicle_id")
	args = append(args, r.tz.String())

	rows, err := r.db.Pool.Query(ctx, fmt.Sprintf(`
		SELECT EXTRACT(HOUR FROM start_time AT TIME ZONE $%d)::int AS hr, COUNT(*)
		FROM trips %s
		GROUP BY hr`, len(args), where),
		args...,
	)
	if err != nil {
		return buckets, fmt.Errorf("peak hours: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var hr int
		var count int64
		if err := rows.Scan(&hr, &count); err != nil {
			return buckets, fmt.Errorf("scan peak hour: %w", err)
		}
		if hr >= 0 && hr < 24 {
			buckets[hr] = count
		}
	}
	return buckets, nil
}

// DailySeries 车辆近 N 个活跃日的按日序列（画趋势图用）
func (r *ReportRepository) DailySeries(ctx context.Context, vehicleID int64, days int) ([]DayStat, error) {
	byDate := make(map[string]*DayStat)

	tripRows, err := r.db.Pool.Query(ctx, `
		SELECT to_char(start_time AT TIME ZONE $2, 'YYYY-MM-DD') AS d, COUNT(*), COALESCE(SUM(fare), 0)
		FROM trips WHERE vehicle_id = $1
		GROUP BY d ORDER BY d DESC LIMIT $3`,
		vehicleID, r.tz.String(), days,
	)
	if err != nil {
		return nil, fmt.Errorf("daily trip series: %w", err)
	}
	defer tripRows.Close()
	for tripRows.Next() {
		var d string
		var trips int64
		var fare float64
		if err := tripRows.Scan(&d, &trips, &fare); err != nil {
			return nil, fmt.Errorf("scan trip series: %w", err)
		}
		byDate[d] = &DayStat{Date: d, Trips: trips, Fare: fare}
	}

	shiftRows, err := r.db.Pool.Query(ctx, `
		SELECT to_char(start_time AT TIME ZONE $2, 'YYYY-MM-DD') AS d,
			COALESCE(SUM(EXTRACT(EPOCH FROM (end_time - start_time)) / 3600.0), 0)
		FROM shifts WHERE vehicle_id = $1 AND end_time IS NOT NULL
		GROUP BY d ORDER BY d DESC LIMIT $3`,
		vehicleID, r.tz.String(), days,
	)
	if err != nil {
		return nil, fmt.Errorf("daily shift series: %w", err)
	}
	defer shiftRows.Close()
	for shiftRows.Next() {
		var d string
		var hours float64
		if err := shiftRows.Scan(&d, &hours); err != nil {
			return nil, fmt.Errorf("scan shift series: %w", err)
		}
		if stat, ok := byDate[d]; ok {
			stat.Hours = hours
		} else {
			byDate[d] = &DayStat{Date: d, Hours: hours}
		}
	}

	// 按日期升序输出
	series := make([]DayStat, 0, len(byDate))
	for _, stat := range byDate {
		series = append(series, *stat)
	}
	sort.Slice(series, func(i, j int) bool { return series[i].Date < series[j].Date })
	return series, nil
}
