package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/netobunobi/taxis-zorro-manager/internal/models"
)

var (
	ErrAuditAlreadyRun   = errors.New("audit already committed for this date")
	ErrAuditBeforeGoLive = errors.New("audit date is before system go-live")
)

// 连续缺勤到这个天数就升级为疑似弃岗
const abandonmentDays = 3

// 连续缺勤回溯的最大天数
const absenceLookbackDays = 7

// AuditReport 一次稽核的预览结果（未落账）
type AuditReport struct {
	Date     time.Time             `json:"date"`
	Findings []models.AuditFinding `json:"findings"`
}

// AuditService 考勤稽核引擎
// 按日检查每辆车的工时，产出罚款/缺勤结论；预览与落账分离
type AuditService struct {
	vehicles  VehicleStore
	locations LocationStore
	shifts    ShiftStore
	audits    AuditStore
	logger    *zap.Logger

	hoursThreshold float64
	ratePerHour    float64
	goLiveDate     time.Time
	tz             *time.Location
}

// NewAuditService 创建稽核服务
func NewAuditService(
	vehicles VehicleStore,
	locations LocationStore,
	shifts ShiftStore,
	audits AuditStore,
	logger *zap.Logger,
	hoursThreshold, ratePerHour float64,
	goLiveDate time.Time,
	tz *time.Location,
) *AuditService {
	return &AuditService{
		vehicles:       vehicles,
		locations:      locations,
		shifts:         shifts,
		audits:         audits,
		logger:         logger,
		hoursThreshold: hoursThreshold,
		ratePerHour:    ratePerHour,
		goLiveDate:     goLiveDate,
		tz:             tz,
	}
}

// dayOf 归一化到车队时区的当日零点
func (s *AuditService) dayOf(t time.Time) time.Time {
	local := t.In(s.tz)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.tz)
}

// RunDailyAudit 对某个日历日做稽核预览，不写任何台账
func (s *AuditService) RunDailyAudit(ctx context.Context, date time.Time) (*AuditReport, error) {
	day := s.dayOf(date)

	// 上线前没有考勤数据，稽核会把整个车队都记成缺勤
	if day.Before(s.dayOf(s.goLiveDate)) {
		return nil, ErrAuditBeforeGoLive
	}

	done, err := s.audits.HasRun(ctx, day.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("check audit run: %w", err)
	}
	if done {
		return nil, ErrAuditAlreadyRun
	}

	vehicles, err := s.vehicles.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("audit vehicles: %w", err)
	}

	now := time.Now()
	today := s.dayOf(now)
	report := &AuditReport{Date: day}
	for _, v := range vehicles {
		loc, err := s.locations.GetByID(ctx, v.CurrentLocationID)
		if err != nil {
			return nil, fmt.Errorf("audit location for vehicle %d: %w", v.ID, err)
		}
		// 维修中的车不参加考勤
		if loc.Category == models.CategoryMaintenance {
			continue
		}

		shifts, err := s.shifts.ListOnDate(ctx, v.ID, day, s.tz)
		if err != nil {
			return nil, fmt.Errorf("audit shifts for vehicle %d: %w", v.ID, err)
		}

		// 稽核历史日期时未收班的班次不算数，否则悬着的班次会跨日计时
		var hours float64
		if day.Before(today) {
			hours = closedHours(shifts)
		} else {
			hours = workedHours(shifts, now)
		}
		switch {
		case hours == 0:
			streak, err := s.absenceStreak(ctx, v.ID, day)
			if err != nil {
				return nil, err
			}
			report.Findings = append(report.Findings, models.AuditFinding{
				VehicleID:   v.ID,
				UnitNumber:  v.UnitNumber,
				Kind:        models.IncidentAbsence,
				Description: absenceDescription(streak),
				HoursWorked: 0,
			})
		case hours < s.hoursThreshold:
			missing := s.hoursThreshold - hours
			report.Findings = append(report.Findings, models.AuditFinding{
				VehicleID:   v.ID,
				UnitNumber:  v.UnitNumber,
				Kind:        models.IncidentHoursShortfall,
				Description: fmt.Sprintf("worked %.2f of %.2f required hours", hours, s.hoursThreshold),
				Amount:      missing * s.ratePerHour,
				HoursWorked: hours,
			})
		}
	}

	s.logger.Info("audit preview",
		zap.String("date", day.Format("2006-01-02")),
		zap.Int("findings", len(report.Findings)),
	)
	return report, nil
}

// CommitFindings 把一次稽核的结论落账为事务记录
// 批次行与事务同事务提交；提交成功后同一日期永远不会再罚
func (s *AuditService) CommitFindings(ctx context.Context, date time.Time, findings []models.AuditFinding) (*models.AuditRun, error) {
	day := s.dayOf(date)
	if day.Before(s.dayOf(s.goLiveDate)) {
		return nil, ErrAuditBeforeGoLive
	}

	// 预览和提交之间可能有别的调度员抢先提交了
	done, err := s.audits.HasRun(ctx, day.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("check audit run: %w", err)
	}
	if done {
		return nil, ErrAuditAlreadyRun
	}

	incidents := make([]*models.Incident, 0, len(findings))
	for _, f := range findings {
		resolution := models.ResolutionPending
		if f.Kind == models.IncidentAbsence {
			// 缺勤只记录，不产生待收罚款
			resolution = models.ResolutionInformational
		}
		incidents = append(incidents, &models.Incident{
			VehicleID:   f.VehicleID,
			Kind:        f.Kind,
			Description: f.Description,
			Amount:      f.Amount,
			RecordedBy:  models.RecordedBySystem,
			Resolution:  resolution,
			CreatedAt:   day,
		})
	}

	run := &models.AuditRun{
		ID:           uuid.NewString(),
		AuditDate:    day,
		FindingCount: len(findings),
		CommittedAt:  time.Now(),
	}
	if err := s.audits.CommitRun(ctx, run, incidents); err != nil {
		return nil, fmt.Errorf("commit audit run: %w", err)
	}

	s.logger.Info("audit committed",
		zap.String("date", day.Format("2006-01-02")),
		zap.String("run_id", run.ID),
		zap.Int("findings", len(findings)),
	)
	return run, nil
}

// absenceStreak 含当日在内的连续缺勤天数
// 以班次台账为准往前数，遇到有工时的日子或上线日就停
func (s *AuditService) absenceStreak(ctx context.Context, vehicleID int64, day time.Time) (int, error) {
	goLive := s.dayOf(s.goLiveDate)
	streak := 1
	for i := 1; i <= absenceLookbackDays; i++ {
		prev := day.AddDate(0, 0, -i)
		if prev.Before(goLive) {
			break
		}
		shifts, err := s.shifts.ListOnDate(ctx, vehicleID, prev, s.tz)
		if err != nil {
			return 0, fmt.Errorf("absence streak for vehicle %d: %w", vehicleID, err)
		}
		if closedHours(shifts) > 0 {
			break
		}
		streak++
	}
	return streak, nil
}

func absenceDescription(streak int) string {
	switch {
	case streak >= abandonmentDays:
		return fmt.Sprintf("possible abandonment (%d consecutive days)", streak)
	case streak > 1:
		return fmt.Sprintf("absence (%d consecutive days)", streak)
	}
	return "unexcused absence (day 1)"
}

// workedHours 一组班次的总工时；未结束的班次按 now 截止
func workedHours(shifts []*models.Shift, now time.Time) float64 {
	var total time.Duration
	for _, s := range shifts {
		total += s.Duration(now)
	}
	return total.Hours()
}

// closedHours 只计已收班的班次工时
func closedHours(shifts []*models.Shift) float64 {
	var total time.Duration
	for _, s := range shifts {
		if s.EndTime == nil {
			continue
		}
		total += s.Duration(*s.EndTime)
	}
	return total.Hours()
}
