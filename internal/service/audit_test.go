package service

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/netobunobi/taxis-zorro-manager/internal/models"
)

var auditGoLive = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newAuditService(f *fakeStore) *AuditService {
	return NewAuditService(f, fakeLocations{f}, fakeShifts{f}, fakeAudits{f},
		zap.NewNop(), 10.0, 50.0, auditGoLive, time.UTC)
}

func closedShift(f *fakeStore, vehicleID int64, day time.Time, fromHour, toHour float64) {
	start := day.Add(time.Duration(fromHour * float64(time.Hour)))
	end := day.Add(time.Duration(toHour * float64(time.Hour)))
	f.addShift(vehicleID, start, &end)
}

func findingFor(t *testing.T, report *AuditReport, vehicleID int64) *models.AuditFinding {
	t.Helper()
	for i := range report.Findings {
		if report.Findings[i].VehicleID == vehicleID {
			return &report.Findings[i]
		}
	}
	return nil
}

func TestAuditFlagsShortfallAndAbsence(t *testing.T) {
	day := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	f := newFakeStore()
	f.addVehicle(1, "01", locBaseCessa)
	f.addVehicle(2, "02", locBaseCessa)
	f.addVehicle(3, "03", locRest)
	closedShift(f, 1, day, 8, 16)   // 8 小时，差 2 小时
	closedShift(f, 2, day, 9, 19.5) // 10.5 小时，达标
	// 3 号车当天没有班次，但前一天有，所以是第 1 天缺勤
	closedShift(f, 3, day.AddDate(0, 0, -1), 8, 18)

	report, err := newAuditService(f).RunDailyAudit(context.Background(), day)
	if err != nil {
		t.Fatalf("RunDailyAudit: %v", err)
	}
	if len(report.Findings) != 2 {
		t.Fatalf("findings = %d, want 2", len(report.Findings))
	}

	shortfall := findingFor(t, report, 1)
	if shortfall == nil || shortfall.Kind != models.IncidentHoursShortfall {
		t.Fatalf("vehicle 1 finding = %+v, want hours shortfall", shortfall)
	}
	if math.Abs(shortfall.Amount-100) > 1e-9 {
		t.Fatalf("shortfall amount = %f, want 100 (2 missing hours at 50)", shortfall.Amount)
	}
	if math.Abs(shortfall.HoursWorked-8) > 1e-9 {
		t.Fatalf("hours worked = %f, want 8", shortfall.HoursWorked)
	}

	if ok := findingFor(t, report, 2); ok != nil {
		t.Fatalf("vehicle 2 met the threshold but got %+v", ok)
	}

	absence := findingFor(t, report, 3)
	if absence == nil || absence.Kind != models.IncidentAbsence {
		t.Fatalf("vehicle 3 finding = %+v, want absence", absence)
	}
	if absence.Description != "unexcused absence (day 1)" {
		t.Fatalf("description = %q, want day 1 wording", absence.Description)
	}
}

func TestAuditThresholdBoundary(t *testing.T) {
	day := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	f := newFakeStore()
	f.addVehicle(1, "01", locBaseCessa)
	closedShift(f, 1, day, 8, 18) // 正好 10 小时

	report, err := newAuditService(f).RunDailyAudit(context.Background(), day)
	if err != nil {
		t.Fatalf("RunDailyAudit: %v", err)
	}
	if len(report.Findings) != 0 {
		t.Fatalf("exactly at the threshold must not be fined, got %+v", report.Findings)
	}
}

func TestAuditSkipsMaintenanceVehicles(t *testing.T) {
	day := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	f := newFakeStore()
	f.addVehicle(1, "01", locMaintenance)

	report, err := newAuditService(f).RunDailyAudit(context.Background(), day)
	if err != nil {
		t.Fatalf("RunDailyAudit: %v", err)
	}
	if len(report.Findings) != 0 {
		t.Fatalf("vehicles in the workshop are exempt, got %+v", report.Findings)
	}
}

func TestAuditGoLiveGuard(t *testing.T) {
	f := newFakeStore()
	f.addVehicle(1, "01", locBaseCessa)

	before := auditGoLive.AddDate(0, 0, -1)
	if _, err := newAuditService(f).RunDailyAudit(context.Background(), before); !errors.Is(err, ErrAuditBeforeGoLive) {
		t.Fatalf("err = %v, want ErrAuditBeforeGoLive", err)
	}
	if _, err := newAuditService(f).CommitFindings(context.Background(), before, nil); !errors.Is(err, ErrAuditBeforeGoLive) {
		t.Fatalf("commit err = %v, want ErrAuditBeforeGoLive", err)
	}
}

func TestAuditCommitIsOncePerDate(t *testing.T) {
	day := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	f := newFakeStore()
	f.addVehicle(1, "01", locRest)
	svc := newAuditService(f)

	report, err := svc.RunDailyAudit(context.Background(), day)
	if err != nil {
		t.Fatalf("RunDailyAudit: %v", err)
	}

	run, err := svc.CommitFindings(context.Background(), day, report.Findings)
	if err != nil {
		t.Fatalf("CommitFindings: %v", err)
	}
	if run.FindingCount != len(report.Findings) {
		t.Fatalf("finding count = %d, want %d", run.FindingCount, len(report.Findings))
	}

	if _, err := svc.RunDailyAudit(context.Background(), day); !errors.Is(err, ErrAuditAlreadyRun) {
		t.Fatalf("second run err = %v, want ErrAuditAlreadyRun", err)
	}
	if _, err := svc.CommitFindings(context.Background(), day, report.Findings); !errors.Is(err, ErrAuditAlreadyRun) {
		t.Fatalf("second commit err = %v, want ErrAuditAlreadyRun", err)
	}
}

func TestAuditCommitResolutionAndRecorder(t *testing.T) {
	day := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	f := newFakeStore()
	svc := newAuditService(f)

	findings := []models.AuditFinding{
		{VehicleID: 1, UnitNumber: "01", Kind: models.IncidentHoursShortfall, Description: "worked 8.00 of 10.00 required hours", Amount: 100, HoursWorked: 8},
		{VehicleID: 2, UnitNumber: "02", Kind: models.IncidentAbsence, Description: "unexcused absence (day 1)"},
	}
	if _, err := svc.CommitFindings(context.Background(), day, findings); err != nil {
		t.Fatalf("CommitFindings: %v", err)
	}
	if len(f.incidents) != 2 {
		t.Fatalf("incidents = %d, want 2", len(f.incidents))
	}

	for _, inc := range f.incidents {
		if inc.RecordedBy != models.RecordedBySystem {
			t.Fatalf("recorded_by = %q, want %q", inc.RecordedBy, models.RecordedBySystem)
		}
		switch inc.Kind {
		case models.IncidentHoursShortfall:
			if inc.Resolution != models.ResolutionPending {
				t.Fatalf("shortfall resolution = %s, want pending", inc.Resolution)
			}
		case models.IncidentAbsence:
			if inc.Resolution != models.ResolutionInformational {
				t.Fatalf("absence resolution = %s, want informational", inc.Resolution)
			}
			if inc.Amount != 0 {
				t.Fatalf("absence amount = %f, want 0", inc.Amount)
			}
		}
	}
}

func TestAbsenceStreakEscalates(t *testing.T) {
	day := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	f := newFakeStore()
	f.addVehicle(1, "01", locRest)
	f.addVehicle(2, "02", locRest)
	svc := newAuditService(f)

	// 1 号车前天收过班：昨天空、今天空，连续第 2 天
	closedShift(f, 1, day.AddDate(0, 0, -2), 8, 18)
	// 2 号车最后一次收班在三天前：连续第 3 天，升级为疑似弃岗
	closedShift(f, 2, day.AddDate(0, 0, -3), 8, 18)

	report, err := svc.RunDailyAudit(context.Background(), day)
	if err != nil {
		t.Fatalf("RunDailyAudit: %v", err)
	}

	absence := findingFor(t, report, 1)
	if absence == nil || absence.Description != "absence (2 consecutive days)" {
		t.Fatalf("finding = %+v, want 2 consecutive days wording", absence)
	}

	abandoned := findingFor(t, report, 2)
	if abandoned == nil || abandoned.Description != "possible abandonment (3 consecutive days)" {
		t.Fatalf("finding = %+v, want abandonment wording", abandoned)
	}
}

func TestAbsenceStreakStopsAtGoLive(t *testing.T) {
	f := newFakeStore()
	f.addVehicle(1, "01", locRest)
	svc := newAuditService(f)

	// 上线第一天就缺勤：没有更早的台账可数，不能升级
	report, err := svc.RunDailyAudit(context.Background(), auditGoLive)
	if err != nil {
		t.Fatalf("RunDailyAudit: %v", err)
	}
	absence := findingFor(t, report, 1)
	if absence == nil || absence.Description != "unexcused absence (day 1)" {
		t.Fatalf("finding = %+v, want day 1 wording", absence)
	}
}

func TestAuditIgnoresDanglingOpenShiftOnPastDate(t *testing.T) {
	now := time.Now().UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -2)
	f := newFakeStore()
	f.addVehicle(1, "01", locBaseCessa)
	// 前天开的班一直没收：不能当成一口气干了 48 小时
	f.addShift(1, day.Add(8*time.Hour), nil)
	svc := NewAuditService(f, fakeLocations{f}, fakeShifts{f}, fakeAudits{f},
		zap.NewNop(), 10.0, 50.0, day, time.UTC)

	report, err := svc.RunDailyAudit(context.Background(), day)
	if err != nil {
		t.Fatalf("RunDailyAudit: %v", err)
	}
	absence := findingFor(t, report, 1)
	if absence == nil || absence.Kind != models.IncidentAbsence {
		t.Fatalf("finding = %+v, want absence despite the dangling open shift", absence)
	}
	if absence.HoursWorked != 0 {
		t.Fatalf("hours worked = %f, want 0", absence.HoursWorked)
	}
}

func TestZeroHourClosedShiftCountsAsAbsence(t *testing.T) {
	day := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	f := newFakeStore()
	f.addVehicle(1, "01", locBaseCessa)
	// 开班当秒就收班：有班次记录但没有工时
	closedShift(f, 1, day, 9, 9)
	closedShift(f, 1, day.AddDate(0, 0, -1), 8, 18)

	report, err := newAuditService(f).RunDailyAudit(context.Background(), day)
	if err != nil {
		t.Fatalf("RunDailyAudit: %v", err)
	}
	absence := findingFor(t, report, 1)
	if absence == nil || absence.Kind != models.IncidentAbsence {
		t.Fatalf("finding = %+v, want absence, not a full-fine shortfall", absence)
	}
	if absence.Amount != 0 {
		t.Fatalf("amount = %f, want 0", absence.Amount)
	}
	if absence.Description != "unexcused absence (day 1)" {
		t.Fatalf("description = %q, want day 1 wording", absence.Description)
	}
}
