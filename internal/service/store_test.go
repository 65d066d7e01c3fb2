package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/netobunobi/taxis-zorro-manager/internal/models"
	"github.com/netobunobi/taxis-zorro-manager/internal/repository"
)

// fakeStore 内存假件，满足 service 包的全部 store 接口
type fakeStore struct {
	vehicles  map[int64]*models.Vehicle
	locations map[int64]*models.Location
	shifts    []*models.Shift
	trips     []*models.Trip
	incidents []*models.Incident
	auditRuns map[string]*models.AuditRun

	nextShiftID int64
	nextTripID  int64
	plans       []*repository.MovePlan
}

// 种子位置目录，布局和生产迁移一致
const (
	locOutOfService = int64(1)
	locTripLocal    = int64(2)
	locTripLongHaul = int64(3)
	locRest         = int64(4)
	locMaintenance  = int64(5)
	locBaseCessa    = int64(6)
	locBaseLicuor   = int64(7)
)

func newFakeStore() *fakeStore {
	return &fakeStore{
		vehicles: make(map[int64]*models.Vehicle),
		locations: map[int64]*models.Location{
			locOutOfService: {ID: locOutOfService, Name: "Fuera de Servicio", Category: models.CategoryOutOfService},
			locTripLocal:    {ID: locTripLocal, Name: "Viaje Local", Category: models.CategoryOnTripLocal},
			locTripLongHaul: {ID: locTripLongHaul, Name: "Viaje Foráneo", Category: models.CategoryOnTripLongHaul},
			locRest:         {ID: locRest, Name: "Descanso", Category: models.CategoryRest},
			locMaintenance:  {ID: locMaintenance, Name: "Taller", Category: models.CategoryMaintenance},
			locBaseCessa:    {ID: locBaseCessa, Name: "Cessa", Category: models.CategoryPhysicalBase},
			locBaseLicuor:   {ID: locBaseLicuor, Name: "Licuor", Category: models.CategoryPhysicalBase},
		},
		auditRuns:   make(map[string]*models.AuditRun),
		nextShiftID: 1,
		nextTripID:  1,
	}
}

func (f *fakeStore) addVehicle(id int64, unit string, locationID int64) *models.Vehicle {
	v := &models.Vehicle{
		ID:                id,
		UnitNumber:        unit,
		Status:            models.VehicleActive,
		CurrentLocationID: locationID,
		LastMovedAt:       time.Now().Add(-time.Hour),
		RegisteredAt:      time.Now().Add(-24 * time.Hour),
	}
	f.vehicles[id] = v
	return v
}

func (f *fakeStore) addShift(vehicleID int64, start time.Time, end *time.Time) *models.Shift {
	s := &models.Shift{ID: f.nextShiftID, VehicleID: vehicleID, StartTime: start, EndTime: end}
	f.nextShiftID++
	f.shifts = append(f.shifts, s)
	return s
}

func (f *fakeStore) addTrip(vehicleID int64, start time.Time, end *time.Time) *models.Trip {
	t := &models.Trip{ID: f.nextTripID, VehicleID: vehicleID, ServiceKind: models.ServiceBaseDispatch, StartTime: start, EndTime: end}
	f.nextTripID++
	f.trips = append(f.trips, t)
	return t
}

// --- VehicleStore ---

func (f *fakeStore) GetByID(ctx context.Context, id int64) (*models.Vehicle, error) {
	v, ok := f.vehicles[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return v, nil
}

func (f *fakeStore) ListActive(ctx context.Context) ([]*models.Vehicle, error) {
	var out []*models.Vehicle
	for _, v := range f.vehicles {
		if v.Status == models.VehicleActive {
			out = append(out, v)
		}
	}
	return out, nil
}

// --- LocationStore（接口方法名和 VehicleStore 冲突，用包装器拆开） ---

type fakeLocations struct{ f *fakeStore }

func (l fakeLocations) GetByID(ctx context.Context, id int64) (*models.Location, error) {
	loc, ok := l.f.locations[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return loc, nil
}

func (l fakeLocations) GetByCategory(ctx context.Context, category models.Category) (*models.Location, error) {
	var best *models.Location
	for _, loc := range l.f.locations {
		if loc.Category != category {
			continue
		}
		if best == nil || loc.ID < best.ID {
			best = loc
		}
	}
	if best == nil {
		return nil, pgx.ErrNoRows
	}
	return best, nil
}

func (l fakeLocations) List(ctx context.Context) ([]*models.Location, error) {
	var out []*models.Location
	for _, loc := range l.f.locations {
		out = append(out, loc)
	}
	return out, nil
}

// --- ShiftStore ---

type fakeShifts struct{ f *fakeStore }

func (s fakeShifts) GetOpen(ctx context.Context, vehicleID int64) (*models.Shift, error) {
	for _, sh := range s.f.shifts {
		if sh.VehicleID == vehicleID && sh.EndTime == nil {
			return sh, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s fakeShifts) ListOnDate(ctx context.Context, vehicleID int64, date time.Time, loc *time.Location) ([]*models.Shift, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)
	dayEnd := dayStart.Add(24 * time.Hour)

	var out []*models.Shift
	for _, sh := range s.f.shifts {
		if sh.VehicleID == vehicleID && !sh.StartTime.Before(dayStart) && sh.StartTime.Before(dayEnd) {
			out = append(out, sh)
		}
	}
	return out, nil
}

// --- TripStore ---

type fakeTrips struct{ f *fakeStore }

func (t fakeTrips) GetOpen(ctx context.Context, vehicleID int64) (*models.Trip, error) {
	for _, tr := range t.f.trips {
		if tr.VehicleID == vehicleID && tr.EndTime == nil {
			return tr, nil
		}
	}
	return nil, pgx.ErrNoRows
}

// --- MoveStore ---

func (f *fakeStore) ApplyMove(ctx context.Context, plan *repository.MovePlan) error {
	if plan.CloseShiftID != nil {
		closed := false
		for _, sh := range f.shifts {
			if sh.ID == *plan.CloseShiftID && sh.EndTime == nil {
				end := plan.Now
				sh.EndTime = &end
				closed = true
			}
		}
		if !closed {
			return fmt.Errorf("shift %d already closed", *plan.CloseShiftID)
		}
	}
	if plan.OpenShift {
		f.addShift(plan.VehicleID, plan.Now, nil)
	}
	if plan.CloseTripID != nil {
		closed := false
		for _, tr := range f.trips {
			if tr.ID == *plan.CloseTripID && tr.EndTime == nil {
				end := plan.Now
				tr.EndTime = &end
				closed = true
			}
		}
		if !closed {
			return fmt.Errorf("trip %d already closed", *plan.CloseTripID)
		}
	}
	if plan.OpenTrip != nil {
		plan.OpenTrip.ID = f.nextTripID
		f.nextTripID++
		f.trips = append(f.trips, plan.OpenTrip)
	}

	v, ok := f.vehicles[plan.VehicleID]
	if !ok {
		return fmt.Errorf("vehicle %d not found", plan.VehicleID)
	}
	v.CurrentLocationID = plan.TargetLocationID
	v.LastMovedAt = plan.Now

	f.plans = append(f.plans, plan)
	return nil
}

// --- AuditStore ---

type fakeAudits struct{ f *fakeStore }

func (a fakeAudits) HasRun(ctx context.Context, dateStr string) (bool, error) {
	_, ok := a.f.auditRuns[dateStr]
	return ok, nil
}

func (a fakeAudits) CommitRun(ctx context.Context, run *models.AuditRun, incidents []*models.Incident) error {
	key := run.AuditDate.Format("2006-01-02")
	if _, ok := a.f.auditRuns[key]; ok {
		return fmt.Errorf("audit run for %s already exists", key)
	}
	a.f.auditRuns[key] = run
	a.f.incidents = append(a.f.incidents, incidents...)
	return nil
}
