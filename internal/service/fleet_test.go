package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/netobunobi/taxis-zorro-manager/internal/models"
	"github.com/netobunobi/taxis-zorro-manager/internal/state"
)

func newFleetService(f *fakeStore) *FleetService {
	return NewFleetService(f, fakeLocations{f}, fakeShifts{f}, fakeTrips{f}, f, state.NewManager(nil), zap.NewNop())
}

func openShiftFor(t *testing.T, f *fakeStore, vehicleID int64) *models.Shift {
	t.Helper()
	sh, err := fakeShifts{f}.GetOpen(context.Background(), vehicleID)
	if err != nil {
		t.Fatalf("expected open shift for vehicle %d: %v", vehicleID, err)
	}
	return sh
}

func openTripFor(t *testing.T, f *fakeStore, vehicleID int64) *models.Trip {
	t.Helper()
	tr, err := fakeTrips{f}.GetOpen(context.Background(), vehicleID)
	if err != nil {
		t.Fatalf("expected open trip for vehicle %d: %v", vehicleID, err)
	}
	return tr
}

func TestMoveOutOfServiceToBaseOpensShift(t *testing.T) {
	f := newFakeStore()
	f.addVehicle(1, "01", locOutOfService)
	svc := newFleetService(f)

	outcome, err := svc.RequestMove(context.Background(), MoveRequest{VehicleID: 1, TargetLocationID: locBaseCessa})
	if err != nil {
		t.Fatalf("RequestMove: %v", err)
	}
	if outcome.Status != MoveApplied {
		t.Fatalf("status = %s, want %s (%s)", outcome.Status, MoveApplied, outcome.Reason)
	}

	openShiftFor(t, f, 1)
	if len(f.trips) != 0 {
		t.Fatalf("trips = %d, want 0", len(f.trips))
	}
	if f.vehicles[1].CurrentLocationID != locBaseCessa {
		t.Fatalf("location = %d, want %d", f.vehicles[1].CurrentLocationID, locBaseCessa)
	}
	if outcome.State.Category != models.CategoryPhysicalBase {
		t.Fatalf("category = %s, want %s", outcome.State.Category, models.CategoryPhysicalBase)
	}
}

func TestMoveBaseToRestClosesShift(t *testing.T) {
	f := newFakeStore()
	f.addVehicle(1, "01", locBaseCessa)
	sh := f.addShift(1, time.Now().Add(-5*time.Hour), nil)
	svc := newFleetService(f)

	outcome, err := svc.RequestMove(context.Background(), MoveRequest{VehicleID: 1, TargetLocationID: locRest})
	if err != nil {
		t.Fatalf("RequestMove: %v", err)
	}
	if outcome.Status != MoveApplied {
		t.Fatalf("status = %s, want %s", outcome.Status, MoveApplied)
	}
	if sh.EndTime == nil {
		t.Fatal("shift should be closed after moving to rest")
	}
}

func TestMoveBaseToTripOpensTripWithDefaults(t *testing.T) {
	f := newFakeStore()
	f.addVehicle(1, "01", locBaseCessa)
	f.addShift(1, time.Now().Add(-2*time.Hour), nil)
	svc := newFleetService(f)

	outcome, err := svc.RequestMove(context.Background(), MoveRequest{
		VehicleID:        1,
		TargetLocationID: locTripLocal,
		Destination:      "Centro",
		Fare:             120,
	})
	if err != nil {
		t.Fatalf("RequestMove: %v", err)
	}
	if outcome.Status != MoveApplied {
		t.Fatalf("status = %s, want %s", outcome.Status, MoveApplied)
	}

	trip := openTripFor(t, f, 1)
	if trip.ServiceKind != models.ServiceBaseDispatch {
		t.Fatalf("service kind = %s, want %s", trip.ServiceKind, models.ServiceBaseDispatch)
	}
	if trip.OriginLocationID == nil || *trip.OriginLocationID != locBaseCessa {
		t.Fatalf("origin = %v, want %d", trip.OriginLocationID, locBaseCessa)
	}
	if trip.Destination != "Centro" || trip.Fare != 120 {
		t.Fatalf("trip = %+v, want destination Centro fare 120", trip)
	}
	// 出车不收班
	openShiftFor(t, f, 1)
}

func TestMoveRestToTripDefaultsToPhoneDirect(t *testing.T) {
	f := newFakeStore()
	f.addVehicle(1, "01", locRest)
	svc := newFleetService(f)

	outcome, err := svc.RequestMove(context.Background(), MoveRequest{VehicleID: 1, TargetLocationID: locTripLocal})
	if err != nil {
		t.Fatalf("RequestMove: %v", err)
	}
	if outcome.Status != MoveApplied {
		t.Fatalf("status = %s, want %s", outcome.Status, MoveApplied)
	}

	trip := openTripFor(t, f, 1)
	if trip.ServiceKind != models.ServicePhoneDirect {
		t.Fatalf("service kind = %s, want %s", trip.ServiceKind, models.ServicePhoneDirect)
	}
	if trip.OriginLocationID != nil {
		t.Fatalf("origin = %v, want nil for a trip not leaving a base", trip.OriginLocationID)
	}
	// 从休息直接出车也要开班
	openShiftFor(t, f, 1)
}

func TestMoveTripToBaseClosesTrip(t *testing.T) {
	f := newFakeStore()
	f.addVehicle(1, "01", locTripLocal)
	f.addShift(1, time.Now().Add(-3*time.Hour), nil)
	trip := f.addTrip(1, time.Now().Add(-time.Hour), nil)
	svc := newFleetService(f)

	outcome, err := svc.RequestMove(context.Background(), MoveRequest{VehicleID: 1, TargetLocationID: locBaseLicuor})
	if err != nil {
		t.Fatalf("RequestMove: %v", err)
	}
	if outcome.Status != MoveApplied {
		t.Fatalf("status = %s, want %s", outcome.Status, MoveApplied)
	}
	if trip.EndTime == nil {
		t.Fatal("trip should be closed after docking at a base")
	}
	openShiftFor(t, f, 1)
}

func TestReboundNeedsConfirmationThenApplies(t *testing.T) {
	f := newFakeStore()
	f.addVehicle(1, "01", locTripLocal)
	f.addShift(1, time.Now().Add(-3*time.Hour), nil)
	oldTrip := f.addTrip(1, time.Now().Add(-time.Hour), nil)
	svc := newFleetService(f)

	outcome, err := svc.RequestMove(context.Background(), MoveRequest{
		VehicleID:        1,
		TargetLocationID: locTripLongHaul,
		Destination:      "Puebla",
		Fare:             800,
	})
	if err != nil {
		t.Fatalf("RequestMove: %v", err)
	}
	if outcome.Status != MoveNeedsDisambiguation {
		t.Fatalf("status = %s, want %s", outcome.Status, MoveNeedsDisambiguation)
	}
	if outcome.PendingToken == "" {
		t.Fatal("expected a pending token")
	}
	// 确认前台账不动
	if oldTrip.EndTime != nil {
		t.Fatal("trip must stay open until the dispatcher confirms")
	}
	if f.vehicles[1].CurrentLocationID != locTripLocal {
		t.Fatal("vehicle must not move until the dispatcher confirms")
	}

	confirmed, err := svc.ConfirmRebound(context.Background(), outcome.PendingToken, true)
	if err != nil {
		t.Fatalf("ConfirmRebound: %v", err)
	}
	if confirmed.Status != MoveApplied {
		t.Fatalf("status = %s, want %s", confirmed.Status, MoveApplied)
	}
	if oldTrip.EndTime == nil {
		t.Fatal("old trip should be closed by the confirmed rebound")
	}

	newTrip := openTripFor(t, f, 1)
	if newTrip.ID == oldTrip.ID {
		t.Fatal("rebound should open a fresh trip")
	}
	if newTrip.OriginLocationID == nil || *newTrip.OriginLocationID != locTripLocal {
		t.Fatalf("rebound origin = %v, want %d", newTrip.OriginLocationID, locTripLocal)
	}
	if confirmed.State.Category != models.CategoryOnTripLongHaul {
		t.Fatalf("category = %s, want %s", confirmed.State.Category, models.CategoryOnTripLongHaul)
	}
}

func TestReboundDiscardLeavesBoardUntouched(t *testing.T) {
	f := newFakeStore()
	f.addVehicle(1, "01", locTripLocal)
	trip := f.addTrip(1, time.Now().Add(-time.Hour), nil)
	svc := newFleetService(f)

	outcome, err := svc.RequestMove(context.Background(), MoveRequest{VehicleID: 1, TargetLocationID: locTripLongHaul})
	if err != nil {
		t.Fatalf("RequestMove: %v", err)
	}

	discarded, err := svc.ConfirmRebound(context.Background(), outcome.PendingToken, false)
	if err != nil {
		t.Fatalf("ConfirmRebound: %v", err)
	}
	if discarded.Status != MoveRejected {
		t.Fatalf("status = %s, want %s", discarded.Status, MoveRejected)
	}
	if trip.EndTime != nil {
		t.Fatal("discarding a rebound must not close the trip")
	}
	if f.vehicles[1].CurrentLocationID != locTripLocal {
		t.Fatal("discarding a rebound must not move the vehicle")
	}

	// token 一次性，用过即失效
	if _, err := svc.ConfirmRebound(context.Background(), outcome.PendingToken, true); !errors.Is(err, ErrPendingMoveNotFound) {
		t.Fatalf("err = %v, want ErrPendingMoveNotFound", err)
	}
}

func TestBatchModeRejectsMoves(t *testing.T) {
	f := newFakeStore()
	f.addVehicle(1, "01", locOutOfService)
	svc := newFleetService(f)

	svc.EnterBatchMode()
	outcome, err := svc.RequestMove(context.Background(), MoveRequest{VehicleID: 1, TargetLocationID: locBaseCessa})
	if err != nil {
		t.Fatalf("RequestMove: %v", err)
	}
	if outcome.Status != MoveRejected || outcome.Reason != "board is reloading" {
		t.Fatalf("outcome = %+v, want rejected with board is reloading", outcome)
	}
	if len(f.plans) != 0 {
		t.Fatal("no move may reach the ledger while the board is frozen")
	}

	svc.ExitBatchMode()
	outcome, err = svc.RequestMove(context.Background(), MoveRequest{VehicleID: 1, TargetLocationID: locBaseCessa})
	if err != nil {
		t.Fatalf("RequestMove after exit: %v", err)
	}
	if outcome.Status != MoveApplied {
		t.Fatalf("status = %s, want %s", outcome.Status, MoveApplied)
	}
}

func TestMoveRejections(t *testing.T) {
	f := newFakeStore()
	f.addVehicle(1, "01", locBaseCessa)
	retired := f.addVehicle(2, "02", locOutOfService)
	retired.Status = models.VehicleInactive
	svc := newFleetService(f)

	if _, err := svc.RequestMove(context.Background(), MoveRequest{VehicleID: 99, TargetLocationID: locRest}); !errors.Is(err, ErrVehicleNotFound) {
		t.Fatalf("err = %v, want ErrVehicleNotFound", err)
	}
	if _, err := svc.RequestMove(context.Background(), MoveRequest{VehicleID: 1, TargetLocationID: 999}); !errors.Is(err, ErrLocationNotFound) {
		t.Fatalf("err = %v, want ErrLocationNotFound", err)
	}

	outcome, err := svc.RequestMove(context.Background(), MoveRequest{VehicleID: 2, TargetLocationID: locBaseCessa})
	if err != nil {
		t.Fatalf("RequestMove decommissioned: %v", err)
	}
	if outcome.Status != MoveRejected {
		t.Fatalf("decommissioned vehicle: status = %s, want %s", outcome.Status, MoveRejected)
	}
}

func TestSameLocationDropIsNoOp(t *testing.T) {
	f := newFakeStore()
	f.addVehicle(1, "01", locBaseCessa)
	sh := f.addShift(1, time.Now().Add(-2*time.Hour), nil)
	svc := newFleetService(f)

	outcome, err := svc.RequestMove(context.Background(), MoveRequest{VehicleID: 1, TargetLocationID: locBaseCessa})
	if err != nil {
		t.Fatalf("RequestMove: %v", err)
	}
	if outcome.Status != MoveApplied {
		t.Fatalf("status = %s, want %s (%s)", outcome.Status, MoveApplied, outcome.Reason)
	}
	if len(f.plans) != 0 {
		t.Fatalf("plans = %d, a drop onto the same cell must not touch the ledger", len(f.plans))
	}
	if sh.EndTime != nil {
		t.Fatal("the open shift must survive a same-cell drop")
	}
	if outcome.State == nil || outcome.State.LocationID != locBaseCessa {
		t.Fatalf("state = %+v, want the vehicle still at %d", outcome.State, locBaseCessa)
	}
}

func TestSameTripColumnDropIsARebound(t *testing.T) {
	f := newFakeStore()
	// 载客格每个类别只有一格，新派单落在原格上
	f.addVehicle(1, "01", locTripLongHaul)
	f.addShift(1, time.Now().Add(-4*time.Hour), nil)
	oldTrip := f.addTrip(1, time.Now().Add(-time.Hour), nil)
	svc := newFleetService(f)

	outcome, err := svc.RequestMove(context.Background(), MoveRequest{
		VehicleID:        1,
		TargetLocationID: locTripLongHaul,
		Destination:      "Aeropuerto",
		Fare:             650,
	})
	if err != nil {
		t.Fatalf("RequestMove: %v", err)
	}
	if outcome.Status != MoveNeedsDisambiguation {
		t.Fatalf("status = %s, want %s", outcome.Status, MoveNeedsDisambiguation)
	}
	if outcome.PendingToken == "" {
		t.Fatal("expected a pending token")
	}
	if oldTrip.EndTime != nil {
		t.Fatal("trip must stay open until the dispatcher confirms")
	}

	confirmed, err := svc.ConfirmRebound(context.Background(), outcome.PendingToken, true)
	if err != nil {
		t.Fatalf("ConfirmRebound: %v", err)
	}
	if confirmed.Status != MoveApplied {
		t.Fatalf("status = %s, want %s", confirmed.Status, MoveApplied)
	}
	if oldTrip.EndTime == nil {
		t.Fatal("old trip should be closed by the confirmed rebound")
	}

	newTrip := openTripFor(t, f, 1)
	if newTrip.ID == oldTrip.ID {
		t.Fatal("rebound should open a fresh trip")
	}
	if newTrip.OriginLocationID == nil || *newTrip.OriginLocationID != locTripLongHaul {
		t.Fatalf("rebound origin = %v, want %d", newTrip.OriginLocationID, locTripLongHaul)
	}
	if newTrip.Destination != "Aeropuerto" || newTrip.Fare != 650 {
		t.Fatalf("trip = %+v, want destination Aeropuerto fare 650", newTrip)
	}
}

func TestStaleLedgerIsRepairedOnMove(t *testing.T) {
	f := newFakeStore()
	// 车在候客点却没有开着的班次，还挂着一个不该存在的行程
	f.addVehicle(1, "01", locBaseCessa)
	stale := f.addTrip(1, time.Now().Add(-8*time.Hour), nil)
	svc := newFleetService(f)

	outcome, err := svc.RequestMove(context.Background(), MoveRequest{VehicleID: 1, TargetLocationID: locRest})
	if err != nil {
		t.Fatalf("RequestMove: %v", err)
	}
	if outcome.Status != MoveApplied {
		t.Fatalf("status = %s, want %s", outcome.Status, MoveApplied)
	}
	if stale.EndTime == nil {
		t.Fatal("stale open trip should be closed during the move")
	}
}

func TestBaseToBaseKeepsLedgerUntouched(t *testing.T) {
	f := newFakeStore()
	f.addVehicle(1, "01", locBaseCessa)
	sh := f.addShift(1, time.Now().Add(-2*time.Hour), nil)
	svc := newFleetService(f)

	outcome, err := svc.RequestMove(context.Background(), MoveRequest{VehicleID: 1, TargetLocationID: locBaseLicuor})
	if err != nil {
		t.Fatalf("RequestMove: %v", err)
	}
	if outcome.Status != MoveApplied {
		t.Fatalf("status = %s, want %s", outcome.Status, MoveApplied)
	}
	if sh.EndTime != nil {
		t.Fatal("moving between bases must not close the shift")
	}
	if len(f.trips) != 0 {
		t.Fatal("moving between bases must not open a trip")
	}
	if f.vehicles[1].CurrentLocationID != locBaseLicuor {
		t.Fatalf("location = %d, want %d", f.vehicles[1].CurrentLocationID, locBaseLicuor)
	}
}
