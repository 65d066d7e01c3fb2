package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/netobunobi/taxis-zorro-manager/internal/models"
	"github.com/netobunobi/taxis-zorro-manager/internal/repository"
	"github.com/netobunobi/taxis-zorro-manager/internal/state"
)

var (
	ErrVehicleNotFound     = errors.New("vehicle not found")
	ErrLocationNotFound    = errors.New("location not found")
	ErrPendingMoveNotFound = errors.New("pending move not found")
)

// MoveStatus 移动请求的裁决结果
type MoveStatus string

const (
	MoveApplied             MoveStatus = "applied"              // 已落账
	MoveNeedsDisambiguation MoveStatus = "needs_disambiguation" // 载客中改派，需调度员确认
	MoveRejected            MoveStatus = "rejected"             // 拒绝，台账无任何变化
)

// MoveRequest 调度板上的一次拖动
type MoveRequest struct {
	VehicleID        int64               `json:"vehicle_id"`
	TargetLocationID int64               `json:"target_location_id"`
	ServiceKind      *models.ServiceKind `json:"service_kind,omitempty"`
	Destination      string              `json:"destination"`
	Fare             float64             `json:"fare"`
}

// MoveOutcome 移动的裁决与效果
type MoveOutcome struct {
	Status       MoveStatus        `json:"status"`
	Reason       string            `json:"reason,omitempty"`
	PendingToken string            `json:"pending_token,omitempty"`
	Trip         *models.Trip      `json:"trip,omitempty"`
	State        *state.BoardState `json:"state,omitempty"`
}

// BoardSnapshot 调度板完整快照
type BoardSnapshot struct {
	Locations   []*models.Location `json:"locations"`
	Vehicles    []*BoardVehicle    `json:"vehicles"`
	GeneratedAt time.Time          `json:"generated_at"`
}

// BoardVehicle 快照中的一辆车
type BoardVehicle struct {
	state.BoardState
	MinutesInPlace int `json:"minutes_in_place"`
}

// pendingRebound 等待调度员确认的载客中改派
type pendingRebound struct {
	req       MoveRequest
	createdAt time.Time
}

// FleetService 调度板核心流程
// 裁决移动、按类别差推导台账效果、驱动每辆车的状态机
type FleetService struct {
	vehicles  VehicleStore
	locations LocationStore
	shifts    ShiftStore
	trips     TripStore
	fleet     MoveStore
	machines  *state.Manager
	logger    *zap.Logger

	mu           sync.Mutex
	batchMode    bool
	pending      map[string]*pendingRebound
	pendingByVeh map[int64]string
}

// NewFleetService 创建调度服务
func NewFleetService(
	vehicles VehicleStore,
	locations LocationStore,
	shifts ShiftStore,
	trips TripStore,
	fleet MoveStore,
	machines *state.Manager,
	logger *zap.Logger,
) *FleetService {
	return &FleetService{
		vehicles:     vehicles,
		locations:    locations,
		shifts:       shifts,
		trips:        trips,
		fleet:        fleet,
		machines:     machines,
		logger:       logger,
		pending:      make(map[string]*pendingRebound),
		pendingByVeh: make(map[int64]string),
	}
}

// LoadBoard 启动时按数据库重建全部状态机
func (s *FleetService) LoadBoard(ctx context.Context) error {
	vehicles, err := s.vehicles.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("load board vehicles: %w", err)
	}

	for _, v := range vehicles {
		loc, err := s.locations.GetByID(ctx, v.CurrentLocationID)
		if err != nil {
			return fmt.Errorf("load board location %d: %w", v.CurrentLocationID, err)
		}
		s.machines.GetOrCreate(v.ID, &state.BoardState{
			VehicleID:  v.ID,
			UnitNumber: v.UnitNumber,
			Category:   loc.Category,
			LocationID: loc.ID,
			Since:      v.LastMovedAt,
		})
	}

	s.logger.Info("board loaded", zap.Int("vehicles", len(vehicles)))
	return nil
}

// Board 当前调度板快照
func (s *FleetService) Board(ctx context.Context) (*BoardSnapshot, error) {
	locations, err := s.locations.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("board locations: %w", err)
	}

	now := time.Now()
	states := s.machines.GetAllStates()
	vehicles := make([]*BoardVehicle, 0, len(states))
	for _, st := range states {
		vehicles = append(vehicles, &BoardVehicle{
			BoardState:     *st,
			MinutesInPlace: st.MinutesInPlace(now),
		})
	}

	return &BoardSnapshot{Locations: locations, Vehicles: vehicles, GeneratedAt: now}, nil
}

// EnterBatchMode 进入批量重排模式；期间所有移动一律拒绝
// 进入时清空待确认的改派，避免确认落在重排后的板上
func (s *FleetService) EnterBatchMode() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batchMode = true
	s.pending = make(map[string]*pendingRebound)
	s.pendingByVeh = make(map[int64]string)
	s.logger.Info("batch mode entered, board frozen")
}

// ExitBatchMode 退出批量重排模式
func (s *FleetService) ExitBatchMode() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batchMode = false
	s.logger.Info("batch mode exited")
}

// RequestMove 裁决并执行一次移动
func (s *FleetService) RequestMove(ctx context.Context, req MoveRequest) (*MoveOutcome, error) {
	s.mu.Lock()
	frozen := s.batchMode
	s.mu.Unlock()
	if frozen {
		return &MoveOutcome{Status: MoveRejected, Reason: "board is reloading"}, nil
	}

	if req.ServiceKind != nil && !req.ServiceKind.Valid() {
		return nil, fmt.Errorf("invalid service kind %q", *req.ServiceKind)
	}

	vehicle, err := s.vehicles.GetByID(ctx, req.VehicleID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVehicleNotFound
		}
		return nil, fmt.Errorf("load vehicle: %w", err)
	}
	if vehicle.Status != models.VehicleActive {
		return &MoveOutcome{Status: MoveRejected, Reason: "vehicle is decommissioned"}, nil
	}

	target, err := s.locations.GetByID(ctx, req.TargetLocationID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLocationNotFound
		}
		return nil, fmt.Errorf("load target location: %w", err)
	}
	from, err := s.locations.GetByID(ctx, vehicle.CurrentLocationID)
	if err != nil {
		return nil, fmt.Errorf("load current location: %w", err)
	}

	// 载客中拖到载客格：可能是改派，也可能是误拖
	// 不直接落账，交给调度员确认
	// 拖回同一个载客格也算改派（每个载客类别只有一个格子，
	// 新的派单只能落在原格上）
	if from.Category.IsOnTrip() && target.Category.IsOnTrip() {
		token := uuid.NewString()
		s.mu.Lock()
		if old, ok := s.pendingByVeh[vehicle.ID]; ok {
			delete(s.pending, old)
		}
		s.pending[token] = &pendingRebound{req: req, createdAt: time.Now()}
		s.pendingByVeh[vehicle.ID] = token
		s.mu.Unlock()

		s.logger.Info("rebound needs confirmation",
			zap.Int64("vehicle_id", vehicle.ID),
			zap.String("token", token),
		)
		return &MoveOutcome{
			Status:       MoveNeedsDisambiguation,
			Reason:       "vehicle is already on a trip",
			PendingToken: token,
		}, nil
	}

	// 拖回原格是幂等空操作，台账不动
	if from.ID == target.ID {
		machine := s.machines.GetOrCreate(vehicle.ID, &state.BoardState{
			VehicleID:  vehicle.ID,
			UnitNumber: vehicle.UnitNumber,
			Category:   from.Category,
			LocationID: from.ID,
			Since:      vehicle.LastMovedAt,
		})
		return &MoveOutcome{Status: MoveApplied, State: machine.GetState()}, nil
	}

	return s.applyMove(ctx, vehicle, from, target, req)
}

// ConfirmRebound 处理调度员对改派的答复
// accept 为真时结束当前行程并立刻开新行程，为假时丢弃请求、板面不动
func (s *FleetService) ConfirmRebound(ctx context.Context, token string, accept bool) (*MoveOutcome, error) {
	s.mu.Lock()
	p, ok := s.pending[token]
	if ok {
		delete(s.pending, token)
		delete(s.pendingByVeh, p.req.VehicleID)
	}
	s.mu.Unlock()
	if !ok {
		return nil, ErrPendingMoveNotFound
	}

	if !accept {
		s.logger.Info("rebound discarded", zap.Int64("vehicle_id", p.req.VehicleID))
		return &MoveOutcome{Status: MoveRejected, Reason: "rebound discarded"}, nil
	}

	// 确认可能来得很晚，重新校验板面没变
	vehicle, err := s.vehicles.GetByID(ctx, p.req.VehicleID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVehicleNotFound
		}
		return nil, fmt.Errorf("load vehicle: %w", err)
	}
	from, err := s.locations.GetByID(ctx, vehicle.CurrentLocationID)
	if err != nil {
		return nil, fmt.Errorf("load current location: %w", err)
	}
	target, err := s.locations.GetByID(ctx, p.req.TargetLocationID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLocationNotFound
		}
		return nil, fmt.Errorf("load target location: %w", err)
	}
	if !from.Category.IsOnTrip() || !target.Category.IsOnTrip() {
		return &MoveOutcome{Status: MoveRejected, Reason: "board changed, rebound no longer applies"}, nil
	}

	return s.applyMove(ctx, vehicle, from, target, p.req)
}

// applyMove 按类别差推导台账效果并原子落账，随后驱动状态机
func (s *FleetService) applyMove(ctx context.Context, vehicle *models.Vehicle, from, target *models.Location, req MoveRequest) (*MoveOutcome, error) {
	now := time.Now()
	fromCat, toCat := from.Category, target.Category
	plan := &repository.MovePlan{
		VehicleID:        vehicle.ID,
		TargetLocationID: target.ID,
		Now:              now,
	}

	openShift, err := s.shifts.GetOpen(ctx, vehicle.ID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("load open shift: %w", err)
	}
	openTrip, err := s.trips.GetOpen(ctx, vehicle.ID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("load open trip: %w", err)
	}

	// 班次效果：非工作 → 工作开班，工作 → 非工作收班
	switch {
	case fromCat.IsInactive() && toCat.IsWorking():
		if openShift != nil {
			s.logger.Warn("open shift found on inactive vehicle, reusing it",
				zap.Int64("vehicle_id", vehicle.ID),
				zap.Int64("shift_id", openShift.ID),
			)
		} else {
			plan.OpenShift = true
		}
	case fromCat.IsWorking() && toCat.IsInactive():
		if openShift == nil {
			s.logger.Warn("no open shift to close, ledger corrected",
				zap.Int64("vehicle_id", vehicle.ID),
			)
		} else {
			plan.CloseShiftID = &openShift.ID
		}
	}

	// 行程效果：离开载客格结束行程；位置不在载客格却挂着行程的，顺手修正
	if openTrip != nil {
		if !fromCat.IsOnTrip() {
			s.logger.Warn("open trip found off the trip columns, closing it",
				zap.Int64("vehicle_id", vehicle.ID),
				zap.Int64("trip_id", openTrip.ID),
			)
		}
		plan.CloseTripID = &openTrip.ID
	} else if fromCat.IsOnTrip() {
		s.logger.Warn("no open trip to close, ledger corrected",
			zap.Int64("vehicle_id", vehicle.ID),
		)
	}

	var newTrip *models.Trip
	if toCat.IsOnTrip() {
		newTrip = &models.Trip{
			VehicleID:   vehicle.ID,
			ServiceKind: resolveServiceKind(req.ServiceKind, fromCat),
			Destination: req.Destination,
			Fare:        req.Fare,
			StartTime:   now,
		}
		if fromCat.IsWorking() {
			origin := from.ID
			newTrip.OriginLocationID = &origin
		}
		plan.OpenTrip = newTrip
	}

	if err := s.fleet.ApplyMove(ctx, plan); err != nil {
		return nil, fmt.Errorf("apply move: %w", err)
	}

	machine := s.machines.GetOrCreate(vehicle.ID, &state.BoardState{
		VehicleID:  vehicle.ID,
		UnitNumber: vehicle.UnitNumber,
		Category:   fromCat,
		LocationID: from.ID,
		Since:      vehicle.LastMovedAt,
	})
	if fromCat == toCat {
		machine.SetLocation(target.ID, now)
	} else {
		event, err := state.EventForCategory(toCat)
		if err != nil {
			return nil, err
		}
		if err := machine.Trigger(event, target.ID, now); err != nil {
			// 台账已落，内存状态机不同步只记日志
			s.logger.Error("state machine out of sync",
				zap.Int64("vehicle_id", vehicle.ID),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("move applied",
		zap.Int64("vehicle_id", vehicle.ID),
		zap.String("unit", vehicle.UnitNumber),
		zap.String("from", from.Name),
		zap.String("to", target.Name),
		zap.Bool("opened_shift", plan.OpenShift),
		zap.Bool("opened_trip", plan.OpenTrip != nil),
	)

	return &MoveOutcome{Status: MoveApplied, Trip: newTrip, State: machine.GetState()}, nil
}

// resolveServiceKind 推导行程服务类型
// 调度员没选时：从候客点出车按排班计，否则按电话直达计
func resolveServiceKind(requested *models.ServiceKind, fromCat models.Category) models.ServiceKind {
	if requested != nil {
		return *requested
	}
	if fromCat == models.CategoryPhysicalBase {
		return models.ServiceBaseDispatch
	}
	return models.ServicePhoneDirect
}
