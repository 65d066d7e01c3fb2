package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"

	"github.com/netobunobi/taxis-zorro-manager/internal/models"
)

// 状态机状态 = 位置类别
const (
	StatePhysicalBase   = string(models.CategoryPhysicalBase)
	StateOutOfService   = string(models.CategoryOutOfService)
	StateOnTripLocal    = string(models.CategoryOnTripLocal)
	StateOnTripLongHaul = string(models.CategoryOnTripLongHaul)
	StateRest           = string(models.CategoryRest)
	StateMaintenance    = string(models.CategoryMaintenance)
)

// 事件常量，一个事件对应进入一个类别
const (
	EventDock             = "dock"
	EventDispatchLocal    = "dispatch_local"
	EventDispatchLongHaul = "dispatch_long_haul"
	EventRest             = "rest"
	EventToMaintenance    = "to_maintenance"
	EventWithdraw         = "withdraw"
)

// EventForCategory 把目标类别映射为状态机事件
func EventForCategory(c models.Category) (string, error) {
	switch c {
	case models.CategoryPhysicalBase:
		return EventDock, nil
	case models.CategoryOnTripLocal:
		return EventDispatchLocal, nil
	case models.CategoryOnTripLongHaul:
		return EventDispatchLongHaul, nil
	case models.CategoryRest:
		return EventRest, nil
	case models.CategoryMaintenance:
		return EventToMaintenance, nil
	case models.CategoryOutOfService:
		return EventWithdraw, nil
	}
	return "", fmt.Errorf("no event for category %s", c)
}

// 调度板上车辆可以从任意格子拖到任意格子
// 台账效果（开关班次/行程）由移动前后的类别差决定，不在这里管
var allStates = []string{
	StatePhysicalBase,
	StateOutOfService,
	StateOnTripLocal,
	StateOnTripLongHaul,
	StateRest,
	StateMaintenance,
}

// BoardState 调度板上一辆车的实时状态
type BoardState struct {
	VehicleID  int64           `json:"vehicle_id"`
	UnitNumber string          `json:"unit_number"`
	Category   models.Category `json:"category"`
	LocationID int64           `json:"location_id"`
	Since      time.Time       `json:"since"` // 进入当前位置的时刻
}

// MinutesInPlace 在当前位置已停留的分钟数
func (s *BoardState) MinutesInPlace(now time.Time) int {
	if now.Before(s.Since) {
		return 0
	}
	return int(now.Sub(s.Since).Minutes())
}

// Machine 单辆车的调度状态机
type Machine struct {
	mu        sync.RWMutex
	vehicleID int64
	fsm       *fsm.FSM
	state     *BoardState
	onChange  func(vehicleID int64, from, to string)
}

// NewMachine 创建状态机
func NewMachine(vehicleID int64, initial *BoardState, onChange func(vehicleID int64, from, to string)) *Machine {
	m := &Machine{
		vehicleID: vehicleID,
		onChange:  onChange,
		state:     initial,
	}

	m.fsm = fsm.NewFSM(
		string(initial.Category),
		fsm.Events{
			{Name: EventDock, Src: allStates, Dst: StatePhysicalBase},
			{Name: EventDispatchLocal, Src: allStates, Dst: StateOnTripLocal},
			{Name: EventDispatchLongHaul, Src: allStates, Dst: StateOnTripLongHaul},
			{Name: EventRest, Src: allStates, Dst: StateRest},
			{Name: EventToMaintenance, Src: allStates, Dst: StateMaintenance},
			{Name: EventWithdraw, Src: allStates, Dst: StateOutOfService},
		},
		fsm.Callbacks{
			"after_event": func(ctx context.Context, e *fsm.Event) {
				if m.onChange != nil && e.Src != e.Dst {
					m.onChange(m.vehicleID, e.Src, e.Dst)
				}
			},
		},
	)

	return m
}

// CurrentCategory 获取当前类别
func (m *Machine) CurrentCategory() models.Category {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return models.Category(m.fsm.Current())
}

// GetState 获取完整状态（返回副本）
func (m *Machine) GetState() *BoardState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stateCopy := *m.state
	stateCopy.Category = models.Category(m.fsm.Current())
	return &stateCopy
}

// Trigger 触发移动事件并更新位置
func (m *Machine) Trigger(event string, locationID int64, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fsm.Event(context.Background(), event); err != nil {
		return fmt.Errorf("trigger event %s: %w", event, err)
	}

	m.state.Category = models.Category(m.fsm.Current())
	m.state.LocationID = locationID
	m.state.Since = now
	return nil
}

// SetLocation 同类别内换位置（候客点之间调动，不触发事件）
func (m *Machine) SetLocation(locationID int64, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.LocationID = locationID
	m.state.Since = now
}

// Manager 全车队状态机管理器
type Manager struct {
	mu       sync.RWMutex
	machines map[int64]*Machine
	onChange func(vehicleID int64, from, to string)
}

// NewManager 创建管理器
func NewManager(onChange func(vehicleID int64, from, to string)) *Manager {
	return &Manager{
		machines: make(map[int64]*Machine),
		onChange: onChange,
	}
}

// GetOrCreate 获取或创建状态机
func (m *Manager) GetOrCreate(vehicleID int64, initial *BoardState) *Machine {
	m.mu.Lock()
	defer m.mu.Unlock()

	if machine, ok := m.machines[vehicleID]; ok {
		return machine
	}

	machine := NewMachine(vehicleID, initial, m.onChange)
	m.machines[vehicleID] = machine
	return machine
}

// Get 获取状态机
func (m *Manager) Get(vehicleID int64) (*Machine, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	machine, ok := m.machines[vehicleID]
	return machine, ok
}

// Remove 摘除状态机（车辆停用或删除时）
func (m *Manager) Remove(vehicleID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.machines, vehicleID)
}

// GetAllStates 获取全部车辆的调度板状态
func (m *Manager) GetAllStates() map[int64]*BoardState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	states := make(map[int64]*BoardState)
	for vehicleID, machine := range m.machines {
		states[vehicleID] = machine.GetState()
	}
	return states
}
