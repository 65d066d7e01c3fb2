package models

import (
	"time"
)

// Category 位置类别，驱动状态机策略
type Category string

const (
	CategoryPhysicalBase   Category = "physical_base"     // 实体候客点
	CategoryOutOfService   Category = "out_of_service"    // 停运
	CategoryOnTripLocal    Category = "on_trip_local"     // 市内载客
	CategoryOnTripLongHaul Category = "on_trip_long_haul" // 长途载客
	CategoryRest           Category = "rest"              // 休息
	CategoryMaintenance    Category = "maintenance"       // 维修
)

// AllCategories 类别集合是封闭的，车辆不能占据未定义类别的位置
var AllCategories = []Category{
	CategoryPhysicalBase,
	CategoryOutOfService,
	CategoryOnTripLocal,
	CategoryOnTripLongHaul,
	CategoryRest,
	CategoryMaintenance,
}

// Valid 判断类别是否在封闭集合内
func (c Category) Valid() bool {
	for _, k := range AllCategories {
		if c == k {
			return true
		}
	}
	return false
}

// IsOnTrip 是否属于载客类别
func (c Category) IsOnTrip() bool {
	return c == CategoryOnTripLocal || c == CategoryOnTripLongHaul
}

// IsInactive 是否属于非工作类别（停运/维修/休息）
func (c Category) IsInactive() bool {
	return c == CategoryOutOfService || c == CategoryMaintenance || c == CategoryRest
}

// IsWorking 是否属于工作类别（候客点 ∪ 载客）
func (c Category) IsWorking() bool {
	return c == CategoryPhysicalBase || c.IsOnTrip()
}

// Location 车辆可占据的位置（实体候客点或虚拟状态）
type Location struct {
	ID       int64    `json:"id" db:"id"`
	Name     string   `json:"name" db:"name"`
	Category Category `json:"category" db:"category"`
}

// 车辆生命周期状态（软删除）
const (
	VehicleActive   = "active"
	VehicleInactive = "inactive"
)

// Vehicle 车队车辆
type Vehicle struct {
	ID                int64      `json:"id" db:"id"`
	UnitNumber        string     `json:"unit_number" db:"unit_number"` // 车辆编号（面向人的唯一标识）
	Status            string     `json:"status" db:"status"`
	CurrentLocationID int64      `json:"current_location_id" db:"current_location_id"`
	LastMovedAt       time.Time  `json:"last_moved_at" db:"last_moved_at"`
	RegisteredAt      time.Time  `json:"registered_at" db:"registered_at"`
	DecommissionedAt  *time.Time `json:"decommissioned_at,omitempty" db:"decommissioned_at"`
}

// Shift 工作班次（考勤台账）
// 不变量：每辆车同一时刻至多一个未结束的班次
type Shift struct {
	ID        int64      `json:"id" db:"id"`
	VehicleID int64      `json:"vehicle_id" db:"vehicle_id"`
	StartTime time.Time  `json:"start_time" db:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty" db:"end_time"`
}

// Duration 班次时长；未结束的班次按 now 截止
func (s *Shift) Duration(now time.Time) time.Duration {
	end := now
	if s.EndTime != nil {
		end = *s.EndTime
	}
	if end.Before(s.StartTime) {
		return 0
	}
	return end.Sub(s.StartTime)
}

// ServiceKind 行程服务类型
type ServiceKind string

const (
	ServiceBaseDispatch ServiceKind = "base_dispatch" // 候客点排班出车
	ServicePhoneBase    ServiceKind = "phone_base"    // 电话叫车（经基地派单）
	ServicePhoneDirect  ServiceKind = "phone_direct"  // 电话叫车（直达车辆）
	ServiceAirDispatch  ServiceKind = "air_dispatch"  // 电台派单
)

// Valid 判断服务类型是否合法
func (k ServiceKind) Valid() bool {
	switch k {
	case ServiceBaseDispatch, ServicePhoneBase, ServicePhoneDirect, ServiceAirDispatch:
		return true
	}
	return false
}

// Trip 行程台账（只追加）
// 不变量：每辆车同一时刻至多一个未结束的行程
type Trip struct {
	ID               int64       `json:"id" db:"id"`
	VehicleID        int64       `json:"vehicle_id" db:"vehicle_id"`
	ServiceKind      ServiceKind `json:"service_kind" db:"service_kind"`
	OriginLocationID *int64      `json:"origin_location_id,omitempty" db:"origin_location_id"` // 电话/电台派单时可为空
	Destination      string      `json:"destination" db:"destination"`
	Fare             float64     `json:"fare" db:"fare"`
	StartTime        time.Time   `json:"start_time" db:"start_time"`
	EndTime          *time.Time  `json:"end_time,omitempty" db:"end_time"`
}

// IncidentKind 违规/事务类型
type IncidentKind string

const (
	IncidentHoursShortfall   IncidentKind = "hours_shortfall"   // 工时不足（带罚款）
	IncidentAbsence          IncidentKind = "absence"           // 缺勤（仅记录，不罚款）
	IncidentDisciplinaryNote IncidentKind = "disciplinary_note" // 纪律通报
	IncidentFee              IncidentKind = "fee"               // 费用/欠款
)

// Resolution 事务处理状态
type Resolution string

const (
	ResolutionPending       Resolution = "pending"
	ResolutionInformational Resolution = "informational"
	ResolutionResolved      Resolution = "resolved"
)

// RecordedBySystem 稽核引擎落账时使用的记录者标识
const RecordedBySystem = "SISTEMA"

// Incident 罚款/通报记录
type Incident struct {
	ID          int64        `json:"id" db:"id"`
	VehicleID   int64        `json:"vehicle_id" db:"vehicle_id"`
	Kind        IncidentKind `json:"kind" db:"kind"`
	Description string       `json:"description" db:"description"`
	Amount      float64      `json:"amount" db:"amount"` // 非罚款类为 0
	RecordedBy  string       `json:"recorded_by" db:"recorded_by"`
	Resolution  Resolution   `json:"resolution" db:"resolution"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
	ResolvedAt  *time.Time   `json:"resolved_at,omitempty" db:"resolved_at"`
}

// AuditFinding 稽核结论（未落账，等待调度员确认后才提交为 Incident）
type AuditFinding struct {
	VehicleID   int64        `json:"vehicle_id"`
	UnitNumber  string       `json:"unit_number"`
	Kind        IncidentKind `json:"kind"`
	Description string       `json:"description"`
	Amount      float64      `json:"amount"`
	HoursWorked float64      `json:"hours_worked"`
}

// AuditRun 已提交的稽核批次，保证同一日期不会重复罚款
type AuditRun struct {
	ID           string    `json:"id" db:"id"` // uuid
	AuditDate    time.Time `json:"audit_date" db:"audit_date"`
	FindingCount int       `json:"finding_count" db:"finding_count"`
	CommittedAt  time.Time `json:"committed_at" db:"committed_at"`
}
