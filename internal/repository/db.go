package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB 数据库连接池封装
type DB struct {
	Pool *pgxpool.Pool
}

// New 创建数据库连接
func New(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	// 连接池配置
	config.MaxConns = 10
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// 测试连接
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close 关闭连接池
func (db *DB) Close() {
	db.Pool.Close()
}

// Migrate 执行数据库迁移
func (db *DB) Migrate(ctx context.Context) error {
	migrations := []string{
		migrationCreateLocations,
		migrationCreateVehicles,
		migrationCreateShifts,
		migrationCreateTrips,
		migrationCreateIncidents,
		migrationCreateAuditRuns,
		migrationSeedLocations,
	}

	for _, m := range migrations {
		if _, err := db.Pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}
	}

	return nil
}

// 数据库迁移 SQL
const migrationCreateLocations = `
CREATE TABLE IF NOT EXISTS locations (
    id BIGSERIAL PRIMARY KEY,
    name VARCHAR(255) NOT NULL UNIQUE,
    category VARCHAR(30) NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_locations_category ON locations(category);
`

const migrationCreateVehicles = `
CREATE TABLE IF NOT EXISTS vehicles (
    id BIGSERIAL PRIMARY KEY,
    unit_number VARCHAR(20) NOT NULL UNIQUE,
    status VARCHAR(10) NOT NULL DEFAULT 'active',
    current_location_id BIGINT NOT NULL REFERENCES locations(id),
    last_moved_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    registered_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    decommissioned_at TIMESTAMP WITH TIME ZONE
);
CREATE INDEX IF NOT EXISTS idx_vehicles_status ON vehicles(status);
CREATE INDEX IF NOT EXISTS idx_vehicles_location ON vehicles(current_location_id);
`

const migrationCreateShifts = `
CREATE TABLE IF NOT EXISTS shifts (
    id BIGSERIAL PRIMARY KEY,
    vehicle_id BIGINT NOT NULL REFERENCES vehicles(id),
    start_time TIMESTAMP WITH TIME ZONE NOT NULL,
    end_time TIMESTAMP WITH TIME ZONE
);
CREATE INDEX IF NOT EXISTS idx_shifts_vehicle_id ON shifts(vehicle_id);
CREATE INDEX IF NOT EXISTS idx_shifts_start_time ON shifts(start_time);
CREATE UNIQUE INDEX IF NOT EXISTS idx_shifts_one_open
    ON shifts(vehicle_id) WHERE end_time IS NULL;
`

const migrationCreateTrips = `
CREATE TABLE IF NOT EXISTS trips (
    id BIGSERIAL PRIMARY KEY,
    vehicle_id BIGINT NOT NULL REFERENCES vehicles(id),
    service_kind VARCHAR(30) NOT NULL,
    origin_location_id BIGINT REFERENCES locations(id),
    destination TEXT NOT NULL DEFAULT '',
    fare DOUBLE PRECISION NOT NULL DEFAULT 0,
    start_time TIMESTAMP WITH TIME ZONE NOT NULL,
    end_time TIMESTAMP WITH TIME ZONE
);
CREATE INDEX IF NOT EXISTS idx_trips_vehicle_id ON trips(vehicle_id);
CREATE INDEX IF NOT EXISTS idx_trips_start_time ON trips(start_time);
CREATE UNIQUE INDEX IF NOT EXISTS idx_trips_one_open
    ON trips(vehicle_id) WHERE end_time IS NULL;
`

const migrationCreateIncidents = `
CREATE TABLE IF NOT EXISTS incidents (
    id BIGSERIAL PRIMARY KEY,
    vehicle_id BIGINT NOT NULL REFERENCES vehicles(id),
    kind VARCHAR(30) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    amount DOUBLE PRECISION NOT NULL DEFAULT 0,
    recorded_by VARCHAR(50) NOT NULL,
    resolution VARCHAR(20) NOT NULL DEFAULT 'pending',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    resolved_at TIMESTAMP WITH TIME ZONE
);
CREATE INDEX IF NOT EXISTS idx_incidents_vehicle_id ON incidents(vehicle_id);
CREATE INDEX IF NOT EXISTS idx_incidents_kind ON incidents(kind);
CREATE INDEX IF NOT EXISTS idx_incidents_created_at ON incidents(created_at);
`

const migrationCreateAuditRuns = `
CREATE TABLE IF NOT EXISTS audit_runs (
    id UUID PRIMARY KEY,
    audit_date DATE NOT NULL UNIQUE,
    finding_count INT NOT NULL DEFAULT 0,
    committed_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);
`

// 预置位置目录：实体候客点 + 虚拟状态
const migrationSeedLocations = `
INSERT INTO locations (name, category) VALUES
    ('Cessa', 'physical_base'),
    ('Licuor', 'physical_base'),
    ('Santiaguito', 'physical_base'),
    ('Aurrera', 'physical_base'),
    ('Mercado', 'physical_base'),
    ('Caros', 'physical_base'),
    ('Survi', 'physical_base'),
    ('Capulín', 'physical_base'),
    ('Zócalo', 'physical_base'),
    ('16 de Septiembre', 'physical_base'),
    ('Parada Principal', 'physical_base'),
    ('Fuera de Servicio', 'out_of_service'),
    ('Viaje Local', 'on_trip_local'),
    ('Viaje Foráneo', 'on_trip_long_haul'),
    ('Descanso', 'rest'),
    ('Taller', 'maintenance')
ON CONFLICT (name) DO NOTHING;
`
