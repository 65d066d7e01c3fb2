package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/netobunobi/taxis-zorro-manager/internal/models"
)

// IncidentRepository 罚款/通报台账仓库
type IncidentRepository struct {
	db *DB
}

// NewIncidentRepository 创建事务仓库
func NewIncidentRepository(db *DB) *IncidentRepository {
	return &IncidentRepository{db: db}
}

const incidentColumns = `id, vehicle_id, kind, description, amount, recorded_by, resolution, created_at, resolved_at`

func scanIncident(row interface{ Scan(...any) error }) (*models.Incident, error) {
	inc := &models.Incident{}
	err := row.Scan(
		&inc.ID,
		&inc.VehicleID,
		&inc.Kind,
		&inc.Description,
		&inc.Amount,
		&inc.RecordedBy,
		&inc.Resolution,
		&inc.CreatedAt,
		&inc.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	return inc, nil
}

// Insert 落账一条事务记录
func (r *IncidentRepository) Insert(ctx context.Context, inc *models.Incident) error {
	err := r.db.Pool.QueryRow(ctx, `
		INSERT INTO incidents (vehicle_id, kind, description, amount, recorded_by, resolution, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		inc.VehicleID, inc.Kind, inc.Description, inc.Amount, inc.RecordedBy, inc.Resolution, inc.CreatedAt,
	).Scan(&inc.ID)
	if err != nil {
		return fmt.Errorf("insert incident: %w", err)
	}
	return nil
}

// GetByID 获取事务记录
func (r *IncidentRepository) GetByID(ctx context.Context, id int64) (*models.Incident, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE id = $1`, id)
	return scanIncident(row)
}

// List 按过滤条件获取事务记录
func (r *IncidentRepository) List(ctx context.Context, filter TripFilter, limit, offset int) ([]*models.Incident, error) {
	where, args := filter.clause("created_at", "vehicle_id")
	args = append(args, limit, offset)
	query := fmt.Sprintf(
		`SELECT `+incidentColumns+` FROM incidents %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args),
	)

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	var incidents []*models.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		incidents = append(incidents, inc)
	}
	return incidents, nil
}

// Resolve 将事务标记为已处理
func (r *IncidentRepository) Resolve(ctx context.Context, id int64, ts time.Time) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE incidents SET resolution = $1, resolved_at = $2 WHERE id = $3`,
		models.ResolutionResolved, ts, id,
	)
	if err != nil {
		return fmt.Errorf("resolve incident: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("incident %d not found", id)
	}
	return nil
}
