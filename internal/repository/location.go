package repository

import (
	"context"
	"fmt"

	"github.com/netobunobi/taxis-zorro-manager/internal/models"
)

// LocationRepository 位置目录仓库
type LocationRepository struct {
	db *DB
}

// NewLocationRepository 创建位置目录仓库
func NewLocationRepository(db *DB) *LocationRepository {
	return &LocationRepository{db: db}
}

// List 获取全部位置
func (r *LocationRepository) List(ctx context.Context) ([]*models.Location, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT id, name, category FROM locations ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	defer rows.Close()

	var locations []*models.Location
	for rows.Next() {
		loc := &models.Location{}
		if err := rows.Scan(&loc.ID, &loc.Name, &loc.Category); err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		locations = append(locations, loc)
	}
	return locations, nil
}

// GetByID 获取位置
func (r *LocationRepository) GetByID(ctx context.Context, id int64) (*models.Location, error) {
	loc := &models.Location{}
	err := r.db.Pool.QueryRow(ctx,
		`SELECT id, name, category FROM locations WHERE id = $1`, id,
	).Scan(&loc.ID, &loc.Name, &loc.Category)
	if err != nil {
		return nil, err // 可能是位置不存在
	}
	return loc, nil
}

// GetByCategory 获取某类别的第一个位置（虚拟类别各只有一个位置）
func (r *LocationRepository) GetByCategory(ctx context.Context, category models.Category) (*models.Location, error) {
	loc := &models.Location{}
	err := r.db.Pool.QueryRow(ctx,
		`SELECT id, name, category FROM locations WHERE category = $1 ORDER BY id ASC LIMIT 1`, category,
	).Scan(&loc.ID, &loc.Name, &loc.Category)
	if err != nil {
		return nil, fmt.Errorf("get location by category %s: %w", category, err)
	}
	return loc, nil
}

// Create 新增实体候客点
func (r *LocationRepository) Create(ctx context.Context, loc *models.Location) error {
	err := r.db.Pool.QueryRow(ctx,
		`INSERT INTO locations (name, category) VALUES ($1, $2) RETURNING id`,
		loc.Name, loc.Category,
	).Scan(&loc.ID)
	if err != nil {
		return fmt.Errorf("insert location: %w", err)
	}
	return nil
}

// Delete 删除实体候客点
// 站在该候客点的车辆先撤到停运位，避免悬空引用
func (r *LocationRepository) Delete(ctx context.Context, id int64, fallbackID int64) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete location: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE vehicles SET current_location_id = $1 WHERE current_location_id = $2`,
		fallbackID, id,
	); err != nil {
		return fmt.Errorf("rescue vehicles from location: %w", err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM locations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete location: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("location %d not found", id)
	}

	return tx.Commit(ctx)
}
