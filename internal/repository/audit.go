package repository

import (
	"context"
	"fmt"

	"github.com/netobunobi/taxis-zorro-manager/internal/models"
)

// AuditRepository 稽核批次仓库
// 批次表是同一日期只罚一次的持久屏障
type AuditRepository struct {
	db *DB
}

// NewAuditRepository 创建稽核批次仓库
func NewAuditRepository(db *DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// HasRun 判断某个稽核日是否已提交过批次
func (r *AuditRepository) HasRun(ctx context.Context, dateStr string) (bool, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM audit_runs WHERE audit_date = $1`, dateStr,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check audit run: %w", err)
	}
	return count > 0, nil
}

// ListRuns 获取已提交批次（新的在前）
func (r *AuditRepository) ListRuns(ctx context.Context, limit int) ([]*models.AuditRun, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, audit_date, finding_count, committed_at
		FROM audit_runs ORDER BY audit_date DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.AuditRun
	for rows.Next() {
		run := &models.AuditRun{}
		if err := rows.Scan(&run.ID, &run.AuditDate, &run.FindingCount, &run.CommittedAt); err != nil {
			return nil, fmt.Errorf("scan audit run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// CommitRun 提交一个稽核批次：批次行与全部事务记录在同一事务内落账
// audit_date 上的唯一约束会挡住并发的重复提交
func (r *AuditRepository) CommitRun(ctx context.Context, run *models.AuditRun, incidents []*models.Incident) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin audit commit: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO audit_runs (id, audit_date, finding_count, committed_at)
		VALUES ($1, $2, $3, $4)`,
		run.ID, run.AuditDate.Format("2006-01-02"), run.FindingCount, run.CommittedAt,
	); err != nil {
		return fmt.Errorf("insert audit run: %w", err)
	}

	for _, inc := range incidents {
		if err := tx.QueryRow(ctx, `
			INSERT INTO incidents (vehicle_id, kind, description, amount, recorded_by, resolution, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id`,
			inc.VehicleID, inc.Kind, inc.Description, inc.Amount, inc.RecordedBy, inc.Resolution, inc.CreatedAt,
		).Scan(&inc.ID); err != nil {
			return fmt.Errorf("insert audit incident: %w", err)
		}
	}

	return tx.Commit(ctx)
}
