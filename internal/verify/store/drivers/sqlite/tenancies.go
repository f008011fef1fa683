package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aussiebroadwan/verify/internal/verify/domain"
)

type tenanciesRepo struct {
	db dbtx
}

func (r *tenanciesRepo) GetTenancy(ctx context.Context, projectID, branchID string) (domain.Tenancy, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, project_id, branch_id, config, created_at
		FROM tenancies
		WHERE project_id = ? AND branch_id = ?`,
		projectID, branchID,
	)
	return scanTenancy(row)
}

func (r *tenanciesRepo) GetTenancyByID(ctx context.Context, id string) (domain.Tenancy, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, project_id, branch_id, config, created_at
		FROM tenancies
		WHERE id = ?`,
		id,
	)
	return scanTenancy(row)
}

func (r *tenanciesRepo) CreateTenancy(ctx context.Context, t domain.Tenancy) error {
	cfg, err := json.Marshal(t.Config)
	if err != nil {
		return fmt.Errorf("marshal tenancy config: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO tenancies (id, project_id, branch_id, config, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.ProjectID, t.BranchID, string(cfg), t.CreatedAt,
	)
	return err
}

func (r *tenanciesRepo) UpdateTenancyConfig(ctx context.Context, id string, cfg domain.TenancyConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal tenancy config: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE tenancies SET config = ? WHERE id = ?`,
		string(raw), id,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTenancy(row rowScanner) (domain.Tenancy, error) {
	var (
		t   domain.Tenancy
		raw string
	)
	if err := row.Scan(&t.ID, &t.ProjectID, &t.BranchID, &raw, &t.CreatedAt); err != nil {
		return domain.Tenancy{}, mapNotFound(err)
	}
	if err := json.Unmarshal([]byte(raw), &t.Config); err != nil {
		return domain.Tenancy{}, fmt.Errorf("unmarshal tenancy config: %w", err)
	}
	return t, nil
}
