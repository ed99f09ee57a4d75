package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/adscope/harvester/internal/domain/ads"
	"github.com/adscope/harvester/internal/storage"
)

var _ storage.TenantRepository = (*TenantRepository)(nil)

func (r *TenantRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

func (r *TenantRepository) Create(ctx context.Context, name string) (*ads.Tenant, error) {
	if name == "" {
		return nil, fmt.Errorf("create tenant: name is required")
	}

	id := uuid.NewString()
	tenant := &ads.Tenant{ID: id, Name: name}
	err := r.queryer().QueryRow(ctx, `
INSERT INTO tenants (id, name)
VALUES ($1, $2)
RETURNING created_at
`, id, name).Scan(&tenant.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create tenant %q: %w", name, err)
	}
	return tenant, nil
}

func (r *TenantRepository) List(ctx context.Context) ([]ads.Tenant, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT id, name, created_at
  FROM tenants
 ORDER BY created_at
`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []ads.Tenant
	for rows.Next() {
		var tenant ads.Tenant
		if err := rows.Scan(&tenant.ID, &tenant.Name, &tenant.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, tenant)
	}
	return tenants, rows.Err()
}
