package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTenantCreateRequiresName(t *testing.T) {
	repo := &TenantRepository{}

	tenant, err := repo.Create(context.Background(), "")
	require.Error(t, err)
	assert.Nil(t, tenant)
}
