package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarancss/luxhedge/lib/store"
	"github.com/tarancss/luxhedge/lib/store/storetest"
)

func TestMemory(t *testing.T) {
	m, err := New()
	require.NoError(t, err)

	defer m.Close()

	storetest.Run(t, m)
}

// Stored objects are copies, changing a returned value does not change the database.
func TestCopies(t *testing.T) {
	m, err := New()
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, m.SavePlan(ctx, store.Plan{ID: "p1", Name: "Gold"}))

	p, err := m.GetPlan(ctx, "p1")
	require.NoError(t, err)

	p.Name = "Silver"

	p, err = m.GetPlan(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Gold", p.Name)
}
