package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSQLite(t *testing.T) (*SQLiteStorage, string) {
	path := filepath.Join(t.TempDir(), "cart.db")
	s, err := NewSQLiteStorage(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestSQLite_LoadMissingSlot(t *testing.T) {
	s, _ := setupSQLite(t)

	_, err := s.Load(context.Background(), "cart")
	assert.ErrorIs(t, err, ErrSlotEmpty)
}

func TestSQLite_SaveOverwritesAndLoads(t *testing.T) {
	s, _ := setupSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "cart", []byte(`[1]`)))
	require.NoError(t, s.Save(ctx, "cart", []byte(`[1,2]`)))

	got, err := s.Load(ctx, "cart")
	require.NoError(t, err)
	assert.Equal(t, []byte(`[1,2]`), got)
}

func TestSQLite_SlotsAreIndependent(t *testing.T) {
	s, _ := setupSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "cart", []byte(`a`)))
	require.NoError(t, s.Save(ctx, "checkout", []byte(`b`)))
	require.NoError(t, s.Clear(ctx, "cart"))

	_, err := s.Load(ctx, "cart")
	assert.ErrorIs(t, err, ErrSlotEmpty)
	got, err := s.Load(ctx, "checkout")
	require.NoError(t, err)
	assert.Equal(t, []byte(`b`), got)
}

func TestSQLite_ClearMissingSlotIsNoop(t *testing.T) {
	s, _ := setupSQLite(t)
	assert.NoError(t, s.Clear(context.Background(), "cart"))
}

func TestSQLite_SurvivesReopen(t *testing.T) {
	s, path := setupSQLite(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, "cart", []byte(`persisted`)))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStorage(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Load(ctx, "cart")
	require.NoError(t, err)
	assert.Equal(t, []byte(`persisted`), got)
}
