package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	s, err := New(DriverSQLite, filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndGetRow(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	require.NoError(t, s.AppendRow(ctx, "shop", Row{"Potion", "5", "heals"}))

	row, err := s.GetRow(ctx, "shop", "Potion")
	require.NoError(t, err)
	assert.Equal(t, Row{"Potion", "5", "heals"}, row)

	_, err = s.GetRow(ctx, "shop", "Elixir")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetRow(ctx, "gacha", "Potion")
	assert.ErrorIs(t, err, ErrNotFound, "sheets are isolated")
}

func TestUpdateRow(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	require.NoError(t, s.AppendRow(ctx, "ledger:x", Row{"currency-unit", "t0", "3"}))
	require.NoError(t, s.UpdateRow(ctx, "ledger:x", "currency-unit", Row{"currency-unit", "t1", "9"}))

	row, err := s.GetRow(ctx, "ledger:x", "currency-unit")
	require.NoError(t, err)
	assert.Equal(t, "9", row.Cell(2))

	count, err := s.CountRows(ctx, "ledger:x")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	err = s.UpdateRow(ctx, "ledger:x", "missing", Row{"missing", "t", "1"})
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.UpdateRow(ctx, "ledger:x", "currency-unit", Row{})
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestListRowsKeepsInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	keys := []string{"zeta", "alpha", "mu"}
	for _, k := range keys {
		require.NoError(t, s.AppendRow(ctx, "keywords", Row{k, "resp " + k}))
	}

	rows, err := s.ListRows(ctx, "keywords")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for i, k := range keys {
		assert.Equal(t, k, rows[i].Key())
	}

	empty, err := s.ListRows(ctx, "nothing")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	_, err := New("postgres", "whatever")
	assert.ErrorIs(t, err, ErrUnknownDriver)
}

func TestRowCell(t *testing.T) {
	r := Row{" a ", "b"}
	assert.Equal(t, "a", r.Cell(0))
	assert.Equal(t, "", r.Cell(5))
	assert.Equal(t, "", Row{}.Key())
}
