package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCandleCSV(t *testing.T, dir, name string, rows [][]string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.WriteString("time,open,high,low,close,volume\n")
	require.NoError(t, err)
	for _, r := range rows {
		_, err := f.WriteString(r[0] + "," + r[1] + "," + r[2] + "," + r[3] + "," + r[4] + "," + r[5] + "\n")
		require.NoError(t, err)
	}
	return path
}

func TestCSVCandleStore_IteratesFilteredAndSorted(t *testing.T) {
	dir := t.TempDir()
	path := writeCandleCSV(t, dir, "BTCUSDT.csv", [][]string{
		{"1970-01-01T00:02:00Z", "2", "2", "2", "2", "1"},
		{"1970-01-01T00:00:00Z", "1", "1", "1", "1", "1"},
		{"1970-01-01T00:01:00Z", "1.5", "1.5", "1.5", "1.5", "1"},
	})

	store := NewCSVCandleStore(map[Symbol]string{"BTCUSDT": path})
	src, err := store.Iterate("BTCUSDT", 0, 60_000, true)
	require.NoError(t, err)

	var opens []int64
	for src.HasNext() {
		c, err := src.Next()
		require.NoError(t, err)
		opens = append(opens, c.OpenTimeMillis())
	}
	assert.Equal(t, []int64{0, 60_000}, opens)
}

func TestCSVCandleStore_UnknownSymbolErrors(t *testing.T) {
	store := NewCSVCandleStore(map[Symbol]string{})
	_, err := store.Iterate("NOPE", 0, 60_000, true)
	assert.Error(t, err)
}

func TestCSVCandleStore_KnownSymbolsSorted(t *testing.T) {
	store := NewCSVCandleStore(map[Symbol]string{"BTCUSDT": "x", "AAAUSDT": "y"})
	syms, err := store.KnownSymbols()
	require.NoError(t, err)
	assert.Equal(t, []Symbol{"AAAUSDT", "BTCUSDT"}, syms)
}

func TestCSVCandleStore_ClearCachesForcesReload(t *testing.T) {
	dir := t.TempDir()
	path := writeCandleCSV(t, dir, "BTCUSDT.csv", [][]string{
		{"1970-01-01T00:00:00Z", "1", "1", "1", "1", "1"},
	})
	store := NewCSVCandleStore(map[Symbol]string{"BTCUSDT": path})

	_, err := store.Iterate("BTCUSDT", 0, 0, true)
	require.NoError(t, err)
	require.Contains(t, store.cache, Symbol("BTCUSDT"))

	store.ClearCaches()
	assert.Empty(t, store.cache)
}
