package local

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scrapekit/saasdir/internal/scrape"
)

func TestSaveRecordsWritesDataset(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := New(filepath.Join(dir, "out"), nil)

	records := []scrape.CompanyRecord{
		{CompanyName: scrape.String("Acme"), Revenue: scrape.String("$1M")},
		{CompanyName: scrape.String("Beta")},
	}
	require.NoError(t, store.SaveRecords(context.Background(), "companies_pages_1_to_2", records))

	payload, err := os.ReadFile(filepath.Join(dir, "out", "companies_pages_1_to_2.json"))
	require.NoError(t, err)

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))
	require.Len(t, decoded, 2)
	require.Equal(t, "Acme", decoded[0]["Company Name"])

	// Missing fields are serialized as explicit nulls with stable keys.
	require.Contains(t, decoded[1], "Revenue")
	require.Nil(t, decoded[1]["Revenue"])
	require.Contains(t, decoded[1], "employee_count")
	require.Nil(t, decoded[1]["employee_count"])
}

func TestSaveRecordsEmptyDataset(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := New(dir, nil)
	require.NoError(t, store.SaveRecords(context.Background(), "empty", nil))

	payload, err := os.ReadFile(filepath.Join(dir, "empty.json"))
	require.NoError(t, err)
	require.Equal(t, "null", string(payload))
}

func TestSaveRecordsOverwritesPreviousRun(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := New(dir, nil)

	first := []scrape.CompanyRecord{{CompanyName: scrape.String("Old")}}
	second := []scrape.CompanyRecord{{CompanyName: scrape.String("New")}}
	require.NoError(t, store.SaveRecords(context.Background(), "ds", first))
	require.NoError(t, store.SaveRecords(context.Background(), "ds", second))

	payload, err := os.ReadFile(filepath.Join(dir, "ds.json"))
	require.NoError(t, err)

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))
	require.Len(t, decoded, 1)
	require.Equal(t, "New", decoded[0]["Company Name"])
}

func TestSaveRecordsHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := New(t.TempDir(), nil)
	require.Error(t, store.SaveRecords(ctx, "ds", nil))
}

func TestSaveRecordsLeavesNoTempFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := New(dir, nil)
	require.NoError(t, store.SaveRecords(context.Background(), "ds", nil))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "ds.json", entries[0].Name())
}
